package session

import (
	"context"
	"fmt"

	"github.com/d4rkfella/vaulted/pkg/endpoint"
)

// TokenRequest are the options of auth/token/create. Zero fields are left
// to the server's defaults.
type TokenRequest struct {
	Policies    []string
	TTL         string
	DisplayName string
	NumUses     int
	NoParent    bool
	Renewable   *bool
	Meta        map[string]string
}

func (r TokenRequest) body() map[string]any {
	body := map[string]any{}
	if len(r.Policies) > 0 {
		body["policies"] = r.Policies
	}
	if r.TTL != "" {
		body["ttl"] = r.TTL
	}
	if r.DisplayName != "" {
		body["display_name"] = r.DisplayName
	}
	if r.NumUses > 0 {
		body["num_uses"] = r.NumUses
	}
	if r.NoParent {
		body["no_parent"] = true
	}
	if r.Renewable != nil {
		body["renewable"] = *r.Renewable
	}
	if len(r.Meta) > 0 {
		body["meta"] = r.Meta
	}
	return body
}

// Auth is the auth block returned when a token is created.
type Auth struct {
	ClientToken   string            `json:"client_token"`
	Accessor      string            `json:"accessor"`
	Policies      []string          `json:"policies"`
	Metadata      map[string]string `json:"metadata"`
	LeaseDuration int               `json:"lease_duration"`
	Renewable     bool              `json:"renewable"`
}

// CreateToken creates a child token of the session token.
func (s *Session) CreateToken(ctx context.Context, tr TokenRequest) (*Auth, error) {
	var out struct {
		Auth *Auth `json:"auth"`
	}
	req := s.authed(endpoint.Request{Body: tr.body()})
	if err := s.call(ctx, "auth/token/create", endpoint.VerbPost, req, &out); err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}
	if out.Auth == nil {
		return nil, fmt.Errorf("create token: response has no auth block")
	}
	return out.Auth, nil
}

// LookupSelf returns the properties of the session token.
func (s *Session) LookupSelf(ctx context.Context) (map[string]any, error) {
	var out Secret
	if err := s.call(ctx, "auth/token/lookup-self", endpoint.VerbGet, s.authed(endpoint.Request{}), &out); err != nil {
		return nil, fmt.Errorf("lookup self: %w", err)
	}
	return out.Data, nil
}

// RevokeToken revokes token and its children.
func (s *Session) RevokeToken(ctx context.Context, token string) error {
	req := s.authed(endpoint.Request{Body: map[string]any{"token": token}})
	if err := s.call(ctx, "auth/token/revoke", endpoint.VerbPost, req, nil); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}
