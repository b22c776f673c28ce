package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/d4rkfella/vaulted/pkg/endpoint"
)

func backendEndpoint(mount, suffix string) string {
	return strings.Trim(mount, "/") + "/" + suffix
}

// dataOf decodes the "data" block of a backend response into out.
func (s *Session) dataOf(ctx context.Context, name string, verb endpoint.Verb, req endpoint.Request, out any) error {
	wrapper := struct {
		Data any `json:"data"`
	}{Data: out}
	return s.call(ctx, name, verb, s.authed(req), &wrapper)
}

// TransitCreateKey creates a named encryption key. An empty keyType uses
// the server default.
func (s *Session) TransitCreateKey(ctx context.Context, mount, name, keyType string) error {
	body := map[string]any{}
	if keyType != "" {
		body["type"] = keyType
	}
	req := s.authed(endpoint.Request{ID: name, Body: body})
	if err := s.call(ctx, backendEndpoint(mount, "keys/:id"), endpoint.VerbPost, req, nil); err != nil {
		return fmt.Errorf("transit create key %s: %w", name, err)
	}
	return nil
}

// TransitEncrypt has the server encrypt plaintext with key and returns the
// ciphertext.
func (s *Session) TransitEncrypt(ctx context.Context, mount, key string, plaintext []byte) (string, error) {
	var out struct {
		Ciphertext string `json:"ciphertext"`
	}
	req := endpoint.Request{ID: key, Body: map[string]any{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	}}
	if err := s.dataOf(ctx, backendEndpoint(mount, "encrypt/:id"), endpoint.VerbPost, req, &out); err != nil {
		return "", fmt.Errorf("transit encrypt with %s: %w", key, err)
	}
	return out.Ciphertext, nil
}

// TransitDecrypt has the server decrypt ciphertext with key.
func (s *Session) TransitDecrypt(ctx context.Context, mount, key, ciphertext string) ([]byte, error) {
	var out struct {
		Plaintext string `json:"plaintext"`
	}
	req := endpoint.Request{ID: key, Body: map[string]any{"ciphertext": ciphertext}}
	if err := s.dataOf(ctx, backendEndpoint(mount, "decrypt/:id"), endpoint.VerbPost, req, &out); err != nil {
		return nil, fmt.Errorf("transit decrypt with %s: %w", key, err)
	}
	plain, err := base64.StdEncoding.DecodeString(out.Plaintext)
	if err != nil {
		return nil, fmt.Errorf("transit decrypt with %s: decode plaintext: %w", key, err)
	}
	return plain, nil
}

// Certificate is a certificate issued by a pki mount.
type Certificate struct {
	Certificate    string   `json:"certificate"`
	IssuingCA      string   `json:"issuing_ca"`
	CAChain        []string `json:"ca_chain"`
	PrivateKey     string   `json:"private_key"`
	PrivateKeyType string   `json:"private_key_type"`
	SerialNumber   string   `json:"serial_number"`
	Expiration     int64    `json:"expiration"`
}

// PKIRole is the subset of role options the session sets.
type PKIRole struct {
	AllowedDomains  []string
	AllowSubdomains bool
	MaxTTL          string
}

// PKIWriteRole creates or updates a role on a pki mount.
func (s *Session) PKIWriteRole(ctx context.Context, mount, role string, r PKIRole) error {
	body := map[string]any{"allow_subdomains": r.AllowSubdomains}
	if len(r.AllowedDomains) > 0 {
		body["allowed_domains"] = r.AllowedDomains
	}
	if r.MaxTTL != "" {
		body["max_ttl"] = r.MaxTTL
	}
	req := s.authed(endpoint.Request{ID: role, Body: body})
	if err := s.call(ctx, backendEndpoint(mount, "roles/:id"), endpoint.VerbPost, req, nil); err != nil {
		return fmt.Errorf("pki write role %s: %w", role, err)
	}
	return nil
}

// PKIIssue issues a certificate for commonName from role.
func (s *Session) PKIIssue(ctx context.Context, mount, role, commonName, ttl string) (*Certificate, error) {
	body := map[string]any{"common_name": commonName}
	if ttl != "" {
		body["ttl"] = ttl
	}
	var cert Certificate
	if err := s.dataOf(ctx, backendEndpoint(mount, "issue/:id"), endpoint.VerbPost, endpoint.Request{ID: role, Body: body}, &cert); err != nil {
		return nil, fmt.Errorf("pki issue %s from %s: %w", commonName, role, err)
	}
	return &cert, nil
}

// ConsulRole is a consul secrets engine role.
type ConsulRole struct {
	Policies  []string `json:"policies"`
	TokenType string   `json:"token_type"`
	TTL       int      `json:"ttl"`
	MaxTTL    int      `json:"max_ttl"`
	Local     bool     `json:"local"`
}

// ConsulConfigure points a consul mount at a Consul server.
func (s *Session) ConsulConfigure(ctx context.Context, mount, address, token string) error {
	req := s.authed(endpoint.Request{Body: map[string]any{"address": address, "token": token}})
	if err := s.call(ctx, backendEndpoint(mount, "config/access"), endpoint.VerbPost, req, nil); err != nil {
		return fmt.Errorf("consul configure: %w", err)
	}
	return nil
}

// ConsulWriteRole creates or updates a role mapping to Consul policies.
func (s *Session) ConsulWriteRole(ctx context.Context, mount, role string, policies []string) error {
	req := s.authed(endpoint.Request{ID: role, Body: map[string]any{"policies": policies}})
	if err := s.call(ctx, backendEndpoint(mount, "roles/:id"), endpoint.VerbPost, req, nil); err != nil {
		return fmt.Errorf("consul write role %s: %w", role, err)
	}
	return nil
}

// ConsulReadRole reads a role.
func (s *Session) ConsulReadRole(ctx context.Context, mount, role string) (*ConsulRole, error) {
	var out ConsulRole
	if err := s.dataOf(ctx, backendEndpoint(mount, "roles/:id"), endpoint.VerbGet, endpoint.Request{ID: role}, &out); err != nil {
		return nil, fmt.Errorf("consul read role %s: %w", role, err)
	}
	return &out, nil
}

// ConsulCreds generates a Consul token for role.
func (s *Session) ConsulCreds(ctx context.Context, mount, role string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := s.dataOf(ctx, backendEndpoint(mount, "creds/:id"), endpoint.VerbGet, endpoint.Request{ID: role}, &out); err != nil {
		return "", fmt.Errorf("consul creds %s: %w", role, err)
	}
	return out.Token, nil
}
