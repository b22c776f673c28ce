package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/d4rkfella/vaulted/pkg/endpoint"
)

// Secret is a generic secret response.
type Secret struct {
	RequestID     string         `json:"request_id"`
	LeaseID       string         `json:"lease_id"`
	LeaseDuration int            `json:"lease_duration"`
	Renewable     bool           `json:"renewable"`
	Data          map[string]any `json:"data"`
	Warnings      []string       `json:"warnings"`
}

// ListQuery turns a GET into a LIST.
type ListQuery struct {
	List bool `schema:"list"`
}

// secretEndpoint names the generic endpoint of mount. The default "secret"
// mount is in the core catalog; other mounts need a kv endpoint set.
func secretEndpoint(mount string) string {
	return strings.Trim(mount, "/") + "/:id"
}

// Read reads the secret at path under mount.
func (s *Session) Read(ctx context.Context, mount, path string) (*Secret, error) {
	var out Secret
	req := s.authed(endpoint.Request{ID: path})
	if err := s.call(ctx, secretEndpoint(mount), endpoint.VerbGet, req, &out); err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", mount, path, err)
	}
	return &out, nil
}

// Write stores data at path under mount.
func (s *Session) Write(ctx context.Context, mount, path string, data map[string]any) error {
	req := s.authed(endpoint.Request{ID: path, Body: data})
	if err := s.call(ctx, secretEndpoint(mount), endpoint.VerbPut, req, nil); err != nil {
		return fmt.Errorf("write %s/%s: %w", mount, path, err)
	}
	return nil
}

// Delete removes the secret at path under mount.
func (s *Session) Delete(ctx context.Context, mount, path string) error {
	req := s.authed(endpoint.Request{ID: path})
	if err := s.call(ctx, secretEndpoint(mount), endpoint.VerbDelete, req, nil); err != nil {
		return fmt.Errorf("delete %s/%s: %w", mount, path, err)
	}
	return nil
}

// List returns the keys below path under mount. Folders end in "/".
func (s *Session) List(ctx context.Context, mount, path string) ([]string, error) {
	query, err := encodeQuery(ListQuery{List: true})
	if err != nil {
		return nil, fmt.Errorf("encode list query: %w", err)
	}
	var out struct {
		Data struct {
			Keys []string `json:"keys"`
		} `json:"data"`
	}
	req := s.authed(endpoint.Request{ID: path, Query: query})
	if err := s.call(ctx, secretEndpoint(mount), endpoint.VerbGet, req, &out); err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", mount, path, err)
	}
	return out.Data.Keys, nil
}
