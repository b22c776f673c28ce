package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/d4rkfella/vaulted/pkg/endpoint"
)

// Auths lists the enabled auth methods and refreshes the cache.
func (s *Session) Auths(ctx context.Context) (map[string]MountInfo, error) {
	var raw map[string]json.RawMessage
	if err := s.call(ctx, "sys/auth", endpoint.VerbGet, s.authed(endpoint.Request{}), &raw); err != nil {
		return nil, fmt.Errorf("list auth methods: %w", err)
	}
	auths, err := decodeListing[MountInfo](raw)
	if err != nil {
		return nil, fmt.Errorf("list auth methods: %w", err)
	}

	s.mu.Lock()
	s.auths = auths
	s.mu.Unlock()
	return s.CachedAuths(), nil
}

// EnableAuth enables an auth method of type method at path.
func (s *Session) EnableAuth(ctx context.Context, path, method, description string) error {
	path = strings.Trim(path, "/")
	body := map[string]any{"type": method}
	if description != "" {
		body["description"] = description
	}
	if err := s.call(ctx, "sys/auth/:id", endpoint.VerbPost, s.authed(endpoint.Request{ID: path, Body: body}), nil); err != nil {
		return fmt.Errorf("enable auth %s: %w", path, err)
	}
	s.mu.Lock()
	s.auths[path] = MountInfo{Type: method, Description: description}
	s.mu.Unlock()
	return nil
}

// DisableAuth disables the auth method at path.
func (s *Session) DisableAuth(ctx context.Context, path string) error {
	path = strings.Trim(path, "/")
	if err := s.call(ctx, "sys/auth/:id", endpoint.VerbDelete, s.authed(endpoint.Request{ID: path}), nil); err != nil {
		return fmt.Errorf("disable auth %s: %w", path, err)
	}
	s.mu.Lock()
	delete(s.auths, path)
	s.mu.Unlock()
	return nil
}
