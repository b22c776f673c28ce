package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/d4rkfella/vaulted/pkg/endpoint"
	"github.com/d4rkfella/vaulted/pkg/registry"
)

// MountInfo describes a secrets engine or an auth method.
type MountInfo struct {
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Accessor    string            `json:"accessor"`
	Local       bool              `json:"local"`
	SealWrap    bool              `json:"seal_wrap"`
	Options     map[string]string `json:"options"`
	Config      map[string]any    `json:"config"`
}

// decodeListing extracts the path keyed entries of a sys listing. Newer
// servers nest them under "data" and repeat them at the top level; older
// ones only have the top level.
func decodeListing[T any](raw map[string]json.RawMessage) (map[string]T, error) {
	entries := raw
	if data, ok := raw["data"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(data, &nested); err == nil && nested != nil {
			entries = nested
		}
	}

	out := make(map[string]T)
	for path, msg := range entries {
		if !strings.HasSuffix(path, "/") {
			continue
		}
		var v T
		if err := json.Unmarshal(msg, &v); err != nil {
			return nil, fmt.Errorf("decode entry %q: %w", path, err)
		}
		out[strings.TrimSuffix(path, "/")] = v
	}
	return out, nil
}

// Mounts lists the secrets engines and refreshes the mount cache. Keys are
// mount paths without the trailing slash.
func (s *Session) Mounts(ctx context.Context) (map[string]MountInfo, error) {
	var raw map[string]json.RawMessage
	if err := s.call(ctx, "sys/mounts", endpoint.VerbGet, s.authed(endpoint.Request{}), &raw); err != nil {
		return nil, fmt.Errorf("list mounts: %w", err)
	}
	mounts, err := decodeListing[MountInfo](raw)
	if err != nil {
		return nil, fmt.Errorf("list mounts: %w", err)
	}

	s.mu.Lock()
	s.mounts = mounts
	s.mu.Unlock()
	return s.CachedMounts(), nil
}

// Mount enables a secrets engine of type backend at path and registers the
// backend's endpoint set under it.
func (s *Session) Mount(ctx context.Context, path, backend, description string) error {
	path = strings.Trim(path, "/")
	body := map[string]any{"type": backend}
	if description != "" {
		body["description"] = description
	}
	if err := s.call(ctx, "sys/mounts/:id", endpoint.VerbPost, s.authed(endpoint.Request{ID: path, Body: body}), nil); err != nil {
		return fmt.Errorf("mount %s: %w", path, err)
	}

	if err := s.updateRegistry(func(r *registry.Registry) (*registry.Registry, error) {
		return r.WithBackend(path, backend)
	}); err != nil {
		return fmt.Errorf("register %s endpoints at %s: %w", backend, path, err)
	}

	s.mu.Lock()
	s.mounts[path] = MountInfo{Type: backend, Description: description}
	s.mu.Unlock()

	log.Info().Str("component", "session").Str("path", path).Str("type", backend).Msg("Secrets engine mounted")
	return nil
}

// Unmount disables the secrets engine at path and drops its endpoints.
func (s *Session) Unmount(ctx context.Context, path string) error {
	path = strings.Trim(path, "/")
	if err := s.call(ctx, "sys/mounts/:id", endpoint.VerbDelete, s.authed(endpoint.Request{ID: path}), nil); err != nil {
		return fmt.Errorf("unmount %s: %w", path, err)
	}

	_ = s.updateRegistry(func(r *registry.Registry) (*registry.Registry, error) {
		return r.WithoutBackend(path), nil
	})

	s.mu.Lock()
	delete(s.mounts, path)
	s.mu.Unlock()

	log.Info().Str("component", "session").Str("path", path).Msg("Secrets engine unmounted")
	return nil
}

// RegisterMounts adds the endpoint sets for every cached mount whose type
// has one, e.g. after Mounts on a server configured elsewhere.
func (s *Session) RegisterMounts() error {
	mounts := s.CachedMounts()
	return s.updateRegistry(func(r *registry.Registry) (*registry.Registry, error) {
		next := r
		known := r.Mounts()
		for path, m := range mounts {
			if _, done := known[path]; done {
				continue
			}
			var err error
			if next, err = next.WithBackend(path, m.Type); err != nil {
				return nil, err
			}
		}
		return next, nil
	})
}
