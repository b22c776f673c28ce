package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/d4rkfella/vaulted/pkg/endpoint"
)

// AuditInfo describes an audit device.
type AuditInfo struct {
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Path        string            `json:"path"`
	Local       bool              `json:"local"`
	Options     map[string]string `json:"options"`
}

// Audits lists the enabled audit devices and refreshes the cache.
func (s *Session) Audits(ctx context.Context) (map[string]AuditInfo, error) {
	var raw map[string]json.RawMessage
	if err := s.call(ctx, "sys/audit", endpoint.VerbGet, s.authed(endpoint.Request{}), &raw); err != nil {
		return nil, fmt.Errorf("list audit devices: %w", err)
	}
	audits, err := decodeListing[AuditInfo](raw)
	if err != nil {
		return nil, fmt.Errorf("list audit devices: %w", err)
	}

	s.mu.Lock()
	s.audits = audits
	s.mu.Unlock()
	return s.CachedAudits(), nil
}

// EnableAudit enables an audit device named name. File devices must carry a
// "path" option; the call is rejected before dispatch otherwise.
func (s *Session) EnableAudit(ctx context.Context, name, kind, description string, options map[string]string) error {
	name = strings.Trim(name, "/")
	opts := make(map[string]any, len(options))
	for k, v := range options {
		opts[k] = v
	}
	body := map[string]any{"type": kind, "options": opts}
	if description != "" {
		body["description"] = description
	}

	req := endpoint.Request{ID: name, Body: body}
	if kind == "file" {
		req.RequiredPath = "options.path"
	}
	if err := s.call(ctx, "sys/audit/:id", endpoint.VerbPut, s.authed(req), nil); err != nil {
		return fmt.Errorf("enable audit %s: %w", name, err)
	}

	s.mu.Lock()
	s.audits[name] = AuditInfo{Type: kind, Description: description, Path: name + "/", Options: options}
	s.mu.Unlock()
	return nil
}

// DisableAudit disables the audit device named name.
func (s *Session) DisableAudit(ctx context.Context, name string) error {
	name = strings.Trim(name, "/")
	if err := s.call(ctx, "sys/audit/:id", endpoint.VerbDelete, s.authed(endpoint.Request{ID: name}), nil); err != nil {
		return fmt.Errorf("disable audit %s: %w", name, err)
	}
	s.mu.Lock()
	delete(s.audits, name)
	s.mu.Unlock()
	return nil
}
