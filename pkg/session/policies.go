package session

import (
	"context"
	"fmt"
	"slices"

	"github.com/d4rkfella/vaulted/pkg/endpoint"
)

// Policies lists the ACL policy names and refreshes the policy cache.
func (s *Session) Policies(ctx context.Context) ([]string, error) {
	var out struct {
		Policies []string `json:"policies"`
		Data     struct {
			Policies []string `json:"policies"`
		} `json:"data"`
	}
	if err := s.call(ctx, "sys/policy", endpoint.VerbGet, s.authed(endpoint.Request{}), &out); err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	policies := out.Policies
	if len(policies) == 0 {
		policies = out.Data.Policies
	}
	slices.Sort(policies)

	s.mu.Lock()
	s.policies = policies
	s.mu.Unlock()
	return s.CachedPolicies(), nil
}

// Policy returns the rules of the named policy.
func (s *Session) Policy(ctx context.Context, name string) (string, error) {
	var out struct {
		Rules string `json:"rules"`
	}
	if err := s.call(ctx, "sys/policy/:id", endpoint.VerbGet, s.authed(endpoint.Request{ID: name}), &out); err != nil {
		return "", fmt.Errorf("read policy %s: %w", name, err)
	}
	return out.Rules, nil
}

// PutPolicy creates or replaces a policy.
func (s *Session) PutPolicy(ctx context.Context, name, rules string) error {
	req := s.authed(endpoint.Request{ID: name, Body: map[string]any{"policy": rules}})
	if err := s.call(ctx, "sys/policy/:id", endpoint.VerbPut, req, nil); err != nil {
		return fmt.Errorf("write policy %s: %w", name, err)
	}
	s.mu.Lock()
	if !slices.Contains(s.policies, name) {
		s.policies = append(s.policies, name)
		slices.Sort(s.policies)
	}
	s.mu.Unlock()
	return nil
}

// DeletePolicy removes a policy.
func (s *Session) DeletePolicy(ctx context.Context, name string) error {
	if err := s.call(ctx, "sys/policy/:id", endpoint.VerbDelete, s.authed(endpoint.Request{ID: name}), nil); err != nil {
		return fmt.Errorf("delete policy %s: %w", name, err)
	}
	s.mu.Lock()
	s.policies = slices.DeleteFunc(s.policies, func(p string) bool { return p == name })
	s.mu.Unlock()
	return nil
}
