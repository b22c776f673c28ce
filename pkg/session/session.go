// Package session keeps the state shared by consecutive calls against one
// Vault server: the token, unseal key shares, the last known seal status and
// cached listings of mounts, policies, auth methods and audit devices.
//
// Caches are only refreshed by the list calls that fill them.
package session

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gorilla/schema"
	"github.com/rs/zerolog/log"

	"github.com/d4rkfella/vaulted/internal/retry"
	"github.com/d4rkfella/vaulted/internal/util"
	"github.com/d4rkfella/vaulted/pkg/endpoint"
	"github.com/d4rkfella/vaulted/pkg/registry"
)

// ErrNoKeys is returned by Unseal when no key shares are held.
var ErrNoKeys = errors.New("session: no unseal keys available")

// ErrStillSealed is returned by Unseal when every key share was submitted
// and the server is still sealed.
var ErrStillSealed = errors.New("session: server still sealed after submitting all key shares")

var queryEncoder = schema.NewEncoder()

// Session is safe for concurrent use.
type Session struct {
	reg atomic.Pointer[registry.Registry]

	mu       sync.RWMutex
	token    util.SecureString
	keys     []util.SecureString
	status   Status
	mounts   map[string]MountInfo
	policies []string
	auths    map[string]MountInfo
	audits   map[string]AuditInfo

	// Retry drives WaitReady.
	Retry retry.Config
}

// New binds a session to reg. token may be empty until Init or SetToken.
func New(reg *registry.Registry, token string) *Session {
	s := &Session{
		Retry:  retry.DefaultConfig(),
		mounts: map[string]MountInfo{},
		auths:  map[string]MountInfo{},
		audits: map[string]AuditInfo{},
	}
	s.reg.Store(reg)
	if token != "" {
		s.token = util.NewSecureString([]byte(token))
	}
	return s
}

// Registry returns the current registry snapshot.
func (s *Session) Registry() *registry.Registry { return s.reg.Load() }

// SetRegistry swaps the registry snapshot.
func (s *Session) SetRegistry(reg *registry.Registry) { s.reg.Store(reg) }

// Endpoint resolves name against the current registry snapshot.
func (s *Session) Endpoint(name string) (*endpoint.Endpoint, error) {
	return s.reg.Load().Get(name)
}

// updateRegistry applies fn to the current snapshot and publishes the
// result, retrying if another goroutine swapped the snapshot meanwhile.
func (s *Session) updateRegistry(fn func(*registry.Registry) (*registry.Registry, error)) error {
	for {
		cur := s.reg.Load()
		next, err := fn(cur)
		if err != nil {
			return err
		}
		if s.reg.CompareAndSwap(cur, next) {
			return nil
		}
	}
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.String()
}

func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token.Zero()
	if token != "" {
		s.token = util.NewSecureString([]byte(token))
	}
}

// Headers returns the default headers of an authenticated call. The result
// is never nil, so passing it in a Request always triggers the token check.
func (s *Session) Headers() http.Header {
	h := http.Header{}
	if tok := s.Token(); tok != "" {
		h.Set(endpoint.AuthHeader, tok)
	}
	return h
}

// Keys returns a copy of the held unseal key shares.
func (s *Session) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.keys))
	for i, k := range s.keys {
		out[i] = k.String()
	}
	return out
}

// SetKeys replaces the held unseal key shares.
func (s *Session) SetKeys(keys []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	util.ZeroAll(s.keys)
	s.keys = util.SecureStrings(keys)
}

// Restore loads a previously saved root token and key shares, e.g. from a
// backup snapshot, replacing what the session holds.
func (s *Session) Restore(rootToken string, keys []string) {
	s.SetToken(rootToken)
	s.SetKeys(keys)
	log.Info().
		Str("component", "session").
		Int("keys", len(keys)).
		Str("root_token", util.RedactKey(rootToken)).
		Msg("Credentials restored")
}

// Close zeroes the token and key shares.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token.Zero()
	util.ZeroAll(s.keys)
	s.keys = nil
}

// CachedStatus returns the last seal status seen, without a remote call.
func (s *Session) CachedStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// CachedMounts returns the mount cache.
func (s *Session) CachedMounts() map[string]MountInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.mounts)
}

// CachedPolicies returns the policy cache.
func (s *Session) CachedPolicies() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.policies)
}

// CachedAuths returns the auth method cache.
func (s *Session) CachedAuths() map[string]MountInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.auths)
}

// CachedAudits returns the audit device cache.
func (s *Session) CachedAudits() map[string]AuditInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.audits)
}

// authed returns req with the session token attached.
func (s *Session) authed(req endpoint.Request) endpoint.Request {
	return req.Authenticated(s.Token())
}

// call resolves name and decodes the response into out, which may be nil.
func (s *Session) call(ctx context.Context, name string, verb endpoint.Verb, req endpoint.Request, out any) error {
	e, err := s.Endpoint(name)
	if err != nil {
		return err
	}
	log.Debug().Str("component", "session").Str("endpoint", name).Str("verb", verb.String()).Str("id", req.ID).Msg("Dispatching call")
	return e.Decode(ctx, verb, req, out)
}

// encodeQuery renders a tagged struct as query parameters.
func encodeQuery(q any) (url.Values, error) {
	out := url.Values{}
	if err := queryEncoder.Encode(q, out); err != nil {
		return nil, err
	}
	return out, nil
}
