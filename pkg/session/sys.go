package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/d4rkfella/vaulted/internal/retry"
	"github.com/d4rkfella/vaulted/internal/util"
	"github.com/d4rkfella/vaulted/pkg/endpoint"
)

// Status is the seal status of the server.
type Status struct {
	Sealed      bool   `json:"sealed"`
	Initialized bool   `json:"initialized"`
	T           int    `json:"t"`
	N           int    `json:"n"`
	Progress    int    `json:"progress"`
	Nonce       string `json:"nonce"`
	Version     string `json:"version"`
	ClusterName string `json:"cluster_name"`
	ClusterID   string `json:"cluster_id"`
}

// Ready reports whether the server is initialized and unsealed.
func (s Status) Ready() bool { return s.Initialized && !s.Sealed }

// HealthQuery selects the status codes sys/health answers with.
type HealthQuery struct {
	StandbyOK     bool `schema:"standbyok,omitempty"`
	PerfStandbyOK bool `schema:"perfstandbyok,omitempty"`
	ActiveCode    int  `schema:"activecode,omitempty"`
	StandbyCode   int  `schema:"standbycode,omitempty"`
	SealedCode    int  `schema:"sealedcode,omitempty"`
	UninitCode    int  `schema:"uninitcode,omitempty"`
}

// DefaultHealthQuery answers 200 for every state so the body is always
// returned instead of an error status.
func DefaultHealthQuery() HealthQuery {
	return HealthQuery{StandbyOK: true, PerfStandbyOK: true, SealedCode: 200, UninitCode: 200}
}

// Health is the sys/health response.
type Health struct {
	Initialized   bool   `json:"initialized"`
	Sealed        bool   `json:"sealed"`
	Standby       bool   `json:"standby"`
	Version       string `json:"version"`
	ClusterName   string `json:"cluster_name"`
	ServerTimeUTC int64  `json:"server_time_utc"`
}

// InitResult holds the output of sys/init. Keys are also kept by the
// session.
type InitResult struct {
	Keys       []string `json:"keys"`
	KeysBase64 []string `json:"keys_base64"`
	RootToken  string   `json:"root_token"`
}

// Status fetches the seal status and caches it.
func (s *Session) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := s.call(ctx, "sys/seal-status", endpoint.VerbGet, endpoint.Request{}, &st); err != nil {
		return Status{}, fmt.Errorf("seal status: %w", err)
	}
	s.setStatus(st)
	return st, nil
}

// Health queries sys/health.
func (s *Session) Health(ctx context.Context, q HealthQuery) (Health, error) {
	query, err := encodeQuery(q)
	if err != nil {
		return Health{}, fmt.Errorf("encode health query: %w", err)
	}
	var h Health
	if err := s.call(ctx, "sys/health", endpoint.VerbGet, endpoint.Request{Query: query}, &h); err != nil {
		return Health{}, fmt.Errorf("health: %w", err)
	}
	return h, nil
}

// Initialized asks the server whether it has been initialized.
func (s *Session) Initialized(ctx context.Context) (bool, error) {
	var out struct {
		Initialized bool `json:"initialized"`
	}
	if err := s.call(ctx, "sys/init", endpoint.VerbGet, endpoint.Request{}, &out); err != nil {
		return false, fmt.Errorf("init status: %w", err)
	}
	return out.Initialized, nil
}

// Init initializes the server with shares key shares of which threshold are
// needed to unseal. The root token becomes the session token and the key
// shares are kept for Unseal.
func (s *Session) Init(ctx context.Context, shares, threshold int) (*InitResult, error) {
	req := endpoint.Request{Body: map[string]any{
		"secret_shares":    shares,
		"secret_threshold": threshold,
	}}
	var res InitResult
	if err := s.call(ctx, "sys/init", endpoint.VerbPut, req, &res); err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}

	s.SetToken(res.RootToken)
	s.SetKeys(res.Keys)

	s.mu.Lock()
	s.status.Initialized = true
	s.status.Sealed = true
	s.status.T = threshold
	s.status.N = shares
	s.mu.Unlock()

	log.Info().
		Str("component", "session").
		Int("shares", shares).
		Int("threshold", threshold).
		Str("root_token", util.RedactKey(res.RootToken)).
		Msg("Vault initialized")
	return &res, nil
}

// UnsealKey submits one key share.
func (s *Session) UnsealKey(ctx context.Context, key string) (Status, error) {
	var st Status
	req := endpoint.Request{Body: map[string]any{"key": key}}
	if err := s.call(ctx, "sys/unseal", endpoint.VerbPut, req, &st); err != nil {
		return Status{}, fmt.Errorf("unseal: %w", err)
	}
	s.setStatus(st)
	return st, nil
}

// Unseal submits the held key shares one at a time until the server reports
// unsealed. ErrStillSealed is returned with the last status if the shares run
// out first.
func (s *Session) Unseal(ctx context.Context) (Status, error) {
	keys := s.Keys()
	if len(keys) == 0 {
		return Status{}, ErrNoKeys
	}

	var st Status
	for i, key := range keys {
		var err error
		if st, err = s.UnsealKey(ctx, key); err != nil {
			return Status{}, err
		}
		log.Debug().
			Str("component", "session").
			Int("submitted", i+1).
			Int("progress", st.Progress).
			Int("threshold", st.T).
			Bool("sealed", st.Sealed).
			Msg("Key share submitted")
		if !st.Sealed {
			log.Info().Str("component", "session").Int("shares_used", i+1).Msg("Vault unsealed")
			return st, nil
		}
	}
	return st, ErrStillSealed
}

// Seal seals the server.
func (s *Session) Seal(ctx context.Context) error {
	if err := s.call(ctx, "sys/seal", endpoint.VerbPut, s.authed(endpoint.Request{}), nil); err != nil {
		return fmt.Errorf("seal: %w", err)
	}
	s.mu.Lock()
	s.status.Sealed = true
	s.status.Progress = 0
	s.mu.Unlock()
	log.Info().Str("component", "session").Msg("Vault sealed")
	return nil
}

var errNotReady = errors.New("server not ready")

// WaitReady polls the seal status with backoff until the server is
// initialized and unsealed. Validation and remote errors with a status code
// other than 5xx end the wait at once.
func (s *Session) WaitReady(ctx context.Context) (Status, error) {
	var st Status
	err := retry.Do(ctx, s.Retry, "wait-ready", func(ctx context.Context) error {
		var err error
		if st, err = s.Status(ctx); err != nil {
			return err
		}
		if !st.Ready() {
			return errNotReady
		}
		return nil
	}, func(err error) bool {
		if errors.Is(err, errNotReady) {
			return true
		}
		code := endpoint.StatusCode(err)
		return errors.Is(err, endpoint.ErrRemote) && (code == 0 || code >= 500)
	})
	if err != nil {
		return st, fmt.Errorf("wait for ready: %w", err)
	}
	return st, nil
}
