package endpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog/log"
)

// Placeholder is the path segment replaced by a request's ID.
const Placeholder = ":id"

// Transport issues a built request. *api.Client satisfies it.
type Transport interface {
	RawRequestWithContext(ctx context.Context, r *api.Request) (*api.Response, error)
}

var _ Transport = (*api.Client)(nil)

// Definition is the static description of one route.
type Definition struct {
	// Name is the path template and doubles as the registry key.
	Name  string
	Verbs map[Verb]VerbSpec
}

// Endpoint is a callable route. It is safe for concurrent use once its
// validators are attached.
type Endpoint struct {
	name      string
	baseURL   string
	defaults  Defaults
	verbs     map[Verb]VerbSpec
	chain     []Validator
	transport Transport
}

// Result is delivered by Async.
type Result struct {
	Body map[string]any
	Err  error
}

// New builds an endpoint for def. The validation chain starts empty.
func New(def Definition, baseURL string, defaults Defaults, transport Transport) (*Endpoint, error) {
	if strings.TrimSpace(def.Name) == "" {
		return nil, NewConfigurationError("", "endpoint name is empty", nil)
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, NewConfigurationError(def.Name, "base url is empty", nil)
	}
	if len(def.Verbs) == 0 {
		return nil, NewConfigurationError(def.Name, "no verbs declared", nil)
	}
	for v := range def.Verbs {
		if !v.IsValid() {
			return nil, NewConfigurationError(def.Name, fmt.Sprintf("unknown verb %q", v), nil)
		}
	}
	if n := placeholderCount(def.Name); n > 1 {
		return nil, NewConfigurationError(def.Name, fmt.Sprintf("path has %d id placeholders, at most one allowed", n), nil)
	}

	return &Endpoint{
		name:      def.Name,
		baseURL:   strings.TrimRight(baseURL, "/"),
		defaults:  defaults,
		verbs:     cloneVerbs(def.Verbs),
		transport: transport,
	}, nil
}

func isPlaceholder(seg string) bool {
	return strings.EqualFold(seg, Placeholder)
}

func placeholderCount(template string) int {
	n := 0
	for _, seg := range strings.Split(template, "/") {
		if isPlaceholder(seg) {
			n++
		}
	}
	return n
}

// Use appends v to the validation chain.
func (e *Endpoint) Use(v Validator) *Endpoint {
	e.chain = append(e.chain, v)
	return e
}

// Name returns the path template the endpoint was registered under.
func (e *Endpoint) Name() string { return e.name }

// BaseURL returns the scheme, host and version prefix requests go to.
func (e *Endpoint) BaseURL() string { return e.baseURL }

// Defaults returns the connection settings the endpoint was built with.
func (e *Endpoint) Defaults() Defaults { return e.defaults }

// Spec returns the metadata for verb.
func (e *Endpoint) Spec(verb Verb) (VerbSpec, bool) {
	s, ok := e.verbs[verb]
	return s, ok
}

// Verbs returns the declared verbs in GET, POST, PUT, DELETE order.
func (e *Endpoint) Verbs() []Verb {
	out := make([]Verb, 0, len(e.verbs))
	for _, v := range Verbs {
		if _, ok := e.verbs[v]; ok {
			out = append(out, v)
		}
	}
	return out
}

// HasPlaceholder reports whether the template takes an id.
func (e *Endpoint) HasPlaceholder() bool {
	return placeholderCount(e.name) > 0
}

// URI resolves the template for req. A non-empty ID replaces the placeholder
// segment; without one the placeholder and its separator are dropped. Each
// '/'-separated part of the ID is path-escaped and dot segments are encoded,
// so an ID never leaves its template.
func (e *Endpoint) URI(req Request) string {
	id := strings.TrimSpace(req.ID)
	var out []string
	for _, seg := range strings.Split(e.name, "/") {
		switch {
		case seg == "":
		case isPlaceholder(seg):
			for _, part := range strings.Split(id, "/") {
				if part != "" {
					out = append(out, escapeSegment(part))
				}
			}
		default:
			out = append(out, seg)
		}
	}
	return e.baseURL + "/" + strings.Join(out, "/")
}

func escapeSegment(part string) string {
	switch part {
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}
	return url.PathEscape(part)
}

// Get is Call with GET.
func (e *Endpoint) Get(ctx context.Context, req Request) (map[string]any, error) {
	return e.Call(ctx, VerbGet, req)
}

// Post is Call with POST.
func (e *Endpoint) Post(ctx context.Context, req Request) (map[string]any, error) {
	return e.Call(ctx, VerbPost, req)
}

// Put is Call with PUT.
func (e *Endpoint) Put(ctx context.Context, req Request) (map[string]any, error) {
	return e.Call(ctx, VerbPut, req)
}

// Delete is Call with DELETE.
func (e *Endpoint) Delete(ctx context.Context, req Request) (map[string]any, error) {
	return e.Call(ctx, VerbDelete, req)
}

// Call validates req, issues it with verb and returns the decoded JSON body.
// Responses without a body yield a nil map.
func (e *Endpoint) Call(ctx context.Context, verb Verb, req Request) (map[string]any, error) {
	var body map[string]any
	if err := e.Decode(ctx, verb, req, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// Async runs Call in its own goroutine. The channel yields exactly one
// Result and is then closed.
func (e *Endpoint) Async(ctx context.Context, verb Verb, req Request) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		body, err := e.Call(ctx, verb, req)
		ch <- Result{Body: body, Err: err}
	}()
	return ch
}

// Decode is Call with the response body decoded into out. out is left
// untouched when the response has no body.
func (e *Endpoint) Decode(ctx context.Context, verb Verb, req Request, out any) error {
	resp, err := e.do(ctx, verb, req)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := resp.DecodeJSON(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s response: %w", verb, e.name, err)
	}
	return nil
}

// Prepare runs the validation chain for verb and returns the request that
// would be sent, without sending it.
func (e *Endpoint) Prepare(verb Verb, req Request) (*api.Request, error) {
	spec, ok := e.verbs[verb]
	if !ok {
		return nil, &UnsupportedVerbError{Endpoint: e.name, Verb: verb}
	}
	req = req.clone()
	for _, v := range e.chain {
		var err error
		if req, err = v(e.name, spec, req); err != nil {
			return nil, err
		}
	}
	req.Method = verb
	return e.build(req)
}

func (e *Endpoint) do(ctx context.Context, verb Verb, req Request) (*api.Response, error) {
	logger := log.With().
		Str("component", "endpoint").
		Str("endpoint", e.name).
		Str("verb", verb.String()).
		Logger()

	r, err := e.Prepare(verb, req)
	if err != nil {
		reason := "validation"
		if errors.Is(err, ErrUnsupportedVerb) {
			reason = "unsupported_verb"
		}
		recordRejected(e.name, verb, reason)
		logger.Debug().Err(err).Msg("Call rejected before dispatch")
		return nil, err
	}
	if e.transport == nil {
		return nil, NewConfigurationError(e.name, "no transport configured", nil)
	}

	start := time.Now()
	resp, err := e.transport.RawRequestWithContext(ctx, r)
	elapsed := time.Since(start)

	code := 0
	if resp != nil {
		code = resp.StatusCode
	}
	recordCall(e.name, verb, code, err, elapsed)

	if err != nil {
		remote := newRemoteError(r.Method, r.URL.String(), err)
		if resp != nil {
			if remote.StatusCode == 0 {
				remote.StatusCode = resp.StatusCode
			}
			if resp.Body != nil {
				remote.Body, _ = io.ReadAll(resp.Body)
			}
		}
		logger.Debug().Err(err).Int("status", code).Dur("duration", elapsed).Msg("Call failed")
		return resp, remote
	}

	logger.Debug().Int("status", code).Dur("duration", elapsed).Msg("Call completed")
	return resp, nil
}
