package endpoint

import (
	"fmt"
	"maps"
	"net/http"
	"net/url"

	"github.com/hashicorp/vault/api"
)

// AuthHeader is the header carrying the session token.
const AuthHeader = api.AuthHeaderName

// Request holds everything a single call needs. A nil Headers field means the
// call is unauthenticated; any non-nil value (even empty) asks the header
// check to enforce a token.
//
// Token, Override and RequiredPath only steer validation and are cleared
// before the request is built.
type Request struct {
	ID      string
	Body    map[string]any
	Query   url.Values
	Headers http.Header

	Token        string
	Override     bool
	RequiredPath string

	// Method is filled in by dispatch.
	Method Verb
}

// Authenticated returns a copy of r carrying token, so the header check runs.
func (r Request) Authenticated(token string) Request {
	if r.Headers == nil {
		r.Headers = http.Header{}
	}
	r.Token = token
	return r
}

// clone copies the maps a validator might touch so the caller's value is
// never changed.
func (r Request) clone() Request {
	if r.Headers != nil {
		r.Headers = r.Headers.Clone()
	}
	if r.Query != nil {
		r.Query = maps.Clone(r.Query)
	}
	return r
}

// build turns a validated request into the transport's request type.
func (e *Endpoint) build(req Request) (*api.Request, error) {
	u, err := url.Parse(e.URI(req))
	if err != nil {
		return nil, fmt.Errorf("parse url for %s: %w", e.name, err)
	}

	out := &api.Request{
		Method:  req.Method.String(),
		URL:     u,
		Params:  make(url.Values, len(req.Query)),
		Headers: make(http.Header, len(req.Headers)),
	}
	for k, vs := range req.Query {
		out.Params[k] = append([]string(nil), vs...)
	}
	for k, vs := range req.Headers {
		out.Headers[k] = append([]string(nil), vs...)
	}

	if req.Body != nil && req.Method != VerbGet {
		if err := out.SetJSONBody(req.Body); err != nil {
			return nil, fmt.Errorf("encode body for %s: %w", e.name, err)
		}
	}
	return out, nil
}
