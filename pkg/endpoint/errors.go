package endpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/vault/api"
)

// Sentinel errors. Every concrete error type below matches exactly one of
// these through errors.Is, so callers can branch on the class of failure
// without type switches.
var (
	// ErrConfiguration marks a malformed catalog or endpoint definition.
	ErrConfiguration = errors.New("endpoint: invalid configuration")

	// ErrLookup marks an unknown endpoint name.
	ErrLookup = errors.New("endpoint: not found")

	// ErrUnsupportedVerb marks a verb the endpoint does not declare.
	ErrUnsupportedVerb = errors.New("endpoint: unsupported verb")

	// ErrValidation is the umbrella for every pre-flight validation failure.
	ErrValidation = errors.New("endpoint: validation failed")

	// ErrRemote marks a failure reported by the transport or the remote service.
	ErrRemote = errors.New("endpoint: remote error")
)

// ConfigurationError is returned when a catalog or endpoint cannot be built.
type ConfigurationError struct {
	Name   string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration error")
	if e.Name != "" {
		fmt.Fprintf(&sb, " for %q", e.Name)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NewConfigurationError builds a ConfigurationError for name.
func NewConfigurationError(name, reason string, err error) *ConfigurationError {
	return &ConfigurationError{Name: name, Reason: reason, Err: err}
}

// LookupError is returned when a name does not resolve to an endpoint.
type LookupError struct {
	Name string
}

func (e *LookupError) Error() string {
	if e.Name == "" {
		return "endpoint name must be a non-empty string"
	}
	return fmt.Sprintf("no endpoint registered under %q", e.Name)
}

func (e *LookupError) Is(target error) bool { return target == ErrLookup }

// UnsupportedVerbError is returned when an endpoint is called with a verb it
// does not declare.
type UnsupportedVerbError struct {
	Endpoint string
	Verb     Verb
}

func (e *UnsupportedVerbError) Error() string {
	return fmt.Sprintf("endpoint %q does not support %s", e.Endpoint, e.Verb)
}

func (e *UnsupportedVerbError) Is(target error) bool { return target == ErrUnsupportedVerb }

// MissingAuthTokenError is returned when an authenticated call carries no
// token.
type MissingAuthTokenError struct {
	Endpoint string
}

func (e *MissingAuthTokenError) Error() string {
	return fmt.Sprintf("endpoint %q requires an auth token but none was supplied", e.Endpoint)
}

func (e *MissingAuthTokenError) Is(target error) bool { return target == ErrValidation }

// MissingIdentifierError is returned when a call needs an id and has none.
type MissingIdentifierError struct {
	Endpoint string
}

func (e *MissingIdentifierError) Error() string {
	return fmt.Sprintf("endpoint %q requires an id", e.Endpoint)
}

func (e *MissingIdentifierError) Is(target error) bool { return target == ErrValidation }

// MissingParameterError is returned when a required body parameter is absent
// or empty.
type MissingParameterError struct {
	Endpoint  string
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("endpoint %q requires body parameter %q", e.Endpoint, e.Parameter)
}

func (e *MissingParameterError) Is(target error) bool { return target == ErrValidation }

// RemoteError wraps anything the transport or the remote service returned:
// non-2xx responses and connection failures alike. StatusCode is zero when no
// response was received.
type RemoteError struct {
	Method     string
	URL        string
	StatusCode int
	Errors     []string
	Body       []byte
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	if len(e.Errors) == 0 {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, strings.Join(e.Errors, "; "))
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// newRemoteError converts a transport failure into a RemoteError, keeping the
// status code and decoded error list from an *api.ResponseError.
func newRemoteError(method, url string, err error) *RemoteError {
	re := &RemoteError{Method: method, URL: url, Err: err}
	var respErr *api.ResponseError
	if errors.As(err, &respErr) {
		re.StatusCode = respErr.StatusCode
		re.Errors = append([]string(nil), respErr.Errors...)
	}
	return re
}

// StatusCode returns the HTTP status carried by err, or zero.
func StatusCode(err error) int {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}
