package endpoint

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
)

func TestErrorClasses(t *testing.T) {
	tests := []struct {
		err      error
		sentinel error
		contains string
	}{
		{NewConfigurationError("sys/x", "no verbs declared", nil), ErrConfiguration, `"sys/x"`},
		{&LookupError{Name: "nope"}, ErrLookup, `"nope"`},
		{&LookupError{}, ErrLookup, "non-empty"},
		{&UnsupportedVerbError{Endpoint: "sys/health", Verb: VerbDelete}, ErrUnsupportedVerb, "DELETE"},
		{&MissingAuthTokenError{Endpoint: "sys/mounts"}, ErrValidation, "auth token"},
		{&MissingIdentifierError{Endpoint: "secret/:id"}, ErrValidation, "requires an id"},
		{&MissingParameterError{Endpoint: "sys/init", Parameter: "secret_shares"}, ErrValidation, "secret_shares"},
		{&RemoteError{Method: "GET", URL: "http://x/v1/a", StatusCode: 500}, ErrRemote, "status 500"},
	}

	all := []error{ErrConfiguration, ErrLookup, ErrUnsupportedVerb, ErrValidation, ErrRemote}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T", tt.err), func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			for _, s := range all {
				assert.Equal(t, s == tt.sentinel, errors.Is(wrapped, s), "sentinel %v", s)
			}
			assert.Contains(t, tt.err.Error(), tt.contains)
		})
	}
}

func TestConfigurationError_Unwrap(t *testing.T) {
	cause := errors.New("yaml: line 3")
	err := NewConfigurationError("", "parse catalog", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "configuration error: parse catalog: yaml: line 3", err.Error())
}

func TestNewRemoteError_ResponseError(t *testing.T) {
	respErr := &api.ResponseError{StatusCode: 400, Errors: []string{"missing client token"}}
	err := newRemoteError("PUT", "http://x/v1/sys/policy/a", fmt.Errorf("wrapped: %w", respErr))

	assert.Equal(t, 400, err.StatusCode)
	assert.Equal(t, []string{"missing client token"}, err.Errors)
	assert.Equal(t, 400, StatusCode(fmt.Errorf("call: %w", err)))
	assert.ErrorIs(t, err, respErr)
	assert.Equal(t, "PUT http://x/v1/sys/policy/a: status 400: missing client token", err.Error())
}
