package endpoint

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderCheck(t *testing.T) {
	t.Run("unauthenticated call passes untouched", func(t *testing.T) {
		out, err := HeaderCheck("sys/health", VerbSpec{}, Request{Token: "ignored"})
		require.NoError(t, err)
		assert.Nil(t, out.Headers)
	})

	t.Run("token moves into header", func(t *testing.T) {
		out, err := HeaderCheck("sys/mounts", VerbSpec{}, Request{Headers: http.Header{}, Token: "s.root"})
		require.NoError(t, err)
		assert.Equal(t, "s.root", out.Headers.Get(AuthHeader))
		assert.Empty(t, out.Token)
	})

	t.Run("existing header is kept", func(t *testing.T) {
		h := http.Header{}
		h.Set(AuthHeader, "s.session")
		out, err := HeaderCheck("sys/mounts", VerbSpec{}, Request{Headers: h})
		require.NoError(t, err)
		assert.Equal(t, "s.session", out.Headers.Get(AuthHeader))
	})

	t.Run("other headers satisfy the check without a token", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-Vault-Namespace", "team")
		out, err := HeaderCheck("secret/:id", VerbSpec{}, Request{Headers: h})
		require.NoError(t, err)
		assert.Equal(t, "team", out.Headers.Get("X-Vault-Namespace"))
		assert.Empty(t, out.Headers.Get(AuthHeader))
	})

	t.Run("empty headers without token fail", func(t *testing.T) {
		_, err := HeaderCheck("sys/mounts", VerbSpec{}, Request{Headers: http.Header{}})
		require.Error(t, err)
		var tokenErr *MissingAuthTokenError
		require.ErrorAs(t, err, &tokenErr)
		assert.Equal(t, "sys/mounts", tokenErr.Endpoint)
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestIDCheck(t *testing.T) {
	tests := []struct {
		name    string
		spec    VerbSpec
		req     Request
		wantErr bool
	}{
		{"not required", VerbSpec{}, Request{}, false},
		{"required and present", VerbSpec{IDRequired: true}, Request{ID: "foo"}, false},
		{"required and missing", VerbSpec{IDRequired: true}, Request{}, true},
		{"required and blank", VerbSpec{IDRequired: true}, Request{ID: "  "}, true},
		{"one-off sentinel", VerbSpec{}, Request{RequiredPath: RequireID}, true},
		{"one-off sentinel satisfied", VerbSpec{}, Request{RequiredPath: RequireID, ID: "x"}, false},
		{"other path ignored", VerbSpec{}, Request{RequiredPath: "options.path"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := IDCheck("secret/:id", tt.spec, tt.req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
				assert.IsType(t, &MissingIdentifierError{}, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBodyCheck(t *testing.T) {
	spec := VerbSpec{Params: []Param{
		{Name: "type", Required: true},
		{Name: "description"},
		{Name: "options"},
	}}

	tests := []struct {
		name      string
		spec      VerbSpec
		req       Request
		wantParam string
	}{
		{"required present", spec, Request{Body: map[string]any{"type": "file"}}, ""},
		{"required missing", spec, Request{Body: map[string]any{"description": "x"}}, "type"},
		{"required falsy", spec, Request{Body: map[string]any{"type": ""}}, "type"},
		{"nil body", spec, Request{}, "type"},
		{"override bypasses required", spec, Request{Override: true}, ""},
		{"no params skips everything", VerbSpec{}, Request{RequiredPath: "options.path"}, ""},
		{
			"one-off path satisfied",
			spec,
			Request{RequiredPath: "options.path", Body: map[string]any{"type": "file", "options": map[string]any{"path": "/var/log/audit"}}},
			"",
		},
		{
			"one-off path missing",
			spec,
			Request{RequiredPath: "options.path", Body: map[string]any{"type": "file", "options": map[string]any{}}},
			"options.path",
		},
		{
			"one-off path not bypassed by override",
			spec,
			Request{Override: true, RequiredPath: "options.path", Body: map[string]any{}},
			"options.path",
		},
		{"id sentinel ignored", spec, Request{RequiredPath: RequireID, Body: map[string]any{"type": "file"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := BodyCheck("sys/audit/:id", tt.spec, tt.req)
			assert.False(t, out.Override)
			assert.Empty(t, out.RequiredPath)
			if tt.wantParam == "" {
				assert.NoError(t, err)
				return
			}
			var paramErr *MissingParameterError
			require.ErrorAs(t, err, &paramErr)
			assert.Equal(t, tt.wantParam, paramErr.Parameter)
			assert.Contains(t, err.Error(), tt.wantParam)
		})
	}
}

func TestTruthy(t *testing.T) {
	var nilMap map[string]any
	var nilPtr *int

	falsy := []any{nil, false, "", 0, 0.0, int64(0), []string{}, map[string]any{}, nilMap, nilPtr}
	for _, v := range falsy {
		assert.False(t, Truthy(v), "%#v", v)
	}

	one := 1
	truthy := []any{true, "x", 1, -1, 0.5, []string{"a"}, map[string]any{"k": nil}, &one}
	for _, v := range truthy {
		assert.True(t, Truthy(v), "%#v", v)
	}
}

func TestLookup(t *testing.T) {
	body := map[string]any{
		"options": map[string]any{"path": "/tmp/audit.log", "nested": map[string]any{"deep": 1}},
		"flat":    "x",
	}

	v, ok := Lookup(body, "options.path")
	assert.True(t, ok)
	assert.Equal(t, "/tmp/audit.log", v)

	v, ok = Lookup(body, "options.nested.deep")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = Lookup(body, "flat.child")
	assert.False(t, ok)

	_, ok = Lookup(body, "missing")
	assert.False(t, ok)

	_, ok = Lookup(nil, "anything")
	assert.False(t, ok)
}
