package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d4rkfella/vaulted/pkg/endpoint"
)

var testOpts = Options{Address: "http://127.0.0.1:8200"}

const smallCatalog = `
v1:
  "secret/:id":
    verbs:
      GET: {id: true}
      PUT: {id: true, params: [{name: value, required: false}]}
      DELETE: {id: true}
  "sys/seal-status":
    verbs:
      GET: {}
backends:
  transit:
    "keys/:id":
      verbs:
        POST: {id: true}
    "encrypt/:id":
      verbs:
        POST: {id: true, params: [{name: plaintext, required: true}]}
`

func TestLoad(t *testing.T) {
	reg, err := Load(strings.NewReader(smallCatalog), testOpts)
	require.NoError(t, err)

	assert.Equal(t, []string{"secret/:id", "sys/seal-status"}, reg.Names())
	assert.Equal(t, "v1", reg.Version())
	assert.Equal(t, []string{"transit"}, reg.Backends())

	e, err := reg.Get("secret/:id")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8200/v1/secret/foo", e.URI(endpoint.Request{ID: "foo"}))

	spec, ok := e.Spec(endpoint.VerbPut)
	require.True(t, ok)
	assert.True(t, spec.IDRequired)
	assert.Equal(t, []endpoint.Param{{Name: "value"}}, spec.Params)
}

func TestLoad_JSON(t *testing.T) {
	doc := `{"v1": {"sys/health": {"verbs": {"GET": {}}}}}`
	reg, err := Load(strings.NewReader(doc), testOpts)
	require.NoError(t, err)
	assert.Equal(t, []string{"sys/health"}, reg.Names())
}

func TestLoad_Idempotent(t *testing.T) {
	first, err := LoadDefault(testOpts)
	require.NoError(t, err)
	second, err := LoadDefault(testOpts)
	require.NoError(t, err)

	require.Equal(t, first.Names(), second.Names())
	for _, name := range first.Names() {
		a, _ := first.Get(name)
		b, _ := second.Get(name)
		assert.Equal(t, a.Verbs(), b.Verbs(), name)
		assert.Equal(t, a.URI(endpoint.Request{ID: "x"}), b.URI(endpoint.Request{ID: "x"}), name)
		for _, v := range a.Verbs() {
			sa, _ := a.Spec(v)
			sb, _ := b.Spec(v)
			assert.Equal(t, sa, sb, "%s %s", name, v)
		}
	}
}

func TestLoad_DefaultCatalog(t *testing.T) {
	reg, err := LoadDefault(testOpts)
	require.NoError(t, err)

	for _, name := range []string{
		"sys/init", "sys/seal-status", "sys/seal", "sys/unseal", "sys/health",
		"sys/mounts", "sys/mounts/:id", "sys/policy", "sys/policy/:id",
		"sys/auth", "sys/auth/:id", "sys/audit", "sys/audit/:id",
		"sys/leases/lookup", "auth/token/create", "auth/token/lookup-self", "secret/:id",
	} {
		_, err := reg.Get(name)
		assert.NoError(t, err, name)
	}
	assert.ElementsMatch(t, []string{"consul", "kv", "pki", "transit"}, reg.Backends())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		opts    Options
		message string
	}{
		{"unparseable", "v1: [", testOpts, "parse catalog"},
		{"empty document", "", testOpts, "catalog is empty"},
		{"missing version", `v2: {"sys/health": {verbs: {GET: {}}}}`, testOpts, `no "v1" section`},
		{"empty version", "v1: {}", testOpts, `"v1" is empty`},
		{"no verbs", `v1: {"sys/health": {verbs: {}}}`, testOpts, "sys/health"},
		{"bad verb", `v1: {"sys/health": {verbs: {PATCH: {}}}}`, testOpts, "oneof"},
		{"param without name", `v1: {"sys/init": {verbs: {PUT: {params: [{required: true}]}}}}`, testOpts, "Name"},
		{"duplicate param", `v1: {"sys/init": {verbs: {PUT: {params: [{name: a}, {name: a}]}}}}`, testOpts, "unique"},
		{"unknown field", `v1: {"sys/health": {verbs: {GET: {}}, methods: [GET]}}`, testOpts, "parse catalog"},
		{"two placeholders", `v1: {":id/x/:id": {verbs: {GET: {}}}}`, testOpts, "placeholders"},
		{"no address", `v1: {"sys/health": {verbs: {GET: {}}}}`, Options{}, "base url"},
		{"bad backend", `{v1: {"sys/health": {verbs: {GET: {}}}}, backends: {pki: {"ca": {verbs: {}}}}}`, testOpts, "backends.pki.ca"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.doc), tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, endpoint.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(smallCatalog), 0o600))

	reg, err := LoadFile(path, testOpts)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), testOpts)
	assert.ErrorIs(t, err, endpoint.ErrConfiguration)

	reg, err = LoadFile("", testOpts)
	require.NoError(t, err)
	assert.Greater(t, reg.Len(), 2)
}

func TestGet_Lookup(t *testing.T) {
	reg, err := Load(strings.NewReader(smallCatalog), testOpts)
	require.NoError(t, err)

	_, err = reg.Get("")
	assert.ErrorIs(t, err, endpoint.ErrLookup)

	_, err = reg.Get("sys/nope")
	assert.ErrorIs(t, err, endpoint.ErrLookup)
	assert.Contains(t, err.Error(), "sys/nope")
}

func TestWithBackend(t *testing.T) {
	base, err := Load(strings.NewReader(smallCatalog), testOpts)
	require.NoError(t, err)

	mounted, err := base.WithBackend("/crypto/", "transit")
	require.NoError(t, err)

	assert.Equal(t, []string{"secret/:id", "sys/seal-status"}, base.Names(), "receiver must not change")
	assert.Equal(t, []string{"crypto/encrypt/:id", "crypto/keys/:id", "secret/:id", "sys/seal-status"}, mounted.Names())
	assert.Equal(t, map[string]string{"crypto": "transit"}, mounted.Mounts())
	assert.Equal(t, []string{"crypto"}, mounted.MountedAs("transit"))

	e, err := mounted.Get("crypto/encrypt/:id")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8200/v1/crypto/encrypt/app", e.URI(endpoint.Request{ID: "app"}))

	_, err = e.Prepare(endpoint.VerbPost, endpoint.Request{ID: "app", Body: map[string]any{}}.Authenticated("t"))
	assert.ErrorIs(t, err, endpoint.ErrValidation)

	unmounted := mounted.WithoutBackend("crypto")
	assert.Equal(t, base.Names(), unmounted.Names())
	assert.Empty(t, unmounted.Mounts())
	assert.Len(t, mounted.Names(), 4, "receiver must not change")
}

func TestWithBackend_UnknownTypeAndCollisions(t *testing.T) {
	base, err := Load(strings.NewReader(smallCatalog), testOpts)
	require.NoError(t, err)

	ssh, err := base.WithBackend("ssh", "ssh")
	require.NoError(t, err)
	assert.Equal(t, base.Names(), ssh.Names())
	assert.Equal(t, "ssh", ssh.Mounts()["ssh"])

	_, err = base.WithBackend("", "transit")
	assert.ErrorIs(t, err, endpoint.ErrConfiguration)

	full, err := LoadDefault(testOpts)
	require.NoError(t, err)
	kv, err := full.WithBackend("secret", "kv")
	require.NoError(t, err)
	_, err = kv.Get("secret/data/:id")
	assert.NoError(t, err)

	// the core secret endpoint survives unmounting the kv set on top of it
	back := kv.WithoutBackend("secret")
	_, err = back.Get("secret/:id")
	assert.NoError(t, err)
	_, err = back.Get("secret/data/:id")
	assert.ErrorIs(t, err, endpoint.ErrLookup)
}
