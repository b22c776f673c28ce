package session

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/require"

	"github.com/d4rkfella/vaulted/pkg/registry"
)

const rootToken = "hvs.test-root-token"

// fakeVault is a small in-memory stand-in for the parts of the Vault API the
// session talks to.
type fakeVault struct {
	mu          sync.Mutex
	initialized bool
	sealed      bool
	threshold   int
	shares      int
	progress    int
	keys        []string
	mounts      map[string]map[string]any
	policies    map[string]string
	auths       map[string]map[string]any
	audits      map[string]map[string]any
	secrets     map[string]map[string]any
	lastQuery   map[string][]string
	lastBody    map[string]any
	calls       map[string]int
}

func newFakeVault() *fakeVault {
	return &fakeVault{
		sealed: true,
		mounts: map[string]map[string]any{
			"secret/":    {"type": "kv", "description": "key/value secret storage", "options": map[string]string{"version": "1"}},
			"sys/":       {"type": "system", "description": "system endpoints"},
			"cubbyhole/": {"type": "cubbyhole", "description": "per-token private secret storage"},
		},
		policies: map[string]string{"default": `path "auth/token/lookup-self" { capabilities = ["read"] }`, "root": ""},
		auths:    map[string]map[string]any{"token/": {"type": "token", "description": "token based credentials"}},
		audits:   map[string]map[string]any{},
		secrets:  map[string]map[string]any{},
		calls:    map[string]int{},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeVault) status() map[string]any {
	return map[string]any{
		"sealed":       f.sealed,
		"initialized":  f.initialized,
		"t":            f.threshold,
		"n":            f.shares,
		"progress":     f.progress,
		"version":      "1.19.0",
		"cluster_name": "vault-cluster-test",
	}
}

// listing mirrors the sys listing shape: entries at the top level and again
// under "data".
func listing(entries map[string]map[string]any) map[string]any {
	out := map[string]any{"request_id": "r-1", "data": entries}
	for k, v := range entries {
		out[k] = v
	}
	return out
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	f.calls[r.Method+" "+path]++
	f.lastQuery = r.URL.Query()
	f.lastBody = nil
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
	}

	public := map[string]bool{"sys/seal-status": true, "sys/init": true, "sys/unseal": true, "sys/health": true}
	if !public[path] && r.Header.Get("X-Vault-Token") != rootToken {
		writeJSON(w, http.StatusForbidden, map[string]any{"errors": []string{"permission denied"}})
		return
	}

	switch {
	case path == "sys/seal-status":
		writeJSON(w, http.StatusOK, f.status())

	case path == "sys/health":
		writeJSON(w, http.StatusOK, map[string]any{
			"initialized": f.initialized, "sealed": f.sealed, "standby": false,
			"version": "1.19.0", "cluster_name": "vault-cluster-test", "server_time_utc": 1700000000,
		})

	case path == "sys/init" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"initialized": f.initialized})

	case path == "sys/init" && r.Method == http.MethodPut:
		if f.initialized {
			writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []string{"Vault is already initialized"}})
			return
		}
		f.shares = int(f.lastBody["secret_shares"].(float64))
		f.threshold = int(f.lastBody["secret_threshold"].(float64))
		f.keys = nil
		for i := 0; i < f.shares; i++ {
			f.keys = append(f.keys, "key-share-"+string(rune('a'+i)))
		}
		f.initialized = true
		writeJSON(w, http.StatusOK, map[string]any{"keys": f.keys, "keys_base64": f.keys, "root_token": rootToken})

	case path == "sys/unseal":
		key, _ := f.lastBody["key"].(string)
		valid := false
		for _, k := range f.keys {
			valid = valid || k == key
		}
		if !valid {
			writeJSON(w, http.StatusBadRequest, map[string]any{"errors": []string{"invalid key"}})
			return
		}
		f.progress++
		if f.progress >= f.threshold {
			f.sealed = false
			f.progress = 0
		}
		writeJSON(w, http.StatusOK, f.status())

	case path == "sys/seal":
		f.sealed = true
		w.WriteHeader(http.StatusNoContent)

	case path == "sys/mounts":
		writeJSON(w, http.StatusOK, listing(f.mounts))

	case strings.HasPrefix(path, "sys/mounts/"):
		name := strings.TrimPrefix(path, "sys/mounts/") + "/"
		if r.Method == http.MethodDelete {
			delete(f.mounts, name)
		} else {
			f.mounts[name] = map[string]any{"type": f.lastBody["type"], "description": f.lastBody["description"]}
		}
		w.WriteHeader(http.StatusNoContent)

	case path == "sys/policy":
		names := make([]string, 0, len(f.policies))
		for n := range f.policies {
			names = append(names, n)
		}
		writeJSON(w, http.StatusOK, map[string]any{"policies": names, "data": map[string]any{"policies": names}})

	case strings.HasPrefix(path, "sys/policy/"):
		name := strings.TrimPrefix(path, "sys/policy/")
		switch r.Method {
		case http.MethodGet:
			rules, ok := f.policies[name]
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]any{"errors": []string{}})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"name": name, "rules": rules})
		case http.MethodPut:
			f.policies[name], _ = f.lastBody["policy"].(string)
			w.WriteHeader(http.StatusNoContent)
		case http.MethodDelete:
			delete(f.policies, name)
			w.WriteHeader(http.StatusNoContent)
		}

	case path == "sys/auth":
		writeJSON(w, http.StatusOK, listing(f.auths))

	case strings.HasPrefix(path, "sys/auth/"):
		name := strings.TrimPrefix(path, "sys/auth/") + "/"
		if r.Method == http.MethodDelete {
			delete(f.auths, name)
		} else {
			f.auths[name] = map[string]any{"type": f.lastBody["type"]}
		}
		w.WriteHeader(http.StatusNoContent)

	case path == "sys/audit":
		writeJSON(w, http.StatusOK, listing(f.audits))

	case strings.HasPrefix(path, "sys/audit/"):
		name := strings.TrimPrefix(path, "sys/audit/") + "/"
		if r.Method == http.MethodDelete {
			delete(f.audits, name)
		} else {
			f.audits[name] = map[string]any{"type": f.lastBody["type"], "path": name, "options": f.lastBody["options"]}
		}
		w.WriteHeader(http.StatusNoContent)

	case path == "auth/token/create":
		policies := f.lastBody["policies"]
		writeJSON(w, http.StatusOK, map[string]any{"auth": map[string]any{
			"client_token": "hvs.child", "accessor": "acc-1", "policies": policies, "lease_duration": 3600, "renewable": true,
		}})

	case path == "auth/token/lookup-self":
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"id": rootToken, "policies": []string{"root"}}})

	case path == "auth/token/revoke":
		w.WriteHeader(http.StatusNoContent)

	case strings.HasPrefix(path, "transit/encrypt/"):
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ciphertext": "vault:v1:" + f.lastBody["plaintext"].(string)}})

	case strings.HasPrefix(path, "transit/decrypt/"):
		ct := strings.TrimPrefix(f.lastBody["ciphertext"].(string), "vault:v1:")
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"plaintext": ct}})

	case strings.HasPrefix(path, "transit/keys/"):
		w.WriteHeader(http.StatusNoContent)

	case strings.HasPrefix(path, "pki/roles/"):
		w.WriteHeader(http.StatusNoContent)

	case strings.HasPrefix(path, "pki/issue/"):
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"certificate": "-----BEGIN CERTIFICATE-----", "issuing_ca": "ca", "serial_number": "01:02", "expiration": 1700000000,
		}})

	case path == "consul/config/access":
		w.WriteHeader(http.StatusNoContent)

	case strings.HasPrefix(path, "consul/roles/"):
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"policies": []string{"global-management"}, "token_type": "client"}})
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case strings.HasPrefix(path, "consul/creds/"):
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"token": "consul-token"}})

	case strings.HasPrefix(path, "secret/"):
		key := strings.TrimPrefix(path, "secret/")
		switch r.Method {
		case http.MethodGet:
			if r.URL.Query().Get("list") == "true" {
				var keys []string
				for k := range f.secrets {
					if rest, ok := strings.CutPrefix(k, key+"/"); ok {
						keys = append(keys, rest)
					}
				}
				writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"keys": keys}})
				return
			}
			data, ok := f.secrets[key]
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]any{"errors": []string{}})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"lease_duration": 2764800, "data": data})
		case http.MethodPut:
			f.secrets[key] = f.lastBody
			w.WriteHeader(http.StatusNoContent)
		case http.MethodDelete:
			delete(f.secrets, key)
			w.WriteHeader(http.StatusNoContent)
		}

	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"errors": []string{"no handler for route " + path}})
	}
}

func (f *fakeVault) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func newTestSession(t *testing.T) (*Session, *fakeVault) {
	t.Helper()
	fv := newFakeVault()
	srv := httptest.NewServer(fv)
	t.Cleanup(srv.Close)

	cfg := api.DefaultConfig()
	cfg.Address = srv.URL
	cfg.MaxRetries = 0
	client, err := api.NewClient(cfg)
	require.NoError(t, err)
	client.ClearToken()

	reg, err := registry.LoadDefault(registry.Options{Address: srv.URL, Transport: client})
	require.NoError(t, err)
	return New(reg, ""), fv
}
