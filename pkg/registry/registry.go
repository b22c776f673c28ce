// Package registry turns an endpoint catalog into callable endpoints.
//
// A Registry is an immutable snapshot. Mounting or unmounting a backend
// produces a new snapshot and leaves the receiver untouched, so a snapshot
// can be shared between goroutines without locking.
package registry

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/d4rkfella/vaulted/pkg/endpoint"
)

// DefaultVersion is the API version prefix used when Options.Version is empty.
const DefaultVersion = "v1"

// Options configure how endpoints are built from a catalog.
type Options struct {
	// Address is the scheme and host of the remote service.
	Address   string
	Version   string
	Defaults  endpoint.Defaults
	Transport endpoint.Transport
}

func (o Options) version() string {
	if o.Version == "" {
		return DefaultVersion
	}
	return o.Version
}

// BaseURL is the address joined with the version prefix.
func (o Options) BaseURL() string {
	if o.Address == "" {
		return ""
	}
	return strings.TrimRight(o.Address, "/") + "/" + strings.Trim(o.version(), "/")
}

// Registry resolves endpoint names to endpoints.
type Registry struct {
	opts      Options
	catalog   *Catalog
	endpoints map[string]*endpoint.Endpoint
	// mounts records which endpoint names each mounted backend added.
	mounts map[string]mount
}

type mount struct {
	backend string
	names   []string
}

// Load parses a catalog from r and builds a registry from it.
func Load(r io.Reader, opts Options) (*Registry, error) {
	c, err := Parse(r)
	if err != nil {
		return nil, err
	}
	return New(c, opts)
}

// LoadFile loads the catalog at path. An empty path selects the embedded
// default catalog.
func LoadFile(path string, opts Options) (*Registry, error) {
	if path == "" {
		return LoadDefault(opts)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, endpoint.NewConfigurationError("", "read catalog "+path, err)
	}
	return Load(bytes.NewReader(data), opts)
}

// LoadDefault builds a registry from the embedded catalog.
func LoadDefault(opts Options) (*Registry, error) {
	return Load(bytes.NewReader(defaultCatalog), opts)
}

// New builds a registry for the version selected in opts. Every endpoint gets
// the header, id and body checks, in that order.
func New(c *Catalog, opts Options) (*Registry, error) {
	version := opts.version()
	eps, ok := c.Versions[version]
	if !ok {
		return nil, endpoint.NewConfigurationError("", fmt.Sprintf("catalog has no %q section", version), nil)
	}
	if len(eps) == 0 {
		return nil, endpoint.NewConfigurationError("", fmt.Sprintf("catalog section %q is empty", version), nil)
	}

	reg := &Registry{
		opts:      opts,
		catalog:   c,
		endpoints: make(map[string]*endpoint.Endpoint, len(eps)),
		mounts:    map[string]mount{},
	}
	for name, doc := range eps {
		e, err := reg.build(doc.Definition(name))
		if err != nil {
			return nil, err
		}
		reg.endpoints[name] = e
	}

	log.Debug().
		Str("component", "registry").
		Str("version", version).
		Int("endpoints", len(reg.endpoints)).
		Msg("Endpoint catalog loaded")
	return reg, nil
}

func (r *Registry) build(def endpoint.Definition) (*endpoint.Endpoint, error) {
	e, err := endpoint.New(def, r.opts.BaseURL(), r.opts.Defaults, r.opts.Transport)
	if err != nil {
		return nil, err
	}
	return e.Use(endpoint.HeaderCheck).Use(endpoint.IDCheck).Use(endpoint.BodyCheck), nil
}

// Get returns the endpoint registered under name.
func (r *Registry) Get(name string) (*endpoint.Endpoint, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &endpoint.LookupError{}
	}
	e, ok := r.endpoints[name]
	if !ok {
		return nil, &endpoint.LookupError{Name: name}
	}
	return e, nil
}

// Names returns every registered endpoint name, sorted.
func (r *Registry) Names() []string {
	return sortedKeys(r.endpoints)
}

func (r *Registry) Len() int { return len(r.endpoints) }

func (r *Registry) Version() string { return r.opts.version() }

func (r *Registry) Options() Options { return r.opts }

// Backends lists the backend types the catalog has endpoint sets for.
func (r *Registry) Backends() []string {
	return sortedKeys(r.catalog.Backends)
}

// Mounts maps each mounted path to its backend type.
func (r *Registry) Mounts() map[string]string {
	out := make(map[string]string, len(r.mounts))
	for p, m := range r.mounts {
		out[p] = m.backend
	}
	return out
}

// WithBackend returns a new registry that also serves the catalog's endpoint
// set for backend, with every name prefixed by mountPath. Names that already
// exist keep their current endpoint. Backends without an endpoint set are
// recorded but add nothing.
func (r *Registry) WithBackend(mountPath, backend string) (*Registry, error) {
	mountPath = strings.Trim(mountPath, "/")
	if mountPath == "" {
		return nil, endpoint.NewConfigurationError("", "mount path is empty", nil)
	}

	next := r.without(mountPath)
	set := r.catalog.Backends[backend]
	m := mount{backend: backend}
	for _, suffix := range sortedKeys(set) {
		name := mountPath + "/" + strings.TrimLeft(suffix, "/")
		if _, taken := next.endpoints[name]; taken {
			log.Debug().Str("component", "registry").Str("endpoint", name).Msg("Endpoint already registered, keeping existing")
			continue
		}
		e, err := next.build(set[suffix].Definition(name))
		if err != nil {
			return nil, err
		}
		next.endpoints[name] = e
		m.names = append(m.names, name)
	}
	next.mounts[mountPath] = m

	log.Debug().
		Str("component", "registry").
		Str("mount", mountPath).
		Str("backend", backend).
		Int("added", len(m.names)).
		Msg("Backend endpoints registered")
	return next, nil
}

// WithoutBackend returns a new registry without the endpoints mountPath
// added. Unknown mounts yield an equivalent copy.
func (r *Registry) WithoutBackend(mountPath string) *Registry {
	return r.without(strings.Trim(mountPath, "/"))
}

func (r *Registry) without(mountPath string) *Registry {
	next := &Registry{
		opts:      r.opts,
		catalog:   r.catalog,
		endpoints: maps.Clone(r.endpoints),
		mounts:    maps.Clone(r.mounts),
	}
	if m, ok := next.mounts[mountPath]; ok {
		for _, name := range m.names {
			delete(next.endpoints, name)
		}
		delete(next.mounts, mountPath)
	}
	return next
}

// MountedAs returns the mount paths serving backend, sorted.
func (r *Registry) MountedAs(backend string) []string {
	var paths []string
	for p, m := range r.mounts {
		if m.backend == backend {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}
