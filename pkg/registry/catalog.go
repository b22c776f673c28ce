package registry

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/d4rkfella/vaulted/pkg/endpoint"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var validate = validator.New()

// Catalog is the parsed endpoint document. Every top-level key other than
// "backends" is an API version prefix.
type Catalog struct {
	Versions map[string]Endpoints `yaml:",inline"`
	Backends map[string]Endpoints `yaml:"backends"`
}

// Endpoints maps an endpoint name (its path template) to its definition.
type Endpoints map[string]EndpointDoc

// EndpointDoc is one catalog entry.
type EndpointDoc struct {
	Verbs map[string]VerbDoc `yaml:"verbs" json:"verbs" validate:"required,min=1,dive,keys,oneof=GET POST PUT DELETE,endkeys"`
}

// VerbDoc is the per-verb part of an entry.
type VerbDoc struct {
	ID     bool       `yaml:"id" json:"id"`
	Params []ParamDoc `yaml:"params" json:"params" validate:"unique=Name,dive"`
}

// ParamDoc is one body parameter.
type ParamDoc struct {
	Name     string `yaml:"name" json:"name" validate:"required"`
	Required bool   `yaml:"required" json:"required"`
}

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() []byte {
	return bytes.Clone(defaultCatalog)
}

// Parse decodes and validates a catalog. YAML and JSON are both accepted.
// Unknown fields inside an entry are rejected.
func Parse(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, endpoint.NewConfigurationError("", "catalog is empty", nil)
		}
		return nil, endpoint.NewConfigurationError("", "parse catalog", err)
	}

	var errs []error
	for _, version := range sortedKeys(c.Versions) {
		errs = append(errs, validateEndpoints(version, c.Versions[version])...)
	}
	for _, backend := range sortedKeys(c.Backends) {
		errs = append(errs, validateEndpoints("backends."+backend, c.Backends[backend])...)
	}
	if len(errs) > 0 {
		return nil, endpoint.NewConfigurationError("", "catalog failed schema validation", errors.Join(errs...))
	}
	return &c, nil
}

func validateEndpoints(section string, eps Endpoints) []error {
	var errs []error
	for _, name := range sortedKeys(eps) {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("%s: endpoint with empty name", section))
			continue
		}
		if err := validate.Struct(eps[name]); err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %s", section, name, describe(err)))
		}
	}
	return errs
}

// describe flattens validator errors into one line per field.
func describe(err error) string {
	var valErrs validator.ValidationErrors
	if !errors.As(err, &valErrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(valErrs))
	for _, fe := range valErrs {
		msg := fe.Namespace() + " failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}

// Definition converts an entry into an endpoint definition.
func (d EndpointDoc) Definition(name string) endpoint.Definition {
	verbs := make(map[endpoint.Verb]endpoint.VerbSpec, len(d.Verbs))
	for v, doc := range d.Verbs {
		spec := endpoint.VerbSpec{IDRequired: doc.ID}
		for _, p := range doc.Params {
			spec.Params = append(spec.Params, endpoint.Param{Name: p.Name, Required: p.Required})
		}
		verbs[endpoint.Verb(v)] = spec
	}
	return endpoint.Definition{Name: name, Verbs: verbs}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
