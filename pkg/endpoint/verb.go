package endpoint

import (
	"fmt"
	"strings"
)

// Verb is one of the four HTTP methods an endpoint can expose.
type Verb string

const (
	VerbGet    Verb = "GET"
	VerbPost   Verb = "POST"
	VerbPut    Verb = "PUT"
	VerbDelete Verb = "DELETE"
)

// Verbs lists every supported verb in a stable order.
var Verbs = []Verb{VerbGet, VerbPost, VerbPut, VerbDelete}

// ParseVerb accepts a verb in any case.
func ParseVerb(s string) (Verb, error) {
	v := Verb(strings.ToUpper(strings.TrimSpace(s)))
	if !v.IsValid() {
		return "", fmt.Errorf("unknown verb %q", s)
	}
	return v, nil
}

// IsValid reports whether v is one of the supported verbs.
func (v Verb) IsValid() bool {
	switch v {
	case VerbGet, VerbPost, VerbPut, VerbDelete:
		return true
	default:
		return false
	}
}

func (v Verb) String() string { return string(v) }

// Param describes one body parameter of a verb.
type Param struct {
	Name     string
	Required bool
}

// VerbSpec is the per-verb metadata of an endpoint.
type VerbSpec struct {
	// IDRequired makes the path identifier mandatory for this verb.
	IDRequired bool
	// Params is the ordered body schema. Empty disables body checks.
	Params []Param
}

// RequiredParams returns the names of the params marked required.
func (s VerbSpec) RequiredParams() []string {
	var names []string
	for _, p := range s.Params {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}

func cloneVerbs(in map[Verb]VerbSpec) map[Verb]VerbSpec {
	out := make(map[Verb]VerbSpec, len(in))
	for v, spec := range in {
		spec.Params = append([]Param(nil), spec.Params...)
		out[v] = spec
	}
	return out
}
