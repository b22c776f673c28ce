package endpoint

import (
	"reflect"
	"strings"
)

// RequireID is the RequiredPath sentinel that marks the id as mandatory for a
// single call.
const RequireID = "id"

// Validator inspects a call before it is built. It returns the request to
// pass down the chain or an error that aborts the call.
type Validator func(name string, spec VerbSpec, req Request) (Request, error)

// HeaderCheck moves Token into the auth header of an authenticated call and
// rejects the call if its header set is empty. Other headers, such as a
// namespace, satisfy the check on their own.
func HeaderCheck(name string, _ VerbSpec, req Request) (Request, error) {
	if req.Headers == nil {
		return req, nil
	}
	if req.Token != "" {
		req.Headers.Set(AuthHeader, req.Token)
	}
	req.Token = ""
	if len(req.Headers) == 0 {
		return req, &MissingAuthTokenError{Endpoint: name}
	}
	return req, nil
}

// IDCheck rejects calls without an id when the verb or the call demands one.
func IDCheck(name string, spec VerbSpec, req Request) (Request, error) {
	required := spec.IDRequired || req.RequiredPath == RequireID
	if required && strings.TrimSpace(req.ID) == "" {
		return req, &MissingIdentifierError{Endpoint: name}
	}
	return req, nil
}

// BodyCheck enforces the verb's parameter schema. Required params must be
// present and truthy unless Override is set. A one-off RequiredPath is looked
// up in the body as a dotted path and must be truthy regardless of Override.
func BodyCheck(name string, spec VerbSpec, req Request) (Request, error) {
	override, path := req.Override, req.RequiredPath
	req.Override = false
	req.RequiredPath = ""

	if len(spec.Params) == 0 {
		return req, nil
	}

	if !override {
		for _, p := range spec.Params {
			if !p.Required {
				continue
			}
			if !Truthy(req.Body[p.Name]) {
				return req, &MissingParameterError{Endpoint: name, Parameter: p.Name}
			}
		}
	}

	if path != "" && path != RequireID {
		v, ok := Lookup(req.Body, path)
		if !ok || !Truthy(v) {
			return req, &MissingParameterError{Endpoint: name, Parameter: path}
		}
	}
	return req, nil
}

// Lookup resolves a dotted path against nested maps.
func Lookup(body map[string]any, path string) (any, bool) {
	var cur any = body
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Truthy reports whether v carries a usable value. Nil, zero numbers, false,
// empty strings and empty collections are not truthy.
func Truthy(v any) bool {
	if v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	default:
		return !rv.IsZero()
	}
}
