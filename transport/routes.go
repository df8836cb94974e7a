package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Route maps one (resource, operation) pair to an HTTP verb and a path
// relative to the base endpoint. Path segments of the form {name} are
// filled from Request.Params.
type Route struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
}

// Routes is resource -> operation -> route.
type Routes map[string]map[string]Route

// Lookup returns the route for resource.operation.
func (r Routes) Lookup(resource, operation string) (Route, error) {
	ops, ok := r[resource]
	if !ok {
		return Route{}, &ValidationError{Resource: resource, Operation: operation, Reason: "unknown resource"}
	}
	rt, ok := ops[operation]
	if !ok {
		return Route{}, &ValidationError{Resource: resource, Operation: operation, Reason: "unknown operation"}
	}
	if rt.Method == "" {
		rt.Method = http.MethodGet
	}
	rt.Method = strings.ToUpper(rt.Method)
	return rt, nil
}

// Merge returns a copy of r with every route in other laid over it.
func (r Routes) Merge(other Routes) Routes {
	out := make(Routes, len(r)+len(other))
	for res, ops := range r {
		m := make(map[string]Route, len(ops))
		for op, rt := range ops {
			m[op] = rt
		}
		out[res] = m
	}
	for res, ops := range other {
		if out[res] == nil {
			out[res] = make(map[string]Route, len(ops))
		}
		for op, rt := range ops {
			out[res][op] = rt
		}
	}
	return out
}

func (rt Route) hasBody() bool {
	switch rt.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// expand fills path placeholders from params and returns the relative path.
// GET and DELETE routes send the params the template did not consume as the
// query string; routes with a body reject them.
func (rt Route) expand(resource, operation string, params Args) (string, url.Values, error) {
	used := make(map[string]struct{})
	var b strings.Builder
	p := rt.Path
	for {
		open := strings.IndexByte(p, '{')
		if open < 0 {
			b.WriteString(p)
			break
		}
		end := strings.IndexByte(p[open:], '}')
		if end < 0 {
			return "", nil, &ValidationError{Resource: resource, Operation: operation, Reason: "unterminated placeholder in " + rt.Path}
		}
		name := p[open+1 : open+end]
		v, ok := params[name]
		if !ok || v == nil {
			return "", nil, &ValidationError{Resource: resource, Operation: operation, Reason: fmt.Sprintf("missing path parameter %q", name)}
		}
		b.WriteString(p[:open])
		b.WriteString(url.PathEscape(fmt.Sprint(v)))
		used[name] = struct{}{}
		p = p[open+end+1:]
	}

	var q url.Values
	if len(params) > len(used) {
		names := make([]string, 0, len(params))
		for k := range params {
			if _, ok := used[k]; !ok {
				names = append(names, k)
			}
		}
		sort.Strings(names)
		if rt.hasBody() {
			return "", nil, &ValidationError{Resource: resource, Operation: operation, Reason: fmt.Sprintf("parameter %q is not in the %s path; send it in the body", names[0], rt.Method)}
		}
		q = make(url.Values, len(names))
		for _, k := range names {
			if v := params[k]; v != nil {
				q.Set(k, fmt.Sprint(v))
			}
		}
	}
	return strings.TrimLeft(b.String(), "/"), q, nil
}
