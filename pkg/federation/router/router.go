/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package router implements a URI-template router that supports both forward matching
// of request paths and reverse building of canonical URLs from the same templates, so
// that dispatch and URL minting never diverge.
package router

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/gorilla/mux"
)

// Error indicates a routing failure, such as the registration of a malformed
// template or an attempt to build a URL for an unregistered route.
type Error struct {
	msg string
}

// NewError returns a new routing error.
func NewError(format string, args ...interface{}) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// Error returns the error message.
func (e *Error) Error() string {
	return e.msg
}

// Match holds the result of matching a request path against the registered routes.
type Match struct {
	// Name is the name of the matched route.
	Name string
	// Values maps each template variable to the (percent-decoded) path segment it matched.
	Values map[string]string
}

var templateVarPattern = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Router matches request paths against registered URI templates and builds concrete
// paths from the same templates. Templates are URI Templates (RFC 6570) restricted to
// simple {var} expansions, where each variable matches a single non-empty path segment.
// Matching is case-sensitive and trailing slashes are significant.
type Router struct {
	mux       *mux.Router
	variables map[string][]string
}

// New returns a new router.
func New() *Router {
	return &Router{
		mux:       mux.NewRouter(),
		variables: make(map[string][]string),
	}
}

// Add parses the given URI template, registers it as a route under the given name, and
// returns the names of the template's variables. An Error is returned if the name is
// already registered or the template is malformed.
func (r *Router) Add(template, name string) ([]string, error) {
	if _, ok := r.variables[name]; ok {
		return nil, NewError("a route named [%s] is already registered", name)
	}

	variables, err := parseTemplate(template)
	if err != nil {
		return nil, err
	}

	route := r.mux.NewRoute().Path(template).Name(name)
	if route.GetError() != nil {
		return nil, NewError("invalid route template [%s]: %s", template, route.GetError())
	}

	r.variables[name] = variables

	return variables, nil
}

// Has returns true if a route with the given name is registered.
func (r *Router) Has(name string) bool {
	_, ok := r.variables[name]

	return ok
}

// Variables returns the names of the variables of the route with the given name.
func (r *Router) Variables(name string) []string {
	return r.variables[name]
}

// Route matches the given request path against the registered routes and returns the
// name of the matching route along with the values of its template variables. False
// is returned if no route matches.
func (r *Router) Route(path string) (*Match, bool) {
	req := &http.Request{
		Method: http.MethodGet,
		URL:    &url.URL{Path: path},
	}

	var routeMatch mux.RouteMatch

	if !r.mux.Match(req, &routeMatch) || routeMatch.MatchErr != nil {
		return nil, false
	}

	values := make(map[string]string, len(routeMatch.Vars))

	for k, v := range routeMatch.Vars {
		decoded, err := url.PathUnescape(v)
		if err != nil {
			decoded = v
		}

		values[k] = decoded
	}

	return &Match{
		Name:   routeMatch.Route.GetName(),
		Values: values,
	}, true
}

// Build substitutes each {var} in the named route's template with the percent-encoded
// value from the given map and returns the resulting path. An Error is returned if the
// route is not registered or a variable is missing from the map.
func (r *Router) Build(name string, values map[string]string) (string, error) {
	variables, ok := r.variables[name]
	if !ok {
		return "", NewError("no route named [%s] is registered", name)
	}

	pairs := make([]string, 0, len(variables)*2)

	for _, variable := range variables {
		value, ok := values[variable]
		if !ok {
			return "", NewError("missing value for variable [%s] of route [%s]", variable, name)
		}

		pairs = append(pairs, variable, url.PathEscape(value))
	}

	u, err := r.mux.Get(name).URLPath(pairs...)
	if err != nil {
		return "", NewError("build path for route [%s]: %s", name, err)
	}

	// The values were escaped before substitution and URLPath stores the substituted
	// string verbatim in Path, so Path already holds the (singly) encoded path.
	return u.Path, nil
}

func parseTemplate(template string) ([]string, error) {
	if !strings.HasPrefix(template, "/") {
		return nil, NewError("route template [%s] must begin with '/'", template)
	}

	// Every brace in the template must belong to a well-formed {var} expansion.
	stripped := templateVarPattern.ReplaceAllString(template, "")
	if strings.ContainsAny(stripped, "{}") {
		return nil, NewError("malformed variable expansion in route template [%s]", template)
	}

	var variables []string

	seen := make(map[string]struct{})

	for _, match := range templateVarPattern.FindAllStringSubmatch(template, -1) {
		variable := match[1]

		if _, ok := seen[variable]; ok {
			return nil, NewError("duplicate variable [%s] in route template [%s]", variable, template)
		}

		seen[variable] = struct{}{}

		variables = append(variables, variable)
	}

	return variables, nil
}
