// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/http"
	"slices"
	"strings"
)

// Params are the named parameters of an inbound authentication request.
type Params map[string]string

// Get returns the named parameter and whether it is present and non-empty.
func (p Params) Get(name string) (string, bool) {
	v, ok := p[name]
	return v, ok && v != ""
}

// Request is one inbound authentication attempt.
type Request struct {
	// ID correlates log lines for the attempt.
	ID string

	// Params holds body and query parameters.
	Params Params

	// Header holds transport headers; may be nil.
	Header http.Header
}

// IdentityType is the user-identity type a strategy resolves against.
type IdentityType interface {
	IdentityStore

	// TypeName names the identity type, e.g. "user".
	TypeName() string
}

// Strategy is one way of resolving a request to an authenticated identity.
type Strategy interface {
	// Name is unique among the strategies of an identity type.
	Name() string

	// AuthenticateRequest resolves the acting identity from the request.
	// Implementations must return either a persisted identity or an error.
	AuthenticateRequest(ctx context.Context, req *Request, typ IdentityType) (Identity, error)
}

// SaveHook is implemented by strategies that transform identity attributes
// on the write path, before the record is persisted.
type SaveHook interface {
	BeforeSave(ctx context.Context, attrs Attributes) (Attributes, error)
}

// AllowList selects the strategies an action permits.
type AllowList struct {
	all   bool
	names []string
}

// AllowAll permits every strategy of the identity type.
func AllowAll() AllowList {
	return AllowList{all: true}
}

// Allow permits only the named strategies.
func Allow(names ...string) AllowList {
	return AllowList{names: slices.Clone(names)}
}

// Permits reports whether the named strategy may be attempted.
func (a AllowList) Permits(name string) bool {
	return a.all || slices.Contains(a.names, name)
}

// String renders the allow-list for diagnostics.
func (a AllowList) String() string {
	if a.all {
		return "all"
	}
	return strings.Join(a.names, ", ")
}
