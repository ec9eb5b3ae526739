// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/holomush/authkit/internal/auth"
)

// testIdentity is a minimal auth.Identity backed by an attribute map.
type testIdentity struct {
	id    string
	attrs map[string]string
}

func newTestIdentity(attrs map[string]string) *testIdentity {
	return &testIdentity{id: ulid.Make().String(), attrs: attrs}
}

func (i *testIdentity) IdentityID() string {
	return i.id
}

func (i *testIdentity) Attribute(field string) (string, bool) {
	if field == auth.IDField {
		return i.id, true
	}
	v, ok := i.attrs[field]
	return v, ok
}

// fakeStore is an in-memory auth.IdentityStore.
type fakeStore struct {
	mu         sync.Mutex
	identities []*testIdentity
	err        error
}

func (s *fakeStore) add(i *testIdentity) *testIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities = append(s.identities, i)
	return i
}

func (s *fakeStore) FindOne(_ context.Context, criteria auth.Criteria) (auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	for _, i := range s.identities {
		match := true
		for field, want := range criteria {
			if got, ok := i.Attribute(field); !ok || got != want {
				match = false
				break
			}
		}
		if match {
			return i, nil
		}
	}
	return nil, auth.ErrNotFound
}

// funcStrategy is a Strategy defined by a function, recording its calls.
type funcStrategy struct {
	name  string
	fn    func(ctx context.Context, req *auth.Request, typ auth.IdentityType) (auth.Identity, error)
	calls *[]string
}

func (s *funcStrategy) Name() string {
	return s.name
}

func (s *funcStrategy) AuthenticateRequest(ctx context.Context, req *auth.Request, typ auth.IdentityType) (auth.Identity, error) {
	if s.calls != nil {
		*s.calls = append(*s.calls, s.name)
	}
	return s.fn(ctx, req, typ)
}

func succeeding(name string, identity auth.Identity, calls *[]string) *funcStrategy {
	return &funcStrategy{
		name:  name,
		calls: calls,
		fn: func(context.Context, *auth.Request, auth.IdentityType) (auth.Identity, error) {
			return identity, nil
		},
	}
}

func failing(name string, err error, calls *[]string) *funcStrategy {
	return &funcStrategy{
		name:  name,
		calls: calls,
		fn: func(context.Context, *auth.Request, auth.IdentityType) (auth.Identity, error) {
			return nil, err
		},
	}
}

// hookStrategy is a strategy with a save hook that stamps an attribute.
type hookStrategy struct {
	funcStrategy
	field, value string
	order        *[]string
}

func (s *hookStrategy) BeforeSave(_ context.Context, attrs auth.Attributes) (auth.Attributes, error) {
	if s.order != nil {
		*s.order = append(*s.order, s.name)
	}
	out := attrs.Clone()
	out[s.field] = s.value
	return out, nil
}
