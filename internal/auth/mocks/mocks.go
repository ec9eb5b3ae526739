// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks for the auth interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/holomush/authkit/internal/auth"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

// MockHasher is a mock auth.Hasher.
type MockHasher struct {
	mock.Mock
}

// NewMockHasher creates a MockHasher whose expectations are asserted on cleanup.
func NewMockHasher(t testingT) *MockHasher {
	m := &MockHasher{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Hash mocks auth.Hasher.Hash.
func (m *MockHasher) Hash(secret string, cost int) (string, error) {
	ret := m.Called(secret, cost)
	return ret.String(0), ret.Error(1)
}

// Compare mocks auth.Hasher.Compare.
func (m *MockHasher) Compare(secret, digest string) (bool, error) {
	ret := m.Called(secret, digest)
	return ret.Bool(0), ret.Error(1)
}

// NeedsUpgrade mocks auth.Hasher.NeedsUpgrade.
func (m *MockHasher) NeedsUpgrade(digest string) bool {
	ret := m.Called(digest)
	return ret.Bool(0)
}

// MockIdentityStore is a mock auth.IdentityStore.
type MockIdentityStore struct {
	mock.Mock
}

// NewMockIdentityStore creates a MockIdentityStore whose expectations are asserted on cleanup.
func NewMockIdentityStore(t testingT) *MockIdentityStore {
	m := &MockIdentityStore{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// FindOne mocks auth.IdentityStore.FindOne.
func (m *MockIdentityStore) FindOne(ctx context.Context, criteria auth.Criteria) (auth.Identity, error) {
	ret := m.Called(ctx, criteria)
	var identity auth.Identity
	if v := ret.Get(0); v != nil {
		identity = v.(auth.Identity)
	}
	return identity, ret.Error(1)
}

// MockStrategy is a mock auth.Strategy with a fixed name.
type MockStrategy struct {
	mock.Mock
	name string
}

// NewMockStrategy creates a MockStrategy named name whose expectations are
// asserted on cleanup.
func NewMockStrategy(t testingT, name string) *MockStrategy {
	m := &MockStrategy{name: name}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Name implements auth.Strategy.
func (m *MockStrategy) Name() string {
	return m.name
}

// AuthenticateRequest mocks auth.Strategy.AuthenticateRequest.
func (m *MockStrategy) AuthenticateRequest(ctx context.Context, req *auth.Request, typ auth.IdentityType) (auth.Identity, error) {
	ret := m.Called(ctx, req, typ)
	var identity auth.Identity
	if v := ret.Get(0); v != nil {
		identity = v.(auth.Identity)
	}
	return identity, ret.Error(1)
}

var (
	_ auth.Hasher        = (*MockHasher)(nil)
	_ auth.IdentityStore = (*MockIdentityStore)(nil)
	_ auth.Strategy      = (*MockStrategy)(nil)
)
