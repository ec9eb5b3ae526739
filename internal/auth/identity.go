// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"maps"
	"strings"
)

// IDField is the criteria field that addresses an identity by primary key.
const IDField = "id"

// Identity is a persisted record an Authenticatable can resolve a request to.
type Identity interface {
	// IdentityID returns the stable identity value.
	IdentityID() string

	// Attribute returns the value of a named field.
	Attribute(field string) (string, bool)
}

// Criteria selects records by field equality.
type Criteria map[string]string

// ByID returns criteria selecting the identity with the given primary key.
func ByID(id string) Criteria {
	return Criteria{IDField: id}
}

// IdentityStore is the lookup capability strategies resolve identities with.
type IdentityStore interface {
	// FindOne returns the single identity matching every criteria field.
	// Returns ErrNotFound if none matches.
	FindOne(ctx context.Context, criteria Criteria) (Identity, error)
}

// Attributes is the write input for an identity. It is the only place a
// plaintext secret ever appears; save hooks transform it before a record is
// constructed.
type Attributes map[string]string

// Clone returns a copy that can be modified without affecting a.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return Attributes{}
	}
	return maps.Clone(a)
}

// capitalize upper-cases the first byte of an ASCII field name.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
