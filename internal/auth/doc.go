// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides pluggable, multi-strategy authentication.
//
// # Composition
//
// An identity type is registered with an ordered set of strategies:
//
//	reg := auth.NewRegistry()
//	users, err := reg.Register("user", store, passwordStrategy, tokenStrategy)
//
// The order given is the attempt order. Registration rejects duplicate
// strategy names; the resulting Authenticatable is immutable.
//
// # Authentication
//
// Authenticatable.Authenticate attempts each strategy permitted by the
// AllowList, one at a time. The first strategy to resolve an identity wins.
// If every eligible strategy fails, the first failure is returned. A type
// with no strategies, or an allow-list that excludes all of them, is a
// configuration error and fails with KindInternal.
//
// # Errors
//
// Every failure carries a Kind (see KindOf and HTTPStatus) and an oops code.
// KindUnauthorized and KindUnprocessable are client errors; KindInternal is a
// system error.
//
// # Strategies
//
//   - PasswordStrategy - username and secret against a one-way hash
//   - TokenStrategy - HS256 bearer access tokens issued by TokenIssuer
package auth
