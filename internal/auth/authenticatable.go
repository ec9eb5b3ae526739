// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/holomush/authkit/internal/auth")

// PersistFunc writes prepared attributes and returns the persisted identity.
type PersistFunc func(ctx context.Context, attrs Attributes) (Identity, error)

// Authenticatable is a user-identity type composed with an ordered set of
// strategies. Instances are created by Registry.Register and are immutable.
type Authenticatable struct {
	typeName   string
	store      IdentityStore
	strategies []Strategy
	logger     *slog.Logger
}

// TypeName implements IdentityType.
func (a *Authenticatable) TypeName() string {
	return a.typeName
}

// FindOne implements IdentityStore by delegating to the registered store.
func (a *Authenticatable) FindOne(ctx context.Context, criteria Criteria) (Identity, error) {
	//nolint:wrapcheck // stores return coded errors already
	return a.store.FindOne(ctx, criteria)
}

// StrategyNames returns the strategy names in attempt order.
func (a *Authenticatable) StrategyNames() []string {
	names := make([]string, len(a.strategies))
	for i, s := range a.strategies {
		names[i] = s.Name()
	}
	return names
}

// Strategy returns the named strategy.
func (a *Authenticatable) Strategy(name string) (Strategy, bool) {
	for _, s := range a.strategies {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Authenticate resolves req to an identity using the strategies allowed.
//
// Strategies are attempted one at a time in registration order; the filter
// only decides eligibility. The first success is returned. When every
// eligible strategy fails, the first failure is returned.
func (a *Authenticatable) Authenticate(ctx context.Context, req *Request, allowed AllowList) (Identity, error) {
	if req == nil {
		req = &Request{}
	}

	ctx, span := tracer.Start(ctx, "auth.Authenticate", trace.WithAttributes(
		attribute.String("auth.identity_type", a.typeName),
		attribute.String("auth.allowed", allowed.String()),
	))
	defer span.End()

	if len(a.strategies) == 0 {
		recordAuthentication(a.typeName, resultMisconfigured)
		err := InternalWith("AUTH_NO_STRATEGIES",
			map[string]any{"identity_type": a.typeName},
			"you tried to authenticate with a %s identity, but it has no authentication strategies",
			capitalize(a.typeName))
		span.SetStatus(codes.Error, "no strategies")
		return nil, err
	}

	var eligible []string
	for _, s := range a.strategies {
		if allowed.Permits(s.Name()) {
			eligible = append(eligible, s.Name())
		}
	}
	if len(eligible) == 0 {
		recordAuthentication(a.typeName, resultMisconfigured)
		available := strings.Join(a.StrategyNames(), ", ")
		err := InternalWith("AUTH_NO_ALLOWED_STRATEGIES",
			map[string]any{"identity_type": a.typeName, "available": available, "allowed": allowed.String()},
			"none of the available authentication strategies are allowed on this action; available: %s, allowed: %s",
			available, allowed.String())
		span.SetStatus(codes.Error, "no allowed strategies")
		return nil, err
	}

	a.logger.DebugContext(ctx, "attempting authentication",
		"request_id", req.ID,
		"identity_type", a.typeName,
		"strategies", strings.Join(eligible, ", "),
	)

	var failureReason error
	remaining := len(eligible)
	for _, s := range a.strategies {
		if !allowed.Permits(s.Name()) {
			continue
		}
		remaining--

		identity, err := s.AuthenticateRequest(ctx, req, a)
		if err != nil {
			recordAttempt(a.typeName, s.Name(), outcomeFailure)
			a.logger.DebugContext(ctx, "authentication strategy failed",
				"request_id", req.ID,
				"strategy", s.Name(),
				"reason", err.Error(),
				"remaining", remaining,
			)
			if failureReason == nil {
				failureReason = err
			}
			continue
		}

		if isEmptyIdentity(identity) {
			recordAttempt(a.typeName, s.Name(), outcomeBroken)
			recordAuthentication(a.typeName, resultBroken)
			span.SetStatus(codes.Error, "strategy returned no identity")
			return nil, InternalWith("AUTH_STRATEGY_BROKEN",
				map[string]any{"strategy": s.Name(), "identity_type": a.typeName},
				"%s strategy returned neither an identity nor an error", s.Name())
		}

		recordAttempt(a.typeName, s.Name(), outcomeSuccess)
		recordAuthentication(a.typeName, resultSucceeded)
		span.SetAttributes(attribute.String("auth.strategy", s.Name()))
		a.logger.DebugContext(ctx, "authentication succeeded",
			"request_id", req.ID,
			"strategy", s.Name(),
		)
		return identity, nil
	}

	recordAuthentication(a.typeName, resultExhausted)
	span.SetStatus(codes.Error, "all strategies failed")
	return nil, failureReason
}

// isEmptyIdentity reports whether id resolves to no identity value. A typed
// nil whose IdentityID dereferences its receiver counts as empty.
func isEmptyIdentity(id Identity) (empty bool) {
	if id == nil {
		return true
	}
	defer func() {
		if recover() != nil {
			empty = true
		}
	}()
	return id.IdentityID() == ""
}

// Save runs every strategy save hook over attrs, in registration order, and
// hands the result to persist.
func (a *Authenticatable) Save(ctx context.Context, attrs Attributes, persist PersistFunc) (Identity, error) {
	prepared := attrs.Clone()
	for _, s := range a.strategies {
		hook, ok := s.(SaveHook)
		if !ok {
			continue
		}
		var err error
		prepared, err = hook.BeforeSave(ctx, prepared)
		if err != nil {
			return nil, err
		}
	}
	return persist(ctx, prepared)
}
