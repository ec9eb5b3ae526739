// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/samber/oops"
)

// Registry maps identity type names to their composed strategy sets.
// Types are registered once at composition time; lookups are safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	types  map[string]*Authenticatable
	logger *slog.Logger
}

// NewRegistry creates an empty Registry that logs to slog.Default().
func NewRegistry() *Registry {
	return &Registry{
		types:  make(map[string]*Authenticatable),
		logger: slog.Default(),
	}
}

// NewRegistryWithLogger creates an empty Registry with a custom logger.
func NewRegistryWithLogger(logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("logger is required")
	}
	return &Registry{
		types:  make(map[string]*Authenticatable),
		logger: logger,
	}, nil
}

// Register composes an identity type with its strategies. Strategies are
// attempted in the order given. A type may be registered with no strategies;
// authenticating it then fails with an internal error.
func (r *Registry) Register(typeName string, store IdentityStore, strategies ...Strategy) (*Authenticatable, error) {
	if typeName == "" {
		return nil, oops.Code("AUTH_INVALID_CONFIG").Errorf("identity type name is required")
	}
	if store == nil {
		return nil, oops.Code("AUTH_INVALID_CONFIG").
			With("identity_type", typeName).
			Errorf("identity store is required")
	}

	seen := make(map[string]struct{}, len(strategies))
	for i, s := range strategies {
		if s == nil {
			return nil, oops.Code("AUTH_INVALID_CONFIG").
				With("identity_type", typeName).
				With("index", i).
				Errorf("strategy cannot be nil")
		}
		if _, dup := seen[s.Name()]; dup {
			return nil, oops.Code("AUTH_DUPLICATE_STRATEGY").
				With("identity_type", typeName).
				With("strategy", s.Name()).
				Errorf("strategy %q registered twice", s.Name())
		}
		seen[s.Name()] = struct{}{}
	}

	a := &Authenticatable{
		typeName:   typeName,
		store:      store,
		strategies: slices.Clone(strategies),
		logger:     r.logger.With("component", "authenticatable"),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[typeName]; exists {
		return nil, oops.Code("AUTH_DUPLICATE_TYPE").
			With("identity_type", typeName).
			Errorf("identity type %q already registered", typeName)
	}
	r.types[typeName] = a

	r.logger.Debug("identity type registered",
		"identity_type", typeName,
		"strategies", a.StrategyNames(),
	)
	return a, nil
}

// Lookup returns the registered identity type.
func (r *Registry) Lookup(typeName string) (*Authenticatable, error) {
	r.mu.RLock()
	a, ok := r.types[typeName]
	r.mu.RUnlock()
	if !ok {
		return nil, InternalWith("AUTH_UNKNOWN_TYPE",
			map[string]any{"identity_type": typeName},
			"no identity type named %q is registered", typeName)
	}
	return a, nil
}

// TypeNames returns the registered type names in sorted order.
func (r *Registry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
