// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Strategy attempt outcomes.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeBroken  = "broken"
)

// Authentication results.
const (
	resultSucceeded     = "succeeded"
	resultExhausted     = "exhausted"
	resultMisconfigured = "misconfigured"
	resultBroken        = "broken"
)

var (
	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authkit_authentication_attempts_total",
			Help: "Total number of strategy attempts by identity type, strategy and outcome",
		},
		[]string{"identity_type", "strategy", "outcome"},
	)

	authenticationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authkit_authentications_total",
			Help: "Total number of authentication requests by identity type and result",
		},
		[]string{"identity_type", "result"},
	)
)

// Collectors returns the auth metrics for registration with a registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{attemptsTotal, authenticationsTotal}
}

func recordAttempt(identityType, strategy, outcome string) {
	attemptsTotal.WithLabelValues(identityType, strategy, outcome).Inc()
}

func recordAuthentication(identityType, result string) {
	authenticationsTotal.WithLabelValues(identityType, result).Inc()
}
