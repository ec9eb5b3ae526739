// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package credential

import "github.com/prometheus/client_golang/prometheus"

var issuedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "authkit",
		Name:      "credentials_issued_total",
		Help:      "Credentials issued, by kind.",
	},
	[]string{"kind"},
)

// Collectors returns the credential metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{issuedTotal}
}
