// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package sdk

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promFallbackRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modelrelay_fallback_retries_total",
			Help: "Total number of automatic retries against the fallback model",
		},
	)
	promCredentialRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelrelay_credential_refreshes_total",
			Help: "Total number of credential refresh HTTP requests",
		},
		[]string{"outcome"},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promFallbackRetries)
	prometheus.MustRegister(promCredentialRefreshes)
}
