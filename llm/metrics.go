// Copyright 2025 ModelRelay Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics
var (
	promCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelrelay_calls_total",
			Help: "Total number of completion calls by mode and outcome",
		},
		[]string{"mode", "status"},
	)
	promStreamFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modelrelay_stream_frames_total",
			Help: "Total number of decoded stream frames consumed by assembly",
		},
	)
)

func init() {
	// Register Prometheus metrics
	prometheus.MustRegister(promCallsTotal)
	prometheus.MustRegister(promStreamFrames)
}
