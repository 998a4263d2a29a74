// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Duskhollow Contributors

package gate

import "github.com/prometheus/client_golang/prometheus"

// ConnectionsTotal counts accepted client connections.
// Use RegisterMetrics to register this with a Prometheus registry.
var ConnectionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "duskhollow_gate_connections_total",
		Help: "Total number of accepted gate connections",
	},
)

// RequestsTotal counts routed requests by tag and response status.
var RequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "duskhollow_gate_requests_total",
		Help: "Total number of gate requests by tag and status",
	},
	[]string{"tag", "status"},
)

// DroppedFramesTotal counts frames dropped for an unknown tag.
var DroppedFramesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "duskhollow_gate_dropped_frames_total",
		Help: "Total number of frames dropped for an unknown tag",
	},
)

// SessionEvictionsTotal counts prior sessions evicted by a newer login.
var SessionEvictionsTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "duskhollow_gate_session_evictions_total",
		Help: "Total number of sessions evicted by a newer login for the same account",
	},
)

// RegisterMetrics registers gate metrics with the given registry.
// Panics if registration fails (prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(ConnectionsTotal)
	reg.MustRegister(RequestsTotal)
	reg.MustRegister(DroppedFramesTotal)
	reg.MustRegister(SessionEvictionsTotal)
}
