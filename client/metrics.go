// Copyright 2026 The Agent SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package client

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registerer is the subset of prometheus.Registerer the client needs; any
// *prometheus.Registry satisfies it. Passing nil (the default) leaves
// metrics unregistered: they are still recorded but never exported.
type Registerer = prometheus.Registerer

// metrics is optional Prometheus instrumentation. It is always safe to
// call its methods; when no Registerer was supplied the collectors are
// still created but never registered, so recording them is harmless
// bookkeeping rather than a nil check at every call site.
type metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	sessions prometheus.Gauge
}

func newMetrics(reg Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentsdk",
			Name:      "requests_total",
			Help:      "Outgoing JSON-RPC requests by method and outcome.",
		}, []string{"method", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentsdk",
			Name:      "request_duration_seconds",
			Help:      "Round-trip latency of outgoing JSON-RPC requests by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentsdk",
			Name:      "active_sessions",
			Help:      "Number of sessions currently registered with the client.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.latency, m.sessions)
	}
	return m
}

func (m *metrics) observeCall(method string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(d.Seconds())
}

func (m *metrics) setActiveSessions(n int) {
	m.sessions.Set(float64(n))
}
