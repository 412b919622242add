// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics holds a node's lifecycle counters. Each node owns its own
// Prometheus registry, so multiple nodes can coexist within one process.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mdtn"

// Metrics bundles a node's counters. The zero value is unusable; create one
// through New.
type Metrics struct {
	registry *prometheus.Registry

	BundlesSent       prometheus.Counter
	BundlesReceived   prometheus.Counter
	BundlesDelivered  prometheus.Counter
	BundlesForwarded  prometheus.Counter
	BundlesExpired    prometheus.Counter
	BundlesDuplicate  prometheus.Counter
	MalformedFrames   prometheus.Counter
	TransportFailures prometheus.Counter
	StoreFailures     prometheus.Counter
}

func newCounter(reg *prometheus.Registry, node, name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: prometheus.Labels{"node": node},
	})
	reg.MustRegister(c)
	return c
}

// New creates the Metrics for the named node.
func New(node string) *Metrics {
	reg := prometheus.NewRegistry()

	return &Metrics{
		registry: reg,

		BundlesSent:       newCounter(reg, node, "bundles_sent", "Bundles submitted by the local application."),
		BundlesReceived:   newCounter(reg, node, "bundles_received", "Bundles accepted from peers."),
		BundlesDelivered:  newCounter(reg, node, "bundles_delivered", "Bundles delivered to the local application."),
		BundlesForwarded:  newCounter(reg, node, "bundles_forwarded", "Bundles transmitted to the next hop."),
		BundlesExpired:    newCounter(reg, node, "bundles_expired", "Bundles dropped or deleted after their lifetime."),
		BundlesDuplicate:  newCounter(reg, node, "bundles_duplicate", "Received bundles dropped as duplicates."),
		MalformedFrames:   newCounter(reg, node, "malformed_frames", "Inbound frames dropped before decoding finished."),
		TransportFailures: newCounter(reg, node, "transport_failures", "Failed outbound transmission attempts."),
		StoreFailures:     newCounter(reg, node, "store_failures", "Failed bundle store operations."),
	}
}

// RegisterStoredGauge attaches the live bundle store size as the
// bundles_stored gauge. Must be called at most once.
func (m *Metrics) RegisterStoredGauge(node string, count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "bundles_stored",
		Help:        "Bundles currently persisted in the store.",
		ConstLabels: prometheus.Labels{"node": node},
	}, func() float64 {
		return float64(count())
	}))
}

// Snapshot gathers the registry into a plain map, keyed by the counter names
// without the namespace prefix, e.g., "bundles_delivered".
func (m *Metrics) Snapshot() map[string]uint64 {
	snapshot := make(map[string]uint64)

	mfs, err := m.registry.Gather()
	if err != nil {
		return snapshot
	}

	for _, mf := range mfs {
		name := strings.TrimPrefix(mf.GetName(), namespace+"_")
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				snapshot[name] += uint64(metric.GetCounter().GetValue())
			case metric.GetGauge() != nil:
				snapshot[name] += uint64(metric.GetGauge().GetValue())
			}
		}
	}

	return snapshot
}

// Handler exposes this node's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
