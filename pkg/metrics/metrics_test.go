// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshot(t *testing.T) {
	m := New("test-node")
	m.RegisterStoredGauge("test-node", func() int { return 7 })

	m.BundlesSent.Inc()
	m.BundlesReceived.Inc()
	m.BundlesReceived.Inc()
	m.BundlesExpired.Add(3)

	snapshot := m.Snapshot()
	assert.EqualValues(t, 1, snapshot["bundles_sent"])
	assert.EqualValues(t, 2, snapshot["bundles_received"])
	assert.EqualValues(t, 3, snapshot["bundles_expired"])
	assert.EqualValues(t, 7, snapshot["bundles_stored"])
	assert.EqualValues(t, 0, snapshot["bundles_delivered"])
}

func TestMetricsIsolation(t *testing.T) {
	// Two nodes within one process must not share counters.
	m1 := New("a")
	m2 := New("b")

	m1.BundlesSent.Inc()

	assert.EqualValues(t, 1, m1.Snapshot()["bundles_sent"])
	assert.EqualValues(t, 0, m2.Snapshot()["bundles_sent"])
}

func TestMetricsHandler(t *testing.T) {
	m := New("test-node")
	m.BundlesDelivered.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "mdtn_bundles_delivered")
}
