// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtn7/mdtn/pkg/bundle"
	"github.com/dtn7/mdtn/pkg/metrics"
	"github.com/dtn7/mdtn/pkg/storage"
)

func startRestAgent(t *testing.T) (*RestAgent, *Manager) {
	t.Helper()

	m := metrics.New("rest-test")

	var mutex sync.Mutex
	submit := func(dst bundle.EndpointID, payload []byte, lifetime uint64) bundle.BundleID {
		mutex.Lock()
		defer mutex.Unlock()
		m.BundlesSent.Inc()
		return bundle.New("rest-test", dst, payload, 60).ID()
	}

	ra, err := NewRestAgent("rest-test", "localhost:0", submit, m)
	require.NoError(t, err)

	manager := NewManager(submit)
	manager.Register(ra)
	t.Cleanup(manager.Close)

	return ra, manager
}

func TestRestAgentSubmit(t *testing.T) {
	ra, _ := startRestAgent(t)

	body, err := json.Marshal(RestSubmitRequest{
		Destination: "moon-south",
		Payload:     "hello",
		LifetimeS:   60,
	})
	require.NoError(t, err)

	resp, err := http.Post(
		fmt.Sprintf("http://%s/submit", ra.ListenAddress()),
		"application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	var submitResp RestSubmitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitResp))
	assert.Empty(t, submitResp.Error)
	assert.Len(t, submitResp.BundleID, 32)
}

func TestRestAgentSubmitBadRequest(t *testing.T) {
	ra, _ := startRestAgent(t)

	body := []byte(`{"destination": "not:valid", "payload": "x"}`)
	resp, err := http.Post(
		fmt.Sprintf("http://%s/submit", ra.ListenAddress()),
		"application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRestAgentStatus(t *testing.T) {
	ra, _ := startRestAgent(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/status", ra.ListenAddress()))
	require.NoError(t, err)
	defer resp.Body.Close()

	var status RestStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "rest-test", status.NodeID)
	assert.Contains(t, status.Metrics, "bundles_sent")
}

func TestRestAgentDeliveryStream(t *testing.T) {
	ra, manager := startRestAgent(t)

	conn, _, err := websocket.DefaultDialer.Dial(
		fmt.Sprintf("ws://%s/deliveries/ws", ra.ListenAddress()), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the agent a moment to register the client.
	time.Sleep(100 * time.Millisecond)

	rec := storage.DeliveryRecord{BundleID: "feed", Source: "src", HopCount: 2}
	manager.Deliver("rest-test", rec, []byte("payload"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var streamed storage.DeliveryRecord
	require.NoError(t, conn.ReadJSON(&streamed))
	assert.Equal(t, rec, streamed)
}
