// SPDX-FileCopyrightText: 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtn7/mdtn/pkg/bundle"
	"github.com/dtn7/mdtn/pkg/storage"
)

// mockAgent records deliveries and forwards canned submissions.
type mockAgent struct {
	endpoint bundle.EndpointID
	receiver chan Message
	sender   chan Message

	mutex      sync.Mutex
	deliveries []DeliveryMessage
}

func newMockAgent(endpoint bundle.EndpointID) *mockAgent {
	ma := &mockAgent{
		endpoint: endpoint,
		receiver: make(chan Message),
		sender:   make(chan Message),
	}

	go func() {
		for msg := range ma.receiver {
			switch msg := msg.(type) {
			case DeliveryMessage:
				ma.mutex.Lock()
				ma.deliveries = append(ma.deliveries, msg)
				ma.mutex.Unlock()

			case ShutdownMessage:
				close(ma.sender)
				return
			}
		}
	}()

	return ma
}

func (ma *mockAgent) Endpoints() []bundle.EndpointID { return []bundle.EndpointID{ma.endpoint} }
func (ma *mockAgent) MessageReceiver() chan Message  { return ma.receiver }
func (ma *mockAgent) MessageSender() chan Message    { return ma.sender }

func (ma *mockAgent) delivered() []DeliveryMessage {
	ma.mutex.Lock()
	defer ma.mutex.Unlock()
	return append([]DeliveryMessage{}, ma.deliveries...)
}

func TestManagerSubmission(t *testing.T) {
	var (
		mutex   sync.Mutex
		submits []SubmitMessage
	)

	m := NewManager(func(dst bundle.EndpointID, payload []byte, lifetime uint64) bundle.BundleID {
		mutex.Lock()
		submits = append(submits, SubmitMessage{Destination: dst, Payload: payload, Lifetime: lifetime})
		mutex.Unlock()
		return "0123"
	})

	ma := newMockAgent("node-a")
	m.Register(ma)

	ma.sender <- SubmitMessage{Destination: "node-b", Payload: []byte("ping"), Lifetime: 60}

	require.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()
		return len(submits) == 1
	}, time.Second, 10*time.Millisecond)

	mutex.Lock()
	assert.Equal(t, bundle.EndpointID("node-b"), submits[0].Destination)
	assert.Equal(t, []byte("ping"), submits[0].Payload)
	mutex.Unlock()

	m.Close()
}

func TestManagerDeliveryRouting(t *testing.T) {
	m := NewManager(func(bundle.EndpointID, []byte, uint64) bundle.BundleID { return "" })

	sink := newMockAgent("sink")
	other := newMockAgent("elsewhere")
	m.Register(sink)
	m.Register(other)

	rec := storage.DeliveryRecord{BundleID: "abcd", Source: "src", HopCount: 1}
	m.Deliver("sink", rec, []byte("payload"))

	require.Eventually(t, func() bool {
		return len(sink.delivered()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, rec, sink.delivered()[0].Record)
	assert.Equal(t, []byte("payload"), sink.delivered()[0].Payload)
	assert.Empty(t, other.delivered())

	m.Close()
}

func TestTelemetryAgentEmits(t *testing.T) {
	ta := NewTelemetryAgent("sink", 50*time.Millisecond, 60, "telemetry")

	select {
	case msg := <-ta.MessageSender():
		sm, ok := msg.(SubmitMessage)
		require.True(t, ok)
		assert.Equal(t, bundle.EndpointID("sink"), sm.Destination)
		assert.EqualValues(t, 60, sm.Lifetime)
		assert.Contains(t, string(sm.Payload), "telemetry seq=0")

	case <-time.After(time.Second):
		t.Fatal("no telemetry submission within a second")
	}

	// Keep draining so the handler never blocks on its sender, then shut
	// down and expect the sender to be closed.
	drained := make(chan struct{})
	go func() {
		for range ta.MessageSender() {
		}
		close(drained)
	}()

	ta.MessageReceiver() <- ShutdownMessage{}

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("sender was not closed on shutdown")
	}
}
