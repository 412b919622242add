// SPDX-FileCopyrightText: 2026 Alvar Penning
// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/mdtn/pkg/bundle"
	"github.com/dtn7/mdtn/pkg/storage"
)

// deliverTimeout bounds handing a DeliveryMessage to a slow agent, so a
// stalled application cannot pin the node's receive path.
const deliverTimeout = time.Second

// SubmitFunc hands a submission from an agent to the forwarding engine and
// returns the created bundle's ID.
type SubmitFunc func(destination bundle.EndpointID, payload []byte, lifetime uint64) bundle.BundleID

// Manager supervises the registered ApplicationAgents: submissions are
// fanned into the forwarding engine, local deliveries are fanned out to the
// agents registered for the delivered endpoint.
type Manager struct {
	submit SubmitFunc

	mutex  sync.Mutex
	agents []ApplicationAgent

	closed bool
	wg     sync.WaitGroup
}

// NewManager creates a Manager feeding submissions into submit.
func NewManager(submit SubmitFunc) *Manager {
	return &Manager{submit: submit}
}

// Register an ApplicationAgent; its MessageSender is consumed from now on.
func (m *Manager) Register(agent ApplicationAgent) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		log.Warn("Agent registration after Manager shutdown; ignoring")
		return
	}

	m.agents = append(m.agents, agent)

	m.wg.Add(1)
	go m.consume(agent)
}

func (m *Manager) consume(agent ApplicationAgent) {
	defer m.wg.Done()

	for msg := range agent.MessageSender() {
		switch msg := msg.(type) {
		case SubmitMessage:
			bid := m.submit(msg.Destination, msg.Payload, msg.Lifetime)
			log.WithFields(log.Fields{
				"bundle":      bid,
				"destination": msg.Destination,
			}).Debug("Agent submission accepted")

		default:
			log.WithField("message", msg).Warn("Manager received an unsupported Message")
		}
	}
}

// Deliver fans a local delivery out to all agents registered for the
// destination endpoint. A stalled agent is skipped after a bounded wait.
func (m *Manager) Deliver(destination bundle.EndpointID, rec storage.DeliveryRecord, payload []byte) {
	m.mutex.Lock()
	agents := make([]ApplicationAgent, len(m.agents))
	copy(agents, m.agents)
	m.mutex.Unlock()

	msg := DeliveryMessage{Record: rec, Payload: payload}

	for _, agent := range agents {
		if !hasEndpoint(agent.Endpoints(), destination) {
			continue
		}

		select {
		case agent.MessageReceiver() <- msg:

		case <-time.After(deliverTimeout):
			log.WithFields(log.Fields{
				"bundle":   rec.BundleID,
				"endpoint": destination,
			}).Warn("Agent did not accept the delivery in time; skipping")
		}
	}
}

// Close sends a ShutdownMessage to every agent, waits for their senders to
// close and finally closes the receivers.
func (m *Manager) Close() {
	m.mutex.Lock()
	if m.closed {
		m.mutex.Unlock()
		return
	}
	m.closed = true
	agents := m.agents
	m.mutex.Unlock()

	for _, agent := range agents {
		select {
		case agent.MessageReceiver() <- ShutdownMessage{}:
		case <-time.After(deliverTimeout):
			log.Warn("Agent did not accept the shutdown in time")
		}
	}

	m.wg.Wait()

	for _, agent := range agents {
		close(agent.MessageReceiver())
	}
}
