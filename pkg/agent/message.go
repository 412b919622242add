// SPDX-FileCopyrightText: 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"github.com/dtn7/mdtn/pkg/bundle"
	"github.com/dtn7/mdtn/pkg/storage"
)

// Message is the information exchange between an ApplicationAgent and the
// Manager. The following types named *Message implement this interface.
type Message interface {
	// Recipients returns the endpoints this message is addressed to, or nil
	// if it is not addressed at all.
	Recipients() []bundle.EndpointID
}

// SubmitMessage is sent from an ApplicationAgent to hand a fresh payload to
// the node for best-effort delivery.
type SubmitMessage struct {
	Destination bundle.EndpointID
	Payload     []byte

	// Lifetime in seconds; zero selects the node's default.
	Lifetime uint64
}

// Recipients is the single destination endpoint.
func (sm SubmitMessage) Recipients() []bundle.EndpointID {
	return []bundle.EndpointID{sm.Destination}
}

// DeliveryMessage is sent to an ApplicationAgent for each bundle locally
// delivered at this node, after its delivery record was written.
type DeliveryMessage struct {
	Record  storage.DeliveryRecord
	Payload []byte
}

// Recipients is not available for a DeliveryMessage; the Manager already
// routed it.
func (dm DeliveryMessage) Recipients() []bundle.EndpointID {
	return nil
}

// ShutdownMessage indicates the closing down of an ApplicationAgent.
// An agent receiving it must close its MessageSender and stop.
type ShutdownMessage struct{}

// Recipients is not available for a ShutdownMessage.
func (sm ShutdownMessage) Recipients() []bundle.EndpointID {
	return nil
}
