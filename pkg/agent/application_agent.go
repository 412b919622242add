// SPDX-FileCopyrightText: 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package agent connects embedding applications to a node. An application
// agent submits payloads and consumes local deliveries through a pair of
// Message channels, supervised by the Manager.
package agent

import "github.com/dtn7/mdtn/pkg/bundle"

// ApplicationAgent describes an application's attachment to the node.
//
// On closing down, an ApplicationAgent MUST close its MessageSender channel
// and MUST leave the MessageReceiver open; the Manager closes the receivers
// of its subjects.
type ApplicationAgent interface {
	// Endpoints returns the EndpointIDs this agent wants deliveries for.
	// A pure producer returns nil.
	Endpoints() []bundle.EndpointID

	// MessageReceiver is the channel this agent listens on.
	MessageReceiver() chan Message

	// MessageSender is the channel this agent sends outgoing Messages to.
	MessageSender() chan Message
}

func hasEndpoint(bag []bundle.EndpointID, eid bundle.EndpointID) bool {
	for _, e := range bag {
		if e == eid {
			return true
		}
	}
	return false
}
