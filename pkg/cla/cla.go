// SPDX-FileCopyrightText: 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cla names the convergence layer contracts between the forwarding
// engine and a concrete transport. This repository ships exactly one
// implementation, the framed TCP layer in the ftcp sub-package.
package cla

import "github.com/dtn7/mdtn/pkg/bundle"

// ReceiveFunc hands a decoded inbound bundle to the forwarding engine. It
// must return promptly; the engine performs its store write inline and queues
// forwarding to the next hop asynchronously.
type ReceiveFunc func(bundle.Bundle)

// ConvergenceReceiver accepts bundles from peers and feeds them into a
// ReceiveFunc.
type ConvergenceReceiver interface {
	// Start binds the receiver. A returned error is fatal for the node.
	Start() error

	// Close shuts the receiver down and waits for its teardown.
	Close()

	// Address returns a unique address string identifying this receiver.
	Address() string
}

// ConvergenceSender transmits single bundles to a peer's address.
type ConvergenceSender interface {
	// Send transmits one bundle. A nil return guarantees the peer
	// acknowledged the complete frame.
	Send(address string, b bundle.Bundle) error
}
