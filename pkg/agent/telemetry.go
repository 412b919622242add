// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/mdtn/pkg/bundle"
)

// TelemetryAgent is the built-in workload for source nodes: it submits a
// small, sequence-numbered payload to a fixed destination at a fixed
// interval, mimicking housekeeping telemetry from a probe.
type TelemetryAgent struct {
	destination bundle.EndpointID
	interval    time.Duration
	lifetime    uint64
	prefix      string

	receiver chan Message
	sender   chan Message
}

// NewTelemetryAgent creates and starts a TelemetryAgent.
func NewTelemetryAgent(destination bundle.EndpointID, interval time.Duration, lifetime uint64, prefix string) *TelemetryAgent {
	ta := &TelemetryAgent{
		destination: destination,
		interval:    interval,
		lifetime:    lifetime,
		prefix:      prefix,

		receiver: make(chan Message),
		sender:   make(chan Message),
	}

	go ta.handler()

	return ta
}

func (ta *TelemetryAgent) handler() {
	defer close(ta.sender)

	ticker := time.NewTicker(ta.interval)
	defer ticker.Stop()

	var seq uint64

	for {
		select {
		case t := <-ticker.C:
			payload := fmt.Sprintf("%s seq=%d t=%.3f", ta.prefix, seq, float64(t.UnixNano())/float64(time.Second))
			seq++

			ta.sender <- SubmitMessage{
				Destination: ta.destination,
				Payload:     []byte(payload),
				Lifetime:    ta.lifetime,
			}

		case msg := <-ta.receiver:
			switch msg.(type) {
			case ShutdownMessage:
				return

			default:
				log.WithField("message", msg).Debug("TelemetryAgent ignores Message")
			}
		}
	}
}

// Endpoints is nil; a TelemetryAgent only produces.
func (ta *TelemetryAgent) Endpoints() []bundle.EndpointID {
	return nil
}

func (ta *TelemetryAgent) MessageReceiver() chan Message {
	return ta.receiver
}

func (ta *TelemetryAgent) MessageSender() chan Message {
	return ta.sender
}
