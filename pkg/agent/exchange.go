// SPDX-FileCopyrightText: 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package agent

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/fsnotify/fsnotify"

	"github.com/dtn7/mdtn/pkg/bundle"
)

// ExchangeAgent exchanges payloads with the local filesystem: files dropped
// into the outbox directory are submitted to a fixed destination and removed
// afterwards; delivered payloads appear in the inbox directory, named by
// their bundle ID.
type ExchangeAgent struct {
	endpoint    bundle.EndpointID
	destination bundle.EndpointID
	outbox      string
	inbox       string
	lifetime    uint64

	watcher *fsnotify.Watcher

	receiver chan Message
	sender   chan Message
}

// NewExchangeAgent creates and starts an ExchangeAgent. The endpoint is the
// local node's EID, for which deliveries will be written to the inbox.
func NewExchangeAgent(endpoint, destination bundle.EndpointID, outbox, inbox string, lifetime uint64) (*ExchangeAgent, error) {
	for _, dir := range []string{outbox, inbox} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, err
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(outbox); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	ex := &ExchangeAgent{
		endpoint:    endpoint,
		destination: destination,
		outbox:      outbox,
		inbox:       inbox,
		lifetime:    lifetime,

		watcher: watcher,

		receiver: make(chan Message),
		sender:   make(chan Message),
	}

	go ex.handler()

	return ex, nil
}

func (ex *ExchangeAgent) log() *log.Entry {
	return log.WithField("ExchangeAgent", ex.outbox)
}

func (ex *ExchangeAgent) handler() {
	defer func() {
		_ = ex.watcher.Close()
		close(ex.sender)
	}()

	for {
		select {
		case e, ok := <-ex.watcher.Events:
			if !ok {
				ex.log().Error("fsnotify's event channel was closed")
				return
			}

			if e.Op&fsnotify.Create == 0 {
				continue
			}

			ex.submitFile(e.Name)

		case err, ok := <-ex.watcher.Errors:
			if !ok {
				ex.log().Error("fsnotify's error channel was closed")
				return
			}
			ex.log().WithError(err).Error("fsnotify errored")

		case msg := <-ex.receiver:
			switch msg := msg.(type) {
			case DeliveryMessage:
				ex.saveDelivery(msg)

			case ShutdownMessage:
				return

			default:
				ex.log().WithField("message", msg).Debug("ExchangeAgent ignores Message")
			}
		}
	}
}

func (ex *ExchangeAgent) submitFile(path string) {
	logger := ex.log().WithField("file", path)

	payload, err := os.ReadFile(path)
	if err != nil {
		logger.WithError(err).Warn("Reading outbox file errored")
		return
	}

	ex.sender <- SubmitMessage{
		Destination: ex.destination,
		Payload:     payload,
		Lifetime:    ex.lifetime,
	}

	if err := os.Remove(path); err != nil {
		logger.WithError(err).Warn("Removing consumed outbox file errored")
	}

	logger.Info("Submitted outbox file")
}

func (ex *ExchangeAgent) saveDelivery(msg DeliveryMessage) {
	path := filepath.Join(ex.inbox, msg.Record.BundleID)
	logger := ex.log().WithFields(log.Fields{
		"bundle": msg.Record.BundleID,
		"file":   path,
	})

	if err := os.WriteFile(path, msg.Payload, 0600); err != nil {
		logger.WithError(err).Error("Writing delivered payload errored")
		return
	}

	logger.Info("Saved delivered payload")
}

// Endpoints is the local node's endpoint.
func (ex *ExchangeAgent) Endpoints() []bundle.EndpointID {
	return []bundle.EndpointID{ex.endpoint}
}

func (ex *ExchangeAgent) MessageReceiver() chan Message {
	return ex.receiver
}

func (ex *ExchangeAgent) MessageSender() chan Message {
	return ex.sender
}
