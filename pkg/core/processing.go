// SPDX-FileCopyrightText: 2026 Alvar Penning
// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/mdtn/pkg/bundle"
	"github.com/dtn7/mdtn/pkg/storage"
)

// Submit creates a bundle from a local application payload, persists it and
// enqueues it for transmission. There is no error return; once the ID is
// handed back, delivery is the node's best-effort obligation until the
// bundle's lifetime ends. Store failures are logged and counted.
func (c *Core) Submit(destination bundle.EndpointID, payload []byte, lifetime uint64) bundle.BundleID {
	if lifetime == 0 {
		lifetime = c.opts.DefaultLifetime
	}

	b := bundle.New(c.NodeId, destination, payload, lifetime)
	bid := b.ID()

	logger := log.WithFields(log.Fields{
		"bundle":      bid,
		"destination": destination,
	})

	switch err := c.store.Put(b); {
	case errors.Is(err, storage.ErrAlreadyPresent):
		logger.Debug("Submitted bundle is already known")
		return bid

	case err != nil:
		c.metrics.StoreFailures.Inc()
		logger.WithError(err).Error("Persisting submitted bundle errored")
		return bid
	}

	c.metrics.BundlesSent.Inc()
	logger.Info("Submitted new bundle")

	c.dispatch(b)

	return bid
}

// OnReceived is the listener's hand-off for each decoded inbound bundle: the
// expiry check, the durable store write and a local delivery happen inline,
// forwarding to the next hop is queued asynchronously.
func (c *Core) OnReceived(b bundle.Bundle) {
	bid := b.ID()
	logger := log.WithFields(log.Fields{
		"bundle":      bid,
		"source":      b.Source,
		"destination": b.Destination,
	})

	if b.IsExpiredAt(time.Now()) {
		c.metrics.BundlesExpired.Inc()
		logger.Info("Dropped bundle which expired in flight")
		return
	}

	switch err := c.store.Put(b); {
	case errors.Is(err, storage.ErrAlreadyPresent):
		c.metrics.BundlesDuplicate.Inc()
		logger.Debug("Dropped duplicate bundle")
		return

	case err != nil:
		c.metrics.StoreFailures.Inc()
		logger.WithError(err).Error("Persisting received bundle errored")
		return
	}

	c.metrics.BundlesReceived.Inc()
	logger.Info("Received new bundle")

	c.dispatch(b)
}

// dispatch routes a freshly stored bundle: local delivery or the forward
// queue.
func (c *Core) dispatch(b bundle.Bundle) {
	if b.Destination == c.NodeId {
		c.localDelivery(b)
	} else {
		c.enqueue(b.ID())
	}
}

// localDelivery emits the delivery record, notifies the application agents
// and keeps the bundle stored until expiry so that retransmissions keep
// hitting the duplicate check.
func (c *Core) localDelivery(b bundle.Bundle) {
	bid := b.ID()
	now := bundle.UnixNowFloat()

	path := make([]string, 0, len(b.Path))
	for _, eid := range b.Path {
		path = append(path, eid.String())
	}

	rec := storage.DeliveryRecord{
		BundleID:    bid.String(),
		Source:      b.Source.String(),
		E2EDelay:    now - b.CreatedAt,
		HopCount:    b.HopCount,
		Path:        path,
		DeliveredAt: now,
	}

	if err := c.deliveryLog.Append(rec); err != nil {
		c.metrics.StoreFailures.Inc()
		log.WithFields(log.Fields{
			"bundle": bid,
			"error":  err,
		}).Error("Appending delivery record errored")
	}

	c.metrics.BundlesDelivered.Inc()

	if err := c.store.SetPending(bid, false); err != nil {
		log.WithFields(log.Fields{
			"bundle": bid,
			"error":  err,
		}).Warn("Clearing pending flag after delivery errored")
	}

	log.WithFields(log.Fields{
		"bundle":    bid,
		"source":    b.Source,
		"e2e_delay": rec.E2EDelay,
		"hop_count": rec.HopCount,
	}).Info("Delivered bundle")

	c.agents.Deliver(b.Destination, rec, b.Payload)
}

// sweep is the periodic expiration pass over the store.
func (c *Core) sweep() {
	if deleted := c.store.DeleteExpired(time.Now()); deleted > 0 {
		c.metrics.BundlesExpired.Add(float64(deleted))

		log.WithFields(log.Fields{
			"node":    c.NodeId,
			"deleted": deleted,
		}).Info("Sweeper deleted expired bundles")
	}
}

// resweep re-enqueues every pending bundle that is not already in flight.
// This is how the node recovers after a restart and how a pending bundle
// that left the in-flight set without a successful transmission, e.g., for
// lack of a next hop, gets another attempt. Bundles in a retry backoff stay
// in flight and are skipped.
func (c *Core) resweep() {
	items, err := c.store.Pending()
	if err != nil {
		log.WithError(err).Warn("Querying pending bundles errored")
		return
	}

	for _, item := range items {
		bid := item.BundleID()

		if item.Destination == c.NodeId.String() {
			// Pending with a local destination only happens after a crash
			// between the store write and the delivery record.
			if b, err := c.store.Get(bid); err == nil {
				c.localDelivery(b)
			}
			continue
		}

		c.enqueue(bid)
	}
}
