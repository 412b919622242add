// SPDX-FileCopyrightText: 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/mdtn/pkg/bundle"
)

const (
	retryInitial = time.Second
	retryCap     = 60 * time.Second
)

// retryDelay is the bounded exponential backoff before the given attempt,
// counted from one: 1 s, 2 s, 4 s, ... capped at a minute, each stretched by
// a +-20 % jitter so parallel retry trains against one peer spread out.
func retryDelay(attempt int) time.Duration {
	d := retryCap
	if attempt < 8 {
		d = retryInitial << (attempt - 1)
		if d > retryCap {
			d = retryCap
		}
	}

	return time.Duration(float64(d) * (0.8 + 0.4*rand.Float64()))
}

// transmission is the per-bundle state while it sits between its first
// enqueue and its transmission outcome.
type transmission struct {
	attempts int
	timer    *time.Timer
}

// inflightSet guarantees at most one outstanding transmission per bundle:
// the re-sweep and fresh receptions of the same ID cannot double-enqueue.
type inflightSet struct {
	mutex   sync.Mutex
	entries map[bundle.BundleID]*transmission
}

func newInflightSet() *inflightSet {
	return &inflightSet{
		entries: make(map[bundle.BundleID]*transmission),
	}
}

// acquire marks a bundle as in flight; false if it already is.
func (ifs *inflightSet) acquire(bid bundle.BundleID) bool {
	ifs.mutex.Lock()
	defer ifs.mutex.Unlock()

	if _, ok := ifs.entries[bid]; ok {
		return false
	}
	ifs.entries[bid] = &transmission{}
	return true
}

// scheduleRetry increments the attempt counter and arms the timer built by
// mkTimer, keeping it for a later stopTimers. mkTimer must not call back
// into this inflightSet.
func (ifs *inflightSet) scheduleRetry(bid bundle.BundleID, mkTimer func(attempt int) *time.Timer) int {
	ifs.mutex.Lock()
	defer ifs.mutex.Unlock()

	tx, ok := ifs.entries[bid]
	if !ok {
		return 0
	}

	tx.attempts++
	tx.timer = mkTimer(tx.attempts)
	return tx.attempts
}

// release forgets a bundle's transmission state.
func (ifs *inflightSet) release(bid bundle.BundleID) {
	ifs.mutex.Lock()
	defer ifs.mutex.Unlock()

	delete(ifs.entries, bid)
}

// stopTimers cancels all pending retry timers at shutdown.
func (ifs *inflightSet) stopTimers() {
	ifs.mutex.Lock()
	defer ifs.mutex.Unlock()

	for _, tx := range ifs.entries {
		if tx.timer != nil {
			tx.timer.Stop()
		}
	}
}

// workerGroup tracks the forward worker goroutines for shutdown.
type workerGroup struct {
	wg sync.WaitGroup
}

func (wg *workerGroup) spawn(fn func()) {
	wg.wg.Add(1)
	go func() {
		defer wg.wg.Done()
		fn()
	}()
}

func (wg *workerGroup) wait() {
	wg.wg.Wait()
}

// enqueue queues a bundle for transmission unless it is already in flight.
func (c *Core) enqueue(bid bundle.BundleID) {
	if !c.inflight.acquire(bid) {
		return
	}
	c.push(bid)
}

// push places an already acquired bundle into the forward channel without
// ever blocking the caller; the channel's slack is spilled into a goroutine.
func (c *Core) push(bid bundle.BundleID) {
	select {
	case c.forwardChan <- bid:
	default:
		go func() {
			select {
			case c.forwardChan <- bid:
			case <-c.stopSyn:
			}
		}()
	}
}

func (c *Core) forwardWorker() {
	for {
		select {
		case <-c.stopSyn:
			return

		case bid := <-c.forwardChan:
			c.forward(bid)
		}
	}
}

// forward drives one transmission attempt for a stored bundle.
func (c *Core) forward(bid bundle.BundleID) {
	logger := log.WithField("bundle", bid)

	b, err := c.store.Get(bid)
	if err != nil {
		// Deleted meanwhile, e.g., by the sweeper; nothing left to do.
		c.inflight.release(bid)
		return
	}

	if b.IsExpiredAt(time.Now()) {
		c.metrics.BundlesExpired.Inc()
		if err := c.store.Delete(bid); err != nil {
			logger.WithError(err).Warn("Deleting expired bundle errored")
		}
		c.inflight.release(bid)
		logger.Info("Gave up on expired bundle")
		return
	}

	hop, ok := c.neighbors.NextHop()
	if !ok {
		// Stays stored and pending; a later re-sweep tries again.
		c.inflight.release(bid)
		logger.Warn("No next-hop neighbor configured")
		return
	}

	// Stamp the forward-image once per hop, surviving retries unchanged: the
	// hop count and path are updated atomically and written back before the
	// first attempt.
	if len(b.Path) == 0 || b.Path[len(b.Path)-1] != c.NodeId {
		b.AddHop(c.NodeId)

		if err := c.store.Update(b); err != nil {
			c.metrics.StoreFailures.Inc()
			c.inflight.release(bid)
			logger.WithError(err).Error("Updating forward-image errored")
			return
		}
	}

	if err := c.sender.Send(hop.Address(), b); err != nil {
		c.metrics.TransportFailures.Inc()
		c.scheduleRetry(bid, hop, err)
		return
	}

	c.metrics.BundlesForwarded.Inc()
	c.inflight.release(bid)

	// The bundle stays stored as a shield against upstream retransmissions,
	// but is no longer pending: each hop transmits it successfully once.
	if err := c.store.SetPending(bid, false); err != nil {
		logger.WithError(err).Warn("Clearing pending flag after forward errored")
	}

	logger.WithFields(log.Fields{
		"peer":      hop.EID,
		"hop_count": b.HopCount,
	}).Info("Forwarded bundle")
}

// scheduleRetry arms the backoff timer after a failed transmission attempt.
// The bundle keeps its in-flight slot, so nothing else can race a second
// transmission; retries end when the bundle expires.
func (c *Core) scheduleRetry(bid bundle.BundleID, hop Neighbor, cause error) {
	var delay time.Duration

	attempt := c.inflight.scheduleRetry(bid, func(attempt int) *time.Timer {
		delay = retryDelay(attempt)
		return time.AfterFunc(delay, func() {
			c.push(bid)
		})
	})

	log.WithFields(log.Fields{
		"bundle":  bid,
		"peer":    hop.EID,
		"attempt": attempt,
		"delay":   delay,
		"error":   cause,
	}).Warn("Transmission failed, retry scheduled")
}
