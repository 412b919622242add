// SPDX-FileCopyrightText: 2026 Alvar Penning
// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package core is the forwarding engine of a node: it accepts submissions
// and inbound bundles, deduplicates against the persistent store, delivers
// locally or forwards to the static next hop, retries over link outages and
// garbage-collects expired bundles.
package core

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hashicorp/go-multierror"

	"github.com/dtn7/mdtn/pkg/agent"
	"github.com/dtn7/mdtn/pkg/bundle"
	"github.com/dtn7/mdtn/pkg/cla"
	"github.com/dtn7/mdtn/pkg/cla/ftcp"
	"github.com/dtn7/mdtn/pkg/metrics"
	"github.com/dtn7/mdtn/pkg/storage"
)

// Options configures a Core. The zero value is completed by sane defaults
// through normalize.
type Options struct {
	ListenAddress string // defaults to ":4556"
	StorageDir    string // required

	DefaultLifetime uint64        // seconds, defaults to 3600
	SweeperPeriod   time.Duration // defaults to 60 s
	ResendPeriod    time.Duration // defaults to 30 s
	MaxFrame        uint32        // bytes, defaults to 1 MiB
	ForwardWorkers  int           // defaults to 4
	IOTimeout       time.Duration // defaults to 10 s
}

func (opts *Options) normalize() error {
	if opts.StorageDir == "" {
		return fmt.Errorf("storage directory is required")
	}

	if opts.ListenAddress == "" {
		opts.ListenAddress = ":4556"
	}
	if opts.DefaultLifetime == 0 {
		opts.DefaultLifetime = 3600
	}
	if opts.SweeperPeriod == 0 {
		opts.SweeperPeriod = 60 * time.Second
	}
	if opts.ResendPeriod == 0 {
		opts.ResendPeriod = 30 * time.Second
	}
	if opts.MaxFrame == 0 {
		opts.MaxFrame = 1 << 20
	}
	if opts.ForwardWorkers <= 0 {
		opts.ForwardWorkers = 4
	}
	if opts.IOTimeout == 0 {
		opts.IOTimeout = 10 * time.Second
	}

	return nil
}

// Core is one node's forwarding engine together with its shared handles:
// store, metrics, neighbor table, delivery log and the agent manager.
type Core struct {
	NodeId bundle.EndpointID

	opts      Options
	store     *storage.Store
	metrics   *metrics.Metrics
	neighbors *NeighborTable

	deliveryLog *storage.DeliveryLog
	agents      *agent.Manager

	receiver cla.ConvergenceReceiver
	sender   cla.ConvergenceSender

	cron *Cron

	forwardChan chan bundle.BundleID
	inflight    *inflightSet

	stopSyn chan struct{}
	workers workerGroup
}

// NewCore creates a Core. The store is opened (re-indexing surviving
// bundles), but no socket is bound before Start.
func NewCore(nodeId bundle.EndpointID, neighbors *NeighborTable, opts Options) (*Core, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	store, err := storage.NewStore(opts.StorageDir)
	if err != nil {
		return nil, err
	}

	deliveryLog, err := storage.OpenDeliveryLog(storage.DeliveryLogPath(opts.StorageDir))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	m := metrics.New(nodeId.String())
	m.RegisterStoredGauge(nodeId.String(), store.Count)

	c := &Core{
		NodeId: nodeId,

		opts:      opts,
		store:     store,
		metrics:   m,
		neighbors: neighbors,

		deliveryLog: deliveryLog,

		sender: ftcp.NewSender(opts.MaxFrame, opts.IOTimeout),

		forwardChan: make(chan bundle.BundleID, 1024),
		inflight:    newInflightSet(),

		stopSyn: make(chan struct{}),
	}

	c.agents = agent.NewManager(c.Submit)
	c.receiver = ftcp.NewServer(opts.ListenAddress, opts.MaxFrame, opts.IOTimeout, m, c.OnReceived)

	return c, nil
}

// Start binds the listener, spawns the forward workers, arms the periodic
// jobs and re-enqueues every pending bundle from the store. A returned
// error, a failed bind, is fatal.
func (c *Core) Start() error {
	if err := c.receiver.Start(); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"node":   c.NodeId,
		"listen": c.receiver.Address(),
		"stored": c.store.Count(),
	}).Info("Node is up")

	for i := 0; i < c.opts.ForwardWorkers; i++ {
		c.workers.spawn(c.forwardWorker)
	}

	c.cron = NewCron()
	if err := c.cron.Register("sweeper", c.sweep, c.opts.SweeperPeriod); err != nil {
		return err
	}
	if err := c.cron.Register("resend", c.resweep, c.opts.ResendPeriod); err != nil {
		return err
	}

	// Store-and-forward across restarts: everything still pending re-enters
	// the engine right away, not only at the first re-sweep tick.
	c.resweep()

	return nil
}

// RegisterAgent attaches an ApplicationAgent to this node.
func (c *Core) RegisterAgent(a agent.ApplicationAgent) {
	c.agents.Register(a)
}

// Metrics returns this node's counters.
func (c *Core) Metrics() *metrics.Metrics {
	return c.metrics
}

// Store returns this node's bundle store handle.
func (c *Core) Store() *storage.Store {
	return c.store
}

// Close shuts the node down: the listener refuses new connections, retry
// timers are cancelled, workers drain, agents are told to shut down, and
// finally the store is closed. Bundles interrupted mid-transmission stay in
// the store, so resumption after a restart is lossless.
func (c *Core) Close() error {
	var closeErr error

	if c.cron != nil {
		c.cron.Stop()
	}

	c.receiver.Close()

	close(c.stopSyn)
	c.inflight.stopTimers()
	c.workers.wait()

	c.agents.Close()

	if err := c.deliveryLog.Close(); err != nil {
		closeErr = multierror.Append(closeErr, err)
	}
	if err := c.store.Close(); err != nil {
		closeErr = multierror.Append(closeErr, err)
	}

	log.WithField("node", c.NodeId).Info("Node is down")

	return closeErr
}
