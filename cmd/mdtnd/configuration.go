// SPDX-FileCopyrightText: 2026 Alvar Penning
// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/BurntSushi/toml"

	"github.com/dtn7/mdtn/pkg/agent"
	"github.com/dtn7/mdtn/pkg/bundle"
	"github.com/dtn7/mdtn/pkg/core"
)

// tomlConfig describes the TOML-configuration.
type tomlConfig struct {
	Core  coreConf
	Log   logConf
	Agent agentConf
}

// coreConf describes the [core] block.
type coreConf struct {
	NodeId           string   `toml:"node-id"`
	NodeRole         string   `toml:"node-role"`
	ListenPort       int      `toml:"listen-port"`
	StorageDir       string   `toml:"storage-dir"`
	Neighbors        []string `toml:"neighbors"`
	DefaultLifetimeS uint64   `toml:"default-lifetime-s"`
	SweeperPeriodS   uint     `toml:"sweeper-period-s"`
	ResendPeriodS    uint     `toml:"resend-period-s"`
	MaxFrameBytes    uint32   `toml:"max-frame-bytes"`
	ForwardWorkers   int      `toml:"forward-workers"`
	IoTimeoutS       uint     `toml:"io-timeout-s"`
	Profiling        bool     `toml:"profiling"`
}

// logConf describes the [log] block.
type logConf struct {
	Level        string
	Format       string
	ReportCaller bool `toml:"report-caller"`
}

// agentConf describes the [agent] block with its role specific sub-blocks.
type agentConf struct {
	Telemetry telemetryConf
	Exchange  exchangeConf
	Rest      restConf
}

type telemetryConf struct {
	Destination string
	PeriodS     uint   `toml:"period-s"`
	LifetimeS   uint64 `toml:"lifetime-s"`
	Prefix      string
}

type exchangeConf struct {
	Destination string
	Outbox      string
	Inbox       string
	LifetimeS   uint64 `toml:"lifetime-s"`
}

type restConf struct {
	Listen string
}

// setupLogging configures logrus from the [log] block.
func setupLogging(conf logConf) {
	if conf.Level != "" {
		if lvl, err := log.ParseLevel(conf.Level); err != nil {
			log.WithFields(log.Fields{
				"level":    conf.Level,
				"error":    err,
				"provided": "panic,fatal,error,warn,info,debug,trace",
			}).Warn("Failed to set log level. Please select one of the provided ones")
		} else {
			log.SetLevel(lvl)
		}
	}

	log.SetReportCaller(conf.ReportCaller)

	switch conf.Format {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05.000",
		})

	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})

	default:
		log.Warn("Unknown logging format")
	}
}

// startupError marks a failure past configuration parsing, e.g., an
// unopenable store. It maps to a different exit code than a config error.
type startupError struct {
	err error
}

func (e *startupError) Error() string {
	return e.err.Error()
}

func (e *startupError) Unwrap() error {
	return e.err
}

// parseCore builds the node, not yet started, from the given TOML
// configuration file.
// Returned errors are configuration errors unless wrapped as startupError;
// a failed Start is reported separately by the caller.
func parseCore(filename string) (c *core.Core, profiling bool, err error) {
	var conf tomlConfig
	if _, err = toml.DecodeFile(filename, &conf); err != nil {
		return
	}

	setupLogging(conf.Log)

	nodeId, nodeErr := bundle.NewEndpointID(conf.Core.NodeId)
	if nodeErr != nil {
		err = fmt.Errorf("core.node-id: %w", nodeErr)
		return
	}

	role := conf.Core.NodeRole
	switch role {
	case "":
		role = "relay"
	case "source", "relay", "sink":
	default:
		err = fmt.Errorf("core.node-role %q is not one of source, relay, sink", role)
		return
	}

	if conf.Core.StorageDir == "" {
		err = fmt.Errorf("core.storage-dir is empty")
		return
	}

	neighbors := core.NewNeighborTable()
	for _, spec := range conf.Core.Neighbors {
		n, nErr := core.ParseNeighbor(spec)
		if nErr != nil {
			err = nErr
			return
		}
		if addErr := neighbors.Add(n); addErr != nil {
			err = addErr
			return
		}
	}

	listenPort := conf.Core.ListenPort
	if listenPort == 0 {
		listenPort = 4556
	}

	opts := core.Options{
		ListenAddress:   fmt.Sprintf(":%d", listenPort),
		StorageDir:      conf.Core.StorageDir,
		DefaultLifetime: conf.Core.DefaultLifetimeS,
		SweeperPeriod:   time.Duration(conf.Core.SweeperPeriodS) * time.Second,
		ResendPeriod:    time.Duration(conf.Core.ResendPeriodS) * time.Second,
		MaxFrame:        conf.Core.MaxFrameBytes,
		ForwardWorkers:  conf.Core.ForwardWorkers,
		IOTimeout:       time.Duration(conf.Core.IoTimeoutS) * time.Second,
	}

	c, coreErr := core.NewCore(nodeId, neighbors, opts)
	if coreErr != nil {
		err = &startupError{err: coreErr}
		return
	}

	if agentErr := setupAgents(c, nodeId, role, conf.Agent); agentErr != nil {
		err = agentErr
		return
	}

	profiling = conf.Core.Profiling
	return
}

// setupAgents attaches the application agents selected by the node's role.
func setupAgents(c *core.Core, nodeId bundle.EndpointID, role string, conf agentConf) error {
	switch role {
	case "source":
		if conf.Telemetry.Destination != "" {
			dst, err := bundle.NewEndpointID(conf.Telemetry.Destination)
			if err != nil {
				return fmt.Errorf("agent.telemetry.destination: %w", err)
			}

			period := conf.Telemetry.PeriodS
			if period == 0 {
				period = 10
			}
			prefix := conf.Telemetry.Prefix
			if prefix == "" {
				prefix = "telemetry"
			}

			c.RegisterAgent(agent.NewTelemetryAgent(
				dst, time.Duration(period)*time.Second, conf.Telemetry.LifetimeS, prefix))

			log.WithFields(log.Fields{
				"destination": dst,
				"period_s":    period,
			}).Info("Registered telemetry agent")
		}

	case "sink":
		if conf.Exchange.Outbox != "" && conf.Exchange.Inbox != "" {
			dst := nodeId
			if conf.Exchange.Destination != "" {
				var err error
				if dst, err = bundle.NewEndpointID(conf.Exchange.Destination); err != nil {
					return fmt.Errorf("agent.exchange.destination: %w", err)
				}
			}

			ex, err := agent.NewExchangeAgent(
				nodeId, dst, conf.Exchange.Outbox, conf.Exchange.Inbox, conf.Exchange.LifetimeS)
			if err != nil {
				return fmt.Errorf("agent.exchange: %w", err)
			}
			c.RegisterAgent(ex)

			log.WithFields(log.Fields{
				"outbox": conf.Exchange.Outbox,
				"inbox":  conf.Exchange.Inbox,
			}).Info("Registered exchange agent")
		}

	case "relay":
		// A relay carries no application surface beyond the REST agent.
	}

	if conf.Rest.Listen != "" {
		ra, err := agent.NewRestAgent(nodeId, conf.Rest.Listen, c.Submit, c.Metrics())
		if err != nil {
			return fmt.Errorf("agent.rest: %w", err)
		}
		c.RegisterAgent(ra)

		log.WithField("listen", ra.ListenAddress()).Info("Registered REST agent")
	}

	return nil
}
