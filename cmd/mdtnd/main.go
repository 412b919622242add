// SPDX-FileCopyrightText: 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// mdtnd is the node daemon: one process, one endpoint, one storage
// directory. It is configured through a single TOML file and runs until
// SIGINT or SIGTERM.
package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/pkg/profile"
)

const (
	exitConfigError  = 2
	exitStartupError = 1
)

// waitSignal blocks until SIGINT or SIGTERM appears.
func waitSignal() {
	signalSyn := make(chan os.Signal, 1)
	signal.Notify(signalSyn, os.Interrupt, syscall.SIGTERM)

	<-signalSyn
}

func main() {
	if len(os.Args) != 2 {
		log.Errorf("Usage: %s configuration.toml", os.Args[0])
		os.Exit(exitConfigError)
	}

	c, profiling, err := parseCore(os.Args[1])
	if err != nil {
		log.WithError(err).Error("Failed to bring the node up")

		var startErr *startupError
		if errors.As(err, &startErr) {
			os.Exit(exitStartupError)
		}
		os.Exit(exitConfigError)
	}

	if profiling {
		defer profile.Start(profile.ProfilePath(".")).Stop()
	}

	if err := c.Start(); err != nil {
		log.WithError(err).Error("Failed to start node")
		os.Exit(exitStartupError)
	}

	waitSignal()
	log.Info("Shutting down..")

	if err := c.Close(); err != nil {
		log.WithError(err).Warn("Shutdown finished with errors")
	}
}
