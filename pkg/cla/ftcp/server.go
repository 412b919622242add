// SPDX-FileCopyrightText: 2026 Alvar Penning
// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ftcp implements the framed TCP convergence layer: one bundle per
// connection, prefixed by a four byte big endian length. The sender closes
// its write side after the frame; the receiver's clean close is the only
// acknowledgement.
package ftcp

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/mdtn/pkg/bundle"
	"github.com/dtn7/mdtn/pkg/cla"
	"github.com/dtn7/mdtn/pkg/metrics"
)

// frameHeaderLen is the length prefix's size in bytes.
const frameHeaderLen = 4

// Server is the inbound side of the framed TCP convergence layer. Accepted
// connections are handled concurrently; each carries exactly one frame.
type Server struct {
	listenAddress string
	maxFrame      uint32
	ioTimeout     time.Duration
	receive       cla.ReceiveFunc
	metrics       *metrics.Metrics

	stopSyn chan struct{}
	stopAck chan struct{}
}

// NewServer creates a Server for the given listen address. Inbound frames
// larger than maxFrame are dropped and counted as malformed.
func NewServer(listenAddress string, maxFrame uint32, ioTimeout time.Duration, m *metrics.Metrics, receive cla.ReceiveFunc) *Server {
	return &Server{
		listenAddress: listenAddress,
		maxFrame:      maxFrame,
		ioTimeout:     ioTimeout,
		receive:       receive,
		metrics:       m,

		stopSyn: make(chan struct{}),
		stopAck: make(chan struct{}),
	}
}

// Start binds the Server. A returned error means the port could not be
// bound, which is fatal for the node.
func (serv *Server) Start() error {
	tcpAddr, err := net.ResolveTCPAddr("tcp", serv.listenAddress)
	if err != nil {
		return err
	}

	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return err
	}

	go func(ln *net.TCPListener) {
		for {
			select {
			case <-serv.stopSyn:
				_ = ln.Close()
				close(serv.stopAck)
				return

			default:
				_ = ln.SetDeadline(time.Now().Add(50 * time.Millisecond))
				if conn, err := ln.Accept(); err == nil {
					go serv.handleConnection(conn)
				}
			}
		}
	}(ln)

	return nil
}

// abort drops a connection so the peer sees a reset instead of the clean
// close it would read as an acknowledgement.
func abort(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetLinger(0)
	}
}

func (serv *Server) handleConnection(conn net.Conn) {
	clean := false

	defer func() {
		if !clean {
			abort(conn)
		}
		_ = conn.Close()

		if r := recover(); r != nil {
			log.WithFields(log.Fields{
				"cla":   serv,
				"conn":  conn.RemoteAddr(),
				"error": r,
			}).Warn("ftcp connection handler failed")
		}
	}()

	_ = conn.SetDeadline(time.Now().Add(serv.ioTimeout))

	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		serv.dropMalformed(conn, fmt.Errorf("reading length prefix: %w", err))
		return
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > serv.maxFrame {
		serv.dropMalformed(conn, &bundle.OversizeError{Size: uint64(length), Max: uint64(serv.maxFrame)})
		return
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(conn, data); err != nil {
		serv.dropMalformed(conn, fmt.Errorf("short frame read: %w", err))
		return
	}

	b, err := bundle.NewBundleFromCbor(data)
	if err != nil {
		serv.dropMalformed(conn, err)
		return
	}

	log.WithFields(log.Fields{
		"bundle": b.ID(),
		"peer":   conn.RemoteAddr(),
	}).Debug("ftcp server received a bundle")

	serv.receive(b)

	// Closing cleanly after the hand-off is the acknowledgement.
	clean = true
}

func (serv *Server) dropMalformed(conn net.Conn, err error) {
	serv.metrics.MalformedFrames.Inc()

	log.WithFields(log.Fields{
		"cla":   serv,
		"peer":  conn.RemoteAddr(),
		"error": err,
	}).Warn("ftcp server dropped a malformed frame")
}

// Close shuts this Server down, refusing new inbound connections.
func (serv *Server) Close() {
	close(serv.stopSyn)
	<-serv.stopAck
}

// Address returns a unique address string for this Server.
func (serv *Server) Address() string {
	return fmt.Sprintf("ftcp://%s", serv.listenAddress)
}

func (serv *Server) String() string {
	return serv.Address()
}
