// SPDX-FileCopyrightText: 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package ftcp

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/mdtn/pkg/bundle"
)

// Sender is the outbound side of the framed TCP convergence layer. It is
// stateless; every Send dials a fresh connection, as the links it targets
// may vanish between any two bundles.
type Sender struct {
	maxFrame  uint32
	ioTimeout time.Duration
}

// NewSender creates a Sender with the given frame cap and I/O timeout. The
// timeout bounds dialing, and once more writing and awaiting the
// acknowledgement together, so a black-holed peer cannot pin a forward
// worker for long.
func NewSender(maxFrame uint32, ioTimeout time.Duration) *Sender {
	return &Sender{
		maxFrame:  maxFrame,
		ioTimeout: ioTimeout,
	}
}

// Send transmits one bundle to the peer at address. A nil return means the
// peer read the complete frame and closed cleanly.
func (s *Sender) Send(address string, b bundle.Bundle) error {
	data := b.ToCbor()
	if uint64(len(data)) > uint64(s.maxFrame) {
		return &bundle.OversizeError{Size: uint64(len(data)), Max: uint64(s.maxFrame)}
	}

	conn, err := net.DialTimeout("tcp", address, s.ioTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(s.ioTimeout))

	frame := make([]byte, frameHeaderLen+len(data))
	binary.BigEndian.PutUint32(frame[:frameHeaderLen], uint32(len(data)))
	copy(frame[frameHeaderLen:], data)

	if _, err := conn.Write(frame); err != nil {
		return err
	}

	// Half-close, then wait for the peer's clean close as the ACK. Anything
	// else, a reset, stray data or a timeout, counts as a failed attempt.
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.CloseWrite(); err != nil {
			return err
		}
	}

	var trailing [1]byte
	switch n, err := conn.Read(trailing[:]); {
	case err == io.EOF:
		log.WithFields(log.Fields{
			"bundle": b.ID(),
			"peer":   address,
		}).Debug("ftcp sender got the peer's clean close")
		return nil

	case err != nil:
		return fmt.Errorf("awaiting acknowledgement: %w", err)

	default:
		return fmt.Errorf("peer sent %d unexpected trailing bytes", n)
	}
}
