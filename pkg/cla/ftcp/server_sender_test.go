// SPDX-FileCopyrightText: 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package ftcp

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtn7/mdtn/pkg/bundle"
	"github.com/dtn7/mdtn/pkg/metrics"
)

// freePort returns a currently unused TCP port.
func freePort(t *testing.T) int {
	t.Helper()

	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	require.NoError(t, err)

	l, err := net.ListenTCP("tcp", addr)
	require.NoError(t, err)

	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	return port
}

func TestServerSenderRoundTrip(t *testing.T) {
	port := freePort(t)
	m := metrics.New("test")

	var (
		mutex    sync.Mutex
		received []bundle.Bundle
	)

	serv := NewServer(fmt.Sprintf("localhost:%d", port), 1<<20, time.Second, m,
		func(b bundle.Bundle) {
			mutex.Lock()
			received = append(received, b)
			mutex.Unlock()
		})
	require.NoError(t, serv.Start())
	defer serv.Close()

	b := bundle.New("src", "dst", []byte("over the air"), 60)

	sender := NewSender(1<<20, time.Second)
	require.NoError(t, sender.Send(fmt.Sprintf("localhost:%d", port), b))

	mutex.Lock()
	defer mutex.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, b.ID(), received[0].ID())
	assert.Equal(t, b.Payload, received[0].Payload)
}

func TestServerConcurrentSenders(t *testing.T) {
	const senders = 16

	port := freePort(t)
	m := metrics.New("test")

	var (
		mutex sync.Mutex
		seen  = make(map[bundle.BundleID]int)
	)

	serv := NewServer(fmt.Sprintf("localhost:%d", port), 1<<20, time.Second, m,
		func(b bundle.Bundle) {
			mutex.Lock()
			seen[b.ID()]++
			mutex.Unlock()
		})
	require.NoError(t, serv.Start())
	defer serv.Close()

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			b := bundle.New("src", "dst", []byte(fmt.Sprintf("payload %d", i)), 60)
			sender := NewSender(1<<20, time.Second)
			assert.NoError(t, sender.Send(fmt.Sprintf("localhost:%d", port), b))
		}(i)
	}
	wg.Wait()

	mutex.Lock()
	defer mutex.Unlock()
	assert.Len(t, seen, senders)
	for bid, n := range seen {
		assert.Equal(t, 1, n, bid)
	}
}

func TestServerMalformedFrames(t *testing.T) {
	port := freePort(t)
	m := metrics.New("test")

	serv := NewServer(fmt.Sprintf("localhost:%d", port), 1024, 250*time.Millisecond, m,
		func(bundle.Bundle) { t.Error("no bundle should get through") })
	require.NoError(t, serv.Start())
	defer serv.Close()

	writeRaw := func(data []byte) {
		conn, err := net.Dial("tcp", fmt.Sprintf("localhost:%d", port))
		require.NoError(t, err)
		_, _ = conn.Write(data)
		_ = conn.Close()
	}

	// Oversized length prefix.
	var oversize [4]byte
	binary.BigEndian.PutUint32(oversize[:], 1<<30)
	writeRaw(oversize[:])

	// Complete frame carrying garbage.
	garbage := []byte{0x00, 0x00, 0x00, 0x03, 0xca, 0xfe, 0xba}
	writeRaw(garbage)

	// Truncated frame: announced 100 bytes, sent 2.
	var short [6]byte
	binary.BigEndian.PutUint32(short[:4], 100)
	writeRaw(short[:])

	assert.Eventually(t, func() bool {
		return m.Snapshot()["malformed_frames"] == 3
	}, 3*time.Second, 50*time.Millisecond)
}

func TestSenderOversizeBundle(t *testing.T) {
	sender := NewSender(64, time.Second)

	b := bundle.New("src", "dst", make([]byte, 1024), 60)
	err := sender.Send("localhost:1", b)
	require.Error(t, err)

	var oversizeErr *bundle.OversizeError
	assert.ErrorAs(t, err, &oversizeErr)
}

func TestSenderConnectionRefused(t *testing.T) {
	port := freePort(t)

	sender := NewSender(1<<20, 250*time.Millisecond)
	b := bundle.New("src", "dst", []byte("x"), 60)

	assert.Error(t, sender.Send(fmt.Sprintf("localhost:%d", port), b))
}
