// SPDX-FileCopyrightText: 2026 Alvar Penning
// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtn7/mdtn/pkg/bundle"
	"github.com/dtn7/mdtn/pkg/storage"
)

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

// testNode spins up a started Core on a loopback port with fast periods.
func testNode(t *testing.T, eid bundle.EndpointID, port int, storageDir string, neighbors ...Neighbor) *Core {
	t.Helper()

	nt := NewNeighborTable()
	for _, n := range neighbors {
		require.NoError(t, nt.Add(n))
	}

	c, err := NewCore(eid, nt, Options{
		ListenAddress: fmt.Sprintf("localhost:%d", port),
		StorageDir:    storageDir,
		SweeperPeriod: time.Second,
		ResendPeriod:  time.Second,
		IOTimeout:     2 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, c.Start())

	return c
}

func waitForCounter(t *testing.T, c *Core, counter string, want uint64, timeout time.Duration) {
	t.Helper()

	require.Eventually(t, func() bool {
		return c.Metrics().Snapshot()[counter] >= want
	}, timeout, 50*time.Millisecond, "counter %s did not reach %d", counter, want)
}

func TestDirectDelivery(t *testing.T) {
	portA, portB := freePort(t), freePort(t)
	dirB := t.TempDir()

	a := testNode(t, "A", portA, t.TempDir(),
		Neighbor{EID: "B", Host: "localhost", Port: portB})
	defer a.Close()

	b := testNode(t, "B", portB, dirB)
	defer b.Close()

	bid := a.Submit("B", []byte("hello"), 60)

	waitForCounter(t, b, "bundles_delivered", 1, 10*time.Second)

	recs, err := storage.ReadDeliveryLog(storage.DeliveryLogPath(dirB))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, bid.String(), recs[0].BundleID)
	assert.Equal(t, "A", recs[0].Source)
	assert.EqualValues(t, 1, recs[0].HopCount)
	assert.Equal(t, []string{"A"}, recs[0].Path)
	assert.GreaterOrEqual(t, recs[0].E2EDelay, 0.0)

	snapshotA := a.Metrics().Snapshot()
	assert.EqualValues(t, 1, snapshotA["bundles_sent"])
	assert.EqualValues(t, 1, snapshotA["bundles_forwarded"])

	// Retained until expiry as a deduplication shield.
	assert.True(t, b.Store().KnowsBundle(bid))
}

func TestTwoHopRelay(t *testing.T) {
	portA, portR, portC := freePort(t), freePort(t), freePort(t)
	dirC := t.TempDir()

	a := testNode(t, "A", portA, t.TempDir(),
		Neighbor{EID: "R", Host: "localhost", Port: portR})
	defer a.Close()

	r := testNode(t, "R", portR, t.TempDir(),
		Neighbor{EID: "C", Host: "localhost", Port: portC})
	defer r.Close()

	c := testNode(t, "C", portC, dirC)
	defer c.Close()

	bid := a.Submit("C", []byte("x"), 60)

	waitForCounter(t, c, "bundles_delivered", 1, 10*time.Second)

	recs, err := storage.ReadDeliveryLog(storage.DeliveryLogPath(dirC))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	assert.Equal(t, bid.String(), recs[0].BundleID)
	assert.EqualValues(t, 2, recs[0].HopCount)
	assert.Equal(t, []string{"A", "R"}, recs[0].Path)

	assert.EqualValues(t, 1, r.Metrics().Snapshot()["bundles_forwarded"])
	assert.EqualValues(t, 1, r.Metrics().Snapshot()["bundles_received"])
}

func TestDuplicateSuppression(t *testing.T) {
	portB := freePort(t)
	dirB := t.TempDir()

	b := testNode(t, "B", portB, dirB)
	defer b.Close()

	// The same bundle arriving twice, as an upstream retransmission would.
	bndl := bundle.New("A", "B", []byte("once"), 60)
	bndl.AddHop("A")

	b.OnReceived(bndl)
	b.OnReceived(bndl)

	waitForCounter(t, b, "bundles_delivered", 1, 5*time.Second)

	snapshot := b.Metrics().Snapshot()
	assert.EqualValues(t, 1, snapshot["bundles_received"])
	assert.EqualValues(t, 1, snapshot["bundles_delivered"])
	assert.EqualValues(t, 1, snapshot["bundles_duplicate"])

	recs, err := storage.ReadDeliveryLog(storage.DeliveryLogPath(dirB))
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestOutageRecovery(t *testing.T) {
	// The sink's port stays dark while the source retries; once the sink
	// comes up, the stored bundle must make it through.
	portA, portB := freePort(t), freePort(t)
	dirB := t.TempDir()

	a := testNode(t, "A", portA, t.TempDir(),
		Neighbor{EID: "B", Host: "localhost", Port: portB})
	defer a.Close()

	a.Submit("B", []byte("y"), 600)

	// Let some transmission attempts fail against the dark port.
	waitForCounter(t, a, "transport_failures", 1, 5*time.Second)
	assert.EqualValues(t, 1, a.Metrics().Snapshot()["bundles_stored"])
	assert.EqualValues(t, 0, a.Metrics().Snapshot()["bundles_expired"])

	b := testNode(t, "B", portB, dirB)
	defer b.Close()

	waitForCounter(t, b, "bundles_delivered", 1, 15*time.Second)
	waitForCounter(t, a, "bundles_forwarded", 1, 5*time.Second)
	assert.EqualValues(t, 0, a.Metrics().Snapshot()["bundles_expired"])
}

func TestExpirationWhilePartitioned(t *testing.T) {
	portA, portDark := freePort(t), freePort(t)

	a := testNode(t, "A", portA, t.TempDir(),
		Neighbor{EID: "R", Host: "localhost", Port: portDark})
	defer a.Close()

	a.Submit("C", []byte("z"), 1)

	waitForCounter(t, a, "bundles_expired", 1, 10*time.Second)

	assert.Eventually(t, func() bool {
		return a.Store().Count() == 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestRestartRecovery(t *testing.T) {
	// Submit, shut the node down before any transmission succeeds, restart
	// it on the same storage directory: the bundle must still arrive.
	portB := freePort(t)
	dirA, dirB := t.TempDir(), t.TempDir()

	a1 := testNode(t, "A", freePort(t), dirA,
		Neighbor{EID: "B", Host: "localhost", Port: portB})

	bid := a1.Submit("B", []byte("w"), 300)
	require.NoError(t, a1.Close())

	b := testNode(t, "B", portB, dirB)
	defer b.Close()

	a2 := testNode(t, "A", freePort(t), dirA,
		Neighbor{EID: "B", Host: "localhost", Port: portB})
	defer a2.Close()

	waitForCounter(t, b, "bundles_delivered", 1, 15*time.Second)

	recs, err := storage.ReadDeliveryLog(storage.DeliveryLogPath(dirB))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, bid.String(), recs[0].BundleID)
}

func TestSubmitAppliesDefaultLifetime(t *testing.T) {
	portA := freePort(t)
	a := testNode(t, "A", portA, t.TempDir(),
		Neighbor{EID: "B", Host: "localhost", Port: freePort(t)})
	defer a.Close()

	bid := a.Submit("B", []byte("defaults"), 0)

	b, err := a.Store().Get(bid)
	require.NoError(t, err)
	assert.EqualValues(t, 3600, b.Lifetime)
}
