// SPDX-FileCopyrightText: 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/dtn7/mdtn/pkg/bundle"
)

// Neighbor is a statically configured peer: an endpoint reachable at a fixed
// transport address.
type Neighbor struct {
	EID  bundle.EndpointID
	Host string
	Port int
}

// Address is the neighbor's dialable "host:port" form.
func (n Neighbor) Address() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}

func (n Neighbor) String() string {
	return fmt.Sprintf("%s@%s", n.EID, n.Address())
}

// ParseNeighbor parses the "eid:host:port" notation.
func ParseNeighbor(spec string) (n Neighbor, err error) {
	fields := strings.Split(spec, ":")
	if len(fields) != 3 {
		err = fmt.Errorf("neighbor %q is not of the form eid:host:port", spec)
		return
	}

	eid, eidErr := bundle.NewEndpointID(fields[0])
	if eidErr != nil {
		err = eidErr
		return
	}
	if fields[1] == "" {
		err = fmt.Errorf("neighbor %q has an empty host", spec)
		return
	}

	port, portErr := strconv.Atoi(fields[2])
	if portErr != nil || port <= 0 || port > 65535 {
		err = fmt.Errorf("neighbor %q has an invalid port", spec)
		return
	}

	n = Neighbor{EID: eid, Host: fields[1], Port: port}
	return
}

// NeighborTable is the static next-hop map. It may hold several entries, but
// the routing policy is single-next-hop: NextHop always answers with the
// first configured neighbor.
type NeighborTable struct {
	mutex   sync.RWMutex
	order   []bundle.EndpointID
	entries map[bundle.EndpointID]Neighbor
}

// NewNeighborTable creates an empty NeighborTable.
func NewNeighborTable() *NeighborTable {
	return &NeighborTable{
		entries: make(map[bundle.EndpointID]Neighbor),
	}
}

// Add registers a neighbor. Re-registering a known EID is an error; the
// table is static for the node's lifetime.
func (nt *NeighborTable) Add(n Neighbor) error {
	nt.mutex.Lock()
	defer nt.mutex.Unlock()

	if _, exists := nt.entries[n.EID]; exists {
		return fmt.Errorf("neighbor %s is already registered", n.EID)
	}

	nt.order = append(nt.order, n.EID)
	nt.entries[n.EID] = n

	return nil
}

// Lookup a neighbor's transport address by its EID.
func (nt *NeighborTable) Lookup(eid bundle.EndpointID) (Neighbor, bool) {
	nt.mutex.RLock()
	defer nt.mutex.RUnlock()

	n, ok := nt.entries[eid]
	return n, ok
}

// NextHop is the single neighbor every non-local bundle is forwarded to.
func (nt *NeighborTable) NextHop() (Neighbor, bool) {
	nt.mutex.RLock()
	defer nt.mutex.RUnlock()

	if len(nt.order) == 0 {
		return Neighbor{}, false
	}
	return nt.entries[nt.order[0]], true
}

// Len is the number of registered neighbors.
func (nt *NeighborTable) Len() int {
	nt.mutex.RLock()
	defer nt.mutex.RUnlock()

	return len(nt.order)
}
