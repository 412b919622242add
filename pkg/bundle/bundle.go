// SPDX-FileCopyrightText: 2026 Alvar Penning
// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package bundle provides the data unit of this DTN: a flat, self-describing
// bundle carrying an application payload between two endpoints, together with
// its content-addressed identifier and its CBOR serialization. The identical
// serialization is used on disk and on the wire.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
)

// BundleID is the hex form of the first 16 bytes of a SHA-256 digest over a
// Bundle's immutable fields. Identical retransmissions map to the same ID.
type BundleID string

func (bid BundleID) String() string {
	return string(bid)
}

// Bundle is a self-contained datagram. The first five fields are fixed at
// creation time; HopCount and Path are rewritten on each forward.
type Bundle struct {
	Source      EndpointID
	Destination EndpointID
	Payload     []byte

	// CreatedAt is the creation time in seconds since the Unix epoch. It is
	// kept as a float so that sub-second end-to-end delays stay measurable
	// over links with round trip times in the low seconds.
	CreatedAt float64

	// Lifetime in seconds; the bundle is expired once
	// now > CreatedAt + Lifetime.
	Lifetime uint64

	HopCount uint64
	Path     []EndpointID
}

// New creates a Bundle originating at source, stamped with the current time.
func New(source, destination EndpointID, payload []byte, lifetime uint64) Bundle {
	return Bundle{
		Source:      source,
		Destination: destination,
		Payload:     payload,
		CreatedAt:   UnixNowFloat(),
		Lifetime:    lifetime,
	}
}

// UnixNowFloat is the current time as fractional seconds since the epoch.
func UnixNowFloat() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// reprCreatedAt is the canonical decimal rendering of the creation timestamp
// used within the ID derivation: the shortest exact decimal, no exponent.
func reprCreatedAt(createdAt float64) string {
	return strconv.FormatFloat(createdAt, 'f', -1, 64)
}

// ID derives the content-addressed identifier from the immutable fields.
// HopCount and Path do not contribute, so a bundle keeps its ID on each hop.
func (b Bundle) ID() BundleID {
	h := sha256.New()
	h.Write([]byte(b.Source))
	h.Write([]byte{0x00})
	h.Write([]byte(b.Destination))
	h.Write([]byte{0x00})
	h.Write(b.Payload)
	h.Write([]byte{0x00})
	h.Write([]byte(reprCreatedAt(b.CreatedAt)))

	return BundleID(hex.EncodeToString(h.Sum(nil)[:16]))
}

// Expires is the point in time after which this Bundle must be discarded.
func (b Bundle) Expires() time.Time {
	sec, frac := int64(b.CreatedAt), b.CreatedAt-float64(int64(b.CreatedAt))
	return time.Unix(sec, int64(frac*float64(time.Second))).
		Add(time.Duration(b.Lifetime) * time.Second)
}

// IsExpiredAt checks the lifetime against the given point in time.
func (b Bundle) IsExpiredAt(t time.Time) bool {
	return t.After(b.Expires())
}

// AddHop stamps a forwarding node into the Bundle, keeping the
// HopCount == len(Path) invariant.
func (b *Bundle) AddHop(eid EndpointID) {
	b.HopCount++
	b.Path = append(b.Path, eid)
}

// CheckValid returns an aggregated error for all violated field invariants.
func (b Bundle) CheckValid() (err error) {
	if _, eidErr := NewEndpointID(string(b.Source)); eidErr != nil {
		err = multierror.Append(err, fmt.Errorf("source: %w", eidErr))
	}
	if _, eidErr := NewEndpointID(string(b.Destination)); eidErr != nil {
		err = multierror.Append(err, fmt.Errorf("destination: %w", eidErr))
	}
	if b.Lifetime == 0 {
		err = multierror.Append(err, fmt.Errorf("lifetime must be positive"))
	}
	if b.CreatedAt <= 0 {
		err = multierror.Append(err, fmt.Errorf("creation timestamp %f is not positive", b.CreatedAt))
	}
	if b.HopCount != uint64(len(b.Path)) {
		err = multierror.Append(err, fmt.Errorf(
			"hop count %d differs from path length %d", b.HopCount, len(b.Path)))
	}

	return
}

func (b Bundle) String() string {
	return fmt.Sprintf("%s:%s->%s", b.ID(), b.Source, b.Destination)
}
