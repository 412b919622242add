// SPDX-FileCopyrightText: 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bundle

import (
	"fmt"
	"strings"
)

// EndpointID is the opaque name of a node within the network. Unlike a full
// Bundle Protocol URI, an EndpointID is a flat string, e.g., "moon-relay-1".
type EndpointID string

// NewEndpointID creates a validated EndpointID from its string form.
//
// The character restrictions exist because an EndpointID is embedded both in
// the ID derivation, where NUL is the field separator, and in the
// "eid:host:port" neighbor notation, where the colon is the field separator.
func NewEndpointID(eid string) (EndpointID, error) {
	if eid == "" {
		return "", fmt.Errorf("endpoint ID must not be empty")
	}
	if strings.ContainsAny(eid, "\x00: \t\n") {
		return "", fmt.Errorf("endpoint ID %q contains a NUL, colon or whitespace", eid)
	}

	return EndpointID(eid), nil
}

// MustNewEndpointID creates a validated EndpointID and panics on invalid
// input. Use only for hard-coded values, e.g., within tests.
func MustNewEndpointID(eid string) EndpointID {
	e, err := NewEndpointID(eid)
	if err != nil {
		panic(err)
	}
	return e
}

func (e EndpointID) String() string {
	return string(e)
}
