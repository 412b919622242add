// SPDX-FileCopyrightText: 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"time"

	"github.com/dtn7/mdtn/pkg/bundle"
)

// BundleItem is the indexed metadata beside a persisted bundle image. It
// carries everything the sweeper and the re-sweep need, so neither has to
// decode images.
type BundleItem struct {
	Id string `badgerhold:"key"`

	Destination string
	HopCount    uint64

	// Pending marks a bundle that still awaits its dispatch outcome: a local
	// delivery or a successful transmission to the next hop. The periodic
	// re-sweep only ever picks up pending bundles.
	Pending bool `badgerholdIndex:"Pending"`

	Expires time.Time `badgerholdIndex:"Expires"`
}

func newBundleItem(b bundle.Bundle) BundleItem {
	return BundleItem{
		Id:          b.ID().String(),
		Destination: b.Destination.String(),
		HopCount:    b.HopCount,
		Pending:     true,
		Expires:     b.Expires(),
	}
}

// BundleID returns the item's key as a typed bundle ID.
func (bi BundleItem) BundleID() bundle.BundleID {
	return bundle.BundleID(bi.Id)
}
