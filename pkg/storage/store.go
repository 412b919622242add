// SPDX-FileCopyrightText: 2026 Alvar Penning
// SPDX-FileCopyrightText: 2026 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package storage persists bundles between process lifetimes. Each bundle
// lives in its own file, named by its ID, next to a badgerhold index holding
// the queryable metadata. The file is the source of truth: on startup, bundle
// files missing from the index are re-indexed. Index entries whose file is
// gone are not removed on startup.
package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/timshannon/badgerhold"

	"github.com/dtn7/mdtn/pkg/bundle"
)

const (
	dirBadger       = "db"
	deliveryLogName = "deliveries.ndjson"
)

var (
	// ErrAlreadyPresent is returned by Put for a known bundle ID.
	ErrAlreadyPresent = errors.New("bundle is already stored")

	// ErrNotFound is returned for an unknown bundle ID.
	ErrNotFound = errors.New("no such bundle")
)

// Store is a durable map from bundle ID to bundle image.
type Store struct {
	bh  *badgerhold.Store
	dir string

	// mutex serializes all mutating operations, making the duplicate check
	// within Put linearizable: two concurrent Puts of the same ID result in
	// exactly one insertion and one ErrAlreadyPresent.
	mutex sync.Mutex
}

// NewStore opens the Store within dir, creating it if necessary. Bundle
// images already present are re-indexed and will re-enter the forwarding
// engine through the pending query.
func NewStore(dir string) (*Store, error) {
	badgerDir := filepath.Join(dir, dirBadger)

	if err := os.MkdirAll(badgerDir, 0700); err != nil {
		return nil, err
	}

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<28 - 1

	bh, err := badgerhold.Open(opts)
	if err != nil {
		return nil, err
	}

	s := &Store{
		bh:  bh,
		dir: dir,
	}
	s.rescan()

	return s, nil
}

// Close the Store. It must not be used afterwards.
func (s *Store) Close() error {
	return s.bh.Close()
}

func (s *Store) bundlePath(bid bundle.BundleID) string {
	return filepath.Join(s.dir, bid.String())
}

// writeBundleFile persists a bundle image durably: temp file, fsync, rename.
func (s *Store) writeBundleFile(bid bundle.BundleID, b bundle.Bundle) error {
	target := s.bundlePath(bid)
	tmp := target + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}

	if err := b.MarshalCbor(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, target)
}

// Put inserts a new bundle. A known ID is not an error, but reported as
// ErrAlreadyPresent without touching the stored image. When Put returns nil,
// the image has reached the disk.
func (s *Store) Put(b bundle.Bundle) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	bid := b.ID()
	if s.knowsLocked(bid) {
		return ErrAlreadyPresent
	}

	if err := s.writeBundleFile(bid, b); err != nil {
		return err
	}

	bi := newBundleItem(b)
	if err := s.bh.Insert(bi.Id, bi); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"bundle":      bid,
		"destination": b.Destination,
	}).Debug("Stored new bundle")

	return nil
}

// Update replaces a stored bundle's image, e.g., with its forward-image. The
// Pending flag is left untouched.
func (s *Store) Update(b bundle.Bundle) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	bid := b.ID()

	var bi BundleItem
	if err := s.bh.Get(bid.String(), &bi); err != nil {
		return ErrNotFound
	}

	if err := s.writeBundleFile(bid, b); err != nil {
		return err
	}

	bi.HopCount = b.HopCount
	return s.bh.Update(bi.Id, bi)
}

// Get loads a bundle by its ID.
func (s *Store) Get(bid bundle.BundleID) (bundle.Bundle, error) {
	f, err := os.Open(s.bundlePath(bid))
	if err != nil {
		return bundle.Bundle{}, ErrNotFound
	}
	defer f.Close()

	var b bundle.Bundle
	if err := b.UnmarshalCbor(f); err != nil {
		return bundle.Bundle{}, err
	}
	return b, nil
}

// Delete removes a bundle. Unknown IDs are not an error.
func (s *Store) Delete(bid bundle.BundleID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.deleteLocked(bid)
}

func (s *Store) deleteLocked(bid bundle.BundleID) error {
	if err := s.bh.Delete(bid.String(), BundleItem{}); err != nil && err != badgerhold.ErrNotFound {
		return err
	}
	if err := os.Remove(s.bundlePath(bid)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SetPending updates a bundle's pending flag.
func (s *Store) SetPending(bid bundle.BundleID, pending bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var bi BundleItem
	if err := s.bh.Get(bid.String(), &bi); err != nil {
		return ErrNotFound
	}

	bi.Pending = pending
	return s.bh.Update(bi.Id, bi)
}

// KnowsBundle checks if a bundle ID is present.
func (s *Store) KnowsBundle(bid bundle.BundleID) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.knowsLocked(bid)
}

func (s *Store) knowsLocked(bid bundle.BundleID) bool {
	var bi BundleItem
	return s.bh.Get(bid.String(), &bi) != badgerhold.ErrNotFound
}

// Pending lists the metadata of all bundles awaiting a dispatch outcome.
func (s *Store) Pending() (bis []BundleItem, err error) {
	err = s.bh.Find(&bis, badgerhold.Where("Pending").Eq(true))
	return
}

// Items lists the metadata of all stored bundles, a snapshot at call time.
func (s *Store) Items() (bis []BundleItem, err error) {
	err = s.bh.Find(&bis, nil)
	return
}

// Count is the number of stored bundles.
func (s *Store) Count() int {
	bis, err := s.Items()
	if err != nil {
		log.WithError(err).Warn("Counting stored bundles errored")
		return 0
	}
	return len(bis)
}

// Walk calls fn for each stored bundle until fn returns false. The set of
// visited IDs is a snapshot at call time; bundles deleted in between are
// skipped silently.
func (s *Store) Walk(fn func(bundle.Bundle) bool) error {
	bis, err := s.Items()
	if err != nil {
		return err
	}

	for _, bi := range bis {
		b, err := s.Get(bi.BundleID())
		if err != nil {
			continue
		}
		if !fn(b) {
			return nil
		}
	}
	return nil
}

// DeleteExpired removes all bundles whose lifetime ended before now and
// returns how many were deleted. Concurrent deletions are tolerated.
func (s *Store) DeleteExpired(now time.Time) int {
	var bis []BundleItem
	if err := s.bh.Find(&bis, badgerhold.Where("Expires").Lt(now)); err != nil {
		log.WithError(err).Warn("Querying expired bundles errored")
		return 0
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	deleted := 0
	for _, bi := range bis {
		// The forwarding engine may have dropped the bundle in between; only
		// count what this sweep actually removes.
		if !s.knowsLocked(bi.BundleID()) {
			continue
		}

		if err := s.deleteLocked(bi.BundleID()); err != nil {
			log.WithFields(log.Fields{
				"bundle": bi.Id,
				"error":  err,
			}).Warn("Deleting expired bundle errored")
			continue
		}

		log.WithField("bundle", bi.Id).Info("Deleted expired bundle")
		deleted++
	}

	return deleted
}

// rescan reconciles the index with the bundle files after a restart. A file
// without an index entry stems from a crash between the image fsync and the
// index insertion; it is decoded and re-indexed as pending. Expired or
// unreadable files are dropped.
func (s *Store) rescan() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.WithError(err).Warn("Scanning the storage directory errored")
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == deliveryLogName || filepath.Ext(name) == ".tmp" {
			continue
		}

		bid := bundle.BundleID(name)
		if s.knowsLocked(bid) {
			continue
		}

		b, err := s.Get(bid)
		if err != nil {
			log.WithFields(log.Fields{
				"file":  name,
				"error": err,
			}).Warn("Dropping unreadable bundle file")
			_ = os.Remove(filepath.Join(s.dir, name))
			continue
		}

		if b.IsExpiredAt(time.Now()) {
			log.WithField("bundle", bid).Info("Dropping expired bundle file")
			_ = os.Remove(filepath.Join(s.dir, name))
			continue
		}

		bi := newBundleItem(b)
		if err := s.bh.Insert(bi.Id, bi); err != nil {
			log.WithFields(log.Fields{
				"bundle": bid,
				"error":  err,
			}).Warn("Re-indexing bundle errored")
			continue
		}

		log.WithField("bundle", bid).Info("Re-indexed bundle file")
	}
}
