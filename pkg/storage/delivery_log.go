// SPDX-FileCopyrightText: 2026 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
)

// DeliveryRecord is the end-to-end observation appended at the destination
// node for each locally delivered bundle.
type DeliveryRecord struct {
	BundleID    string   `json:"bundle_id"`
	Source      string   `json:"source"`
	E2EDelay    float64  `json:"e2e_delay"`
	HopCount    uint64   `json:"hop_count"`
	Path        []string `json:"path"`
	DeliveredAt float64  `json:"delivered_at"`
}

// DeliveryLog is an append-only file of newline-delimited JSON
// DeliveryRecords, flushed to disk per record.
type DeliveryLog struct {
	f     *os.File
	mutex sync.Mutex
}

// DeliveryLogPath is the delivery log's location within a storage directory.
func DeliveryLogPath(storageDir string) string {
	return filepath.Join(storageDir, deliveryLogName)
}

// OpenDeliveryLog opens or creates the delivery log at path.
func OpenDeliveryLog(path string) (*DeliveryLog, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}

	return &DeliveryLog{f: f}, nil
}

// Append writes one record and syncs the file.
func (dl *DeliveryLog) Append(rec DeliveryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if _, err := dl.f.Write(append(data, '\n')); err != nil {
		return err
	}
	return dl.f.Sync()
}

// Close the underlying file.
func (dl *DeliveryLog) Close() error {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	return dl.f.Close()
}

// ReadDeliveryLog parses all records from a delivery log file. Used by the
// analysis tooling and within tests; a missing file is an empty log.
func ReadDeliveryLog(path string) ([]DeliveryRecord, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	defer f.Close()

	var recs []DeliveryRecord

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}

		var rec DeliveryRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}

	return recs, scanner.Err()
}
