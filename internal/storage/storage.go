// Package storage provides persistent storage for the model arena.
// It uses BoltDB as the underlying storage engine for two kinds of data:
// labelled samples that can serve as an evaluation dataset, and archived
// evaluation reports that the dashboard lists and replays.
//
// Keys are chosen so that cursor order is meaningful: samples iterate in
// (year, insertion) order and the run index iterates chronologically.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	samplesBucket = "samples" // labelled samples, keyed year_seq
	reportsBucket = "reports" // full reports, keyed by run id
	runsBucket    = "runs"    // run summaries, keyed time_runid

	// DBFile is the database file name inside the data path.
	DBFile = "arena.db"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Store provides persistent storage using BoltDB.
type Store struct {
	db *bbolt.DB
}

// New creates a storage instance under dataPath, creating the directory and
// buckets as needed.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataPath, DBFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{samplesBucket, reportsBucket, runsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database. It is safe to call more than once.
func (s *Store) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}
