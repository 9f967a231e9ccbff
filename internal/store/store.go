// Package store provides bbolt-based persistence for the control plane.
// It manages branch records, lock state, shadow indexes, live index
// pointers, and processed-event markers in a single embedded database file.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when a branch, shadow index, or pointer does not exist.
var ErrNotFound = errors.New("not found")

// ErrExists is returned when creating a record whose key is already taken.
var ErrExists = errors.New("already exists")

// Bucket names.
var (
	bucketBranches  = []byte("branches")
	bucketShadows   = []byte("shadows")
	bucketLivePtrs  = []byte("live_indexes")
	bucketProcessed = []byte("processed_events")
	bucketKV        = []byte("kv")
)

// Store represents the bbolt database store.
type Store struct {
	db *bolt.DB
}

// New opens or creates a bbolt database at the given path.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates all buckets.
func (s *Store) initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketBranches, bucketShadows, bucketLivePtrs, bucketProcessed, bucketKV} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}

		kv := tx.Bucket(bucketKV)
		if kv.Get([]byte("format_version")) == nil {
			return kv.Put([]byte("format_version"), []byte("1"))
		}
		return nil
	})
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
