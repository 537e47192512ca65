// Package identity resolves the stable per-profile participant identity and
// backs the local key-value preference store.
package identity

import (
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
)

// ErrKeyNotFound is returned by Get for keys that have never been set.
var ErrKeyNotFound = errors.New("identity: key not found")

var bucketKV = []byte("kv")

// Store is a small persistent key-value store scoped to the local profile,
// backed by a single-file bbolt database.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the store at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open identity store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize identity store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database. Safe to call on a closed store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Get returns the value stored under key, or ErrKeyNotFound.
func (s *Store) Get(key string) (string, error) {
	var val string
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketKV).Get([]byte(key))
		if data == nil {
			return ErrKeyNotFound
		}
		val = string(data)
		return nil
	})
	if err != nil {
		return "", err
	}
	return val, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), []byte(value))
	})
}
