// Package filtercache persists the set of device names that last passed
// the device filter chain.
//
// Long-lived processes dump the set after a full scan so short-lived
// commands can seed their device layer without walking every block device.
// The cache is advisory: a stale entry only costs a wasted label read.
package filtercache

import (
	"fmt"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/lcorbani/volman/internal/logger"
)

const (
	devPrefix    = "dev:"
	writtenAtKey = "meta:written_at"
)

// Store is a BadgerDB-backed device filter cache.
type Store struct {
	db *badger.DB
}

// Open opens or creates the filter cache at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open filter cache at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the cached device set with names, stamping the write time.
func (s *Store) Save(names []string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(devPrefix)})
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			stale = append(stale, it.Item().KeyCopy(nil))
		}
		it.Close()
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		for _, name := range names {
			if err := txn.Set([]byte(devPrefix+name), nil); err != nil {
				return err
			}
		}

		ts := strconv.FormatInt(time.Now().Unix(), 10)
		return txn.Set([]byte(writtenAtKey), []byte(ts))
	})
	if err != nil {
		return fmt.Errorf("failed to save filter cache: %w", err)
	}

	logger.Debug("Filter cache: stored %d device name(s)", len(names))
	return nil
}

// Load returns the cached device names. An empty cache yields no names and
// no error.
func (s *Store) Load() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(devPrefix)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().Key()
			names = append(names, string(key[len(devPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load filter cache: %w", err)
	}
	return names, nil
}

// WrittenAt returns when the cache was last saved, or the zero time for a
// cache never written.
func (s *Store) WrittenAt() (time.Time, error) {
	var ts int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(writtenAtKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			ts, err = strconv.ParseInt(string(val), 10, 64)
			return err
		})
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read filter cache timestamp: %w", err)
	}
	if ts == 0 {
		return time.Time{}, nil
	}
	return time.Unix(ts, 0), nil
}
