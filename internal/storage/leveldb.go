package storage

import (
	"context"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore implements Store using goleveldb, as an alternative backend
// to BadgerStore for operators who prefer LevelDB's simpler compaction
// model. Selected via StorageConfig.Engine = "leveldb".
type LevelDBStore struct {
	db *leveldb.DB
}

// NewLevelDBStore opens (or creates) a LevelDB database at path.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

// Get retrieves a value by key.
func (s *LevelDBStore) Get(_ context.Context, key []byte) ([]byte, error) {
	val, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return append([]byte{}, val...), nil
}

// Set sets a value for a key.
func (s *LevelDBStore) Set(_ context.Context, key, value []byte) error {
	return s.db.Put(key, value, nil)
}

// Delete removes a key.
func (s *LevelDBStore) Delete(_ context.Context, key []byte) error {
	return s.db.Delete(key, nil)
}

// Has checks if a key exists.
func (s *LevelDBStore) Has(_ context.Context, key []byte) (bool, error) {
	return s.db.Has(key, nil)
}

// Iterate iterates over all keys with the given prefix.
func (s *LevelDBStore) Iterate(_ context.Context, prefix []byte, fn func(key, value []byte) error) error {
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		key := append([]byte{}, iter.Key()...)
		value := append([]byte{}, iter.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Close closes the store and releases resources.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
