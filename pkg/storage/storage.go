package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/vjranagit/homeenergy/pkg/metrics"
	"github.com/vjranagit/homeenergy/pkg/types"
)

// Storage persists the replicated collection snapshot so a restarted client
// can render cached aggregates before the remote data arrives.
type Storage interface {
	// SaveSnapshot replaces the stored snapshot with snap
	SaveSnapshot(ctx context.Context, version uint64, snap types.Collections) error

	// LoadSnapshot returns the stored snapshot and its version
	LoadSnapshot(ctx context.Context) (types.Collections, uint64, error)

	// Close closes the storage
	Close() error
}

// Config holds storage configuration
type Config struct {
	Path             string
	CompressionLevel int
}

// DefaultConfig returns default storage configuration
func DefaultConfig() *Config {
	return &Config{
		Path:             "./data",
		CompressionLevel: 3,
	}
}

var (
	collectionPrefix = []byte("collections/")
	versionKey       = []byte("meta/version")
)

// badgerStorage implements Storage using BadgerDB
type badgerStorage struct {
	cfg        *Config
	db         *badger.DB
	compressor *Compressor
	mu         sync.RWMutex
}

// NewStorage creates a new storage instance
func NewStorage(cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// Initialize BadgerDB
	opts := badger.DefaultOptions(filepath.Join(cfg.Path, "badger"))
	opts.Logger = nil // Disable BadgerDB logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	compressor, err := NewCompressor(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	return &badgerStorage{
		cfg:        cfg,
		db:         db,
		compressor: compressor,
	}, nil
}

// SaveSnapshot implements Storage.SaveSnapshot. Collections missing from
// snap are deleted so the stored snapshot mirrors it exactly.
func (s *badgerStorage) SaveSnapshot(ctx context.Context, version uint64, snap types.Collections) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	defer func() {
		metrics.SnapshotSaveDuration.Observe(time.Since(start).Seconds())
	}()

	blocks := make(map[string][]byte)
	for _, name := range snap.Names() {
		data, err := json.Marshal(snap.Collection(name))
		if err != nil {
			return fmt.Errorf("failed to marshal collection %s: %w", name, err)
		}
		blocks[name] = s.compressor.Compress(data)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		stale, err := collectionKeys(txn)
		if err != nil {
			return err
		}
		for _, key := range stale {
			if _, keep := blocks[collectionName(key)]; keep {
				continue
			}
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("failed to delete %s: %w", key, err)
			}
		}

		for name, block := range blocks {
			if err := txn.Set(generateKey(name), block); err != nil {
				return fmt.Errorf("failed to write collection %s: %w", name, err)
			}
		}

		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, version)
		return txn.Set(versionKey, buf)
	})
}

// LoadSnapshot implements Storage.LoadSnapshot. An empty database yields an
// empty snapshot at version 0.
func (s *badgerStorage) LoadSnapshot(ctx context.Context) (types.Collections, uint64, error) {
	if err := ctx.Err(); err != nil {
		return types.Collections{}, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data := make(map[string]map[string]types.Document)
	var version uint64

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(versionKey)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return errors.New("corrupt snapshot version")
				}
				version = binary.BigEndian.Uint64(val)
				return nil
			}); err != nil {
				return err
			}
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = collectionPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			name := collectionName(item.Key())

			var block []byte
			if err := item.Value(func(val []byte) error {
				block = append([]byte{}, val...)
				return nil
			}); err != nil {
				return err
			}

			raw, err := s.compressor.Decompress(block)
			if err != nil {
				return fmt.Errorf("failed to decompress collection %s: %w", name, err)
			}

			var docs map[string]types.Document
			if err := json.Unmarshal(raw, &docs); err != nil {
				return fmt.Errorf("failed to unmarshal collection %s: %w", name, err)
			}
			data[name] = docs
		}
		return nil
	})
	if err != nil {
		return types.Collections{}, 0, fmt.Errorf("failed to load snapshot: %w", err)
	}

	return types.NewCollections(data), version, nil
}

// Close implements Storage.Close
func (s *badgerStorage) Close() error {
	s.compressor.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func collectionKeys(txn *badger.Txn) ([][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = collectionPrefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

// generateKey generates the storage key for a collection
func generateKey(collection string) []byte {
	buf := new(bytes.Buffer)
	buf.Write(collectionPrefix)
	buf.WriteString(collection)
	return buf.Bytes()
}

func collectionName(key []byte) string {
	return strings.TrimPrefix(string(key), string(collectionPrefix))
}
