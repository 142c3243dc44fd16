// Package bolt persists tool records in a local bbolt file.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

var (
	toolsBucket = []byte("tools")
	orderBucket = []byte("tool_order")
)

// ErrStoreClosed is returned after Close.
var ErrStoreClosed = errors.New("tool store is closed")

// ToolStore keeps one JSON document per tool, plus a sequence-keyed index
// that preserves insertion order for ListAll.
type ToolStore struct {
	mu     sync.RWMutex
	db     *bolt.DB
	closed bool
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*ToolStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("bolt path is required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure bolt dir: %w", err)
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{toolsBucket, orderBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &ToolStore{db: db}, nil
}

// Close releases the database file.
func (s *ToolStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close bolt db: %w", err)
	}
	return nil
}

// FindByName returns the record for name or catalog.ErrNotFound.
func (s *ToolStore) FindByName(_ context.Context, name string) (catalog.ToolRecord, error) {
	var rec catalog.ToolRecord
	err := s.view(func(tx *bolt.Tx) error {
		raw := tx.Bucket(toolsBucket).Get([]byte(name))
		if raw == nil {
			return catalog.ErrNotFound
		}
		return decode(raw, &rec)
	})
	return rec, err
}

// Insert adds a new record. Names must be unique.
func (s *ToolStore) Insert(_ context.Context, record catalog.ToolRecord) error {
	if record.Name == "" {
		return fmt.Errorf("insert tool: empty name")
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode tool %q: %w", record.Name, err)
	}
	return s.update(func(tx *bolt.Tx) error {
		tools := tx.Bucket(toolsBucket)
		key := []byte(record.Name)
		if tools.Get(key) != nil {
			return fmt.Errorf("insert tool %q: already exists", record.Name)
		}
		order := tx.Bucket(orderBucket)
		seq, err := order.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		if err := order.Put(seqKey(seq), key); err != nil {
			return fmt.Errorf("index tool %q: %w", record.Name, err)
		}
		if err := tools.Put(key, raw); err != nil {
			return fmt.Errorf("write tool %q: %w", record.Name, err)
		}
		return nil
	})
}

// Update replaces an existing record.
func (s *ToolStore) Update(_ context.Context, record catalog.ToolRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode tool %q: %w", record.Name, err)
	}
	return s.update(func(tx *bolt.Tx) error {
		tools := tx.Bucket(toolsBucket)
		key := []byte(record.Name)
		if tools.Get(key) == nil {
			return fmt.Errorf("update tool %q: %w", record.Name, catalog.ErrNotFound)
		}
		if err := tools.Put(key, raw); err != nil {
			return fmt.Errorf("write tool %q: %w", record.Name, err)
		}
		return nil
	})
}

// ListAll returns every record in insertion order.
func (s *ToolStore) ListAll(_ context.Context) ([]catalog.ToolRecord, error) {
	var out []catalog.ToolRecord
	err := s.view(func(tx *bolt.Tx) error {
		tools := tx.Bucket(toolsBucket)
		return tx.Bucket(orderBucket).ForEach(func(_, name []byte) error {
			raw := tools.Get(name)
			if raw == nil {
				return nil
			}
			var rec catalog.ToolRecord
			if err := decode(raw, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *ToolStore) view(fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.View(fn)
}

func (s *ToolStore) update(fn func(tx *bolt.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.Update(fn)
}

func decode(raw []byte, rec *catalog.ToolRecord) error {
	if err := json.Unmarshal(raw, rec); err != nil {
		return fmt.Errorf("decode tool: %w", err)
	}
	return nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
