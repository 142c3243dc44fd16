// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/toolshelf/internal/catalog"
)

// ToolStore keeps tool records in insertion order.
type ToolStore struct {
	mu      sync.RWMutex
	records map[string]catalog.ToolRecord
	order   []string
}

// NewToolStore constructs an empty ToolStore.
func NewToolStore() *ToolStore {
	return &ToolStore{records: make(map[string]catalog.ToolRecord)}
}

// FindByName returns the record for name or catalog.ErrNotFound.
func (s *ToolStore) FindByName(_ context.Context, name string) (catalog.ToolRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	if !ok {
		return catalog.ToolRecord{}, catalog.ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Insert adds a new record. Names must be unique.
func (s *ToolStore) Insert(_ context.Context, record catalog.ToolRecord) error {
	if record.Name == "" {
		return fmt.Errorf("insert tool: empty name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.Name]; exists {
		return fmt.Errorf("insert tool %q: already exists", record.Name)
	}
	s.records[record.Name] = cloneRecord(record)
	s.order = append(s.order, record.Name)
	return nil
}

// Update replaces an existing record.
func (s *ToolStore) Update(_ context.Context, record catalog.ToolRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.Name]; !exists {
		return fmt.Errorf("update tool %q: %w", record.Name, catalog.ErrNotFound)
	}
	s.records[record.Name] = cloneRecord(record)
	return nil
}

// ListAll returns every record in insertion order.
func (s *ToolStore) ListAll(_ context.Context) ([]catalog.ToolRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.ToolRecord, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, cloneRecord(s.records[name]))
	}
	return out, nil
}

func cloneRecord(rec catalog.ToolRecord) catalog.ToolRecord {
	rec.VersionList = append([]catalog.VersionEntry(nil), rec.VersionList...)
	return rec
}
