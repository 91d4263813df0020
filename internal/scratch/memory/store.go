// Package memory keeps scratch records in memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pagelift/pagelift/internal/extract"
)

// Store holds chunk records in a map. Records are copied on Put and Get so
// callers cannot mutate stored state through shared slices.
type Store struct {
	mu      sync.RWMutex
	records map[string]extract.ChunkRecord
}

// New creates an in-memory scratch store.
func New() *Store {
	return &Store{records: make(map[string]extract.ChunkRecord)}
}

// Put stores a copy of the record under key, replacing any previous version.
func (s *Store) Put(_ context.Context, key string, record extract.ChunkRecord) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = copyRecord(record)
	return nil
}

// Get returns a copy of the record for key, or extract.ErrNotFound.
func (s *Store) Get(_ context.Context, key string) (extract.ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[key]
	if !ok {
		return extract.ChunkRecord{}, extract.ErrNotFound
	}
	return copyRecord(record), nil
}

// Exists reports whether a record exists for key.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[key]
	return ok, nil
}

// DeleteAll removes every record.
func (s *Store) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]extract.ChunkRecord)
	return nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func copyRecord(in extract.ChunkRecord) extract.ChunkRecord {
	out := in
	if in.Records != nil {
		out.Records = make([]extract.Record, len(in.Records))
		copy(out.Records, in.Records)
	}
	if in.Attempts != nil {
		out.Attempts = make([]extract.Attempt, len(in.Attempts))
		copy(out.Attempts, in.Attempts)
	}
	if in.CompletedAt != nil {
		completed := *in.CompletedAt
		out.CompletedAt = &completed
	}
	return out
}
