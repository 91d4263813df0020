// Package memory contains an in-memory attempt ledger for tests and
// single-process runs without a database.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/pagelift/pagelift/internal/extract"
)

// Entry is one recorded attempt row.
type Entry struct {
	RunID   string
	Chunk   extract.Chunk
	Attempt extract.Attempt
}

// Ledger stores attempt rows in memory for inspection.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
	closed  bool
}

// New returns a memory Ledger.
func New() *Ledger {
	return &Ledger{}
}

// RecordAttempt appends one attempt row.
func (l *Ledger) RecordAttempt(_ context.Context, runID string, chunk extract.Chunk, attempt extract.Attempt) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("ledger is closed")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if chunk.ID == "" {
		return fmt.Errorf("chunk id is required")
	}
	l.entries = append(l.entries, Entry{RunID: runID, Chunk: chunk, Attempt: attempt})
	return nil
}

// Close marks the ledger closed; further writes fail.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Entries returns the recorded rows.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}
