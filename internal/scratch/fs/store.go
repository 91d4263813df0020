// Package fs implements a filesystem scratch store.
package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pagelift/pagelift/internal/extract"
)

// Config captures the parameters for the filesystem scratch store.
type Config struct {
	// BaseDir is the directory where per-chunk records are stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store keeps one JSON record per chunk under BaseDir.
type Store struct {
	baseDir string
}

// New creates a filesystem scratch store, verifying the directory is usable.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
				return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
			}
		} else {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &Store{baseDir: cfg.BaseDir}, nil
}

// Put writes the record as JSON, atomically replacing any previous version.
func (s *Store) Put(_ context.Context, key string, record extract.ChunkRecord) error {
	path, err := s.recordPath(key)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace record: %w", err)
	}
	return nil
}

// Get reads the record for key, or extract.ErrNotFound when none exists.
func (s *Store) Get(_ context.Context, key string) (extract.ChunkRecord, error) {
	path, err := s.recordPath(key)
	if err != nil {
		return extract.ChunkRecord{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return extract.ChunkRecord{}, extract.ErrNotFound
		}
		return extract.ChunkRecord{}, fmt.Errorf("read record: %w", err)
	}
	var record extract.ChunkRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return extract.ChunkRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return record, nil
}

// Exists reports whether a record exists for key.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.recordPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat record: %w", err)
	}
	return true, nil
}

// DeleteAll removes every record in the store, leaving the directory itself.
func (s *Store) DeleteAll(_ context.Context) error {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.baseDir, entry.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// recordPath resolves the file for key and verifies it stays within the
// base directory to prevent path traversal.
func (s *Store) recordPath(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	fullPath := filepath.Join(s.baseDir, key+".json")
	cleanBase := filepath.Clean(s.baseDir)
	cleanFull := filepath.Clean(fullPath)
	if !strings.HasPrefix(cleanFull, cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
