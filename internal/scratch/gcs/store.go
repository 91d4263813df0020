// Package gcs implements a scratch store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/pagelift/pagelift/internal/extract"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Store keeps one JSON object per chunk under the configured prefix.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed scratch store and verifies the bucket is
// reachable before any chunk work starts.
func New(ctx context.Context, client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if _, err := client.Bucket(cfg.Bucket).Attrs(ctx); err != nil {
		return nil, fmt.Errorf("bucket %s not accessible: %w", cfg.Bucket, err)
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Put uploads the record as a JSON object, replacing any previous version.
func (s *Store) Put(ctx context.Context, key string, record extract.ChunkRecord) error {
	name, err := s.objectName(key)
	if err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write record: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// Get downloads and decodes the record for key, or extract.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (extract.ChunkRecord, error) {
	name, err := s.objectName(key)
	if err != nil {
		return extract.ChunkRecord{}, err
	}
	reader, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return extract.ChunkRecord{}, extract.ErrNotFound
		}
		return extract.ChunkRecord{}, fmt.Errorf("open record: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()
	data, err := io.ReadAll(reader)
	if err != nil {
		return extract.ChunkRecord{}, fmt.Errorf("read record: %w", err)
	}
	var record extract.ChunkRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return extract.ChunkRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return record, nil
}

// Exists reports whether a record object exists for key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	name, err := s.objectName(key)
	if err != nil {
		return false, err
	}
	if _, err := s.client.Bucket(s.bucket).Object(name).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat record: %w", err)
	}
	return true, nil
}

// DeleteAll removes every record object under the prefix.
func (s *Store) DeleteAll(ctx context.Context) error {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("list records: %w", err)
		}
		if err := s.client.Bucket(s.bucket).Object(attrs.Name).Delete(ctx); err != nil {
			return fmt.Errorf("delete %s: %w", attrs.Name, err)
		}
	}
	return nil
}

func (s *Store) objectName(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	name := key + ".json"
	if s.prefix != "" {
		name = s.prefix + "/" + name
	}
	return name, nil
}
