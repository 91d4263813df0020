// Package aggregate consolidates per-chunk records into the run's final
// output document.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/pagelift/pagelift/internal/extract"
	"github.com/pagelift/pagelift/internal/metrics"
)

// Builder assembles the consolidated result for a run from the scratch
// store's durable chunk records.
type Builder struct {
	scratch extract.ScratchStore
	clock   extract.Clock
	logger  *zap.Logger
}

// New creates a Builder.
func New(scratch extract.ScratchStore, clock extract.Clock, logger *zap.Logger) *Builder {
	return &Builder{
		scratch: scratch,
		clock:   clock,
		logger:  logger,
	}
}

// Build reads every chunk's durable record and assembles the aggregate in
// sequence-index order. A chunk whose record is missing or unreadable
// contributes a zero-record error entry, so the aggregate always has one
// summary row per chunk. Records is never nil and TotalRecords always
// equals len(Records).
func (b *Builder) Build(ctx context.Context, doc extract.Document, runID string, chunks []extract.Chunk) extract.AggregateResult {
	result := extract.AggregateResult{
		SourceDocument:  doc.Path,
		RunID:           runID,
		Timestamp:       b.clock.Now(),
		PerChunkSummary: make([]extract.ChunkSummary, 0, len(chunks)),
		Records:         []extract.Record{},
	}

	ordered := make([]extract.Chunk, len(chunks))
	copy(ordered, chunks)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].SequenceIndex < ordered[j].SequenceIndex
	})

	for _, chunk := range ordered {
		record, err := b.scratch.Get(ctx, chunk.ID)
		if err != nil {
			b.logger.Warn("chunk record unavailable, treating as failed",
				zap.String("run_id", runID),
				zap.String("chunk_id", chunk.ID),
				zap.Error(err),
			)
			result.PerChunkSummary = append(result.PerChunkSummary, extract.ChunkSummary{
				ChunkID:   chunk.ID,
				PageLabel: chunk.PageLabel,
				Status:    extract.ChunkStatusError,
			})
			continue
		}

		result.PerChunkSummary = append(result.PerChunkSummary, extract.ChunkSummary{
			ChunkID:     chunk.ID,
			PageLabel:   chunk.PageLabel,
			Status:      record.Status,
			RecordCount: record.RecordCount,
			Attempts:    len(record.Attempts),
		})
		if record.Status == extract.ChunkStatusSuccess {
			result.Records = append(result.Records, record.Records...)
		}
	}

	result.TotalRecords = len(result.Records)
	return result
}

// WriteJSON writes the aggregate to path, atomically replacing any
// previous file: readers see either the old complete document or the new
// one, never a partial write.
func (b *Builder) WriteJSON(result extract.AggregateResult, path string) error {
	start := time.Now()
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode aggregate: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write aggregate: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil && !os.IsNotExist(rmErr) {
			b.logger.Warn("leftover temp aggregate", zap.String("path", tmp), zap.Error(rmErr))
		}
		return fmt.Errorf("replace aggregate: %w", err)
	}

	metrics.ObserveAggregateWrite(time.Since(start))
	b.logger.Info("aggregate written",
		zap.String("path", path),
		zap.Int("records", result.TotalRecords),
		zap.Int("chunks", len(result.PerChunkSummary)),
	)
	return nil
}
