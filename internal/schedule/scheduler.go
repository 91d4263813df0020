// Package schedule fans chunks out to a fixed pool of extraction workers
// and collects their terminal results.
package schedule

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pagelift/pagelift/internal/extract"
	"github.com/pagelift/pagelift/internal/metrics"
)

// ChunkProcessor drives one chunk to a terminal state. Implementations
// must be safe for concurrent calls.
type ChunkProcessor interface {
	Process(ctx context.Context, runID string, chunk extract.Chunk, startSlot int) extract.ChunkResult
}

// Scheduler distributes chunks over a fixed number of worker goroutines.
// The worker count equals the credential pool size, and a chunk's first
// attempt uses slot (startIndex + sequenceIndex) mod workers, so the
// starting credential of every chunk is deterministic.
type Scheduler struct {
	processor ChunkProcessor
	workers   int
	logger    *zap.Logger
}

// New creates a Scheduler with the given parallelism.
func New(processor ChunkProcessor, workers int, logger *zap.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		processor: processor,
		workers:   workers,
		logger:    logger,
	}
}

// Workers returns the configured parallelism.
func (s *Scheduler) Workers() int {
	return s.workers
}

// Run processes every chunk and returns the terminal results keyed by
// chunk ID. It blocks until all chunks are terminal or the context is
// canceled; chunks never started by cancellation time produce no result.
func (s *Scheduler) Run(ctx context.Context, runID string, chunks []extract.Chunk, startIndex int) map[string]extract.ChunkResult {
	out := make(map[string]extract.ChunkResult, len(chunks))
	if len(chunks) == 0 {
		return out
	}

	jobs := make(chan extract.Chunk, len(chunks))
	for _, chunk := range chunks {
		jobs <- chunk
	}
	close(jobs)

	results := make(chan extract.ChunkResult, len(chunks))
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.consume(ctx, runID, jobs, results, startIndex)
		}()
	}
	wg.Wait()
	close(results)

	for res := range results {
		out[res.ChunkID] = res
	}
	if len(out) < len(chunks) {
		s.logger.Warn("scheduler stopped before all chunks finished",
			zap.String("run_id", runID),
			zap.Int("finished", len(out)),
			zap.Int("total", len(chunks)),
		)
	}
	return out
}

func (s *Scheduler) consume(
	ctx context.Context,
	runID string,
	jobs <-chan extract.Chunk,
	results chan<- extract.ChunkResult,
	startIndex int,
) {
	for chunk := range jobs {
		if ctx.Err() != nil {
			return
		}
		slot := (startIndex + chunk.SequenceIndex) % s.workers
		metrics.IncActiveWorkers()
		res := s.processor.Process(ctx, runID, chunk, slot)
		metrics.DecActiveWorkers()
		results <- res
	}
}
