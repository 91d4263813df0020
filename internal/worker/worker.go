// Package worker implements the recognition attempt runner and the
// credential failover loop that drives each chunk to a terminal state.
package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/pagelift/pagelift/internal/credential"
	"github.com/pagelift/pagelift/internal/extract"
	"github.com/pagelift/pagelift/internal/metrics"
	"github.com/pagelift/pagelift/internal/progress"
	"github.com/pagelift/pagelift/internal/recognize"
)

// Governor gates recognition attempts: the shared pacing pause before each
// service call and the failure cooldown before each retry.
type Governor interface {
	BeforeAttempt(ctx context.Context) error
	Cooldown(ctx context.Context) error
}

// Config controls Worker behavior.
type Config struct {
	// Instruction is the prompt submitted with every chunk. Defaults to
	// extract.DefaultInstruction.
	Instruction string
	// MIMEType describes the chunk payload. Defaults to application/pdf.
	MIMEType string
	// Topic names the completion topic; empty disables publishing.
	Topic string
}

// Worker runs single recognition attempts and the failover loop around
// them. One Worker is shared by every scheduler goroutine; it holds no
// per-chunk state, so concurrent Process calls are safe.
type Worker struct {
	pool       *credential.Pool
	governor   Governor
	recognizer extract.Recognizer
	scratch    extract.ScratchStore
	publisher  extract.Publisher
	hasher     extract.Hasher
	clock      extract.Clock
	emitter    progress.Emitter
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker.
func New(
	pool *credential.Pool,
	governor Governor,
	recognizer extract.Recognizer,
	scratch extract.ScratchStore,
	publisher extract.Publisher,
	hasher extract.Hasher,
	clock extract.Clock,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.Instruction == "" {
		cfg.Instruction = extract.DefaultInstruction
	}
	if cfg.MIMEType == "" {
		cfg.MIMEType = "application/pdf"
	}
	return &Worker{
		pool:       pool,
		governor:   governor,
		recognizer: recognizer,
		scratch:    scratch,
		publisher:  publisher,
		hasher:     hasher,
		clock:      clock,
		emitter:    emitter,
		cfg:        cfg,
		logger:     logger,
	}
}

// Process drives one chunk through the failover loop: at most one attempt
// per credential, rotating forward from the assigned slot, with a cooldown
// before every retry. The chunk always reaches a terminal state; attempt
// failures never escape as errors, and every attempt is durably recorded
// before Process returns.
func (w *Worker) Process(ctx context.Context, runID string, chunk extract.Chunk, startSlot int) extract.ChunkResult {
	log := w.logger.With(
		zap.String("run_id", runID),
		zap.String("chunk_id", chunk.ID),
		zap.Int("sequence", chunk.SequenceIndex),
	)

	record := extract.ChunkRecord{
		ChunkID:       chunk.ID,
		SequenceIndex: chunk.SequenceIndex,
		PageLabel:     chunk.PageLabel,
		Status:        extract.ChunkStatusError,
		Attempts:      []extract.Attempt{},
	}

	payload, sha, readErr := w.loadPayload(chunk.Path, log)
	if readErr != nil {
		log.Warn("chunk payload unreadable", zap.String("path", chunk.Path), zap.Error(readErr))
	}

	slot := startSlot
	total := w.pool.Size()
	for number := 1; number <= total; number++ {
		if number > 1 {
			if err := w.governor.Cooldown(ctx); err != nil {
				log.Warn("retry cooldown interrupted", zap.Error(err))
			}
		}

		outcome, att := w.attempt(ctx, runID, chunk, payload, readErr, slot, number)
		record.Attempts = append(record.Attempts, att)

		if outcome.Succeeded() {
			record.Status = extract.ChunkStatusSuccess
			record.Records = outcome.Records
			record.RecordCount = len(outcome.Records)
			record.PayloadSHA256 = sha
			now := w.clock.Now()
			record.CompletedAt = &now
			w.persist(ctx, chunk.ID, record, log)
			metrics.ObserveChunk(string(extract.ChunkStatusSuccess))
			metrics.AddRecords(record.RecordCount)
			log.Info("chunk extracted",
				zap.Int("attempts", number),
				zap.String("credential", att.Credential),
				zap.Int("records", record.RecordCount),
			)
			return w.finish(ctx, runID, chunk, record)
		}

		w.persist(ctx, chunk.ID, record, log)
		log.Warn("attempt failed",
			zap.Int("attempt", number),
			zap.String("credential", att.Credential),
			zap.String("outcome", string(att.Outcome)),
			zap.String("reason", att.Reason),
		)
		slot = w.pool.Next(slot)
	}

	now := w.clock.Now()
	record.CompletedAt = &now
	w.persist(ctx, chunk.ID, record, log)
	metrics.ObserveChunk(string(extract.ChunkStatusError))
	log.Error("chunk exhausted", zap.Error(&extract.ChunkExhaustedError{ChunkID: chunk.ID, Attempts: total}))
	return w.finish(ctx, runID, chunk, record)
}

// attempt performs one gated recognition call against the credential at
// slot and classifies the result. A payload that could not be read fails
// the attempt before the governor so no pacing budget is spent on a call
// that cannot reach the service.
func (w *Worker) attempt(
	ctx context.Context,
	runID string,
	chunk extract.Chunk,
	payload []byte,
	readErr error,
	slot int,
	number int,
) (extract.Outcome, extract.Attempt) {
	att := extract.Attempt{
		Number:     number,
		Credential: w.pool.Label(slot),
		StartedAt:  w.clock.Now(),
	}

	var outcome extract.Outcome
	if readErr != nil {
		outcome = extract.Outcome{Kind: extract.OutcomeTransportFailure, Reason: readErr.Error()}
	} else if err := w.governor.BeforeAttempt(ctx); err != nil {
		outcome = extract.Outcome{Kind: extract.OutcomeTransportFailure, Reason: err.Error()}
	} else {
		att.StartedAt = w.clock.Now()
		start := time.Now()
		outcome = w.invoke(ctx, payload, slot)
		att.DurationMs = time.Since(start).Milliseconds()
	}

	att.Outcome = outcome.Kind
	att.Reason = outcome.Reason
	metrics.ObserveAttempt(string(att.Outcome), time.Duration(att.DurationMs)*time.Millisecond)
	w.emit(progress.Event{
		RunID:         runID,
		TS:            w.clock.Now(),
		Stage:         progress.StageAttempt,
		ChunkID:       chunk.ID,
		SequenceIndex: chunk.SequenceIndex,
		PageLabel:     chunk.PageLabel,
		Attempt:       att.Number,
		Credential:    att.Credential,
		Outcome:       string(att.Outcome),
		Dur:           time.Duration(att.DurationMs) * time.Millisecond,
		Note:          att.Reason,
	})
	return outcome, att
}

func (w *Worker) invoke(ctx context.Context, payload []byte, slot int) extract.Outcome {
	resp, err := w.recognizer.Recognize(ctx, extract.RecognizeRequest{
		Instruction: w.cfg.Instruction,
		Payload:     payload,
		MIMEType:    w.cfg.MIMEType,
		Schema:      extract.RecordSchema(),
		Credential:  w.pool.Token(slot),
	})
	if err != nil {
		return extract.Outcome{Kind: extract.OutcomeTransportFailure, Reason: err.Error()}
	}
	return Classify(resp)
}

// Classify maps a raw recognition response onto the outcome taxonomy: a
// non-normal completion status is a service failure, a body that violates
// the record schema is a format failure, and anything else is a success
// carrying the decoded records.
func Classify(resp extract.RecognizeResponse) extract.Outcome {
	if resp.Status != extract.StatusNormal {
		return extract.Outcome{
			Kind:   extract.OutcomeServiceFailure,
			Reason: fmt.Sprintf("completion status %q", resp.Status),
		}
	}
	records, err := recognize.DecodeRecords(resp.Body)
	if err != nil {
		return extract.Outcome{Kind: extract.OutcomeFormatFailure, Reason: err.Error()}
	}
	return extract.Outcome{Kind: extract.OutcomeSuccess, Records: records}
}

func (w *Worker) loadPayload(path string, log *zap.Logger) ([]byte, string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read chunk payload: %w", err)
	}
	sum, err := w.hasher.Hash(payload)
	if err != nil {
		log.Warn("hash chunk payload failed", zap.Error(err))
		return payload, "", nil
	}
	return payload, sum, nil
}

func (w *Worker) persist(ctx context.Context, key string, record extract.ChunkRecord, log *zap.Logger) {
	if err := w.scratch.Put(ctx, key, record); err != nil {
		log.Error("persist chunk record failed", zap.Error(err))
	}
}

func (w *Worker) finish(ctx context.Context, runID string, chunk extract.Chunk, record extract.ChunkRecord) extract.ChunkResult {
	result := extract.ChunkResult{
		ChunkID:       chunk.ID,
		SequenceIndex: chunk.SequenceIndex,
		Status:        record.Status,
		RecordCount:   record.RecordCount,
		Records:       record.Records,
		Attempts:      len(record.Attempts),
	}
	w.emit(progress.Event{
		RunID:         runID,
		TS:            w.clock.Now(),
		Stage:         progress.StageChunkDone,
		ChunkID:       chunk.ID,
		SequenceIndex: chunk.SequenceIndex,
		PageLabel:     chunk.PageLabel,
		Status:        string(record.Status),
		Records:       int64(record.RecordCount),
	})
	w.publishOutcome(ctx, runID, result)
	return result
}

func (w *Worker) publishOutcome(ctx context.Context, runID string, result extract.ChunkResult) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"run_id":         runID,
		"chunk_id":       result.ChunkID,
		"sequence_index": result.SequenceIndex,
		"status":         string(result.Status),
		"record_count":   result.RecordCount,
		"attempts":       result.Attempts,
		"timestamp":      w.clock.Now().Format(time.RFC3339),
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Warn("publish chunk outcome failed",
			zap.String("run_id", runID),
			zap.String("chunk_id", result.ChunkID),
			zap.Error(err),
		)
	}
}

func (w *Worker) emit(evt progress.Event) {
	if w.emitter == nil {
		return
	}
	w.emitter.Emit(evt)
}
