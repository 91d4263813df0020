package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pagelift/pagelift/internal/extract"
	"github.com/pagelift/pagelift/internal/progress"
)

// LedgerSink persists attempt events through an extract.Ledger so every
// recognition attempt survives the run for post-hoc inspection. Non-attempt
// stages pass through untouched.
type LedgerSink struct {
	ledger extract.Ledger
	logger *zap.Logger
}

// NewLedgerSink constructs a LedgerSink for the provided ledger.
func NewLedgerSink(ledger extract.Ledger, logger *zap.Logger) *LedgerSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerSink{ledger: ledger, logger: logger}
}

// Consume writes one ledger row per attempt event. It respects ctx
// deadlines and returns the first ledger error verbatim.
func (s *LedgerSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.ledger == nil {
		return nil
	}
	for _, evt := range batch {
		if evt.Stage != progress.StageAttempt {
			continue
		}
		chunk := extract.Chunk{
			ID:            evt.ChunkID,
			SequenceIndex: evt.SequenceIndex,
			PageLabel:     evt.PageLabel,
		}
		attempt := extract.Attempt{
			Number:     evt.Attempt,
			Credential: evt.Credential,
			Outcome:    extract.OutcomeKind(evt.Outcome),
			Reason:     evt.Note,
			StartedAt:  evt.TS,
			DurationMs: evt.Dur.Milliseconds(),
		}
		if err := s.ledger.RecordAttempt(ctx, evt.RunID, chunk, attempt); err != nil {
			return fmt.Errorf("record attempt: %w", err)
		}
	}
	return nil
}

// Close closes the underlying ledger.
func (s *LedgerSink) Close(context.Context) error {
	if s == nil || s.ledger == nil {
		return nil
	}
	if err := s.ledger.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	return nil
}
