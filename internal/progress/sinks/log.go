package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/pagelift/pagelift/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. It is useful
// during development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.String("chunk_id", evt.ChunkID),
			zap.Int("sequence", evt.SequenceIndex),
			zap.String("page_label", evt.PageLabel),
			zap.Int("attempt", evt.Attempt),
			zap.String("credential", evt.Credential),
			zap.String("outcome", evt.Outcome),
			zap.String("status", evt.Status),
			zap.Int("chunks", evt.Chunks),
			zap.Int64("records", evt.Records),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
