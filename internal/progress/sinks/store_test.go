package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagelift/pagelift/internal/extract"
	ledgermem "github.com/pagelift/pagelift/internal/ledger/memory"
	"github.com/pagelift/pagelift/internal/progress"
)

// TestLedgerSinkPersistsAttempts ensures only attempt events become ledger rows.
func TestLedgerSinkPersistsAttempts(t *testing.T) {
	t.Parallel()

	ledger := ledgermem.New()
	sink := NewLedgerSink(ledger, nil)
	now := time.Now()

	batch := []progress.Event{
		{RunID: "run-1", Stage: progress.StageRunStart, TS: now},
		{
			RunID:         "run-1",
			Stage:         progress.StageAttempt,
			TS:            now.Add(time.Second),
			ChunkID:       "chunk-3",
			SequenceIndex: 3,
			PageLabel:     "p031-040",
			Attempt:       1,
			Credential:    "key-4",
			Outcome:       "transport_failure",
			Note:          "connection reset by peer",
			Dur:           750 * time.Millisecond,
		},
		{
			RunID:         "run-1",
			Stage:         progress.StageAttempt,
			TS:            now.Add(2 * time.Second),
			ChunkID:       "chunk-3",
			SequenceIndex: 3,
			PageLabel:     "p031-040",
			Attempt:       2,
			Credential:    "key-1",
			Outcome:       "success",
			Dur:           1300 * time.Millisecond,
		},
		{RunID: "run-1", Stage: progress.StageChunkDone, TS: now.Add(3 * time.Second), ChunkID: "chunk-3", Status: "success"},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	entries := ledger.Entries()
	require.Len(t, entries, 2, "run and chunk stages must not produce rows")

	first := entries[0]
	require.Equal(t, "run-1", first.RunID)
	require.Equal(t, "chunk-3", first.Chunk.ID)
	require.Equal(t, 3, first.Chunk.SequenceIndex)
	require.Equal(t, "p031-040", first.Chunk.PageLabel)
	require.Equal(t, 1, first.Attempt.Number)
	require.Equal(t, "key-4", first.Attempt.Credential)
	require.Equal(t, extract.OutcomeTransportFailure, first.Attempt.Outcome)
	require.Equal(t, "connection reset by peer", first.Attempt.Reason)
	require.Equal(t, int64(750), first.Attempt.DurationMs)

	require.Equal(t, extract.OutcomeSuccess, entries[1].Attempt.Outcome)
}

// TestLedgerSinkSurfacesErrors returns ledger failures to the hub.
func TestLedgerSinkSurfacesErrors(t *testing.T) {
	t.Parallel()

	ledger := ledgermem.New()
	require.NoError(t, ledger.Close())
	sink := NewLedgerSink(ledger, nil)

	err := sink.Consume(context.Background(), []progress.Event{
		{RunID: "run-2", Stage: progress.StageAttempt, TS: time.Now(), ChunkID: "chunk-1", Attempt: 1, Credential: "key-1", Outcome: "success"},
	})
	require.Error(t, err)
}

// TestLedgerSinkNilLedger tolerates a missing backend.
func TestLedgerSinkNilLedger(t *testing.T) {
	t.Parallel()

	sink := NewLedgerSink(nil, nil)
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: "run-3", Stage: progress.StageAttempt, TS: time.Now(), ChunkID: "c", Attempt: 1, Credential: "key-1", Outcome: "success"},
	}))
	require.NoError(t, sink.Close(context.Background()))
}
