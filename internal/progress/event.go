// Package progress defines the event structures emitted by the extraction
// pipeline.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StagePartitioned Stage = "PARTITIONED"
	StageAttempt     Stage = "ATTEMPT"
	StageChunkDone   Stage = "CHUNK_DONE"
	StageAggregated  Stage = "AGGREGATED"
)

// Event captures a single milestone of extraction progress.
type Event struct {
	// RunID identifies the pipeline run the event belongs to.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or chunk milestone occurred.
	Stage Stage
	// Document optionally carries the source document path for run events.
	Document string
	// ChunkID scopes attempt and completion events to one chunk.
	ChunkID string
	// SequenceIndex is the chunk's 0-based position in the document.
	SequenceIndex int
	// PageLabel is the chunk's human-readable page range.
	PageLabel string
	// Attempt is the 1-based attempt number for ATTEMPT events.
	Attempt int
	// Credential is the slot label (key-N) used by the attempt, never the
	// token itself.
	Credential string
	// Outcome carries the classified attempt outcome for ATTEMPT events.
	Outcome string
	// Status is the terminal chunk status (success|error) for CHUNK_DONE.
	Status string
	// Chunks carries the chunk count for PARTITIONED events.
	Chunks int
	// Records carries extracted record counts for completions.
	Records int64
	// Dur captures execution latency for attempts and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume context (e.g. failure reasons).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StagePartitioned, StageAggregated:
	case StageAttempt:
		if e.ChunkID == "" {
			return errors.New("attempt requires chunk id")
		}
		if e.Attempt < 1 {
			return errors.New("attempt requires attempt number")
		}
		if e.Credential == "" {
			return errors.New("attempt requires credential label")
		}
		if e.Outcome == "" {
			return errors.New("attempt requires outcome")
		}
	case StageChunkDone:
		if e.ChunkID == "" {
			return errors.New("chunk done requires chunk id")
		}
		if e.Status == "" {
			return errors.New("chunk done requires status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
