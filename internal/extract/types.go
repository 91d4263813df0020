package extract

import (
	"time"
)

// Document is an immutable handle to one source document for a run.
type Document struct {
	Path       string `json:"path"`
	TotalPages int    `json:"total_pages"`
}

// Chunk is one contiguous page-range slice of a source document, the unit
// of submission to the recognition service. Page numbers are 1-indexed and
// inclusive. Chunks are created by the partitioner and immutable after.
type Chunk struct {
	ID            string `json:"chunk_id"`
	StartPage     int    `json:"start_page"`
	EndPage       int    `json:"end_page"`
	SequenceIndex int    `json:"sequence_index"`
	PageLabel     string `json:"page_label"`
	Path          string `json:"-"`
}

// Pages returns the number of pages the chunk spans.
func (c Chunk) Pages() int {
	return c.EndPage - c.StartPage + 1
}

// Record is one extracted entry in the fixed output schema.
type Record struct {
	Name         string `json:"name"`
	RelationName string `json:"relation_name"`
	Address      string `json:"address"`
	Age          int    `json:"age"`
	Gender       string `json:"gender"`
	Identifier   string `json:"identifier"`
}

// OutcomeKind tags the classified result of one recognition attempt.
type OutcomeKind string

// Attempt outcome values. All four are routine results that drive the
// retry state machine, not exceptional conditions.
const (
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeServiceFailure   OutcomeKind = "service_failure"
	OutcomeFormatFailure    OutcomeKind = "format_failure"
	OutcomeTransportFailure OutcomeKind = "transport_failure"
)

// Outcome is the classified result of a single recognition attempt.
// Records is populated only for OutcomeSuccess; Reason only for failures.
type Outcome struct {
	Kind    OutcomeKind
	Records []Record
	Reason  string
}

// Succeeded reports whether the attempt produced records.
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// ChunkStatus is the terminal state of a chunk after retries complete.
type ChunkStatus string

// Chunk status values persisted in the scratch store and the aggregate.
const (
	ChunkStatusSuccess ChunkStatus = "success"
	ChunkStatusError   ChunkStatus = "error"
)

// Attempt captures one recognition try for provenance. Credential holds the
// slot label (key-N), never the token itself.
type Attempt struct {
	Number     int         `json:"attempt"`
	Credential string      `json:"credential"`
	Outcome    OutcomeKind `json:"outcome"`
	Reason     string      `json:"reason,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	DurationMs int64       `json:"duration_ms"`
}

// ChunkRecord is the durable per-chunk record kept in the scratch store.
// It is rewritten after every attempt so the full attempt history survives
// regardless of how the chunk ends.
type ChunkRecord struct {
	ChunkID       string      `json:"chunk_id"`
	SequenceIndex int         `json:"sequence_index"`
	PageLabel     string      `json:"page_label,omitempty"`
	Status        ChunkStatus `json:"status"`
	Records       []Record    `json:"records,omitempty"`
	RecordCount   int         `json:"record_count"`
	Attempts      []Attempt   `json:"attempts"`
	PayloadSHA256 string      `json:"payload_sha256,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
}

// ChunkResult is the final outcome of one chunk after the retry loop
// terminates, either in success or exhaustion.
type ChunkResult struct {
	ChunkID       string
	SequenceIndex int
	Status        ChunkStatus
	RecordCount   int
	Records       []Record
	Attempts      int
}

// ChunkSummary is one row of the aggregate's per-chunk report, ordered by
// sequence index.
type ChunkSummary struct {
	ChunkID     string      `json:"chunk_id"`
	PageLabel   string      `json:"page_label,omitempty"`
	Status      ChunkStatus `json:"status"`
	RecordCount int         `json:"record_count"`
	Attempts    int         `json:"attempts,omitempty"`
}

// AggregateResult is the consolidated output of one run. Records is the
// concatenation of successful chunks' records in sequence-index order, and
// TotalRecords always equals len(Records).
type AggregateResult struct {
	SourceDocument  string         `json:"source_document"`
	RunID           string         `json:"run_id,omitempty"`
	Timestamp       time.Time      `json:"timestamp"`
	PerChunkSummary []ChunkSummary `json:"per_chunk_summary"`
	TotalRecords    int            `json:"total_records"`
	Records         []Record       `json:"records"`
}

// RunState is the lifecycle state of a pipeline run.
type RunState string

// Run state values reported by the ops API.
const (
	RunStatePartitioning RunState = "partitioning"
	RunStateExtracting   RunState = "extracting"
	RunStateAggregating  RunState = "aggregating"
	RunStateDone         RunState = "done"
	RunStateFailed       RunState = "failed"
)

// RunStatus is the snapshot served by the ops API while a run is active.
type RunStatus struct {
	RunID           string    `json:"run_id"`
	Document        string    `json:"document"`
	State           RunState  `json:"state"`
	TotalChunks     int       `json:"total_chunks"`
	CompletedChunks int       `json:"completed_chunks"`
	SucceededChunks int       `json:"succeeded_chunks"`
	FailedChunks    int       `json:"failed_chunks"`
	TotalRecords    int       `json:"total_records"`
	StartedAt       time.Time `json:"started_at"`
}
