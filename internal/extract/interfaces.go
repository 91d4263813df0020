package extract

import (
	"context"
	"time"
)

// StatusNormal is the completion status a healthy recognition call reports.
// Any other status is classified as a service-side failure.
const StatusNormal = "STOP"

// RecognizeRequest carries one chunk submission to the recognition service.
type RecognizeRequest struct {
	Instruction string
	Payload     []byte
	MIMEType    string
	Schema      map[string]any
	Credential  string
}

// RecognizeResponse is the service's raw answer before classification:
// its declared completion status plus the structured payload bytes.
type RecognizeResponse struct {
	Status   string
	Body     []byte
	Duration time.Duration
}

// Recognizer submits a chunk payload to the recognition service. It carries
// no retry semantics of its own; a returned error means the call itself
// failed (transport), while service- and format-level failures surface
// through the response.
type Recognizer interface {
	Recognize(ctx context.Context, req RecognizeRequest) (RecognizeResponse, error)
}

// ScratchStore persists per-chunk attempt records for the life of a run.
// Get returns ErrNotFound when no record exists for the key.
type ScratchStore interface {
	Put(ctx context.Context, key string, record ChunkRecord) error
	Get(ctx context.Context, key string) (ChunkRecord, error)
	Exists(ctx context.Context, key string) (bool, error)
	DeleteAll(ctx context.Context) error
}

// Ledger records every recognition attempt for post-run inspection.
type Ledger interface {
	RecordAttempt(ctx context.Context, runID string, chunk Chunk, attempt Attempt) error
	Close() error
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for payload provenance.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
