package extract

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by scratch stores when no record exists for a key.
var ErrNotFound = errors.New("record not found")

// PartitionError means the source document could not be split into chunks.
// It is fatal: no partial partitioning is meaningful, so the run aborts.
type PartitionError struct {
	Document string
	Err      error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("partition %s: %v", e.Document, e.Err)
}

func (e *PartitionError) Unwrap() error {
	return e.Err
}

// ConfigurationError means the run configuration is invalid. It is fatal
// and raised before any chunk work begins.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}

// ChunkExhaustedError marks a chunk that failed on every credential in the
// pool. It is terminal for the chunk but recoverable for the run: the chunk
// contributes zero records and other chunks continue independently.
type ChunkExhaustedError struct {
	ChunkID  string
	Attempts int
}

func (e *ChunkExhaustedError) Error() string {
	return fmt.Sprintf("chunk %s exhausted after %d attempts", e.ChunkID, e.Attempts)
}

// IsFatal reports whether err must abort the whole run. Only partition
// failures and configuration failures qualify; every per-chunk condition,
// including exhaustion, leaves the run able to produce a partial aggregate.
func IsFatal(err error) bool {
	var pe *PartitionError
	var ce *ConfigurationError
	return errors.As(err, &pe) || errors.As(err, &ce)
}
