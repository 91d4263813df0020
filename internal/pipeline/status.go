package pipeline

import (
	"context"
	"sync"

	"github.com/pagelift/pagelift/internal/extract"
	"github.com/pagelift/pagelift/internal/progress"
)

// statusTracker folds progress events into the run snapshot served by the
// ops API. It is a progress.Sink, so it sees the same event stream as every
// other sink and stays a hub flush behind the workers at most.
type statusTracker struct {
	mu     sync.Mutex
	status extract.RunStatus
}

func (t *statusTracker) Consume(_ context.Context, events []progress.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, evt := range events {
		switch evt.Stage {
		case progress.StageRunStart:
			t.status = extract.RunStatus{
				RunID:     evt.RunID,
				Document:  evt.Document,
				State:     extract.RunStatePartitioning,
				StartedAt: evt.TS,
			}
		case progress.StagePartitioned:
			t.status.TotalChunks = evt.Chunks
			t.status.State = extract.RunStateExtracting
		case progress.StageChunkDone:
			t.status.CompletedChunks++
			if evt.Status == string(extract.ChunkStatusSuccess) {
				t.status.SucceededChunks++
				t.status.TotalRecords += int(evt.Records)
			} else {
				t.status.FailedChunks++
			}
		case progress.StageAggregated:
			t.status.State = extract.RunStateAggregating
			t.status.TotalRecords = int(evt.Records)
		case progress.StageRunDone:
			t.status.State = extract.RunStateDone
		case progress.StageRunError:
			if t.status.RunID == "" {
				t.status.RunID = evt.RunID
				t.status.Document = evt.Document
				t.status.StartedAt = evt.TS
			}
			t.status.State = extract.RunStateFailed
		}
	}
	return nil
}

func (t *statusTracker) Close(context.Context) error {
	return nil
}

// RunStatus returns the current snapshot. The zero RunID means no run has
// started.
func (t *statusTracker) RunStatus() extract.RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}
