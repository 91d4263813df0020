// Package memory contains an in-memory recognizer for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/pagelift/pagelift/internal/extract"
)

// Step is one scripted answer. Err takes precedence over Response.
type Step struct {
	Response extract.RecognizeResponse
	Err      error
}

// Recognizer replays a script of answers in call order and records every
// request for inspection. When the script runs out, the last step repeats;
// with no script at all it answers an empty successful extraction.
type Recognizer struct {
	mu     sync.Mutex
	script []Step
	calls  []extract.RecognizeRequest
}

// New returns a Recognizer that replays steps.
func New(steps ...Step) *Recognizer {
	return &Recognizer{script: steps}
}

// Recognize records the request and returns the next scripted answer.
func (r *Recognizer) Recognize(_ context.Context, req extract.RecognizeRequest) (extract.RecognizeResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	if len(r.script) == 0 {
		return extract.RecognizeResponse{Status: extract.StatusNormal, Body: []byte("[]")}, nil
	}
	step := r.script[0]
	if len(r.script) > 1 {
		r.script = r.script[1:]
	}
	return step.Response, step.Err
}

// Calls returns the recorded requests.
func (r *Recognizer) Calls() []extract.RecognizeRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]extract.RecognizeRequest, len(r.calls))
	copy(out, r.calls)
	return out
}
