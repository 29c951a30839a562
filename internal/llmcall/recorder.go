package llmcall

import (
	"sync"

	"github.com/jackzampolin/pathoprompt/internal/providers"
)

// Recorder collects calls for one technique run. It is safe for concurrent
// use by sampling goroutines.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record captures a chat result and returns the stored call.
func (r *Recorder) Record(result *providers.ChatResult, callErr error, opts RecordOptions) Call {
	call := FromChatResult(result, callErr, opts)
	r.RecordCall(*call)
	return *call
}

// RecordCall stores an already-constructed call.
func (r *Recorder) RecordCall(calls ...Call) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.calls = append(r.calls, calls...)
	r.mu.Unlock()
}

// Calls returns a copy of the recorded calls in arrival order.
func (r *Recorder) Calls() []Call {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil
	}
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}
