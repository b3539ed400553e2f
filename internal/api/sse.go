package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/kamilpajak/commentguard/internal/scan"
)

// SSEEmitter implements scan.ProgressEmitter by writing Server-Sent Events.
type SSEEmitter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEEmitter creates an SSEEmitter for the given ResponseWriter.
// Returns nil if the writer does not support flushing.
func NewSSEEmitter(w http.ResponseWriter) *SSEEmitter {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil
	}
	return &SSEEmitter{w: w, flusher: f}
}

// Emit writes a progress event as an SSE data line and flushes.
func (e *SSEEmitter) Emit(ev scan.ProgressEvent) {
	e.send(ev)
}

func (e *SSEEmitter) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.w, "data: %s\n\n", data)
	e.flusher.Flush()
}
