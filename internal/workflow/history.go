package workflow

import (
	"sync"

	"github.com/adnord/ownership-cli/internal/model"
)

// History is a bounded ring buffer of recent workflow runs, serving the
// status API without a store round-trip. Guarded by a mutex so a serve
// handler can read while a batch writes.
type History struct {
	mu   sync.Mutex
	runs []model.WorkflowRun
	size int
}

// NewHistory creates a history retaining at most size runs.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 50
	}
	return &History{size: size}
}

// Add records a finished run, evicting the oldest when full.
func (h *History) Add(run model.WorkflowRun) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, run)
	if len(h.runs) > h.size {
		h.runs = h.runs[len(h.runs)-h.size:]
	}
}

// Recent returns a copy of the retained runs, newest first.
func (h *History) Recent() []model.WorkflowRun {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.WorkflowRun, len(h.runs))
	for i, r := range h.runs {
		out[len(h.runs)-1-i] = r
	}
	return out
}

// Get returns the retained run with the given id, or nil.
func (h *History) Get(id string) *model.WorkflowRun {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.runs {
		if h.runs[i].ID == id {
			r := h.runs[i]
			return &r
		}
	}
	return nil
}
