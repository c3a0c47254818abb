package usecase

import (
	"context"
	"sync"
)

// RunRegistry tracks in-process enrichment runs so a delete can stop them.
// A book may have more than one run when a job is delivered twice.
type RunRegistry struct {
	mu    sync.Mutex
	next  uint64
	runs  map[string]map[uint64]context.CancelFunc
	total int
}

func NewRunRegistry() *RunRegistry {
	return &RunRegistry{runs: make(map[string]map[uint64]context.CancelFunc)}
}

// Track derives a cancellable context for the run. The returned release func
// must be called when the run ends; it only forgets this run.
func (r *RunRegistry) Track(ctx context.Context, bookID string) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(ctx)
	if r == nil {
		return runCtx, cancel
	}

	r.mu.Lock()
	r.next++
	token := r.next
	byToken, ok := r.runs[bookID]
	if !ok {
		byToken = make(map[uint64]context.CancelFunc)
		r.runs[bookID] = byToken
	}
	byToken[token] = cancel
	r.total++
	r.mu.Unlock()

	var once sync.Once
	return runCtx, func() {
		once.Do(func() {
			r.mu.Lock()
			if byToken, ok := r.runs[bookID]; ok {
				if _, ok := byToken[token]; ok {
					delete(byToken, token)
					r.total--
				}
				if len(byToken) == 0 {
					delete(r.runs, bookID)
				}
			}
			r.mu.Unlock()
			cancel()
		})
	}
}

// Cancel stops every run of bookID, reporting whether one was active.
func (r *RunRegistry) Cancel(bookID string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.runs[bookID]))
	for _, cancel := range r.runs[bookID] {
		cancels = append(cancels, cancel)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels) > 0
}

func (r *RunRegistry) Active() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}
