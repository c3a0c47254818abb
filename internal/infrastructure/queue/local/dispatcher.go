package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/readwise/internal/core/domain"
	"github.com/kirillkom/readwise/internal/core/ports"
)

var ErrClosed = errors.New("local dispatcher is closed")

// Dispatcher runs each enrichment job in its own goroutine, detached from
// the request that triggered it.
type Dispatcher struct {
	runner     ports.EnrichmentRunner
	jobTimeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func New(runner ports.EnrichmentRunner, jobTimeout time.Duration) *Dispatcher {
	return &Dispatcher{
		runner:     runner,
		jobTimeout: jobTimeout,
	}
}

func (d *Dispatcher) Dispatch(_ context.Context, job domain.EnrichmentJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return domain.WrapError(domain.ErrTemporary, "dispatch enrichment", ErrClosed)
	}

	d.wg.Add(1)
	go d.run(job)
	return nil
}

func (d *Dispatcher) run(job domain.EnrichmentJob) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("enrichment_runner_panic", "book_id", job.BookID, "panic", fmt.Sprint(r))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	if d.jobTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), d.jobTimeout)
	}
	defer cancel()

	if err := d.runner.Run(ctx, job); err != nil {
		slog.Error("enrichment_job_failed", "book_id", job.BookID, "error", err)
	}
}

// Shutdown stops accepting jobs and waits for running ones until ctx ends.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for enrichment jobs: %w", ctx.Err())
	}
}
