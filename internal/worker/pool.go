// Package worker runs connection handlers on a bounded set of workers.
//
// Two policies share one interface. A shared pool keeps a fixed set of
// long-lived workers that pick up jobs from a queue and keep running after
// a job panics. An isolated pool starts a fresh goroutine for every job and
// discards it afterwards. Both admit at most Max jobs at once, and the
// bound is taken before a job exists, so callers can reserve a worker
// before accepting a connection.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool hands jobs to a bounded set of workers.
type Pool interface {
	// Reserve blocks until a worker is free or ctx is done.
	Reserve(ctx context.Context) (*Slot, error)
	// Wait blocks until every running job has returned and stops idle workers.
	Wait()
	// Mode reports the isolation policy.
	Mode() Mode
}

// Slot is a reserved worker. Exactly one of Run or Release must be called.
type Slot struct {
	release func()
	run     func(job func())
	once    sync.Once
}

// Run executes job on the reserved worker. The slot is released when job
// returns or panics.
func (s *Slot) Run(job func()) {
	used := false
	s.once.Do(func() { used = true })
	if !used {
		return
	}
	s.run(func() {
		defer s.release()
		job()
	})
}

// Release gives the slot back without running anything.
func (s *Slot) Release() {
	s.once.Do(s.release)
}

// New creates a pool of the given mode bounded to max concurrent jobs.
func New(mode Mode, max int, logger *slog.Logger) (Pool, error) {
	if max < 1 {
		return nil, fmt.Errorf("worker pool size must be positive, got %d", max)
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch mode {
	case ModeShared:
		return newSharedPool(max, logger), nil
	case ModeIsolated:
		return newIsolatedPool(max, logger), nil
	default:
		return nil, fmt.Errorf("unknown worker mode %q", mode)
	}
}

// gate bounds the number of outstanding slots.
type gate struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

func (g *gate) reserve(ctx context.Context, run func(job func())) (*Slot, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	g.wg.Add(1)
	return &Slot{
		release: func() {
			g.sem.Release(1)
			g.wg.Done()
		},
		run: run,
	}, nil
}

// safeRun executes job and converts a panic into a log entry.
func safeRun(logger *slog.Logger, workerID string, job func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Worker recovered from panic",
				"worker_id", workerID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	job()
}
