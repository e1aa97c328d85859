package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/semaphore"
)

type sharedPool struct {
	gate
	jobs     chan func()
	logger   *slog.Logger
	workers  sync.WaitGroup
	stopOnce sync.Once
}

func newSharedPool(max int, logger *slog.Logger) *sharedPool {
	p := &sharedPool{
		gate:   gate{sem: semaphore.NewWeighted(int64(max))},
		jobs:   make(chan func(), max),
		logger: logger,
	}

	for i := 0; i < max; i++ {
		p.workers.Add(1)
		go func() {
			defer p.workers.Done()
			p.runWorker(fmt.Sprintf("shared-%d-%d", os.Getpid(), i))
		}()
	}

	return p
}

func (p *sharedPool) runWorker(id string) {
	for job := range p.jobs {
		safeRun(p.logger, id, job)
	}
}

func (p *sharedPool) Reserve(ctx context.Context) (*Slot, error) {
	// The queue holds max jobs and at most max slots are outstanding, so
	// the send never blocks.
	return p.reserve(ctx, func(job func()) { p.jobs <- job })
}

func (p *sharedPool) Wait() {
	p.wg.Wait()
	p.stopOnce.Do(func() { close(p.jobs) })
	p.workers.Wait()
}

func (p *sharedPool) Mode() Mode {
	return ModeShared
}
