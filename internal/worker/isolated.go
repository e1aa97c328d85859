package worker

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

type isolatedPool struct {
	gate
	logger *slog.Logger
}

func newIsolatedPool(max int, logger *slog.Logger) *isolatedPool {
	return &isolatedPool{
		gate:   gate{sem: semaphore.NewWeighted(int64(max))},
		logger: logger,
	}
}

func (p *isolatedPool) Reserve(ctx context.Context) (*Slot, error) {
	return p.reserve(ctx, func(job func()) {
		go safeRun(p.logger, "isolated-"+uuid.NewString(), job)
	})
}

func (p *isolatedPool) Wait() {
	p.wg.Wait()
}

func (p *isolatedPool) Mode() Mode {
	return ModeIsolated
}
