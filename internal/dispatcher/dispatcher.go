// Package dispatcher owns the worker pool that drains the seat queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tablepilot/internal/pilot"
	"github.com/JakeFAU/tablepilot/internal/worker"
)

// Config sizes the worker pool.
type Config struct {
	// Workers is the number of queue consumers. They all drive the same
	// client window, so sessions still execute one at a time; extra workers
	// keep canceled and misconfigured jobs draining while a session holds
	// the window.
	Workers int
}

// Dispatcher fans queued seat requests out to its workers.
type Dispatcher struct {
	queue   pilot.SeatQueue
	workers []*worker.Worker
}

// New builds the worker pool. Every worker shares seater, and the window
// behind it has a single cursor, so the dispatcher gates sessions to take
// turns instead of fighting over the mouse. A queued session waits its turn
// and then gets its full timeout.
func New(
	queue pilot.SeatQueue,
	sessions pilot.SessionStore,
	seater worker.Seater,
	publisher pilot.Publisher,
	clock pilot.Clock,
	workerCfg worker.Config,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if seater != nil {
		seater = &exclusiveSeater{inner: seater}
	}
	workers := make([]*worker.Worker, 0, cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		workers = append(workers, worker.New(
			queue,
			sessions,
			seater,
			publisher,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Workers reports the pool size.
func (d *Dispatcher) Workers() int {
	return len(d.workers)
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue hands a seat request to the queue.
func (d *Dispatcher) Enqueue(ctx context.Context, req pilot.SeatRequest) error {
	if err := d.queue.Enqueue(ctx, req); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// exclusiveSeater serializes sessions on the shared client window.
type exclusiveSeater struct {
	mu    sync.Mutex
	inner worker.Seater
}

func (s *exclusiveSeater) Run(ctx context.Context, filter pilot.TableFilter, timeout time.Duration) pilot.SeatResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inner.Run(ctx, filter, timeout)
}
