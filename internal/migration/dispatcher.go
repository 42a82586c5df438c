package migration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/eventlog-migrator/internal/errors"
	"github.com/tphakala/eventlog-migrator/internal/logger"
	"github.com/tphakala/eventlog-migrator/internal/observability/metrics"
)

// BatchHandler processes one sub-batch.
type BatchHandler func(ctx context.Context, batch SubBatch)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Workers       int // goroutines draining the queue for the whole run
	MaxWorkers    int // upper bound including burst workers
	QueueCapacity int
	Handler       BatchHandler
	Metrics       *metrics.MigrationMetrics
	Logger        logger.Logger
}

type job struct {
	ctx   context.Context
	batch SubBatch
}

// Dispatcher runs sub-batches on a bounded worker pool fed by a bounded
// queue. When the queue is full it starts a burst worker if the pool is
// below MaxWorkers, and otherwise runs the sub-batch on the caller's
// goroutine, which throttles the producer.
type Dispatcher struct {
	queue   chan job
	group   errgroup.Group
	handler BatchHandler
	metrics *metrics.MigrationMetrics
	log     logger.Logger

	mu      sync.RWMutex
	stopped bool

	abandon    atomic.Bool
	callerRuns atomic.Int64
	bursts     atomic.Int64
	abandoned  atomic.Int64
}

// NewDispatcher starts cfg.Workers workers.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	workers := max(cfg.Workers, 1)
	maxWorkers := max(cfg.MaxWorkers, workers)
	capacity := max(cfg.QueueCapacity, 1)

	d := &Dispatcher{
		queue:   make(chan job, capacity),
		handler: cfg.Handler,
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}
	d.group.SetLimit(maxWorkers)
	for range workers {
		d.group.Go(func() error {
			for j := range d.queue {
				d.run(j)
			}
			return nil
		})
	}
	return d
}

// Submit schedules batch. It returns ErrPipelineStopped after Shutdown.
// When the queue and the pool are saturated, Submit runs the batch itself
// and returns once it is done.
func (d *Dispatcher) Submit(ctx context.Context, batch SubBatch) error {
	j := job{ctx: ctx, batch: batch}

	d.mu.RLock()
	if d.stopped {
		d.mu.RUnlock()
		return ErrPipelineStopped
	}
	select {
	case d.queue <- j:
		d.metrics.SetQueueDepth(len(d.queue))
		d.mu.RUnlock()
		return nil
	default:
	}

	burst := d.group.TryGo(func() error {
		d.run(j)
		d.drainQueued()
		return nil
	})
	d.mu.RUnlock()

	if burst {
		d.bursts.Add(1)
		return nil
	}

	d.callerRuns.Add(1)
	d.metrics.RecordCallerRuns()
	d.handler(ctx, batch)
	return nil
}

// drainQueued lets a burst worker help until the queue is momentarily empty.
func (d *Dispatcher) drainQueued() {
	for {
		select {
		case j, ok := <-d.queue:
			if !ok {
				return
			}
			d.run(j)
		default:
			return
		}
	}
}

func (d *Dispatcher) run(j job) {
	d.metrics.SetQueueDepth(len(d.queue))
	if d.abandon.Load() {
		d.abandoned.Add(1)
		return
	}
	d.handler(j.ctx, j.batch)
}

// QueueLen returns the number of sub-batches waiting for a worker.
func (d *Dispatcher) QueueLen() int {
	return len(d.queue)
}

// CallerRuns returns how many sub-batches ran on the submitting goroutine.
func (d *Dispatcher) CallerRuns() int64 {
	return d.callerRuns.Load()
}

// Abandoned returns how many queued sub-batches were dropped by Shutdown.
func (d *Dispatcher) Abandoned() int64 {
	return d.abandoned.Load()
}

// Shutdown stops accepting work and waits up to timeout for queued and
// running sub-batches. Sub-batches still queued when the timeout expires
// are dropped and ErrDrainTimeout is returned; running ones are left to
// finish in the background.
func (d *Dispatcher) Shutdown(timeout time.Duration) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = d.group.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		d.metrics.SetQueueDepth(0)
		return nil
	case <-timer.C:
	}

	d.abandon.Store(true)
	for range d.queue {
		d.abandoned.Add(1)
	}
	n := d.abandoned.Load()
	d.metrics.RecordAbandoned(int(n))
	d.metrics.SetQueueDepth(0)
	if d.log != nil {
		d.log.Warn("drain timeout expired, abandoning queued sub-batches",
			logger.Duration("timeout", timeout),
			logger.Int64("abandoned", n))
	}

	return errors.New(fmt.Errorf("%w after %s", ErrDrainTimeout, timeout)).
		Component(componentMigration).
		Category(errors.CategoryTimeout).
		Context("abandoned_sub_batches", n).
		Build()
}
