package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/minkalla/valyze/internal/domain/model"
	"github.com/minkalla/valyze/pkg/logger"
	"github.com/minkalla/valyze/pkg/metrics"
)

const (
	defaultWorkerCount     = 2
	defaultSinkTimeout     = 5 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

// Record abstracts what workers read off the queue.
type Record = model.Provenance

// Queue defines how workers receive records and how the pool ends intake.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Record
	Close() error
}

// Worker delivers queued records to sinks.
type Worker interface {
	// Run starts the worker loop until the queue is drained or ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker without waiting for the queue to drain.
	Shutdown(ctx context.Context) error

	// Done is closed when Run returns.
	Done() <-chan struct{}
}

var _ Worker = (*InMemoryWorker)(nil)

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue       Queue
	sinks       []Sink
	name        string
	sinkTimeout time.Duration
	onProcessed func()

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, sinks []Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:       q,
		sinks:       sinks,
		name:        "worker",
		sinkTimeout: defaultSinkTimeout,
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	records := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case r, ok := <-records:
			if !ok {
				return
			}
			if err := w.process(ctx, r); err != nil {
				w.logger.Error(ctx, "error delivering provenance record", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker loop.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// process writes r to every sink. A failing sink does not stop delivery to the others.
func (w *InMemoryWorker) process(ctx context.Context, r Record) error { //nolint:gocritic // hugeParam: records travel by value over the channel
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(metrics.DurationMs(time.Since(start)))
		if w.onProcessed != nil {
			w.onProcessed()
		}
	}()

	var errs []error
	for _, s := range w.sinks {
		sctx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		err := s.Write(sctx, r)
		cancel()
		if err != nil {
			metrics.RecordProvenanceSinkError(s.Name())
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "sink_error")
			errs = append(errs, fmt.Errorf("sink %s: provenance %s for %s: %w", s.Name(), r.ID, r.DataID, err))
			continue
		}
		metrics.RecordProvenanceWritten(s.Name())
	}
	return errors.Join(errs...)
}

// Pool manages multiple workers reading the same queue.
type Pool struct {
	workers []Worker
	queue   Queue

	processed atomic.Int64
	started   atomic.Bool

	shutdownTimeout time.Duration
	logger          logger.Logger
}

// NewPool creates a worker pool. A workerCount below 1 uses the default.
func NewPool(workerCount int, q Queue, sinks []Sink, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	p := &Pool{
		workers:         make([]Worker, workerCount),
		queue:           q,
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("worker-pool")
	}

	for i := 0; i < workerCount; i++ {
		name := "worker-" + strconv.Itoa(i)
		w := NewInMemoryWorker(q, sinks, WithName(name), WithLogger(p.logger.Named(name)))
		w.onProcessed = func() { p.processed.Add(1) }
		p.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of records handled since the pool was created.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start starts all workers in the pool. Calling Start twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for workers to drain it. Workers still
// running when ctx or the shutdown timeout expires are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}
	if !p.started.Load() {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, p.shutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker drain timed out", logger.Int("worker_id", i))
			// the context has expired, so this only signals the worker to stop
			_ = w.Shutdown(shutdownCtx)
		}
	}

	metrics.UpdateWorkerCount(0)
	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
