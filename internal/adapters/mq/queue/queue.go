// Package queue carries provenance records from the request path to the
// provenance workers.
//
// Enqueue never blocks: a full or closed queue rejects the record and the
// caller decides what to do with it.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/minkalla/valyze/internal/domain/model"
	"github.com/minkalla/valyze/pkg/metrics"
)

const (
	defaultQueueCapacity = 10000
	defaultBufferSize    = 10000
)

// Record is the payload type flowing through the queue.
type Record = model.Provenance

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a record to the queue.
	// Returns false if the queue is full or closed and the record was not enqueued.
	Enqueue(ctx context.Context, r Record) bool

	// TryEnqueue adds a record without blocking and reports why it was not
	// accepted: ErrFull, ErrClosed or the context error.
	TryEnqueue(ctx context.Context, r Record) error

	// Dequeue returns a channel that will receive records as they become available.
	// The channel will be closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Record

	// Len returns the current number of queued records.
	Len(ctx context.Context) int

	// Close stops accepting records. Records already queued are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

var _ Queue = (*InMemoryQueue)(nil)

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	records    chan Record
	capacity   int
	bufferSize int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.bufferSize < q.capacity {
		q.bufferSize = q.capacity
	}

	q.records = make(chan Record, q.bufferSize)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Capacity returns the configured capacity.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Enqueue adds a record to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r Record) bool { //nolint:gocritic // hugeParam: records travel by value over the channel
	return q.TryEnqueue(ctx, r) == nil
}

// TryEnqueue is Enqueue with the rejection reason. It returns ErrClosed,
// ErrFull or the context error.
func (q *InMemoryQueue) TryEnqueue(ctx context.Context, r Record) error { //nolint:gocritic // hugeParam: records travel by value over the channel
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(metrics.DurationMs(time.Since(start)))
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.reject("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		q.reject("context_cancelled")
		return err
	}
	if len(q.records) >= q.capacity {
		q.reject("capacity_exceeded")
		return ErrFull
	}

	select {
	case q.records <- r:
		metrics.RecordQueueEnqueue()
		q.observe(len(q.records))
		return nil
	default:
		q.reject("queue_full")
		return ErrFull
	}
}

func (q *InMemoryQueue) reject(reason string) {
	metrics.RecordQueueEnqueueError()
	metrics.RecordErrorByComponent("queue", reason)
}

func (q *InMemoryQueue) observe(size int) {
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Dequeue returns a channel that will receive records as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Record {
	out := make(chan Record)
	go func() {
		defer close(out)
		for r := range q.records {
			select {
			case out <- r:
				metrics.RecordQueueDequeue()
				q.observe(len(q.records))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued records.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.records)
	q.observe(size)
	return size
}

// Close stops accepting records and closes the channel once drained by consumers.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.records)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
