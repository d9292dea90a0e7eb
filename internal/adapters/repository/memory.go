package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/minkalla/valyze/internal/domain/model"
	"github.com/minkalla/valyze/pkg/metrics"
)

const defaultLedgerCapacity = 10000

// MemoryLedger is a bounded in-memory Ledger. Once full, each append evicts
// the oldest record.
type MemoryLedger struct {
	mu       sync.RWMutex
	buf      []model.Provenance
	start    int // index of the oldest record
	size     int
	capacity int
	closed   bool
}

// NewMemoryLedger creates a ledger with configuration options.
func NewMemoryLedger(opts ...Option) *MemoryLedger {
	l := &MemoryLedger{capacity: defaultLedgerCapacity}
	for _, opt := range opts {
		opt(l)
	}
	l.buf = make([]model.Provenance, l.capacity)
	metrics.UpdateLedgerRecords(0)
	return l
}

// Name implements the worker sink contract.
func (l *MemoryLedger) Name() string { return "memory_ledger" }

// Write implements the worker sink contract.
func (l *MemoryLedger) Write(ctx context.Context, p model.Provenance) error { //nolint:gocritic // hugeParam: sink contract takes records by value
	return l.Append(ctx, p)
}

// Append stores p, evicting the oldest record when full.
func (l *MemoryLedger) Append(_ context.Context, p model.Provenance) error { //nolint:gocritic // hugeParam: records are stored by value
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	if l.size < l.capacity {
		l.buf[(l.start+l.size)%l.capacity] = p
		l.size++
	} else {
		l.buf[l.start] = p
		l.start = (l.start + 1) % l.capacity
	}
	metrics.UpdateLedgerRecords(l.size)
	return nil
}

// ByDataID returns up to limit records for dataID, newest first.
func (l *MemoryLedger) ByDataID(_ context.Context, dataID string, limit int) ([]model.Provenance, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	start := time.Now()
	defer func() {
		metrics.RecordLedgerQueryLatency(metrics.DurationMs(time.Since(start)))
	}()

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.Provenance, 0)
	for i := l.size - 1; i >= 0 && len(out) < limit; i-- {
		p := l.buf[(l.start+i)%l.capacity]
		if p.DataID == dataID {
			out = append(out, p)
		}
	}
	return out, nil
}

// Count returns the number of records held.
func (l *MemoryLedger) Count(context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size, nil
}

// Close marks the ledger closed. Records remain queryable.
func (l *MemoryLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
