// Package worker drains provenance records from the queue into sinks.
package worker

import (
	"time"

	"github.com/minkalla/valyze/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithSinkTimeout bounds a single sink write.
func WithSinkTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.sinkTimeout = d
		}
	}
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the pool logger; workers derive named loggers from it.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithShutdownTimeout bounds how long Shutdown waits for workers to drain.
func WithShutdownTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.shutdownTimeout = d
		}
	}
}
