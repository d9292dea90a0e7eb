// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/minkalla/valyze/internal/adapters/mq/queue"
	"github.com/minkalla/valyze/internal/adapters/mq/worker"
	"github.com/minkalla/valyze/internal/adapters/repository"
	"github.com/minkalla/valyze/internal/domain/model"
	"github.com/minkalla/valyze/internal/domain/valuation"
	"github.com/minkalla/valyze/pkg/logger"
	"github.com/minkalla/valyze/pkg/metrics"
)

const (
	defaultQueueSize      = 10000
	defaultWorkerCount    = 2
	defaultLedgerCapacity = 10000
	stopTimeout           = 10 * time.Second
)

// Service runs valuations against one shared model and records provenance
// for each successful result.
type Service struct {
	mu sync.RWMutex

	model valuation.Model
	info  model.ModelInfo

	// Provenance pipeline, built by Start.
	ledger  repository.Ledger
	queue   queue.Queue
	pool    *worker.Pool
	logSink worker.Sink
	sinks   []worker.Sink
	cancel  context.CancelFunc

	// Configuration
	workerCount    int
	queueSize      int
	ledgerCapacity int
	ledgerPath     string
	ownsLedger     bool
	newID          func() string
	now            func() time.Time

	// Counters for GetStats.
	succeeded atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of provenance workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the provenance queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLedger injects a ledger. The service does not close injected ledgers.
func WithLedger(l repository.Ledger) Option {
	return func(s *Service) {
		if l != nil {
			s.ledger = l
		}
	}
}

// WithLedgerPath makes Start open a SQLite ledger at path.
func WithLedgerPath(path string) Option {
	return func(s *Service) {
		s.ledgerPath = path
	}
}

// WithLedgerCapacity caps the in-memory ledger used when no path is set.
func WithLedgerCapacity(capacity int) Option {
	return func(s *Service) {
		if capacity > 0 {
			s.ledgerCapacity = capacity
		}
	}
}

// WithSinks adds provenance sinks next to the log sink and the ledger.
func WithSinks(sinks ...worker.Sink) Option {
	return func(s *Service) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIDGenerator overrides provenance id generation.
func WithIDGenerator(f func() string) Option {
	return func(s *Service) {
		if f != nil {
			s.newID = f
		}
	}
}

// WithClock overrides the clock used for provenance recorded_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a Service around m.
func New(m valuation.Model, opts ...Option) *Service {
	s := &Service{
		model:          m,
		info:           valuation.Describe(m),
		workerCount:    defaultWorkerCount,
		queueSize:      defaultQueueSize,
		ledgerCapacity: defaultLedgerCapacity,
		newID:          uuid.NewString,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("valuation")
	}
	s.logSink = worker.NewLogSink(s.logger.Named("provenance"))
	return s
}

// Start builds the provenance pipeline. The pipeline outlives ctx; it is
// torn down by Stop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting valuation service...",
		logger.String("model", s.info.Name),
		logger.String("version", s.info.Version),
	)

	if s.ledger == nil {
		if s.ledgerPath != "" {
			l, err := repository.OpenSQLiteLedger(ctx, s.ledgerPath)
			if err != nil {
				return fmt.Errorf("start valuation service: %w", err)
			}
			s.ledger = l
			s.logger.Info(ctx, "using sqlite ledger", logger.String("path", s.ledgerPath))
		} else {
			s.ledger = repository.NewMemoryLedger(repository.WithCapacity(s.ledgerCapacity))
			s.logger.Info(ctx, "using memory ledger", logger.Int("capacity", s.ledgerCapacity))
		}
		s.ownsLedger = true
	}

	sinks := []worker.Sink{s.logSink}
	if sink, ok := s.ledger.(worker.Sink); ok {
		sinks = append(sinks, sink)
	}
	sinks = append(sinks, s.sinks...)

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, sinks,
		worker.WithPoolLogger(s.logger.Named("worker-pool")),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)

	s.started = true
	s.logger.Info(ctx, "valuation service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
	)
	return nil
}

// Stop drains queued provenance and releases the ledger.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping valuation service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "provenance pipeline did not drain", logger.Error(err))
	}
	s.cancel()

	if s.ownsLedger {
		if err := s.ledger.Close(); err != nil {
			s.logger.Error(ctx, "error closing ledger", logger.Error(err))
		}
		s.ledger = nil
		s.ownsLedger = false
	}

	s.started = false
	s.logger.Info(ctx, "valuation service stopped")
}

// ModelInfo describes the configured model.
func (s *Service) ModelInfo() model.ModelInfo {
	info := s.info
	if info.MultiplierFactor != nil {
		m := make(map[string]float64, len(info.MultiplierFactor))
		for k, v := range info.MultiplierFactor {
			m[k] = v
		}
		info.MultiplierFactor = m
	}
	return info
}

// Valuate runs a single valuation attempt. Any failure inside the model,
// including a panic, is returned as a *valuation.ModelExecutionError.
func (s *Service) Valuate(ctx context.Context, in model.InputRecord) (model.ValuationResult, error) { //nolint:gocritic // hugeParam: records are immutable values
	start := time.Now()
	res, err := s.predict(ctx, in)
	metrics.RecordValuationLatency(metrics.DurationMs(time.Since(start)))

	if err != nil {
		var mee *valuation.ModelExecutionError
		if !errors.As(err, &mee) {
			mee = &valuation.ModelExecutionError{DataID: in.DataID, Model: s.info.Name, Cause: err}
			err = mee
		}
		s.failed.Add(1)
		metrics.RecordValuation(s.info.Name, s.info.Version, metrics.OutcomeFailure)
		metrics.RecordErrorByComponent("valuation", "model_execution")
		metrics.RecordErrorByType("model_execution", "high")
		s.logger.Error(ctx, "valuation failed",
			logger.String("data_id", in.DataID),
			logger.String("model", s.info.Name),
			logger.String("version", s.info.Version),
			logger.String("diagnostic", mee.Diagnostic()),
			logger.Error(err),
		)
		return model.ValuationResult{}, err
	}

	s.succeeded.Add(1)
	metrics.RecordValuation(res.ModelUsed, res.ModelVersion, metrics.OutcomeSuccess)
	metrics.RecordValuationScore(res.ValuationScore)

	s.emit(ctx, in, res)
	return res, nil
}

func (s *Service) predict(ctx context.Context, in model.InputRecord) (res model.ValuationResult, err error) { //nolint:gocritic // hugeParam: records are immutable values
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "model panicked",
				logger.String("data_id", in.DataID),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())),
			)
			res = model.ValuationResult{}
			err = &valuation.ModelExecutionError{DataID: in.DataID, Model: s.info.Name, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	return s.model.Predict(in)
}

// emit hands the provenance record to the pipeline without blocking. If the
// pipeline cannot take it, the record is written to the log sink directly.
func (s *Service) emit(ctx context.Context, in model.InputRecord, res model.ValuationResult) { //nolint:gocritic // hugeParam: records are immutable values
	p := model.Provenance{
		ID:                 s.newID(),
		DataID:             in.DataID,
		Category:           in.Category,
		Source:             in.SourceName(),
		ModelUsed:          res.ModelUsed,
		ModelVersion:       res.ModelVersion,
		ValuationScore:     res.ValuationScore,
		ConfidenceScore:    res.ConfidenceScore,
		ValuationTimestamp: res.ValuationTimestamp,
		RecordedAt:         s.now().UTC(),
	}

	s.mu.RLock()
	q := s.queue
	s.mu.RUnlock()

	if q != nil {
		err := q.TryEnqueue(context.WithoutCancel(ctx), p)
		if err == nil {
			metrics.RecordProvenanceEnqueued()
			return
		}
		s.logger.Warn(ctx, "provenance bypassed the ledger",
			logger.String("data_id", p.DataID),
			logger.Error(err),
		)
	}

	s.dropped.Add(1)
	metrics.RecordProvenanceDropped()
	_ = s.logSink.Write(ctx, p)
}

// History returns up to limit provenance records for dataID, newest first.
func (s *Service) History(ctx context.Context, dataID string, limit int) ([]model.Provenance, error) {
	s.mu.RLock()
	l := s.ledger
	s.mu.RUnlock()

	if l == nil {
		return nil, fmt.Errorf("provenance history: %w", repository.ErrClosed)
	}
	return l.ByDataID(ctx, dataID, limit)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":             s.started,
		"model":               s.info.Name,
		"modelVersion":        s.info.Version,
		"workerCount":         s.workerCount,
		"queueSize":           s.queueSize,
		"valuationsSucceeded": s.succeeded.Load(),
		"valuationsFailed":    s.failed.Load(),
		"provenanceBypassed":  s.dropped.Load(),
	}

	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["provenanceProcessed"] = s.pool.Processed()
		if n, err := s.ledger.Count(ctx); err == nil {
			stats["ledgerRecords"] = n
		}
		metrics.UpdateWorkerCount(s.pool.Size())
	}

	return stats
}
