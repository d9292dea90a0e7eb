package worker

import (
	"context"

	"github.com/minkalla/valyze/internal/domain/model"
	"github.com/minkalla/valyze/pkg/logger"
)

// Sink receives provenance records.
type Sink interface {
	Name() string
	Write(ctx context.Context, p model.Provenance) error
}

// LogSink writes provenance records as structured info entries.
type LogSink struct {
	logger logger.Logger
}

// NewLogSink returns a sink writing to l, or to the global "provenance" logger when l is nil.
func NewLogSink(l logger.Logger) *LogSink {
	if l == nil {
		l = logger.Get().Named("provenance")
	}
	return &LogSink{logger: l}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Write implements Sink. It never fails.
func (s *LogSink) Write(ctx context.Context, p model.Provenance) error { //nolint:gocritic // hugeParam: sink contract takes records by value
	s.logger.Info(ctx, "provenance record",
		logger.String("provenance_id", p.ID),
		logger.String("data_id", p.DataID),
		logger.String("category", p.Category),
		logger.String("source", p.Source),
		logger.String("model_used", p.ModelUsed),
		logger.String("model_version", p.ModelVersion),
		logger.Float64("valuation_score", p.ValuationScore),
		logger.Float64("confidence_score", p.ConfidenceScore),
		logger.String("valuation_timestamp", p.ValuationTimestamp.Format("2006-01-02T15:04:05.000000Z07:00")),
	)
	return nil
}
