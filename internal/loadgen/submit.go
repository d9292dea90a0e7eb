package loadgen

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/minkalla/valyze/internal/domain/model"
	"github.com/minkalla/valyze/pkg/logger"
)

// submitRecords posts every record with at most cfg.Workers in flight.
// Outcomes are returned in record order.
func submitRecords(ctx context.Context, cfg *Config, client *HTTPClient, records []model.InputRecord, stats *Stats) ([]Outcome, error) {
	log := logger.Get().Named("submit")
	log.Info(ctx, "submitting records", logger.Int("records", len(records)), logger.Int("workers", cfg.Workers))

	outcomes := make([]Outcome, len(records))
	var ok, rejected, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out := client.Valuate(gctx, records[i])
			outcomes[i] = out

			switch {
			case out.StatusCode == http.StatusOK && out.Response != nil:
				ok.Add(1)
			case out.StatusCode >= http.StatusBadRequest && out.StatusCode < http.StatusInternalServerError:
				rejected.Add(1)
				if cfg.Verbose {
					log.Warn(gctx, "record rejected", logger.String("data_id", out.Record.DataID),
						logger.Int("status", out.StatusCode), logger.String("body", out.Error))
				}
			default:
				failed.Add(1)
				if cfg.Verbose {
					log.Warn(gctx, "record failed", logger.String("data_id", out.Record.DataID),
						logger.Int("status", out.StatusCode), logger.String("error", out.Error))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("submission interrupted: %w", err)
	}

	stats.RecordsSubmitted = len(records)
	stats.RecordsSuccessful = int(ok.Load())
	stats.RecordsRejected = int(rejected.Load())
	stats.RecordsFailed = int(failed.Load())

	log.Info(ctx, "submission completed",
		logger.Int("successful", stats.RecordsSuccessful),
		logger.Int("rejected", stats.RecordsRejected),
		logger.Int("failed", stats.RecordsFailed),
	)
	return outcomes, nil
}
