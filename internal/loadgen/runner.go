package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/minkalla/valyze/pkg/logger"
)

const (
	directoryPermission  = 0750
	percentageMultiplier = 100
)

// Run executes a complete load run: health check, model discovery, record
// generation, submission, verification and an optional output dump. Any
// mismatch or failed submission makes Run return ErrVerification.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting valyze load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("records", cfg.Records),
		logger.Int("workers", cfg.Workers),
		logger.String("timeout", cfg.Timeout.String()),
		logger.Float64("sensitiveRatio", cfg.SensitiveRatio),
		logger.Bool("verbose", cfg.Verbose))

	client := NewHTTPClient(cfg.BaseURL, cfg.Timeout)

	// Step 1: Check service health
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	logger.Get().Info(ctx, "service is healthy")

	// Step 2: Discover the model and rebuild it locally
	info, err := client.Model(ctx)
	if err != nil {
		return stats, fmt.Errorf("model discovery failed: %w", err)
	}
	local, err := localModel(info)
	if err != nil {
		return stats, err
	}

	// Step 3: Generate records
	records, err := generateRecords(ctx, cfg, info, stats)
	if err != nil {
		return stats, fmt.Errorf("record generation failed: %w", err)
	}

	// Step 4: Submit records concurrently
	outcomes, err := submitRecords(ctx, cfg, client, records, stats)
	if err != nil {
		return stats, fmt.Errorf("record submission failed: %w", err)
	}

	// Step 5: Verify responses and a provenance sample
	mismatches := verifyOutcomes(ctx, cfg, local, outcomes, stats)
	provMismatches, err := verifyProvenance(ctx, cfg, client, outcomes, stats)
	if err != nil {
		return stats, fmt.Errorf("provenance check failed: %w", err)
	}
	mismatches = append(mismatches, provMismatches...)
	stats.Mismatches = len(mismatches)

	// Step 6: Save outcomes
	if cfg.OutputFile != "" {
		if err := saveOutcomes(ctx, cfg.OutputFile, outcomes); err != nil {
			logger.Get().Warn(ctx, "failed to save outcomes to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	switch {
	case len(mismatches) > 0:
		return stats, fmt.Errorf("%w: %d mismatches, first: %s", ErrVerification, len(mismatches), mismatches[0])
	case stats.RecordsRejected+stats.RecordsFailed > 0:
		return stats, fmt.Errorf("%w: %d rejected, %d failed", ErrVerification, stats.RecordsRejected, stats.RecordsFailed)
	}

	logger.Get().Info(ctx, "load run completed successfully")
	return stats, nil
}

// saveOutcomes writes every outcome as an indented JSON array.
func saveOutcomes(ctx context.Context, filename string, outcomes []Outcome) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(ctx, "failed to close file", logger.Error(err))
		}
	}()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(outcomes); err != nil {
		return fmt.Errorf("failed to write outcomes: %w", err)
	}

	logger.Get().Info(ctx, "outcomes saved to file", logger.String("filename", filename))
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var successRate, recordsPerSecond float64

	if stats.RecordsSubmitted > 0 {
		successRate = float64(stats.RecordsSuccessful) / float64(stats.RecordsSubmitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		recordsPerSecond = float64(stats.RecordsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("recordsGenerated", stats.RecordsGenerated),
		logger.Int("recordsSubmitted", stats.RecordsSubmitted),
		logger.Int("recordsSuccessful", stats.RecordsSuccessful),
		logger.Int("recordsRejected", stats.RecordsRejected),
		logger.Int("recordsFailed", stats.RecordsFailed),
		logger.Int("mismatches", stats.Mismatches),
		logger.Int("provenanceChecked", stats.ProvenanceChecked),
		logger.Int("provenanceMissing", stats.ProvenanceMissing),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("recordsPerSecond", recordsPerSecond))
}
