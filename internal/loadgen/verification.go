package loadgen

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/minkalla/valyze/internal/domain/model"
	"github.com/minkalla/valyze/internal/domain/valuation"
	"github.com/minkalla/valyze/pkg/logger"
)

// Provenance is written asynchronously, so sampled lookups are polled.
const (
	provenancePollInterval = 50 * time.Millisecond
	provenancePollTimeout  = 5 * time.Second
)

// localModel rebuilds the service's model from its reported configuration.
func localModel(info model.ModelInfo) (valuation.Model, error) {
	base := info.BaseValue
	m, err := valuation.New(info.Kind, valuation.Configuration{
		Name:             info.Name,
		Version:          info.Version,
		BaseValue:        &base,
		MultiplierFactor: info.MultiplierFactor,
	})
	if err != nil {
		return nil, fmt.Errorf("build local model: %w", err)
	}
	return m, nil
}

// verifyOutcomes compares every successful response to a local prediction.
func verifyOutcomes(ctx context.Context, cfg *Config, local valuation.Model, outcomes []Outcome, stats *Stats) []Mismatch {
	log := logger.Get().Named("verify")
	log.Info(ctx, "verifying responses against local model",
		logger.String("model", local.Name()), logger.String("version", local.Version()))

	var mismatches []Mismatch
	for i := range outcomes {
		out := &outcomes[i]
		if out.Response == nil {
			continue
		}
		want, err := local.Predict(out.Record)
		if err != nil {
			mismatches = append(mismatches, Mismatch{
				DataID: out.Record.DataID, Field: "error", Want: err.Error(), Got: "success",
			})
			continue
		}
		mismatches = append(mismatches, compare(out.Record.DataID, want, out.Response.ValuationScore,
			out.Response.ConfidenceScore, out.Response.ModelUsed, out.Response.ModelVersion)...)
	}

	stats.Mismatches = len(mismatches)
	if cfg.Verbose {
		for _, m := range mismatches {
			log.Warn(ctx, "mismatch", logger.String("detail", m.String()))
		}
	}
	return mismatches
}

func compare(dataID string, want model.ValuationResult, score, confidence float64, name, version string) []Mismatch {
	var out []Mismatch
	add := func(field, w, g string) {
		out = append(out, Mismatch{DataID: dataID, Field: field, Want: w, Got: g})
	}
	if score != want.ValuationScore {
		add("valuation_score", formatFloat(want.ValuationScore), formatFloat(score))
	}
	if confidence != want.ConfidenceScore {
		add("confidence_score", formatFloat(want.ConfidenceScore), formatFloat(confidence))
	}
	if name != want.ModelUsed {
		add("model_used", want.ModelUsed, name)
	}
	if version != want.ModelVersion {
		add("model_version", want.ModelVersion, version)
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// verifyProvenance checks that the first sample successful records show up in
// the provenance history with the returned score. Records that never appear
// are counted but do not fail the run: the service may shed provenance under
// load.
func verifyProvenance(ctx context.Context, cfg *Config, client *HTTPClient, outcomes []Outcome, stats *Stats) ([]Mismatch, error) {
	if cfg.ProvenanceSample == 0 {
		return nil, nil
	}
	log := logger.Get().Named("verify")

	var mismatches []Mismatch
	for i := range outcomes {
		if stats.ProvenanceChecked >= cfg.ProvenanceSample {
			break
		}
		out := &outcomes[i]
		if out.Response == nil {
			continue
		}
		stats.ProvenanceChecked++

		rec, found, err := pollProvenance(ctx, client, out.Record.DataID)
		if err != nil {
			return mismatches, err
		}
		if !found {
			stats.ProvenanceMissing++
			log.Warn(ctx, "provenance not found", logger.String("data_id", out.Record.DataID))
			continue
		}
		mismatches = append(mismatches, compare(out.Record.DataID+" (provenance)",
			model.ValuationResult{
				ValuationScore:  out.Response.ValuationScore,
				ConfidenceScore: out.Response.ConfidenceScore,
				ModelUsed:       out.Response.ModelUsed,
				ModelVersion:    out.Response.ModelVersion,
			},
			rec.ValuationScore, rec.ConfidenceScore, rec.ModelUsed, rec.ModelVersion)...)
	}

	log.Info(ctx, "provenance sample checked",
		logger.Int("checked", stats.ProvenanceChecked),
		logger.Int("missing", stats.ProvenanceMissing))
	return mismatches, nil
}

func pollProvenance(ctx context.Context, client *HTTPClient, dataID string) (model.Provenance, bool, error) {
	pollCtx, cancel := context.WithTimeout(ctx, provenancePollTimeout)
	defer cancel()

	ticker := time.NewTicker(provenancePollInterval)
	defer ticker.Stop()

	for {
		hist, err := client.Provenance(pollCtx, dataID, 1)
		if err == nil && len(hist.Records) > 0 {
			return hist.Records[0], true, nil
		}
		select {
		case <-pollCtx.Done():
			// only the caller's cancellation is an error; the poll window just ran out
			if err := ctx.Err(); err != nil {
				return model.Provenance{}, false, err
			}
			return model.Provenance{}, false, nil
		case <-ticker.C:
		}
	}
}
