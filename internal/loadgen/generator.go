package loadgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"

	"github.com/google/uuid"

	"github.com/minkalla/valyze/internal/domain/model"
	"github.com/minkalla/valyze/pkg/logger"
)

const randomFloatDivisor = 1000000

// unknownPriority exercises the multiplier fallback.
const unknownPriority = "unlisted_priority"

var categories = []string{"finance", "health", "retail", "telemetry", "research", "marketing"}

var sources = []string{"crm", "erp", "sensor-grid", "survey", "partner-feed"}

// getRandomFloat returns a random float64 in [0,1) using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

func pick(values []string) string {
	n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(values))))
	return values[n.Int64()]
}

// priorityChoices lists the labels records are drawn from: every configured
// label, one unknown label, and "" for an absent priority.
func priorityChoices(multipliers map[string]float64) []string {
	labels := make([]string, 0, len(multipliers)+2)
	for label := range multipliers {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return append(labels, unknownPriority, "")
}

// generateRecords creates n records with unique data ids.
func generateRecords(ctx context.Context, cfg *Config, info model.ModelInfo, stats *Stats) ([]model.InputRecord, error) {
	logger.Get().Info(ctx, "generating records", logger.Int("records", cfg.Records))

	priorities := priorityChoices(info.MultiplierFactor)
	records := make([]model.InputRecord, cfg.Records)
	for i := range records {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during record generation: %w", err)
		}
		records[i] = generateSingleRecord(priorities, cfg.SensitiveRatio)
	}

	stats.RecordsGenerated = len(records)
	return records, nil
}

func generateSingleRecord(priorities []string, sensitiveRatio float64) model.InputRecord {
	rec := model.InputRecord{
		DataID:   uuid.NewString(),
		Category: pick(categories),
		ValuePoints: map[string]any{
			"volume":    int(getRandomFloat() * 100000),
			"freshness": getRandomFloat(),
			"tags":      []string{pick(categories), pick(categories)},
		},
		IsSensitive: getRandomFloat() < sensitiveRatio,
	}
	if p := pick(priorities); p != "" {
		rec.Priority = &p
	}
	if getRandomFloat() < 0.5 {
		s := pick(sources)
		rec.Source = &s
	}
	return rec
}
