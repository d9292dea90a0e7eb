// Package model contains domain models passed between layers.
package model

import "time"

// InputRecord is a data description submitted for valuation.
// Fields mirror the input_data object of POST /valyze/data.
type InputRecord struct {
	DataID      string         `json:"data_id"`            // identifying string, required
	Category    string         `json:"category"`           // category label, required
	ValuePoints map[string]any `json:"value_points"`       // arbitrary values, may be empty
	IsSensitive bool           `json:"is_sensitive"`       // sensitivity flag, default false
	Source      *string        `json:"source"`             // optional origin system
	Priority    *string        `json:"priority,omitempty"` // optional priority label
}

// PriorityLabel returns the record's priority label and whether one was supplied.
func (r InputRecord) PriorityLabel() (string, bool) {
	if r.Priority == nil {
		return "", false
	}
	return *r.Priority, true
}

// SourceName returns the source or an empty string when absent.
func (r InputRecord) SourceName() string {
	if r.Source == nil {
		return ""
	}
	return *r.Source
}

// ValuationResult is the output of one model invocation.
type ValuationResult struct {
	ValuationScore     float64   `json:"valuation_score"`
	ConfidenceScore    float64   `json:"confidence_score"`
	ValuationTimestamp time.Time `json:"valuation_timestamp"` // UTC, taken when the result is produced
	ModelUsed          string    `json:"model_used"`
	ModelVersion       string    `json:"model_version"`
}

// Provenance is the audit entry emitted for each successful valuation.
type Provenance struct {
	ID                 string    `json:"id"`
	DataID             string    `json:"data_id"`
	Category           string    `json:"category"`
	Source             string    `json:"source,omitempty"`
	ModelUsed          string    `json:"model_used"`
	ModelVersion       string    `json:"model_version"`
	ValuationScore     float64   `json:"valuation_score"`
	ConfidenceScore    float64   `json:"confidence_score"`
	ValuationTimestamp time.Time `json:"valuation_timestamp"`
	RecordedAt         time.Time `json:"recorded_at"`
}

// ModelInfo describes the configured valuation model.
type ModelInfo struct {
	Kind             string             `json:"kind"`
	Name             string             `json:"name"`
	Version          string             `json:"version"`
	BaseValue        float64            `json:"base_value"`
	MultiplierFactor map[string]float64 `json:"multiplier_factor"`
	ConfidenceScore  float64            `json:"confidence_score"`
}
