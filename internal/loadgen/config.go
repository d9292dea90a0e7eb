// Package loadgen drives a running Valyze service with generated records and
// checks every returned valuation against a locally built model.
package loadgen

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minkalla/valyze/internal/domain/model"
	"github.com/minkalla/valyze/internal/domain/types"
)

// Defaults used by the CLI.
const (
	DefaultBaseURL          = "http://localhost:8000"
	DefaultRecords          = 1000
	DefaultTimeout          = 30 * time.Second
	DefaultSensitiveRatio   = 0.3
	DefaultProvenanceSample = 10
)

// Sentinel errors returned by Run.
var (
	ErrInvalidConfig = errors.New("invalid load generator config")
	ErrUnhealthy     = errors.New("service unhealthy")
	ErrVerification  = errors.New("verification failed")
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL          string        // Base URL of the service
	Records          int           // Number of records to generate
	Workers          int           // Concurrent submissions
	Timeout          time.Duration // HTTP request timeout
	SensitiveRatio   float64       // Share of records flagged sensitive, 0..1
	ProvenanceSample int           // Records whose provenance is checked after submission
	OutputFile       string        // Optional JSON dump of records and responses
	Verbose          bool          // Log every mismatch and failure
}

// Validate checks the config and fills the trailing slash out of BaseURL.
func (c *Config) Validate() error {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: url must not be empty", ErrInvalidConfig)
	case c.Records < 1:
		return fmt.Errorf("%w: records must be at least 1", ErrInvalidConfig)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers must be at least 1", ErrInvalidConfig)
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	case c.SensitiveRatio < 0 || c.SensitiveRatio > 1:
		return fmt.Errorf("%w: sensitive-ratio must be within [0,1]", ErrInvalidConfig)
	case c.ProvenanceSample < 0:
		return fmt.Errorf("%w: provenance-sample must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Outcome is the result of submitting one record.
type Outcome struct {
	Record     model.InputRecord        `json:"record"`
	StatusCode int                      `json:"status_code"`
	Response   *types.ValuationResponse `json:"response,omitempty"`
	Error      string                   `json:"error,omitempty"`
}

// Mismatch describes a response that disagrees with the local model.
type Mismatch struct {
	DataID string `json:"data_id"`
	Field  string `json:"field"`
	Want   string `json:"want"`
	Got    string `json:"got"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: %s want %s got %s", m.DataID, m.Field, m.Want, m.Got)
}

// Stats holds run statistics.
type Stats struct {
	RecordsGenerated  int
	RecordsSubmitted  int
	RecordsSuccessful int
	RecordsRejected   int // 4xx
	RecordsFailed     int // 5xx or transport errors
	Mismatches        int
	ProvenanceChecked int
	ProvenanceMissing int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
