// Package types contains the response shapes shared by the HTTP layer and its clients.
package types

import (
	"time"

	"github.com/minkalla/valyze/internal/domain/model"
)

// ValuationSuccessMessage is returned with every successful valuation.
const ValuationSuccessMessage = "Data valuation completed successfully."

// ValuationRequest is the body of POST /valyze/data.
type ValuationRequest struct {
	InputData model.InputRecord `json:"input_data"`
}

// ValuationResponse is the body of a successful POST /valyze/data.
type ValuationResponse struct {
	ValuationScore     float64   `json:"valuation_score"`
	ConfidenceScore    float64   `json:"confidence_score"`
	ValuationTimestamp time.Time `json:"valuation_timestamp"`
	ModelUsed          string    `json:"model_used"`
	ModelVersion       string    `json:"model_version"`
	Message            string    `json:"message"`
}

// NewValuationResponse maps a result 1:1 into the response body.
func NewValuationResponse(res model.ValuationResult) ValuationResponse {
	return ValuationResponse{
		ValuationScore:     res.ValuationScore,
		ConfidenceScore:    res.ConfidenceScore,
		ValuationTimestamp: res.ValuationTimestamp,
		ModelUsed:          res.ModelUsed,
		ModelVersion:       res.ModelVersion,
		Message:            ValuationSuccessMessage,
	}
}

// ProvenanceHistory is the body of GET /valyze/provenance/{data_id}.
type ProvenanceHistory struct {
	DataID  string             `json:"data_id"`
	Records []model.Provenance `json:"records"`
}
