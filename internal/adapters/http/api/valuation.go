package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/minkalla/valyze/internal/adapters/repository"
	"github.com/minkalla/valyze/internal/domain/types"
	"github.com/minkalla/valyze/internal/domain/valuation"
	"github.com/minkalla/valyze/pkg/logger"
	"github.com/minkalla/valyze/pkg/metrics"
)

const redactedDiagnostic = "internal processing error"

// ValuationHandler serves the valuation and provenance endpoints.
type ValuationHandler struct {
	deps              Dependencies
	logger            logger.Logger
	exposeErrorDetail bool
	maxQueryLimit     int
}

// NewValuationHandler creates a new valuation handler.
func NewValuationHandler(deps Dependencies, l logger.Logger, exposeErrorDetail bool, maxQueryLimit int) *ValuationHandler {
	if maxQueryLimit < 1 {
		maxQueryLimit = defaultMaxQueryLimit
	}
	return &ValuationHandler{
		deps:              deps,
		logger:            l,
		exposeErrorDetail: exposeErrorDetail,
		maxQueryLimit:     maxQueryLimit,
	}
}

// HandleValuate handles POST /valyze/data requests.
func (h *ValuationHandler) HandleValuate(w http.ResponseWriter, r *http.Request) {
	in, err := decodeValuationRequest(w, r)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			metrics.RecordValidationFailure()
			writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Detail: verr.Fields})
			return
		}
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", err)
		return
	}

	res, err := h.deps.Valuate(r.Context(), in)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, detailResponse{Detail: "Error during valuation: " + h.diagnostic(err)})
		return
	}
	writeJSON(w, http.StatusOK, types.NewValuationResponse(res))
}

func (h *ValuationHandler) diagnostic(err error) string {
	if !h.exposeErrorDetail {
		return redactedDiagnostic
	}
	var mee *valuation.ModelExecutionError
	if errors.As(err, &mee) {
		return mee.Diagnostic()
	}
	return err.Error()
}

// HandleModel handles GET /valyze/model requests.
func (h *ValuationHandler) HandleModel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.ModelInfo())
}

// HandleProvenance handles GET /valyze/provenance/{data_id} requests.
func (h *ValuationHandler) HandleProvenance(w http.ResponseWriter, r *http.Request) {
	const op = "api.provenance"

	dataID := r.PathValue("data_id")
	if strings.TrimSpace(dataID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request",
				WrapKind(op, ErrBadRequest, errors.New("limit must be a positive integer")))
			return
		}
		limit = n
	}
	if limit > h.maxQueryLimit {
		limit = h.maxQueryLimit
	}

	records, err := h.deps.History(r.Context(), dataID, limit)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidLimit) {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		h.logger.Error(r.Context(), "provenance query failed",
			logger.String("data_id", dataID),
			logger.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", NewKind(op, ErrInternal))
		return
	}
	writeJSON(w, http.StatusOK, types.ProvenanceHistory{DataID: dataID, Records: records})
}
