package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/minkalla/valyze/internal/domain/model"
	"github.com/minkalla/valyze/internal/domain/types"
)

// HTTPClient talks to a Valyze service.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a client with a per-request timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read %s response: %w", path, err)
	}
	return resp.StatusCode, data, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, v any) error {
	status, data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", path, status)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Health checks GET /health.
func (c *HTTPClient) Health(ctx context.Context) error {
	var body map[string]string
	if err := c.getJSON(ctx, "/health", &body); err != nil {
		return err
	}
	if body["status"] != "ok" {
		return fmt.Errorf("health status %q", body["status"])
	}
	return nil
}

// Model fetches GET /valyze/model.
func (c *HTTPClient) Model(ctx context.Context) (model.ModelInfo, error) {
	var info model.ModelInfo
	err := c.getJSON(ctx, "/valyze/model", &info)
	return info, err
}

// Valuate posts one record. A non-200 status is not an error; it is
// reported in the returned Outcome.
func (c *HTTPClient) Valuate(ctx context.Context, rec model.InputRecord) Outcome {
	out := Outcome{Record: rec}
	status, data, err := c.do(ctx, http.MethodPost, "/valyze/data", types.ValuationRequest{InputData: rec})
	out.StatusCode = status
	if err != nil {
		out.Error = err.Error()
		return out
	}
	if status != http.StatusOK {
		out.Error = string(bytes.TrimSpace(data))
		return out
	}
	var resp types.ValuationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		out.Error = "decode response: " + err.Error()
		return out
	}
	out.Response = &resp
	return out
}

// Provenance fetches GET /valyze/provenance/{data_id}.
func (c *HTTPClient) Provenance(ctx context.Context, dataID string, limit int) (types.ProvenanceHistory, error) {
	var hist types.ProvenanceHistory
	path := "/valyze/provenance/" + url.PathEscape(dataID) + "?limit=" + strconv.Itoa(limit)
	err := c.getJSON(ctx, path, &hist)
	return hist, err
}
