package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/config"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// Prediction is the remote classifier's answer for one description.
type Prediction struct {
	HSCode     string  `json:"hsCode"`
	Confidence float64 `json:"confidence"`
}

// Remote is the external HS code model.
type Remote interface {
	Predict(ctx context.Context, description string) (Prediction, error)
}

// HTTPClient calls the classification service over HTTP with bearer auth.
type HTTPClient struct {
	httpClient *http.Client
	schema     *jsonschema.Schema
	limiter    *rateLimiter
	url        string
	apiKey     config.Secret
}

// NewHTTPClient builds a client from configuration. A client without a URL
// or key is still returned; every call on it fails with ErrMissingConfig.
func NewHTTPClient(cfg config.ClassificationConfig) (*HTTPClient, error) {
	schema, err := compilePredictionSchema()
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPClient{
		url:     cfg.APIURL,
		apiKey:  cfg.APIKey,
		schema:  schema,
		limiter: newRateLimiter(cfg.RateLimit),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Predict implements Remote.
func (c *HTTPClient) Predict(ctx context.Context, description string) (Prediction, error) {
	if c.url == "" || !c.apiKey.IsSet() {
		return Prediction{}, fmt.Errorf("%w: classification api url and key are required", common.ErrMissingConfig)
	}

	if err := c.limiter.wait(ctx); err != nil {
		return Prediction{}, err
	}

	body, err := json.Marshal(map[string]string{"description": description})
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Reveal())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("classification request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Prediction{}, fmt.Errorf("classification API: %w", common.ErrRateLimit)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Prediction{}, fmt.Errorf("classification API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	return decodePrediction(c.schema, respBody)
}
