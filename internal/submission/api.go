package submission

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/config"
)

const maxResponseBytes = 1 << 20

// Declaration is one rendered declaration document ready for delivery.
type Declaration struct {
	InvoiceID string
	Path      string
}

// APIReceipt is the customs API's acknowledgement of a declaration.
type APIReceipt struct {
	DeclarationID string
	Raw           json.RawMessage
}

// RemoteStatus is the customs API's current view of a declaration.
type RemoteStatus struct {
	Status string
	Raw    json.RawMessage
}

// APIClient talks to the customs declaration service.
type APIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     config.Secret
}

// NewAPIClient creates an APIClient from configuration.
func NewAPIClient(cfg config.SubmissionConfig) *APIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type declarationRequest struct {
	InvoiceID string `json:"invoiceId"`
	FileName  string `json:"fileName"`
	Format    string `json:"format"`
	Document  string `json:"document"`
}

// Submit posts the declaration document.
func (c *APIClient) Submit(ctx context.Context, decl Declaration) (*APIReceipt, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}

	document, err := os.ReadFile(decl.Path)
	if err != nil {
		return nil, &common.RetryableError{Err: fmt.Errorf("failed to read declaration: %w", err), Retryable: false}
	}

	body, err := json.Marshal(declarationRequest{
		InvoiceID: decl.InvoiceID,
		FileName:  filepath.Base(decl.Path),
		Format:    documentFormat(decl.Path),
		Document:  base64.StdEncoding.EncodeToString(document),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal declaration: %w", err)
	}

	raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/declarations", body)
	if err != nil {
		return nil, err
	}

	var ack struct {
		DeclarationID string `json:"declarationId"`
	}
	if err := json.Unmarshal(raw, &ack); err != nil {
		return nil, fmt.Errorf("failed to decode declaration response: %w", err)
	}
	if ack.DeclarationID == "" {
		return nil, fmt.Errorf("customs API response missing declarationId")
	}

	return &APIReceipt{DeclarationID: ack.DeclarationID, Raw: raw}, nil
}

// Status fetches the current disposition of a declaration.
func (c *APIClient) Status(ctx context.Context, declarationID string) (*RemoteStatus, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}

	raw, err := c.do(ctx, http.MethodGet, c.baseURL+"/declarations/"+url.PathEscape(declarationID), nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	if payload.Status == "" {
		return nil, fmt.Errorf("customs API status response missing status")
	}

	return &RemoteStatus{Status: payload.Status, Raw: raw}, nil
}

func (c *APIClient) configured() error {
	if c.baseURL == "" || !c.apiKey.IsSet() {
		return &common.RetryableError{
			Err:       fmt.Errorf("%w: submission api url and key are required", common.ErrMissingConfig),
			Retryable: false,
		}
	}
	return nil
}

func (c *APIClient) do(ctx context.Context, method, endpoint string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Reveal())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("customs API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("customs API error (status %d): %s", resp.StatusCode, string(respBody))
		if permanentStatus(resp.StatusCode) {
			return nil, &common.RetryableError{Err: err, Retryable: false}
		}
		return nil, err
	}
	if !json.Valid(respBody) {
		return nil, fmt.Errorf("customs API returned invalid JSON")
	}

	return json.RawMessage(respBody), nil
}

// permanentStatus reports whether resending the same request cannot succeed.
func permanentStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return code >= 400 && code < 500
}

func documentFormat(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "bin"
	}
	return ext
}
