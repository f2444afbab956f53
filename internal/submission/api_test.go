package submission

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/config"
)

func newTestAPIClient(url string) *APIClient {
	return NewAPIClient(config.SubmissionConfig{
		APIURL:  url + "/",
		APIKey:  "s3cret",
		Timeout: 5 * time.Second,
	})
}

func TestAPIClient_Submit(t *testing.T) {
	path := writeDeclaration(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/declarations", r.URL.Path)
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body declarationRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			return
		}
		assert.Equal(t, "inv-1", body.InvoiceID)
		assert.Equal(t, "declaration.xml", body.FileName)
		assert.Equal(t, "xml", body.Format)
		document, err := base64.StdEncoding.DecodeString(body.Document)
		assert.NoError(t, err)
		assert.Equal(t, "<ASYCUDA/>", string(document))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"declarationId":"D-42","received":true}`))
	}))
	defer server.Close()

	receipt, err := newTestAPIClient(server.URL).Submit(context.Background(), Declaration{InvoiceID: "inv-1", Path: path})
	require.NoError(t, err)
	assert.Equal(t, "D-42", receipt.DeclarationID)
	assert.JSONEq(t, `{"declarationId":"D-42","received":true}`, string(receipt.Raw))
}

func TestAPIClient_SubmitErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "server error", status: http.StatusBadGateway, body: `upstream down`, wantErr: "status 502"},
		{name: "missing declaration id", status: http.StatusOK, body: `{"ok":true}`, wantErr: "missing declarationId"},
		{name: "invalid json", status: http.StatusOK, body: `<html>`, wantErr: "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := newTestAPIClient(server.URL).Submit(context.Background(), Declaration{InvoiceID: "inv-1", Path: writeDeclaration(t)})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAPIClient_ClientErrorsAreNotRetried(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{status: http.StatusUnprocessableEntity, retryable: false},
		{status: http.StatusUnauthorized, retryable: false},
		{status: http.StatusTooManyRequests, retryable: true},
		{status: http.StatusServiceUnavailable, retryable: true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newTestAPIClient(server.URL).Submit(context.Background(), Declaration{InvoiceID: "inv-1", Path: writeDeclaration(t)})
			require.Error(t, err)

			var retryable *common.RetryableError
			assert.Equal(t, !tt.retryable, errors.As(err, &retryable))
		})
	}
}

func TestAPIClient_SubmitUnreadableDocument(t *testing.T) {
	_, err := newTestAPIClient("http://127.0.0.1:1").Submit(context.Background(), Declaration{InvoiceID: "inv-1", Path: "/nonexistent/decl.xml"})
	require.Error(t, err)

	var retryable *common.RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.False(t, retryable.Retryable)
}

func TestAPIClient_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/declarations/D-42", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"processing","queue":3}`))
	}))
	defer server.Close()

	status, err := newTestAPIClient(server.URL).Status(context.Background(), "D-42")
	require.NoError(t, err)
	assert.Equal(t, "processing", status.Status)
	assert.Contains(t, string(status.Raw), `"queue":3`)
}

func TestAPIClient_StatusMissingField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := newTestAPIClient(server.URL).Status(context.Background(), "D-42")
	assert.ErrorContains(t, err, "missing status")
}

func TestAPIClient_NotConfigured(t *testing.T) {
	client := NewAPIClient(config.SubmissionConfig{APIURL: "https://customs.example"})

	_, err := client.Submit(context.Background(), Declaration{InvoiceID: "inv-1", Path: writeDeclaration(t)})
	require.ErrorIs(t, err, common.ErrMissingConfig)
	var retryable *common.RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.False(t, retryable.Retryable)

	_, err = client.Status(context.Background(), "D-1")
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}
