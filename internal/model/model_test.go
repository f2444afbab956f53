package model

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPageNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Page
		want Page
	}{
		{name: "defaults", in: Page{}, want: Page{Limit: DefaultPageLimit}},
		{name: "clamps limit", in: Page{Limit: 1000, Offset: 5}, want: Page{Limit: MaxPageLimit, Offset: 5}},
		{name: "negative offset", in: Page{Limit: 10, Offset: -3}, want: Page{Limit: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Normalize())
		})
	}
}

func TestFailedClassification(t *testing.T) {
	result := FailedClassification("Widget", errors.New("timeout"))

	assert.Equal(t, "Widget", result.Description)
	assert.Empty(t, result.HSCode)
	assert.Equal(t, MethodFailed, result.Method)
	assert.Zero(t, result.Confidence)
	assert.True(t, result.Flagged)
	assert.Equal(t, "timeout", result.Error)
	assert.True(t, result.IsFailed())
}

func TestBulkResultPersistable(t *testing.T) {
	assert.True(t, BulkResult{ID: "l1", ClassificationResult: ClassificationResult{HSCode: "610910"}}.Persistable())
	assert.False(t, BulkResult{ClassificationResult: ClassificationResult{HSCode: "610910"}}.Persistable())
	assert.False(t, BulkResult{ID: "l1", ClassificationResult: FailedClassification("x", nil)}.Persistable())
}

func TestSubmissionStatusInvoiceStatus(t *testing.T) {
	tests := []struct {
		status SubmissionStatus
		want   InvoiceStatus
		moves  bool
	}{
		{SubmissionSubmitted, InvoiceStatusSubmitted, true},
		{SubmissionPending, InvoiceStatusSubmitted, true},
		{SubmissionAccepted, InvoiceStatusApproved, true},
		{SubmissionRejected, InvoiceStatusRejected, true},
		{SubmissionFailed, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			got, moves := tt.status.InvoiceStatus()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.moves, moves)
		})
	}
}

func TestInvoiceCanSubmit(t *testing.T) {
	assert.True(t, Invoice{Status: InvoiceStatusDraft}.CanSubmit())
	assert.True(t, Invoice{Status: InvoiceStatusRejected}.CanSubmit())
	assert.False(t, Invoice{Status: InvoiceStatusSubmitted}.CanSubmit())
	assert.False(t, Invoice{Status: InvoiceStatusApproved}.CanSubmit())
}

func TestInvoiceLineTotal(t *testing.T) {
	line := InvoiceLine{Quantity: 3, UnitPrice: decimal.RequireFromString("12.50")}
	assert.True(t, decimal.RequireFromString("37.50").Equal(line.Total()))
}
