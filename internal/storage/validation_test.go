package storage

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/model"
)

func TestValidateContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	assert.ErrorIs(t, validateContext(nil), ErrNilContext)
	assert.NoError(t, validateContext(context.Background()))
}

func TestValidateString(t *testing.T) {
	assert.NoError(t, validateString("abc", "param"))

	err := validateString("   ", "param")
	assert.ErrorIs(t, err, ErrEmptyString)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Contains(t, err.Error(), "param")
}

func TestValidateLine(t *testing.T) {
	valid := func() *model.InvoiceLine {
		return &model.InvoiceLine{
			InvoiceID:   "inv",
			Description: "Widget",
			Quantity:    1,
			UnitPrice:   decimal.NewFromInt(5),
		}
	}

	tests := []struct {
		mutate  func(*model.InvoiceLine)
		name    string
		wantErr bool
	}{
		{name: "valid", mutate: func(*model.InvoiceLine) {}},
		{name: "missing invoice", mutate: func(l *model.InvoiceLine) { l.InvoiceID = "" }, wantErr: true},
		{name: "blank description", mutate: func(l *model.InvoiceLine) { l.Description = "  " }, wantErr: true},
		{name: "zero quantity", mutate: func(l *model.InvoiceLine) { l.Quantity = 0 }, wantErr: true},
		{name: "negative price", mutate: func(l *model.InvoiceLine) { l.UnitPrice = decimal.NewFromInt(-1) }, wantErr: true},
		{name: "unknown method", mutate: func(l *model.InvoiceLine) { l.Method = "guess" }, wantErr: true},
		{name: "manual method", mutate: func(l *model.InvoiceLine) { l.Method = model.MethodManual }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := valid()
			tt.mutate(line)
			err := validateLine(line)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	assert.ErrorIs(t, validateLine(nil), ErrNilParameter)
}

func TestValidateLineClassification(t *testing.T) {
	assert.NoError(t, validateLineClassification("id", "610910", model.MethodAuto, 0.5))
	assert.Error(t, validateLineClassification("id", "", model.MethodAuto, 0.5))
	assert.Error(t, validateLineClassification("id", "610910", "", 0.5))
	assert.Error(t, validateLineClassification("id", "610910", model.MethodAuto, 1.5))
}

func TestValidateNotification(t *testing.T) {
	assert.NoError(t, validateNotification(&model.Notification{UserID: "u", Type: "t", Message: "m"}))
	assert.ErrorIs(t, validateNotification(&model.Notification{Type: "t", Message: "m"}), ErrInvalidNotification)
	assert.ErrorIs(t, validateNotification(nil), ErrNilParameter)
}
