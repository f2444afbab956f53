package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClassificationMethod indicates how a line's HS code was assigned.
type ClassificationMethod string

// Classification method constants.
const (
	MethodAuto   ClassificationMethod = "auto"
	MethodManual ClassificationMethod = "manual"
	MethodFailed ClassificationMethod = "failed"
)

// IsValid reports whether m is a known classification method.
func (m ClassificationMethod) IsValid() bool {
	switch m {
	case MethodAuto, MethodManual, MethodFailed:
		return true
	}
	return false
}

// InvoiceLine is one purchased item on an invoice.
// A flagged line needs human review before the invoice is submitted.
type InvoiceLine struct {
	CreatedAt   time.Time
	UpdatedAt   time.Time
	UnitPrice   decimal.Decimal
	ID          string
	InvoiceID   string
	Description string
	HSCode      string // empty until classified
	Method      ClassificationMethod
	Quantity    int
	Confidence  float64
	Flagged     bool
}

// Total returns quantity times unit price.
func (l InvoiceLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// IsClassified reports whether the line carries an HS code.
func (l InvoiceLine) IsClassified() bool {
	return l.HSCode != ""
}
