// Package model defines the core domain models used throughout the application.
package model

import "time"

// InvoiceStatus tracks an invoice through customs submission.
type InvoiceStatus string

// Invoice status constants.
const (
	InvoiceStatusDraft     InvoiceStatus = "Draft"
	InvoiceStatusSubmitted InvoiceStatus = "Submitted"
	InvoiceStatusApproved  InvoiceStatus = "Approved"
	InvoiceStatusRejected  InvoiceStatus = "Rejected"
)

// IsValid reports whether s is a known invoice status.
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSubmitted, InvoiceStatusApproved, InvoiceStatusRejected:
		return true
	}
	return false
}

// Rank orders statuses by how far through the customs lifecycle they are.
// Approved and Rejected share the highest rank.
func (s InvoiceStatus) Rank() int {
	switch s {
	case InvoiceStatusSubmitted:
		return 1
	case InvoiceStatusApproved, InvoiceStatusRejected:
		return 2
	default:
		return 0
	}
}

// Invoice is the parent of invoice lines and the unit of customs submission.
type Invoice struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	ID        string
	Number    string
	OwnerID   string
	Status    InvoiceStatus
}

// CanSubmit reports whether the invoice may be (re)submitted to customs.
// Invoices that are already in flight or approved must not be sent again.
func (i Invoice) CanSubmit() bool {
	return i.Status != InvoiceStatusSubmitted && i.Status != InvoiceStatusApproved
}
