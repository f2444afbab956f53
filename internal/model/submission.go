package model

import "time"

// DeliveryMethod is the channel a declaration was delivered through.
type DeliveryMethod string

// Delivery method constants.
const (
	DeliveryAPI    DeliveryMethod = "api"
	DeliverySFTP   DeliveryMethod = "sftp"
	DeliveryFailed DeliveryMethod = "failed"
)

// SubmissionStatus is the disposition of a submission.
type SubmissionStatus string

// Submission status constants.
const (
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionAccepted  SubmissionStatus = "accepted"
	SubmissionRejected  SubmissionStatus = "rejected"
	SubmissionFailed    SubmissionStatus = "failed"
)

// IsValid reports whether s is a known submission status.
func (s SubmissionStatus) IsValid() bool {
	switch s {
	case SubmissionPending, SubmissionSubmitted, SubmissionAccepted, SubmissionRejected, SubmissionFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the customs authority has ruled on the submission.
func (s SubmissionStatus) IsTerminal() bool {
	return s == SubmissionAccepted || s == SubmissionRejected
}

// InvoiceStatus maps a submission disposition onto the invoice lifecycle.
// The boolean is false when the submission does not move the invoice.
func (s SubmissionStatus) InvoiceStatus() (InvoiceStatus, bool) {
	switch s {
	case SubmissionPending, SubmissionSubmitted:
		return InvoiceStatusSubmitted, true
	case SubmissionAccepted:
		return InvoiceStatusApproved, true
	case SubmissionRejected:
		return InvoiceStatusRejected, true
	default:
		return "", false
	}
}

// Submission is one delivery attempt of an invoice's declaration.
// Every attempt gets its own row.
type Submission struct {
	SubmittedAt time.Time
	CheckedAt   *time.Time
	ID          string
	InvoiceID   string
	Method      DeliveryMethod
	Status      SubmissionStatus
	Response    string
}
