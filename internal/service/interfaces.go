// Package service defines the interfaces shared between the pipeline services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/customs-flow/internal/model"
)

// InvoiceStore persists invoices.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, invoice *model.Invoice) error
	GetInvoice(ctx context.Context, id string) (*model.Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id string, status model.InvoiceStatus) error
}

// LineStore persists invoice lines and answers review queue queries.
type LineStore interface {
	CreateInvoiceLine(ctx context.Context, line *model.InvoiceLine) error
	GetInvoiceLine(ctx context.Context, id string) (*model.InvoiceLine, error)
	GetInvoiceLines(ctx context.Context, invoiceID string) ([]model.InvoiceLine, error)
	UpdateLineClassification(ctx context.Context, id, hsCode string, method model.ClassificationMethod, confidence float64, flagged bool) error
	SetLineFlagged(ctx context.Context, id string, flagged bool) error
	GetFlaggedLines(ctx context.Context, filter model.FlaggedFilter) ([]model.FlaggedLine, int, error)
	GetFlaggedLine(ctx context.Context, id string) (*model.FlaggedLine, error)
	GetReviewStats(ctx context.Context, since time.Time) (*model.ReviewStats, error)
}

// HistoryStore persists the classification audit trail.
type HistoryStore interface {
	AddClassificationHistory(ctx context.Context, entry *model.ClassificationHistory) error
	GetClassificationHistory(ctx context.Context, filter model.HistoryFilter) ([]model.ClassificationHistory, int, error)
}

// SubmissionStore persists submission attempts.
type SubmissionStore interface {
	CreateSubmission(ctx context.Context, submission *model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	GetSubmissionsByInvoice(ctx context.Context, invoiceID string) ([]model.Submission, error)
	UpdateSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus, checkedAt time.Time) error
}

// NotificationStore persists user notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, notification *model.Notification) error
	GetNotifications(ctx context.Context, userID string) ([]model.Notification, error)
}

// Storage defines the contract for our persistence layer.
type Storage interface {
	InvoiceStore
	LineStore
	HistoryStore
	SubmissionStore
	NotificationStore

	// Database management
	Migrate(ctx context.Context) error
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit() error
	Rollback() error
	// Include all Storage methods for use within transaction
	Storage
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
