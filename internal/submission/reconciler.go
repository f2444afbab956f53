package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/customs-flow/internal/metrics"
	"github.com/Veraticus/customs-flow/internal/model"
	"github.com/Veraticus/customs-flow/internal/service"
)

// StatusChecker queries the customs API for a declaration's disposition.
type StatusChecker interface {
	Status(ctx context.Context, declarationID string) (*RemoteStatus, error)
}

// StatusReport is what a status check found.
type StatusReport struct {
	SubmissionID string
	Status       model.SubmissionStatus
	Details      string
	// Refreshed is true when the remote system answered.
	Refreshed bool
	// Repaired is true when a lagging invoice status was brought forward.
	Repaired bool
}

// Reconciler refreshes submission status from the customs API. It never
// fails because of the remote side; the last known status is returned instead.
type Reconciler struct {
	storage service.Storage
	api     StatusChecker
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	timeout time.Duration
}

// NewReconciler creates a Reconciler.
func NewReconciler(storage service.Storage, api StatusChecker, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Reconciler{
		storage: storage,
		api:     api,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		timeout: timeout,
	}
}

// CheckStatus returns the current status of a submission, refreshing it from
// the customs API when possible. Only an unknown submission is an error.
func (r *Reconciler) CheckStatus(ctx context.Context, submissionID string) (*StatusReport, error) {
	sub, err := r.storage.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}

	report := &StatusReport{
		SubmissionID: sub.ID,
		Status:       sub.Status,
		Details:      sub.Response,
	}

	// Only the newest attempt speaks for the invoice; an older ruling must not
	// overwrite a resubmission in flight.
	latest := r.isLatest(ctx, sub)

	if declarationID := declarationID(sub); declarationID != "" && !sub.Status.IsTerminal() && r.api != nil {
		r.refresh(ctx, sub, declarationID, latest, report)
	}

	if latest {
		report.Repaired = r.repairInvoice(ctx, sub.InvoiceID, report.Status)
	}
	return report, nil
}

func (r *Reconciler) isLatest(ctx context.Context, sub *model.Submission) bool {
	subs, err := r.storage.GetSubmissionsByInvoice(ctx, sub.InvoiceID)
	if err != nil {
		r.logger.Warn("Could not load submissions for invoice", "invoice_id", sub.InvoiceID, "error", err)
		return false
	}
	return len(subs) > 0 && subs[0].ID == sub.ID
}

func (r *Reconciler) refresh(ctx context.Context, sub *model.Submission, declarationID string, latest bool, report *StatusReport) {
	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	remote, err := r.api.Status(queryCtx, declarationID)
	r.metrics.StatusCheck(err)
	if err != nil {
		r.logger.Warn("Status check failed, returning last known status",
			"submission_id", sub.ID,
			"declaration_id", declarationID,
			"status", sub.Status,
			"error", err)
		return
	}

	status, ok := MapRemoteStatus(remote.Status)
	if !ok {
		r.logger.Warn("Unknown remote declaration status",
			"submission_id", sub.ID,
			"remote_status", remote.Status)
		return
	}

	if err := r.persist(ctx, sub, status, latest); err != nil {
		r.logger.Error("Failed to persist refreshed status",
			"submission_id", sub.ID,
			"status", status,
			"error", err)
		return
	}

	report.Status = status
	report.Details = string(remote.Raw)
	report.Refreshed = true
}

func (r *Reconciler) persist(ctx context.Context, sub *model.Submission, status model.SubmissionStatus, propagate bool) error {
	tx, err := r.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.UpdateSubmissionStatus(ctx, sub.ID, status, r.now().UTC()); err != nil {
		return err
	}
	if propagate && status.IsTerminal() {
		invoiceStatus, _ := status.InvoiceStatus()
		if err := tx.UpdateInvoiceStatus(ctx, sub.InvoiceID, invoiceStatus); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// repairInvoice moves the invoice forward when its status lags the
// submission's. It never moves an invoice backwards.
func (r *Reconciler) repairInvoice(ctx context.Context, invoiceID string, status model.SubmissionStatus) bool {
	want, ok := status.InvoiceStatus()
	if !ok {
		return false
	}

	invoice, err := r.storage.GetInvoice(ctx, invoiceID)
	if err != nil {
		r.logger.Warn("Could not load invoice for reconciliation", "invoice_id", invoiceID, "error", err)
		return false
	}
	if invoice.Status.Rank() >= want.Rank() {
		return false
	}

	if err := r.storage.UpdateInvoiceStatus(ctx, invoiceID, want); err != nil {
		r.logger.Error("Failed to repair invoice status",
			"invoice_id", invoiceID,
			"from", invoice.Status,
			"to", want,
			"error", err)
		return false
	}

	r.logger.Info("Repaired lagging invoice status",
		"invoice_id", invoiceID,
		"from", invoice.Status,
		"to", want)
	return true
}

// MapRemoteStatus translates the customs API's status vocabulary.
func MapRemoteStatus(remote string) (model.SubmissionStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(remote)) {
	case "approved", "accepted":
		return model.SubmissionAccepted, true
	case "rejected":
		return model.SubmissionRejected, true
	case "pending", "processing", "received":
		return model.SubmissionPending, true
	case "submitted":
		return model.SubmissionSubmitted, true
	default:
		return "", false
	}
}

func declarationID(sub *model.Submission) string {
	if sub.Method != model.DeliveryAPI || sub.Response == "" {
		return ""
	}
	var payload struct {
		DeclarationID string `json:"declarationId"`
	}
	if err := json.Unmarshal([]byte(sub.Response), &payload); err != nil {
		return ""
	}
	return payload.DeclarationID
}
