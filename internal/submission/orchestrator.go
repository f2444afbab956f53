// Package submission delivers customs declarations and reconciles their status.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/metrics"
	"github.com/Veraticus/customs-flow/internal/model"
	"github.com/Veraticus/customs-flow/internal/service"
)

// APIChannel is the primary delivery channel.
type APIChannel interface {
	Submit(ctx context.Context, decl Declaration) (*APIReceipt, error)
}

// FileChannel is the fallback delivery channel.
type FileChannel interface {
	Upload(ctx context.Context, localPath, remoteName string) (*UploadReceipt, error)
}

// Options tunes an Orchestrator.
type Options struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Retry          service.RetryOptions
	AttemptTimeout time.Duration
}

// Result is the outcome of a submission.
type Result struct {
	// Submission is nil when a delivered declaration could not be recorded.
	Submission *model.Submission
	Method     model.DeliveryMethod
	Message    string
}

// Orchestrator tries the API channel with bounded retries, then the file
// channel once, and records every outcome as a new Submission row.
//
// It does not check the invoice's lifecycle state. Callers must refuse to
// resubmit invoices that are already Submitted or Approved.
type Orchestrator struct {
	storage        service.Storage
	api            APIChannel
	files          FileChannel
	logger         *slog.Logger
	metrics        *metrics.Metrics
	now            func() time.Time
	retry          service.RetryOptions
	attemptTimeout time.Duration
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(storage service.Storage, api APIChannel, files FileChannel, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = 3
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 30 * time.Second
	}
	return &Orchestrator{
		storage:        storage,
		api:            api,
		files:          files,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		now:            time.Now,
		retry:          opts.Retry,
		attemptTimeout: opts.AttemptTimeout,
	}
}

// Submit delivers the declaration at documentPath for invoiceID.
//
// When both channels fail, a failed Submission is recorded and returned along
// with an ErrSubmissionFailed error. When delivery succeeds but the invoice
// status cannot be updated, the Submission is still recorded and returned
// along with ErrLocalStateInconsistent; the declaration must not be resent.
func (o *Orchestrator) Submit(ctx context.Context, invoiceID, documentPath string) (*Result, error) {
	if strings.TrimSpace(invoiceID) == "" || strings.TrimSpace(documentPath) == "" {
		return nil, fmt.Errorf("%w: invoice id and document path are required", common.ErrInvalidInput)
	}
	if _, err := os.Stat(documentPath); err != nil {
		return nil, fmt.Errorf("%w: declaration document: %w", common.ErrInvalidInput, err)
	}
	if _, err := o.storage.GetInvoice(ctx, invoiceID); err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}

	decl := Declaration{InvoiceID: invoiceID, Path: documentPath}

	receipt, apiErr := o.submitAPI(ctx, decl)
	if apiErr == nil {
		return o.recordSuccess(ctx, invoiceID, model.DeliveryAPI, string(receipt.Raw),
			fmt.Sprintf("Declaration submitted via API (declaration %s)", receipt.DeclarationID))
	}

	o.logger.Warn("Primary channel exhausted, falling back to SFTP",
		"invoice_id", invoiceID,
		"error", apiErr)

	upload, sftpErr := o.submitSFTP(ctx, decl)
	if sftpErr == nil {
		payload, err := json.Marshal(upload)
		if err != nil {
			payload = []byte(`{}`)
		}
		return o.recordSuccess(ctx, invoiceID, model.DeliverySFTP, string(payload),
			fmt.Sprintf("Declaration uploaded via SFTP to %s", upload.RemotePath))
	}

	return o.recordFailure(ctx, invoiceID, apiErr, sftpErr)
}

func (o *Orchestrator) submitAPI(ctx context.Context, decl Declaration) (*APIReceipt, error) {
	if o.api == nil {
		return nil, fmt.Errorf("%w: no API channel", common.ErrMissingConfig)
	}

	var receipt *APIReceipt
	err := common.WithRetry(ctx, func(attempt int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
		defer cancel()

		r, err := o.api.Submit(attemptCtx, decl)
		o.metrics.SubmissionAttempt(string(model.DeliveryAPI), err)
		if err != nil {
			o.logger.Warn("API submission attempt failed",
				"invoice_id", decl.InvoiceID,
				"attempt", attempt,
				"max_attempts", o.retry.MaxAttempts,
				"error", err)
			return err
		}
		receipt = r
		return nil
	}, o.retry)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (o *Orchestrator) submitSFTP(ctx context.Context, decl Declaration) (*UploadReceipt, error) {
	if o.files == nil {
		return nil, fmt.Errorf("%w: no SFTP channel", common.ErrMissingConfig)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
	defer cancel()

	receipt, err := o.files.Upload(attemptCtx, decl.Path, RemoteName(decl.InvoiceID, decl.Path, o.now()))
	o.metrics.SubmissionAttempt(string(model.DeliverySFTP), err)
	if err != nil {
		o.logger.Warn("SFTP submission failed",
			"invoice_id", decl.InvoiceID,
			"error", err)
		return nil, err
	}
	return receipt, nil
}

func (o *Orchestrator) recordSuccess(ctx context.Context, invoiceID string, method model.DeliveryMethod, response, message string) (*Result, error) {
	sub := &model.Submission{
		InvoiceID: invoiceID,
		Method:    method,
		Status:    model.SubmissionSubmitted,
		Response:  response,
	}
	result := &Result{Submission: sub, Method: method, Message: message}

	txErr := o.persistDelivered(ctx, sub)
	if txErr == nil {
		o.logger.Info("Declaration delivered",
			"invoice_id", invoiceID,
			"channel", method,
			"submission_id", sub.ID)
		return result, nil
	}

	// The declaration was sent. Keep the submission row even though the
	// invoice status could not be updated, so a status check can repair it.
	fallback := &model.Submission{
		InvoiceID: invoiceID,
		Method:    method,
		Status:    model.SubmissionSubmitted,
		Response:  response,
	}
	recordErr := o.storage.CreateSubmission(ctx, fallback)
	result.Submission = fallback
	if recordErr != nil {
		result.Submission = nil
	}

	o.logger.Error("Declaration delivered but local state update failed",
		"invoice_id", invoiceID,
		"channel", method,
		"submission_recorded", recordErr == nil,
		"error", errors.Join(txErr, recordErr))

	return result, fmt.Errorf("%w: invoice %s via %s: %w",
		common.ErrLocalStateInconsistent, invoiceID, method, errors.Join(txErr, recordErr))
}

func (o *Orchestrator) persistDelivered(ctx context.Context, sub *model.Submission) error {
	tx, err := o.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.CreateSubmission(ctx, sub); err != nil {
		return err
	}
	if err := tx.UpdateInvoiceStatus(ctx, sub.InvoiceID, model.InvoiceStatusSubmitted); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit submission: %w", err)
	}
	return nil
}

func (o *Orchestrator) recordFailure(ctx context.Context, invoiceID string, apiErr, sftpErr error) (*Result, error) {
	payload, err := json.Marshal(map[string]string{
		"apiError":  apiErr.Error(),
		"sftpError": sftpErr.Error(),
	})
	if err != nil {
		payload = []byte(`{}`)
	}

	sub := &model.Submission{
		InvoiceID: invoiceID,
		Method:    model.DeliveryFailed,
		Status:    model.SubmissionFailed,
		Response:  string(payload),
	}
	failure := fmt.Errorf("%w: invoice %s: api: %w; sftp: %w", common.ErrSubmissionFailed, invoiceID, apiErr, sftpErr)

	if err := o.storage.CreateSubmission(ctx, sub); err != nil {
		common.LogError(o.logger, err, "Failed to record failed submission", common.Fields{"invoice_id": invoiceID})
		return nil, errors.Join(failure, err)
	}

	common.LogError(o.logger, failure, "Declaration could not be delivered", common.Fields{
		"invoice_id":    invoiceID,
		"submission_id": sub.ID,
	})

	return &Result{
		Submission: sub,
		Method:     model.DeliveryFailed,
		Message:    "Both delivery channels failed",
	}, failure
}
