package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/model"
)

// Validation errors.
var (
	ErrNilContext          = errors.New("context cannot be nil")
	ErrEmptyString         = errors.New("string parameter cannot be empty")
	ErrNilParameter        = errors.New("parameter cannot be nil")
	ErrInvalidInvoice      = errors.New("invalid invoice")
	ErrInvalidLine         = errors.New("invalid invoice line")
	ErrInvalidHistory      = errors.New("invalid classification history")
	ErrInvalidSubmission   = errors.New("invalid submission")
	ErrInvalidNotification = errors.New("invalid notification")
	ErrInvalidStatus       = errors.New("invalid status")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %w: %s", common.ErrInvalidInput, ErrEmptyString, paramName)
	}
	return nil
}

func validateInvoice(invoice *model.Invoice) error {
	if invoice == nil {
		return fmt.Errorf("%w: invoice", ErrNilParameter)
	}
	if strings.TrimSpace(invoice.Number) == "" {
		return fmt.Errorf("%w: missing number", ErrInvalidInvoice)
	}
	if strings.TrimSpace(invoice.OwnerID) == "" {
		return fmt.Errorf("%w: missing owner", ErrInvalidInvoice)
	}
	if invoice.Status != "" && !invoice.Status.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, invoice.Status)
	}
	return nil
}

func validateInvoiceStatus(id string, status model.InvoiceStatus) error {
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if !status.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	return nil
}

func validateLine(line *model.InvoiceLine) error {
	if line == nil {
		return fmt.Errorf("%w: invoice line", ErrNilParameter)
	}
	if strings.TrimSpace(line.InvoiceID) == "" {
		return fmt.Errorf("%w: missing invoice id", ErrInvalidLine)
	}
	if strings.TrimSpace(line.Description) == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidLine)
	}
	if line.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidLine)
	}
	if line.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price cannot be negative", ErrInvalidLine)
	}
	if line.Method != "" && !line.Method.IsValid() {
		return fmt.Errorf("%w: classification method %q", ErrInvalidLine, line.Method)
	}
	return nil
}

func validateLineClassification(id, hsCode string, method model.ClassificationMethod, confidence float64) error {
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if strings.TrimSpace(hsCode) == "" {
		return fmt.Errorf("%w: missing hs code", ErrInvalidLine)
	}
	if !method.IsValid() {
		return fmt.Errorf("%w: classification method %q", ErrInvalidLine, method)
	}
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidLine)
	}
	return nil
}

func validateHistory(entry *model.ClassificationHistory) error {
	if entry == nil {
		return fmt.Errorf("%w: classification history", ErrNilParameter)
	}
	if strings.TrimSpace(entry.LineID) == "" {
		return fmt.Errorf("%w: missing line id", ErrInvalidHistory)
	}
	if strings.TrimSpace(entry.NewCode) == "" {
		return fmt.Errorf("%w: missing new code", ErrInvalidHistory)
	}
	return nil
}

func validateSubmission(submission *model.Submission) error {
	if submission == nil {
		return fmt.Errorf("%w: submission", ErrNilParameter)
	}
	if strings.TrimSpace(submission.InvoiceID) == "" {
		return fmt.Errorf("%w: missing invoice id", ErrInvalidSubmission)
	}
	switch submission.Method {
	case model.DeliveryAPI, model.DeliverySFTP, model.DeliveryFailed:
	default:
		return fmt.Errorf("%w: delivery method %q", ErrInvalidSubmission, submission.Method)
	}
	if !submission.Status.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, submission.Status)
	}
	return nil
}

func validateSubmissionStatus(id string, status model.SubmissionStatus) error {
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if !status.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	return nil
}

func validateNotification(notification *model.Notification) error {
	if notification == nil {
		return fmt.Errorf("%w: notification", ErrNilParameter)
	}
	if strings.TrimSpace(notification.UserID) == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidNotification)
	}
	if strings.TrimSpace(notification.Type) == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidNotification)
	}
	if strings.TrimSpace(notification.Message) == "" {
		return fmt.Errorf("%w: missing message", ErrInvalidNotification)
	}
	return nil
}
