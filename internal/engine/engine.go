// Package engine classifies every line of an invoice and writes the results back.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/customs-flow/internal/classify"
	"github.com/Veraticus/customs-flow/internal/model"
	"github.com/Veraticus/customs-flow/internal/service"
)

// BulkClassifier classifies a list of items, preserving order.
type BulkClassifier interface {
	Classify(ctx context.Context, items []model.BulkItem, progress classify.ProgressFunc) ([]model.BulkResult, error)
}

// Options controls which lines ClassifyInvoice considers.
type Options struct {
	Progress classify.ProgressFunc
	// Reclassify also sends lines that already carry an automatic code.
	Reclassify bool
}

// Summary reports what one ClassifyInvoice run did.
type Summary struct {
	InvoiceID  string
	Total      int
	Classified int
	Flagged    int
	Failed     int
	Skipped    int
}

// ClassificationEngine persists bulk classification results onto invoice lines.
type ClassificationEngine struct {
	storage service.Storage
	bulk    BulkClassifier
	logger  *slog.Logger
}

// New creates a ClassificationEngine.
func New(storage service.Storage, bulk BulkClassifier, logger *slog.Logger) *ClassificationEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClassificationEngine{storage: storage, bulk: bulk, logger: logger}
}

// ClassifyInvoice classifies the invoice's eligible lines. Manually reviewed
// lines are never sent. Results with a code are written in one transaction
// together with an automated history row per code change; failed results
// leave their line untouched.
func (e *ClassificationEngine) ClassifyInvoice(ctx context.Context, invoiceID string, opts Options) (*Summary, error) {
	if _, err := e.storage.GetInvoice(ctx, invoiceID); err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}

	lines, err := e.storage.GetInvoiceLines(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice lines: %w", err)
	}

	summary := &Summary{InvoiceID: invoiceID, Total: len(lines)}
	byID := make(map[string]model.InvoiceLine, len(lines))
	items := make([]model.BulkItem, 0, len(lines))
	for _, line := range lines {
		if !eligible(line, opts.Reclassify) {
			summary.Skipped++
			continue
		}
		byID[line.ID] = line
		items = append(items, model.BulkItem{ID: line.ID, Description: line.Description})
	}

	if len(items) == 0 {
		e.logger.Info("No lines to classify", "invoice_id", invoiceID, "skipped", summary.Skipped)
		return summary, nil
	}

	e.logger.Info("Classifying invoice", "invoice_id", invoiceID, "lines", len(items))

	results, err := e.bulk.Classify(ctx, items, opts.Progress)
	if err != nil {
		return nil, fmt.Errorf("bulk classification failed: %w", err)
	}

	if err := e.persist(ctx, results, byID, summary); err != nil {
		return nil, err
	}

	e.logger.Info("Invoice classification complete",
		"invoice_id", invoiceID,
		"classified", summary.Classified,
		"flagged", summary.Flagged,
		"failed", summary.Failed,
		"skipped", summary.Skipped)

	return summary, nil
}

func (e *ClassificationEngine) persist(ctx context.Context, results []model.BulkResult, lines map[string]model.InvoiceLine, summary *Summary) error {
	tx, err := e.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, result := range results {
		if !result.Persistable() {
			summary.Failed++
			e.logger.Warn("Leaving line unclassified",
				"line_id", result.ID,
				"error", result.Error)
			continue
		}

		line := lines[result.ID]
		if err := tx.UpdateLineClassification(ctx, result.ID, result.HSCode, result.Method, result.Confidence, result.Flagged); err != nil {
			return fmt.Errorf("failed to update line %s: %w", result.ID, err)
		}

		if line.HSCode != result.HSCode {
			entry := &model.ClassificationHistory{
				LineID:       result.ID,
				PreviousCode: line.HSCode,
				NewCode:      result.HSCode,
				Comment:      fmt.Sprintf("Automatic classification (confidence %.2f)", result.Confidence),
			}
			if err := tx.AddClassificationHistory(ctx, entry); err != nil {
				return fmt.Errorf("failed to record history for line %s: %w", result.ID, err)
			}
		}

		summary.Classified++
		if result.Flagged {
			summary.Flagged++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit classifications: %w", err)
	}
	return nil
}

func eligible(line model.InvoiceLine, reclassify bool) bool {
	switch line.Method {
	case model.MethodManual:
		return false
	case model.MethodAuto:
		return reclassify
	default:
		return true
	}
}
