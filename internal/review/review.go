// Package review implements the human review workflow for flagged invoice lines.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/model"
	"github.com/Veraticus/customs-flow/internal/service"
)

// DefaultApproveComment is recorded when an approval carries no comment.
const DefaultApproveComment = "Approved without changes"

// AdjustRequest asks for a line's HS code to be replaced.
type AdjustRequest struct {
	LineID  string `validate:"required"`
	HSCode  string `validate:"required,numeric,min=4,max=10"`
	UserID  string `validate:"required"`
	Comment string `validate:"max=1000"`
}

// Outcome is the state written by a review action.
type Outcome struct {
	Line         *model.InvoiceLine
	History      model.ClassificationHistory
	Notification model.Notification
}

// Service runs review actions. Every action commits its line update, history
// row and owner notification together or not at all.
type Service struct {
	storage  service.Storage
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a review Service.
func NewService(storage service.Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		storage:  storage,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// NormalizeHSCode strips the dots and spaces commonly written inside HS codes.
func NormalizeHSCode(code string) string {
	return strings.NewReplacer(".", "", " ", "").Replace(strings.TrimSpace(code))
}

// Approve confirms a flagged line's current code. It fails with ErrNotFound
// for an unknown line and ErrInvalidState when the line is not flagged.
func (s *Service) Approve(ctx context.Context, lineID, userID, comment string) (*Outcome, error) {
	if strings.TrimSpace(lineID) == "" || strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: line id and user id are required", common.ErrInvalidInput)
	}
	if comment == "" {
		comment = DefaultApproveComment
	}

	var outcome *Outcome
	err := s.inTx(ctx, func(tx service.Transaction) error {
		line, err := tx.GetInvoiceLine(ctx, lineID)
		if err != nil {
			return err
		}
		if !line.Flagged {
			return fmt.Errorf("%w: line %s is not flagged for review", common.ErrInvalidState, lineID)
		}
		if line.HSCode == "" {
			return fmt.Errorf("%w: line %s has no HS code to approve; adjust it instead", common.ErrInvalidState, lineID)
		}

		if err := tx.SetLineFlagged(ctx, lineID, false); err != nil {
			return err
		}
		line.Flagged = false

		invoice, err := tx.GetInvoice(ctx, line.InvoiceID)
		if err != nil {
			return err
		}

		outcome = &Outcome{
			Line: line,
			History: model.ClassificationHistory{
				LineID:       lineID,
				PreviousCode: line.HSCode,
				NewCode:      line.HSCode,
				UserID:       userID,
				Comment:      comment,
			},
			Notification: model.Notification{
				UserID:  invoice.OwnerID,
				Type:    model.NotificationClassificationApproved,
				Message: fmt.Sprintf("HS code %s for %q on invoice %s was approved.", line.HSCode, line.Description, invoice.Number),
			},
		}
		return s.record(ctx, tx, outcome)
	})
	if err != nil {
		return nil, fmt.Errorf("approve line %s: %w", lineID, err)
	}

	s.logger.Info("Approved classification",
		"line_id", lineID,
		"user_id", userID,
		"hs_code", outcome.Line.HSCode)
	return outcome, nil
}

// Adjust replaces a line's HS code, clears its flag and marks it manual. It
// is valid whether or not the line is flagged.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (*Outcome, error) {
	req.HSCode = NormalizeHSCode(req.HSCode)
	if err := s.validate.Struct(req); err != nil {
		return nil, invalidRequest(err)
	}

	var outcome *Outcome
	err := s.inTx(ctx, func(tx service.Transaction) error {
		line, err := tx.GetInvoiceLine(ctx, req.LineID)
		if err != nil {
			return err
		}
		previous := line.HSCode

		if err := tx.UpdateLineClassification(ctx, line.ID, req.HSCode, model.MethodManual, 1, false); err != nil {
			return err
		}
		line.HSCode = req.HSCode
		line.Method = model.MethodManual
		line.Confidence = 1
		line.Flagged = false

		invoice, err := tx.GetInvoice(ctx, line.InvoiceID)
		if err != nil {
			return err
		}

		comment := req.Comment
		if comment == "" {
			comment = fmt.Sprintf("Adjusted HS code from %s to %s", displayCode(previous), req.HSCode)
		}

		outcome = &Outcome{
			Line: line,
			History: model.ClassificationHistory{
				LineID:       line.ID,
				PreviousCode: previous,
				NewCode:      req.HSCode,
				UserID:       req.UserID,
				Comment:      comment,
			},
			Notification: model.Notification{
				UserID: invoice.OwnerID,
				Type:   model.NotificationClassificationAdjusted,
				Message: fmt.Sprintf("HS code for %q on invoice %s changed from %s to %s.",
					line.Description, invoice.Number, displayCode(previous), req.HSCode),
			},
		}
		return s.record(ctx, tx, outcome)
	})
	if err != nil {
		return nil, fmt.Errorf("adjust line %s: %w", req.LineID, err)
	}

	s.logger.Info("Adjusted classification",
		"line_id", req.LineID,
		"user_id", req.UserID,
		"previous_code", outcome.History.PreviousCode,
		"new_code", req.HSCode)
	return outcome, nil
}

func (s *Service) record(ctx context.Context, tx service.Transaction, outcome *Outcome) error {
	if err := tx.AddClassificationHistory(ctx, &outcome.History); err != nil {
		return err
	}
	return tx.CreateNotification(ctx, &outcome.Notification)
}

// inTx runs fn in a transaction, committing only if fn succeeds.
func (s *Service) inTx(ctx context.Context, fn func(tx service.Transaction) error) error {
	tx, err := s.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit review: %w", err)
	}
	return nil
}

func displayCode(code string) string {
	if code == "" {
		return "none"
	}
	return code
}

func invalidRequest(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s failed %q", common.ErrInvalidInput, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %w", common.ErrInvalidInput, err)
}
