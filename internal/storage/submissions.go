package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/model"
)

const submissionColumns = `id, invoice_id, method, status, response, submitted_at, checked_at`

func scanSubmission(row rowScanner) (model.Submission, error) {
	var submission model.Submission
	var method, status string
	var response sql.NullString
	var checkedAt sql.NullTime

	if err := row.Scan(
		&submission.ID,
		&submission.InvoiceID,
		&method,
		&status,
		&response,
		&submission.SubmittedAt,
		&checkedAt,
	); err != nil {
		return model.Submission{}, err
	}

	submission.Method = model.DeliveryMethod(method)
	submission.Status = model.SubmissionStatus(status)
	submission.Response = response.String
	if checkedAt.Valid {
		t := checkedAt.Time
		submission.CheckedAt = &t
	}
	return submission, nil
}

// CreateSubmission records one delivery attempt. Rows are never reused
// across attempts.
func (s *SQLiteStorage) CreateSubmission(ctx context.Context, submission *model.Submission) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateSubmission(submission); err != nil {
		return err
	}
	return s.createSubmissionTx(ctx, s.db, submission)
}

func (s *SQLiteStorage) createSubmissionTx(ctx context.Context, q queryable, submission *model.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		submission.ID,
		submission.InvoiceID,
		string(submission.Method),
		string(submission.Status),
		nullString(submission.Response),
		submission.SubmittedAt,
		submission.CheckedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	return nil
}

// GetSubmission retrieves a submission by id.
func (s *SQLiteStorage) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getSubmissionTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getSubmissionTx(ctx context.Context, q queryable, id string) (*model.Submission, error) {
	row := q.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)

	submission, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("submission %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return &submission, nil
}

// GetSubmissionsByInvoice lists an invoice's submissions, newest first.
func (s *SQLiteStorage) GetSubmissionsByInvoice(ctx context.Context, invoiceID string) ([]model.Submission, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(invoiceID, "invoiceID"); err != nil {
		return nil, err
	}
	return s.getSubmissionsByInvoiceTx(ctx, s.db, invoiceID)
}

func (s *SQLiteStorage) getSubmissionsByInvoiceTx(ctx context.Context, q queryable, invoiceID string) ([]model.Submission, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+submissionColumns+`
		FROM submissions
		WHERE invoice_id = ?
		ORDER BY submitted_at DESC, rowid DESC
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var submissions []model.Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		submissions = append(submissions, submission)
	}

	return submissions, rows.Err()
}

// UpdateSubmissionStatus stores a reconciled disposition.
func (s *SQLiteStorage) UpdateSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus, checkedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateSubmissionStatus(id, status); err != nil {
		return err
	}
	return s.updateSubmissionStatusTx(ctx, s.db, id, status, checkedAt)
}

func (s *SQLiteStorage) updateSubmissionStatusTx(ctx context.Context, q queryable, id string, status model.SubmissionStatus, checkedAt time.Time) error {
	result, err := q.ExecContext(ctx, `
		UPDATE submissions SET status = ?, checked_at = ? WHERE id = ?
	`, string(status), checkedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update submission status: %w", err)
	}
	return requireAffected(result, "submission", id)
}
