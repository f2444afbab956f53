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

// CreateInvoice saves a new invoice, assigning an id and timestamps when missing.
func (s *SQLiteStorage) CreateInvoice(ctx context.Context, invoice *model.Invoice) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateInvoice(invoice); err != nil {
		return err
	}
	return s.createInvoiceTx(ctx, s.db, invoice)
}

func (s *SQLiteStorage) createInvoiceTx(ctx context.Context, q queryable, invoice *model.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	if invoice.Status == "" {
		invoice.Status = model.InvoiceStatusDraft
	}
	now := time.Now().UTC()
	if invoice.CreatedAt.IsZero() {
		invoice.CreatedAt = now
	}
	invoice.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO invoices (id, number, owner_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		invoice.ID,
		invoice.Number,
		invoice.OwnerID,
		string(invoice.Status),
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// GetInvoice retrieves an invoice by id.
func (s *SQLiteStorage) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getInvoiceTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getInvoiceTx(ctx context.Context, q queryable, id string) (*model.Invoice, error) {
	var invoice model.Invoice
	var status string

	err := q.QueryRowContext(ctx, `
		SELECT id, number, owner_id, status, created_at, updated_at
		FROM invoices
		WHERE id = ?
	`, id).Scan(
		&invoice.ID,
		&invoice.Number,
		&invoice.OwnerID,
		&status,
		&invoice.CreatedAt,
		&invoice.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	invoice.Status = model.InvoiceStatus(status)
	return &invoice, nil
}

// UpdateInvoiceStatus moves an invoice to a new status.
func (s *SQLiteStorage) UpdateInvoiceStatus(ctx context.Context, id string, status model.InvoiceStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateInvoiceStatus(id, status); err != nil {
		return err
	}
	return s.updateInvoiceStatusTx(ctx, s.db, id, status)
}

func (s *SQLiteStorage) updateInvoiceStatusTx(ctx context.Context, q queryable, id string, status model.InvoiceStatus) error {
	result, err := q.ExecContext(ctx, `
		UPDATE invoices SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update invoice status: %w", err)
	}
	return requireAffected(result, "invoice", id)
}

// requireAffected turns a zero-row update into a not-found error.
func requireAffected(result sql.Result, entity, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", entity, id, common.ErrNotFound)
	}
	return nil
}
