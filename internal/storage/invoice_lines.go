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

const lineColumns = `l.id, l.invoice_id, l.description, l.quantity, l.unit_price,
	l.hs_code, l.classification_method, l.confidence, l.flagged,
	l.created_at, l.updated_at`

// flaggedSortColumns maps the public sort keys onto SQL expressions.
var flaggedSortColumns = map[string]string{
	"created_at":     "l.created_at",
	"description":    "l.description",
	"confidence":     "l.confidence",
	"hs_code":        "l.hs_code",
	"invoice_number": "i.number",
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanLine reads lineColumns plus any trailing destinations.
func scanLine(row rowScanner, extra ...any) (model.InvoiceLine, error) {
	var line model.InvoiceLine
	var hsCode, method sql.NullString

	dest := []any{
		&line.ID,
		&line.InvoiceID,
		&line.Description,
		&line.Quantity,
		&line.UnitPrice,
		&hsCode,
		&method,
		&line.Confidence,
		&line.Flagged,
		&line.CreatedAt,
		&line.UpdatedAt,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return model.InvoiceLine{}, err
	}

	line.HSCode = hsCode.String
	line.Method = model.ClassificationMethod(method.String)
	return line, nil
}

// CreateInvoiceLine saves a new line on an existing invoice.
func (s *SQLiteStorage) CreateInvoiceLine(ctx context.Context, line *model.InvoiceLine) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLine(line); err != nil {
		return err
	}
	return s.createInvoiceLineTx(ctx, s.db, line)
}

func (s *SQLiteStorage) createInvoiceLineTx(ctx context.Context, q queryable, line *model.InvoiceLine) error {
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if line.CreatedAt.IsZero() {
		line.CreatedAt = now
	}
	line.UpdatedAt = now

	_, err := q.ExecContext(ctx, `
		INSERT INTO invoice_lines (
			id, invoice_id, description, quantity, unit_price,
			hs_code, classification_method, confidence, flagged,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		line.ID,
		line.InvoiceID,
		line.Description,
		line.Quantity,
		line.UnitPrice.String(),
		nullString(line.HSCode),
		nullString(string(line.Method)),
		line.Confidence,
		line.Flagged,
		line.CreatedAt,
		line.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create invoice line: %w", err)
	}
	return nil
}

// GetInvoiceLine retrieves a line by id.
func (s *SQLiteStorage) GetInvoiceLine(ctx context.Context, id string) (*model.InvoiceLine, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getInvoiceLineTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getInvoiceLineTx(ctx context.Context, q queryable, id string) (*model.InvoiceLine, error) {
	row := q.QueryRowContext(ctx, `SELECT `+lineColumns+` FROM invoice_lines l WHERE l.id = ?`, id)

	line, err := scanLine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invoice line %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice line: %w", err)
	}
	return &line, nil
}

// GetInvoiceLines retrieves every line of an invoice in creation order.
func (s *SQLiteStorage) GetInvoiceLines(ctx context.Context, invoiceID string) ([]model.InvoiceLine, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(invoiceID, "invoiceID"); err != nil {
		return nil, err
	}
	return s.getInvoiceLinesTx(ctx, s.db, invoiceID)
}

func (s *SQLiteStorage) getInvoiceLinesTx(ctx context.Context, q queryable, invoiceID string) ([]model.InvoiceLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+lineColumns+`
		FROM invoice_lines l
		WHERE l.invoice_id = ?
		ORDER BY l.created_at, l.rowid
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoice lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []model.InvoiceLine
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

// UpdateLineClassification records a classification outcome on a line.
func (s *SQLiteStorage) UpdateLineClassification(ctx context.Context, id, hsCode string, method model.ClassificationMethod, confidence float64, flagged bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLineClassification(id, hsCode, method, confidence); err != nil {
		return err
	}
	return s.updateLineClassificationTx(ctx, s.db, id, hsCode, method, confidence, flagged)
}

func (s *SQLiteStorage) updateLineClassificationTx(ctx context.Context, q queryable, id, hsCode string, method model.ClassificationMethod, confidence float64, flagged bool) error {
	result, err := q.ExecContext(ctx, `
		UPDATE invoice_lines
		SET hs_code = ?, classification_method = ?, confidence = ?, flagged = ?, updated_at = ?
		WHERE id = ?
	`, hsCode, string(method), confidence, flagged, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update line classification: %w", err)
	}
	return requireAffected(result, "invoice line", id)
}

// SetLineFlagged sets or clears the review flag on a line.
func (s *SQLiteStorage) SetLineFlagged(ctx context.Context, id string, flagged bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return s.setLineFlaggedTx(ctx, s.db, id, flagged)
}

func (s *SQLiteStorage) setLineFlaggedTx(ctx context.Context, q queryable, id string, flagged bool) error {
	result, err := q.ExecContext(ctx, `
		UPDATE invoice_lines SET flagged = ?, updated_at = ? WHERE id = ?
	`, flagged, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update line flag: %w", err)
	}
	return requireAffected(result, "invoice line", id)
}

// GetFlaggedLines returns one page of the review queue and the total queue size.
func (s *SQLiteStorage) GetFlaggedLines(ctx context.Context, filter model.FlaggedFilter) ([]model.FlaggedLine, int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, 0, err
	}
	return s.getFlaggedLinesTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) getFlaggedLinesTx(ctx context.Context, q queryable, filter model.FlaggedFilter) ([]model.FlaggedLine, int, error) {
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	column, ok := flaggedSortColumns[sortBy]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown sort field %q", common.ErrInvalidInput, filter.SortBy)
	}
	direction, err := sqlDirection(filter.SortOrder, model.SortDesc)
	if err != nil {
		return nil, 0, err
	}
	page := filter.Page.Normalize()

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoice_lines WHERE flagged = 1`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count flagged lines: %w", err)
	}

	// column and direction come from fixed allowlists.
	query := fmt.Sprintf(`
		SELECT %s, i.number, i.owner_id
		FROM invoice_lines l
		JOIN invoices i ON i.id = l.invoice_id
		WHERE l.flagged = 1
		ORDER BY %s %s, l.rowid
		LIMIT ? OFFSET ?
	`, lineColumns, column, direction)

	rows, err := q.QueryContext(ctx, query, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query flagged lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []model.FlaggedLine
	for rows.Next() {
		var flagged model.FlaggedLine
		line, err := scanLine(rows, &flagged.InvoiceNumber, &flagged.OwnerID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan flagged line: %w", err)
		}
		flagged.InvoiceLine = line
		lines = append(lines, flagged)
	}

	return lines, total, rows.Err()
}

// GetFlaggedLine returns a single flagged line. A line that exists but is not
// flagged is reported as not found.
func (s *SQLiteStorage) GetFlaggedLine(ctx context.Context, id string) (*model.FlaggedLine, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return s.getFlaggedLineTx(ctx, s.db, id)
}

func (s *SQLiteStorage) getFlaggedLineTx(ctx context.Context, q queryable, id string) (*model.FlaggedLine, error) {
	var flagged model.FlaggedLine

	row := q.QueryRowContext(ctx, `
		SELECT `+lineColumns+`, i.number, i.owner_id
		FROM invoice_lines l
		JOIN invoices i ON i.id = l.invoice_id
		WHERE l.id = ? AND l.flagged = 1
	`, id)

	line, err := scanLine(row, &flagged.InvoiceNumber, &flagged.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("flagged line %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flagged line: %w", err)
	}

	flagged.InvoiceLine = line
	return &flagged, nil
}

// GetReviewStats aggregates line and review counts. ReviewedToday counts
// human review actions recorded at or after since.
func (s *SQLiteStorage) GetReviewStats(ctx context.Context, since time.Time) (*model.ReviewStats, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return s.getReviewStatsTx(ctx, s.db, since)
}

func (s *SQLiteStorage) getReviewStatsTx(ctx context.Context, q queryable, since time.Time) (*model.ReviewStats, error) {
	var stats model.ReviewStats

	err := q.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(flagged = 1), 0),
			COALESCE(SUM(classification_method = 'auto'), 0),
			COALESCE(SUM(classification_method = 'manual'), 0),
			COALESCE(SUM(classification_method = 'failed'), 0),
			COALESCE(SUM(hs_code IS NULL), 0)
		FROM invoice_lines
	`).Scan(
		&stats.TotalLines,
		&stats.FlaggedLines,
		&stats.AutoLines,
		&stats.ManualLines,
		&stats.FailedLines,
		&stats.UnclassifiedLines,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate invoice lines: %w", err)
	}

	err = q.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(previous_code IS new_code), 0),
			COALESCE(SUM(previous_code IS NOT new_code), 0),
			COALESCE(SUM(created_at >= ?), 0)
		FROM classification_history
		WHERE user_id IS NOT NULL
	`, since.UTC()).Scan(
		&stats.ApprovedCount,
		&stats.AdjustedCount,
		&stats.ReviewedToday,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate review history: %w", err)
	}

	return &stats, nil
}

// sqlDirection validates a sort order, falling back to def when empty.
func sqlDirection(order, def model.SortOrder) (string, error) {
	if order == "" {
		order = def
	}
	switch order {
	case model.SortAsc:
		return "ASC", nil
	case model.SortDesc:
		return "DESC", nil
	default:
		return "", fmt.Errorf("%w: unknown sort order %q", common.ErrInvalidInput, order)
	}
}
