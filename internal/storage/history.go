package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Veraticus/customs-flow/internal/model"
)

// AddClassificationHistory appends an audit row for an HS code change.
func (s *SQLiteStorage) AddClassificationHistory(ctx context.Context, entry *model.ClassificationHistory) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateHistory(entry); err != nil {
		return err
	}
	return s.addClassificationHistoryTx(ctx, s.db, entry)
}

func (s *SQLiteStorage) addClassificationHistoryTx(ctx context.Context, q queryable, entry *model.ClassificationHistory) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := q.ExecContext(ctx, `
		INSERT INTO classification_history (
			line_id, previous_code, new_code, user_id, comment, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		entry.LineID,
		nullString(entry.PreviousCode),
		entry.NewCode,
		nullString(entry.UserID),
		nullString(entry.Comment),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save classification history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get history id: %w", err)
	}
	entry.ID = id
	return nil
}

// GetClassificationHistory returns one page of audit rows and the total match count.
func (s *SQLiteStorage) GetClassificationHistory(ctx context.Context, filter model.HistoryFilter) ([]model.ClassificationHistory, int, error) {
	if err := validateContext(ctx); err != nil {
		return nil, 0, err
	}
	return s.getClassificationHistoryTx(ctx, s.db, filter)
}

func (s *SQLiteStorage) getClassificationHistoryTx(ctx context.Context, q queryable, filter model.HistoryFilter) ([]model.ClassificationHistory, int, error) {
	direction, err := sqlDirection(filter.SortOrder, model.SortDesc)
	if err != nil {
		return nil, 0, err
	}
	page := filter.Page.Normalize()

	const where = `WHERE (? = '' OR line_id = ?) AND (? = '' OR user_id = ?)`
	args := []any{filter.LineID, filter.LineID, filter.UserID, filter.UserID}

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM classification_history `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count classification history: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, line_id, previous_code, new_code, user_id, comment, created_at
		FROM classification_history
		%s
		ORDER BY created_at %s, id %s
		LIMIT ? OFFSET ?
	`, where, direction, direction)

	rows, err := q.QueryContext(ctx, query, append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query classification history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []model.ClassificationHistory
	for rows.Next() {
		var entry model.ClassificationHistory
		var previous, userID, comment sql.NullString

		if err := rows.Scan(
			&entry.ID,
			&entry.LineID,
			&previous,
			&entry.NewCode,
			&userID,
			&comment,
			&entry.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan classification history: %w", err)
		}

		entry.PreviousCode = previous.String
		entry.UserID = userID.String
		entry.Comment = comment.String
		entries = append(entries, entry)
	}

	return entries, total, rows.Err()
}
