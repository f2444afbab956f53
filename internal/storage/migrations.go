package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS invoices (
					id TEXT PRIMARY KEY,
					number TEXT NOT NULL,
					owner_id TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'Draft',
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_invoices_owner ON invoices(owner_id)`,

				`CREATE TABLE IF NOT EXISTS invoice_lines (
					id TEXT PRIMARY KEY,
					invoice_id TEXT NOT NULL,
					description TEXT NOT NULL,
					quantity INTEGER NOT NULL CHECK (quantity > 0),
					unit_price TEXT NOT NULL,
					hs_code TEXT,
					classification_method TEXT,
					confidence REAL NOT NULL DEFAULT 0,
					flagged INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL,
					updated_at DATETIME NOT NULL,
					FOREIGN KEY (invoice_id) REFERENCES invoices(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_invoice_lines_invoice ON invoice_lines(invoice_id)`,
				`CREATE INDEX idx_invoice_lines_flagged ON invoice_lines(flagged)`,

				`CREATE TABLE IF NOT EXISTS classification_history (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					line_id TEXT NOT NULL,
					previous_code TEXT,
					new_code TEXT NOT NULL,
					user_id TEXT,
					comment TEXT,
					created_at DATETIME NOT NULL,
					FOREIGN KEY (line_id) REFERENCES invoice_lines(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_classification_history_line ON classification_history(line_id)`,
				`CREATE INDEX idx_classification_history_user ON classification_history(user_id)`,

				`CREATE TABLE IF NOT EXISTS notifications (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					type TEXT NOT NULL,
					message TEXT NOT NULL,
					is_read INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_notifications_user ON notifications(user_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add submissions table",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS submissions (
					id TEXT PRIMARY KEY,
					invoice_id TEXT NOT NULL,
					method TEXT NOT NULL CHECK (method IN ('api', 'sftp', 'failed')),
					status TEXT NOT NULL CHECK (status IN ('pending', 'submitted', 'accepted', 'rejected', 'failed')),
					response TEXT,
					submitted_at DATETIME NOT NULL,
					checked_at DATETIME,
					FOREIGN KEY (invoice_id) REFERENCES invoices(id) ON DELETE CASCADE
				)`,
				`CREATE INDEX idx_submissions_invoice ON submissions(invoice_id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Make classification history append-only",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TRIGGER classification_history_append_only
				BEFORE UPDATE ON classification_history
				FOR EACH ROW
				BEGIN
					SELECT RAISE(ABORT, 'classification history is append-only');
				END
			`)
			if err != nil {
				return fmt.Errorf("failed to create append-only trigger: %w", err)
			}
			return nil
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the schema version currently applied to the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
