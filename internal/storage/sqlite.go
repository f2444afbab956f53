// Package storage provides the data persistence layer for the customs pipeline.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/customs-flow/internal/model"
	"github.com/Veraticus/customs-flow/internal/service"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage implements the Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// queryable is satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// NewSQLiteStorage creates a new SQLite storage instance.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes every write, which is what the review
	// workflow relies on for its atomic flag/history/notification unit.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteStorage{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new database transaction.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (service.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &sqliteTransaction{
		tx:      tx,
		storage: s,
	}, nil
}

// sqliteTransaction wraps sql.Tx to implement service.Transaction.
type sqliteTransaction struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTransaction) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTransaction) Rollback() error {
	return t.tx.Rollback()
}

// Transaction methods delegate to the main storage with the transaction.
func (t *sqliteTransaction) CreateInvoice(ctx context.Context, invoice *model.Invoice) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateInvoice(invoice); err != nil {
		return err
	}
	return t.storage.createInvoiceTx(ctx, t.tx, invoice)
}

func (t *sqliteTransaction) GetInvoice(ctx context.Context, id string) (*model.Invoice, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getInvoiceTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) UpdateInvoiceStatus(ctx context.Context, id string, status model.InvoiceStatus) error {
	if err := validateInvoiceStatus(id, status); err != nil {
		return err
	}
	return t.storage.updateInvoiceStatusTx(ctx, t.tx, id, status)
}

func (t *sqliteTransaction) CreateInvoiceLine(ctx context.Context, line *model.InvoiceLine) error {
	if err := validateLine(line); err != nil {
		return err
	}
	return t.storage.createInvoiceLineTx(ctx, t.tx, line)
}

func (t *sqliteTransaction) GetInvoiceLine(ctx context.Context, id string) (*model.InvoiceLine, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getInvoiceLineTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetInvoiceLines(ctx context.Context, invoiceID string) ([]model.InvoiceLine, error) {
	if err := validateString(invoiceID, "invoiceID"); err != nil {
		return nil, err
	}
	return t.storage.getInvoiceLinesTx(ctx, t.tx, invoiceID)
}

func (t *sqliteTransaction) UpdateLineClassification(ctx context.Context, id, hsCode string, method model.ClassificationMethod, confidence float64, flagged bool) error {
	if err := validateLineClassification(id, hsCode, method, confidence); err != nil {
		return err
	}
	return t.storage.updateLineClassificationTx(ctx, t.tx, id, hsCode, method, confidence, flagged)
}

func (t *sqliteTransaction) SetLineFlagged(ctx context.Context, id string, flagged bool) error {
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return t.storage.setLineFlaggedTx(ctx, t.tx, id, flagged)
}

func (t *sqliteTransaction) GetFlaggedLines(ctx context.Context, filter model.FlaggedFilter) ([]model.FlaggedLine, int, error) {
	return t.storage.getFlaggedLinesTx(ctx, t.tx, filter)
}

func (t *sqliteTransaction) GetFlaggedLine(ctx context.Context, id string) (*model.FlaggedLine, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getFlaggedLineTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetReviewStats(ctx context.Context, since time.Time) (*model.ReviewStats, error) {
	return t.storage.getReviewStatsTx(ctx, t.tx, since)
}

func (t *sqliteTransaction) AddClassificationHistory(ctx context.Context, entry *model.ClassificationHistory) error {
	if err := validateHistory(entry); err != nil {
		return err
	}
	return t.storage.addClassificationHistoryTx(ctx, t.tx, entry)
}

func (t *sqliteTransaction) GetClassificationHistory(ctx context.Context, filter model.HistoryFilter) ([]model.ClassificationHistory, int, error) {
	return t.storage.getClassificationHistoryTx(ctx, t.tx, filter)
}

func (t *sqliteTransaction) CreateSubmission(ctx context.Context, submission *model.Submission) error {
	if err := validateSubmission(submission); err != nil {
		return err
	}
	return t.storage.createSubmissionTx(ctx, t.tx, submission)
}

func (t *sqliteTransaction) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return t.storage.getSubmissionTx(ctx, t.tx, id)
}

func (t *sqliteTransaction) GetSubmissionsByInvoice(ctx context.Context, invoiceID string) ([]model.Submission, error) {
	if err := validateString(invoiceID, "invoiceID"); err != nil {
		return nil, err
	}
	return t.storage.getSubmissionsByInvoiceTx(ctx, t.tx, invoiceID)
}

func (t *sqliteTransaction) UpdateSubmissionStatus(ctx context.Context, id string, status model.SubmissionStatus, checkedAt time.Time) error {
	if err := validateSubmissionStatus(id, status); err != nil {
		return err
	}
	return t.storage.updateSubmissionStatusTx(ctx, t.tx, id, status, checkedAt)
}

func (t *sqliteTransaction) CreateNotification(ctx context.Context, notification *model.Notification) error {
	if err := validateNotification(notification); err != nil {
		return err
	}
	return t.storage.createNotificationTx(ctx, t.tx, notification)
}

func (t *sqliteTransaction) GetNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	return t.storage.getNotificationsTx(ctx, t.tx, userID)
}

func (t *sqliteTransaction) Migrate(_ context.Context) error {
	// Migrations should not be run within a transaction
	return fmt.Errorf("migrations cannot be run within a transaction")
}

func (t *sqliteTransaction) BeginTx(_ context.Context) (service.Transaction, error) {
	// Nested transactions not supported
	return nil, fmt.Errorf("nested transactions not supported")
}

func (t *sqliteTransaction) Close() error {
	// Transactions should be committed or rolled back, not closed
	return fmt.Errorf("transactions must be committed or rolled back, not closed")
}

// nullString maps an empty string onto SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
