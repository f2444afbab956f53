// Package testutil provides test databases and fixture builders for invoices
// and their lines.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/customs-flow/internal/model"
	"github.com/Veraticus/customs-flow/internal/service"
	"github.com/Veraticus/customs-flow/internal/storage"
)

// TestDB is a migrated in-memory database scoped to one test.
type TestDB struct {
	Storage service.Storage
	t       *testing.T
}

// SetupTestDB creates a migrated in-memory database closed on test cleanup.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{Storage: store, t: t}
}

// WithTransaction runs fn in a transaction that is always rolled back.
func (db *TestDB) WithTransaction(fn func(tx service.Transaction) error) error {
	tx, err := db.Storage.BeginTx(context.Background())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	return fn(tx)
}

// MustLine reloads a line or fails the test.
func (db *TestDB) MustLine(id string) *model.InvoiceLine {
	db.t.Helper()
	line, err := db.Storage.GetInvoiceLine(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to load line %s: %v", id, err)
	}
	return line
}

// MustInvoice reloads an invoice or fails the test.
func (db *TestDB) MustInvoice(id string) *model.Invoice {
	db.t.Helper()
	invoice, err := db.Storage.GetInvoice(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to load invoice %s: %v", id, err)
	}
	return invoice
}

// Invoice starts building an invoice owned by owner.
func (db *TestDB) Invoice(owner string) *InvoiceBuilder {
	return &InvoiceBuilder{db: db, owner: owner, number: "INV-" + owner}
}

// InvoiceBuilder seeds an invoice and its lines.
type InvoiceBuilder struct {
	db     *TestDB
	owner  string
	number string
	status model.InvoiceStatus
	lines  []lineSeed
}

type lineSeed struct {
	description string
	hsCode      string
	method      model.ClassificationMethod
	confidence  float64
	flagged     bool
}

// Fixture is a seeded invoice with its lines in insertion order.
type Fixture struct {
	Invoice *model.Invoice
	Lines   []model.InvoiceLine
}

// Number overrides the invoice number.
func (b *InvoiceBuilder) Number(number string) *InvoiceBuilder {
	b.number = number
	return b
}

// Status sets the invoice status after creation.
func (b *InvoiceBuilder) Status(status model.InvoiceStatus) *InvoiceBuilder {
	b.status = status
	return b
}

// Line adds an unclassified line.
func (b *InvoiceBuilder) Line(description string) *InvoiceBuilder {
	b.lines = append(b.lines, lineSeed{description: description})
	return b
}

// AutoLine adds a line classified automatically with the given confidence.
func (b *InvoiceBuilder) AutoLine(description, hsCode string, confidence float64, flagged bool) *InvoiceBuilder {
	b.lines = append(b.lines, lineSeed{
		description: description,
		hsCode:      hsCode,
		method:      model.MethodAuto,
		confidence:  confidence,
		flagged:     flagged,
	})
	return b
}

// ManualLine adds a line with a reviewer-assigned code.
func (b *InvoiceBuilder) ManualLine(description, hsCode string) *InvoiceBuilder {
	b.lines = append(b.lines, lineSeed{
		description: description,
		hsCode:      hsCode,
		method:      model.MethodManual,
		confidence:  1,
	})
	return b
}

// Build writes the invoice and lines, failing the test on error.
func (b *InvoiceBuilder) Build() Fixture {
	t := b.db.t
	t.Helper()
	ctx := context.Background()
	store := b.db.Storage

	invoice := &model.Invoice{Number: b.number, OwnerID: b.owner}
	if err := store.CreateInvoice(ctx, invoice); err != nil {
		t.Fatalf("failed to seed invoice: %v", err)
	}
	if b.status != "" && b.status != invoice.Status {
		if err := store.UpdateInvoiceStatus(ctx, invoice.ID, b.status); err != nil {
			t.Fatalf("failed to set invoice status: %v", err)
		}
		invoice.Status = b.status
	}

	fixture := Fixture{Invoice: invoice}
	for i, seed := range b.lines {
		line := &model.InvoiceLine{
			InvoiceID:   invoice.ID,
			Description: seed.description,
			Quantity:    i + 1,
			UnitPrice:   decimal.RequireFromString("12.50"),
		}
		if err := store.CreateInvoiceLine(ctx, line); err != nil {
			t.Fatalf("failed to seed line %q: %v", seed.description, err)
		}

		if seed.hsCode != "" {
			err := store.UpdateLineClassification(ctx, line.ID, seed.hsCode, seed.method, seed.confidence, seed.flagged)
			if err != nil {
				t.Fatalf("failed to classify line %q: %v", seed.description, err)
			}
			line.HSCode = seed.hsCode
			line.Method = seed.method
			line.Confidence = seed.confidence
			line.Flagged = seed.flagged
		}

		fixture.Lines = append(fixture.Lines, *line)
	}

	return fixture
}
