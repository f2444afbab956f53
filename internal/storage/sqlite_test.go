package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/model"
)

func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

// seedInvoice creates an invoice with one line per description.
func seedInvoice(t *testing.T, store *SQLiteStorage, owner string, descriptions ...string) (*model.Invoice, []model.InvoiceLine) {
	t.Helper()
	ctx := context.Background()

	invoice := &model.Invoice{Number: "INV-" + owner, OwnerID: owner}
	require.NoError(t, store.CreateInvoice(ctx, invoice))

	lines := make([]model.InvoiceLine, 0, len(descriptions))
	for _, desc := range descriptions {
		line := &model.InvoiceLine{
			InvoiceID:   invoice.ID,
			Description: desc,
			Quantity:    2,
			UnitPrice:   decimal.RequireFromString("9.99"),
		}
		require.NoError(t, store.CreateInvoiceLine(ctx, line))
		lines = append(lines, *line)
	}

	return invoice, lines
}

func TestSQLiteStorage_Invoices(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	invoice := &model.Invoice{Number: "INV-001", OwnerID: "user-1"}
	require.NoError(t, store.CreateInvoice(ctx, invoice))
	assert.NotEmpty(t, invoice.ID)
	assert.Equal(t, model.InvoiceStatusDraft, invoice.Status)

	got, err := store.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "INV-001", got.Number)
	assert.Equal(t, "user-1", got.OwnerID)
	assert.Equal(t, model.InvoiceStatusDraft, got.Status)

	require.NoError(t, store.UpdateInvoiceStatus(ctx, invoice.ID, model.InvoiceStatusSubmitted))
	got, err = store.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, model.InvoiceStatusSubmitted, got.Status)

	_, err = store.GetInvoice(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = store.UpdateInvoiceStatus(ctx, "missing", model.InvoiceStatusSubmitted)
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = store.UpdateInvoiceStatus(ctx, invoice.ID, "Bogus")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestSQLiteStorage_InvoiceLines(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	invoice, lines := seedInvoice(t, store, "user-1", "Red Cotton T-Shirt, Size L", "Leather Wallet")
	require.Len(t, lines, 2)

	got, err := store.GetInvoiceLines(ctx, invoice.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Red Cotton T-Shirt, Size L", got[0].Description)
	assert.True(t, decimal.RequireFromString("9.99").Equal(got[0].UnitPrice))
	assert.False(t, got[0].IsClassified())
	assert.Empty(t, got[0].Method)

	require.NoError(t, store.UpdateLineClassification(ctx, lines[0].ID, "610910", model.MethodAuto, 0.85, false))
	line, err := store.GetInvoiceLine(ctx, lines[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "610910", line.HSCode)
	assert.Equal(t, model.MethodAuto, line.Method)
	assert.InDelta(t, 0.85, line.Confidence, 0.0001)
	assert.False(t, line.Flagged)

	require.NoError(t, store.SetLineFlagged(ctx, lines[0].ID, true))
	line, err = store.GetInvoiceLine(ctx, lines[0].ID)
	require.NoError(t, err)
	assert.True(t, line.Flagged)

	_, err = store.GetInvoiceLine(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, store.SetLineFlagged(ctx, "missing", true), common.ErrNotFound)
	assert.ErrorIs(t, store.UpdateLineClassification(ctx, "missing", "610910", model.MethodAuto, 0.9, false), common.ErrNotFound)
}

func TestSQLiteStorage_InvoiceLineRequiresInvoice(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	err := store.CreateInvoiceLine(context.Background(), &model.InvoiceLine{
		InvoiceID:   "no-such-invoice",
		Description: "Orphan",
		Quantity:    1,
		UnitPrice:   decimal.NewFromInt(1),
	})
	require.Error(t, err)
}

func TestSQLiteStorage_FlaggedLines(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	_, lines := seedInvoice(t, store, "user-1", "Alpha", "Bravo", "Charlie", "Delta")
	require.NoError(t, store.UpdateLineClassification(ctx, lines[0].ID, "610910", model.MethodAuto, 0.5, true))
	require.NoError(t, store.UpdateLineClassification(ctx, lines[1].ID, "620342", model.MethodAuto, 0.4, true))
	require.NoError(t, store.UpdateLineClassification(ctx, lines[2].ID, "420231", model.MethodAuto, 0.9, false))

	t.Run("pagination and total", func(t *testing.T) {
		page, total, err := store.GetFlaggedLines(ctx, model.FlaggedFilter{
			SortBy:    "description",
			SortOrder: model.SortAsc,
			Page:      model.Page{Limit: 1},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, page, 1)
		assert.Equal(t, "Alpha", page[0].Description)
		assert.Equal(t, "INV-user-1", page[0].InvoiceNumber)
		assert.Equal(t, "user-1", page[0].OwnerID)

		page, _, err = store.GetFlaggedLines(ctx, model.FlaggedFilter{
			SortBy:    "description",
			SortOrder: model.SortAsc,
			Page:      model.Page{Limit: 1, Offset: 1},
		})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "Bravo", page[0].Description)
	})

	t.Run("sort by confidence", func(t *testing.T) {
		page, _, err := store.GetFlaggedLines(ctx, model.FlaggedFilter{SortBy: "confidence", SortOrder: model.SortAsc})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "Bravo", page[0].Description)
	})

	t.Run("rejects unknown sort field", func(t *testing.T) {
		_, _, err := store.GetFlaggedLines(ctx, model.FlaggedFilter{SortBy: "id; DROP TABLE invoices"})
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})

	t.Run("single flagged line", func(t *testing.T) {
		got, err := store.GetFlaggedLine(ctx, lines[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "610910", got.HSCode)
	})

	t.Run("unflagged line is not found", func(t *testing.T) {
		_, err := store.GetFlaggedLine(ctx, lines[2].ID)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestSQLiteStorage_ReviewStats(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	_, lines := seedInvoice(t, store, "user-1", "Alpha", "Bravo", "Charlie")
	require.NoError(t, store.UpdateLineClassification(ctx, lines[0].ID, "610910", model.MethodAuto, 0.5, true))
	require.NoError(t, store.UpdateLineClassification(ctx, lines[1].ID, "620342", model.MethodManual, 1, false))

	require.NoError(t, store.AddClassificationHistory(ctx, &model.ClassificationHistory{
		LineID: lines[0].ID, NewCode: "610910",
	}))
	require.NoError(t, store.AddClassificationHistory(ctx, &model.ClassificationHistory{
		LineID: lines[0].ID, PreviousCode: "610910", NewCode: "610910", UserID: "reviewer",
	}))
	require.NoError(t, store.AddClassificationHistory(ctx, &model.ClassificationHistory{
		LineID: lines[1].ID, PreviousCode: "610910", NewCode: "620342", UserID: "reviewer",
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	}))

	stats, err := store.GetReviewStats(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalLines)
	assert.Equal(t, 1, stats.FlaggedLines)
	assert.Equal(t, 1, stats.AutoLines)
	assert.Equal(t, 1, stats.ManualLines)
	assert.Equal(t, 1, stats.UnclassifiedLines)
	assert.Equal(t, 1, stats.ApprovedCount)
	assert.Equal(t, 1, stats.AdjustedCount)
	assert.Equal(t, 1, stats.ReviewedToday)
}

func TestSQLiteStorage_Transaction(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	_, lines := seedInvoice(t, store, "user-1", "Alpha")

	t.Run("rollback discards writes", func(t *testing.T) {
		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)

		require.NoError(t, tx.SetLineFlagged(ctx, lines[0].ID, true))
		require.NoError(t, tx.AddClassificationHistory(ctx, &model.ClassificationHistory{LineID: lines[0].ID, NewCode: "610910"}))
		require.NoError(t, tx.Rollback())

		line, err := store.GetInvoiceLine(ctx, lines[0].ID)
		require.NoError(t, err)
		assert.False(t, line.Flagged)

		_, total, err := store.GetClassificationHistory(ctx, model.HistoryFilter{LineID: lines[0].ID})
		require.NoError(t, err)
		assert.Zero(t, total)
	})

	t.Run("commit persists writes", func(t *testing.T) {
		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)

		require.NoError(t, tx.SetLineFlagged(ctx, lines[0].ID, true))
		require.NoError(t, tx.CreateNotification(ctx, &model.Notification{UserID: "user-1", Type: "t", Message: "m"}))
		require.NoError(t, tx.Commit())

		line, err := store.GetInvoiceLine(ctx, lines[0].ID)
		require.NoError(t, err)
		assert.True(t, line.Flagged)
	})

	t.Run("nested transactions are refused", func(t *testing.T) {
		tx, err := store.BeginTx(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback() }()

		_, err = tx.BeginTx(ctx)
		require.Error(t, err)
		require.Error(t, tx.Migrate(ctx))
	})
}

func TestSQLiteStorage_Submissions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	invoice, _ := seedInvoice(t, store, "user-1", "Alpha")

	failed := &model.Submission{InvoiceID: invoice.ID, Method: model.DeliveryFailed, Status: model.SubmissionFailed, Response: `{"error":"boom"}`}
	require.NoError(t, store.CreateSubmission(ctx, failed))

	sent := &model.Submission{
		InvoiceID:   invoice.ID,
		Method:      model.DeliveryAPI,
		Status:      model.SubmissionSubmitted,
		Response:    `{"declarationId":"D-1"}`,
		SubmittedAt: time.Now().UTC().Add(time.Second),
	}
	require.NoError(t, store.CreateSubmission(ctx, sent))
	assert.NotEqual(t, failed.ID, sent.ID)

	all, err := store.GetSubmissionsByInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, sent.ID, all[0].ID)

	checked := time.Now().UTC()
	require.NoError(t, store.UpdateSubmissionStatus(ctx, sent.ID, model.SubmissionAccepted, checked))

	got, err := store.GetSubmission(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SubmissionAccepted, got.Status)
	assert.Equal(t, model.DeliveryAPI, got.Method)
	assert.Equal(t, `{"declarationId":"D-1"}`, got.Response)
	require.NotNil(t, got.CheckedAt)
	assert.WithinDuration(t, checked, *got.CheckedAt, time.Second)

	_, err = store.GetSubmission(ctx, "missing")
	assert.True(t, errors.Is(err, common.ErrNotFound))

	err = store.CreateSubmission(ctx, &model.Submission{InvoiceID: invoice.ID, Method: "fax", Status: model.SubmissionSubmitted})
	assert.ErrorIs(t, err, ErrInvalidSubmission)
}

func TestSQLiteStorage_Notifications(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	first := &model.Notification{UserID: "user-1", Type: model.NotificationClassificationApproved, Message: "approved"}
	second := &model.Notification{UserID: "user-1", Type: model.NotificationClassificationAdjusted, Message: "adjusted"}
	require.NoError(t, store.CreateNotification(ctx, first))
	require.NoError(t, store.CreateNotification(ctx, second))
	require.NoError(t, store.CreateNotification(ctx, &model.Notification{UserID: "user-2", Type: "x", Message: "y"}))

	got, err := store.GetNotifications(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.False(t, got[0].Read)
}
