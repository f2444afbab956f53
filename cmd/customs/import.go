package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/customs-flow/internal/cli"
	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/model"
	"github.com/Veraticus/customs-flow/internal/service"
)

// invoiceDocument is the JSON shape accepted by `customs import`.
type invoiceDocument struct {
	Number  string         `json:"number" validate:"required,max=64"`
	OwnerID string         `json:"ownerId" validate:"required"`
	Lines   []lineDocument `json:"lines" validate:"required,min=1,dive"`
}

type lineDocument struct {
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Description string          `json:"description" validate:"required,max=500"`
	HSCode      string          `json:"hsCode" validate:"omitempty,numeric,min=4,max=10"`
	Quantity    int             `json:"quantity" validate:"gt=0"`
}

var documentValidator = validator.New(validator.WithRequiredStructEnabled())

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an invoice and its lines from a JSON file",
		Long: `Import an invoice so its lines can be classified and submitted.

The file holds one invoice:

  {
    "number": "INV-1001",
    "ownerId": "user-42",
    "lines": [
      {"description": "Men's cotton T-shirt", "quantity": 10, "unitPrice": "4.50"}
    ]
  }

Lines may carry a known "hsCode"; those are stored as manual classifications.`,
		RunE: runImport,
	}

	cmd.Flags().StringP("file", "f", "", "Invoice JSON file")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runImport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	path, _ := cmd.Flags().GetString("file")

	doc, err := readInvoiceDocument(path)
	if err != nil {
		return err
	}

	return withApp(ctx, func(a *app) error {
		invoice, lines, err := importInvoice(ctx, a.storage, doc)
		if err != nil {
			return err
		}

		a.logger.Info("Imported invoice",
			"invoice_id", invoice.ID,
			"number", invoice.Number,
			"lines", len(lines))
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
			fmt.Sprintf("Imported invoice %s (%s) with %d lines", invoice.Number, invoice.ID, len(lines))))
		return nil
	})
}

func readInvoiceDocument(path string) (*invoiceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewUserError("Could not read the invoice file", err)
	}
	return parseInvoiceDocument(data)
}

func parseInvoiceDocument(data []byte) (*invoiceDocument, error) {
	var doc invoiceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: invoice file: %w", common.ErrInvalidInput, err)
	}

	if err := documentValidator.Struct(&doc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%w: %s failed %q", common.ErrInvalidInput, verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidInput, err)
	}

	for i, line := range doc.Lines {
		if line.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: line %d has a negative unit price", common.ErrInvalidInput, i+1)
		}
	}
	return &doc, nil
}

// importInvoice stores the invoice and all of its lines atomically.
func importInvoice(ctx context.Context, store service.Storage, doc *invoiceDocument) (*model.Invoice, []model.InvoiceLine, error) {
	tx, err := store.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	invoice := &model.Invoice{Number: doc.Number, OwnerID: doc.OwnerID}
	if err := tx.CreateInvoice(ctx, invoice); err != nil {
		return nil, nil, err
	}

	lines := make([]model.InvoiceLine, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		line := model.InvoiceLine{
			InvoiceID:   invoice.ID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		}
		if l.HSCode != "" {
			line.HSCode = l.HSCode
			line.Method = model.MethodManual
			line.Confidence = 1
		}
		if err := tx.CreateInvoiceLine(ctx, &line); err != nil {
			return nil, nil, err
		}
		lines = append(lines, line)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit import: %w", err)
	}
	return invoice, lines, nil
}
