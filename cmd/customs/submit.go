package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/customs-flow/internal/cli"
	"github.com/Veraticus/customs-flow/internal/common"
)

func submitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <invoice-id>",
		Short: "Deliver an invoice's customs declaration",
		Long: `Send a rendered declaration to the customs authority.

The customs API is tried first with retries. If it stays unavailable the
declaration is uploaded over SFTP instead. Invoices that are already
submitted or approved are refused unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			invoiceID := args[0]
			document, _ := cmd.Flags().GetString("document")
			force, _ := cmd.Flags().GetBool("force")

			return withApp(ctx, func(a *app) error {
				invoice, err := a.storage.GetInvoice(ctx, invoiceID)
				if err != nil {
					return err
				}
				if !invoice.CanSubmit() && !force {
					return common.NewUserError(
						fmt.Sprintf("Invoice %s is already %s; use --force to send it again", invoice.Number, invoice.Status),
						common.ErrInvalidState)
				}

				out := cmd.OutOrStdout()
				if flagged := countFlagged(a, cmd, invoiceID); flagged > 0 {
					fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d lines still await review", flagged)))
				}

				result, err := a.orchestrator().Submit(ctx, invoiceID, document)
				switch {
				case errors.Is(err, common.ErrLocalStateInconsistent):
					fmt.Fprintln(out, cli.FormatWarning(result.Message))
					if result.Submission == nil {
						fmt.Fprintln(out, cli.FormatError(
							"The declaration was delivered but could not be recorded locally; do not resubmit before confirming with the customs authority"))
						return err
					}
					fmt.Fprintln(out, cli.FormatError(
						"The invoice status could not be updated; run `customs status "+result.Submission.ID+"` to repair it"))
					return err
				case err != nil && result != nil:
					fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s (submission %s)", result.Message, result.Submission.ID)))
					return err
				case err != nil:
					return err
				}

				fmt.Fprintln(out, cli.FormatSuccess(result.Message))
				fmt.Fprintln(out, cli.SubtleStyle.Render("Submission "+result.Submission.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringP("document", "d", "", "rendered declaration file")
	cmd.Flags().Bool("force", false, "resubmit even if the invoice was already submitted")
	_ = cmd.MarkFlagRequired("document")

	return cmd
}

// countFlagged returns how many of the invoice's lines are flagged. Lookup
// failures only disable the warning.
func countFlagged(a *app, cmd *cobra.Command, invoiceID string) int {
	lines, err := a.storage.GetInvoiceLines(cmd.Context(), invoiceID)
	if err != nil {
		a.logger.Debug("Could not count flagged lines", "invoice_id", invoiceID, "error", err)
		return 0
	}
	n := 0
	for _, line := range lines {
		if line.Flagged {
			n++
		}
	}
	return n
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [submission-id]",
		Short: "Check a submission's status with the customs authority",
		Long: `Refresh a submission's disposition from the customs API.

When the API cannot be reached the last known status is shown. With
--invoice, every submission of that invoice is listed instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			invoiceID, _ := cmd.Flags().GetString("invoice")

			if invoiceID == "" && len(args) == 0 {
				return common.NewUserError("Give a submission id or --invoice", common.ErrInvalidInput)
			}

			return withApp(ctx, func(a *app) error {
				out := cmd.OutOrStdout()

				if invoiceID != "" {
					invoice, err := a.storage.GetInvoice(ctx, invoiceID)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Invoice %s: %s\n", invoice.Number, cli.FormatInvoiceStatus(invoice.Status))

					subs, err := a.storage.GetSubmissionsByInvoice(ctx, invoiceID)
					if err != nil {
						return err
					}
					rows := make([][]string, 0, len(subs))
					for _, s := range subs {
						rows = append(rows, []string{
							s.ID,
							s.SubmittedAt.Local().Format(time.DateTime),
							string(s.Method),
							cli.FormatSubmissionStatus(s.Status),
						})
					}
					fmt.Fprintln(out, cli.RenderTable([]string{"SUBMISSION", "SENT", "CHANNEL", "STATUS"}, rows))
					return nil
				}

				report, err := a.reconciler().CheckStatus(ctx, args[0])
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "Submission %s: %s\n", report.SubmissionID, cli.FormatSubmissionStatus(report.Status))
				if !report.Refreshed {
					fmt.Fprintln(out, cli.SubtleStyle.Render("Last known status; the customs API was not consulted or did not answer"))
				}
				if report.Repaired {
					fmt.Fprintln(out, cli.FormatSuccess("Invoice status brought up to date"))
				}
				if report.Details != "" {
					fmt.Fprintln(out, cli.SubtleStyle.Render(report.Details))
				}
				return nil
			})
		},
	}

	cmd.Flags().String("invoice", "", "list the submissions of this invoice")

	return cmd
}

func notificationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notifications <user-id>",
		Short: "List a user's review notifications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, func(a *app) error {
				notes, err := a.storage.GetNotifications(ctx, args[0])
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(notes) == 0 {
					fmt.Fprintln(out, cli.SubtleStyle.Render("No notifications"))
					return nil
				}
				rows := make([][]string, 0, len(notes))
				for _, n := range notes {
					rows = append(rows, []string{
						n.CreatedAt.Local().Format(time.DateTime),
						n.Type,
						n.Message,
					})
				}
				fmt.Fprintln(out, cli.RenderTable([]string{"WHEN", "TYPE", "MESSAGE"}, rows))
				return nil
			})
		},
	}
}
