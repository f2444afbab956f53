package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/customs-flow/internal/cli"
	"github.com/Veraticus/customs-flow/internal/model"
	"github.com/Veraticus/customs-flow/internal/review"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work the queue of flagged lines",
		Long: `Review low-confidence classifications.

Approving keeps the suggested code; adjusting replaces it. Both record an
audit history entry and notify the invoice owner.`,
	}

	cmd.AddCommand(reviewListCmd())
	cmd.AddCommand(reviewShowCmd())
	cmd.AddCommand(reviewApproveCmd())
	cmd.AddCommand(reviewAdjustCmd())
	cmd.AddCommand(reviewStatsCmd())
	cmd.AddCommand(reviewHistoryCmd())

	return cmd
}

func reviewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List flagged lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sortBy, _ := cmd.Flags().GetString("sort")
			desc, _ := cmd.Flags().GetBool("desc")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			order := model.SortAsc
			if desc {
				order = model.SortDesc
			}

			return withApp(ctx, func(a *app) error {
				page, err := a.review().GetFlaggedItems(ctx, model.FlaggedFilter{
					SortBy:    sortBy,
					SortOrder: order,
					Page:      model.Page{Limit: limit, Offset: offset},
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if page.Total == 0 {
					fmt.Fprintln(out, cli.FormatSuccess("Nothing to review"))
					return nil
				}

				threshold := a.cfg.Classification.ConfidenceThreshold
				rows := make([][]string, 0, len(page.Items))
				for _, item := range page.Items {
					rows = append(rows, []string{
						item.ID,
						item.InvoiceNumber,
						cli.Truncate(item.Description, 40),
						cli.FormatHSCode(item.HSCode),
						cli.FormatConfidence(item.Confidence, threshold),
						string(item.Method),
					})
				}

				fmt.Fprintln(out, cli.FormatTitle("Review queue"))
				fmt.Fprintln(out, cli.RenderTable(
					[]string{"LINE", "INVOICE", "DESCRIPTION", "HS CODE", "CONF", "METHOD"}, rows))
				fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("Showing %d-%d of %d",
					page.Offset+1, page.Offset+len(page.Items), page.Total)))
				return nil
			})
		},
	}

	cmd.Flags().String("sort", "created_at", "sort by created_at, description, confidence, hs_code or invoice_number")
	cmd.Flags().Bool("desc", false, "sort descending")
	cmd.Flags().Int("limit", model.DefaultPageLimit, "page size")
	cmd.Flags().Int("offset", 0, "rows to skip")

	return cmd
}

func reviewShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <line-id>",
		Short: "Show one flagged line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, func(a *app) error {
				item, err := a.review().GetFlaggedItemByID(ctx, args[0])
				if err != nil {
					return err
				}

				body := fmt.Sprintf("Invoice:     %s (owner %s)\nQuantity:    %d x %s = %s\nHS code:     %s\nConfidence:  %s\nMethod:      %s",
					item.InvoiceNumber, item.OwnerID,
					item.Quantity, item.UnitPrice.StringFixed(2), item.Total().StringFixed(2),
					cli.FormatHSCode(item.HSCode),
					cli.FormatConfidence(item.Confidence, a.cfg.Classification.ConfidenceThreshold),
					item.Method)
				fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(item.Description, body))
				return nil
			})
		},
	}
}

func reviewApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <line-id>",
		Short: "Accept the suggested HS code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			user, _ := cmd.Flags().GetString("user")
			comment, _ := cmd.Flags().GetString("comment")

			return withApp(ctx, func(a *app) error {
				outcome, err := a.review().Approve(ctx, args[0], user, comment)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
					fmt.Sprintf("Approved %s for line %s", outcome.Line.HSCode, outcome.Line.ID)))
				return nil
			})
		},
	}

	cmd.Flags().String("user", "", "reviewer id")
	cmd.Flags().String("comment", "", "review comment")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func reviewAdjustCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "adjust <line-id> <hs-code>",
		Short: "Replace a line's HS code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			user, _ := cmd.Flags().GetString("user")
			comment, _ := cmd.Flags().GetString("comment")

			return withApp(ctx, func(a *app) error {
				outcome, err := a.review().Adjust(ctx, review.AdjustRequest{
					LineID:  args[0],
					HSCode:  args[1],
					UserID:  user,
					Comment: comment,
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(outcome.History.Comment))
				return nil
			})
		},
	}

	cmd.Flags().String("user", "", "reviewer id")
	cmd.Flags().String("comment", "", "review comment")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func reviewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the review queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withApp(ctx, func(a *app) error {
				stats, err := a.review().GetReviewStats(ctx)
				if err != nil {
					return err
				}

				rows := [][]string{
					{"Total lines", fmt.Sprint(stats.TotalLines)},
					{"Flagged", fmt.Sprint(stats.FlaggedLines)},
					{"Automatic", fmt.Sprint(stats.AutoLines)},
					{"Manual", fmt.Sprint(stats.ManualLines)},
					{"Failed", fmt.Sprint(stats.FailedLines)},
					{"Unclassified", fmt.Sprint(stats.UnclassifiedLines)},
					{"Approved", fmt.Sprint(stats.ApprovedCount)},
					{"Adjusted", fmt.Sprint(stats.AdjustedCount)},
					{"Reviewed today", fmt.Sprint(stats.ReviewedToday)},
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, cli.FormatTitle("Review statistics"))
				fmt.Fprintln(out, cli.RenderTable([]string{"METRIC", "COUNT"}, rows))
				return nil
			})
		},
	}
}

func reviewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the classification audit trail",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			lineID, _ := cmd.Flags().GetString("line")
			userID, _ := cmd.Flags().GetString("user")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			return withApp(ctx, func(a *app) error {
				page, err := a.review().GetReviewHistory(ctx, model.HistoryFilter{
					LineID:    lineID,
					UserID:    userID,
					SortOrder: model.SortDesc,
					Page:      model.Page{Limit: limit, Offset: offset},
				})
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(page.Items))
				for _, h := range page.Items {
					user := h.UserID
					if h.IsAutomated() {
						user = cli.SubtleStyle.Render("system")
					}
					rows = append(rows, []string{
						h.CreatedAt.Local().Format(time.DateTime),
						h.LineID,
						cli.FormatHSCode(h.PreviousCode),
						h.NewCode,
						user,
						cli.Truncate(h.Comment, 50),
					})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, cli.RenderTable(
					[]string{"WHEN", "LINE", "FROM", "TO", "BY", "COMMENT"}, rows))
				fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("%d entries", page.Total)))
				return nil
			})
		},
	}

	cmd.Flags().String("line", "", "only entries for this line")
	cmd.Flags().String("user", "", "only entries by this reviewer")
	cmd.Flags().Int("limit", model.DefaultPageLimit, "page size")
	cmd.Flags().Int("offset", 0, "rows to skip")

	return cmd
}
