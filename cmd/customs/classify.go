package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/customs-flow/internal/classify"
	"github.com/Veraticus/customs-flow/internal/cli"
	"github.com/Veraticus/customs-flow/internal/common"
	"github.com/Veraticus/customs-flow/internal/engine"
	"github.com/Veraticus/customs-flow/internal/model"
)

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <description>",
		Short: "Classify a single item description",
		Long: `Look up the HS code for one item description.

Cached answers are reused. Results below the confidence threshold are
flagged for review.

Example:
  customs classify "Men's knitted cotton T-shirt"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			description := strings.Join(args, " ")

			return withApp(ctx, func(a *app) error {
				classifier, err := a.classifier(ctx)
				if err != nil {
					return err
				}

				result, err := classifier.Classify(ctx, description)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if result.IsFailed() {
					fmt.Fprintln(out, cli.FormatError("Classification failed: "+result.Error))
					return nil
				}

				body := fmt.Sprintf("HS code:    %s\nConfidence: %s\nMethod:     %s",
					result.HSCode,
					cli.FormatConfidence(result.Confidence, classifier.Threshold()),
					result.Method)
				if result.Flagged {
					body += "\n" + cli.FormatFlag(true) + " " + cli.WarningStyle.Render("Below threshold: needs review")
				}
				fmt.Fprintln(out, cli.RenderBox(cli.Truncate(result.Description, 60), body))
				return nil
			})
		},
	}
}

func classifyInvoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify-invoice <invoice-id>",
		Short: "Classify every unclassified line of an invoice",
		Long: `Classify an invoice's lines and write the HS codes back.

Manually reviewed lines are never touched. Lines that fail to classify
keep their previous state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reclassify, _ := cmd.Flags().GetBool("reclassify")

			return withApp(ctx, func(a *app) error {
				eng, err := a.engine(ctx)
				if err != nil {
					return err
				}

				lines, err := a.storage.GetInvoiceLines(ctx, args[0])
				if err != nil {
					return err
				}
				bar := cli.NewProgress(cmd.ErrOrStderr(), len(lines), "classifying")

				summary, err := eng.ClassifyInvoice(ctx, args[0], engine.Options{
					Progress:   cli.Tracker(bar),
					Reclassify: reclassify,
				})
				_ = bar.Finish()
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Classified %d of %d lines", summary.Classified, summary.Total)))
				if summary.Flagged > 0 {
					fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d lines flagged for review: customs review list", summary.Flagged)))
				}
				if summary.Failed > 0 {
					fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%d lines could not be classified", summary.Failed)))
				}
				if summary.Skipped > 0 {
					fmt.Fprintln(out, cli.SubtleStyle.Render(fmt.Sprintf("%d lines skipped (already classified)", summary.Skipped)))
				}
				return nil
			})
		},
	}

	cmd.Flags().Bool("reclassify", false, "Also reclassify lines with an automatic code")

	return cmd
}

func bulkClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bulk-classify",
		Short: "Classify a JSON list of descriptions",
		Long: `Classify many descriptions at once.

The input is a JSON array of {"id": "...", "description": "..."} objects.
Results are written as a JSON array in the same order.

Example:
  customs bulk-classify --file items.json --output results.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			inputPath, _ := cmd.Flags().GetString("file")
			outputPath, _ := cmd.Flags().GetString("output")

			data, err := os.ReadFile(inputPath)
			if err != nil {
				return common.NewUserError("Could not read the items file", err)
			}
			items, err := classify.ParseItems(data)
			if err != nil {
				return err
			}

			return withApp(ctx, func(a *app) error {
				bulk, err := a.bulk(ctx)
				if err != nil {
					return err
				}

				bar := cli.NewProgress(cmd.ErrOrStderr(), len(items), "classifying")
				results, err := bulk.Classify(ctx, items, cli.Tracker(bar))
				_ = bar.Finish()
				if err != nil {
					return err
				}

				encoded, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to encode results: %w", err)
				}

				if outputPath == "" {
					fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
				} else if err := os.WriteFile(outputPath, append(encoded, '\n'), 0o600); err != nil {
					return fmt.Errorf("failed to write results: %w", err)
				}

				flagged, failed := countOutcomes(results)
				a.logger.Info("Bulk classification complete",
					"items", len(results),
					"flagged", flagged,
					"failed", failed)
				return nil
			})
		},
	}

	cmd.Flags().StringP("file", "f", "", "JSON file with the items to classify")
	cmd.Flags().StringP("output", "o", "", "write results here instead of stdout")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func countOutcomes(results []model.BulkResult) (flagged, failed int) {
	for _, r := range results {
		if r.Flagged {
			flagged++
		}
		if r.IsFailed() {
			failed++
		}
	}
	return flagged, failed
}
