package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/customs-flow/internal/cache"
	"github.com/Veraticus/customs-flow/internal/cli"
)

func cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached classification results",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge <description>",
		Short: "Forget the cached classification of a description",
		Long: `Remove the cached answer for a description so the next
classification asks the remote classifier again.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			description := strings.Join(args, " ")

			return withApp(ctx, func(a *app) error {
				rc, err := a.resultCache(ctx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if rc.Delete(ctx, cache.Key(description)) {
					fmt.Fprintln(out, cli.FormatSuccess("Cached classification removed"))
				} else {
					fmt.Fprintln(out, cli.SubtleStyle.Render("Nothing cached for that description"))
				}
				return nil
			})
		},
	})

	return cmd
}
