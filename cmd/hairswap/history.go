package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dmorgan81/hairswap/internal/history"
	"github.com/samber/do"
	"github.com/spf13/cobra"
)

func newHistoryCommand(a *app) *cobra.Command {
	var (
		limit   int
		summary bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent transfers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store := do.MustInvoke[*history.Store](a.injector)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

			if summary {
				counts, err := store.Summary(ctx)
				if err != nil {
					return err
				}
				for outcome, n := range counts {
					fmt.Fprintf(w, "%s\t%d\n", outcome, n)
				}
				return w.Flush()
			}

			entries, err := store.Recent(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "ID\tTIME\tSTYLE\tSMOOTH\tOUTCOME\tDURATION")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					e.ID, e.Time.Local().Format(time.DateTime), e.Style, e.Smoothness, e.Outcome, e.Duration.Round(time.Millisecond))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultLimit, "number of transfers to show")
	cmd.Flags().BoolVar(&summary, "summary", false, "count transfers per outcome instead")
	return cmd
}
