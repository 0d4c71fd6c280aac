package main

import (
	"errors"
	"fmt"
	"slices"
	"text/tabwriter"

	"github.com/dmorgan81/hairswap/internal/catalog"
	"github.com/samber/do"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newCatalogCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the hairstyle catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default category directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, ok := do.MustInvoke[catalog.Catalog](a.injector).(*catalog.FS)
			if !ok {
				return errors.New("only a local catalog can be initialized")
			}
			return fs.Init(cmd.Context())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list [category]",
		Short: "List categories, or the hairstyles in one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := do.MustInvoke[catalog.Catalog](a.injector)
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				cats, err := c.Categories(ctx)
				if err != nil {
					return err
				}
				for _, cat := range cats {
					fmt.Fprintln(out, cat)
				}
				return nil
			}
			items, err := c.Items(ctx, args[0])
			if err != nil {
				return err
			}
			for _, item := range items {
				fmt.Fprintf(out, "%s\t%s\n", item.Name, item.Key)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count hairstyles per category and the example pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := catalog.Collect(cmd.Context(), do.MustInvoke[catalog.Catalog](a.injector))
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			names := lo.Keys(stats.PerCategory)
			slices.Sort(names)
			for _, name := range names {
				fmt.Fprintf(w, "%s\t%d\n", catalog.Title(name), stats.PerCategory[name])
			}
			fmt.Fprintf(w, "\t\nCategories\t%d\nHairstyles\t%d\nExamples\t%d\n", stats.Categories, stats.Hairstyles, stats.Examples)
			return w.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "examples",
		Short: "List the bundled face/hair pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := do.MustInvoke[catalog.Catalog](a.injector).Examples(cmd.Context())
			if err != nil {
				return err
			}
			for i, p := range pairs {
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n", i+1, p.Name, p.Face.Key, p.Hair.Key)
			}
			return nil
		},
	})
	return cmd
}
