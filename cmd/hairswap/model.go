package main

import (
	"fmt"

	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/samber/do"
	"github.com/spf13/cobra"
)

func newModelCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect or prepare the model backend",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "info",
		Short: "Describe the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h := do.MustInvoke[*model.Handle](a.injector)
			info := h.Info()
			fmt.Fprintf(cmd.OutOrStdout(), "name: %s\ndescription: %s\nstate: %s\n", info.Name, info.Description, h.State())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "setup",
		Short: "Install and initialize the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h := do.MustInvoke[*model.Handle](a.injector)
			if err := spin("setting up "+h.Info().Name, func() error { return h.Setup(cmd.Context()) }); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", h.Info().Name, h.State())
			return nil
		},
	})
	return cmd
}
