// Command hairswap runs hairstyle transfers locally and serves the HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/dmorgan81/hairswap/internal/inject"
	"github.com/dmorgan81/hairswap/internal/log"
	"github.com/samber/do"
	"github.com/spf13/cobra"
)

type app struct {
	cfg      *config.Config
	injector *do.Injector
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}
	var (
		logLevel string
		model    string
	)
	root := &cobra.Command{
		Use:          "hairswap",
		Short:        "Transfer a hairstyle from a reference photo onto a face",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if model != "" {
				cfg.Model = model
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			logger := log.NewWithOptions(os.Stderr, log.Options{Level: cfg.LogLevel, Format: "text", Time: true})
			ctx := log.NewContext(cmd.Context(), logger)
			cmd.SetContext(ctx)

			a.cfg = cfg
			a.injector = inject.Setup(ctx, cfg)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.injector.Shutdown()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&model, "model", "", "model backend (barbershop, remote, stub)")

	root.AddCommand(
		newRunCommand(a),
		newServeCommand(a),
		newCatalogCommand(a),
		newModelCommand(a),
		newHistoryCommand(a),
	)
	return root
}
