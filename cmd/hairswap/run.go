package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dmorgan81/hairswap/internal/catalog"
	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/dmorgan81/hairswap/internal/publish"
	"github.com/dmorgan81/hairswap/internal/transfer"
	"github.com/samber/do"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type runOptions struct {
	face       string
	reference  string
	category   string
	example    string
	style      string
	smoothness int
	enhance    bool
	out        string
	publish    bool
}

func newRunCommand(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one transfer and write the result as PNG",
		Long: `Run one transfer. Without --reference a random hairstyle is taken from
the catalog. --example runs one of the bundled face/hair pairs instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("smoothness") {
				opts.smoothness = a.cfg.DefaultSmoothness
			}
			if opts.style == "" {
				opts.style = a.cfg.DefaultStyle
			}
			return runTransfer(cmd, a, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.face, "face", "", "face image (PNG or JPEG)")
	f.StringVar(&opts.reference, "reference", "", "hairstyle reference image")
	f.StringVar(&opts.category, "category", "", "catalog category to pick a random reference from")
	f.StringVar(&opts.example, "example", "", "name or number of a bundled example pair")
	f.StringVar(&opts.style, "style", "", "realistic or fidelity")
	f.IntVar(&opts.smoothness, "smoothness", 0, fmt.Sprintf("blending smoothness, %d to %d", model.MinSmoothness, model.MaxSmoothness))
	f.BoolVar(&opts.enhance, "enhance", false, "apply the output enhancement pass")
	f.StringVarP(&opts.out, "out", "o", "result.png", "where to write the output")
	f.BoolVar(&opts.publish, "publish", false, "publish the result page and record it in history")
	cmd.MarkFlagsMutuallyExclusive("example", "face")
	cmd.MarkFlagsMutuallyExclusive("example", "reference")
	return cmd
}

func runTransfer(cmd *cobra.Command, a *app, opts runOptions) error {
	ctx := cmd.Context()
	o := do.MustInvoke[*transfer.Orchestrator](a.injector)

	req := transfer.Request{
		Style:      model.ParseStyle(opts.style),
		Smoothness: opts.smoothness,
		Enhance:    opts.enhance,
	}
	var err error
	switch {
	case opts.example != "":
		pair, err := findExample(ctx, o, opts.example)
		if err != nil {
			return err
		}
		if req.Face, req.Reference, err = o.LoadExample(ctx, pair); err != nil {
			return err
		}
	case opts.face == "":
		return errors.New("--face or --example is required")
	default:
		if req.Face, err = readInput(opts.face); err != nil {
			return err
		}
		if opts.reference != "" {
			req.Reference, err = readInput(opts.reference)
		} else {
			req.Reference, err = randomReference(cmd, a, o, opts.category)
		}
		if err != nil {
			return err
		}
	}

	res := spin("transferring", func() transfer.Result { return o.Run(ctx, req) })
	for _, line := range res.Log.Lines() {
		fmt.Fprintln(cmd.ErrOrStderr(), line)
	}

	if opts.publish {
		published, err := do.MustInvoke[*publish.Publisher](a.injector).Publish(ctx, res)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "page: %s\n", published.Page)
	}
	if !res.OK() {
		return fmt.Errorf("%s: %w", res.Reason(), res.Err)
	}

	data, err := res.Output.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.out, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s in %s\n", opts.out, res.Stats.Output, res.Stats.Duration.Round(time.Millisecond))
	return nil
}

func readInput(path string) (transfer.Input, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return transfer.Input{}, err
	}
	return transfer.FileInput(filepath.Base(path), data), nil
}

func randomReference(cmd *cobra.Command, a *app, o *transfer.Orchestrator, category string) (transfer.Input, error) {
	ctx := cmd.Context()
	item, err := catalog.Random(ctx, do.MustInvoke[catalog.Catalog](a.injector), category)
	if err != nil {
		return transfer.Input{}, err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "reference: %s/%s\n", item.Category, item.Name)
	return o.Load(ctx, item)
}

// findExample matches a pair by name, or by its 1-based position.
func findExample(ctx context.Context, o *transfer.Orchestrator, name string) (catalog.Pair, error) {
	pairs, err := o.Examples(ctx)
	if err != nil {
		return catalog.Pair{}, err
	}
	if n, err := strconv.Atoi(name); err == nil && n >= 1 && n <= len(pairs) {
		return pairs[n-1], nil
	}
	for _, p := range pairs {
		if p.Name == name {
			return p, nil
		}
	}
	return catalog.Pair{}, fmt.Errorf("no example %q among %d", name, len(pairs))
}

// spin shows a spinner on stderr while fn runs.
func spin[T any](description string, fn func() T) T {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()
	v := fn()
	close(done)
	_ = bar.Finish()
	return v
}
