package handler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmorgan81/hairswap/internal/catalog"
	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/dmorgan81/hairswap/internal/log"
	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/dmorgan81/hairswap/internal/publish"
	"github.com/dmorgan81/hairswap/internal/store"
	"github.com/dmorgan81/hairswap/internal/transfer"
	"github.com/samber/do"
	"github.com/samber/lo"
)

// Input names the images of one invocation by key. Without a reference a
// random hairstyle is taken from the catalog, optionally from Category.
type Input struct {
	Face       string `json:"face"`
	Reference  string `json:"reference,omitempty"`
	Category   string `json:"category,omitempty"`
	Style      string `json:"style,omitempty"`
	Smoothness *int   `json:"smoothness,omitempty"`
	Enhance    bool   `json:"enhance,omitempty"`
}

type Output struct {
	ID        string         `json:"id"`
	OK        bool           `json:"ok"`
	Outcome   string         `json:"outcome"`
	Message   string         `json:"message,omitempty"`
	Reference string         `json:"reference"`
	Image     string         `json:"image,omitempty"`
	Page      string         `json:"page"`
	Stats     transfer.Stats `json:"stats"`
	Log       []string       `json:"log"`
}

type Handler struct {
	cfg          *config.Config
	orchestrator *transfer.Orchestrator
	fetcher      store.Fetcher
	catalog      catalog.Catalog
	publisher    *publish.Publisher
}

func NewHandler(i *do.Injector) (*Handler, error) {
	return &Handler{
		cfg:          do.MustInvoke[*config.Config](i),
		orchestrator: do.MustInvoke[*transfer.Orchestrator](i),
		fetcher:      do.MustInvoke[store.Fetcher](i),
		catalog:      do.MustInvoke[catalog.Catalog](i),
		publisher:    do.MustInvoke[*publish.Publisher](i),
	}, nil
}

// Handle runs one transfer and publishes its page. A transfer that fails is
// reported in the Output; only infrastructure failures return an error.
func (h *Handler) Handle(ctx context.Context, input Input) (Output, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("Handler").With("input", input)
	log.Info("handling lambda invocation")

	if input.Face == "" {
		return Output{}, errors.New("handler: face is required")
	}
	req := transfer.Request{
		Style:      model.ParseStyle(lo.Ternary(input.Style != "", input.Style, h.cfg.DefaultStyle)),
		Smoothness: lo.FromPtrOr(input.Smoothness, h.cfg.DefaultSmoothness),
		Enhance:    input.Enhance,
	}

	var err error
	if req.Face, err = h.fetch(ctx, input.Face); err != nil {
		return Output{}, err
	}
	if input.Reference == "" {
		item, err := catalog.Random(ctx, h.catalog, input.Category)
		if err != nil {
			return Output{}, err
		}
		log.Info("picked reference", "category", item.Category, "name", item.Name)
		input.Reference = item.Key
		if req.Reference, err = h.orchestrator.Load(ctx, item); err != nil {
			return Output{}, err
		}
	} else if req.Reference, err = h.fetch(ctx, input.Reference); err != nil {
		return Output{}, err
	}

	res := h.orchestrator.Run(ctx, req)
	published, err := h.publisher.Publish(ctx, res)
	if err != nil {
		return Output{}, err
	}

	out := Output{
		ID:        res.ID,
		OK:        res.OK(),
		Outcome:   res.Reason(),
		Reference: input.Reference,
		Image:     published.Image,
		Page:      published.Page,
		Stats:     res.Stats,
		Log:       res.Log.Lines(),
	}
	if res.Err != nil {
		out.Message = res.Err.Error()
	}
	return out, nil
}

func (h *Handler) fetch(ctx context.Context, key string) (transfer.Input, error) {
	r, err := h.fetcher.Fetch(ctx, key)
	if err != nil {
		return transfer.Input{}, err
	}
	defer r.Close()
	data, err := io.ReadAll(io.LimitReader(r, h.cfg.MaxFileSize+1))
	if err != nil {
		return transfer.Input{}, fmt.Errorf("handler: read %s: %w", key, err)
	}
	return transfer.FileInput(key, data), nil
}
