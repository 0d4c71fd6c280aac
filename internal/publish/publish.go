// Package publish stores a finished transfer: the output PNG, its result
// page and a history row.
package publish

import (
	"context"

	"github.com/dmorgan81/hairswap/internal/history"
	"github.com/dmorgan81/hairswap/internal/log"
	"github.com/dmorgan81/hairswap/internal/page"
	"github.com/dmorgan81/hairswap/internal/store"
	"github.com/dmorgan81/hairswap/internal/transfer"
	"github.com/samber/do"
	"github.com/samber/lo"
)

// Published names the keys written for one transfer. Image is empty when the
// transfer failed.
type Published struct {
	Image string `json:"image,omitempty"`
	Page  string `json:"page"`
}

type Publisher struct {
	uploader    store.Uploader
	invalidator store.Invalidator
	templator   *page.Templator
	history     *history.Store
}

func New(u store.Uploader, inv store.Invalidator, t *page.Templator, h *history.Store) *Publisher {
	return &Publisher{uploader: u, invalidator: inv, templator: t, history: h}
}

func NewPublisher(i *do.Injector) (*Publisher, error) {
	return New(
		do.MustInvoke[store.Uploader](i),
		do.MustInvoke[store.Invalidator](i),
		do.MustInvoke[*page.Templator](i),
		do.MustInvoke[*history.Store](i),
	), nil
}

func (p *Publisher) History() *history.Store { return p.history }

// Publish uploads the page, and the output when there is one, then
// invalidates both. A history failure is logged but not returned.
func (p *Publisher) Publish(ctx context.Context, res transfer.Result) (Published, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("publish").With("id", res.ID)

	name := transfer.ResultKey(res.ID)
	params := page.ParamsFor(res, res.ID+".png")
	html, err := p.templator.Template(ctx, params)
	if err != nil {
		return Published{}, err
	}

	metadata := params.Metadata()
	uploads := []store.UploadParams{{
		Name:        name + ".html",
		Data:        html,
		ContentType: "text/html",
		Metadata:    metadata,
	}}
	if res.OK() {
		img, err := res.Output.Bytes()
		if err != nil {
			return Published{}, err
		}
		uploads = append(uploads, store.UploadParams{
			Name:        name + ".png",
			Data:        img,
			ContentType: "image/png",
			Metadata:    metadata,
		})
	}
	for _, u := range uploads {
		if err := p.uploader.Upload(ctx, u); err != nil {
			return Published{}, err
		}
	}
	paths := lo.Map(uploads, func(u store.UploadParams, _ int) string { return "/" + u.Name })
	if err := p.invalidator.Invalidate(ctx, paths); err != nil {
		return Published{}, err
	}

	published := Published{
		Image: lo.Ternary(res.OK(), name+".png", ""),
		Page:  name + ".html",
	}
	if p.history != nil {
		if err := p.history.Record(ctx, history.FromResult(res, published.Image)); err != nil {
			log.Error("recording history failed", "error", err)
		}
	}
	log.Info("published", "page", published.Page, "image", published.Image)
	return published, nil
}
