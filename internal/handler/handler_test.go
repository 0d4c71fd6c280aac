package handler

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmorgan81/hairswap/internal/catalog"
	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/dmorgan81/hairswap/internal/history"
	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/dmorgan81/hairswap/internal/model/stub"
	"github.com/dmorgan81/hairswap/internal/page"
	"github.com/dmorgan81/hairswap/internal/publish"
	"github.com/dmorgan81/hairswap/internal/store"
	"github.com/dmorgan81/hairswap/internal/transfer"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

type recordingInvalidator struct {
	paths []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, paths []string) error {
	r.paths = append(r.paths, paths...)
	return nil
}

func newHandler(t *testing.T, c *stub.Capability) (*Handler, string, *recordingInvalidator) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.OutputDir = filepath.Join(root, "output")

	writePNG(t, filepath.Join(root, "inputs", "face.png"), 300, 300)
	writePNG(t, filepath.Join(root, "inputs", "tiny.png"), 64, 64)
	writePNG(t, filepath.Join(root, "hairstyles", "curly", "afro.png"), 400, 300)

	cat := catalog.NewFS(filepath.Join(root, "hairstyles"), filepath.Join(root, "examples"))
	hist, err := history.Open(context.Background(), history.Memory)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { hist.Close() })

	inv := &recordingInvalidator{}
	return &Handler{
		cfg: cfg,
		orchestrator: transfer.New(transfer.Deps{
			Handle:  model.NewHandle(c),
			Catalog: cat,
		}, transfer.DefaultOptions()),
		fetcher:   &store.FileFetcher{Root: filepath.Join(root, "inputs")},
		catalog:   cat,
		publisher: publish.New(&store.FileUploader{Root: cfg.OutputDir}, inv, &page.Templator{}, hist),
	}, cfg.OutputDir, inv
}

func TestHandleRandomReference(t *testing.T) {
	h, out, inv := newHandler(t, &stub.Capability{})
	smooth := 2

	res, err := h.Handle(context.Background(), Input{Face: "face.png", Category: "curly", Smoothness: &smooth})
	if err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Outcome != "ok" {
		t.Fatalf("Expected success, got %s: %s", res.Outcome, res.Message)
	}
	if res.Reference == "" || filepath.Base(res.Reference) != "afro.png" {
		t.Errorf("Expected the curly reference, got %q", res.Reference)
	}
	if res.Stats.Smoothness != 2 || res.Stats.Style != model.StyleRealistic {
		t.Errorf("defaults not applied: %+v", res.Stats)
	}
	for _, name := range []string{res.Image, res.Page} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("Expected %s to be published: %v", name, err)
		}
	}
	if len(inv.paths) != 2 {
		t.Errorf("Expected 2 invalidated paths, got %v", inv.paths)
	}

	e, err := h.publisher.History().Get(context.Background(), res.ID)
	if err != nil || e.Key != res.Image {
		t.Errorf("history entry %+v, %v", e, err)
	}
}

func TestHandleFailedTransfer(t *testing.T) {
	h, out, inv := newHandler(t, &stub.Capability{})

	res, err := h.Handle(context.Background(), Input{Face: "tiny.png", Reference: "face.png"})
	if err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Outcome != "ImageTooSmall" || res.Image != "" || len(res.Log) == 0 {
		t.Fatalf("unexpected output %+v", res)
	}
	if _, err := os.Stat(filepath.Join(out, res.Page)); err != nil {
		t.Errorf("Expected the failure page to be published: %v", err)
	}
	if len(inv.paths) != 1 {
		t.Errorf("Expected only the page to be invalidated, got %v", inv.paths)
	}
}

func TestHandleMissingInput(t *testing.T) {
	h, _, _ := newHandler(t, &stub.Capability{})
	if _, err := h.Handle(context.Background(), Input{}); err == nil {
		t.Error("Expected an error without a face")
	}
	if _, err := h.Handle(context.Background(), Input{Face: "nope.png", Reference: "face.png"}); err == nil {
		t.Error("Expected an error for a missing face")
	}
}
