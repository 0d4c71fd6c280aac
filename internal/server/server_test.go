package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmorgan81/hairswap/internal/catalog"
	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/dmorgan81/hairswap/internal/history"
	"github.com/dmorgan81/hairswap/internal/metrics"
	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/dmorgan81/hairswap/internal/model/stub"
	"github.com/dmorgan81/hairswap/internal/page"
	"github.com/dmorgan81/hairswap/internal/publish"
	"github.com/dmorgan81/hairswap/internal/store"
	"github.com/dmorgan81/hairswap/internal/transfer"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	root := t.TempDir()
	cfg.OutputDir = filepath.Join(root, "output")

	cat := catalog.NewFS(filepath.Join(root, "hairstyles"), filepath.Join(root, "examples"))
	if err := cat.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	hist, err := history.Open(context.Background(), history.Memory)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { hist.Close() })

	return New(Deps{
		Config: cfg,
		Orchestrator: transfer.New(transfer.Deps{
			Handle:  model.NewHandle(&stub.Capability{}),
			Catalog: cat,
		}, transfer.DefaultOptions()),
		Catalog:   cat,
		Publisher: publish.New(&store.FileUploader{Root: cfg.OutputDir}, store.NopInvalidator{}, &page.Templator{}, hist),
		Metrics:   metrics.New(),
	})
}

func multipartBody(t *testing.T, files map[string][]byte, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile(name, name+".png")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func postTransfer(t *testing.T, h http.Handler, files map[string][]byte, fields map[string]string, accept string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, files, fields)
	req := httptest.NewRequest(http.MethodPost, "/v1/transfers", body)
	req.Header.Set("Content-Type", contentType)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestTransferJSON(t *testing.T) {
	h := newServer(t, config.Default()).Handler()
	img := encodePNG(t, 512, 512)

	rec := postTransfer(t, h, map[string][]byte{"face": img, "reference": img}, map[string]string{"style": "fidelity", "smoothness": "2"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var resp transferResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.OK || resp.Image == "" || resp.Stats.Style != model.StyleFidelity || resp.Stats.Smoothness != 2 || len(resp.Log) < 3 {
		t.Fatalf("unexpected response %+v", resp)
	}

	if rec := get(t, h, "/v1/transfers/"+resp.ID); rec.Code != http.StatusOK {
		t.Errorf("Expected the transfer in history, got %d", rec.Code)
	}
	if rec := get(t, h, "/v1/transfers/unknown"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
	if rec := get(t, h, "/"+resp.Image); rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("published image not served: %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}

	var entries []history.Entry
	rec = get(t, h, "/v1/history?limit=5")
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil || len(entries) != 1 {
		t.Errorf("history = %+v, %v", entries, err)
	}
}

func TestTransferPNG(t *testing.T) {
	h := newServer(t, config.Default()).Handler()
	img := encodePNG(t, 300, 400)

	rec := postTransfer(t, h, map[string][]byte{"face": img, "reference": img}, nil, "image/png")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("Expected a PNG, got %d %s: %s", rec.Code, rec.Header().Get("Content-Type"), rec.Body)
	}
	out, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	if b := out.Bounds(); b.Dx() != 300 || b.Dy() != 400 {
		t.Errorf("unexpected output size %s", b.Size())
	}
	if rec.Header().Get("X-Transfer-Id") == "" {
		t.Error("missing X-Transfer-Id")
	}
}

func TestTransferFailures(t *testing.T) {
	h := newServer(t, config.Default()).Handler()
	img := encodePNG(t, 512, 512)

	tests := []struct {
		name    string
		files   map[string][]byte
		fields  map[string]string
		code    int
		outcome string
	}{
		{"small reference", map[string][]byte{"face": img, "reference": encodePNG(t, 100, 100)}, nil, http.StatusUnprocessableEntity, "ImageTooSmall"},
		{"bad smoothness", map[string][]byte{"face": img, "reference": img}, map[string]string{"smoothness": "lots"}, http.StatusUnprocessableEntity, "InvalidParameter"},
		{"bad style", map[string][]byte{"face": img, "reference": img}, map[string]string{"style": "anime"}, http.StatusUnprocessableEntity, "InvalidParameter"},
		{"missing face", map[string][]byte{"reference": img}, nil, http.StatusBadRequest, ""},
		{"empty catalog", map[string][]byte{"face": img}, nil, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postTransfer(t, h, tt.files, tt.fields, "image/png")
			if rec.Code != tt.code {
				t.Fatalf("Expected %d, got %d: %s", tt.code, rec.Code, rec.Body)
			}
			if tt.outcome == "" {
				return
			}
			var resp transferResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.OK || resp.Outcome != tt.outcome || resp.Image != "" {
				t.Errorf("unexpected response %+v", resp)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 1
	h := newServer(t, cfg).Handler()
	img := encodePNG(t, 300, 300)
	files := map[string][]byte{"face": img, "reference": img}

	if rec := postTransfer(t, h, files, nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("first request: %d %s", rec.Code, rec.Body)
	}
	rec := postTransfer(t, h, files, nil, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", rec.Code)
	}
	// reads are not limited
	if rec := get(t, h, "/v1/healthz"); rec.Code != http.StatusOK {
		t.Errorf("Expected 200 from healthz, got %d", rec.Code)
	}
}

func TestReadEndpoints(t *testing.T) {
	s := newServer(t, config.Default())
	h := s.Handler()

	rec := get(t, h, "/v1/model")
	var info modelResponse
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info.Name != "stub" || info.State != "uninitialized" || info.Capacity != 1 {
		t.Errorf("unexpected model info %+v", info)
	}

	rec = get(t, h, "/v1/catalog")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"title":"Curly"`) {
		t.Errorf("catalog: %d %s", rec.Code, rec.Body)
	}
	if rec := get(t, h, "/v1/catalog/short"); rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("empty category: %d %s", rec.Code, rec.Body)
	}
	if rec := get(t, h, "/v1/catalog/bald"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for an unknown category, got %d", rec.Code)
	}
	if rec := get(t, h, "/v1/examples"); rec.Code != http.StatusOK {
		t.Errorf("examples: %d", rec.Code)
	}
	if rec := get(t, h, "/metrics"); !strings.Contains(rec.Body.String(), "hairswap_transfers_in_flight") {
		t.Errorf("metrics missing from\n%s", rec.Body)
	}
}

func TestVisitorsSweep(t *testing.T) {
	v := newVisitors(1, 1)
	now := time.Now()
	if !v.allow("a", now.Add(-time.Hour)) || !v.allow("b", now) {
		t.Fatal("Expected first requests to be allowed")
	}
	if v.allow("b", now) {
		t.Error("Expected the second request to be limited")
	}
	if n := v.sweep(now.Add(-time.Minute)); n != 1 {
		t.Errorf("Expected 1 swept visitor, got %d", n)
	}
}
