package remote

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmorgan81/hairswap/internal/asset"
	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/dmorgan81/hairswap/internal/model"
)

type staticFetcher map[string]string

func (f staticFetcher) Fetch(_ context.Context, path string) (string, error) {
	v, ok := f[path]
	if !ok {
		return "", errors.New("missing " + path)
	}
	return v, nil
}

func (f staticFetcher) FetchAll(context.Context, string) ([]string, error) { return nil, nil }

func sample() *asset.Asset {
	return asset.New(image.NewNRGBA(image.Rect(0, 0, 8, 8)))
}

func TestSetupWaitsForHealthy(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New(config.Remote{URL: srv.URL, KeyParam: "/hairswap/key", SetupTimeout: 30 * time.Second}, srv.Client(), staticFetcher{"/hairswap/key": "s3cret"})
	if err := m.Setup(context.Background()); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("Expected 3 health checks, got %d", got)
	}
}

func TestSetupUnauthorizedIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	m := New(config.Remote{URL: srv.URL}, srv.Client(), staticFetcher{})
	if err := m.Setup(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected a single attempt, got %d", calls.Load())
	}
}

func TestTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.FormValue("style") != "fidelity" || r.FormValue("smoothness") != "2" {
			http.Error(w, "bad params", http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("reference"); err != nil {
			http.Error(w, "no reference", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_ = png.Encode(w, image.NewNRGBA(image.Rect(0, 0, 20, 10)))
	}))
	defer srv.Close()

	m := New(config.Remote{URL: srv.URL + "/"}, srv.Client(), staticFetcher{})
	out, err := m.Transfer(context.Background(), sample(), sample(), model.Params{Style: model.StyleFidelity, Smoothness: 2})
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if out.Width() != 20 || out.Height() != 10 {
		t.Errorf("unexpected output %s", out.Dimensions())
	}
}

func TestTransferStatusKinds(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   *model.Error
	}{
		{http.StatusUnprocessableEntity, `{"error":"no face detected in reference image"}`, model.ErrAlignmentFailure},
		{http.StatusServiceUnavailable, "busy", model.ErrResourceExhausted},
		{http.StatusInsufficientStorage, "", model.ErrResourceExhausted},
		{http.StatusGatewayTimeout, "", model.ErrProcessingTimeout},
		{http.StatusInternalServerError, "boom", model.ErrUnknownFailure},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			m := New(config.Remote{URL: srv.URL}, srv.Client(), staticFetcher{})
			_, err := m.Transfer(context.Background(), sample(), sample(), model.Params{Style: model.StyleRealistic, Smoothness: 5})
			if !errors.Is(err, tc.want) {
				t.Fatalf("Expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestTransferAlignmentMessage(t *testing.T) {
	err := statusError(http.StatusUnprocessableEntity, []byte(`{"error":"no face detected in reference image"}`))
	if !bytes.Contains([]byte(err.Error()), []byte("AlignmentFailure: no face detected in reference image")) {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestTransferCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	m := New(config.Remote{URL: srv.URL}, srv.Client(), staticFetcher{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := m.Transfer(ctx, sample(), sample(), model.Params{Style: model.StyleRealistic, Smoothness: 5})
	if !errors.Is(err, model.ErrProcessingTimeout) {
		t.Fatalf("Expected ProcessingTimeout, got %v", err)
	}
}
