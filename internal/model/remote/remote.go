// Package remote talks to a hairstyle transfer model served over HTTP.
//
// The server exposes GET /healthz, which answers 200 once the model is
// loaded, and POST /v1/transfer, which takes a multipart form with face and
// reference PNG files plus style and smoothness fields and answers with the
// output PNG.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmorgan81/hairswap/internal/asset"
	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/dmorgan81/hairswap/internal/param"
	"github.com/go-logr/logr"
	"github.com/samber/do"
)

const maxOutputSize = 64 << 20

type Model struct {
	cfg     config.Remote
	client  *http.Client
	fetcher param.Fetcher
	key     string
}

func New(cfg config.Remote, client *http.Client, fetcher param.Fetcher) *Model {
	if cfg.SetupTimeout <= 0 {
		cfg.SetupTimeout = 5 * time.Minute
	}
	return &Model{cfg: cfg, client: client, fetcher: fetcher, key: cfg.Key}
}

func NewModel(i *do.Injector) (model.Capability, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return New(cfg.Remote, do.MustInvoke[*http.Client](i), do.MustInvoke[param.Fetcher](i)), nil
}

func (m *Model) Info() model.Info {
	return model.Info{Name: "remote", Description: "hairstyle transfer served at " + m.cfg.URL}
}

// Setup resolves the API key and waits for the server to report healthy.
func (m *Model) Setup(ctx context.Context) error {
	log := logr.FromContextOrDiscard(ctx).WithName("remote").WithValues("url", m.cfg.URL)

	if m.key == "" && m.cfg.KeyParam != "" {
		key, err := m.fetcher.Fetch(ctx, m.cfg.KeyParam)
		if err != nil {
			return fmt.Errorf("fetch api key: %w", err)
		}
		m.key = key
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = m.cfg.SetupTimeout

	return backoff.RetryNotify(func() error {
		return m.healthy(ctx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		log.Info("model not ready", "error", err.Error(), "retry-in", next.String())
	})
}

func (m *Model) healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url("/healthz"), nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	m.authorize(req)
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return backoff.Permanent(fmt.Errorf("health check: %s", resp.Status))
	default:
		return fmt.Errorf("health check: %s", resp.Status)
	}
}

func (m *Model) Transfer(ctx context.Context, face, reference *asset.Asset, p model.Params) (*asset.Asset, error) {
	log := logr.FromContextOrDiscard(ctx).WithName("remote")

	body, contentType, err := encodeForm(face, reference, p)
	if err != nil {
		return nil, model.NewError(model.UnknownFailure, "cannot encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url("/v1/transfer"), body)
	if err != nil {
		return nil, model.NewError(model.UnknownFailure, "cannot build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "image/png")
	m.authorize(req)

	log.Info("calling remote model", "style", p.Style, "smoothness", p.Smoothness)
	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, model.NewError(model.ProcessingTimeout, "remote call cancelled", err)
		}
		return nil, model.NewError(model.UnknownFailure, "remote call failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxOutputSize))
	if err != nil {
		return nil, model.NewError(model.UnknownFailure, "cannot read response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, data)
	}
	out, err := asset.Decode("output.png", data)
	if err != nil {
		return nil, model.NewError(model.UnknownFailure, "cannot decode output image", err)
	}
	return out, nil
}

func (m *Model) url(path string) string {
	return strings.TrimRight(m.cfg.URL, "/") + path
}

func (m *Model) authorize(req *http.Request) {
	if m.key != "" {
		req.Header.Set("Authorization", "Bearer "+m.key)
	}
}

func encodeForm(face, reference *asset.Asset, p model.Params) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, a := range map[string]*asset.Asset{"face": face, "reference": reference} {
		part, err := w.CreateFormFile(name, name+".png")
		if err != nil {
			return nil, "", err
		}
		if err := a.EncodePNG(part); err != nil {
			return nil, "", err
		}
	}
	if err := w.WriteField("style", string(p.Style)); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("smoothness", strconv.Itoa(p.Smoothness)); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

type errorBody struct {
	Error string `json:"error"`
}

func statusError(status int, body []byte) *model.Error {
	var eb errorBody
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error != "" {
		msg = eb.Error
	}
	cause := errors.New(http.StatusText(status))
	switch status {
	case http.StatusUnprocessableEntity:
		return model.NewError(model.AlignmentFailure, msg, cause)
	case http.StatusServiceUnavailable, http.StatusInsufficientStorage, http.StatusTooManyRequests:
		return model.NewError(model.ResourceExhausted, msg, cause)
	case http.StatusGatewayTimeout:
		return model.NewError(model.ProcessingTimeout, msg, cause)
	default:
		return model.NewError(model.UnknownFailure, fmt.Sprintf("status %d: %s", status, msg), cause)
	}
}
