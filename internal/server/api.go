package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/dmorgan81/hairswap/internal/catalog"
	"github.com/dmorgan81/hairswap/internal/history"
	"github.com/dmorgan81/hairswap/internal/log"
	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/dmorgan81/hairswap/internal/publish"
	"github.com/dmorgan81/hairswap/internal/transfer"
	"github.com/dmorgan81/hairswap/internal/validate"
	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"model":  s.orchestrator.Handle().State().String(),
	})
}

type modelResponse struct {
	model.Info
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
	Capacity int    `json:"capacity"`
	Running  int    `json:"running"`
	Waiting  int    `json:"waiting"`
}

func (s *Server) modelInfo(w http.ResponseWriter, r *http.Request) {
	h, g := s.orchestrator.Handle(), s.orchestrator.Gate()
	resp := modelResponse{
		Info:     h.Info(),
		State:    h.State().String(),
		Capacity: g.Capacity(),
		Running:  g.Running(),
		Waiting:  g.Waiting(),
	}
	if err := h.Err(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.publisher.History().Recent(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Ternary(entries == nil, []history.Entry{}, entries))
}

func (s *Server) getTransfer(w http.ResponseWriter, r *http.Request) {
	e, err := s.publisher.History().Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type category struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Count int    `json:"count"`
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	stats, err := catalog.Collect(r.Context(), s.catalog)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	cats := lo.MapToSlice(stats.PerCategory, func(name string, n int) category {
		return category{Name: name, Title: catalog.Title(name), Count: n}
	})
	slices.SortFunc(cats, func(a, b category) int { return strings.Compare(a.Name, b.Name) })
	writeJSON(w, http.StatusOK, map[string]any{"categories": cats, "stats": stats})
}

func (s *Server) items(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.Items(r.Context(), chi.URLParam(r, "category"))
	if errors.Is(err, catalog.ErrUnknownCategory) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Ternary(items == nil, []catalog.Item{}, items))
}

func (s *Server) examples(w http.ResponseWriter, r *http.Request) {
	pairs, err := s.orchestrator.Examples(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lo.Ternary(pairs == nil, []catalog.Pair{}, pairs))
}

func (s *Server) rss(w http.ResponseWriter, r *http.Request) {
	data, err := s.feed.Generate(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml")
	_, _ = w.Write(data)
}

type transferResponse struct {
	ID      string         `json:"id"`
	OK      bool           `json:"ok"`
	Outcome string         `json:"outcome"`
	Message string         `json:"message,omitempty"`
	Stats   transfer.Stats `json:"stats"`
	Log     []string       `json:"log"`
	publish.Published
}

func (s *Server) createTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := log.FromContextOrDiscard(ctx).WithGroup("transfer")

	r.Body = http.MaxBytesReader(w, r.Body, 2*s.cfg.MaxFileSize+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "expected a multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := transfer.Request{
		Style:   model.ParseStyle(lo.Ternary(r.FormValue("style") != "", r.FormValue("style"), s.cfg.DefaultStyle)),
		Enhance: lo.Contains([]string{"1", "true", "on", "yes"}, strings.ToLower(r.FormValue("enhance"))),
	}
	req.Smoothness = s.cfg.DefaultSmoothness
	if v := r.FormValue("smoothness"); v != "" {
		n, err := strconv.Atoi(v)
		// a malformed number is left to validation as out of range
		req.Smoothness = lo.Ternary(err == nil, n, -1)
	}

	var err error
	if req.Face, err = s.formFile(r, "face"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(r.MultipartForm.File["reference"]) > 0 {
		if req.Reference, err = s.formFile(r, "reference"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		item, err := catalog.Random(ctx, s.catalog, r.FormValue("category"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "no reference image given and none in the catalog: "+err.Error())
			return
		}
		if req.Reference, err = s.orchestrator.Load(ctx, item); err != nil {
			s.internalError(w, r, err)
			return
		}
	}

	res := s.orchestrator.Run(ctx, req)
	published, err := s.publisher.Publish(ctx, res)
	if err != nil {
		log.Error("publishing failed", "id", res.ID, "error", err)
	}

	if res.OK() && strings.Contains(r.Header.Get("Accept"), "image/png") {
		data, err := res.Output.Bytes()
		if err != nil {
			s.internalError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("X-Transfer-Id", res.ID)
		w.Header().Set("X-Transfer-Duration", res.Stats.Duration.String())
		_, _ = w.Write(data)
		return
	}

	resp := transferResponse{
		ID:        res.ID,
		OK:        res.OK(),
		Outcome:   res.Reason(),
		Stats:     res.Stats,
		Log:       res.Log.Lines(),
		Published: published,
	}
	if res.Err != nil {
		resp.Message = res.Err.Error()
	}
	writeJSON(w, statusFor(res.Err), resp)
}

func (s *Server) formFile(r *http.Request, field string) (transfer.Input, error) {
	f, header, err := r.FormFile(field)
	if err != nil {
		return transfer.Input{}, fmt.Errorf("%s image is required", field)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxFileSize+1))
	if err != nil {
		return transfer.Input{}, fmt.Errorf("reading %s: %w", field, err)
	}
	return transfer.FileInput(header.Filename, data), nil
}

// statusFor maps a transfer failure to an HTTP status.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var verr *validate.Error
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity
	}
	var initErr *model.InitializationError
	if errors.As(err, &initErr) {
		return http.StatusServiceUnavailable
	}
	switch model.AsError(err).Kind {
	case model.AlignmentFailure:
		return http.StatusUnprocessableEntity
	case model.ProcessingTimeout:
		return http.StatusGatewayTimeout
	case model.NotInitialized, model.ResourceExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	log.FromContextOrDiscard(r.Context()).Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
