package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dmorgan81/hairswap/internal/log"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// visitors holds one token bucket per client address.
type visitors struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	limit    rate.Limit
	burst    int
}

type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newVisitors(limit rate.Limit, burst int) *visitors {
	return &visitors{limiters: make(map[string]*visitor), limit: limit, burst: max(burst, 1)}
}

func (v *visitors) allow(key string, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	vis, ok := v.limiters[key]
	if !ok {
		vis = &visitor{limiter: rate.NewLimiter(v.limit, v.burst)}
		v.limiters[key] = vis
	}
	vis.seen = now
	return vis.limiter.AllowN(now, 1)
}

// sweep forgets clients not seen since before cutoff.
func (v *visitors) sweep(cutoff time.Time) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := 0
	for key, vis := range v.limiters {
		if vis.seen.Before(cutoff) {
			delete(v.limiters, key)
			n++
		}
	}
	return n
}

func (v *visitors) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !v.allow(clientIP(r), time.Now()) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			if ip := strings.TrimSpace(part); net.ParseIP(ip) != nil {
				return ip
			}
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// accessLog writes one line per request and puts the request logger in the
// request context.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := log.FromContextOrDiscard(r.Context()).With("request_id", middleware.GetReqID(r.Context()))
		r = r.WithContext(log.NewContext(r.Context(), logger))

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
