package log

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/go-logr/logr"
	"github.com/samber/lo"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Options tune the handler built by NewWithOptions.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	Time   bool   // keep the time attribute; Lambda already timestamps lines
}

func New(w io.Writer) *slog.Logger {
	return NewWithOptions(w, Options{Format: "json"})
}

func NewWithOptions(w io.Writer, opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			return lo.Ternary(a.Key == slog.TimeKey && len(groups) == 0 && !opts.Time, slog.Attr{}, a)
		},
	}
	if strings.EqualFold(opts.Format, "text") {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewContext stores logger in ctx. The logger is reachable both through
// FromContextOrDiscard and through logr.FromContextOrDiscard.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return logr.NewContextWithSlogLogger(ctx, logger)
}

func FromContextOrDiscard(ctx context.Context) *slog.Logger {
	if v := logr.FromContextAsSlogLogger(ctx); v != nil {
		return v
	}
	return discardLogger
}
