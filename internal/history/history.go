// Package history keeps one row per finished transfer in SQLite.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmorgan81/hairswap/internal/asset"
	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/dmorgan81/hairswap/internal/transfer"
	"github.com/samber/do"
	"github.com/tailscale/squibble"
	_ "modernc.org/sqlite"
)

const (
	Memory       = ":memory:"
	DefaultLimit = 20
	MaxLimit     = 500
)

var ErrNotFound = errors.New("history: transfer not found")

//go:embed schema.sql
var dbSchema string

var schema = &squibble.Schema{
	Current: dbSchema,
}

type Entry struct {
	ID         string           `json:"id"`
	Time       time.Time        `json:"time"`
	Style      model.Style      `json:"style"`
	Smoothness int              `json:"smoothness"`
	Enhanced   bool             `json:"enhanced"`
	Outcome    string           `json:"outcome"`
	Message    string           `json:"message,omitempty"`
	Duration   time.Duration    `json:"duration"`
	Face       asset.Dimensions `json:"face"`
	Reference  asset.Dimensions `json:"reference"`
	Output     asset.Dimensions `json:"output"`
	// Key is where the output was published, if anywhere.
	Key string `json:"key,omitempty"`
}

func (e Entry) OK() bool { return e.Outcome == "ok" }

// FromResult builds the entry for a finished transfer.
func FromResult(res transfer.Result, key string) Entry {
	e := Entry{
		ID:         res.ID,
		Time:       time.Now().UTC(),
		Style:      res.Stats.Style,
		Smoothness: res.Stats.Smoothness,
		Enhanced:   res.Stats.Enhanced,
		Outcome:    res.Reason(),
		Duration:   res.Stats.Duration,
		Face:       res.Stats.Face,
		Reference:  res.Stats.Reference,
		Output:     res.Stats.Output,
		Key:        key,
	}
	if res.Err != nil {
		e.Message = res.Err.Error()
	}
	return e
}

type Store struct {
	mu sync.Mutex
	db *sql.DB

	path string
}

func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = Memory
	}
	db, err := sql.Open("sqlite", path+"?_time_format=sqlite")
	if err != nil {
		return nil, err
	}
	if path == Memory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := schema.Apply(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func NewStore(i *do.Injector) (*Store, error) {
	return Open(context.Background(), do.MustInvoke[*config.Config](i).HistoryPath)
}

func (s *Store) Path() string { return s.path }

func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO transfers
		(id, created_at, style, smoothness, enhanced, outcome, message, duration_ms,
		 face_width, face_height, reference_width, reference_height,
		 output_width, output_height, result_key)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.Time, string(e.Style), e.Smoothness, e.Enhanced, e.Outcome,
		nullString(e.Message), e.Duration.Milliseconds(),
		e.Face.Width, e.Face.Height, e.Reference.Width, e.Reference.Height,
		e.Output.Width, e.Output.Height, nullString(e.Key),
	)
	if err != nil {
		return fmt.Errorf("history: record %s: %w", e.ID, err)
	}
	return nil
}

const columns = `id, created_at, style, smoothness, enhanced, outcome, message, duration_ms,
	face_width, face_height, reference_width, reference_height,
	output_width, output_height, result_key`

func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM transfers WHERE id=?`, id)
	e, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	rows, err := s.db.QueryContext(ctx, `SELECT `+columns+` FROM transfers ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating transfers: %w", err)
	}
	return entries, nil
}

// Summary counts transfers per outcome.
func (s *Store) Summary(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM transfers GROUP BY outcome`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (Entry, error) {
	var (
		e            Entry
		style        string
		message, key sql.NullString
		durationMS   int64
	)
	err := row.Scan(
		&e.ID, &e.Time, &style, &e.Smoothness, &e.Enhanced, &e.Outcome, &message, &durationMS,
		&e.Face.Width, &e.Face.Height, &e.Reference.Width, &e.Reference.Height,
		&e.Output.Width, &e.Output.Height, &key,
	)
	if err != nil {
		return Entry{}, err
	}
	e.Style = model.Style(style)
	e.Message, e.Key = message.String, key.String
	e.Duration = time.Duration(durationMS) * time.Millisecond
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Shutdown satisfies do.Shutdownable.
func (s *Store) Shutdown() error {
	return s.Close()
}
