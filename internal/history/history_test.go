package history

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmorgan81/hairswap/internal/asset"
	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/dmorgan81/hairswap/internal/transfer"
)

func TestRecordAndGet(t *testing.T) {
	s, err := Open(t.Context(), Memory)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	want := Entry{
		ID:         "abc",
		Time:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Style:      model.StyleFidelity,
		Smoothness: 4,
		Enhanced:   true,
		Outcome:    "ok",
		Duration:   1500 * time.Millisecond,
		Face:       asset.Dimensions{Width: 512, Height: 640},
		Reference:  asset.Dimensions{Width: 300, Height: 300},
		Output:     asset.Dimensions{Width: 1024, Height: 1024},
		Key:        "results/abc.png",
	}
	if err := s.Record(t.Context(), want); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(t.Context(), "abc")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Time.Equal(want.Time) {
		t.Errorf("Expected time %s, got %s", want.Time, got.Time)
	}
	got.Time = want.Time
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
	if !got.OK() {
		t.Error("Expected OK entry")
	}

	if _, err := s.Get(t.Context(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRecent(t *testing.T) {
	s, err := Open(t.Context(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	outcomes := []string{"ok", "AlignmentFailure", "ok", "ProcessingTimeout", "ok"}
	for i, outcome := range outcomes {
		err := s.Record(t.Context(), Entry{
			ID:         string(rune('a' + i)),
			Time:       base.Add(time.Duration(i) * time.Minute),
			Style:      model.StyleRealistic,
			Smoothness: 5,
			Outcome:    outcome,
			Message:    outcome,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	t.Run("newest first", func(t *testing.T) {
		entries, err := s.Recent(t.Context(), 3)
		if err != nil {
			t.Fatal(err)
		}
		if expected, actual := 3, len(entries); expected != actual {
			t.Fatalf("Expected %d entries, got %d", expected, actual)
		}
		if entries[0].ID != "e" || entries[2].ID != "c" {
			t.Errorf("unexpected order %s %s %s", entries[0].ID, entries[1].ID, entries[2].ID)
		}
	})

	t.Run("default limit", func(t *testing.T) {
		entries, err := s.Recent(t.Context(), 0)
		if err != nil {
			t.Fatal(err)
		}
		if expected, actual := len(outcomes), len(entries); expected != actual {
			t.Errorf("Expected %d entries, got %d", expected, actual)
		}
	})

	t.Run("summary", func(t *testing.T) {
		counts, err := s.Summary(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if counts["ok"] != 3 || counts["AlignmentFailure"] != 1 {
			t.Errorf("unexpected summary %v", counts)
		}
	})
}

func TestReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(t.Context(), path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Record(t.Context(), Entry{ID: "x", Style: model.StyleRealistic, Smoothness: 1, Outcome: "ok"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(t.Context(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Get(t.Context(), "x"); err != nil {
		t.Errorf("entry lost after reopening: %v", err)
	}
}

func TestFromResult(t *testing.T) {
	res := transfer.Result{
		ID:  "r1",
		Err: model.NewError(model.AlignmentFailure, "no face", nil),
		Stats: transfer.Stats{
			Style:      model.StyleRealistic,
			Smoothness: 2,
			Face:       asset.Dimensions{Width: 10, Height: 20},
		},
	}
	e := FromResult(res, "")
	if e.Outcome != "AlignmentFailure" || e.Message == "" || e.Face.Height != 20 || e.OK() {
		t.Errorf("unexpected entry %+v", e)
	}
}
