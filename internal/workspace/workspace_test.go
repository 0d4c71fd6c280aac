package workspace

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmorgan81/hairswap/internal/asset"
)

func TestDirLifecycle(t *testing.T) {
	root := t.TempDir()
	d, err := New(filepath.Join(root, "work"), "transfer")
	if err != nil {
		t.Fatal(err)
	}

	path, err := d.Write(context.Background(), "input/face.png", []byte("data"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !strings.HasPrefix(path, d.Root()) {
		t.Errorf("path %s escapes %s", path, d.Root())
	}
	if _, err := d.WriteAsset(context.Background(), "input/hair.png", asset.New(image.NewGray(image.Rect(0, 0, 2, 2)))); err != nil {
		t.Fatalf("WriteAsset: %v", err)
	}
	if _, err := d.Mkdir("output"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(d.Root()); !os.IsNotExist(err) {
		t.Errorf("workspace still exists after Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestSanitizeKey(t *testing.T) {
	tests := map[string]string{
		"face.png":          "face.png",
		"./a/b.png":         "a/b.png",
		"/abs/path.png":     "abs/path.png",
		"a\\b.png":          "a/b.png",
		"a/../b.png":        "b.png",
		"../escape.png":     "",
		"..":                "",
		"   ":               "",
		"a/../../other.png": "",
	}
	for in, want := range tests {
		got, err := sanitizeKey(in)
		if want == "" {
			if err == nil {
				t.Errorf("sanitizeKey(%q) = %q, expected error", in, got)
			}
			continue
		}
		if err != nil || got != want {
			t.Errorf("sanitizeKey(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}

func TestWriteCancelled(t *testing.T) {
	d, err := New(t.TempDir(), "transfer")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Write(ctx, "x", nil); err == nil {
		t.Error("expected error for cancelled context")
	}
}
