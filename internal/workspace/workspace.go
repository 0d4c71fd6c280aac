// Package workspace provides per-request scratch directories for model
// adapters that talk to the model through files.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmorgan81/hairswap/internal/asset"
)

// Dir is a scratch directory owned by one request. Close removes it and
// everything written into it; it is safe to call more than once.
type Dir struct {
	path string
	once sync.Once
	err  error
}

// New creates a fresh directory under root (the system temp dir when root is
// empty).
func New(root, prefix string) (*Dir, error) {
	root = strings.TrimSpace(root)
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("workspace: ensure root: %w", err)
		}
	}
	path, err := os.MkdirTemp(root, prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("workspace: create: %w", err)
	}
	// subprocesses run in other directories
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Dir{path: path}, nil
}

func (d *Dir) Root() string { return d.path }

// Path resolves key inside the workspace. Keys are cleaned so they cannot
// escape it.
func (d *Dir) Path(key string) (string, error) {
	clean, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.path, filepath.FromSlash(clean)), nil
}

// Mkdir creates the directory key and returns its full path.
func (d *Dir) Mkdir(key string) (string, error) {
	path, err := d.Path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("workspace: mkdir: %w", err)
	}
	return path, nil
}

func (d *Dir) Write(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := d.Path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("workspace: ensure directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("workspace: write file: %w", err)
	}
	return path, nil
}

func (d *Dir) WriteAsset(ctx context.Context, key string, a *asset.Asset) (string, error) {
	data, err := a.Bytes()
	if err != nil {
		return "", fmt.Errorf("workspace: encode %s: %w", key, err)
	}
	return d.Write(ctx, key, data)
}

func (d *Dir) Close() error {
	d.once.Do(func() {
		d.err = os.RemoveAll(d.path)
	})
	return d.err
}

func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("workspace: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("workspace: invalid key")
	}
	return cleaned, nil
}
