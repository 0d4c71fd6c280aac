package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/go-logr/logr"
	"github.com/samber/do"
)

var ErrNotFound = errors.New("store: object not found")

// Fetcher reads request inputs by key.
type Fetcher interface {
	Fetch(context.Context, string) (io.ReadCloser, error)
}

type FileFetcher struct {
	Root string
}

func NewFileFetcher(i *do.Injector) (Fetcher, error) {
	return &FileFetcher{Root: do.MustInvoke[*config.Config](i).WorkDir}, nil
}

func (f *FileFetcher) Fetch(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := within(f.Root, key)
	if err != nil {
		return nil, err
	}
	logr.FromContextOrDiscard(ctx).WithName("file").Info("reading", "file", path)

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return file, err
}

// within joins key under root and refuses keys that would escape it.
func within(root, key string) (string, error) {
	clean := filepath.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	if clean == "/" {
		return "", fmt.Errorf("store: empty key %q", key)
	}
	return filepath.Join(root, filepath.FromSlash(clean[1:])), nil
}
