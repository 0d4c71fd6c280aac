package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dmorgan81/hairswap/internal/config"
	"github.com/dmorgan81/hairswap/internal/log"
	"github.com/samber/do"
	"github.com/samber/lo"
)

// FS is a catalog laid out as one directory per category under root, plus
// a flat examples directory.
type FS struct {
	root     string
	examples string
}

func NewFS(root, examples string) *FS {
	return &FS{root: root, examples: examples}
}

func NewFSCatalog(i *do.Injector) (Catalog, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return NewFS(cfg.CatalogDir, cfg.ExamplesDir), nil
}

// Init creates the default category directories.
func (c *FS) Init(ctx context.Context) error {
	log.FromContextOrDiscard(ctx).WithGroup("catalog").Info("creating categories", "root", c.root)
	for _, cat := range DefaultCategories {
		if err := os.MkdirAll(filepath.Join(c.root, cat), 0o755); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
	}
	return nil
}

func (c *FS) Categories(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	cats := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		return e.Name(), e.IsDir() && !strings.HasPrefix(e.Name(), ".")
	})
	slices.Sort(cats)
	return cats, nil
}

func (c *FS) Items(ctx context.Context, category string) ([]Item, error) {
	if !validCategory(category) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	dir := filepath.Join(c.root, category)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		log.FromContextOrDiscard(ctx).WithGroup("catalog").Warn("category not found", "category", category)
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return lo.FilterMap(entries, func(e os.DirEntry, _ int) (Item, bool) {
		return Item{
			Category: category,
			Name:     stem(e.Name()),
			Key:      filepath.Join(dir, e.Name()),
		}, !e.IsDir() && isImage(e.Name())
	}), nil
}

func (c *FS) Open(ctx context.Context, item Item) (io.ReadCloser, error) {
	if !c.contains(item.Key) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, item.Key)
	}
	f, err := os.Open(item.Key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, item.Key)
	}
	return f, err
}

// contains reports whether key lies inside the catalog or examples root.
func (c *FS) contains(key string) bool {
	for _, root := range []string{c.root, c.examples} {
		if root == "" {
			continue
		}
		rel, err := filepath.Rel(root, key)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (c *FS) Examples(ctx context.Context) ([]Pair, error) {
	entries, err := os.ReadDir(c.examples)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	names := lo.FilterMap(entries, func(e os.DirEntry, _ int) (string, bool) {
		return e.Name(), !e.IsDir()
	})
	return lo.Map(pairExamples(names), func(p [2]string, _ int) Pair {
		return Pair{
			Name: stem(p[0]),
			Face: Item{Category: "examples", Name: stem(p[0]), Key: filepath.Join(c.examples, p[0])},
			Hair: Item{Category: "examples", Name: stem(p[1]), Key: filepath.Join(c.examples, p[1])},
		}
	}), nil
}
