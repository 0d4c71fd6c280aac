// Package catalog lists reference hairstyles by category and the bundled
// example face/hair pairs. Catalogs are read-only.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
	"unicode"

	"github.com/samber/lo"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	ErrUnknownCategory = errors.New("catalog: unknown category")
	ErrNotFound        = errors.New("catalog: item not found")
)

// DefaultCategories are created by FS.Init.
var DefaultCategories = []string{
	"short", "medium", "long", "curly", "straight",
	"wavy", "formal", "casual", "colored", "natural",
}

var imageExts = []string{".png", ".jpg", ".jpeg"}

type Item struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Key      string `json:"key"`
}

type Pair struct {
	Name string `json:"name"`
	Face Item   `json:"face"`
	Hair Item   `json:"hair"`
}

type Catalog interface {
	Categories(ctx context.Context) ([]string, error)
	Items(ctx context.Context, category string) ([]Item, error)
	Open(ctx context.Context, item Item) (io.ReadCloser, error)
	Examples(ctx context.Context) ([]Pair, error)
}

type Stats struct {
	Categories  int            `json:"total_categories"`
	Hairstyles  int            `json:"total_hairstyles"`
	Examples    int            `json:"total_examples"`
	PerCategory map[string]int `json:"per_category"`
}

func Collect(ctx context.Context, c Catalog) (Stats, error) {
	cats, err := c.Categories(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Categories: len(cats), PerCategory: make(map[string]int, len(cats))}
	for _, cat := range cats {
		items, err := c.Items(ctx, cat)
		if err != nil {
			return Stats{}, err
		}
		stats.PerCategory[cat] = len(items)
		stats.Hairstyles += len(items)
	}
	pairs, err := c.Examples(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats.Examples = len(pairs)
	return stats, nil
}

// Lookup finds the item called name in category.
func Lookup(ctx context.Context, c Catalog, category, name string) (Item, error) {
	items, err := c.Items(ctx, category)
	if err != nil {
		return Item{}, err
	}
	item, ok := lo.Find(items, func(i Item) bool { return i.Name == name })
	if !ok {
		return Item{}, fmt.Errorf("%w: %s/%s", ErrNotFound, category, name)
	}
	return item, nil
}

// Random picks an item from category, or from every category when category
// is empty.
func Random(ctx context.Context, c Catalog, category string) (Item, error) {
	cats := []string{category}
	if category == "" {
		var err error
		if cats, err = c.Categories(ctx); err != nil {
			return Item{}, err
		}
	}
	var all []Item
	for _, cat := range cats {
		items, err := c.Items(ctx, cat)
		if err != nil {
			return Item{}, err
		}
		all = append(all, items...)
	}
	if len(all) == 0 {
		return Item{}, fmt.Errorf("%w: no hairstyles in %q", ErrNotFound, category)
	}
	return lo.Sample(all), nil
}

var titler = cases.Title(language.English)

// Title turns a category name such as "very_long" into "Very Long".
func Title(category string) string {
	return titler.String(strings.NewReplacer("_", " ", "-", " ").Replace(category))
}

func validCategory(category string) bool {
	return category != "" && category != "." && category != ".." && !strings.ContainsAny(category, `/\`)
}

func isImage(name string) bool {
	return lo.Contains(imageExts, strings.ToLower(path.Ext(name)))
}

func stem(name string) string {
	return strings.TrimSuffix(name, path.Ext(name))
}

// pairExamples matches faceN.png with hairN.png (or example_hairN.png) and
// adds the generic example_face.png/example_hair.png pair. names are base
// names of the files in the examples location.
func pairExamples(names []string) [][2]string {
	have := lo.Associate(names, func(n string) (string, bool) { return n, true })
	faces := lo.Filter(names, func(n string, _ int) bool {
		return strings.HasSuffix(n, ".png") && strings.Contains(n, "face")
	})
	slices.Sort(faces)

	var pairs [][2]string
	for _, face := range faces {
		num := strings.Map(func(r rune) rune {
			return lo.Ternary(unicode.IsDigit(r), r, -1)
		}, stem(face))
		if num == "" {
			continue
		}
		for _, hair := range []string{"hair" + num + ".png", "example_hair" + num + ".png"} {
			if have[hair] {
				pairs = append(pairs, [2]string{face, hair})
				break
			}
		}
	}

	generic := [2]string{"example_face.png", "example_hair.png"}
	if have[generic[0]] && have[generic[1]] && !slices.Contains(pairs, generic) {
		pairs = append(pairs, generic)
	}
	return pairs
}
