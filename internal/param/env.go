package param

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dmorgan81/hairswap/internal/log"
	"github.com/samber/do"
	"github.com/samber/lo"
)

// EnvFetcher reads parameters from environment variables. A parameter path
// such as /hairswap/remote-key maps to HAIRSWAP_REMOTE_KEY.
type EnvFetcher struct {
	lookup  func(string) (string, bool)
	environ func() []string
}

func NewEnvFetcher(i *do.Injector) (Fetcher, error) {
	return &EnvFetcher{lookup: os.LookupEnv, environ: os.Environ}, nil
}

func EnvName(path string) string {
	name := strings.Trim(path, "/")
	name = strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(name)
	return strings.ToUpper(name)
}

func (f *EnvFetcher) Fetch(ctx context.Context, path string) (string, error) {
	name := EnvName(path)
	log.FromContextOrDiscard(ctx).WithGroup("env").Info("fetching single parameter", "path", path, "name", name)

	v, ok := f.lookup(name)
	if !ok {
		return "", fmt.Errorf("param: %s is not set", name)
	}
	return v, nil
}

// FetchAll returns the values of every variable whose name starts with the
// mapped prefix, ordered by name.
func (f *EnvFetcher) FetchAll(ctx context.Context, path string) ([]string, error) {
	prefix := EnvName(path) + "_"
	log.FromContextOrDiscard(ctx).WithGroup("env").Info("fetching all parameters", "path", path, "prefix", prefix)

	pairs := lo.Filter(f.environ(), func(kv string, _ int) bool {
		return strings.HasPrefix(kv, prefix)
	})
	sort.Strings(pairs)
	return lo.Map(pairs, func(kv string, _ int) string {
		_, v, _ := strings.Cut(kv, "=")
		return v
	}), nil
}
