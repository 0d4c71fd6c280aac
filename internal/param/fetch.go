package param

import "context"

// Fetcher resolves secrets and settings by name. FetchAll returns every
// value stored under a path prefix.
type Fetcher interface {
	Fetch(context.Context, string) (string, error)
	FetchAll(context.Context, string) ([]string, error)
}
