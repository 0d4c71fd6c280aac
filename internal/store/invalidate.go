package store

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/samber/do"
)

type Invalidator interface {
	Invalidate(context.Context, []string) error
}

// NopInvalidator is used when there is no CDN in front of the results.
type NopInvalidator struct{}

func NewNopInvalidator(i *do.Injector) (Invalidator, error) {
	return NopInvalidator{}, nil
}

func (NopInvalidator) Invalidate(ctx context.Context, paths []string) error {
	logr.FromContextOrDiscard(ctx).WithName("nop").V(1).Info("skipping invalidation", "paths", paths)
	return nil
}
