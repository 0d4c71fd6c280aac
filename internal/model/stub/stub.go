// Package stub is an in-process Capability for development and tests. It
// returns a copy of the face image after an optional delay.
package stub

import (
	"context"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/dmorgan81/hairswap/internal/asset"
	"github.com/dmorgan81/hairswap/internal/model"
	"github.com/samber/do"
)

type Call struct {
	Params model.Params
	Start  time.Time
	End    time.Time
}

type Capability struct {
	SetupDelay time.Duration
	SetupErr   error

	Delay time.Duration
	Err   error
	// IgnoreCancel makes Transfer sleep through cancellation, like a model
	// process that does not listen for signals.
	IgnoreCancel bool
	// Panic makes Transfer panic with this value when non-nil.
	Panic any

	mu     sync.Mutex
	setups int
	calls  []Call
}

func NewCapability(i *do.Injector) (model.Capability, error) {
	return &Capability{}, nil
}

func (c *Capability) Info() model.Info {
	return model.Info{Name: "stub", Description: "returns the face image unchanged"}
}

func (c *Capability) Setup(ctx context.Context) error {
	c.mu.Lock()
	c.setups++
	c.mu.Unlock()

	if err := c.sleep(ctx, c.SetupDelay, false); err != nil {
		return err
	}
	return c.SetupErr
}

func (c *Capability) Transfer(ctx context.Context, face, reference *asset.Asset, p model.Params) (*asset.Asset, error) {
	call := Call{Params: p, Start: time.Now()}
	defer func() {
		call.End = time.Now()
		c.mu.Lock()
		c.calls = append(c.calls, call)
		c.mu.Unlock()
	}()

	if c.Panic != nil {
		panic(c.Panic)
	}
	if err := c.sleep(ctx, c.Delay, c.IgnoreCancel); err != nil {
		return nil, model.NewError(model.ProcessingTimeout, "transfer cancelled", err)
	}
	if c.Err != nil {
		return nil, c.Err
	}
	return asset.New(imaging.Clone(face.Image())), nil
}

func (c *Capability) sleep(ctx context.Context, d time.Duration, ignoreCancel bool) error {
	if d <= 0 {
		return nil
	}
	if ignoreCancel {
		time.Sleep(d)
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Capability) Setups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setups
}

// Transfers counts finished Transfer calls.
func (c *Capability) Transfers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func (c *Capability) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}
