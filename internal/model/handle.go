package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmorgan81/hairswap/internal/asset"
	"github.com/dmorgan81/hairswap/internal/log"
	"golang.org/x/sync/singleflight"
)

type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "uninitialized"
	}
}

// Handle owns the process-wide lifecycle of a Capability. At most one Setup
// runs at a time and every caller waiting on it sees the same outcome. A
// failed setup is retried by the next call after it has resolved.
type Handle struct {
	capability Capability
	group      singleflight.Group

	mu    sync.Mutex
	state State
	err   error
	// gen advances every time a setup resolves and on Shutdown.
	gen uint64
}

var errShutDown = errors.New("handle was shut down during setup")

func NewHandle(c Capability) *Handle {
	return &Handle{capability: c}
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Err is the error of the last failed setup, if the handle is Failed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) Info() Info {
	return h.capability.Info()
}

func (h *Handle) Setup(ctx context.Context) error {
	h.mu.Lock()
	state, seen := h.state, h.gen
	h.mu.Unlock()
	if state == Ready {
		return nil
	}
	return h.join(ctx, seen)
}

// join runs or joins the setup flight for a caller that last saw the handle
// at generation seen.
func (h *Handle) join(ctx context.Context, seen uint64) error {
	ch := h.group.DoChan("setup", func() (any, error) {
		h.mu.Lock()
		switch {
		case h.state == Ready:
			h.mu.Unlock()
			return nil, nil
		case h.state == Failed && h.gen != seen:
			// A flight resolved between this caller's look and its join.
			err := h.err
			h.mu.Unlock()
			return nil, err
		}
		h.state = Initializing
		start := h.gen
		h.mu.Unlock()

		// The setup outlives any single caller's cancellation.
		err := h.setup(context.WithoutCancel(ctx))

		h.mu.Lock()
		defer h.mu.Unlock()
		if h.gen != start {
			if err == nil {
				err = h.shutdownCapability()
			}
			return nil, &InitializationError{Err: errors.Join(errShutDown, err)}
		}
		h.gen++
		if err != nil {
			h.state, h.err = Failed, err
			return nil, err
		}
		h.state, h.err = Ready, nil
		return nil, nil
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return &InitializationError{Err: ctx.Err()}
	}
}

func (h *Handle) setup(ctx context.Context) (err error) {
	log := log.FromContextOrDiscard(ctx).With("model", h.capability.Info().Name)
	log.Info("setting up model")
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("setup panicked: %v", r)
		}
		if err != nil {
			log.Error("model setup failed", "error", err)
			err = &InitializationError{Err: err}
		}
	}()
	return h.capability.Setup(ctx)
}

// Transfer forwards to the capability once the handle is Ready. It never
// changes the handle's state.
func (h *Handle) Transfer(ctx context.Context, face, reference *asset.Asset, p Params) (*asset.Asset, error) {
	if state := h.State(); state != Ready {
		return nil, NewError(NotInitialized, fmt.Sprintf("model is %s", state), nil)
	}
	return h.capability.Transfer(ctx, face, reference, p)
}

// Shutdown tears the capability down if it holds resources. It satisfies
// do.Shutdownable. A setup still in flight resolves as an
// InitializationError and leaves the handle Uninitialized.
func (h *Handle) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state, h.err = Uninitialized, nil
	h.gen++
	return h.shutdownCapability()
}

func (h *Handle) shutdownCapability() error {
	if s, ok := h.capability.(interface{ Shutdown() error }); ok {
		return s.Shutdown()
	}
	return nil
}
