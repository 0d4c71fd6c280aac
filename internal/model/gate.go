package model

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of concurrent transfers. Waiters are admitted in
// arrival order.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	waiting  atomic.Int64
	running  atomic.Int64
}

func NewGate(capacity int) *Gate {
	capacity = max(capacity, 1)
	return &Gate{sem: semaphore.NewWeighted(int64(capacity)), capacity: capacity}
}

// Acquire blocks until a slot frees or ctx ends. The returned release func
// must be called exactly once.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	g.waiting.Add(1)
	err := g.sem.Acquire(ctx, 1)
	g.waiting.Add(-1)
	if err != nil {
		return nil, err
	}
	g.running.Add(1)

	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.running.Add(-1)
			g.sem.Release(1)
		}
	}, nil
}

func (g *Gate) Capacity() int { return g.capacity }

func (g *Gate) Waiting() int { return int(g.waiting.Load()) }

func (g *Gate) Running() int { return int(g.running.Load()) }
