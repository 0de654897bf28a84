package pool

import (
	"context"
	"sync"

	"github.com/mmgwasm/mmgwasm/errors"
)

// InitFunc asks the engine for a fresh native handle.
type InitFunc func(ctx context.Context) (int32, error)

// FreeFunc returns a native handle to the engine.
type FreeFunc func(ctx context.Context, handle int32) error

// Pool is a fixed-capacity registry of live native handles for one mesh
// kind. The invariant available + live == capacity holds at all times.
type Pool struct {
	kind     string
	capacity int
	live     map[int32]bool
	init     InitFunc
	free     FreeFunc
	mu       sync.Mutex
}

// New creates a pool. capacity must match the engine's max handle count
// for the kind; init and free wrap the kind's init/free entry points.
func New(kind string, capacity int, init InitFunc, free FreeFunc) *Pool {
	return &Pool{
		kind:     kind,
		capacity: capacity,
		live:     make(map[int32]bool, capacity),
		init:     init,
		free:     free,
	}
}

// Acquire obtains a fresh handle from the engine. At capacity it fails
// with a ResourceExhausted error; exhaustion is an expected, recoverable
// condition.
func (p *Pool) Acquire(ctx context.Context) (int32, error) {
	p.mu.Lock()
	if len(p.live) >= p.capacity {
		p.mu.Unlock()
		return 0, errors.ResourceExhausted(p.kind, p.capacity)
	}
	p.mu.Unlock()

	h, err := p.init(ctx)
	if err != nil {
		return 0, err
	}
	if h < 0 {
		// Engine table full even though ours was not; trust the engine.
		return 0, errors.ResourceExhausted(p.kind, p.capacity)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.live[h] {
		// The engine handed out a handle we already consider live; this
		// indicates bookkeeping drift and must surface loudly.
		return 0, errors.New(errors.PhasePool, errors.KindInvalidData).
			Handle(h).
			Detail("engine returned an already-live handle").
			Build()
	}
	p.live[h] = true
	return h, nil
}

// Release returns a handle to the engine. Releasing a handle that is not
// live fails with an InvalidHandle error, never silently.
func (p *Pool) Release(ctx context.Context, handle int32) error {
	p.mu.Lock()
	if !p.live[handle] {
		p.mu.Unlock()
		return errors.InvalidHandle(errors.PhasePool, handle)
	}
	delete(p.live, handle)
	p.mu.Unlock()

	return p.free(ctx, handle)
}

// IsLive reports whether the handle is currently acquired.
func (p *Pool) IsLive(handle int32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.live[handle]
}

// Available returns the number of free slots.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity - len(p.live)
}

// Live returns the number of acquired handles.
func (p *Pool) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.live)
}

// Capacity returns the fixed pool size.
func (p *Pool) Capacity() int {
	return p.capacity
}

// ReleaseAll returns every live handle to the engine. Used on session
// close; individual free failures are collected into the returned error.
func (p *Pool) ReleaseAll(ctx context.Context) error {
	p.mu.Lock()
	handles := make([]int32, 0, len(p.live))
	for h := range p.live {
		handles = append(handles, h)
	}
	p.live = make(map[int32]bool, p.capacity)
	p.mu.Unlock()

	var firstErr error
	for _, h := range handles {
		if err := p.free(ctx, h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
