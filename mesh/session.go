package mesh

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mmgwasm/mmgwasm"
	"github.com/mmgwasm/mmgwasm/binding"
	"github.com/mmgwasm/mmgwasm/engine"
	"github.com/mmgwasm/mmgwasm/errors"
	"github.com/mmgwasm/mmgwasm/pool"
)

// Session owns one engine instance and the per-kind handle pools built
// on top of it. It is safe for concurrent use; individual Mesh values
// are not.
type Session struct {
	caller   engine.Caller
	bindings map[mmgwasm.Kind]*binding.Binding

	mu     sync.Mutex
	pools  map[mmgwasm.Kind]*pool.Pool
	closed bool
}

// NewSession wraps a running engine caller. The caller's lifetime passes
// to the session: Close tears it down.
func NewSession(c engine.Caller) *Session {
	s := &Session{
		caller:   c,
		bindings: make(map[mmgwasm.Kind]*binding.Binding, 3),
		pools:    make(map[mmgwasm.Kind]*pool.Pool, 3),
	}
	for _, k := range mmgwasm.Kinds() {
		s.bindings[k] = binding.New(c, k)
	}
	return s
}

// Caller returns the underlying engine.
func (s *Session) Caller() engine.Caller { return s.caller }

// Binding returns the binding for one mesh kind.
func (s *Session) Binding(kind mmgwasm.Kind) *binding.Binding { return s.bindings[kind] }

// Pool returns the handle pool for one mesh kind, creating it on first
// use with the capacity the engine reports.
func (s *Session) Pool(ctx context.Context, kind mmgwasm.Kind) (*pool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.Disposed("session")
	}
	if p, ok := s.pools[kind]; ok {
		return p, nil
	}

	b := s.bindings[kind]
	capacity, err := b.MaxHandles(ctx)
	if err != nil {
		return nil, err
	}
	p := pool.New(kind.String(), capacity, b.Init, b.Free)
	s.pools[kind] = p
	engine.Logger().Debug("handle pool created",
		zap.String("kind", kind.String()),
		zap.Int("capacity", capacity))
	return p, nil
}

// Available returns the free handle count for a kind.
func (s *Session) Available(ctx context.Context, kind mmgwasm.Kind) (int, error) {
	p, err := s.Pool(ctx, kind)
	if err != nil {
		return 0, err
	}
	return p.Available(), nil
}

// Close releases every live handle and shuts the engine down. The
// session is unusable afterwards.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pools := make([]*pool.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p)
	}
	s.mu.Unlock()

	var firstErr error
	for _, p := range pools {
		if err := p.ReleaseAll(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.caller.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
