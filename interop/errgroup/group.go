// Package errgroup provides an adapter that mimics golang.org/x/sync/errgroup
// semantics using the local scope implementation. It enables incremental
// migration without pulling errgroup into the core library.
package errgroup

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/NetPo4ki/scopeshare/scope"
)

// Group is an errgroup-like wrapper over scope.Scope (FailFast). The zero
// value is usable and does not cancel on error. Like errgroup, a Group may
// be reused after Wait: the next Go opens a fresh scope, and Wait keeps
// returning the first error the group ever saw.
type Group struct {
	mu  sync.Mutex
	ctx context.Context
	s   *scope.Scope
	err error
	sem chan struct{}
}

// WithContext creates a Group bound to ctx. Returned context is canceled when
// any function passed to Go returns a non-nil error, or when Wait returns.
func WithContext(ctx context.Context) (*Group, context.Context) {
	g := &Group{ctx: ctx}
	return g, g.scope().Context()
}

// scope returns the open scope, creating one if the last was joined.
func (g *Group) scope() *scope.Scope {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.s == nil {
		if g.ctx == nil {
			// zero Group: errgroup does not cancel anything here either
			g.s = scope.New(context.Background(), scope.Supervisor)
		} else {
			g.s = scope.New(g.ctx, scope.FailFast)
		}
	}
	return g.s
}

// retire forgets s if it is still the open scope.
func (g *Group) retire(s *scope.Scope) {
	g.mu.Lock()
	if g.s == s {
		g.s = nil
	}
	g.mu.Unlock()
}

// SetLimit limits the number of active goroutines in this group to at most
// n. A negative value indicates no limit. It must not be called while
// goroutines are active.
func (g *Group) SetLimit(n int) {
	if n < 0 {
		g.sem = nil
		return
	}
	if len(g.sem) != 0 {
		panic("errgroup: modify limit while goroutines in the group are still active")
	}
	g.sem = make(chan struct{}, n)
}

// Go starts a function, blocking while the group is at its limit. It should
// return a non-nil error to signal failure.
func (g *Group) Go(f func() error) {
	if f == nil {
		return
	}
	if g.sem != nil {
		g.sem <- struct{}{}
	}
	g.start(f)
}

// TryGo starts f only if the group is below its limit and reports whether
// it did.
func (g *Group) TryGo(f func() error) bool {
	if g.sem != nil {
		select {
		case g.sem <- struct{}{}:
		default:
			return false
		}
	}
	if f == nil {
		g.done()
		return true
	}
	g.start(f)
	return true
}

// start runs f on the open scope while holding f's limit slot. A scope
// closed by a concurrent Wait rejects f without running it; f then moves
// to a fresh scope with the slot still held.
func (g *Group) start(f func() error) {
	for {
		s := g.scope()
		var ran atomic.Bool
		h := scope.Spawn(s, func(context.Context) (struct{}, error) {
			ran.Store(true)
			defer g.done()
			return struct{}{}, f()
		})
		select {
		case <-h.Done():
			if !ran.Load() {
				g.retire(s)
				continue
			}
		default:
		}
		return
	}
}

func (g *Group) done() {
	if g.sem != nil {
		<-g.sem
	}
}

// Wait blocks until all functions have returned. It returns the first non-nil
// error (FailFast semantics) or nil on success.
func (g *Group) Wait() error {
	g.mu.Lock()
	s := g.s
	g.mu.Unlock()
	if s == nil {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.err
	}
	err := s.Wait()
	g.retire(s)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err == nil {
		g.err = err
	}
	return g.err
}
