package shared

import "runtime"

// Weak refers to a value without keeping it alive.
type Weak[T any] struct {
	g          *guard[T]
	cleanup    runtime.Cleanup
	hasCleanup bool
}

func newWeak[T any](cb *control[T]) *Weak[T] {
	w := &Weak[T]{g: &guard[T]{cb: cb}}
	if cb.cleanup {
		w.cleanup = runtime.AddCleanup(w, func(g *guard[T]) { g.dropWeak() }, w.g)
		w.hasCleanup = true
	}
	return w
}

// Upgrade returns a new strong handle if the value has not been destroyed.
// Unlike Clone it must never move the count off zero, hence the CAS loop.
func (w *Weak[T]) Upgrade() (*Shared[T], bool) {
	if w.g.dropped.Load() {
		return nil, false
	}
	cb := w.g.cb
	for {
		n := cb.strong.Load()
		if n == 0 {
			return nil, false
		}
		if n >= MaxRefs {
			panic(ErrOverflow)
		}
		if cb.strong.CompareAndSwap(n, n+1) {
			s := newShared(cb)
			runtime.KeepAlive(w)
			return s, true
		}
	}
}

// Drop releases the weak reference. Dropping twice has no effect.
func (w *Weak[T]) Drop() {
	if w.hasCleanup {
		w.cleanup.Stop()
	}
	w.g.dropWeak()
	runtime.KeepAlive(w)
}

// StrongCount is a snapshot of the number of live strong handles.
func (w *Weak[T]) StrongCount() int64 { return w.g.cb.strong.Load() }
