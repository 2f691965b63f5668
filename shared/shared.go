package shared

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"runtime"
	"sync/atomic"
	"time"
)

// MaxRefs bounds the strong and weak counts.
const MaxRefs = math.MaxInt64 / 2

var (
	// ErrDropped is the panic value for use of a dropped handle.
	ErrDropped = errors.New("shared: use of dropped handle")

	// ErrOverflow is the panic value when a count would pass MaxRefs.
	ErrOverflow = errors.New("shared: reference count overflow")

	errResurrect = errors.New("shared: clone of a destroyed value")
	errUnderflow = errors.New("shared: reference count underflow")
)

// control is shared by every handle of one value. The strong handles
// collectively hold one weak reference, released after destruction.
type control[T any] struct {
	strong atomic.Int64
	weak   atomic.Int64

	value   T
	release func(T)

	obs     Observer
	log     *slog.Logger
	born    time.Time
	cleanup bool
}

// Each handle drops through a guard, so a handle contributes at most one
// decrement however many times (or from however many goroutines) Drop is
// called. The guard is a separate allocation so a GC cleanup can reach it
// without keeping the handle reachable.
type guard[T any] struct {
	cb      *control[T]
	dropped atomic.Bool
}

func (g *guard[T]) dropStrong() bool {
	if !g.dropped.CompareAndSwap(false, true) {
		return false
	}
	return g.cb.decStrong()
}

func (g *guard[T]) dropWeak() {
	if g.dropped.CompareAndSwap(false, true) {
		g.cb.decWeak()
	}
}

// Shared is one strong reference to a value.
type Shared[T any] struct {
	g          *guard[T]
	cleanup    runtime.Cleanup
	hasCleanup bool
}

// New wraps value with a strong count of one. If value implements
// io.Closer, Close runs when the last handle is dropped.
func New[T any](value T, opts ...Option) *Shared[T] {
	return NewWithRelease(value, nil, opts...)
}

// NewWithRelease is New with an explicit destructor. A nil release falls
// back to io.Closer.
func NewWithRelease[T any](value T, release func(T), opts ...Option) *Shared[T] {
	o := options{}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = slog.New(slog.DiscardHandler)
	}
	cb := &control[T]{
		value:   value,
		release: release,
		obs:     o.obs,
		log:     o.log,
		cleanup: !o.noCleanup,
	}
	cb.strong.Store(1)
	cb.weak.Store(1)
	if cb.obs != nil {
		cb.born = time.Now()
		cb.obs.ValueCreated()
	}
	return newShared(cb)
}

func newShared[T any](cb *control[T]) *Shared[T] {
	s := &Shared[T]{g: &guard[T]{cb: cb}}
	if cb.cleanup {
		s.cleanup = runtime.AddCleanup(s, func(g *guard[T]) { g.dropStrong() }, s.g)
		s.hasCleanup = true
	}
	return s
}

// Get returns the value. It panics with ErrDropped if s was dropped.
func (s *Shared[T]) Get() T {
	s.mustLive()
	v := s.g.cb.value
	// A caller's last use of s may be this call; its cleanup must not
	// drop the reference before the value has been read.
	runtime.KeepAlive(s)
	return v
}

// Clone returns a new handle to the same value. The increment is
// unconditional: s being live already keeps the count above zero.
func (s *Shared[T]) Clone() *Shared[T] {
	s.mustLive()
	cb := s.g.cb
	n := cb.strong.Add(1)
	switch {
	case n <= 1:
		panic(errResurrect)
	case n > MaxRefs:
		cb.strong.Add(-1)
		panic(ErrOverflow)
	}
	c := newShared(cb)
	runtime.KeepAlive(s)
	return c
}

// Drop releases s's reference and reports whether this call destroyed the
// value. Dropping a handle twice has no effect.
func (s *Shared[T]) Drop() bool {
	if s.hasCleanup {
		s.cleanup.Stop()
	}
	destroyed := s.g.dropStrong()
	// s must stay reachable until its guard is settled, or the cleanup
	// could run concurrently with the Stop above.
	runtime.KeepAlive(s)
	return destroyed
}

// Downgrade returns a weak reference that does not keep the value alive.
func (s *Shared[T]) Downgrade() *Weak[T] {
	s.mustLive()
	cb := s.g.cb
	if n := cb.weak.Add(1); n > MaxRefs {
		cb.weak.Add(-1)
		panic(ErrOverflow)
	}
	w := newWeak(cb)
	runtime.KeepAlive(s)
	return w
}

// StrongCount is a snapshot of the number of live strong handles.
func (s *Shared[T]) StrongCount() int64 { return s.g.cb.strong.Load() }

// WeakCount is a snapshot of the number of live weak handles.
func (s *Shared[T]) WeakCount() int64 { return s.g.cb.weakCount() }

func (s *Shared[T]) mustLive() {
	if s.g.dropped.Load() {
		panic(ErrDropped)
	}
}

func (cb *control[T]) decStrong() bool {
	n := cb.strong.Add(-1)
	if n > 0 {
		return false
	}
	if n < 0 {
		panic(errUnderflow)
	}
	// Every other handle's decrement precedes ours in the count's
	// modification order, so their writes are visible here.
	cb.destroy()
	return true
}

func (cb *control[T]) destroy() {
	v := cb.value
	var zero T
	cb.value = zero
	switch {
	case cb.release != nil:
		cb.release(v)
	default:
		if c, ok := any(v).(io.Closer); ok {
			if err := c.Close(); err != nil {
				cb.log.Error("shared: close failed", "error", err)
			}
		}
	}
	if cb.obs != nil {
		cb.obs.ValueDestroyed(time.Since(cb.born))
	}
	cb.decWeak()
}

func (cb *control[T]) decWeak() {
	if n := cb.weak.Add(-1); n < 0 {
		panic(errUnderflow)
	}
}

func (cb *control[T]) weakCount() int64 {
	w := cb.weak.Load()
	if cb.strong.Load() > 0 {
		w--
	}
	if w < 0 {
		return 0
	}
	return w
}
