package scope

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Observer interface {
	ScopeCreated(ctx context.Context)
	ScopeCancelled(ctx context.Context, cause error)
	ScopeJoined(ctx context.Context, wait time.Duration)
	TaskStarted(ctx context.Context)
	TaskFinished(ctx context.Context, dur time.Duration, err error, panicked bool)
}

// joiner is anything a drain blocks on: task handles and child scopes.
type joiner interface {
	join()
}

// Scope owns a set of tasks. Tasks may be added from any goroutine,
// including tasks of the same scope, until Wait has joined all of them.
type Scope struct {
	ctx    context.Context
	cancel context.CancelFunc
	policy Policy

	mu       sync.Mutex
	pending  []joiner
	closed   bool
	firstErr error
	canceled bool
	dropped  int

	drainOnce sync.Once

	opts Options
	obs  Observer
	lim  Limiter
	log  *slog.Logger
}

func New(parent context.Context, policy Policy, optFns ...Option) *Scope {
	if parent == nil {
		parent = context.Background()
	}
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return newScope(parent, policy, opts)
}

func newScope(parent context.Context, policy Policy, opts Options) *Scope {
	ctx, cancel := context.WithCancel(parent)
	if opts.Timeout > 0 {
		tctx, tcancel := context.WithTimeout(ctx, opts.Timeout)
		outer := cancel
		ctx, cancel = tctx, func() {
			tcancel()
			outer()
		}
	}
	s := &Scope{ctx: ctx, cancel: cancel, policy: policy, opts: opts}
	s.obs = opts.Observer
	s.lim = newLimiter(opts)
	s.log = opts.Logger
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}
	if s.obs != nil {
		s.obs.ScopeCreated(ctx)
	}
	return s
}

func (s *Scope) Context() context.Context { return s.ctx }

func (s *Scope) Policy() Policy { return s.policy }

// Go starts fn as a task of the scope. It never blocks. A nil fn is ignored.
func (s *Scope) Go(fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	Spawn(s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

func (s *Scope) Cancel(err error) {
	s.mu.Lock()
	wasCanceled := s.canceled
	s.canceled = true
	if s.firstErr == nil && err != nil {
		s.firstErr = err
	}
	cause := s.firstErr
	s.mu.Unlock()

	s.cancel()
	if !wasCanceled && s.obs != nil {
		s.obs.ScopeCancelled(s.ctx, cause)
	}
}

// Wait blocks until every task and child scope registered on s has
// finished, then closes s to new registrations and returns the first
// recorded failure. It returns the same result on every call. Calling Wait
// from one of the scope's own tasks deadlocks.
func (s *Scope) Wait() error {
	s.drainOnce.Do(s.drain)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstErr
}

// drain joins pending work in batches until a pass finds nothing new. A
// task can only register more work while it is running, and it is running
// until its handle is joined, so every such registration lands in pending
// before the pass that joins the task ends. The scope is closed under the
// same lock that observed the empty batch.
func (s *Scope) drain() {
	var start time.Time
	if s.obs != nil {
		start = time.Now()
	}
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		if len(batch) == 0 {
			s.closed = true
			dropped := s.dropped
			s.mu.Unlock()
			if dropped > 0 {
				s.log.Debug("scope: joined with discarded failures", "discarded", dropped)
			}
			s.cancel()
			if s.obs != nil {
				s.obs.ScopeJoined(s.ctx, time.Since(start))
			}
			return
		}
		s.mu.Unlock()
		for _, j := range batch {
			j.join()
		}
	}
}

// join lets a parent scope drain a child.
func (s *Scope) join() { _ = s.Wait() }

func (s *Scope) register(j joiner) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.pending = append(s.pending, j)
	return true
}

func (s *Scope) fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	first := s.firstErr == nil
	if first {
		s.firstErr = err
	} else {
		s.dropped++
	}
	shouldCancel := s.policy == FailFast
	cause := s.firstErr
	s.mu.Unlock()
	if !first {
		s.log.Debug("scope: discarding secondary failure", "error", err, "first", cause)
	}
	if shouldCancel {
		s.Cancel(cause)
	}
}

// Child opens a nested scope whose context derives from s. The parent's
// Wait also waits for the child; the child's failures are reported by the
// child's own Wait and do not fail the parent.
func (s *Scope) Child(policy Policy, optFns ...Option) *Scope {
	childOpts := s.opts
	for _, fn := range optFns {
		fn(&childOpts)
	}
	cs := newScope(s.ctx, policy, childOpts)
	if !s.register(cs) {
		s.log.Error("scope: child opened on a joined scope", "error", ErrScopeClosed)
		cs.mu.Lock()
		cs.closed = true
		cs.firstErr = ErrScopeClosed
		cs.mu.Unlock()
		cs.cancel()
	}
	return cs
}
