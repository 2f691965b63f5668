package scope

import (
	"context"
	"time"
)

// Handle is the join point of a single task.
type Handle[R any] struct {
	done  chan struct{}
	value R
	err   error
}

// Spawn starts fn as a task of s and returns its handle without blocking.
// It may be called from any goroutine, including tasks of s. If s has
// already been joined the task is not started and the handle reports
// ErrScopeClosed.
func Spawn[R any](s *Scope, fn func(ctx context.Context) (R, error)) *Handle[R] {
	h := &Handle[R]{done: make(chan struct{})}
	var zero R
	if fn == nil {
		h.finish(zero, ErrNilTask)
		return h
	}
	if !s.register(h) {
		s.log.Error("scope: task spawned on a joined scope", "error", ErrScopeClosed)
		h.finish(zero, ErrScopeClosed)
		return h
	}
	go runTask(s, h, fn)
	return h
}

// Join blocks until the task has finished and returns its result. Writes
// made by the task are visible to the caller once Join returns.
func (h *Handle[R]) Join() (R, error) {
	<-h.done
	return h.value, h.err
}

// Done is closed when the task has finished.
func (h *Handle[R]) Done() <-chan struct{} { return h.done }

func (h *Handle[R]) join() { <-h.done }

func (h *Handle[R]) finish(v R, err error) {
	h.value, h.err = v, err
	close(h.done)
}

func runTask[R any](s *Scope, h *Handle[R], fn func(ctx context.Context) (R, error)) {
	var (
		val      R
		err      error
		start    time.Time
		started  bool
		returned bool
		panicked bool
	)
	// The failure is recorded before the handle is finished so a drain that
	// joined the handle also sees it.
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = newPanicError(r)
			if !s.opts.PanicAsError {
				s.log.Error("scope: task panicked", "panic", r)
				s.taskFinished(started, start, nil, true)
				h.finish(val, err)
				panic(r)
			}
			s.log.Warn("scope: task panicked", "panic", r)
		} else if !returned {
			// runtime.Goexit unwound the task
			err = ErrTaskExited
			s.log.Warn("scope: task exited without returning")
		}
		if err != nil {
			s.fail(err)
		}
		s.taskFinished(started, start, err, panicked)
		h.finish(val, err)
	}()

	if s.lim != nil {
		if err = s.lim.Acquire(s.ctx); err != nil {
			returned = true
			return
		}
		defer s.lim.Release()
	}

	if s.obs != nil {
		start = time.Now()
		s.obs.TaskStarted(s.ctx)
	}
	started = true
	val, err = fn(s.ctx)
	returned = true
}

func (s *Scope) taskFinished(started bool, start time.Time, err error, panicked bool) {
	if !started || s.obs == nil {
		return
	}
	s.obs.TaskFinished(s.ctx, time.Since(start), err, panicked)
}
