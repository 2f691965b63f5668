package scope

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestGoWaitSuccess(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), FailFast)
	done := atomic.Int32{}
	s.Go(func(_ context.Context) error {
		done.Add(1)
		return nil
	})
	require.NoError(t, s.Wait())
	assert.EqualValues(t, 1, done.Load(), "task should run once")
}

func TestCancelIdempotentMultiWait(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), FailFast)
	s.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s.Cancel(errors.New("stop"))
	s.Cancel(nil)
	err1 := s.Wait()
	err2 := s.Wait()
	require.Error(t, s.Context().Err(), "scope context should be canceled after Wait")
	require.Error(t, err1)
	require.Error(t, err2)
	assert.Equal(t, err1.Error(), err2.Error(), "Wait should return the same error")
}

func TestFailFastCancelsSiblings(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), FailFast)
	blocked := make(chan struct{})

	s.Go(func(ctx context.Context) error {
		select {
		case <-time.After(200 * time.Millisecond):
			t.Error("sibling was not cancelled by fail-fast")
			return nil
		case <-ctx.Done():
			close(blocked)
			return ctx.Err()
		}
	})
	s.Go(func(_ context.Context) error {
		time.Sleep(30 * time.Millisecond)
		return errors.New("boom")
	})
	require.Error(t, s.Wait(), "expected error from fail-fast scope")
	select {
	case <-blocked:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("sibling did not observe cancellation in time")
	}
}

func TestSupervisorDoesNotCancelSiblings(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), Supervisor)
	done := make(chan struct{})
	s.Go(func(_ context.Context) error {
		time.Sleep(40 * time.Millisecond)
		close(done)
		return nil
	})
	s.Go(func(_ context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return errors.New("err")
	})
	require.Error(t, s.Wait())
	select {
	case <-done:
	case <-time.After(150 * time.Millisecond):
		t.Fatal("sibling should not be cancelled under Supervisor policy")
	}
}

func TestPanicAsErrorConverted(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), FailFast, WithPanicAsError(true))
	s.Go(func(ctx context.Context) error {
		panic("panic-value")
	})
	err := s.Wait()
	require.Error(t, err)
	assert.NotEqual(t, "panic-value", err.Error())
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "panic-value", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestPanicErrorUnwrapsErrorValue(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("sentinel")
	s := New(context.Background(), Supervisor)
	s.Go(func(context.Context) error { panic(sentinel) })
	require.ErrorIs(t, s.Wait(), sentinel)
}

func TestGoexitIsTaskFailure(t *testing.T) {
	t.Parallel()
	var sibling atomic.Bool
	var h *Handle[int]
	err := Run(context.Background(), func(s *Scope) error {
		h = Spawn(s, func(context.Context) (int, error) {
			runtime.Goexit()
			return 1, nil
		})
		s.Go(func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			sibling.Store(true)
			return nil
		})
		return nil
	})
	require.ErrorIs(t, err, ErrTaskExited)
	v, jerr := h.Join()
	require.ErrorIs(t, jerr, ErrTaskExited)
	assert.Zero(t, v)
	assert.True(t, sibling.Load(), "sibling still joined")
}

func TestChildCancellation(t *testing.T) {
	t.Parallel()
	parent := New(context.Background(), FailFast)
	child := parent.Child(FailFast)
	cancelObserved := make(chan struct{})
	child.Go(func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelObserved)
		return ctx.Err()
	})
	parent.Cancel(errors.New("stop"))
	_ = parent.Wait()
	// parent.Wait drains the child, so the child task has already returned.
	select {
	case <-cancelObserved:
	default:
		t.Fatal("parent Wait returned before the child task finished")
	}
}

func TestChildFailureStaysInChild(t *testing.T) {
	t.Parallel()
	parent := New(context.Background(), Supervisor)
	child := parent.Child(Supervisor)
	boom := errors.New("child boom")
	child.Go(func(context.Context) error { return boom })
	require.NoError(t, parent.Wait(), "parent should not inherit child failure")
	require.ErrorIs(t, child.Wait(), boom)
}

func TestChildOfJoinedScopeIsClosed(t *testing.T) {
	t.Parallel()
	parent := New(context.Background(), Supervisor)
	_ = parent.Wait()
	child := parent.Child(Supervisor)
	h := Spawn(child, func(context.Context) (int, error) { return 1, nil })
	_, err := h.Join()
	require.ErrorIs(t, err, ErrScopeClosed)
	require.ErrorIs(t, child.Wait(), ErrScopeClosed)
}

type countObserver struct {
	started  atomic.Int64
	finished atomic.Int64
	joined   atomic.Int64
	cancel   atomic.Int64
	errored  atomic.Int64
	panicked atomic.Int64
}

func (o *countObserver) ScopeCreated(_ context.Context)                 {}
func (o *countObserver) ScopeCancelled(_ context.Context, _ error)      { o.cancel.Add(1) }
func (o *countObserver) ScopeJoined(_ context.Context, _ time.Duration) { o.joined.Add(1) }
func (o *countObserver) TaskStarted(_ context.Context)                  { o.started.Add(1) }
func (o *countObserver) TaskFinished(_ context.Context, _ time.Duration, err error, panicked bool) {
	o.finished.Add(1)
	if err != nil {
		o.errored.Add(1)
	}
	if panicked {
		o.panicked.Add(1)
	}
}

func TestObserverHooks(t *testing.T) {
	t.Parallel()
	obs := &countObserver{}
	s := New(context.Background(), FailFast, WithObserver(obs))
	s.Go(func(_ context.Context) error { return nil })
	s.Go(func(_ context.Context) error { return nil })
	require.NoError(t, s.Wait())
	assert.EqualValues(t, 2, obs.started.Load())
	assert.EqualValues(t, 2, obs.finished.Load())
	assert.EqualValues(t, 1, obs.joined.Load())
}

func TestObserverJoinReportedOncePerScope(t *testing.T) {
	t.Parallel()
	obs := &countObserver{}
	parent := New(context.Background(), Supervisor, WithObserver(obs))
	child := parent.Child(Supervisor)
	child.Go(func(context.Context) error { return nil })
	require.NoError(t, child.Wait())
	require.NoError(t, parent.Wait())
	require.NoError(t, child.Wait())
	require.NoError(t, parent.Wait())
	assert.EqualValues(t, 2, obs.joined.Load(), "one join each for parent and child")
}

func TestObserverCountsFailuresAndPanics(t *testing.T) {
	t.Parallel()
	obs := &countObserver{}
	s := New(context.Background(), Supervisor, WithObserver(obs))
	s.Go(func(context.Context) error { return errors.New("first") })
	s.Go(func(context.Context) error { panic("second") })
	s.Go(func(context.Context) error { return nil })
	require.Error(t, s.Wait())
	assert.EqualValues(t, 2, obs.errored.Load())
	assert.EqualValues(t, 1, obs.panicked.Load())
	assert.Zero(t, obs.cancel.Load(), "supervisor scope must not report cancellation")
}
