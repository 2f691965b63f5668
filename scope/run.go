package scope

import "context"

// Run opens a scope, runs body with it, and joins every task registered on
// the scope before returning, whether body returns or panics. An error
// returned by body is recorded like a task failure. The result is the first
// recorded failure, or nil.
//
// Run uses the Supervisor policy unless WithPolicy says otherwise.
func Run(ctx context.Context, body func(s *Scope) error, optFns ...Option) error {
	_, err := RunResult(ctx, func(s *Scope) (struct{}, error) {
		if body == nil {
			return struct{}{}, nil
		}
		return struct{}{}, body(s)
	}, optFns...)
	return err
}

// RunResult is Run for bodies that produce a value. The value is returned
// only if no failure was recorded.
func RunResult[R any](ctx context.Context, body func(s *Scope) (R, error), optFns ...Option) (R, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	s := newScope(ctx, opts.Policy, opts)

	var zero R
	if body == nil {
		return zero, s.Wait()
	}

	returned := false
	defer func() {
		// body panicked or called runtime.Goexit; the panic keeps unwinding
		// once every task is joined.
		if !returned {
			_ = s.Wait()
		}
	}()
	res, err := body(s)
	returned = true

	if err != nil {
		s.fail(err)
	}
	if err := s.Wait(); err != nil {
		return zero, err
	}
	return res, nil
}
