// Package scope provides structured-concurrency primitives for Go.
// Scopes own the tasks they spawn, provide a join point (Wait), and
// propagate cancellation and errors predictably according to a policy.
//
// Run is the usual entry point. It hands the body a *Scope, and does not
// return until every task registered on that scope has finished, including
// tasks spawned by other tasks while the scope was being joined:
//
//	err := scope.Run(ctx, func(s *scope.Scope) error {
//		h := scope.Spawn(s, func(ctx context.Context) (int, error) {
//			return fetch(ctx)
//		})
//		s.Go(func(ctx context.Context) error { return index(ctx) })
//		n, err := h.Join()
//		...
//	})
//
// The first recorded failure is returned. Later failures are logged at
// debug level and reported to the Observer.
package scope
