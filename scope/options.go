package scope

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

type Policy int

const (
	// FailFast cancels the scope context on the first failure.
	FailFast Policy = iota
	// Supervisor records failures and leaves siblings running.
	Supervisor
)

func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case Supervisor:
		return "supervisor"
	default:
		return "unknown"
	}
}

type Option func(*Options)

type Options struct {
	PanicAsError   bool
	Observer       Observer
	MaxConcurrency int
	Limiter        Limiter
	RateLimit      rate.Limit
	RateBurst      int
	Timeout        time.Duration
	Logger         *slog.Logger

	// Policy is only read by Run and RunResult; New takes it as an argument.
	Policy Policy
}

func defaultOptions() Options { return Options{PanicAsError: true, Policy: Supervisor} }

func WithPanicAsError(v bool) Option { return func(o *Options) { o.PanicAsError = v } }

func WithObserver(obs Observer) Option { return func(o *Options) { o.Observer = obs } }

func WithMaxConcurrency(n int) Option { return func(o *Options) { o.MaxConcurrency = n } }

// WithLimiter adds a custom Limiter, acquired after the built-in ones.
func WithLimiter(l Limiter) Option { return func(o *Options) { o.Limiter = l } }

// WithRateLimit gates task start with a token bucket. A burst below one is
// treated as one.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(o *Options) {
		o.RateLimit = r
		o.RateBurst = burst
	}
}

// WithTimeout bounds the scope context with a deadline.
func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }

func WithPolicy(p Policy) Option { return func(o *Options) { o.Policy = p } }

func WithLogger(l *slog.Logger) Option { return func(o *Options) { o.Logger = l } }
