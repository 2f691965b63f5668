package shared

import (
	"log/slog"
	"time"
)

// Observer is notified of value lifecycles. Implementations must be safe
// for concurrent use.
type Observer interface {
	ValueCreated()
	ValueDestroyed(lifetime time.Duration)
}

type Option func(*options)

type options struct {
	obs       Observer
	log       *slog.Logger
	noCleanup bool
}

func WithObserver(obs Observer) Option { return func(o *options) { o.obs = obs } }

// WithLogger sets the logger used for destructor errors.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

// WithoutCleanup disables dropping of unreachable handles by the GC. Every
// handle must then be dropped explicitly or the value is never destroyed.
func WithoutCleanup() Option { return func(o *options) { o.noCleanup = true } }
