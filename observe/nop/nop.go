// Package nop provides an observer that discards every event.
package nop

import (
	"context"
	"time"
)

// Nop implements scope.Observer and shared.Observer and does nothing. It is
// a stand-in where an observer is required but no telemetry is wanted.
type Nop struct{}

// New returns a no-op observer.
func New() *Nop { return &Nop{} }

func (*Nop) ScopeCreated(context.Context)                             {}
func (*Nop) ScopeCancelled(context.Context, error)                    {}
func (*Nop) ScopeJoined(context.Context, time.Duration)               {}
func (*Nop) TaskStarted(context.Context)                              {}
func (*Nop) TaskFinished(context.Context, time.Duration, error, bool) {}
func (*Nop) ValueCreated()                                            {}
func (*Nop) ValueDestroyed(time.Duration)                             {}
