// Package prom exports scope and shared lifecycles as Prometheus metrics.
package prom

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics implements scope.Observer and shared.Observer.
type Metrics struct {
	// tasks
	activeTasks   prometheus.Gauge
	tasksStarted  prometheus.Counter
	tasksFinished prometheus.Counter
	tasksErrored  prometheus.Counter
	tasksPanicked prometheus.Counter
	taskDuration  prometheus.Histogram

	// scopes
	scopesCreated   prometheus.Counter
	scopesCancelled prometheus.Counter
	joinWait        prometheus.Histogram

	// shared values
	liveValues      prometheus.Gauge
	valuesCreated   prometheus.Counter
	valuesDestroyed prometheus.Counter
	valueLifetime   prometheus.Histogram
}

// New creates the collectors under namespace and registers them with reg.
// A nil reg leaves them unregistered.
func New(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	counter := func(subsystem, name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		})
	}
	gauge := func(subsystem, name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		})
	}
	histogram := func(subsystem, name, help string) prometheus.Histogram {
		return prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		})
	}
	m := &Metrics{
		activeTasks:   gauge("scope", "active_tasks", "Tasks currently running."),
		tasksStarted:  counter("scope", "tasks_started_total", "Tasks started."),
		tasksFinished: counter("scope", "tasks_finished_total", "Tasks finished."),
		tasksErrored:  counter("scope", "tasks_errored_total", "Tasks that returned an error or panicked."),
		tasksPanicked: counter("scope", "tasks_panicked_total", "Tasks that panicked."),
		taskDuration:  histogram("scope", "task_duration_seconds", "Task run time."),

		scopesCreated:   counter("scope", "scopes_created_total", "Scopes created."),
		scopesCancelled: counter("scope", "scopes_cancelled_total", "Scopes cancelled."),
		joinWait:        histogram("scope", "join_wait_seconds", "Time spent in Wait."),

		liveValues:      gauge("shared", "live_values", "Shared values not yet destroyed."),
		valuesCreated:   counter("shared", "values_created_total", "Shared values created."),
		valuesDestroyed: counter("shared", "values_destroyed_total", "Shared values destroyed."),
		valueLifetime:   histogram("shared", "value_lifetime_seconds", "Time from creation to destruction."),
	}
	if reg == nil {
		return m, nil
	}
	var errs []error
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.activeTasks, m.tasksStarted, m.tasksFinished, m.tasksErrored, m.tasksPanicked, m.taskDuration,
		m.scopesCreated, m.scopesCancelled, m.joinWait,
		m.liveValues, m.valuesCreated, m.valuesDestroyed, m.valueLifetime,
	}
}

func (m *Metrics) ScopeCreated(_ context.Context) { m.scopesCreated.Inc() }

func (m *Metrics) ScopeCancelled(_ context.Context, _ error) { m.scopesCancelled.Inc() }

func (m *Metrics) ScopeJoined(_ context.Context, wait time.Duration) {
	m.joinWait.Observe(wait.Seconds())
}

func (m *Metrics) TaskStarted(_ context.Context) {
	m.activeTasks.Inc()
	m.tasksStarted.Inc()
}

func (m *Metrics) TaskFinished(_ context.Context, dur time.Duration, err error, panicked bool) {
	m.activeTasks.Dec()
	m.tasksFinished.Inc()
	if err != nil {
		m.tasksErrored.Inc()
	}
	if panicked {
		m.tasksPanicked.Inc()
	}
	m.taskDuration.Observe(dur.Seconds())
}

func (m *Metrics) ValueCreated() {
	m.liveValues.Inc()
	m.valuesCreated.Inc()
}

func (m *Metrics) ValueDestroyed(lifetime time.Duration) {
	m.liveValues.Dec()
	m.valuesDestroyed.Inc()
	m.valueLifetime.Observe(lifetime.Seconds())
}
