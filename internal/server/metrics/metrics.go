// Package metrics exposes Prometheus counters for the membership services.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"database/sql"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "membership"

var histogramBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Validation results.
const (
	ResultSuccess    = "success"
	ResultBadPass    = "bad_password"
	ResultLocked     = "locked"
	ResultUnknown    = "unknown_user"
	ResultUnapproved = "unapproved"
	ResultError      = "error"
)

// Metrics groups the collectors recorded by the services.
type Metrics struct {
	validations *prometheus.CounterVec
	lockouts    *prometheus.CounterVec
	scopes      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. Collectors already
// registered on reg are reused.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Credential validations by result",
		}, []string{"result"}),
		lockouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lockouts_total",
			Help:      "Accounts locked out by failure category",
		}, []string{"category"}),
		scopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_of_work_total",
			Help:      "Completed units of work by operation and outcome",
		}, []string{"operation", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency distribution of service operations",
			Buckets:   histogramBuckets,
		}, []string{"operation"}),
	}

	var err error
	if m.validations, err = register(reg, m.validations); err != nil {
		return nil, err
	}
	if m.lockouts, err = register(reg, m.lockouts); err != nil {
		return nil, err
	}
	if m.scopes, err = register(reg, m.scopes); err != nil {
		return nil, err
	}
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RegisterDBStats exports database/sql pool statistics for db.
func RegisterDBStats(reg prometheus.Registerer, db *sql.DB, name string) error {
	err := reg.Register(collectors.NewDBStatsCollector(db, name))
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return nil
	}
	return err
}

func (m *Metrics) Validation(result string) {
	if m == nil {
		return
	}
	m.validations.With(prometheus.Labels{"result": result}).Inc()
}

func (m *Metrics) Lockout(category string) {
	if m == nil {
		return
	}
	m.lockouts.With(prometheus.Labels{"category": category}).Inc()
}

// Operation records the outcome ("commit" or "rollback") and latency of
// one unit of work.
func (m *Metrics) Operation(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "commit"
	if err != nil {
		outcome = "rollback"
	}
	m.scopes.With(prometheus.Labels{"operation": op, "outcome": outcome}).Inc()
	m.duration.With(prometheus.Labels{"operation": op}).Observe(elapsed.Seconds())
}
