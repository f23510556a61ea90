// Package metrics contains the prometheus collectors updated by the datastore.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeConflict = "conflict"
)

// Recorder groups the datastore collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	conflicts  *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gedm_operations_total",
				Help: "Total number of datastore operations",
			},
			[]string{"collection", "operation", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gedm_operation_duration_seconds",
				Help:    "Datastore operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collection", "operation"},
		),
		conflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gedm_concurrent_modifications_total",
				Help: "Total number of versioned writes rejected for a stale version",
			},
			[]string{"collection"},
		),
	}

	for _, c := range []prometheus.Collector{r.operations, r.duration, r.conflicts} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return nil, err
			}
		}
	}
	return r, nil
}

// Observe records one operation.
func (r *Recorder) Observe(collection, operation, outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(collection, operation, outcome).Inc()
	r.duration.WithLabelValues(collection, operation).Observe(d.Seconds())
	if outcome == OutcomeConflict {
		r.conflicts.WithLabelValues(collection).Inc()
	}
}
