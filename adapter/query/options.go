package query

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/vinicius-lino-figueiredo/gedm/pkg/logger"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/metrics"
)

// WithLogger sets the logger used to trace executed filters.
func WithLogger(l logger.Logger) Option {
	return func(q *Query) {
		q.log = l
	}
}

// WithTracer sets the tracer used to open a span per execution.
func WithTracer(t trace.Tracer) Option {
	return func(q *Query) {
		q.inst.Tracer = t
	}
}

// WithRecorder sets the recorder observing every execution.
func WithRecorder(r *metrics.Recorder) Option {
	return func(q *Query) {
		q.inst.Recorder = r
	}
}

// Option configures a query through the functional options pattern.
type Option func(*Query)
