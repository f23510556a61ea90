// Package instrument wraps datastore operations with a span and a metric
// observation.
package instrument

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/metrics"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/tracing"
)

// Instrument holds the tracer and the recorder used around operations. The
// zero value traces through the global provider and records nothing.
type Instrument struct {
	Tracer   trace.Tracer
	Recorder *metrics.Recorder
}

// Run calls fn inside a span named after operation and records its duration
// and outcome.
func (i Instrument) Run(ctx context.Context, operation, collection string, fn func(context.Context) error) error {
	t := i.Tracer
	if t == nil {
		t = tracing.Tracer(nil)
	}
	ctx, span := tracing.Start(ctx, t, operation, collection)
	start := time.Now()

	err := fn(ctx)

	i.Recorder.Observe(collection, operation, Outcome(err), time.Since(start))
	tracing.End(span, err)
	return err
}

// Outcome classifies err as a metric outcome label. A missing document is
// not counted as an error.
func Outcome(err error) string {
	var cme *domain.ConcurrentModificationError
	switch {
	case err == nil, errors.Is(err, domain.ErrNotFound):
		return metrics.OutcomeSuccess
	case errors.As(err, &cme):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}
