package datastore

import (
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/logger"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/metrics"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/tracing"
)

// WithMapper sets the mapper describing the entity types. A new mapper is
// created when none is given.
func WithMapper(m *mapper.Mapper) Option {
	return func(ds *Datastore) {
		ds.mapper = m
	}
}

// WithDecoder sets the decoder used by the codec to convert leaf values.
func WithDecoder(d domain.Decoder) Option {
	return func(ds *Datastore) {
		ds.decoder = d
	}
}

// WithIDGenerator sets the generator of identifiers for entities saved
// without one.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(ds *Datastore) {
		ds.idGenerator = g
	}
}

// WithWriteConcern sets the default write concern. It is overridden by the
// write concern of an entity and by the one given to an operation.
func WithWriteConcern(wc *writeconcern.WriteConcern) Option {
	return func(ds *Datastore) {
		ds.writeConcern = wc
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(ds *Datastore) {
		ds.log = l
	}
}

// WithTracerProvider sets the provider of the tracer opening a span per
// database round trip.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(ds *Datastore) {
		ds.inst.Tracer = tracing.Tracer(tp)
	}
}

// WithRecorder sets the recorder observing every database round trip.
func WithRecorder(r *metrics.Recorder) Option {
	return func(ds *Datastore) {
		ds.inst.Recorder = r
	}
}

// Option configures datastore behavior through the functional options
// pattern.
type Option func(*Datastore)
