package memdb

import (
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/logger"
)

// WithDocumentFactory sets the factory used to normalise stored documents.
func WithDocumentFactory(f domain.DocumentFactory) Option {
	return func(db *Database) {
		db.docFac = f
	}
}

// WithComparer sets the comparer used for sorting and index keys.
func WithComparer(c domain.Comparer) Option {
	return func(db *Database) {
		db.comp = c
	}
}

// WithFieldNavigator sets the navigator used to resolve dotted paths.
func WithFieldNavigator(f domain.FieldNavigator) Option {
	return func(db *Database) {
		db.fn = f
	}
}

// WithMatcher sets the matcher evaluating filters and validators.
func WithMatcher(m domain.Matcher) Option {
	return func(db *Database) {
		db.matcher = m
	}
}

// WithModifier sets the modifier applying update documents.
func WithModifier(m domain.Modifier) Option {
	return func(db *Database) {
		db.modifier = m
	}
}

// WithProjector sets the projector used by find operations.
func WithProjector(p domain.Projector) Option {
	return func(db *Database) {
		db.projector = p
	}
}

// WithIDGenerator sets the generator of missing _id values.
func WithIDGenerator(g domain.IDGenerator) Option {
	return func(db *Database) {
		db.idGen = g
	}
}

// WithTimeGetter sets the clock used by $currentDate and stamped into
// generated object ids.
func WithTimeGetter(t domain.TimeGetter) Option {
	return func(db *Database) {
		db.timeGetter = t
	}
}

// WithLogger sets the logger receiving DDL events and validation warnings.
func WithLogger(l logger.Logger) Option {
	return func(db *Database) {
		db.log = l
	}
}

// Option configures Database behavior through the functional options pattern.
type Option func(*Database)
