package matcher

import "github.com/vinicius-lino-figueiredo/gedm/domain"

// WithDocumentFactory sets how filters and $elemMatch operands given as maps
// or structs are turned into documents before compiling.
func WithDocumentFactory(d domain.DocumentFactory) Option {
	return func(m *Matcher) {
		m.documentFactory = d
	}
}

// WithComparer sets the ordering used by $lt, $lte, $gt and $gte and the
// equality used by every other operator.
func WithComparer(c domain.Comparer) Option {
	return func(m *Matcher) {
		m.comparer = c
	}
}

// WithFieldNavigator sets how rule addresses are resolved, including the
// expansion of arrays along a dotted path.
func WithFieldNavigator(f domain.FieldNavigator) Option {
	return func(m *Matcher) {
		m.fieldNavigator = f
	}
}

// Option configures Matcher behavior through the functional options pattern.
type Option func(*Matcher)
