package modifier

import "github.com/vinicius-lino-figueiredo/gedm/domain"

// WithDocumentFactory sets the document factory used to copy documents
// before modifying them.
func WithDocumentFactory(d domain.DocumentFactory) Option {
	return func(m *Modifier) {
		m.docFac = d
	}
}

// WithComparer sets the comparer used by $max, $min, $addToSet and $push
// sorting.
func WithComparer(c domain.Comparer) Option {
	return func(m *Modifier) {
		m.comp = c
	}
}

// WithFieldNavigator sets the field navigator used to resolve dotted paths.
func WithFieldNavigator(f domain.FieldNavigator) Option {
	return func(m *Modifier) {
		m.fieldNavigator = f
	}
}

// WithMatcher sets the matcher used by $pull conditions.
func WithMatcher(mt domain.Matcher) Option {
	return func(m *Modifier) {
		m.matcher = mt
	}
}

// WithTimeGetter sets the time source of $currentDate.
func WithTimeGetter(t domain.TimeGetter) Option {
	return func(m *Modifier) {
		m.timeGetter = t
	}
}

// Option configures modifier behavior through the functional options pattern.
type Option func(*Modifier)
