package projector

import "github.com/vinicius-lino-figueiredo/gedm/domain"

// WithFieldNavigator sets how dotted projection paths are resolved. Defaults
// to a navigator over the projector's document factory.
func WithFieldNavigator(fn domain.FieldNavigator) Option {
	return func(p *Projector) {
		p.fn = fn
	}
}

// WithDocumentFactory sets the constructor of projected documents and of the
// subdocuments rebuilt for dotted inclusions.
func WithDocumentFactory(df domain.DocumentFactory) Option {
	return func(p *Projector) {
		p.docFac = df
	}
}

// Option configures Projector behavior through the functional options pattern.
type Option func(*Projector)
