package idgenerator

import (
	"io"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// WithReader sets the source of the random bytes of UUID identifiers.
// Defaults to crypto/rand.
func WithReader(r io.Reader) Option {
	return func(g *IDGenerator) {
		g.reader = r
	}
}

// WithTimeGetter sets the clock stamped into new object ids. Defaults to the
// wall clock.
func WithTimeGetter(t domain.TimeGetter) Option {
	return func(g *IDGenerator) {
		g.clock = t
	}
}

// Option configures IDGenerator behavior through the functional options pattern.
type Option func(*IDGenerator)
