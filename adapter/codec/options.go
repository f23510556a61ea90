package codec

import (
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/logger"
)

// WithDecoder sets the decoder used to convert stored leaf values into field
// types.
func WithDecoder(d domain.Decoder) Option {
	return func(c *Codec) {
		c.decoder = d
	}
}

// WithReferenceResolver sets the resolver used to load referenced entities.
// Without one, references are decoded as entities holding only their id.
func WithReferenceResolver(r domain.ReferenceResolver) Option {
	return func(c *Codec) {
		c.resolver = r
	}
}

// WithLogger sets the codec logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Codec) {
		c.log = l
	}
}

// Option configures codec behavior through the functional options pattern.
type Option func(*Codec)
