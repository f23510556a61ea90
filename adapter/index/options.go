package index

import "github.com/vinicius-lino-figueiredo/gedm/pkg/logger"

// WithLogger sets the logger used to report index creation.
func WithLogger(l logger.Logger) Option {
	return func(h *Helper) {
		h.log = l
	}
}

// Option configures the index helper through the functional options
// pattern.
type Option func(*Helper)
