package mapper

import (
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/logger"
)

// WithDiscriminatorKey sets the document key holding the type discriminator.
// Defaults to [DefaultDiscriminatorKey].
func WithDiscriminatorKey(k string) Option {
	return func(m *Mapper) {
		m.discriminatorKey = k
	}
}

// WithStoreNulls enables writing nil pointers, interfaces, maps and slices as
// BSON null instead of omitting them.
func WithStoreNulls(s bool) Option {
	return func(m *Mapper) {
		m.storeNulls = s
	}
}

// WithStoreEmpties enables writing empty slices and maps instead of omitting
// them.
func WithStoreEmpties(s bool) Option {
	return func(m *Mapper) {
		m.storeEmpties = s
	}
}

// WithInterceptors registers lifecycle interceptors on the mapper.
func WithInterceptors(i ...domain.Interceptor) Option {
	return func(m *Mapper) {
		m.interceptors = append(m.interceptors, i...)
	}
}

// WithLogger sets the logger used to report class mapping.
func WithLogger(l logger.Logger) Option {
	return func(m *Mapper) {
		m.log = l
	}
}

// Option configures mapper behavior through the functional options pattern.
type Option func(*Mapper)
