// Package mapper builds and caches the description of mapped struct types,
// and reads or writes the identifier and version of entities.
package mapper

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/logger"
)

// DefaultDiscriminatorKey is the document key holding the type discriminator.
const DefaultDiscriminatorKey = "className"

// Mapper maps struct types into [MappedClass] values. A type is mapped once;
// later lookups return the same *MappedClass. Mapper is safe for concurrent
// use.
type Mapper struct {
	mu           sync.RWMutex
	classes      map[reflect.Type]*MappedClass
	byDisc       map[string]*MappedClass
	interceptors []domain.Interceptor

	discriminatorKey string
	storeNulls       bool
	storeEmpties     bool
	log              logger.Logger
}

// NewMapper returns a new Mapper.
func NewMapper(opts ...Option) *Mapper {
	m := &Mapper{
		classes:          make(map[reflect.Type]*MappedClass),
		byDisc:           make(map[string]*MappedClass),
		discriminatorKey: DefaultDiscriminatorKey,
		log:              logger.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DiscriminatorKey returns the document key holding the type discriminator.
func (m *Mapper) DiscriminatorKey() string { return m.discriminatorKey }

// StoreNulls reports whether nil values are written.
func (m *Mapper) StoreNulls() bool { return m.storeNulls }

// StoreEmpties reports whether empty collections are written.
func (m *Mapper) StoreEmpties() bool { return m.storeEmpties }

// AddInterceptor registers an interceptor. It is called after every
// interceptor already registered.
func (m *Mapper) AddInterceptor(i domain.Interceptor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interceptors = append(m.interceptors, i)
}

// Interceptors returns the registered interceptors in registration order.
func (m *Mapper) Interceptors() []domain.Interceptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.interceptors)
}

// Map maps the types of the given values, which may also be [reflect.Type]
// values. Every type must either be an entity, declaring an identifier, or
// implement [domain.EmbeddedDescriber].
func (m *Mapper) Map(values ...any) error {
	for _, v := range values {
		mc, err := m.MappedClass(v)
		if err != nil {
			return err
		}
		if mc.ID == nil && mc.Embedded == nil {
			return &domain.MappingError{Type: mc.Type, Reason: "no field is marked as id"}
		}
	}
	return nil
}

// MappedClass returns the class of the type of v, mapping it if needed. v may
// be a value, a pointer or a [reflect.Type].
func (m *Mapper) MappedClass(v any) (*MappedClass, error) {
	t, err := typeOf(v)
	if err != nil {
		return nil, err
	}
	return m.ClassOf(t)
}

// EntityClass works like [Mapper.MappedClass] but fails for types that cannot
// be stored in their own collection.
func (m *Mapper) EntityClass(v any) (*MappedClass, error) {
	mc, err := m.MappedClass(v)
	if err != nil {
		return nil, err
	}
	if mc.Embedded != nil {
		return nil, &domain.MappingError{Type: mc.Type, Reason: "embedded types cannot be stored in a collection"}
	}
	if mc.ID == nil {
		return nil, &domain.MappingError{Type: mc.Type, Reason: "no field is marked as id"}
	}
	return mc, nil
}

// ClassOf returns the class of t, mapping it if needed.
func (m *Mapper) ClassOf(t reflect.Type) (*MappedClass, error) {
	t = deref(t)

	m.mu.RLock()
	mc, ok := m.classes[t]
	m.mu.RUnlock()
	if ok {
		return mc, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if mc, ok := m.classes[t]; ok {
		return mc, nil
	}

	b := builder{m: m, pending: make(map[reflect.Type]*MappedClass)}
	mc, err := b.class(t)
	if err != nil {
		return nil, err
	}
	if err := b.validateRefs(); err != nil {
		return nil, err
	}
	if err := m.commit(b.order); err != nil {
		return nil, err
	}
	return mc, nil
}

func (m *Mapper) commit(classes []*MappedClass) error {
	seen := make(map[string]*MappedClass, len(classes))
	for _, mc := range classes {
		other, ok := m.byDisc[mc.Discriminator]
		if !ok {
			other, ok = seen[mc.Discriminator]
		}
		if ok && other.Type != mc.Type {
			return &domain.MappingError{
				Type:   mc.Type,
				Reason: fmt.Sprintf("discriminator %q is already used by %s", mc.Discriminator, other.Type),
			}
		}
		seen[mc.Discriminator] = mc
	}
	for _, mc := range classes {
		m.classes[mc.Type] = mc
		m.byDisc[mc.Discriminator] = mc
		m.log.Debug("mapped class",
			"type", mc.Type.String(),
			"collection", mc.Collection,
			"fields", len(mc.Fields),
		)
	}
	return nil
}

// IsMapped reports whether t was already mapped.
func (m *Mapper) IsMapped(t reflect.Type) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.classes[deref(t)]
	return ok
}

// Classes returns every mapped class ordered by discriminator.
func (m *Mapper) Classes() []*MappedClass {
	m.mu.RLock()
	res := make([]*MappedClass, 0, len(m.classes))
	for _, mc := range m.classes {
		res = append(res, mc)
	}
	m.mu.RUnlock()
	slices.SortFunc(res, func(a, b *MappedClass) int {
		return cmp.Compare(a.Discriminator, b.Discriminator)
	})
	return res
}

// ByDiscriminator returns the mapped class using the given discriminator.
func (m *Mapper) ByDiscriminator(d string) (*MappedClass, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.byDisc[d]
	return mc, ok
}

// Subtypes returns the mapped classes that can be used where a value of t is
// expected: implementations of an interface type, or types embedding a
// struct type anonymously. t itself is not included.
func (m *Mapper) Subtypes(t reflect.Type) []*MappedClass {
	t = deref(t)
	var res []*MappedClass
	for _, mc := range m.Classes() {
		if mc.Type == t {
			continue
		}
		if t.Kind() == reflect.Interface {
			if mc.Type.Implements(t) || reflect.PointerTo(mc.Type).Implements(t) {
				res = append(res, mc)
			}
			continue
		}
		if slices.Contains(mc.Supers, t) {
			res = append(res, mc)
		}
	}
	return res
}

// Implementation returns the only mapped class that can be stored in a field
// of interface type t.
func (m *Mapper) Implementation(t reflect.Type) (*MappedClass, error) {
	subs := m.Subtypes(t)
	switch len(subs) {
	case 1:
		return subs[0], nil
	case 0:
		return nil, &domain.MappingError{Type: t, Reason: "no mapped type implements it"}
	default:
		return nil, &domain.MappingError{
			Type:   t,
			Reason: fmt.Sprintf("cannot choose between %d mapped implementations without a discriminator", len(subs)),
		}
	}
}

func typeOf(v any) (reflect.Type, error) {
	switch t := v.(type) {
	case nil:
		return nil, domain.ErrTargetNil
	case reflect.Type:
		return deref(t), nil
	default:
		return deref(reflect.TypeOf(v)), nil
	}
}
