package mapper

import (
	"fmt"
	"reflect"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Entity returns the struct value held by entity and its class. The value is
// addressable when entity is a pointer.
func (m *Mapper) Entity(entity any) (reflect.Value, *MappedClass, error) {
	if entity == nil {
		return reflect.Value{}, nil, domain.ErrTargetNil
	}
	v := reflect.ValueOf(entity)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, nil, domain.ErrTargetNil
		}
		v = v.Elem()
	}
	mc, err := m.ClassOf(v.Type())
	if err != nil {
		return reflect.Value{}, nil, err
	}
	return v, mc, nil
}

func (m *Mapper) settableEntity(entity any) (reflect.Value, *MappedClass, error) {
	if entity == nil {
		return reflect.Value{}, nil, domain.ErrTargetNil
	}
	if reflect.TypeOf(entity).Kind() != reflect.Pointer {
		return reflect.Value{}, nil, domain.ErrNonPointer
	}
	return m.Entity(entity)
}

// ID returns the identifier of entity, or nil if it has none yet. Zero values
// count as unset.
func (m *Mapper) ID(entity any) (any, error) {
	v, mc, err := m.Entity(entity)
	if err != nil {
		return nil, err
	}
	if mc.ID == nil {
		return nil, &domain.MappingError{Type: mc.Type, Reason: "no field is marked as id"}
	}
	f, ok := mc.ID.Get(v)
	if !ok || f.IsZero() {
		return nil, nil
	}
	for f.Kind() == reflect.Pointer || f.Kind() == reflect.Interface {
		f = f.Elem()
	}
	if f.IsZero() {
		return nil, nil
	}
	return f.Interface(), nil
}

// SetID sets the identifier of the entity pointed by entity.
func (m *Mapper) SetID(entity any, id any) error {
	v, mc, err := m.settableEntity(entity)
	if err != nil {
		return err
	}
	if mc.ID == nil {
		return &domain.MappingError{Type: mc.Type, Reason: "no field is marked as id"}
	}
	return Assign(mc.ID.Settable(v), id)
}

// Version returns the version of entity. Entities without a version field or
// with a nil version return zero.
func (m *Mapper) Version(entity any) (int64, error) {
	v, mc, err := m.Entity(entity)
	if err != nil {
		return 0, err
	}
	if mc.Version == nil {
		return 0, nil
	}
	f, ok := mc.Version.Get(v)
	if !ok {
		return 0, nil
	}
	for f.Kind() == reflect.Pointer {
		if f.IsNil() {
			return 0, nil
		}
		f = f.Elem()
	}
	if f.CanInt() {
		return f.Int(), nil
	}
	return int64(f.Uint()), nil
}

// SetVersion sets the version of the entity pointed by entity.
func (m *Mapper) SetVersion(entity any, version int64) error {
	v, mc, err := m.settableEntity(entity)
	if err != nil {
		return err
	}
	if mc.Version == nil {
		return &domain.MappingError{Type: mc.Type, Reason: "no field is marked as version"}
	}
	return Assign(mc.Version.Settable(v), version)
}

// Key returns the key of entity, failing with [domain.ErrNoID] if the entity
// has no identifier yet.
func (m *Mapper) Key(entity any) (domain.Key, error) {
	if k, ok := entity.(domain.Key); ok {
		return k, nil
	}
	_, mc, err := m.Entity(entity)
	if err != nil {
		return domain.Key{}, err
	}
	id, err := m.ID(entity)
	if err != nil {
		return domain.Key{}, err
	}
	if id == nil {
		return domain.Key{}, fmt.Errorf("%w: %s", domain.ErrNoID, mc.Type)
	}
	return domain.Key{Collection: mc.Collection, Type: mc.Type, ID: id}, nil
}

// CollectionName returns the collection entities of the type of v are stored
// in.
func (m *Mapper) CollectionName(v any) (string, error) {
	mc, err := m.EntityClass(v)
	if err != nil {
		return "", err
	}
	return mc.Collection, nil
}

// Assign stores value in the settable dst, allocating pointers and converting
// between numeric kinds when needed.
func Assign(dst reflect.Value, value any) error {
	if value == nil {
		dst.SetZero()
		return nil
	}
	src := reflect.ValueOf(value)
	for dst.Kind() == reflect.Pointer && !src.Type().AssignableTo(dst.Type()) {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		dst = dst.Elem()
	}
	switch {
	case src.Type().AssignableTo(dst.Type()):
		dst.Set(src)
	case src.CanInt() && dst.CanInt():
		if dst.OverflowInt(src.Int()) {
			return fmt.Errorf("value %v overflows %s", value, dst.Type())
		}
		dst.SetInt(src.Int())
	case src.CanInt() && dst.CanUint():
		if src.Int() < 0 || dst.OverflowUint(uint64(src.Int())) {
			return fmt.Errorf("value %v overflows %s", value, dst.Type())
		}
		dst.SetUint(uint64(src.Int()))
	case src.Type().ConvertibleTo(dst.Type()) && src.Kind() == dst.Kind():
		dst.Set(src.Convert(dst.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", value, dst.Type())
	}
	return nil
}
