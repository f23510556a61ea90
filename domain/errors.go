package domain

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrNotFound is returned when a lookup matches no document.
	ErrNotFound = errors.New("document not found")
	// ErrTargetNil is returned when the passed target, which should be a
	// pointer, is passed as a nil value.
	ErrTargetNil = errors.New("target interface is nil")
	// ErrNonPointer is returned when a decode target is not a pointer.
	ErrNonPointer = errors.New("target is not a pointer")
	// ErrNoID is returned when an operation needs the identifier of an
	// entity that has none yet.
	ErrNoID = errors.New("entity has no identifier")
	// ErrNotMapped is returned when an operation receives a value whose type
	// cannot be mapped.
	ErrNotMapped = errors.New("type is not mapped")
	// ErrUnsupported is returned by the in-memory database for commands and
	// operators it does not implement.
	ErrUnsupported = errors.New("operation not supported")
	// ErrImmutableID is returned when an update would change the _id of a
	// stored document.
	ErrImmutableID = errors.New("field '_id' is immutable")
)

// MappingError is returned for structural problems in the entity model, found
// either when a type is mapped or when a polymorphic value is decoded.
type MappingError struct {
	Type   reflect.Type
	Reason string
}

// Error implements [error].
func (e *MappingError) Error() string {
	if e.Type == nil {
		return "mapping error: " + e.Reason
	}
	return fmt.Sprintf("mapping error in '%s': %s", e.Type, e.Reason)
}

// ValidationError is returned by query, update and index builders before any
// request is sent to the database.
type ValidationError struct {
	// Type is the mapped type the field was resolved against.
	Type reflect.Type
	// Field is the path as given by the caller.
	Field string
	// Operator is the query or update operator, if any.
	Operator string
	Reason   string
}

// Error implements [error].
func (e *ValidationError) Error() string {
	switch {
	case e.Operator != "" && e.Field != "":
		return fmt.Sprintf("validation error on field '%s' with operator '%s': %s", e.Field, e.Operator, e.Reason)
	case e.Field != "":
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Reason)
	default:
		return "validation error: " + e.Reason
	}
}

// ConcurrentModificationError is returned when a versioned write finds the
// stored version is not the one held by the entity.
type ConcurrentModificationError struct {
	Type    reflect.Type
	ID      any
	Version int64
}

// Error implements [error].
func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf(
		"entity of class %s (id='%v',version='%d') was concurrently updated",
		e.Type, e.ID, e.Version,
	)
}

// IllegalArgumentError is returned when a builder receives a value it cannot
// safely use, such as a numeric type that cannot be widened.
type IllegalArgumentError struct {
	Argument any
	Reason   string
}

// Error implements [error].
func (e *IllegalArgumentError) Error() string {
	return fmt.Sprintf("illegal argument %v (%T): %s", e.Argument, e.Argument, e.Reason)
}

// DecodeError wraps a failure to convert a stored value into a field.
type DecodeError struct {
	Field  string
	Source any
	Target reflect.Type
}

// Error implements [error].
func (e DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cannot decode %T into %s", e.Source, e.Target)
	}
	return fmt.Sprintf("cannot decode %T into field '%s' of type %s", e.Source, e.Field, e.Target)
}
