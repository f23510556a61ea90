// Package update builds update documents for a mapped class.
package update

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"slices"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/codec"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/query"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/structure"
)

// Update operators.
const (
	Set         = "$set"
	SetOnInsert = "$setOnInsert"
	Unset       = "$unset"
	Inc         = "$inc"
	Push        = "$push"
	AddToSet    = "$addToSet"
	Pop         = "$pop"
	Pull        = "$pull"
	PullAll     = "$pullAll"
	Max         = "$max"
	Min         = "$min"
	CurrentDate = "$currentDate"
)

var unsupportedNumbers = []reflect.Type{
	reflect.TypeFor[atomic.Int32](),
	reflect.TypeFor[atomic.Int64](),
	reflect.TypeFor[atomic.Uint32](),
	reflect.TypeFor[atomic.Uint64](),
	reflect.TypeFor[big.Int](),
	reflect.TypeFor[big.Float](),
	reflect.TypeFor[big.Rat](),
}

// PushOptions are the modifiers of [Operations.PushAll].
type PushOptions struct {
	// Position inserts the values at the given index instead of appending
	// them.
	Position *int32
	// Slice trims the array after the push. Negative values keep the
	// last elements.
	Slice *int32
	// Sort sorts the array after the push. It is either 1, -1 or a sort
	// document for arrays of documents.
	Sort any
}

type entry struct {
	op    string
	field string
	value any
}

// Operations is an ordered set of update operators over the fields of one
// mapped class. Adding an operator for a field that already has one with
// the same operator replaces its value.
//
// Like [query.Query], builder methods record the first error found, which
// is returned by [Operations.Err] and [Operations.Render].
type Operations struct {
	codec    *codec.Codec
	mapper   *mapper.Mapper
	class    *mapper.MappedClass
	entries  []entry
	isolated bool
	validate bool
	err      error
}

// New returns an empty set of update operations over mc.
func New(c *codec.Codec, mc *mapper.MappedClass) *Operations {
	return &Operations{
		codec:    c,
		mapper:   c.Mapper(),
		class:    mc,
		validate: true,
	}
}

// Class returns the class the operations are validated against.
func (o *Operations) Class() *mapper.MappedClass {
	return o.class
}

// Err returns the first error recorded by a builder method.
func (o *Operations) Err() error {
	return o.err
}

func (o *Operations) fail(err error) {
	if o.err == nil {
		o.err = err
	}
}

// Fail records err as the error of the operations, unless one was already
// recorded.
func (o *Operations) Fail(err error) *Operations {
	o.fail(err)
	return o
}

// DisableValidation turns off path and value validation for operations
// added afterwards.
func (o *Operations) DisableValidation() *Operations {
	o.validate = false
	return o
}

// EnableValidation turns path and value validation back on.
func (o *Operations) EnableValidation() *Operations {
	o.validate = true
	return o
}

// Isolated marks the operations to run isolated from concurrent writers on
// collections supporting it.
func (o *Operations) Isolated() *Operations {
	o.isolated = true
	return o
}

// IsIsolated reports whether [Operations.Isolated] was called.
func (o *Operations) IsIsolated() bool {
	return o.isolated
}

// Set sets field to value.
func (o *Operations) Set(field string, value any) *Operations {
	return o.value(Set, field, value, query.Equal)
}

// SetOnInsert sets field to value only when an upsert inserts a document.
func (o *Operations) SetOnInsert(field string, value any) *Operations {
	return o.value(SetOnInsert, field, value, query.Equal)
}

// Unset removes field.
func (o *Operations) Unset(field string) *Operations {
	if path, ok := o.path(Unset, field, nil, query.Exists); ok {
		o.add(Unset, path.Path, "")
	}
	return o
}

// Inc increments field by value, which must be a number.
func (o *Operations) Inc(field string, value any) *Operations {
	n, err := number(value, false)
	if err != nil {
		o.fail(err)
		return o
	}
	return o.value(Inc, field, n, query.Equal)
}

// Dec decrements field by value, which must be a number.
func (o *Operations) Dec(field string, value any) *Operations {
	n, err := number(value, true)
	if err != nil {
		o.fail(err)
		return o
	}
	return o.value(Inc, field, n, query.Equal)
}

// Max sets field to value if value is greater than the stored one.
func (o *Operations) Max(field string, value any) *Operations {
	return o.value(Max, field, value, query.Equal)
}

// Min sets field to value if value is less than the stored one.
func (o *Operations) Min(field string, value any) *Operations {
	return o.value(Min, field, value, query.Equal)
}

// CurrentDate sets field to the current date on the server.
func (o *Operations) CurrentDate(field string) *Operations {
	if path, ok := o.path(CurrentDate, field, nil, query.Exists); ok {
		o.add(CurrentDate, path.Path, true)
	}
	return o
}

// Push appends value to the array in field.
func (o *Operations) Push(field string, value any) *Operations {
	return o.value(Push, field, value, query.Equal)
}

// PushAll appends every element of values to the array in field, applying
// the modifiers in opts.
func (o *Operations) PushAll(field string, values any, opts PushOptions) *Operations {
	path, arr, ok := o.list(Push, field, values)
	if !ok {
		return o
	}
	doc := bson.D{{Key: "$each", Value: arr}}
	if opts.Position != nil {
		doc = append(doc, bson.E{Key: "$position", Value: *opts.Position})
	}
	if opts.Slice != nil {
		doc = append(doc, bson.E{Key: "$slice", Value: *opts.Slice})
	}
	if opts.Sort != nil {
		doc = append(doc, bson.E{Key: "$sort", Value: opts.Sort})
	}
	o.add(Push, path, doc)
	return o
}

// AddToSet adds value to the array in field unless already present.
func (o *Operations) AddToSet(field string, value any) *Operations {
	return o.value(AddToSet, field, value, query.Equal)
}

// AddToSetAll adds each element of values to the array in field unless
// already present.
func (o *Operations) AddToSetAll(field string, values any) *Operations {
	if path, arr, ok := o.list(AddToSet, field, values); ok {
		o.add(AddToSet, path, bson.D{{Key: "$each", Value: arr}})
	}
	return o
}

// RemoveFirst removes the first element of the array in field.
func (o *Operations) RemoveFirst(field string) *Operations {
	if path, ok := o.path(Pop, field, nil, query.Exists); ok {
		o.add(Pop, path.Path, int32(-1))
	}
	return o
}

// RemoveLast removes the last element of the array in field.
func (o *Operations) RemoveLast(field string) *Operations {
	if path, ok := o.path(Pop, field, nil, query.Exists); ok {
		o.add(Pop, path.Path, int32(1))
	}
	return o
}

// RemoveAll removes every element equal to value from the array in field.
func (o *Operations) RemoveAll(field string, value any) *Operations {
	return o.value(Pull, field, value, query.Equal)
}

// RemoveAllOf removes every element equal to one of values from the array
// in field.
func (o *Operations) RemoveAllOf(field string, values any) *Operations {
	if path, arr, ok := o.list(PullAll, field, values); ok {
		o.add(PullAll, path, arr)
	}
	return o
}

// value validates and encodes a single value for op.
func (o *Operations) value(op, field string, value any, fop query.FilterOperator) *Operations {
	target, ok := o.path(op, field, value, fop)
	if !ok {
		return o
	}
	enc, err := o.codec.EncodeValue(target.Field, value)
	if err != nil {
		o.fail(fmt.Errorf("%s %s: %w", op, field, err))
		return o
	}
	o.add(op, target.Path, enc)
	return o
}

// list validates and encodes the elements of values for op.
func (o *Operations) list(op, field string, values any) (string, bson.A, bool) {
	if !structure.IsList(values) {
		o.fail(&domain.IllegalArgumentError{Argument: values, Reason: "value is not a list"})
		return "", nil, false
	}
	target, ok := o.path(op, field, values, query.In)
	if !ok {
		return "", nil, false
	}
	seq, _, _ := structure.Seq(values)
	arr := bson.A{}
	for v := range seq {
		enc, err := o.codec.EncodeValue(target.Field, v)
		if err != nil {
			o.fail(fmt.Errorf("%s %s: %w", op, field, err))
			return "", nil, false
		}
		arr = append(arr, enc)
	}
	return target.Path, arr, true
}

// path resolves field, validating value against it when validation is on.
func (o *Operations) path(op, field string, value any, fop query.FilterOperator) (mapper.PathTarget, bool) {
	target, err := o.mapper.ResolvePath(o.class, field, o.validate)
	if err != nil {
		o.fail(err)
		return target, false
	}
	if !o.validate || value == nil {
		return target, true
	}
	if reasons, ok := query.Compatible(target, fop, value); !ok {
		o.fail(&domain.ValidationError{
			Type:     o.class.Type,
			Field:    field,
			Operator: op,
			Reason:   reasons,
		})
		return target, false
	}
	return target, true
}

func (o *Operations) add(op, field string, value any) {
	for i, e := range o.entries {
		if e.op == op && e.field == field {
			o.entries[i].value = value
			return
		}
	}
	o.entries = append(o.entries, entry{op: op, field: field, value: value})
}

// Clone returns an independent copy of o.
func (o *Operations) Clone() *Operations {
	cp := *o
	cp.entries = slices.Clone(o.entries)
	return &cp
}

// Touches reports whether any operator targets the stored path.
func (o *Operations) Touches(path string) bool {
	return slices.ContainsFunc(o.entries, func(e entry) bool { return e.field == path })
}

// Render returns the update document, grouping fields by operator in the
// order operators were first added. When the class is versioned and no
// operator targets the version field, an increment of the version is
// added. Render does not change o.
func (o *Operations) Render() (bson.D, error) {
	if o.err != nil {
		return nil, o.err
	}
	entries := o.entries
	if v := o.class.Version; v != nil && !o.Touches(v.StoredName) {
		entries = append(slices.Clone(entries), entry{op: Inc, field: v.StoredName, value: int64(1)})
	}
	if len(entries) == 0 {
		return nil, &domain.ValidationError{Type: o.class.Type, Reason: "no update operations"}
	}

	res := bson.D{}
	index := map[string]int{}
	for _, e := range entries {
		i, ok := index[e.op]
		if !ok {
			i = len(res)
			index[e.op] = i
			res = append(res, bson.E{Key: e.op, Value: bson.D{}})
		}
		res[i].Value = append(res[i].Value.(bson.D), bson.E{Key: e.field, Value: e.value})
	}
	return res, nil
}

// number validates and widens an increment, negating it when neg is true.
func number(value any, neg bool) (any, error) {
	if value == nil {
		return nil, &domain.IllegalArgumentError{Argument: value, Reason: "value is not a number"}
	}
	t := mapper.Deref(reflect.TypeOf(value))
	if slices.Contains(unsupportedNumbers, t) {
		return nil, &domain.IllegalArgumentError{
			Argument: value,
			Reason:   "only integer and floating point values can be used to increment",
		}
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if neg {
			if v.Int() == math.MinInt64 {
				return nil, &domain.IllegalArgumentError{Argument: value, Reason: "value overflows int64"}
			}
			return -v.Int(), nil
		}
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if v.Uint() > math.MaxInt64 {
			return nil, &domain.IllegalArgumentError{Argument: value, Reason: "value overflows int64"}
		}
		if neg {
			return -int64(v.Uint()), nil
		}
		return int64(v.Uint()), nil
	case reflect.Float32, reflect.Float64:
		if neg {
			return -v.Float(), nil
		}
		return v.Float(), nil
	}
	return nil, &domain.IllegalArgumentError{Argument: value, Reason: "value is not a number"}
}
