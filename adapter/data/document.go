// Package data contains the document representation used by the in-memory
// database. Every value stored in a [D] is normalised to the types the
// driver produces when decoding BSON into empty interfaces, so comparing and
// matching never needs to care about the Go type the caller used.
package data

import (
	"fmt"
	"iter"
	"slices"

	goreflect "github.com/goccy/go-reflect"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// IDKey is the key holding the document identifier.
const IDKey = "_id"

// E is a single key/value pair of a [D].
type E struct {
	Key   string
	Value any
}

// D implements [domain.Document] keeping keys in insertion order. Setting an
// existing key replaces its value in place.
type D struct {
	fields []E
}

// NewDocument returns a new instance of [domain.Document]. Structs, maps,
// bson.D and bson.Raw values are accepted; nil returns an empty document.
func NewDocument(in any) (domain.Document, error) {
	if in == nil {
		return &D{}, nil
	}
	switch t := in.(type) {
	case *D:
		return t.Clone(), nil
	case bson.Raw:
		return FromRaw(t)
	case []byte:
		return FromRaw(bson.Raw(t))
	case domain.Document:
		return Clone(t).(*D), nil
	}

	r := goreflect.ValueNoEscapeOf(in)
	for r.Kind() == goreflect.Ptr || r.Kind() == goreflect.Interface {
		if r.IsNil() {
			return &D{}, nil
		}
		r = r.Elem()
	}
	if k := r.Kind(); k != goreflect.Struct && k != goreflect.Map && k != goreflect.Slice {
		return nil, fmt.Errorf("expected document, got %s", r.Type().String())
	}

	raw, err := bson.Marshal(in)
	if err != nil {
		return nil, err
	}
	return FromRaw(raw)
}

// FromRaw converts an encoded document into a [D].
func FromRaw(raw bson.Raw) (*D, error) {
	elems, err := raw.Elements()
	if err != nil {
		return nil, err
	}
	d := &D{fields: make([]E, 0, len(elems))}
	for _, e := range elems {
		v, err := fromRawValue(e.Value())
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", e.Key(), err)
		}
		d.fields = append(d.fields, E{Key: e.Key(), Value: v})
	}
	return d, nil
}

// Value normalises a single value. Documents become [*D], arrays become
// []any and numbers keep the width bson gives them.
func Value(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *D, domain.Document:
		return Clone(t), nil
	}
	typ, b, err := bson.MarshalValue(v)
	if err != nil {
		return nil, err
	}
	return fromRawValue(bson.RawValue{Type: typ, Value: b})
}

func fromRawValue(rv bson.RawValue) (any, error) {
	switch rv.Type {
	case bsontype.EmbeddedDocument:
		return FromRaw(rv.Document())
	case bsontype.Array:
		vals, err := rv.Array().Values()
		if err != nil {
			return nil, err
		}
		arr := make([]any, len(vals))
		for n, item := range vals {
			if arr[n], err = fromRawValue(item); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case bsontype.Double:
		return rv.Double(), nil
	case bsontype.String:
		return rv.StringValue(), nil
	case bsontype.Int32:
		return rv.Int32(), nil
	case bsontype.Int64:
		return rv.Int64(), nil
	case bsontype.Boolean:
		return rv.Boolean(), nil
	case bsontype.ObjectID:
		return rv.ObjectID(), nil
	case bsontype.DateTime:
		return primitive.DateTime(rv.DateTime()), nil
	case bsontype.Null, bsontype.Undefined:
		return nil, nil
	case bsontype.Binary:
		sub, data := rv.Binary()
		return primitive.Binary{Subtype: sub, Data: slices.Clone(data)}, nil
	case bsontype.Regex:
		pattern, options := rv.Regex()
		return primitive.Regex{Pattern: pattern, Options: options}, nil
	case bsontype.Decimal128:
		return rv.Decimal128(), nil
	case bsontype.Timestamp:
		t, i := rv.Timestamp()
		return primitive.Timestamp{T: t, I: i}, nil
	case bsontype.Symbol:
		return rv.Symbol(), nil
	case bsontype.JavaScript:
		return primitive.JavaScript(rv.JavaScript()), nil
	case bsontype.MinKey:
		return primitive.MinKey{}, nil
	case bsontype.MaxKey:
		return primitive.MaxKey{}, nil
	}
	return nil, fmt.Errorf("unsupported bson type %s", rv.Type)
}

// ID implements [domain.Document].
func (d *D) ID() any {
	return d.Get(IDKey)
}

// D implements [domain.Document].
func (d *D) D(key string) domain.Document {
	if doc, ok := d.Get(key).(domain.Document); ok {
		return doc
	}
	return nil
}

// Get implements [domain.Document].
func (d *D) Get(key string) any {
	if i := d.index(key); i >= 0 {
		return d.fields[i].Value
	}
	return nil
}

// Set implements [domain.Document].
func (d *D) Set(key string, value any) {
	if i := d.index(key); i >= 0 {
		d.fields[i].Value = value
		return
	}
	d.fields = append(d.fields, E{Key: key, Value: value})
}

// Unset implements [domain.Document].
func (d *D) Unset(key string) {
	if i := d.index(key); i >= 0 {
		d.fields = slices.Delete(d.fields, i, i+1)
	}
}

// Iter implements [domain.Document]. Pairs are yielded in insertion order.
func (d *D) Iter() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, f := range d.fields {
			if !yield(f.Key, f.Value) {
				return
			}
		}
	}
}

// Keys implements [domain.Document].
func (d *D) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, f := range d.fields {
			if !yield(f.Key) {
				return
			}
		}
	}
}

// Has implements [domain.Document].
func (d *D) Has(key string) bool {
	return d.index(key) >= 0
}

// Len implements [domain.Document].
func (d *D) Len() int {
	return len(d.fields)
}

// Prepend sets key as the first field of d, moving it if already present.
func (d *D) Prepend(key string, value any) {
	d.Unset(key)
	d.fields = slices.Insert(d.fields, 0, E{Key: key, Value: value})
}

func (d *D) index(key string) int {
	return slices.IndexFunc(d.fields, func(e E) bool { return e.Key == key })
}

// Clone returns a deep copy of d.
func (d *D) Clone() *D {
	res := &D{fields: make([]E, len(d.fields))}
	for n, f := range d.fields {
		res.fields[n] = E{Key: f.Key, Value: Clone(f.Value)}
	}
	return res
}

// Clone returns a deep copy of a normalised value.
func Clone(v any) any {
	switch t := v.(type) {
	case *D:
		return t.Clone()
	case domain.Document:
		res := &D{}
		for k, v := range t.Iter() {
			res.Set(k, Clone(v))
		}
		return res
	case []any:
		res := make([]any, len(t))
		for n, item := range t {
			res[n] = Clone(item)
		}
		return res
	}
	return v
}

// BSON returns d as a driver document, converting nested documents and
// arrays too.
func (d *D) BSON() bson.D {
	res := make(bson.D, len(d.fields))
	for n, f := range d.fields {
		res[n] = bson.E{Key: f.Key, Value: ToBSON(f.Value)}
	}
	return res
}

// ToBSON converts a normalised value into the driver types bson.D and bson.A.
func ToBSON(v any) any {
	switch t := v.(type) {
	case *D:
		return t.BSON()
	case domain.Document:
		res := bson.D{}
		for k, v := range t.Iter() {
			res = append(res, bson.E{Key: k, Value: ToBSON(v)})
		}
		return res
	case []any:
		res := make(bson.A, len(t))
		for n, item := range t {
			res[n] = ToBSON(item)
		}
		return res
	}
	return v
}

// MarshalBSON implements [bson.Marshaler].
func (d *D) MarshalBSON() ([]byte, error) {
	return bson.Marshal(d.BSON())
}

// UnmarshalBSON implements [bson.Unmarshaler].
func (d *D) UnmarshalBSON(b []byte) error {
	res, err := FromRaw(b)
	if err != nil {
		return err
	}
	d.fields = res.fields
	return nil
}

// String returns d as relaxed extended JSON.
func (d *D) String() string {
	b, err := bson.MarshalExtJSON(d, false, false)
	if err != nil {
		return fmt.Sprintf("%v", d.fields)
	}
	return string(b)
}
