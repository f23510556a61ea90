package mapper

import (
	"reflect"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// IDKey is the document key always used for the identifier field.
const IDKey = "_id"

// MappedClass is the cached description of a mapped struct type. It is
// created once per type and never modified afterwards.
type MappedClass struct {
	// Type is the struct type, never a pointer.
	Type reflect.Type
	// Name is the Go type name.
	Name string
	// Discriminator is the value written under the discriminator key.
	Discriminator string
	// Collection is the collection entities of this type are stored in.
	// Empty for embedded types.
	Collection string
	// Entity holds the options declared through [domain.EntityDescriber].
	Entity *domain.EntityOptions
	// Embedded holds the options declared through
	// [domain.EmbeddedDescriber].
	Embedded *domain.EmbeddedOptions
	// Indexes holds the class-level indexes declared through
	// [domain.IndexDescriber].
	Indexes []domain.Index
	// Fields are the persisted fields in declaration order, flattening
	// anonymous struct fields.
	Fields []*MappedField
	// ID is the identifier field. It is nil only for embedded types.
	ID *MappedField
	// Version is the optimistic locking field, if any.
	Version *MappedField
	// Supers lists the anonymous struct types flattened into this one.
	Supers []reflect.Type

	byStored map[string]*MappedField
	byGo     map[string]*MappedField
	byCamel  map[string]*MappedField
}

// Field looks up a field by stored name, Go name or lower camel Go name, in
// that order.
func (mc *MappedClass) Field(name string) *MappedField {
	if f, ok := mc.byStored[name]; ok {
		return f
	}
	if f, ok := mc.byGo[name]; ok {
		return f
	}
	return mc.byCamel[name]
}

// IsEntity reports whether the class can be stored in its own collection.
func (mc *MappedClass) IsEntity() bool {
	return mc.ID != nil && mc.Embedded == nil
}

// UsesDiscriminator reports whether the discriminator is written when a value
// of this class is encoded.
func (mc *MappedClass) UsesDiscriminator() bool {
	switch {
	case mc.Entity != nil:
		return !mc.Entity.NoDiscriminator
	case mc.Embedded != nil:
		return !mc.Embedded.NoDiscriminator
	default:
		return true
	}
}

// IDKind returns the kind of identifier to generate for new entities.
func (mc *MappedClass) IDKind() domain.IDKind {
	if mc.ID == nil {
		return domain.IDKindNone
	}
	switch t := deref(mc.ID.Type); {
	case t == objectIDType:
		return domain.IDKindObjectID
	case t.Kind() == reflect.String:
		return domain.IDKindString
	case t.Kind() == reflect.Interface:
		return domain.IDKindObjectID
	default:
		return domain.IDKindNone
	}
}

// MappedField describes one persisted field of a [MappedClass].
type MappedField struct {
	// Name is the Go field name.
	Name string
	// StoredName is the document key.
	StoredName string
	// LoadNames are alternative keys accepted when decoding.
	LoadNames []string
	// Type is the declared Go type.
	Type reflect.Type
	// Index is the index sequence for [reflect.Value.FieldByIndex].
	Index []int

	IsID        bool
	IsVersion   bool
	IsReference bool
	// IDOnly stores references as the bare identifier.
	IDOnly bool
	// NotSaved fields are decoded but never written.
	NotSaved bool
	// IndexSpec is the single field index declared in the tag, if any.
	IndexSpec *domain.Index
}

// IsMap reports whether the field holds a map.
func (mf *MappedField) IsMap() bool {
	return deref(mf.Type).Kind() == reflect.Map && !IsLeafType(mf.Type)
}

// IsCollection reports whether the field holds a slice or an array that is
// not stored as a leaf value.
func (mf *MappedField) IsCollection() bool {
	t := deref(mf.Type)
	return (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) && !IsLeafType(t)
}

// IsMultipleValues reports whether the field holds a collection or a map.
func (mf *MappedField) IsMultipleValues() bool {
	return mf.IsMap() || mf.IsCollection()
}

// SubType returns the element type of collections and maps without pointer
// indirection, or the field type itself without pointer indirection.
func (mf *MappedField) SubType() reflect.Type {
	t := deref(mf.Type)
	if mf.IsMultipleValues() {
		return deref(t.Elem())
	}
	return t
}

// IsEmbedded reports whether the field holds documents decoded into mapped
// structs or interfaces.
func (mf *MappedField) IsEmbedded() bool {
	if mf.IsReference {
		return false
	}
	t := mf.SubType()
	return IsStructType(t) || t.Kind() == reflect.Interface
}

// Get returns the field of the struct v. The returned flag is false when an
// anonymous pointer on the path is nil.
func (mf *MappedField) Get(v reflect.Value) (reflect.Value, bool) {
	for i, x := range mf.Index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v, true
}

// Settable returns the field of the addressable struct v, allocating nil
// anonymous pointers on the path.
func (mf *MappedField) Settable(v reflect.Value) reflect.Value {
	for i, x := range mf.Index {
		if i > 0 && v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(x)
	}
	return v
}

var (
	timeType       = reflect.TypeFor[time.Time]()
	objectIDType   = reflect.TypeFor[primitive.ObjectID]()
	keyType        = reflect.TypeFor[domain.Key]()
	bsonDType      = reflect.TypeFor[bson.D]()
	bsonEType      = reflect.TypeFor[bson.E]()
	bsonMType      = reflect.TypeFor[bson.M]()
	bsonAType      = reflect.TypeFor[bson.A]()
	bsonRawType    = reflect.TypeFor[bson.Raw]()
	rawValueType   = reflect.TypeFor[bson.RawValue]()
	dateTimeType   = reflect.TypeFor[primitive.DateTime]()
	regexType      = reflect.TypeFor[primitive.Regex]()
	regexpType     = reflect.TypeFor[regexp.Regexp]()
	binaryType     = reflect.TypeFor[primitive.Binary]()
	decimalType    = reflect.TypeFor[primitive.Decimal128]()
	timestampType  = reflect.TypeFor[primitive.Timestamp]()
	javascriptType = reflect.TypeFor[primitive.JavaScript]()
)

// KeyType is the reflected type of [domain.Key].
var KeyType = keyType

// IsLeafType reports whether values of t are written as they are, without
// being mapped.
func IsLeafType(t reflect.Type) bool {
	t = deref(t)
	switch t {
	case timeType, objectIDType, keyType, bsonDType, bsonEType, bsonMType,
		bsonAType, bsonRawType, rawValueType, dateTimeType, regexType,
		binaryType, decimalType, timestampType, javascriptType, regexpType:
		return true
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return t.Elem().Kind() == reflect.Uint8
	case reflect.Struct, reflect.Interface, reflect.Map:
		return false
	default:
		return true
	}
}

// IsStructType reports whether t, ignoring pointers, is a struct that is
// mapped field by field.
func IsStructType(t reflect.Type) bool {
	t = deref(t)
	return t.Kind() == reflect.Struct && !IsLeafType(t)
}

func deref(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// Deref returns t without pointer indirection.
func Deref(t reflect.Type) reflect.Type {
	return deref(t)
}
