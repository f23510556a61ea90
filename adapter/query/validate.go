package query

import (
	"fmt"
	"reflect"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/structure"
)

// ValidationFailure describes why a value cannot be used with an operator on
// a field.
type ValidationFailure struct {
	Reason string
}

// String implements [fmt.Stringer].
func (f ValidationFailure) String() string {
	return f.Reason
}

type check struct {
	class *mapper.MappedClass
	field *mapper.MappedField
	typ   reflect.Type
	op    FilterOperator
	value any
	vtype reflect.Type
}

// validator returns whether it applies to c and, if it does, the reason c
// is invalid, if any.
type validator func(c check) (bool, string)

// validators run in order and the first one that applies decides.
var validators = []validator{
	existsOperation,
	sizeOperation,
	iterableOperation,
	modOperation,
	geoWithinOperation,
	geoOperation,
	typeOperation,
	elemMatchOperation,
	keyValue,
	integerValue,
	floatValue,
	patternValue,
	structValue,
	listValue,
	idValue,
	defaultValue,
}

// IsCompatibleForOperator reports whether value can be used with op on a
// field of type typ. mf is the mapped field the path ends at and mc the class
// declaring it; both may be nil. Nil values and unknown types are always
// compatible.
func IsCompatibleForOperator(mc *mapper.MappedClass, mf *mapper.MappedField, typ reflect.Type, op FilterOperator, value any) (bool, []ValidationFailure) {
	if value == nil || typ == nil {
		return true, nil
	}
	c := check{
		class: mc,
		field: mf,
		typ:   mapper.Deref(typ),
		op:    op,
		value: value,
		vtype: mapper.Deref(reflect.TypeOf(value)),
	}

	var failures []ValidationFailure
	applied := false
	for _, v := range validators {
		ok, reason := v(c)
		if !ok {
			continue
		}
		applied = true
		if reason != "" {
			failures = append(failures, ValidationFailure{Reason: reason})
		}
		break
	}
	return applied && len(failures) == 0, failures
}

func existsOperation(c check) (bool, string) {
	if c.op != Exists {
		return false, ""
	}
	if c.vtype.Kind() != reflect.Bool {
		return true, fmt.Sprintf("value for $exists must be a bool, found %s", c.vtype)
	}
	return true, ""
}

func sizeOperation(c check) (bool, string) {
	if c.op != Size {
		return false, ""
	}
	if !isList(c.typ) {
		return true, fmt.Sprintf("$size can only be used on lists, found %s", c.typ)
	}
	if !structure.IsIntegerKind(c.vtype.Kind()) {
		return true, fmt.Sprintf("value for $size must be an integer, found %s", c.vtype)
	}
	return true, ""
}

func iterableOperation(c check) (bool, string) {
	if c.op != In && c.op != NotIn && c.op != All {
		return false, ""
	}
	if !structure.IsIterable(c.value) {
		return true, fmt.Sprintf("value for %s must be a list or a map, found %s", c.op, c.vtype)
	}
	return true, ""
}

func modOperation(c check) (bool, string) {
	if c.op != Mod {
		return false, ""
	}
	seq, n, err := structure.Seq(c.value)
	if err != nil || n != 2 {
		return true, "value for $mod must be a list of two integers"
	}
	for v := range seq {
		if !structure.IsInteger(v) {
			return true, "value for $mod must be a list of two integers"
		}
	}
	return true, ""
}

var geoShapes = map[string]bool{
	"$box":          true,
	"$center":       true,
	"$centerSphere": true,
	"$polygon":      true,
	"$geometry":     true,
}

func geoWithinOperation(c check) (bool, string) {
	if c.op != GeoWithin {
		return false, ""
	}
	doc, ok := c.value.(bson.D)
	if !ok || len(doc) == 0 || !geoShapes[doc[0].Key] {
		return true, "value for $geoWithin must be a shape document"
	}
	if !isLocation(c.typ) {
		return true, fmt.Sprintf("$geoWithin can only be used on coordinates or geometries, found %s", c.typ)
	}
	return true, ""
}

func geoOperation(c check) (bool, string) {
	if c.op != Near && c.op != NearSphere && c.op != Intersects {
		return false, ""
	}
	if !isLocation(c.typ) {
		return true, fmt.Sprintf("%s can only be used on coordinates or geometries, found %s", c.op, c.typ)
	}
	return true, ""
}

func typeOperation(c check) (bool, string) {
	if c.op != Type {
		return false, ""
	}
	if !structure.IsIntegerKind(c.vtype.Kind()) && c.vtype.Kind() != reflect.String {
		return true, fmt.Sprintf("value for $type must be a type number or alias, found %s", c.vtype)
	}
	return true, ""
}

func elemMatchOperation(c check) (bool, string) {
	if c.op != ElemMatch {
		return false, ""
	}
	if !isList(c.typ) && c.typ.Kind() != reflect.Interface {
		return true, fmt.Sprintf("$elemMatch can only be used on lists, found %s", c.typ)
	}
	return true, ""
}

func keyValue(c check) (bool, string) {
	if c.vtype != mapper.KeyType {
		return false, ""
	}
	if c.typ == mapper.KeyType || c.typ.Kind() == reflect.Interface || mapper.IsStructType(c.typ) ||
		(c.field != nil && c.field.IsReference) {
		return true, ""
	}
	return true, fmt.Sprintf("a key cannot be compared with %s", c.typ)
}

func integerValue(c check) (bool, string) {
	if !structure.IsIntegerKind(c.vtype.Kind()) || c.vtype == dateTimeType {
		return false, ""
	}
	if structure.IsNumberKind(c.typ.Kind()) || c.typ.Kind() == reflect.Interface {
		return true, ""
	}
	return true, fmt.Sprintf("an integer cannot be compared with %s", c.typ)
}

func floatValue(c check) (bool, string) {
	if k := c.vtype.Kind(); k != reflect.Float32 && k != reflect.Float64 {
		return false, ""
	}
	if structure.IsNumberKind(c.typ.Kind()) || c.typ.Kind() == reflect.Interface {
		return true, ""
	}
	return true, fmt.Sprintf("a floating point number cannot be compared with %s", c.typ)
}

var (
	regexType  = reflect.TypeFor[primitive.Regex]()
	regexpType = reflect.TypeFor[regexp.Regexp]()
)

func patternValue(c check) (bool, string) {
	if c.vtype != regexType && c.vtype != regexpType {
		return false, ""
	}
	if c.typ.Kind() == reflect.String || c.typ.Kind() == reflect.Interface {
		return true, ""
	}
	return true, fmt.Sprintf("a pattern cannot be matched against %s", c.typ)
}

func structValue(c check) (bool, string) {
	if !mapper.IsStructType(c.vtype) {
		return false, ""
	}
	if assignable(c.vtype, c.typ) || (c.field != nil && c.field.IsReference) {
		return true, ""
	}
	return true, fmt.Sprintf("a %s cannot be compared with %s", c.vtype, c.typ)
}

func listValue(c check) (bool, string) {
	if !structure.IsList(c.value) || structure.IsMap(c.value) {
		return false, ""
	}
	if isList(c.typ) || c.typ.Kind() == reflect.Interface {
		return true, ""
	}
	return true, fmt.Sprintf("a list cannot be compared with %s", c.typ)
}

func idValue(c check) (bool, string) {
	if c.field == nil || !c.field.IsID {
		return false, ""
	}
	if assignable(c.vtype, c.typ) || c.vtype.ConvertibleTo(c.typ) {
		return true, ""
	}
	return true, fmt.Sprintf("a %s cannot be used as an id of type %s", c.vtype, c.typ)
}

var (
	timeType     = reflect.TypeFor[time.Time]()
	dateTimeType = reflect.TypeFor[primitive.DateTime]()
)

func defaultValue(c check) (bool, string) {
	switch {
	case assignable(c.vtype, c.typ):
	case c.vtype.Kind() == c.typ.Kind() && isScalarKind(c.typ.Kind()):
	case (c.typ == timeType || c.typ == dateTimeType) && (c.vtype == timeType || c.vtype == dateTimeType):
	case mapper.IsStructType(c.typ) && structure.IsMap(c.value):
	default:
		return true, fmt.Sprintf("a %s cannot be compared with %s", c.vtype, c.typ)
	}
	return true, ""
}

func assignable(from, to reflect.Type) bool {
	if from.AssignableTo(to) {
		return true
	}
	return to.Kind() == reflect.Interface && reflect.PointerTo(from).Implements(to)
}

func isList(t reflect.Type) bool {
	return (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) && t.Elem().Kind() != reflect.Uint8
}

// isLocation reports whether t can hold legacy coordinates or a GeoJSON
// geometry.
func isLocation(t reflect.Type) bool {
	switch {
	case isList(t):
		return structure.IsNumberKind(mapper.Deref(t.Elem()).Kind())
	case t.Kind() == reflect.Interface, t.Kind() == reflect.Map:
		return true
	case t == reflect.TypeFor[bson.D](), t == reflect.TypeFor[bson.Raw]():
		return true
	default:
		return mapper.IsStructType(t)
	}
}

func isScalarKind(k reflect.Kind) bool {
	return k == reflect.String || k == reflect.Bool || structure.IsNumberKind(k)
}
