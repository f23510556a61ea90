// Package structure contains type-related operations, such as iterating over a
// value of type any and converting numbers.
package structure

import (
	"errors"
	"iter"
	"math"
	"regexp"
	"slices"
	"time"

	"github.com/goccy/go-reflect"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

var (
	// ErrNilObj may be returned by [Seq] or [Seq2] when a nil value is
	// passed as argument.
	ErrNilObj = errors.New("nil object")
)

var docReflectType = reflect.TypeOf((*domain.Document)(nil)).Elem()

// ErrorNonObject is returned by [Seq2] when a value that is neither a map, a
// bson.D nor a [domain.Document] is passed as argument.
type ErrorNonObject struct {
	Type reflect.Type
}

func (e ErrorNonObject) Error() string {
	return "value is not an object: " + e.Type.String()
}

// ErrorNonList is returned by [Seq] when a value that is neither a slice
// nor a array is passed as argument.
type ErrorNonList struct {
	Type reflect.Type
}

func (e ErrorNonList) Error() string {
	return "value is not a list: " + e.Type.String()
}

// Seq2 returns an iterator over the passed document. This method works for
// bson.D, maps with string keys and implementations of [domain.Document].
// Iteration order of bson.D values is preserved.
func Seq2(obj any) (iter.Seq2[string, any], int, error) {
	if obj == nil {
		return nil, 0, ErrNilObj
	}
	if err := checkPrimitive(obj); err != nil {
		return nil, 0, err
	}
	switch t := obj.(type) {
	case domain.Document:
		return t.Iter(), t.Len(), nil
	case bson.D:
		return iterD(t), len(t), nil
	case bson.M:
		return iterMap(t), len(t), nil
	case map[string]any:
		return iterMap(t), len(t), nil
	}
	return iterReflect(obj)
}

func checkPrimitive(obj any) error {
	switch obj.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		time.Time, *regexp.Regexp, []byte,
		primitive.ObjectID, primitive.DateTime, primitive.Regex,
		primitive.Binary, primitive.Decimal128:
		return ErrorNonObject{Type: reflect.TypeOf(obj)}
	default:
		return nil
	}
}

func iterReflect(obj any) (iter.Seq2[string, any], int, error) {
	v := reflect.ValueNoEscapeOf(obj)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, 0, ErrNilObj
		}
		v = v.Elem()
	}

	if v.Type().Implements(docReflectType) {
		doc := v.Interface().(domain.Document)
		return doc.Iter(), doc.Len(), nil
	}

	if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return nil, 0, ErrorNonObject{Type: v.Type()}
	}

	keys := v.MapKeys()
	pairs := make([]bson.E, len(keys))
	for n, k := range keys {
		pairs[n] = bson.E{Key: k.String(), Value: v.MapIndex(k).Interface()}
	}
	slices.SortFunc(pairs, func(a, b bson.E) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	return iterD(pairs), len(pairs), nil
}

func iterD(d []bson.E) iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, e := range d {
			if !yield(e.Key, e.Value) {
				return
			}
		}
	}
}

func iterMap[T any](m map[string]T) iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for k, v := range m {
			if !yield(k, v) {
				return
			}
		}
	}
}

// Seq returns an iterator over a slice or array of any type. Byte slices are
// treated as scalars.
func Seq(obj any) (iter.Seq[any], int, error) {
	if obj == nil {
		return nil, 0, ErrNilObj
	}
	switch t := obj.(type) {
	case []byte:
		return nil, 0, ErrorNonList{Type: reflect.TypeOf(obj)}
	case []any:
		return iterSlice(t), len(t), nil
	case bson.A:
		return iterSlice(t), len(t), nil
	case []string:
		return iterSlice(t), len(t), nil
	case []int:
		return iterSlice(t), len(t), nil
	case []int32:
		return iterSlice(t), len(t), nil
	case []int64:
		return iterSlice(t), len(t), nil
	case []float64:
		return iterSlice(t), len(t), nil
	}

	v := reflect.ValueNoEscapeOf(obj)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, 0, ErrNilObj
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, 0, ErrorNonList{Type: v.Type()}
	}
	if v.Type().Elem().Kind() == reflect.Uint8 {
		return nil, 0, ErrorNonList{Type: v.Type()}
	}
	l := v.Len()
	return func(yield func(any) bool) {
		for i := range l {
			if !yield(v.Index(i).Interface()) {
				return
			}
		}
	}, l, nil
}

func iterSlice[T any](m []T) iter.Seq[any] {
	return func(yield func(any) bool) {
		for _, v := range m {
			if !yield(v) {
				return
			}
		}
	}
}

// IsList reports whether v is a slice or an array other than a byte slice.
func IsList(v any) bool {
	_, _, err := Seq(v)
	return err == nil
}

// IsMap reports whether v is a map, a bson.D or a [domain.Document].
func IsMap(v any) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case bson.D, domain.Document:
		return true
	}
	rv := reflect.ValueNoEscapeOf(v)
	return rv.Kind() == reflect.Map
}

// IsIterable reports whether v can be used as the argument of list
// operators, which accept lists and maps.
func IsIterable(v any) bool {
	return IsList(v) || IsMap(v)
}

// IsIntegerKind reports whether k is a signed or unsigned integer kind.
func IsIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

// IsNumberKind reports whether k is an integer or floating point kind.
func IsNumberKind(k reflect.Kind) bool {
	return IsIntegerKind(k) || k == reflect.Float32 || k == reflect.Float64
}

// IsInteger reports whether v holds a value of an integer kind, including
// named integer types.
func IsInteger(v any) bool {
	if v == nil {
		return false
	}
	return IsIntegerKind(reflect.TypeOf(v).Kind())
}

// IsNumber reports whether v holds a value of a numeric kind, including named
// numeric types.
func IsNumber(v any) bool {
	if v == nil {
		return false
	}
	return IsNumberKind(reflect.TypeOf(v).Kind())
}

// AsInteger converts any built-in number to int and returns a flag that informs
// if the argument is a valid integer.
func AsInteger(v any) (int, bool) {
	i, ok := AsInt64(v)
	return int(i), ok
}

// AsInt64 converts any built-in number to int64 and returns a flag that
// informs if the argument is a valid integer within int64 range.
func AsInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), uint64(t) <= math.MaxInt64
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), t <= math.MaxInt64
	case float32:
		if trunc := math.Trunc(float64(t)); trunc == float64(t) {
			return int64(trunc), true
		}
		return 0, false
	case float64:
		if trunc := math.Trunc(t); trunc == t && math.Abs(t) < math.MaxInt64 {
			return int64(trunc), true
		}
		return 0, false
	default:
		return 0, false
	}
}
