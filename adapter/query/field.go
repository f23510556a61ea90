package query

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FieldEnd builds one criteria for a field. T is what the criteria is handed
// to: the query itself, or the caller for detached criteria.
type FieldEnd[T any] struct {
	query *Query
	field string
	not   bool
	done  func(*FieldCriteria) T
}

// Not negates the next operator.
func (f *FieldEnd[T]) Not() *FieldEnd[T] {
	f.not = !f.not
	return f
}

func (f *FieldEnd[T]) add(op FilterOperator, value any, extra ...bson.E) T {
	c := f.query.criteria(f.field, op, value, f.not)
	c.extra = extra
	return f.done(c)
}

// Equal matches values equal to v.
func (f *FieldEnd[T]) Equal(v any) T { return f.add(Equal, v) }

// NotEqual matches values not equal to v.
func (f *FieldEnd[T]) NotEqual(v any) T { return f.add(NotEqual, v) }

// GreaterThan matches values greater than v.
func (f *FieldEnd[T]) GreaterThan(v any) T { return f.add(GreaterThan, v) }

// GreaterThanOrEq matches values greater than or equal to v.
func (f *FieldEnd[T]) GreaterThanOrEq(v any) T { return f.add(GreaterThanOrEqual, v) }

// LessThan matches values less than v.
func (f *FieldEnd[T]) LessThan(v any) T { return f.add(LessThan, v) }

// LessThanOrEq matches values less than or equal to v.
func (f *FieldEnd[T]) LessThanOrEq(v any) T { return f.add(LessThanOrEqual, v) }

// Exists matches documents holding the field.
func (f *FieldEnd[T]) Exists() T { return f.add(Exists, true) }

// DoesNotExist matches documents without the field.
func (f *FieldEnd[T]) DoesNotExist() T { return f.add(Exists, false) }

// In matches values found in values, which must be a list or a map.
func (f *FieldEnd[T]) In(values any) T { return f.add(In, values) }

// NotIn matches values not found in values.
func (f *FieldEnd[T]) NotIn(values any) T { return f.add(NotIn, values) }

// HasThisOne matches lists containing v.
func (f *FieldEnd[T]) HasThisOne(v any) T { return f.add(Equal, v) }

// HasAllOf matches lists containing every item of values.
func (f *FieldEnd[T]) HasAllOf(values any) T { return f.add(All, values) }

// HasAnyOf matches lists containing any item of values.
func (f *FieldEnd[T]) HasAnyOf(values any) T { return f.add(In, values) }

// HasNoneOf matches lists containing no item of values.
func (f *FieldEnd[T]) HasNoneOf(values any) T { return f.add(NotIn, values) }

// HasThisElement matches lists holding an element equal to v, which is
// usually an embedded value.
func (f *FieldEnd[T]) HasThisElement(v any) T { return f.add(ElemMatch, v) }

// ElemMatch matches lists holding an element matched by sub. Paths in sub
// are relative to the list elements.
func (f *FieldEnd[T]) ElemMatch(sub *Query) T { return f.add(ElemMatch, sub) }

// SizeEq matches lists with exactly n elements.
func (f *FieldEnd[T]) SizeEq(n int) T { return f.add(Size, n) }

// Mod matches numbers whose remainder by divisor is remainder.
func (f *FieldEnd[T]) Mod(divisor, remainder int64) T {
	return f.add(Mod, []int64{divisor, remainder})
}

// Type matches values of the given BSON type.
func (f *FieldEnd[T]) Type(t bsontype.Type) T { return f.add(Type, int32(t)) }

// StartsWith matches strings starting with prefix.
func (f *FieldEnd[T]) StartsWith(prefix string) T {
	return f.add(Equal, pattern("^"+regexp.QuoteMeta(prefix), false))
}

// StartsWithIgnoreCase matches strings starting with prefix, ignoring case.
func (f *FieldEnd[T]) StartsWithIgnoreCase(prefix string) T {
	return f.add(Equal, pattern("^"+regexp.QuoteMeta(prefix), true))
}

// EndsWith matches strings ending with suffix.
func (f *FieldEnd[T]) EndsWith(suffix string) T {
	return f.add(Equal, pattern(regexp.QuoteMeta(suffix)+"$", false))
}

// EndsWithIgnoreCase matches strings ending with suffix, ignoring case.
func (f *FieldEnd[T]) EndsWithIgnoreCase(suffix string) T {
	return f.add(Equal, pattern(regexp.QuoteMeta(suffix)+"$", true))
}

// Contains matches strings containing s.
func (f *FieldEnd[T]) Contains(s string) T {
	return f.add(Equal, pattern(regexp.QuoteMeta(s), false))
}

// ContainsIgnoreCase matches strings containing s, ignoring case.
func (f *FieldEnd[T]) ContainsIgnoreCase(s string) T {
	return f.add(Equal, pattern(regexp.QuoteMeta(s), true))
}

// EqualIgnoreCase matches strings equal to s, ignoring case.
func (f *FieldEnd[T]) EqualIgnoreCase(s string) T {
	return f.add(Equal, pattern("^"+regexp.QuoteMeta(s)+"$", true))
}

// Near sorts documents by distance to the point, on a flat surface. A
// positive maxDistance limits the results.
func (f *FieldEnd[T]) Near(p Point, maxDistance float64) T {
	return f.add(Near, p.array(), maxDistanceOf(maxDistance)...)
}

// NearSphere works like Near on a sphere.
func (f *FieldEnd[T]) NearSphere(p Point, maxDistance float64) T {
	return f.add(NearSphere, p.array(), maxDistanceOf(maxDistance)...)
}

// Within matches locations inside shape.
func (f *FieldEnd[T]) Within(shape Shape) T {
	return f.add(GeoWithin, shape.Document())
}

// Intersects matches geometries intersecting g.
func (f *FieldEnd[T]) Intersects(g Geometry) T {
	return f.add(Intersects, g.Document())
}

func pattern(expr string, ignoreCase bool) primitive.Regex {
	if ignoreCase {
		return primitive.Regex{Pattern: expr, Options: "i"}
	}
	return primitive.Regex{Pattern: expr}
}

func maxDistanceOf(d float64) []bson.E {
	if d <= 0 {
		return nil
	}
	return []bson.E{{Key: "$maxDistance", Value: d}}
}
