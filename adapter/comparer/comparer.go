// Package comparer orders values the way MongoDB sorts BSON values: first by
// type bracket, then by value within the bracket.
package comparer

import (
	"bytes"
	"cmp"
	"fmt"
	"iter"
	"math/big"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Type brackets, smallest first. Undefined values sort before everything,
// including MinKey.
const (
	undefined = iota
	minKey
	null
	number
	str
	document
	array
	binary
	objectID
	boolean
	date
	timestamp
	regex
	maxKey
	unknown
)

// Comparer implements [domain.Comparer].
type Comparer struct{}

// NewComparer returns a new implementation of [domain.Comparer].
func NewComparer() domain.Comparer {
	return &Comparer{}
}

// Comparable implements [domain.Comparer]. Two values are comparable when
// both are defined and fall in the same type bracket, which is what range
// operators such as $lt require.
func (c *Comparer) Comparable(a, b any) bool {
	ra, rb := c.rank(a), c.rank(b)
	return ra != undefined && ra != unknown && ra == rb
}

// Compare implements [domain.Comparer].
func (c *Comparer) Compare(a any, b any) (int, error) {
	ra, rb := c.rank(a), c.rank(b)
	if ra == unknown || rb == unknown {
		return 0, fmt.Errorf("cannot compare unexpected types %T and %T", c.getVal(a), c.getVal(b))
	}
	if ra != rb {
		return cmp.Compare(ra, rb), nil
	}
	a, b = c.getVal(a), c.getVal(b)

	switch ra {
	case undefined, minKey, null, maxKey:
		return 0, nil
	case number:
		x, _ := c.asNumber(a)
		y, _ := c.asNumber(b)
		return x.Cmp(y), nil
	case str:
		return cmp.Compare(c.asString(a), c.asString(b)), nil
	case document:
		return c.compareDoc(a.(domain.Document), b.(domain.Document))
	case array:
		return c.compareArray(a.([]any), b.([]any))
	case binary:
		x, y := a.(primitive.Binary), b.(primitive.Binary)
		if l := cmp.Compare(len(x.Data), len(y.Data)); l != 0 {
			return l, nil
		}
		if s := cmp.Compare(x.Subtype, y.Subtype); s != 0 {
			return s, nil
		}
		return bytes.Compare(x.Data, y.Data), nil
	case objectID:
		x, y := a.(primitive.ObjectID), b.(primitive.ObjectID)
		return bytes.Compare(x[:], y[:]), nil
	case boolean:
		return c.compareBool(a.(bool), b.(bool)), nil
	case date:
		return c.asTime(a).Compare(c.asTime(b)), nil
	case timestamp:
		return primitive.CompareTimestamp(a.(primitive.Timestamp), b.(primitive.Timestamp)), nil
	case regex:
		x, y := c.asRegex(a), c.asRegex(b)
		if p := cmp.Compare(x.Pattern, y.Pattern); p != 0 {
			return p, nil
		}
		return cmp.Compare(x.Options, y.Options), nil
	}
	return 0, nil
}

func (c *Comparer) rank(v any) int {
	if !c.isSet(v) {
		return undefined
	}
	v = c.getVal(v)
	if _, ok := c.asNumber(v); ok {
		return number
	}
	switch v.(type) {
	case nil:
		return null
	case primitive.MinKey:
		return minKey
	case primitive.MaxKey:
		return maxKey
	case string, primitive.Symbol:
		return str
	case domain.Document:
		return document
	case []any:
		return array
	case primitive.Binary:
		return binary
	case primitive.ObjectID:
		return objectID
	case bool:
		return boolean
	case primitive.DateTime, time.Time:
		return date
	case primitive.Timestamp:
		return timestamp
	case primitive.Regex, *regexp.Regexp:
		return regex
	}
	return unknown
}

func (c *Comparer) compareArray(a, b []any) (int, error) {
	for i := range min(len(a), len(b)) {
		comp, err := c.Compare(a[i], b[i])
		if err != nil {
			return 0, err
		}
		if comp != 0 {
			return comp, nil
		}
	}

	// Common section was identical, longest one wins
	return cmp.Compare(len(a), len(b)), nil
}

func (c *Comparer) compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if a {
		return 1
	}
	return -1
}

// compareDoc walks both documents in field order, comparing the type bracket
// of each value, then the key, then the value itself.
func (c *Comparer) compareDoc(a domain.Document, b domain.Document) (int, error) {
	nextA, stopA := iter.Pull2(a.Iter())
	defer stopA()
	nextB, stopB := iter.Pull2(b.Iter())
	defer stopB()

	for {
		ka, va, okA := nextA()
		kb, vb, okB := nextB()
		switch {
		case !okA && !okB:
			return 0, nil
		case !okA:
			return -1, nil
		case !okB:
			return 1, nil
		}
		if comp := cmp.Compare(c.rank(va), c.rank(vb)); comp != 0 {
			return comp, nil
		}
		if comp := cmp.Compare(ka, kb); comp != 0 {
			return comp, nil
		}
		comp, err := c.Compare(va, vb)
		if err != nil || comp != 0 {
			return comp, err
		}
	}
}

func (c *Comparer) asNumber(v any) (*big.Float, bool) {
	r := new(big.Float)
	switch n := v.(type) {
	case int:
		r.SetInt64(int64(n))
	case int8:
		r.SetInt64(int64(n))
	case int16:
		r.SetInt64(int64(n))
	case int32:
		r.SetInt64(int64(n))
	case int64:
		r.SetInt64(n)
	case uint:
		r.SetUint64(uint64(n))
	case uint8:
		r.SetUint64(uint64(n))
	case uint16:
		r.SetUint64(uint64(n))
	case uint32:
		r.SetUint64(uint64(n))
	case uint64:
		r.SetUint64(n)
	case float32:
		r.SetFloat64(float64(n))
	case float64:
		// big.Float panics on NaN; MongoDB sorts it below every number.
		if n != n {
			r.SetInf(true)
			return r, true
		}
		r.SetFloat64(n)
	case primitive.Decimal128:
		f, _, err := big.ParseFloat(n.String(), 10, 128, big.ToNearestEven)
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
	return r, true
}

func (c *Comparer) asString(v any) string {
	if s, ok := v.(primitive.Symbol); ok {
		return string(s)
	}
	return v.(string)
}

func (c *Comparer) asTime(v any) time.Time {
	if d, ok := v.(primitive.DateTime); ok {
		return d.Time()
	}
	return v.(time.Time)
}

func (c *Comparer) asRegex(v any) primitive.Regex {
	if r, ok := v.(*regexp.Regexp); ok {
		return primitive.Regex{Pattern: r.String()}
	}
	return v.(primitive.Regex)
}

func (c *Comparer) isSet(v any) bool {
	if g, ok := v.(domain.Getter); ok {
		_, isSet := g.Get()
		return isSet
	}
	return true
}

func (c *Comparer) getVal(v any) any {
	if g, ok := v.(domain.Getter); ok {
		val, _ := g.Get()
		return val
	}
	return v
}
