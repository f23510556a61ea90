package matcher

import (
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

var typeAliases = []string{
	"double", "string", "object", "array", "binData", "undefined",
	"objectId", "bool", "date", "null", "regex", "javascript", "symbol",
	"int", "timestamp", "long", "decimal", "minKey", "maxKey", "number",
}

var typeCodes = map[int]string{
	1: "double", 2: "string", 3: "object", 4: "array", 5: "binData",
	6: "undefined", 7: "objectId", 8: "bool", 9: "date", 10: "null",
	11: "regex", 13: "javascript", 14: "symbol", 16: "int",
	17: "timestamp", 18: "long", 19: "decimal", -1: "minKey", 127: "maxKey",
}

func (m *Matcher) matchLogicOp(doc domain.Document, lo LogicOp) (bool, error) {
	switch lo.Kind {
	case And:
		for _, rule := range lo.Rules {
			if ok, err := m.matchRule(doc, rule); err != nil || !ok {
				return false, err
			}
		}
		for _, sub := range lo.Sub {
			if ok, err := m.matchLogicOp(doc, sub); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Or:
		for _, sub := range lo.Sub {
			if ok, err := m.matchLogicOp(doc, sub); err != nil || ok {
				return ok, err
			}
		}
		return false, nil
	case Nor:
		for _, sub := range lo.Sub {
			if ok, err := m.matchLogicOp(doc, sub); err != nil || ok {
				return false, err
			}
		}
		return true, nil
	case Where:
		return lo.Where(doc)
	case Text:
		return m.matchText(doc, lo), nil
	}
	return false, nil
}

func (m *Matcher) matchRule(doc domain.Document, rule FieldRule) (bool, error) {
	values, _, err := m.fieldNavigator.GetField(doc, rule.Addr...)
	if err != nil {
		return false, err
	}
	for _, cond := range rule.Conds {
		if ok, err := m.matchCond(values, cond); err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (m *Matcher) matchCond(values []domain.GetSetter, cond Cond) (bool, error) {
	switch cond.Op {
	case Eq:
		return m.eq(values, cond.Val)
	case Ne:
		ok, err := m.eq(values, cond.Val)
		return !ok, err
	case Lt:
		return m.order(values, cond.Val, func(c int) bool { return c < 0 })
	case Lte:
		return m.order(values, cond.Val, func(c int) bool { return c <= 0 })
	case Gt:
		return m.order(values, cond.Val, func(c int) bool { return c > 0 })
	case Gte:
		return m.order(values, cond.Val, func(c int) bool { return c >= 0 })
	case In:
		return m.in(values, cond.List)
	case Nin:
		ok, err := m.in(values, cond.List)
		return !ok, err
	case All:
		return m.all(values, cond.List)
	case Exists:
		return m.exists(values) == cond.Val.(bool), nil
	case Size:
		return m.size(values, cond.Val.(int)), nil
	case Mod:
		return m.mod(values, cond.Div, cond.Rem), nil
	case Regex:
		return m.regex(values, cond.Rgx), nil
	case Type:
		return m.typ(values, cond.Types), nil
	case ElemMatch:
		return m.elemMatch(values, cond)
	case Not:
		for _, sub := range cond.Sub {
			ok, err := m.matchCond(values, sub)
			if err != nil {
				return false, err
			}
			if !ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

// candidates returns the defined values and, for arrays, each of their
// elements, which is what most operators are evaluated against.
func (m *Matcher) candidates(values []domain.GetSetter) []any {
	res := make([]any, 0, len(values))
	for _, v := range values {
		actual, ok := v.Get()
		if !ok {
			continue
		}
		res = append(res, actual)
		if arr, ok := actual.([]any); ok {
			res = append(res, arr...)
		}
	}
	return res
}

func (m *Matcher) eq(values []domain.GetSetter, want any) (bool, error) {
	if want == nil {
		for _, v := range values {
			if actual, ok := v.Get(); !ok || actual == nil {
				return true, nil
			}
		}
	}
	for _, actual := range m.candidates(values) {
		ok, err := m.equal(actual, want)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (m *Matcher) equal(a, b any) (bool, error) {
	if !m.comparer.Comparable(a, b) {
		return false, nil
	}
	c, err := m.comparer.Compare(a, b)
	return c == 0, err
}

func (m *Matcher) order(values []domain.GetSetter, want any, accept func(int) bool) (bool, error) {
	for _, actual := range m.candidates(values) {
		if !m.comparer.Comparable(actual, want) {
			continue
		}
		c, err := m.comparer.Compare(actual, want)
		if err != nil {
			return false, err
		}
		if accept(c) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Matcher) in(values []domain.GetSetter, list []any) (bool, error) {
	for _, item := range list {
		var ok bool
		var err error
		if rgx, isRgx := item.(*regexp.Regexp); isRgx {
			ok = m.regex(values, rgx)
		} else {
			ok, err = m.eq(values, item)
		}
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

func (m *Matcher) all(values []domain.GetSetter, list []any) (bool, error) {
	if len(list) == 0 {
		return false, nil
	}
	for _, item := range list {
		ok, err := m.in(values, []any{item})
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (m *Matcher) exists(values []domain.GetSetter) bool {
	return slices.ContainsFunc(values, func(v domain.GetSetter) bool {
		_, ok := v.Get()
		return ok
	})
}

func (m *Matcher) size(values []domain.GetSetter, size int) bool {
	return slices.ContainsFunc(values, func(v domain.GetSetter) bool {
		actual, _ := v.Get()
		arr, ok := actual.([]any)
		return ok && len(arr) == size
	})
}

func (m *Matcher) mod(values []domain.GetSetter, div, rem int64) bool {
	return slices.ContainsFunc(m.candidates(values), func(actual any) bool {
		var n int64
		switch t := actual.(type) {
		case int32:
			n = int64(t)
		case int64:
			n = t
		case float64:
			if math.IsNaN(t) || math.IsInf(t, 0) {
				return false
			}
			n = int64(math.Trunc(t))
		default:
			return false
		}
		return n%div == rem
	})
}

func (m *Matcher) regex(values []domain.GetSetter, rgx *regexp.Regexp) bool {
	return slices.ContainsFunc(m.candidates(values), func(actual any) bool {
		switch t := actual.(type) {
		case string:
			return rgx.MatchString(t)
		case primitive.Symbol:
			return rgx.MatchString(string(t))
		case primitive.Regex:
			return t.Pattern == rgx.String()
		}
		return false
	})
}

func (m *Matcher) typ(values []domain.GetSetter, types []string) bool {
	for _, actual := range m.candidates(values) {
		alias := typeOf(actual)
		for _, t := range types {
			if t == alias || t == "number" && slices.Contains([]string{"double", "int", "long", "decimal"}, alias) {
				return true
			}
		}
	}
	return false
}

func (m *Matcher) elemMatch(values []domain.GetSetter, cond Cond) (bool, error) {
	for _, v := range values {
		actual, _ := v.Get()
		arr, ok := actual.([]any)
		if !ok {
			continue
		}
		for _, elem := range arr {
			ok, err := m.matchElem(elem, cond)
			if err != nil || ok {
				return ok, err
			}
		}
	}
	return false, nil
}

func (m *Matcher) matchElem(elem any, cond Cond) (bool, error) {
	if cond.Query != nil {
		doc, ok := elem.(domain.Document)
		if !ok {
			return false, nil
		}
		return m.MatchQuery(doc, *cond.Query)
	}
	values := []domain.GetSetter{fieldnavigator.Constant(elem)}
	for _, sub := range cond.Sub {
		if ok, err := m.matchCond(values, sub); err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// matchText reports whether any term is contained in a string anywhere in
// doc.
func (m *Matcher) matchText(doc domain.Document, lo LogicOp) bool {
	if len(lo.Terms) == 0 {
		return false
	}
	var walk func(v any) bool
	walk = func(v any) bool {
		switch t := v.(type) {
		case string:
			if !lo.Case {
				t = strings.ToLower(t)
			}
			return slices.ContainsFunc(lo.Terms, func(term string) bool {
				return strings.Contains(t, term)
			})
		case domain.Document:
			for _, v := range t.Iter() {
				if walk(v) {
					return true
				}
			}
		case []any:
			return slices.ContainsFunc(t, walk)
		}
		return false
	}
	return walk(doc)
}

func typeOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case float64, float32:
		return "double"
	case string:
		return "string"
	case domain.Document:
		return "object"
	case []any:
		return "array"
	case primitive.Binary:
		return "binData"
	case primitive.Undefined:
		return "undefined"
	case primitive.ObjectID:
		return "objectId"
	case bool:
		return "bool"
	case primitive.DateTime, time.Time:
		return "date"
	case primitive.Regex:
		return "regex"
	case primitive.JavaScript:
		return "javascript"
	case primitive.Symbol:
		return "symbol"
	case int32, int16, int8:
		return "int"
	case primitive.Timestamp:
		return "timestamp"
	case int64, int:
		return "long"
	case primitive.Decimal128:
		return "decimal"
	case primitive.MinKey:
		return "minKey"
	case primitive.MaxKey:
		return "maxKey"
	}
	return ""
}
