// Package matcher contains the default implementation of [domain.Matcher]
// evaluating MongoDB query documents against stored documents.
package matcher

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/structure"
)

var (
	// ErrMixedOperators is returned when user provides a query with mixed
	// use of normal fields and operators.
	ErrMixedOperators = errors.New("cannot mix operators and normal fields")
)

// ErrUnknownOperator is returned when user provides an unknown top-level
// dollar field.
type ErrUnknownOperator struct {
	Operator string
}

// Error implements [error].
func (e ErrUnknownOperator) Error() string {
	return fmt.Sprintf("unknown operator %q", e.Operator)
}

// ErrUnknownComparison is returned when an unknown field operator is
// provided.
type ErrUnknownComparison struct {
	Comparison string
}

// Error implements [error].
func (e ErrUnknownComparison) Error() string {
	return fmt.Sprintf("unknown comparison %q", e.Comparison)
}

// ErrCompArgType is returned when an operator is called with an argument of
// invalid type.
type ErrCompArgType struct {
	Comp   string
	Want   string
	Actual any
}

// Error implements [error].
func (e ErrCompArgType) Error() string {
	return fmt.Sprintf(
		"%s value should be of type %s, got %T",
		e.Comp, e.Want, e.Actual,
	)
}

// ignored are top-level operators that change how a write runs on a server
// but have no effect on which documents match.
var ignored = []string{"$comment", "$isolated", "$atomic"}

var geoOperators = []string{
	"$near", "$nearSphere", "$geoWithin", "$geoIntersects", "$within",
	"$maxDistance", "$minDistance",
}

// Matcher implements [domain.Matcher].
type Matcher struct {
	documentFactory domain.DocumentFactory
	comparer        domain.Comparer
	fieldNavigator  domain.FieldNavigator
}

// NewMatcher returns a new implementation of domain.Matcher.
func NewMatcher(options ...Option) domain.Matcher {
	m := &Matcher{
		documentFactory: data.NewDocument,
		comparer:        comparer.NewComparer(),
		fieldNavigator:  fieldnavigator.NewFieldNavigator(data.NewDocument),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Match implements [domain.Matcher].
func (m *Matcher) Match(value any, filter any) (bool, error) {
	qry, err := m.Compile(filter)
	if err != nil {
		return false, err
	}
	doc, ok := value.(domain.Document)
	if !ok {
		if doc, err = m.documentFactory(value); err != nil {
			return false, err
		}
	}
	return m.MatchQuery(doc, qry)
}

// Compile parses filter once so it can be evaluated against many documents
// with [Matcher.MatchQuery].
func (m *Matcher) Compile(filter any) (Query, error) {
	if filter == nil {
		return Query{}, nil
	}
	lo, err := m.makeLogicOp(And, filter)
	if err != nil {
		return Query{}, err
	}
	return Query{Lo: lo}, nil
}

// MatchQuery reports whether doc matches a compiled query.
func (m *Matcher) MatchQuery(doc domain.Document, qry Query) (bool, error) {
	return m.matchLogicOp(doc, qry.Lo)
}

func (m *Matcher) makeLogicOp(typ Logic, filter any) (LogicOp, error) {
	lo := LogicOp{Kind: typ}
	seq, _, err := structure.Seq2(filter)
	if err != nil {
		return lo, fmt.Errorf("%w: %w", ErrCompArgType{Comp: "filter", Want: "document", Actual: filter}, err)
	}
	for key, value := range seq {
		var sub LogicOp
		switch key {
		case "$and":
			sub, err = m.makeLogicList(And, key, value)
		case "$or":
			sub, err = m.makeLogicList(Or, key, value)
		case "$nor":
			sub, err = m.makeLogicList(Nor, key, value)
		case "$where":
			sub, err = m.makeWhere(value)
		case "$text":
			sub, err = m.makeText(value)
		default:
			if slices.Contains(ignored, key) {
				continue
			}
			if strings.HasPrefix(key, "$") {
				return lo, ErrUnknownOperator{Operator: key}
			}
			var rule FieldRule
			if rule, err = m.makeFieldRule(key, value); err != nil {
				return lo, err
			}
			lo.Rules = append(lo.Rules, rule)
			continue
		}
		if err != nil {
			return lo, err
		}
		lo.Sub = append(lo.Sub, sub)
	}
	return lo, nil
}

func (m *Matcher) makeLogicList(typ Logic, name string, v any) (LogicOp, error) {
	lo := LogicOp{Kind: typ}
	items, l, err := structure.Seq(v)
	if err != nil || l == 0 {
		return lo, ErrCompArgType{Comp: name, Want: "non-empty list", Actual: v}
	}
	lo.Sub = make([]LogicOp, 0, l)
	for item := range items {
		sub, err := m.makeLogicOp(And, item)
		if err != nil {
			return lo, err
		}
		lo.Sub = append(lo.Sub, sub)
	}
	return lo, nil
}

func (m *Matcher) makeWhere(v any) (LogicOp, error) {
	switch fn := v.(type) {
	case func(domain.Document) (bool, error):
		return LogicOp{Kind: Where, Where: fn}, nil
	case func(any) (bool, error):
		return LogicOp{Kind: Where, Where: func(d domain.Document) (bool, error) { return fn(d) }}, nil
	case string, primitive.JavaScript, primitive.CodeWithScope:
		return LogicOp{}, fmt.Errorf("%w: javascript $where", domain.ErrUnsupported)
	}
	return LogicOp{}, ErrCompArgType{Comp: "$where", Want: "func(domain.Document) (bool, error)", Actual: v}
}

func (m *Matcher) makeText(v any) (LogicOp, error) {
	seq, _, err := structure.Seq2(v)
	if err != nil {
		return LogicOp{}, ErrCompArgType{Comp: "$text", Want: "document", Actual: v}
	}
	lo := LogicOp{Kind: Text}
	for k, v := range seq {
		switch k {
		case "$search":
			s, ok := v.(string)
			if !ok {
				return lo, ErrCompArgType{Comp: "$search", Want: "string", Actual: v}
			}
			lo.Terms = strings.Fields(s)
		case "$caseSensitive":
			lo.Case, _ = v.(bool)
		}
	}
	if !lo.Case {
		for n, t := range lo.Terms {
			lo.Terms[n] = strings.ToLower(t)
		}
	}
	return lo, nil
}

func (m *Matcher) makeFieldRule(field string, obj any) (FieldRule, error) {
	addr, err := m.fieldNavigator.GetAddress(field)
	if err != nil {
		return FieldRule{}, err
	}
	rule := FieldRule{Addr: addr}

	if rgx, ok, err := m.asRegex(obj, "", false); ok || err != nil {
		rule.Conds = []Cond{{Op: Regex, Rgx: rgx}}
		return rule, err
	}

	ops, isOps, err := m.operators(obj)
	if err != nil {
		return rule, err
	}
	if !isOps {
		val, err := data.Value(obj)
		if err != nil {
			return rule, err
		}
		rule.Conds = []Cond{{Op: Eq, Val: val}}
		return rule, nil
	}

	rule.Conds, err = m.makeConds(ops)
	return rule, err
}

type operator struct {
	key   string
	value any
}

// operators returns the pairs of obj when every key of obj is an operator.
// Documents without operators are compared as values.
func (m *Matcher) operators(obj any) ([]operator, bool, error) {
	if obj == nil || !structure.IsMap(obj) {
		return nil, false, nil
	}
	seq, l, err := structure.Seq2(obj)
	if err != nil {
		return nil, false, nil
	}
	ops := make([]operator, 0, l)
	dollar := 0
	for k, v := range seq {
		if strings.HasPrefix(k, "$") {
			dollar++
		}
		ops = append(ops, operator{key: k, value: v})
	}
	if dollar > 0 && dollar != len(ops) {
		return nil, false, ErrMixedOperators
	}
	return ops, dollar > 0, nil
}

func (m *Matcher) makeConds(ops []operator) ([]Cond, error) {
	var options string
	for _, op := range ops {
		if op.key == "$options" {
			s, ok := op.value.(string)
			if !ok {
				return nil, ErrCompArgType{Comp: "$options", Want: "string", Actual: op.value}
			}
			options = s
		}
	}

	conds := make([]Cond, 0, len(ops))
	for _, op := range ops {
		if op.key == "$options" {
			continue
		}
		cond, err := m.makeCond(op.key, op.value, options)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond)
	}
	return conds, nil
}

func (m *Matcher) makeCond(k string, v any, options string) (Cond, error) {
	switch k {
	case "$eq":
		return m.makeValue(Eq, v)
	case "$ne":
		return m.makeValue(Ne, v)
	case "$lt":
		return m.makeValue(Lt, v)
	case "$lte":
		return m.makeValue(Lte, v)
	case "$gt":
		return m.makeValue(Gt, v)
	case "$gte":
		return m.makeValue(Gte, v)
	case "$in":
		return m.makeList(In, k, v)
	case "$nin":
		return m.makeList(Nin, k, v)
	case "$all":
		return m.makeList(All, k, v)
	case "$exists":
		return m.makeExists(v), nil
	case "$size":
		n, ok := structure.AsInteger(v)
		if !ok {
			return Cond{}, ErrCompArgType{Comp: k, Want: "integer", Actual: v}
		}
		return Cond{Op: Size, Val: n}, nil
	case "$mod":
		return m.makeMod(v)
	case "$regex":
		rgx, ok, err := m.asRegex(v, options, true)
		if err != nil {
			return Cond{}, err
		}
		if !ok {
			return Cond{}, ErrCompArgType{Comp: k, Want: "regex", Actual: v}
		}
		return Cond{Op: Regex, Rgx: rgx}, nil
	case "$type":
		return m.makeType(v)
	case "$elemMatch":
		return m.makeElemMatch(v)
	case "$not":
		return m.makeNot(v)
	}
	if slices.Contains(geoOperators, k) {
		return Cond{}, fmt.Errorf("%w: %s", domain.ErrUnsupported, k)
	}
	return Cond{}, ErrUnknownComparison{Comparison: k}
}

func (m *Matcher) makeValue(op Operator, v any) (Cond, error) {
	val, err := data.Value(v)
	if err != nil {
		return Cond{}, err
	}
	return Cond{Op: op, Val: val}, nil
}

func (m *Matcher) makeList(op Operator, name string, v any) (Cond, error) {
	items, l, err := structure.Seq(v)
	if err != nil {
		return Cond{}, ErrCompArgType{Comp: name, Want: "list", Actual: v}
	}
	cond := Cond{Op: op, List: make([]any, 0, l)}
	for item := range items {
		if rgx, ok, err := m.asRegex(item, "", false); ok || err != nil {
			if err != nil {
				return cond, err
			}
			cond.List = append(cond.List, rgx)
			continue
		}
		val, err := data.Value(item)
		if err != nil {
			return cond, err
		}
		cond.List = append(cond.List, val)
	}
	return cond, nil
}

func (m *Matcher) makeExists(v any) Cond {
	switch t := v.(type) {
	case nil:
		return Cond{Op: Exists, Val: false}
	case bool:
		return Cond{Op: Exists, Val: t}
	}
	if structure.IsNumber(v) {
		c, err := m.comparer.Compare(v, 0)
		return Cond{Op: Exists, Val: err != nil || c != 0}
	}
	return Cond{Op: Exists, Val: true}
}

func (m *Matcher) makeMod(v any) (Cond, error) {
	want := ErrCompArgType{Comp: "$mod", Want: "list of two numbers", Actual: v}
	items, l, err := structure.Seq(v)
	if err != nil || l != 2 {
		return Cond{}, want
	}
	args := make([]int64, 0, 2)
	for item := range items {
		n, ok := structure.AsInt64(item)
		if !ok {
			f, isFloat := item.(float64)
			if !isFloat {
				return Cond{}, want
			}
			n = int64(math.Trunc(f))
		}
		args = append(args, n)
	}
	if args[0] == 0 {
		return Cond{}, fmt.Errorf("%w: divisor cannot be 0", want)
	}
	return Cond{Op: Mod, Div: args[0], Rem: args[1]}, nil
}

func (m *Matcher) makeType(v any) (Cond, error) {
	var types []string
	add := func(item any) error {
		switch t := item.(type) {
		case string:
			if !slices.Contains(typeAliases, t) {
				return ErrCompArgType{Comp: "$type", Want: "type alias", Actual: t}
			}
			types = append(types, t)
			return nil
		}
		n, ok := structure.AsInteger(item)
		if !ok {
			return ErrCompArgType{Comp: "$type", Want: "type alias or number", Actual: item}
		}
		alias, ok := typeCodes[n]
		if !ok {
			return ErrCompArgType{Comp: "$type", Want: "known type number", Actual: item}
		}
		types = append(types, alias)
		return nil
	}

	if items, _, err := structure.Seq(v); err == nil {
		for item := range items {
			if err := add(item); err != nil {
				return Cond{}, err
			}
		}
	} else if err := add(v); err != nil {
		return Cond{}, err
	}
	return Cond{Op: Type, Types: types}, nil
}

func (m *Matcher) makeElemMatch(v any) (Cond, error) {
	ops, isOps, err := m.operators(v)
	if err != nil {
		return Cond{}, err
	}
	if isOps && !slices.ContainsFunc(ops, func(o operator) bool {
		return slices.Contains([]string{"$and", "$or", "$nor", "$where", "$text"}, o.key)
	}) {
		sub, err := m.makeConds(ops)
		return Cond{Op: ElemMatch, Sub: sub}, err
	}
	qry, err := m.Compile(v)
	if err != nil {
		return Cond{}, err
	}
	return Cond{Op: ElemMatch, Query: &qry}, nil
}

func (m *Matcher) makeNot(v any) (Cond, error) {
	if rgx, ok, err := m.asRegex(v, "", false); ok || err != nil {
		return Cond{Op: Not, Sub: []Cond{{Op: Regex, Rgx: rgx}}}, err
	}
	ops, isOps, err := m.operators(v)
	if err != nil {
		return Cond{}, err
	}
	if !isOps {
		return Cond{}, ErrCompArgType{Comp: "$not", Want: "operator document or regex", Actual: v}
	}
	sub, err := m.makeConds(ops)
	return Cond{Op: Not, Sub: sub}, err
}

// asRegex compiles v when it is a regular expression or, for $regex, a
// pattern string.
func (m *Matcher) asRegex(v any, options string, allowString bool) (*regexp.Regexp, bool, error) {
	var pattern string
	switch t := v.(type) {
	case *regexp.Regexp:
		if options == "" {
			return t, true, nil
		}
		pattern = t.String()
	case primitive.Regex:
		pattern = t.Pattern
		options += t.Options
	case string:
		if !allowString {
			return nil, false, nil
		}
		pattern = t
	default:
		return nil, false, nil
	}

	var flags strings.Builder
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			if !strings.ContainsRune(flags.String(), o) {
				flags.WriteRune(o)
			}
		default:
			return nil, true, fmt.Errorf("%w: regex option %q", domain.ErrUnsupported, o)
		}
	}
	if flags.Len() > 0 {
		pattern = "(?" + flags.String() + ")" + pattern
	}
	rgx, err := regexp.Compile(pattern)
	if err != nil {
		return nil, true, err
	}
	return rgx, true, nil
}
