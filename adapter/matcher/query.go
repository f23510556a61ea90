package matcher

import (
	"regexp"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Logic identifies the operator combining the branches of a [LogicOp].
type Logic uint8

// Supported top level operators.
const (
	And Logic = iota
	Or
	Nor
	Where
	Text
)

var logicNames = [...]string{"$and", "$or", "$nor", "$where", "$text"}

func (l Logic) String() string {
	if int(l) < len(logicNames) {
		return logicNames[l]
	}
	return "unknown"
}

// Operator identifies the test a [Cond] applies to a field value.
type Operator uint8

// Supported field operators. Implicit equality compiles to Eq.
const (
	Eq Operator = iota
	Ne
	Exists
	Lt
	Lte
	Gt
	Gte
	Size
	In
	Nin
	All
	Mod
	ElemMatch
	Regex
	Type
	Not
)

var operatorNames = [...]string{
	"$eq", "$ne", "$exists", "$lt", "$lte", "$gt", "$gte", "$size", "$in",
	"$nin", "$all", "$mod", "$elemMatch", "$regex", "$type", "$not",
}

func (o Operator) String() string {
	if int(o) < len(operatorNames) {
		return operatorNames[o]
	}
	return "unknown"
}

// Query is a compiled filter. The zero Query matches every document.
type Query struct {
	Lo LogicOp
}

// LogicOp combines field rules and nested operators with Kind. The root of
// a [Query] is always an And.
type LogicOp struct {
	Kind  Logic
	Rules []FieldRule
	Sub   []LogicOp
	Where func(domain.Document) (bool, error)
	Terms []string
	Case  bool
}

// FieldRule holds the conditions that the value at Addr must satisfy.
type FieldRule struct {
	Addr  []string
	Conds []Cond
}

// Cond is one operator applied to a field value.
type Cond struct {
	Op  Operator
	Val any
	// List holds the operands of $in, $nin and $all.
	List []any
	// Rgx is the compiled pattern of $regex and of regular expressions
	// found in $in and $nin.
	Rgx *regexp.Regexp
	// Sub holds the conditions negated by $not or applied to each element
	// by an operator-only $elemMatch.
	Sub []Cond
	// Query is the filter applied to each element by $elemMatch.
	Query *Query
	// Types holds the aliases accepted by $type.
	Types []string
	// Div and Rem are the operands of $mod.
	Div, Rem int64
}
