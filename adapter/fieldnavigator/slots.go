package fieldnavigator

import "github.com/vinicius-lino-figueiredo/gedm/domain"

// FieldOf returns the slot of key in doc.
func FieldOf(doc domain.Document, key string) domain.GetSetter {
	return field{doc: doc, key: key}
}

type field struct {
	doc domain.Document
	key string
}

func (f field) Get() (any, bool) { return f.doc.Get(f.key), f.doc.Has(f.key) }
func (f field) Set(v any)        { f.doc.Set(f.key, v) }
func (f field) Unset()           { f.doc.Unset(f.key) }

// ElementOf returns the slot at position i of list. Setting a position past
// the end pads the array with nulls and stores the longer array through
// parent; without a parent such writes are dropped, like negative positions.
// Unsetting an element nulls it, as arrays keep their length.
func ElementOf(list []any, i int, parent domain.GetSetter) domain.GetSetter {
	return &element{list: list, i: i, parent: parent}
}

type element struct {
	list   []any
	i      int
	parent domain.GetSetter
}

func (e *element) Get() (any, bool) {
	if e.i < 0 || e.i >= len(e.list) {
		return nil, false
	}
	return e.list[e.i], true
}

func (e *element) Set(v any) {
	switch {
	case e.i < 0:
		return
	case e.i >= len(e.list):
		if e.parent == nil {
			return
		}
		padded := append(e.list, make([]any, e.i+1-len(e.list))...)
		e.list = padded
		e.parent.Set(padded)
	}
	e.list[e.i] = v
}

func (e *element) Unset() {
	if e.i >= 0 && e.i < len(e.list) {
		e.list[e.i] = nil
	}
}

// Constant returns a defined slot holding v that ignores writes. It stands
// for values that are not stored under any key, like a document root.
func Constant(v any) domain.GetSetter {
	return constant{v: v}
}

type constant struct{ v any }

func (c constant) Get() (any, bool) { return c.v, true }
func (constant) Set(any)            {}
func (constant) Unset()             {}

// Missing returns the slot of a path that does not resolve to any value.
func Missing() domain.GetSetter {
	return missing{}
}

type missing struct{}

func (missing) Get() (any, bool) { return nil, false }
func (missing) Set(any)          {}
func (missing) Unset()           {}
