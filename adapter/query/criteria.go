package query

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Criteria is a node of a filter tree.
type Criteria interface {
	// Render returns the filter document of the node. Rendering never
	// changes the node.
	Render() (bson.D, error)
}

// FieldCriteria applies an operator to a field.
type FieldCriteria struct {
	field    string
	operator FilterOperator
	value    any
	extra    bson.D
	not      bool
	err      error
}

// Field returns the stored path the criteria applies to.
func (c *FieldCriteria) Field() string {
	return c.field
}

// Operator returns the criteria operator.
func (c *FieldCriteria) Operator() FilterOperator {
	return c.operator
}

// Value returns the encoded value.
func (c *FieldCriteria) Value() any {
	return c.value
}

// Err returns the error found when the criteria was built.
func (c *FieldCriteria) Err() error {
	return c.err
}

// Render implements [Criteria].
func (c *FieldCriteria) Render() (bson.D, error) {
	if c.err != nil {
		return nil, c.err
	}

	var val any
	switch {
	case c.operator == Equal && !c.not:
		val = c.value
	case c.operator == Equal && isRegex(c.value):
		val = bson.D{{Key: "$not", Value: c.value}}
	case c.operator == Equal:
		val = bson.D{{Key: string(NotEqual), Value: c.value}}
	default:
		ops := make(bson.D, 0, 1+len(c.extra))
		ops = append(ops, bson.E{Key: string(c.operator), Value: c.value})
		ops = append(ops, c.extra...)
		if c.not {
			val = bson.D{{Key: "$not", Value: ops}}
		} else {
			val = ops
		}
	}
	return bson.D{{Key: c.field, Value: val}}, nil
}

func isRegex(v any) bool {
	_, ok := v.(primitive.Regex)
	return ok
}

// rawCriteria is a node holding a document that is not bound to a field,
// such as $where and $text.
type rawCriteria struct {
	doc bson.D
}

func (r rawCriteria) Render() (bson.D, error) {
	return r.doc, nil
}

type join uint8

const (
	joinAnd join = iota
	joinOr
)

// Container combines criteria with a logical operator.
type Container struct {
	join     join
	children []Criteria
}

// And returns a container matching documents matched by every criteria.
func And(criteria ...Criteria) *Container {
	return &Container{join: joinAnd, children: criteria}
}

// Or returns a container matching documents matched by any criteria.
func Or(criteria ...Criteria) *Container {
	return &Container{join: joinOr, children: criteria}
}

// Add appends criteria to the container.
func (c *Container) Add(criteria ...Criteria) {
	c.children = append(c.children, criteria...)
}

// Len returns the number of direct children.
func (c *Container) Len() int {
	return len(c.children)
}

// Render implements [Criteria]. An AND container merges the documents of
// its children and falls back to $and when two children use the same field
// in a way that cannot be merged.
func (c *Container) Render() (bson.D, error) {
	docs := make([]bson.D, 0, len(c.children))
	for _, child := range c.children {
		doc, err := child.Render()
		if err != nil {
			return nil, err
		}
		if len(doc) > 0 {
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return bson.D{}, nil
	}

	key := "$or"
	if c.join == joinAnd {
		if merged, ok := merge(docs); ok {
			return merged, nil
		}
		key = "$and"
	}
	arr := make(bson.A, len(docs))
	for i, d := range docs {
		arr[i] = d
	}
	return bson.D{{Key: key, Value: arr}}, nil
}

func (c *Container) clone() *Container {
	cp := &Container{join: c.join, children: make([]Criteria, len(c.children))}
	for i, child := range c.children {
		if sub, ok := child.(*Container); ok {
			cp.children[i] = sub.clone()
		} else {
			cp.children[i] = child
		}
	}
	return cp
}

// merge joins docs into a single document. Two entries for the same field
// are merged only if both are operator documents with distinct operators.
func merge(docs []bson.D) (bson.D, bool) {
	res := make(bson.D, 0, len(docs))
	pos := make(map[string]int)
	for _, doc := range docs {
		for _, e := range doc {
			i, found := pos[e.Key]
			if !found {
				pos[e.Key] = len(res)
				res = append(res, e)
				continue
			}
			joined, ok := joinOperators(res[i].Value, e.Value)
			if !ok {
				return nil, false
			}
			res[i].Value = joined
		}
	}
	return res, true
}

func joinOperators(a, b any) (bson.D, bool) {
	da, ok := operators(a)
	if !ok {
		return nil, false
	}
	db, ok := operators(b)
	if !ok {
		return nil, false
	}
	seen := make(map[string]bool, len(da))
	for _, e := range da {
		seen[e.Key] = true
	}
	res := make(bson.D, 0, len(da)+len(db))
	res = append(res, da...)
	for _, e := range db {
		if seen[e.Key] {
			return nil, false
		}
		res = append(res, e)
	}
	return res, true
}

// operators returns v if it is a non-empty document whose keys are all
// operators.
func operators(v any) (bson.D, bool) {
	d, ok := v.(bson.D)
	if !ok || len(d) == 0 {
		return nil, false
	}
	for _, e := range d {
		if !strings.HasPrefix(e.Key, "$") {
			return nil, false
		}
	}
	return d, true
}

// criteriaErr returns the first error held by c or its children.
func criteriaErr(c Criteria) error {
	switch t := c.(type) {
	case *FieldCriteria:
		return t.err
	case *Container:
		for _, child := range t.children {
			if err := criteriaErr(child); err != nil {
				return err
			}
		}
	}
	return nil
}
