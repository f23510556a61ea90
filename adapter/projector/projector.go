// Package projector contains the default [domain.Projector] implementation.
package projector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/structure"
)

var (
	// ErrMixOmitType is returned when user provides a projection object
	// with mixed "omit" and "show" operators.
	ErrMixOmitType = errors.New("can't both keep and omit fields except for _id")
	// ErrPathCollision is returned when a projection names a field and one
	// of its subfields.
	ErrPathCollision = errors.New("path collision")
	// ErrProjectionValue is returned for projection values that are
	// neither numbers, booleans nor $slice documents.
	ErrProjectionValue = errors.New("invalid projection value")
)

type node struct {
	leaf     bool
	children map[string]*node
}

func (n *node) add(addr []string) error {
	curr := n
	for i, part := range addr {
		if curr.leaf {
			return fmt.Errorf("%w at %q", ErrPathCollision, strings.Join(addr[:i], "."))
		}
		if curr.children == nil {
			curr.children = make(map[string]*node)
		}
		next, ok := curr.children[part]
		if !ok {
			next = &node{}
			curr.children[part] = next
		}
		curr = next
	}
	if curr.leaf || len(curr.children) > 0 {
		return fmt.Errorf("%w at %q", ErrPathCollision, strings.Join(addr, "."))
	}
	curr.leaf = true
	return nil
}

type slice struct {
	addr  []string
	pair  bool
	skip  int
	limit int
}

func (s slice) apply(arr []any) []any {
	l := len(arr)
	if !s.pair {
		if s.limit >= 0 {
			return arr[:min(s.limit, l)]
		}
		return arr[max(0, l+s.limit):]
	}
	skip := s.skip
	if skip < 0 {
		skip = max(0, l+skip)
	}
	skip = min(skip, l)
	return arr[skip:min(l, skip+s.limit)]
}

type plan struct {
	root    *node
	include bool
	idSet   bool
	keepID  bool
	slices  []slice
}

// Projector implements [domain.Projector].
type Projector struct {
	fn     domain.FieldNavigator
	docFac domain.DocumentFactory
}

// NewProjector returns a new implementation of [domain.Projector].
func NewProjector(opts ...Option) domain.Projector {
	p := Projector{docFac: data.NewDocument}
	for _, opt := range opts {
		opt(&p)
	}
	if p.fn == nil {
		p.fn = fieldnavigator.NewFieldNavigator(p.docFac)
	}
	return &p
}

// Project implements [domain.Projector]. Projected documents are copies and
// keep the field order of the source documents.
func (q *Projector) Project(docs []domain.Document, proj domain.Document) ([]domain.Document, error) {
	if proj == nil || proj.Len() == 0 {
		return docs, nil
	}

	pl, err := q.plan(proj)
	if err != nil {
		return nil, err
	}

	res := make([]domain.Document, len(docs))
	for n, doc := range docs {
		projected, err := q.projectDoc(doc, pl)
		if err != nil {
			return nil, err
		}
		res[n] = projected
	}

	return res, nil
}

func (q *Projector) plan(proj domain.Document) (*plan, error) {
	pl := &plan{root: &node{}, keepID: true}
	seen := false

	for field, value := range proj.Iter() {
		addr, err := q.fn.GetAddress(field)
		if err != nil {
			return nil, err
		}

		if d, ok := value.(domain.Document); ok {
			s, err := sliceSpec(field, d)
			if err != nil {
				return nil, err
			}
			s.addr = addr
			pl.slices = append(pl.slices, s)
			continue
		}

		include, err := truthy(field, value)
		if err != nil {
			return nil, err
		}
		if field == data.IDKey {
			pl.idSet, pl.keepID = true, include
			continue
		}
		if seen && include != pl.include {
			return nil, ErrMixOmitType
		}
		seen, pl.include = true, include
		if err := pl.root.add(addr); err != nil {
			return nil, err
		}
	}

	if !seen && pl.idSet && pl.keepID && len(pl.slices) == 0 {
		pl.include = true
	}

	if pl.include {
		for _, s := range pl.slices {
			if err := pl.root.add(s.addr); err != nil {
				return nil, err
			}
		}
		if pl.keepID {
			if _, ok := pl.root.children[data.IDKey]; !ok {
				if err := pl.root.add([]string{data.IDKey}); err != nil {
					return nil, err
				}
			}
		}
	}
	return pl, nil
}

func truthy(field string, v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case int32:
		return t != 0, nil
	case int64:
		return t != 0, nil
	case float64:
		return t != 0, nil
	}
	if structure.IsNumber(v) {
		n, _ := structure.AsInt64(v)
		return n != 0, nil
	}
	return false, fmt.Errorf("%w for %q: %v", ErrProjectionValue, field, v)
}

func sliceSpec(field string, d domain.Document) (slice, error) {
	if d.Len() != 1 || !d.Has("$slice") {
		for k := range d.Keys() {
			if strings.HasPrefix(k, "$") && k != "$slice" {
				return slice{}, fmt.Errorf("%w: projection operator %s", domain.ErrUnsupported, k)
			}
		}
		return slice{}, fmt.Errorf("%w for %q", ErrProjectionValue, field)
	}

	arg := d.Get("$slice")
	if n, ok := integer(arg); ok {
		return slice{limit: n}, nil
	}
	if arr, ok := arg.([]any); ok && len(arr) == 2 {
		skip, okSkip := integer(arr[0])
		limit, okLimit := integer(arr[1])
		if okSkip && okLimit && limit > 0 {
			return slice{pair: true, skip: skip, limit: limit}, nil
		}
	}
	return slice{}, fmt.Errorf("%w: $slice of %q expects a number or [skip, limit]", ErrProjectionValue, field)
}

func integer(v any) (int, bool) {
	if !structure.IsNumber(v) {
		return 0, false
	}
	return structure.AsInteger(v)
}

func (q *Projector) projectDoc(doc domain.Document, pl *plan) (domain.Document, error) {
	var res domain.Document
	var err error
	if pl.include {
		res, err = q.include(doc, pl.root)
	} else {
		res, err = q.exclude(doc, pl.root)
		if err == nil && !pl.keepID {
			res.Unset(data.IDKey)
		}
	}
	if err != nil {
		return nil, err
	}

	for _, s := range pl.slices {
		fields, _, err := q.fn.GetField(res, s.addr...)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			if arr, ok := f.Get(); ok {
				if a, ok := arr.([]any); ok {
					f.Set(s.apply(a))
				}
			}
		}
	}
	return res, nil
}

func (q *Projector) include(doc domain.Document, n *node) (domain.Document, error) {
	res, err := q.docFac(nil)
	if err != nil {
		return nil, err
	}
	for k, v := range doc.Iter() {
		child, ok := n.children[k]
		if !ok {
			continue
		}
		if child.leaf {
			res.Set(k, data.Clone(v))
			continue
		}
		val, ok, err := q.includeValue(v, child)
		if err != nil {
			return nil, err
		}
		if ok {
			res.Set(k, val)
		}
	}
	return res, nil
}

// includeValue projects the subfields of n in v. Scalars have no subfields
// and are dropped.
func (q *Projector) includeValue(v any, n *node) (any, bool, error) {
	switch t := v.(type) {
	case domain.Document:
		d, err := q.include(t, n)
		return d, err == nil, err
	case []any:
		res := []any{}
		for _, item := range t {
			val, ok, err := q.includeValue(item, n)
			if err != nil {
				return nil, false, err
			}
			if ok {
				res = append(res, val)
			}
		}
		return res, true, nil
	}
	return nil, false, nil
}

func (q *Projector) exclude(doc domain.Document, n *node) (domain.Document, error) {
	res, err := q.docFac(nil)
	if err != nil {
		return nil, err
	}
	for k, v := range doc.Iter() {
		child, ok := n.children[k]
		if !ok {
			res.Set(k, data.Clone(v))
			continue
		}
		if child.leaf {
			continue
		}
		val, err := q.excludeValue(v, child)
		if err != nil {
			return nil, err
		}
		res.Set(k, val)
	}
	return res, nil
}

func (q *Projector) excludeValue(v any, n *node) (any, error) {
	switch t := v.(type) {
	case domain.Document:
		return q.exclude(t, n)
	case []any:
		res := make([]any, len(t))
		for i, item := range t {
			val, err := q.excludeValue(item, n)
			if err != nil {
				return nil, err
			}
			res[i] = val
		}
		return res, nil
	}
	return data.Clone(v), nil
}
