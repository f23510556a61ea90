// Package fieldnavigator resolves dotted field paths inside documents,
// expanding arrays the way MongoDB does when a path crosses them.
package fieldnavigator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

var (
	// ErrEmptyField is returned by [FieldNavigator.GetAddress] for paths
	// with an empty segment.
	ErrEmptyField = errors.New("field path contains an empty segment")
	// ErrCannotCreateField is returned by [FieldNavigator.EnsureField] when
	// the path goes through a value that is neither a document nor an
	// array.
	ErrCannotCreateField = errors.New("cannot create field")
)

// FieldNavigator implements [domain.FieldNavigator].
type FieldNavigator struct {
	docFac domain.DocumentFactory
}

// NewFieldNavigator returns a new instance of [domain.FieldNavigator].
func NewFieldNavigator(docFac domain.DocumentFactory) domain.FieldNavigator {
	return &FieldNavigator{
		docFac: docFac,
	}
}

// GetAddress implements [domain.FieldNavigator].
func (fn *FieldNavigator) GetAddress(field string) ([]string, error) {
	addr := strings.Split(field, ".")
	for _, part := range addr {
		if part == "" {
			return nil, fmt.Errorf("%w: %q", ErrEmptyField, field)
		}
	}
	return addr, nil
}

// GetField implements [domain.FieldNavigator]. The returned flag reports
// whether an array was expanded, in which case one GetSetter is returned per
// array element that had the path.
func (fn *FieldNavigator) GetField(obj any, fieldParts ...string) ([]domain.GetSetter, bool, error) {
	return fn.getField(obj, fieldParts, false)
}

// EnsureField implements [domain.FieldNavigator]. Missing documents are
// created along the path and arrays are grown when a numeric segment points
// past their end. Non-numeric segments over arrays are rejected.
func (fn *FieldNavigator) EnsureField(obj any, fieldParts ...string) ([]domain.GetSetter, error) {
	res, _, err := fn.getField(obj, fieldParts, true)
	return res, err
}

type step struct {
	v  any
	gs domain.GetSetter
}

func (fn *FieldNavigator) getField(obj any, fieldParts []string, ensure bool) ([]domain.GetSetter, bool, error) {
	undefined := []domain.GetSetter{Missing()}
	if obj == nil || len(fieldParts) == 0 {
		return undefined, false, nil
	}

	curr := []step{{v: obj, gs: Constant(obj)}}
	expanded := false

	for idx, part := range fieldParts {
		last := idx == len(fieldParts)-1
		next := make([]step, 0, len(curr))

		for _, item := range curr {
			switch t := item.v.(type) {
			case domain.Document:
				if ensure && !t.Has(part) {
					var value any
					if !last {
						doc, err := fn.docFac(nil)
						if err != nil {
							return nil, expanded, err
						}
						value = doc
					}
					t.Set(part, value)
				}
				next = append(next, step{v: t.Get(part), gs: FieldOf(t, part)})

			case []any:
				if i, err := strconv.Atoi(part); err == nil && i >= 0 {
					gs := ElementOf(t, i, item.gs)
					if ensure && i >= len(t) {
						var value any
						if !last {
							if value, err = fn.docFac(nil); err != nil {
								return nil, expanded, err
							}
						}
						gs.Set(value)
					}
					v, _ := gs.Get()
					next = append(next, step{v: v, gs: gs})
					continue
				}
				if ensure {
					return nil, expanded, fmt.Errorf("%w %q in array", ErrCannotCreateField, part)
				}
				// Arrays nested directly in arrays are not expanded.
				expanded = true
				for _, elem := range t {
					if d, ok := elem.(domain.Document); ok {
						next = append(next, step{v: d.Get(part), gs: FieldOf(d, part)})
					}
				}

			default:
				if ensure {
					return nil, expanded, fmt.Errorf("%w %q in element %v", ErrCannotCreateField, part, t)
				}
				if !expanded {
					return undefined, false, nil
				}
			}
		}
		curr = next
	}

	if len(curr) == 0 {
		return undefined, expanded, nil
	}
	res := make([]domain.GetSetter, len(curr))
	for n, v := range curr {
		res[n] = v.gs
	}
	return res, expanded, nil
}
