package mapper

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// PathTarget is the result of resolving a dotted path against a class.
type PathTarget struct {
	// Path is the path using stored names.
	Path string
	// Field is the last field resolved, nil when the path leaves the
	// mapped graph before reaching one.
	Field *MappedField
	// Class is the class declaring Field.
	Class *MappedClass
	// Type is the type of the value the whole path points to, without
	// pointer indirection. It is nil when it cannot be known.
	Type reflect.Type
}

// ResolvePath translates a dotted path into stored names. Go names, lower
// camel Go names and stored names are all accepted. When validate is true,
// unknown fields and paths crossing a reference fail with a
// [*domain.ValidationError]; otherwise the unresolved rest of the path is kept
// as given.
func (m *Mapper) ResolvePath(mc *MappedClass, path string, validate bool) (PathTarget, error) {
	segs := strings.Split(path, ".")
	out := make([]string, 0, len(segs))
	res := PathTarget{}
	typ := mc.Type

	fail := func(reason string) (PathTarget, error) {
		return PathTarget{}, &domain.ValidationError{Type: mc.Type, Field: path, Reason: reason}
	}
	rest := func(i int) (PathTarget, error) {
		out = append(out, segs[i:]...)
		res.Path = strings.Join(out, ".")
		res.Type = nil
		return res, nil
	}

	for i := 0; i < len(segs); i++ {
		seg := segs[i]
		if seg == "" {
			if validate {
				return fail("empty path segment")
			}
			return rest(i)
		}

		switch {
		case typ == nil || typ.Kind() == reflect.Interface:
			return rest(i)

		case typ == keyType:
			if validate {
				return fail(fmt.Sprintf("Cannot use dot-notation past '%s' in '%s'", res.Field.Name, res.Class.Name))
			}
			return rest(i)

		case IsLeafType(typ):
			if isDocumentLeaf(typ) || !validate {
				return rest(i)
			}
			return fail(fmt.Sprintf("the field '%s' could not be found in '%s'", seg, typ))

		case typ.Kind() == reflect.Slice || typ.Kind() == reflect.Array:
			if !isPositional(seg) {
				// implicit traversal of array elements
				i--
			} else {
				out = append(out, seg)
			}
			typ = deref(typ.Elem())

		case typ.Kind() == reflect.Map:
			out = append(out, seg)
			typ = deref(typ.Elem())

		case isPositional(seg):
			out = append(out, seg)

		default:
			cls, err := m.ClassOf(typ)
			if err != nil {
				return PathTarget{}, err
			}
			if i == 0 && seg == m.discriminatorKey && cls.Field(seg) == nil {
				out = append(out, seg)
				typ = reflect.TypeFor[string]()
				continue
			}
			f := cls.Field(seg)
			if f == nil {
				if validate {
					return fail(fmt.Sprintf("the field '%s' could not be found in '%s'", seg, cls.Name))
				}
				res.Field, res.Class = nil, nil
				return rest(i)
			}
			out = append(out, f.StoredName)
			res.Field, res.Class = f, cls
			typ = deref(f.Type)
			if f.IsReference && i < len(segs)-1 {
				if validate {
					return fail(fmt.Sprintf("Cannot use dot-notation past '%s' in '%s'", f.Name, cls.Name))
				}
				return rest(i + 1)
			}
		}
	}

	res.Path = strings.Join(out, ".")
	res.Type = typ
	return res, nil
}

func isDocumentLeaf(t reflect.Type) bool {
	switch t {
	case bsonDType, bsonMType, bsonRawType, rawValueType, bsonAType:
		return true
	}
	return t.Kind() == reflect.Map
}

func isPositional(seg string) bool {
	if seg == "$" || strings.HasPrefix(seg, "$[") {
		return true
	}
	_, err := strconv.Atoi(seg)
	return err == nil
}
