package codec

import (
	"cmp"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

const (
	refKey   = "$ref"
	refIDKey = "$id"
)

var regexpType = reflect.TypeFor[*regexp.Regexp]()

// EncodeValue encodes a value compared with, or assigned to, the field mf in
// a query or update. mf may be nil for paths outside the mapped graph.
// Entities are encoded as documents, or as references for reference fields.
func (c *Codec) EncodeValue(mf *mapper.MappedField, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	v := reflect.ValueOf(value)
	if mf != nil && mf.IsReference {
		if k, ok := value.(domain.Key); ok {
			return c.encodeKey(k, mf.IDOnly)
		}
		if !c.holdsEntities(v.Type()) {
			return value, nil
		}
		res, _, err := c.encodeReference(mf, v, true)
		return res, err
	}
	poly := mf == nil || mf.SubType().Kind() == reflect.Interface
	res, _, err := c.encodeValue(v, poly, true)
	return res, err
}

// holdsEntities reports whether values of t are, or contain, entities or
// keys.
func (c *Codec) holdsEntities(t reflect.Type) bool {
	for {
		t = mapper.Deref(t)
		switch {
		case t == mapper.KeyType, mapper.IsStructType(t):
			return true
		case mapper.IsLeafType(t):
			return false
		case t.Kind() == reflect.Slice || t.Kind() == reflect.Array || t.Kind() == reflect.Map:
			t = t.Elem()
		default:
			return false
		}
	}
}

func (c *Codec) encodeStruct(v reflect.Value, mc *mapper.MappedClass, disc bool) (bson.D, error) {
	doc := make(bson.D, 0, len(mc.Fields)+1)

	if mc.ID != nil {
		if fv, ok := mc.ID.Get(v); ok && !fv.IsZero() {
			id, _, err := c.encodeValue(fv, false, true)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", mc.ID.Name, err)
			}
			doc = append(doc, bson.E{Key: mapper.IDKey, Value: id})
		}
	}
	if disc {
		doc = append(doc, bson.E{Key: c.mapper.DiscriminatorKey(), Value: mc.Discriminator})
	}

	for _, f := range mc.Fields {
		if f.IsID || f.NotSaved {
			continue
		}
		fv, ok := f.Get(v)
		if !ok {
			continue
		}

		var (
			val  any
			omit bool
			err  error
		)
		if f.IsReference {
			val, omit, err = c.encodeReference(f, fv, false)
		} else {
			val, omit, err = c.encodeValue(fv, f.SubType().Kind() == reflect.Interface, false)
		}
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.Name, err)
		}
		if !omit {
			doc = append(doc, bson.E{Key: f.StoredName, Value: val})
		}
	}
	return doc, nil
}

// encodeValue converts v into its stored representation. poly enables
// writing the discriminator of structs found behind interfaces. keep
// disables omitting nil and empty values.
func (c *Codec) encodeValue(v reflect.Value, poly bool, keep bool) (any, bool, error) {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, !keep && !c.mapper.StoreNulls(), nil
		}
		v = v.Elem()
		poly = true
	}

	if v.Type() == regexpType {
		if v.IsNil() {
			return nil, !keep && !c.mapper.StoreNulls(), nil
		}
		return primitive.Regex{Pattern: v.Interface().(*regexp.Regexp).String()}, false, nil
	}

	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, !keep && !c.mapper.StoreNulls(), nil
		}
		v = v.Elem()
	}

	t := v.Type()
	switch {
	case t == mapper.KeyType:
		if v.IsZero() {
			return nil, !keep && !c.mapper.StoreNulls(), nil
		}
		doc, err := c.encodeKey(v.Interface().(domain.Key), false)
		return doc, false, err

	case t == reflect.TypeFor[time.Time]():
		return primitive.NewDateTimeFromTime(v.Interface().(time.Time)), false, nil

	case mapper.IsLeafType(t):
		return basic(v), false, nil

	case t.Kind() == reflect.Struct:
		mc, err := c.mapper.ClassOf(t)
		if err != nil {
			return nil, false, err
		}
		doc, err := c.encodeStruct(v, mc, poly && mc.UsesDiscriminator())
		return doc, false, err

	case t.Kind() == reflect.Slice || t.Kind() == reflect.Array:
		if t.Kind() == reflect.Slice && v.IsNil() {
			return nil, !keep && !c.mapper.StoreNulls(), nil
		}
		if v.Len() == 0 && !keep && !c.mapper.StoreEmpties() {
			return nil, true, nil
		}
		arr := make(bson.A, v.Len())
		for i := range v.Len() {
			val, _, err := c.encodeValue(v.Index(i), poly, true)
			if err != nil {
				return nil, false, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = val
		}
		return arr, false, nil

	case t.Kind() == reflect.Map:
		if v.IsNil() {
			return nil, !keep && !c.mapper.StoreNulls(), nil
		}
		if v.Len() == 0 && !keep && !c.mapper.StoreEmpties() {
			return nil, true, nil
		}
		doc := make(bson.D, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := mapKey(iter.Key())
			val, _, err := c.encodeValue(iter.Value(), poly, true)
			if err != nil {
				return nil, false, fmt.Errorf("key %s: %w", key, err)
			}
			doc = append(doc, bson.E{Key: key, Value: val})
		}
		slices.SortFunc(doc, func(a, b bson.E) int { return cmp.Compare(a.Key, b.Key) })
		return doc, false, nil
	}

	return nil, false, fmt.Errorf("cannot encode value of type %s", t)
}

// encodeReference stores the entities held by v as references.
func (c *Codec) encodeReference(f *mapper.MappedField, v reflect.Value, keep bool) (any, bool, error) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, !keep && !c.mapper.StoreNulls(), nil
		}
		v = v.Elem()
	}

	t := v.Type()
	switch {
	case t == mapper.KeyType:
		if v.IsZero() {
			return nil, !keep && !c.mapper.StoreNulls(), nil
		}
		doc, err := c.encodeKey(v.Interface().(domain.Key), f.IDOnly)
		return doc, false, err

	case t.Kind() == reflect.Struct:
		mc, err := c.mapper.EntityClass(t)
		if err != nil {
			return nil, false, err
		}
		fv, ok := mc.ID.Get(v)
		if !ok || fv.IsZero() {
			return nil, false, fmt.Errorf("%w: referenced %s was not saved", domain.ErrNoID, mc.Type)
		}
		id, _, err := c.encodeValue(fv, false, true)
		if err != nil {
			return nil, false, err
		}
		if f.IDOnly {
			return id, false, nil
		}
		return bson.D{{Key: refKey, Value: mc.Collection}, {Key: refIDKey, Value: id}}, false, nil

	case t.Kind() == reflect.Slice || t.Kind() == reflect.Array:
		if t.Kind() == reflect.Slice && v.IsNil() {
			return nil, !keep && !c.mapper.StoreNulls(), nil
		}
		if v.Len() == 0 && !keep && !c.mapper.StoreEmpties() {
			return nil, true, nil
		}
		arr := make(bson.A, v.Len())
		for i := range v.Len() {
			val, _, err := c.encodeReference(f, v.Index(i), true)
			if err != nil {
				return nil, false, err
			}
			arr[i] = val
		}
		return arr, false, nil

	case t.Kind() == reflect.Map:
		if v.IsNil() {
			return nil, !keep && !c.mapper.StoreNulls(), nil
		}
		if v.Len() == 0 && !keep && !c.mapper.StoreEmpties() {
			return nil, true, nil
		}
		doc := make(bson.D, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			val, _, err := c.encodeReference(f, iter.Value(), true)
			if err != nil {
				return nil, false, err
			}
			doc = append(doc, bson.E{Key: mapKey(iter.Key()), Value: val})
		}
		slices.SortFunc(doc, func(a, b bson.E) int { return cmp.Compare(a.Key, b.Key) })
		return doc, false, nil
	}

	return nil, false, fmt.Errorf("cannot store %s as a reference", t)
}

func (c *Codec) encodeKey(k domain.Key, idOnly bool) (any, error) {
	if k.ID == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoID, k)
	}
	id, _, err := c.encodeValue(reflect.ValueOf(k.ID), false, true)
	if err != nil {
		return nil, err
	}
	if idOnly {
		return id, nil
	}
	return bson.D{{Key: refKey, Value: k.Collection}, {Key: refIDKey, Value: id}}, nil
}

func mapKey(k reflect.Value) string {
	switch {
	case k.Kind() == reflect.String:
		return k.String()
	case k.CanInt():
		return strconv.FormatInt(k.Int(), 10)
	case k.CanUint():
		return strconv.FormatUint(k.Uint(), 10)
	default:
		return fmt.Sprint(k.Interface())
	}
}

// basic converts named scalar types into their predeclared counterparts.
func basic(v reflect.Value) any {
	if pkg := v.Type().PkgPath(); pkg == "" || strings.HasPrefix(pkg, "go.mongodb.org/") {
		return v.Interface()
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return v.Bool()
	case reflect.Int:
		return int(v.Int())
	case reflect.Int8:
		return int8(v.Int())
	case reflect.Int16:
		return int16(v.Int())
	case reflect.Int32:
		return int32(v.Int())
	case reflect.Int64:
		return v.Int()
	case reflect.Uint:
		return uint(v.Uint())
	case reflect.Uint8:
		return uint8(v.Uint())
	case reflect.Uint16:
		return uint16(v.Uint())
	case reflect.Uint32:
		return uint32(v.Uint())
	case reflect.Uint64:
		return v.Uint()
	case reflect.Float32:
		return float32(v.Float())
	case reflect.Float64:
		return v.Float()
	default:
		return v.Interface()
	}
}
