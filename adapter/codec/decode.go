package codec

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type resolvingKey struct{}

// resolving returns the references being loaded by the current decode, used
// to stop reference cycles.
func resolving(ctx context.Context) map[string]struct{} {
	m, _ := ctx.Value(resolvingKey{}).(map[string]struct{})
	return m
}

func withResolving(ctx context.Context, key string) context.Context {
	prev := resolving(ctx)
	next := make(map[string]struct{}, len(prev)+1)
	for k := range prev {
		next[k] = struct{}{}
	}
	next[key] = struct{}{}
	return context.WithValue(ctx, resolvingKey{}, next)
}

func (c *Codec) decodeStruct(ctx context.Context, doc bson.D, v reflect.Value, mc *mapper.MappedClass, path string) error {
	values := make(map[string]any, len(doc))
	for _, e := range doc {
		values[e.Key] = e.Value
	}

	for _, f := range mc.Fields {
		raw, ok := values[f.StoredName]
		for _, n := range f.LoadNames {
			if ok {
				break
			}
			raw, ok = values[n]
		}
		if !ok {
			continue
		}

		dst := f.Settable(v)
		var err error
		if f.IsReference {
			err = c.decodeReference(ctx, f, raw, dst)
		} else {
			err = c.decodeValue(ctx, raw, dst, path+f.StoredName)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Codec) decodeValue(ctx context.Context, raw any, dst reflect.Value, path string) error {
	if raw == nil {
		dst.SetZero()
		return nil
	}

	t := dst.Type()
	fail := func() error {
		return domain.DecodeError{Field: path, Source: raw, Target: t}
	}

	switch {
	case t == regexpType:
		return c.decodeRegexp(raw, dst, fail)

	case t.Kind() == reflect.Pointer:
		ptr := reflect.New(t.Elem())
		if err := c.decodeValue(ctx, raw, ptr.Elem(), path); err != nil {
			return err
		}
		dst.Set(ptr)
		return nil

	case t == mapper.KeyType:
		k, err := c.decodeKey(raw)
		if err != nil {
			return fmt.Errorf("%w: %w", fail(), err)
		}
		dst.Set(reflect.ValueOf(k))
		return nil

	case t.Kind() == reflect.Interface:
		return c.decodeInterface(ctx, raw, dst, path)

	case t == reflect.TypeFor[bson.Raw]():
		doc, ok := toD(raw)
		if !ok {
			return fail()
		}
		b, err := bson.Marshal(doc)
		if err != nil {
			return fmt.Errorf("%w: %w", fail(), err)
		}
		dst.SetBytes(b)
		return nil

	case mapper.IsLeafType(t):
		rv := reflect.ValueOf(raw)
		if rv.Type().AssignableTo(t) {
			dst.Set(rv)
			return nil
		}
		if err := c.decoder.Decode(raw, dst.Addr().Interface()); err != nil {
			return fmt.Errorf("%w: %w", fail(), err)
		}
		return nil

	case t.Kind() == reflect.Struct:
		doc, ok := toD(raw)
		if !ok {
			return fail()
		}
		mc, err := c.mapper.ClassOf(t)
		if err != nil {
			return err
		}
		return c.decodeStruct(ctx, doc, dst, mc, path+".")

	case t.Kind() == reflect.Slice || t.Kind() == reflect.Array:
		arr, ok := toA(raw)
		if !ok {
			return fail()
		}
		if t.Kind() == reflect.Slice {
			dst.Set(reflect.MakeSlice(t, len(arr), len(arr)))
		}
		for i := range min(len(arr), dst.Len()) {
			if err := c.decodeValue(ctx, arr[i], dst.Index(i), path+"."+strconv.Itoa(i)); err != nil {
				return err
			}
		}
		return nil

	case t.Kind() == reflect.Map:
		doc, ok := toD(raw)
		if !ok {
			return fail()
		}
		m := reflect.MakeMapWithSize(t, len(doc))
		for _, e := range doc {
			key, err := parseMapKey(e.Key, t.Key())
			if err != nil {
				return fmt.Errorf("%w: %w", fail(), err)
			}
			val := reflect.New(t.Elem()).Elem()
			if err := c.decodeValue(ctx, e.Value, val, path+"."+e.Key); err != nil {
				return err
			}
			m.SetMapIndex(key, val)
		}
		dst.Set(m)
		return nil
	}

	return fail()
}

func (c *Codec) decodeRegexp(raw any, dst reflect.Value, fail func() error) error {
	var pattern string
	switch r := raw.(type) {
	case primitive.Regex:
		pattern = r.Pattern
		if r.Options != "" {
			pattern = "(?" + r.Options + ")" + pattern
		}
	case string:
		pattern = r
	default:
		return fail()
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("%w: %w", fail(), err)
	}
	dst.Set(reflect.ValueOf(re))
	return nil
}

func (c *Codec) decodeInterface(ctx context.Context, raw any, dst reflect.Value, path string) error {
	t := dst.Type()
	doc, isDoc := toD(raw)
	if !isDoc {
		if arr, ok := toA(raw); ok && t.NumMethod() == 0 {
			dst.Set(reflect.ValueOf(arr))
			return nil
		}
		rv := reflect.ValueOf(raw)
		if !rv.Type().AssignableTo(t) {
			return domain.DecodeError{Field: path, Source: raw, Target: t}
		}
		dst.Set(rv)
		return nil
	}

	if _, ok := lookup(doc, c.mapper.DiscriminatorKey()); !ok && t.NumMethod() == 0 {
		dst.Set(reflect.ValueOf(doc))
		return nil
	}

	mc, err := c.classFor(doc, t)
	if err != nil {
		return err
	}
	ptr := reflect.New(mc.Type)
	if err := c.decodeStruct(ctx, doc, ptr.Elem(), mc, path+"."); err != nil {
		return err
	}
	return setImplementation(dst, ptr, mc)
}

// decodeReference loads the entities referenced by raw into dst.
func (c *Codec) decodeReference(ctx context.Context, f *mapper.MappedField, raw any, dst reflect.Value) error {
	if raw == nil {
		dst.SetZero()
		return nil
	}
	t := dst.Type()
	fail := func() error {
		return domain.DecodeError{Field: f.StoredName, Source: raw, Target: t}
	}

	switch {
	case t == mapper.KeyType:
		k, err := c.decodeKey(raw)
		if err != nil {
			return fmt.Errorf("%w: %w", fail(), err)
		}
		dst.Set(reflect.ValueOf(k))
		return nil

	case t.Kind() == reflect.Pointer && mapper.IsStructType(t.Elem()),
		t.Kind() == reflect.Interface:
		ptr, err := c.loadReference(ctx, raw, t)
		if err != nil {
			return err
		}
		return setReference(dst, ptr)

	case mapper.IsStructType(t):
		ptr, err := c.loadReference(ctx, raw, t)
		if err != nil {
			return err
		}
		dst.Set(ptr.Elem())
		return nil

	case t.Kind() == reflect.Slice || t.Kind() == reflect.Array:
		arr, ok := toA(raw)
		if !ok {
			return fail()
		}
		if t.Kind() == reflect.Slice {
			dst.Set(reflect.MakeSlice(t, len(arr), len(arr)))
		}
		for i := range min(len(arr), dst.Len()) {
			if err := c.decodeReference(ctx, f, arr[i], dst.Index(i)); err != nil {
				return err
			}
		}
		return nil

	case t.Kind() == reflect.Map:
		doc, ok := toD(raw)
		if !ok {
			return fail()
		}
		m := reflect.MakeMapWithSize(t, len(doc))
		for _, e := range doc {
			key, err := parseMapKey(e.Key, t.Key())
			if err != nil {
				return fmt.Errorf("%w: %w", fail(), err)
			}
			val := reflect.New(t.Elem()).Elem()
			if err := c.decodeReference(ctx, f, e.Value, val); err != nil {
				return err
			}
			m.SetMapIndex(key, val)
		}
		dst.Set(m)
		return nil
	}

	return fail()
}

func setReference(dst reflect.Value, ptr reflect.Value) error {
	switch {
	case ptr.Type().AssignableTo(dst.Type()):
		dst.Set(ptr)
	case ptr.Elem().Type().AssignableTo(dst.Type()):
		dst.Set(ptr.Elem())
	default:
		return fmt.Errorf("cannot store %s in %s", ptr.Type(), dst.Type())
	}
	return nil
}

// loadReference returns a pointer to the entity raw refers to. Without a
// resolver, or when the entity is missing or already being loaded, the
// returned entity only holds its id.
func (c *Codec) loadReference(ctx context.Context, raw any, t reflect.Type) (reflect.Value, error) {
	key, err := c.decodeKey(raw)
	if err != nil {
		return reflect.Value{}, err
	}

	var mc *mapper.MappedClass
	switch et := mapper.Deref(t); {
	case et.Kind() == reflect.Interface:
		mc, err = c.classByCollection(key.Collection, et)
	default:
		mc, err = c.mapper.EntityClass(et)
	}
	if err != nil {
		return reflect.Value{}, err
	}
	if key.Collection == "" {
		key.Collection = mc.Collection
	}
	key.Type = mc.Type

	ptr := reflect.New(mc.Type)
	id := fmt.Sprintf("%s/%v", key.Collection, key.ID)
	if _, busy := resolving(ctx)[id]; c.resolver != nil && !busy {
		err := c.resolver.Resolve(withResolving(ctx, id), key, ptr.Interface())
		switch {
		case err == nil:
			return ptr, nil
		case errors.Is(err, domain.ErrNotFound):
			c.log.Warn("referenced entity not found", "key", key.String())
		default:
			return reflect.Value{}, err
		}
	}

	ptr = reflect.New(mc.Type)
	if err := c.decodeValue(ctx, key.ID, mc.ID.Settable(ptr.Elem()), mc.ID.StoredName); err != nil {
		return reflect.Value{}, err
	}
	return ptr, nil
}

func (c *Codec) classByCollection(collection string, iface reflect.Type) (*mapper.MappedClass, error) {
	if collection == "" {
		return c.mapper.Implementation(iface)
	}
	for _, mc := range c.mapper.Subtypes(iface) {
		if mc.IsEntity() && mc.Collection == collection {
			return mc, nil
		}
	}
	return nil, &domain.MappingError{
		Type:   iface,
		Reason: fmt.Sprintf("no mapped implementation is stored in %q", collection),
	}
}

// decodeKey reads a reference stored either as {$ref, $id} or as a bare id.
func (c *Codec) decodeKey(raw any) (domain.Key, error) {
	doc, ok := toD(raw)
	if !ok {
		return domain.Key{ID: raw}, nil
	}
	var k domain.Key
	ref, hasRef := lookup(doc, refKey)
	id, hasID := lookup(doc, refIDKey)
	if !hasRef || !hasID {
		return k, errors.New("reference document must hold $ref and $id")
	}
	k.Collection, _ = ref.(string)
	k.ID = id
	for _, mc := range c.mapper.Classes() {
		if mc.IsEntity() && mc.Collection == k.Collection {
			k.Type = mc.Type
			break
		}
	}
	return k, nil
}

func parseMapKey(s string, t reflect.Type) (reflect.Value, error) {
	k := reflect.New(t).Elem()
	switch {
	case t.Kind() == reflect.String:
		k.SetString(s)
	case k.CanInt():
		n, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return k, err
		}
		k.SetInt(n)
	case k.CanUint():
		n, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return k, err
		}
		k.SetUint(n)
	default:
		return k, fmt.Errorf("unsupported map key type %s", t)
	}
	return k, nil
}

func toA(v any) ([]any, bool) {
	switch t := v.(type) {
	case bson.A:
		return t, true
	case []any:
		return t, true
	}
	rv := reflect.ValueOf(v)
	if (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) && rv.Type().Elem().Kind() != reflect.Uint8 {
		res := make([]any, rv.Len())
		for i := range rv.Len() {
			res[i] = rv.Index(i).Interface()
		}
		return res, true
	}
	return nil, false
}
