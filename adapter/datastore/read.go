package datastore

import (
	"context"
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/query"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Get loads the entity with identifier id into target, which must point to
// a value of a mapped entity type. It returns [domain.ErrNotFound] if no
// such entity is stored.
func (ds *Datastore) Get(ctx context.Context, target any, id any) error {
	if id == nil {
		return fmt.Errorf("%w: cannot get an entity by a nil id", domain.ErrNoID)
	}
	return ds.Find(target).Field(mapper.IDKey).Equal(id).Get(ctx, target)
}

// GetByKey loads the entity identified by key into target. The type of the
// key is used when set; otherwise the type of target decides the class.
func (ds *Datastore) GetByKey(ctx context.Context, key domain.Key, target any) error {
	mc, err := ds.keyClass(key, target)
	if err != nil {
		return err
	}
	if key.ID == nil {
		return fmt.Errorf("%w: %s", domain.ErrNoID, key)
	}
	return ds.byKeys(mc, key.Collection).
		Field(mapper.IDKey).Equal(key.ID).
		Get(ctx, target)
}

// GetByKeys loads the entities identified by keys into the slice pointed by
// target. Results follow the order of keys; keys without a stored entity are
// skipped. Keys of several collections may be mixed.
func (ds *Datastore) GetByKeys(ctx context.Context, keys []domain.Key, target any) error {
	sv, err := sliceTarget(target)
	if err != nil {
		return err
	}
	elemType := sv.Type().Elem()

	type group struct {
		mc  *mapper.MappedClass
		ids []any
	}
	groups := map[string]*group{}
	var order []string
	for _, k := range keys {
		if k.ID == nil {
			return fmt.Errorf("%w: %s", domain.ErrNoID, k)
		}
		mc, err := ds.keyClass(k, elemType)
		if err != nil {
			return err
		}
		coll := k.Collection
		if coll == "" {
			coll = mc.Collection
		}
		g, ok := groups[coll]
		if !ok {
			g = &group{mc: mc}
			groups[coll] = g
			order = append(order, coll)
		}
		g.ids = append(g.ids, k.ID)
	}

	found := map[string]reflect.Value{}
	for _, coll := range order {
		g := groups[coll]
		it, err := ds.byKeys(g.mc, coll).Field(mapper.IDKey).In(g.ids).Iterate(ctx)
		if err != nil {
			return err
		}
		err = ds.collect(ctx, it, coll, elemType, found)
		if cerr := it.Close(ctx); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}

	res := reflect.MakeSlice(sv.Type(), 0, len(found))
	for _, k := range keys {
		mc, _ := ds.keyClass(k, elemType)
		coll := k.Collection
		if coll == "" {
			coll = mc.Collection
		}
		stored, err := ds.codec.EncodeValue(mc.ID, k.ID)
		if err != nil {
			return err
		}
		id, err := canonicalID(coll, stored)
		if err != nil {
			return err
		}
		if v, ok := found[id]; ok {
			res = reflect.Append(res, v)
		}
	}
	sv.Set(res)
	return nil
}

// collect decodes every document of it into a new element of type t,
// storing it by its canonical identifier.
func (ds *Datastore) collect(ctx context.Context, it *query.Iterator, coll string, t reflect.Type, found map[string]reflect.Value) error {
	for it.Next(ctx) {
		raw := it.Raw()
		id, err := canonicalID(coll, raw.Lookup(mapper.IDKey))
		if err != nil {
			return err
		}
		ptr := reflect.New(mapper.Deref(t))
		if t.Kind() == reflect.Interface {
			ptr = reflect.New(t)
		}
		if err := it.Decode(ctx, ptr.Interface()); err != nil {
			return err
		}
		if t.Kind() == reflect.Pointer {
			found[id] = ptr
		} else {
			found[id] = ptr.Elem()
		}
	}
	return it.Err()
}

// Exists reports whether the entity, or the entity a [domain.Key] points
// to, is stored.
func (ds *Datastore) Exists(ctx context.Context, entity any) (bool, error) {
	key, err := ds.mapper.Key(entity)
	if err != nil {
		return false, err
	}
	if key.ID == nil {
		return false, fmt.Errorf("%w: %s", domain.ErrNoID, key)
	}

	var mc *mapper.MappedClass
	filter := bson.D{{Key: mapper.IDKey, Value: key.ID}}
	if key.Type != nil {
		if mc, err = ds.mapper.EntityClass(key.Type); err != nil {
			return false, err
		}
		if filter, err = ds.idFilter(mc, key.ID); err != nil {
			return false, err
		}
		if key.Collection == "" {
			key.Collection = mc.Collection
		}
	}

	var n int64
	err = ds.inst.Run(ctx, "exists", key.Collection, func(ctx context.Context) error {
		ds.log.Debug("exists", "collection", key.Collection, "_id", key.ID)
		c, err := ds.collection(key.Collection, mc, nil).CountDocuments(ctx, filter)
		n = c
		return err
	})
	return n > 0, err
}

// Count returns the number of stored entities of the type of v, or the
// number of documents matched by v when it is a [*query.Query].
func (ds *Datastore) Count(ctx context.Context, v any) (int64, error) {
	if q, ok := v.(*query.Query); ok {
		return q.Count(ctx)
	}
	return ds.Find(v).Count(ctx)
}

// keyClass returns the class of key, falling back to the class of v when the
// key holds no type.
func (ds *Datastore) keyClass(key domain.Key, v any) (*mapper.MappedClass, error) {
	if key.Type != nil {
		return ds.mapper.EntityClass(key.Type)
	}
	if key.Collection != "" {
		for _, mc := range ds.mapper.Classes() {
			if mc.IsEntity() && mc.Collection == key.Collection {
				return mc, nil
			}
		}
	}
	if v == nil {
		return nil, fmt.Errorf("%w: no entity is stored in collection %q", domain.ErrNotMapped, key.Collection)
	}
	return ds.mapper.EntityClass(v)
}

// byKeys returns a query over collection for lookups by stored identifiers,
// which are not checked against the declared identifier type.
func (ds *Datastore) byKeys(mc *mapper.MappedClass, collection string) *query.Query {
	if collection == "" {
		collection = mc.Collection
	}
	return ds.FindIn(collection, mc.Type).DisableValidation()
}

// canonicalID renders a stored identifier so that equal identifiers of the
// same collection give equal strings.
func canonicalID(collection string, id any) (string, error) {
	b, err := bson.MarshalExtJSON(bson.D{{Key: mapper.IDKey, Value: id}}, true, false)
	if err != nil {
		return "", err
	}
	return collection + "/" + string(b), nil
}

func sliceTarget(target any) (reflect.Value, error) {
	if target == nil {
		return reflect.Value{}, domain.ErrTargetNil
	}
	tv := reflect.ValueOf(target)
	if tv.Kind() != reflect.Pointer {
		return reflect.Value{}, domain.ErrNonPointer
	}
	if tv.IsNil() {
		return reflect.Value{}, domain.ErrTargetNil
	}
	if tv.Elem().Kind() != reflect.Slice {
		return reflect.Value{}, &domain.IllegalArgumentError{Argument: target, Reason: "target must point to a slice"}
	}
	return tv.Elem(), nil
}
