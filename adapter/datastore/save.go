package datastore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Save stores the entity pointed by entity in the collection of its type and
// returns its key. Entities without an identifier get a generated one and
// are inserted.
//
// Versioned entities holding a version are replaced only if the stored
// version is the same; otherwise Save fails with a
// [domain.ConcurrentModificationError] and leaves the entity unchanged. A
// successful save increments the version by one. Versioned entities without
// a version are inserted. A failing PostPersist hook is reported after the
// write, and the entity keeps the version it was stored with.
func (ds *Datastore) Save(ctx context.Context, entity any, opts ...domain.WriteOption) (domain.Key, error) {
	mc, err := ds.entity(entity)
	if err != nil {
		return domain.Key{}, err
	}
	return ds.save(ctx, mc.Collection, mc, entity, writeOptions(opts))
}

// SaveIn works like [Datastore.Save], storing the entity in collection.
func (ds *Datastore) SaveIn(ctx context.Context, collection string, entity any, opts ...domain.WriteOption) (domain.Key, error) {
	mc, err := ds.entity(entity)
	if err != nil {
		return domain.Key{}, err
	}
	return ds.save(ctx, collection, mc, entity, writeOptions(opts))
}

// SaveAll saves every entity in order, stopping at the first failure. It
// returns the keys of the entities saved.
func (ds *Datastore) SaveAll(ctx context.Context, entities []any, opts ...domain.WriteOption) ([]domain.Key, error) {
	keys := make([]domain.Key, 0, len(entities))
	for _, e := range entities {
		k, err := ds.Save(ctx, e, opts...)
		if err != nil {
			return keys, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Insert inserts the entity pointed by entity, failing if its identifier is
// already used. Versioned entities without a version are stored with
// version 1.
func (ds *Datastore) Insert(ctx context.Context, entity any, opts ...domain.WriteOption) (domain.Key, error) {
	mc, err := ds.entity(entity)
	if err != nil {
		return domain.Key{}, err
	}
	return ds.insert(ctx, mc.Collection, mc, entity, writeOptions(opts))
}

// InsertIn works like [Datastore.Insert], storing the entity in collection.
func (ds *Datastore) InsertIn(ctx context.Context, collection string, entity any, opts ...domain.WriteOption) (domain.Key, error) {
	mc, err := ds.entity(entity)
	if err != nil {
		return domain.Key{}, err
	}
	return ds.insert(ctx, collection, mc, entity, writeOptions(opts))
}

// Merge sets the stored fields of the entity pointed by entity on the
// document with the same identifier, leaving other stored fields untouched.
// Fields omitted by the codec, like nil pointers, are not changed. Merge
// fails with [domain.ErrNotFound] if no such document exists, and follows
// the versioning rules of [Datastore.Save].
func (ds *Datastore) Merge(ctx context.Context, entity any, opts ...domain.WriteOption) (domain.Key, error) {
	mc, err := ds.entity(entity)
	if err != nil {
		return domain.Key{}, err
	}
	wo := writeOptions(opts)
	id, err := ds.mapper.ID(entity)
	if err != nil {
		return domain.Key{}, err
	}
	if id == nil {
		return domain.Key{}, fmt.Errorf("%w: cannot merge %s", domain.ErrNoID, mc.Type)
	}
	filter, err := ds.idFilter(mc, id)
	if err != nil {
		return domain.Key{}, err
	}

	oldVersion, err := ds.bumpVersion(entity, mc)
	if err != nil {
		return domain.Key{}, err
	}
	filter = versionFilter(mc, filter, oldVersion)

	var doc bson.D
	err = ds.inst.Run(ctx, "merge", mc.Collection, func(ctx context.Context) (err error) {
		doc, err = ds.codec.Encode(ctx, entity)
		if err != nil {
			return err
		}
		set := make(bson.D, 0, len(doc))
		for _, e := range doc {
			if e.Key != mapper.IDKey {
				set = append(set, e)
			}
		}

		ds.log.Debug("merge", "collection", mc.Collection, "_id", id)
		res, err := ds.collection(mc.Collection, mc, wo.WriteConcern).
			UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: set}})
		ack, err := acknowledged(err)
		if err != nil {
			return err
		}
		if ack && res.MatchedCount == 0 {
			if mc.Version != nil && oldVersion > 0 {
				return ds.conflict(mc, id, oldVersion)
			}
			return fmt.Errorf("%w: %s with id %v", domain.ErrNotFound, mc.Type, id)
		}
		return nil
	})
	if err != nil {
		ds.restoreVersion(entity, mc, oldVersion)
		return domain.Key{}, err
	}
	if err := ds.codec.PostPersist(ctx, entity, doc); err != nil {
		return domain.Key{}, err
	}
	return domain.Key{Collection: mc.Collection, Type: mc.Type, ID: id}, nil
}

func (ds *Datastore) save(ctx context.Context, collection string, mc *mapper.MappedClass, entity any, wo domain.WriteOptions) (domain.Key, error) {
	id, err := ds.mapper.ID(entity)
	if err != nil {
		return domain.Key{}, err
	}
	oldVersion, err := ds.mapper.Version(entity)
	if err != nil {
		return domain.Key{}, err
	}
	if id == nil || (mc.Version != nil && oldVersion == 0) {
		return ds.insert(ctx, collection, mc, entity, wo)
	}

	filter, err := ds.idFilter(mc, id)
	if err != nil {
		return domain.Key{}, err
	}
	if _, err := ds.bumpVersion(entity, mc); err != nil {
		return domain.Key{}, err
	}
	filter = versionFilter(mc, filter, oldVersion)

	var doc bson.D
	err = ds.inst.Run(ctx, "save", collection, func(ctx context.Context) (err error) {
		doc, err = ds.codec.Encode(ctx, entity)
		if err != nil {
			return err
		}

		ds.log.Debug("save", "collection", collection, "_id", id, "version", oldVersion)
		opts := options.Replace().SetUpsert(mc.Version == nil)
		res, err := ds.collection(collection, mc, wo.WriteConcern).ReplaceOne(ctx, filter, doc, opts)
		ack, err := acknowledged(err)
		if err != nil {
			return err
		}
		if ack && mc.Version != nil && res.MatchedCount == 0 {
			return ds.conflict(mc, id, oldVersion)
		}
		return nil
	})
	if err != nil {
		ds.restoreVersion(entity, mc, oldVersion)
		return domain.Key{}, err
	}
	if err := ds.codec.PostPersist(ctx, entity, doc); err != nil {
		return domain.Key{}, err
	}
	return domain.Key{Collection: collection, Type: mc.Type, ID: id}, nil
}

func (ds *Datastore) insert(ctx context.Context, collection string, mc *mapper.MappedClass, entity any, wo domain.WriteOptions) (domain.Key, error) {
	id, err := ds.mapper.ID(entity)
	if err != nil {
		return domain.Key{}, err
	}
	generated := id == nil
	if generated {
		if id, err = ds.idGenerator.GenerateID(mc.IDKind()); err != nil {
			return domain.Key{}, fmt.Errorf("%w: %w", domain.ErrNoID, err)
		}
		if err := ds.mapper.SetID(entity, id); err != nil {
			return domain.Key{}, err
		}
		// the field may hold the id in another type
		if id, err = ds.mapper.ID(entity); err != nil {
			return domain.Key{}, err
		}
	}

	oldVersion, err := ds.mapper.Version(entity)
	if err != nil {
		return domain.Key{}, err
	}
	if mc.Version != nil && oldVersion == 0 {
		if err := ds.mapper.SetVersion(entity, 1); err != nil {
			return domain.Key{}, err
		}
	}

	var doc bson.D
	err = ds.inst.Run(ctx, "insert", collection, func(ctx context.Context) (err error) {
		doc, err = ds.codec.Encode(ctx, entity)
		if err != nil {
			return err
		}
		ds.log.Debug("insert", "collection", collection, "_id", id)
		_, err = ds.collection(collection, mc, wo.WriteConcern).InsertOne(ctx, doc)
		_, err = acknowledged(err)
		return err
	})
	if err != nil {
		ds.restoreVersion(entity, mc, oldVersion)
		if generated {
			_ = ds.mapper.SetID(entity, nil)
		}
		return domain.Key{}, err
	}
	// the document is stored: hook failures leave id and version in place
	if err := ds.codec.PostPersist(ctx, entity, doc); err != nil {
		return domain.Key{}, err
	}
	return domain.Key{Collection: collection, Type: mc.Type, ID: id}, nil
}

// bumpVersion increments the version of a versioned entity, returning the
// version it held.
func (ds *Datastore) bumpVersion(entity any, mc *mapper.MappedClass) (int64, error) {
	if mc.Version == nil {
		return 0, nil
	}
	v, err := ds.mapper.Version(entity)
	if err != nil {
		return 0, err
	}
	return v, ds.mapper.SetVersion(entity, v+1)
}

func (ds *Datastore) restoreVersion(entity any, mc *mapper.MappedClass, version int64) {
	if mc.Version != nil {
		_ = ds.mapper.SetVersion(entity, version)
	}
}

func writeOptions(opts []domain.WriteOption) domain.WriteOptions {
	var wo domain.WriteOptions
	for _, opt := range opts {
		opt(&wo)
	}
	return wo
}

// IsDuplicateKey reports whether err was caused by an identifier or unique
// index already in use.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
