package datastore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/query"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/update"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Delete removes the stored entity, or the entity a [domain.Key] points to,
// and returns the number of removed documents.
//
// A versioned entity is only removed if the stored version matches its own.
// If the document is still stored with another version, Delete fails with a
// [domain.ConcurrentModificationError].
func (ds *Datastore) Delete(ctx context.Context, entity any, opts ...domain.DeleteOption) (int64, error) {
	do := deleteOptions(opts)
	if key, ok := entity.(domain.Key); ok {
		return ds.deleteKey(ctx, key, do)
	}

	_, mc, err := ds.mapper.Entity(entity)
	if err != nil {
		return 0, err
	}
	if !mc.IsEntity() {
		return 0, &domain.MappingError{Type: mc.Type, Reason: "type cannot be stored in its own collection"}
	}
	id, err := ds.mapper.ID(entity)
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, fmt.Errorf("%w: cannot delete %s", domain.ErrNoID, mc.Type)
	}
	version, err := ds.mapper.Version(entity)
	if err != nil {
		return 0, err
	}
	idf, err := ds.idFilter(mc, id)
	if err != nil {
		return 0, err
	}
	filter := versionFilter(mc, append(bson.D(nil), idf...), version)

	var n int64
	err = ds.inst.Run(ctx, "delete", mc.Collection, func(ctx context.Context) error {
		ds.log.Debug("delete", "collection", mc.Collection, "_id", id, "version", version)
		coll := ds.collection(mc.Collection, mc, do.WriteConcern)
		res, err := coll.DeleteOne(ctx, filter)
		ack, err := acknowledged(err)
		if err != nil || !ack {
			return err
		}
		n = res.DeletedCount
		if n > 0 || len(filter) == len(idf) {
			return nil
		}
		left, err := coll.CountDocuments(ctx, idf)
		if err != nil {
			return err
		}
		if left > 0 {
			return ds.conflict(mc, id, version)
		}
		return nil
	})
	return n, err
}

// DeleteByID removes the entity of the type of v with identifier id, without
// any version check.
func (ds *Datastore) DeleteByID(ctx context.Context, v any, id any, opts ...domain.DeleteOption) (int64, error) {
	mc, err := ds.mapper.EntityClass(v)
	if err != nil {
		return 0, err
	}
	return ds.deleteKey(ctx, domain.Key{Collection: mc.Collection, Type: mc.Type, ID: id}, deleteOptions(opts))
}

func (ds *Datastore) deleteKey(ctx context.Context, key domain.Key, do domain.DeleteOptions) (int64, error) {
	if key.ID == nil {
		return 0, fmt.Errorf("%w: %s", domain.ErrNoID, key)
	}
	mc, err := ds.keyClass(key, nil)
	if err != nil {
		return 0, err
	}
	if key.Collection == "" {
		key.Collection = mc.Collection
	}
	filter, err := ds.idFilter(mc, key.ID)
	if err != nil {
		return 0, err
	}

	var n int64
	err = ds.inst.Run(ctx, "delete", key.Collection, func(ctx context.Context) error {
		ds.log.Debug("delete", "collection", key.Collection, "_id", key.ID)
		res, err := ds.collection(key.Collection, mc, do.WriteConcern).DeleteOne(ctx, filter)
		if ack, err := acknowledged(err); err != nil || !ack {
			return err
		}
		n = res.DeletedCount
		return nil
	})
	return n, err
}

// DeleteQuery removes the documents matched by q and returns how many were
// removed. Every match is removed unless [domain.WithDeleteMulti] is false.
// Versions are not checked.
func (ds *Datastore) DeleteQuery(ctx context.Context, q *query.Query, opts ...domain.DeleteOption) (int64, error) {
	do := domain.DeleteOptions{Multi: true}
	for _, opt := range opts {
		opt(&do)
	}
	filter, err := q.Render()
	if err != nil {
		return 0, err
	}

	var n int64
	err = ds.inst.Run(ctx, "delete_query", q.CollectionName(), func(ctx context.Context) error {
		ds.log.Debug("delete query", "collection", q.CollectionName(), "filter", q.String(), "multi", do.Multi)
		coll := ds.collection(q.CollectionName(), q.Class(), do.WriteConcern)
		var res *mongo.DeleteResult
		var err error
		if do.Multi {
			res, err = coll.DeleteMany(ctx, filter)
		} else {
			res, err = coll.DeleteOne(ctx, filter)
		}
		if ack, err := acknowledged(err); err != nil || !ack {
			return err
		}
		n = res.DeletedCount
		return nil
	})
	return n, err
}

// Update applies ops to the documents matched by q. Every match is updated
// unless [domain.WithUpdateMulti] is false. Isolated operations add the
// $isolated flag to the filter.
func (ds *Datastore) Update(ctx context.Context, q *query.Query, ops *update.Operations, opts ...domain.UpdateOption) (*mongo.UpdateResult, error) {
	uo := domain.UpdateOptions{Multi: true}
	for _, opt := range opts {
		opt(&uo)
	}
	filter, err := q.Render()
	if err != nil {
		return nil, err
	}
	doc, err := ops.Render()
	if err != nil {
		return nil, err
	}
	if ops.IsIsolated() {
		filter = append(filter, bson.E{Key: "$isolated", Value: int32(1)})
	}

	var res *mongo.UpdateResult
	err = ds.inst.Run(ctx, "update", q.CollectionName(), func(ctx context.Context) error {
		ds.log.Debug("update", "collection", q.CollectionName(), "filter", q.String(),
			"multi", uo.Multi, "upsert", uo.Upsert)
		coll := ds.collection(q.CollectionName(), q.Class(), uo.WriteConcern)
		uopts := options.Update().SetUpsert(uo.Upsert)
		var err error
		if uo.Multi {
			res, err = coll.UpdateMany(ctx, filter, doc, uopts)
		} else {
			res, err = coll.UpdateOne(ctx, filter, doc, uopts)
		}
		_, err = acknowledged(err)
		return err
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = &mongo.UpdateResult{}
	}
	return res, nil
}

// UpdateEntity applies ops to the stored document of the entity pointed by
// entity. A versioned entity is only updated if the stored version matches
// its own, failing with a [domain.ConcurrentModificationError] otherwise;
// on success its version is advanced like the stored one.
func (ds *Datastore) UpdateEntity(ctx context.Context, entity any, ops *update.Operations, opts ...domain.UpdateOption) (*mongo.UpdateResult, error) {
	mc, err := ds.entity(entity)
	if err != nil {
		return nil, err
	}
	var uo domain.UpdateOptions
	for _, opt := range opts {
		opt(&uo)
	}
	id, err := ds.mapper.ID(entity)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, fmt.Errorf("%w: cannot update %s", domain.ErrNoID, mc.Type)
	}
	version, err := ds.mapper.Version(entity)
	if err != nil {
		return nil, err
	}
	filter, err := ds.idFilter(mc, id)
	if err != nil {
		return nil, err
	}
	filter = versionFilter(mc, filter, version)
	doc, err := ops.Render()
	if err != nil {
		return nil, err
	}
	if ops.IsIsolated() {
		filter = append(filter, bson.E{Key: "$isolated", Value: int32(1)})
	}

	res := &mongo.UpdateResult{}
	err = ds.inst.Run(ctx, "update_entity", mc.Collection, func(ctx context.Context) error {
		ds.log.Debug("update entity", "collection", mc.Collection, "_id", id, "version", version)
		r, err := ds.collection(mc.Collection, mc, uo.WriteConcern).
			UpdateOne(ctx, filter, doc, options.Update().SetUpsert(uo.Upsert))
		ack, err := acknowledged(err)
		if err != nil || !ack {
			return err
		}
		res = r
		if mc.Version != nil && version > 0 && r.MatchedCount == 0 && r.UpsertedCount == 0 {
			return ds.conflict(mc, id, version)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if mc.Version != nil && res.MatchedCount > 0 && !ops.Touches(mc.Version.StoredName) {
		if err := ds.mapper.SetVersion(entity, version+1); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// FindAndModify applies ops to the first document matched by q, honouring
// its sort order, and decodes the updated document into target. The
// document as it was before the update is decoded instead when
// [domain.WithReturnNew] is false. It returns [domain.ErrNotFound] if no
// document matches and none was upserted. Isolated operations add the
// $isolated flag to the filter.
func (ds *Datastore) FindAndModify(ctx context.Context, q *query.Query, ops *update.Operations, target any, opts ...domain.FindAndModifyOption) error {
	fo := domain.FindAndModifyOptions{ReturnNew: true}
	for _, opt := range opts {
		opt(&fo)
	}
	filter, err := q.Render()
	if err != nil {
		return err
	}
	doc, err := ops.Render()
	if err != nil {
		return err
	}
	if ops.IsIsolated() {
		filter = append(filter, bson.E{Key: "$isolated", Value: int32(1)})
	}

	fopts := options.FindOneAndUpdate().SetUpsert(fo.Upsert)
	if fo.ReturnNew {
		fopts.SetReturnDocument(options.After)
	} else {
		fopts.SetReturnDocument(options.Before)
	}
	if s := q.SortDocument(); s != nil {
		fopts.SetSort(s)
	}
	if p := q.Projection(); p != nil {
		fopts.SetProjection(p)
	}

	return ds.inst.Run(ctx, "find_and_modify", q.CollectionName(), func(ctx context.Context) error {
		ds.log.Debug("find and modify", "collection", q.CollectionName(), "filter", q.String())
		raw, err := ds.collection(q.CollectionName(), q.Class(), fo.WriteConcern).
			FindOneAndUpdate(ctx, filter, doc, fopts).Raw()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		return ds.codec.Decode(ctx, raw, target)
	})
}

// FindAndDelete removes the first document matched by q, honouring its sort
// order, and decodes it into target. It returns [domain.ErrNotFound] if no
// document matches.
func (ds *Datastore) FindAndDelete(ctx context.Context, q *query.Query, target any) error {
	filter, err := q.Render()
	if err != nil {
		return err
	}
	fopts := options.FindOneAndDelete()
	if s := q.SortDocument(); s != nil {
		fopts.SetSort(s)
	}
	if p := q.Projection(); p != nil {
		fopts.SetProjection(p)
	}

	return ds.inst.Run(ctx, "find_and_delete", q.CollectionName(), func(ctx context.Context) error {
		ds.log.Debug("find and delete", "collection", q.CollectionName(), "filter", q.String())
		raw, err := ds.collection(q.CollectionName(), q.Class(), nil).
			FindOneAndDelete(ctx, filter, fopts).Raw()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		return ds.codec.Decode(ctx, raw, target)
	})
}

func deleteOptions(opts []domain.DeleteOption) domain.DeleteOptions {
	var do domain.DeleteOptions
	for _, opt := range opts {
		opt(&do)
	}
	return do
}
