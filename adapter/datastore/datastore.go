// Package datastore combines the mapper, the codec, the query and update
// builders and the index helper into the entity-level API of GEDM.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/codec"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/decoder"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/idgenerator"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/index"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/query"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/update"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/instrument"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/logger"
)

// ErrNilDatabase is returned by [NewDatastore] when no database is given.
var ErrNilDatabase = errors.New("database is nil")

// Datastore stores and loads mapped entities. It is safe for concurrent use
// as long as the underlying database is.
type Datastore struct {
	db           domain.Database
	mapper       *mapper.Mapper
	codec        *codec.Codec
	indexes      *index.Helper
	decoder      domain.Decoder
	idGenerator  domain.IDGenerator
	writeConcern *writeconcern.WriteConcern
	log          logger.Logger
	inst         instrument.Instrument
}

// NewDatastore returns a datastore over db.
func NewDatastore(db domain.Database, opts ...Option) (*Datastore, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	ds := &Datastore{
		db:  db,
		log: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(ds)
	}
	if ds.mapper == nil {
		ds.mapper = mapper.NewMapper(mapper.WithLogger(ds.log))
	}
	if ds.decoder == nil {
		ds.decoder = decoder.NewDecoder()
	}
	if ds.idGenerator == nil {
		ds.idGenerator = idgenerator.NewIDGenerator()
	}
	ds.codec = codec.NewCodec(ds.mapper,
		codec.WithDecoder(ds.decoder),
		codec.WithReferenceResolver(ds),
		codec.WithLogger(ds.log),
	)
	ds.indexes = index.NewHelper(ds.mapper, index.WithLogger(ds.log))
	return ds, nil
}

// Database returns the database the datastore writes to.
func (ds *Datastore) Database() domain.Database {
	return ds.db
}

// Mapper returns the mapper describing the entity types.
func (ds *Datastore) Mapper() *mapper.Mapper {
	return ds.mapper
}

// Codec returns the codec converting entities to documents.
func (ds *Datastore) Codec() *codec.Codec {
	return ds.codec
}

// Map maps the types of values, failing on the first invalid type.
func (ds *Datastore) Map(values ...any) error {
	return ds.mapper.Map(values...)
}

// Key returns the key of entity.
func (ds *Datastore) Key(entity any) (domain.Key, error) {
	return ds.mapper.Key(entity)
}

// Collection returns the collection entities of the type of v are stored
// in, with the write concern of the type applied.
func (ds *Datastore) Collection(v any) (domain.Collection, error) {
	mc, err := ds.mapper.EntityClass(v)
	if err != nil {
		return nil, err
	}
	return ds.collection(mc.Collection, mc, nil), nil
}

// Find returns a query over the collection of the type of v.
func (ds *Datastore) Find(v any) *query.Query {
	mc, err := ds.mapper.EntityClass(v)
	if err != nil {
		return ds.failedQuery(err)
	}
	return ds.FindIn(mc.Collection, v)
}

// FindIn returns a query over collection, decoding documents into the type
// of v.
func (ds *Datastore) FindIn(collection string, v any) *query.Query {
	mc, err := ds.mapper.EntityClass(v)
	if err != nil {
		return ds.failedQuery(err)
	}
	src := func(opts ...*options.CollectionOptions) domain.Collection {
		return ds.db.Collection(collection, opts...)
	}
	return query.New(ds.codec, mc, collection, src,
		query.WithLogger(ds.log),
		query.WithTracer(ds.inst.Tracer),
		query.WithRecorder(ds.inst.Recorder),
	)
}

// failedQuery returns a query over no class whose every method fails with
// err.
func (ds *Datastore) failedQuery(err error) *query.Query {
	q := query.New(ds.codec, &mapper.MappedClass{}, "", nil)
	return q.Fail(err)
}

// CreateUpdateOperations returns an empty set of update operations over the
// type of v.
func (ds *Datastore) CreateUpdateOperations(v any) *update.Operations {
	mc, err := ds.mapper.EntityClass(v)
	if err != nil {
		return update.New(ds.codec, &mapper.MappedClass{}).Fail(err)
	}
	return update.New(ds.codec, mc)
}

// Resolve implements [domain.ReferenceResolver].
func (ds *Datastore) Resolve(ctx context.Context, key domain.Key, target any) error {
	return ds.GetByKey(ctx, key, target)
}

// collection returns the named collection with the write concern resolved
// from wc, the class and the datastore default, in that order.
func (ds *Datastore) collection(name string, mc *mapper.MappedClass, wc *writeconcern.WriteConcern) domain.Collection {
	if wc == nil && mc != nil && mc.Entity != nil {
		wc = mc.Entity.WriteConcern
	}
	if wc == nil {
		wc = ds.writeConcern
	}
	if wc == nil {
		return ds.db.Collection(name)
	}
	return ds.db.Collection(name, options.Collection().SetWriteConcern(wc))
}

// entity returns the class of the entity pointed by entity.
func (ds *Datastore) entity(entity any) (*mapper.MappedClass, error) {
	if entity == nil {
		return nil, domain.ErrTargetNil
	}
	if reflect.TypeOf(entity).Kind() != reflect.Pointer {
		return nil, fmt.Errorf("%w: entities are written through pointers", domain.ErrNonPointer)
	}
	_, mc, err := ds.mapper.Entity(entity)
	if err != nil {
		return nil, err
	}
	if !mc.IsEntity() {
		return nil, &domain.MappingError{Type: mc.Type, Reason: "type cannot be stored in its own collection"}
	}
	return mc, nil
}

// idFilter returns a filter matching the stored identifier id of class mc.
func (ds *Datastore) idFilter(mc *mapper.MappedClass, id any) (bson.D, error) {
	stored, err := ds.codec.EncodeValue(mc.ID, id)
	if err != nil {
		return nil, err
	}
	return bson.D{{Key: mapper.IDKey, Value: stored}}, nil
}

// versionFilter adds the version of a versioned class to filter. Entities
// that were never saved have no version to check.
func versionFilter(mc *mapper.MappedClass, filter bson.D, version int64) bson.D {
	if mc.Version == nil || version == 0 {
		return filter
	}
	return append(filter, bson.E{Key: mc.Version.StoredName, Value: version})
}

// conflict logs and returns the error reported for a stale versioned write.
func (ds *Datastore) conflict(mc *mapper.MappedClass, id any, version int64) error {
	ds.log.Warn("concurrent modification", "type", mc.Type.String(), "collection", mc.Collection,
		"_id", id, "version", version)
	return &domain.ConcurrentModificationError{Type: mc.Type, ID: id, Version: version}
}

// acknowledged drops the error returned for writes with an unacknowledged
// write concern, reporting whether the result can be trusted.
func acknowledged(err error) (bool, error) {
	if errors.Is(err, mongo.ErrUnacknowledgedWrite) {
		return false, nil
	}
	return err == nil, err
}

var _ domain.ReferenceResolver = (*Datastore)(nil)
