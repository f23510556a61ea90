// Package memdb implements [domain.Database] and [domain.Collection] in
// memory. It keeps documents in insertion order, enforces unique indexes,
// validators and capped collection limits, and reports failures with the
// same error types and codes as the driver, so code written against a
// server can be tested without one.
package memdb

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/idgenerator"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/modifier"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/projector"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/ctxsync"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/logger"
)

// Database implements [domain.Database]. It is safe for concurrent use;
// every operation holds the database lock while it runs, so single document
// writes and find-and-modify calls are atomic. Waiting for the lock ends when
// the context of the operation is done.
type Database struct {
	name        string
	mu          *ctxsync.RWMutex
	collections map[string]*store

	docFac      domain.DocumentFactory
	comp        domain.Comparer
	fn          domain.FieldNavigator
	matcher     domain.Matcher
	modifier    domain.Modifier
	projector   domain.Projector
	idGen       domain.IDGenerator
	timeGetter  domain.TimeGetter
	log         logger.Logger
	bstComparer *bstComparer
}

// New returns an empty database with the given name.
func New(name string, opts ...Option) *Database {
	db := &Database{
		name:        name,
		mu:          ctxsync.NewRWMutex(),
		collections: make(map[string]*store),
		docFac:      data.NewDocument,
		comp:        comparer.NewComparer(),
	}
	for _, opt := range opts {
		opt(db)
	}
	if db.fn == nil {
		db.fn = fieldnavigator.NewFieldNavigator(db.docFac)
	}
	if db.matcher == nil {
		db.matcher = matcher.NewMatcher(
			matcher.WithDocumentFactory(db.docFac),
			matcher.WithComparer(db.comp),
			matcher.WithFieldNavigator(db.fn),
		)
	}
	if db.modifier == nil {
		mods := []modifier.Option{
			modifier.WithDocumentFactory(db.docFac),
			modifier.WithComparer(db.comp),
			modifier.WithFieldNavigator(db.fn),
			modifier.WithMatcher(db.matcher),
		}
		if db.timeGetter != nil {
			mods = append(mods, modifier.WithTimeGetter(db.timeGetter))
		}
		db.modifier = modifier.NewModifier(mods...)
	}
	if db.projector == nil {
		db.projector = projector.NewProjector(
			projector.WithDocumentFactory(db.docFac),
			projector.WithFieldNavigator(db.fn),
		)
	}
	if db.idGen == nil {
		var gens []idgenerator.Option
		if db.timeGetter != nil {
			gens = append(gens, idgenerator.WithTimeGetter(db.timeGetter))
		}
		db.idGen = idgenerator.NewIDGenerator(gens...)
	}
	if db.log == nil {
		db.log = logger.NewNop()
	}
	db.bstComparer = &bstComparer{comparer: db.comp}
	return db
}

// Name implements [domain.Database].
func (db *Database) Name() string {
	return db.name
}

// Collection implements [domain.Database]. The collection is created by the
// first write reaching it.
func (db *Database) Collection(name string, opts ...*options.CollectionOptions) domain.Collection {
	o := options.MergeCollectionOptions(opts...)
	return &Collection{db: db, name: name, wc: o.WriteConcern}
}

// CreateCollection implements [domain.Database].
func (db *Database) CreateCollection(ctx context.Context, name string, opts ...*options.CreateCollectionOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := db.mu.Lock(ctx); err != nil {
		return err
	}
	defer db.mu.Unlock()

	if _, ok := db.collections[name]; ok {
		return commandError(CodeNamespaceExists, "NamespaceExists",
			fmt.Errorf("Collection %s.%s already exists.", db.name, name))
	}
	s, err := db.newStore(name, options.MergeCreateCollectionOptions(opts...))
	if err != nil {
		return err
	}
	db.collections[name] = s
	db.log.Debug("collection created", "ns", s.ns, "capped", s.capped)
	return nil
}

// ListCollectionNames implements [domain.Database]. The filter is matched
// against {name, type, options} descriptions of every collection. Names are
// returned sorted.
func (db *Database) ListCollectionNames(ctx context.Context, filter any) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	match, err := db.compile(filter)
	if err != nil {
		return nil, err
	}

	if err := db.mu.RLock(ctx); err != nil {
		return nil, err
	}
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.collections))
	for name, s := range db.collections {
		info, err := db.docFac(bson.D{
			{Key: "name", Value: name},
			{Key: "type", Value: "collection"},
			{Key: "options", Value: s.options()},
		})
		if err != nil {
			return nil, err
		}
		ok, err := match(info)
		if err != nil {
			return nil, filterError(err)
		}
		if ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// ListIndexes returns the descriptions of the indexes of a collection, the
// _id index first. A missing collection has no indexes.
func (db *Database) ListIndexes(ctx context.Context, collection string) ([]bson.D, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := db.mu.RLock(ctx); err != nil {
		return nil, err
	}
	defer db.mu.RUnlock()

	s, ok := db.collections[collection]
	if !ok {
		return nil, nil
	}
	specs := make([]bson.D, len(s.indexes))
	for n, i := range s.indexes {
		specs[n] = i.spec()
	}
	return specs, nil
}

// Drop removes every collection.
func (db *Database) Drop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := db.mu.Lock(ctx); err != nil {
		return err
	}
	defer db.mu.Unlock()
	clear(db.collections)
	return nil
}

type filterFunc func(domain.Document) (bool, error)

// compile prepares filter for repeated matching. The default matcher parses
// the filter once; other matchers get it on every call.
func (db *Database) compile(filter any) (filterFunc, error) {
	if m, ok := db.matcher.(*matcher.Matcher); ok {
		q, err := m.Compile(filter)
		if err != nil {
			return nil, filterError(err)
		}
		return func(d domain.Document) (bool, error) { return m.MatchQuery(d, q) }, nil
	}
	return func(d domain.Document) (bool, error) { return db.matcher.Match(d, filter) }, nil
}

// storeFor returns the store of a collection, creating it when create is
// set. The caller must hold the write lock to create stores.
func (db *Database) storeFor(name string, create bool) (*store, error) {
	if s, ok := db.collections[name]; ok || !create {
		return s, nil
	}
	s, err := db.newStore(name, nil)
	if err != nil {
		return nil, err
	}
	db.collections[name] = s
	db.log.Debug("collection created", "ns", s.ns, "implicit", true)
	return s, nil
}

var errNotFound = errors.New("ns not found")

var (
	_ domain.Database   = (*Database)(nil)
	_ domain.Collection = (*Collection)(nil)
)
