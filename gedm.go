// Package gedm maps Go structs to MongoDB documents.
//
// Types are described with `gedm` struct tags and, optionally, by
// implementing [domain.EntityDescriber]. A [Datastore] saves, loads, queries
// and updates them, using an optimistic version field to reject stale
// writes.
//
// The basic usage starts by calling [Connect] with a [config.Config], or
// [NewInMemory] for a datastore backed by an in-process database.
package gedm

import (
	"context"
	"fmt"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/datastore"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/driver"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/memdb"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/config"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/logger"
)

var (
	// ErrNotFound is returned when a lookup matches no document.
	ErrNotFound = domain.ErrNotFound
	// ErrTargetNil is returned when a nil value is given as a decoding
	// target.
	ErrTargetNil = domain.ErrTargetNil
	// ErrNonPointer is returned when a decoding target is not a pointer.
	ErrNonPointer = domain.ErrNonPointer
	// ErrNoID is returned when an operation needs the identifier of an
	// entity that has none.
	ErrNoID = domain.ErrNoID
	// ErrNotMapped is returned when a type cannot be mapped.
	ErrNotMapped = domain.ErrNotMapped
)

// ConcurrentModificationError is returned when a versioned entity was
// changed by someone else since it was loaded.
type ConcurrentModificationError = domain.ConcurrentModificationError

// ValidationError is returned when a query or update names a field or value
// incompatible with the mapped type.
type ValidationError = domain.ValidationError

// MappingError is returned when a type carries invalid mapping metadata.
type MappingError = domain.MappingError

// Key identifies a stored entity.
type Key = domain.Key

// Datastore is the entry point for every persistence operation.
type Datastore = datastore.Datastore

// Option configures a [Datastore].
type Option = datastore.Option

// DB is a [Datastore] over a live MongoDB deployment. Close releases its
// connection pool.
type DB struct {
	*datastore.Datastore
	client *driver.Client
	log    logger.Logger
}

// Connect opens a connection described by cfg and returns a datastore over
// its database. The mapper and logger are built from cfg; opts are applied
// after them and may replace either.
func Connect(ctx context.Context, cfg *config.Config, opts ...Option) (*DB, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	log, err := logger.NewZapLogger(logger.Config{
		Level:  logger.LogLevel(cfg.Log.Level),
		Format: logger.LogFormat(cfg.Log.Format),
	})
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	client, err := driver.Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	wc, _ := cfg.WriteConcernValue()

	mopts := []mapper.Option{
		mapper.WithLogger(log),
		mapper.WithStoreNulls(cfg.Mapper.StoreNulls),
		mapper.WithStoreEmpties(cfg.Mapper.StoreEmpties),
	}
	if cfg.Mapper.DiscriminatorKey != "" {
		mopts = append(mopts, mapper.WithDiscriminatorKey(cfg.Mapper.DiscriminatorKey))
	}
	base := []Option{
		datastore.WithLogger(log),
		datastore.WithWriteConcern(wc),
		datastore.WithMapper(mapper.NewMapper(mopts...)),
	}
	ds, err := datastore.NewDatastore(client.Database(), append(base, opts...)...)
	if err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	return &DB{Datastore: ds, client: client, log: log}, nil
}

// Client returns the underlying connection.
func (db *DB) Client() *driver.Client {
	return db.client
}

// Close disconnects from the deployment and flushes the logger.
func (db *DB) Close(ctx context.Context) error {
	err := db.client.Close(ctx)
	if zl, ok := db.log.(*logger.ZapLogger); ok {
		_ = zl.Sync()
	}
	return err
}

// NewInMemory returns a datastore over an empty in-process database called
// name. It supports the same operations as a datastore returned by
// [Connect] and is meant for tests and offline use.
func NewInMemory(name string, opts ...Option) (*Datastore, error) {
	return datastore.NewDatastore(memdb.New(name), opts...)
}

// NewDatastore returns a datastore over any [domain.Database].
func NewDatastore(db domain.Database, opts ...Option) (*Datastore, error) {
	return datastore.NewDatastore(db, opts...)
}
