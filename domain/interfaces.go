// Package domain contains domain-specific interfaces and option types for GEDM.
//
// This package defines the core interfaces that must be implemented by
// adapters and by mapped entities, as well as functional options for
// configuring datastore operations such as updates, deletes and
// find-and-modify calls.
package domain

import (
	"context"
	"iter"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is the subset of the driver collection API used by the
// datastore. It is satisfied by the driver adapter and by the in-memory
// database, so every layer above it can run against either one.
type Collection interface {
	// Name returns the collection name.
	Name() string
	// Find returns a cursor over every document matching filter.
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
	// FindOne returns the first document matching filter.
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult
	// CountDocuments counts documents matching filter.
	CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error)
	// InsertOne inserts a single document.
	InsertOne(ctx context.Context, doc any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	// InsertMany inserts several documents in order.
	InsertMany(ctx context.Context, docs []any, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
	// ReplaceOne replaces the first document matching filter.
	ReplaceOne(ctx context.Context, filter any, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
	// UpdateOne applies update to the first document matching filter.
	UpdateOne(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	// UpdateMany applies update to every document matching filter.
	UpdateMany(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	// DeleteOne removes the first document matching filter.
	DeleteOne(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	// DeleteMany removes every document matching filter.
	DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
	// FindOneAndUpdate atomically updates a document and returns it.
	FindOneAndUpdate(ctx context.Context, filter any, update any, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	// FindOneAndDelete atomically removes a document and returns it.
	FindOneAndDelete(ctx context.Context, filter any, opts ...*options.FindOneAndDeleteOptions) *mongo.SingleResult
	// CreateIndexes creates the given indexes, returning their names.
	// Creating an index that already exists is a no-op.
	CreateIndexes(ctx context.Context, models []mongo.IndexModel) ([]string, error)
	// Drop removes the collection and its indexes.
	Drop(ctx context.Context) error
}

// Database is the subset of the driver database API used by the datastore.
type Database interface {
	// Name returns the database name.
	Name() string
	// Collection returns a handle to the named collection. Options such as
	// the write concern are applied to the returned handle only.
	Collection(name string, opts ...*options.CollectionOptions) Collection
	// CreateCollection explicitly creates a collection, used for capped
	// collections and validators.
	CreateCollection(ctx context.Context, name string, opts ...*options.CreateCollectionOptions) error
	// ListCollectionNames lists the collections matching filter.
	ListCollectionNames(ctx context.Context, filter any) ([]string, error)
	// RunCommand runs a database command such as collMod or collStats.
	RunCommand(ctx context.Context, cmd any) *mongo.SingleResult
}

// EntityDescriber is implemented by types that need collection-level
// mapping options. Types that do not implement it are mapped with the
// default options.
type EntityDescriber interface {
	EntityOptions() EntityOptions
}

// EmbeddedDescriber marks a type as embedded-only. Embedded types are never
// stored in their own collection and cannot declare an identifier.
type EmbeddedDescriber interface {
	EmbeddedOptions() EmbeddedOptions
}

// IndexDescriber is implemented by types declaring class-level indexes,
// such as compound or text indexes.
type IndexDescriber interface {
	Indexes() []Index
}

// PrePersister is called on the entity before it is encoded for a write.
type PrePersister interface {
	PrePersist(ctx context.Context) error
}

// PreSaver is called on the entity after encoding. A non-nil returned
// document replaces the one about to be written.
type PreSaver interface {
	PreSave(ctx context.Context, doc bson.D) (bson.D, error)
}

// PostPersister is called on the entity after a successful write.
type PostPersister interface {
	PostPersist(ctx context.Context, doc bson.D) error
}

// PreLoader is called on a fresh entity before its fields are decoded. A
// non-nil returned document replaces the one being decoded.
type PreLoader interface {
	PreLoad(ctx context.Context, doc bson.D) (bson.D, error)
}

// PostLoader is called on the entity after its fields were decoded.
type PostLoader interface {
	PostLoad(ctx context.Context, doc bson.D) error
}

// Interceptor receives every lifecycle event of the mapper it is registered
// in, after the entity's own hook for the same phase. Embed
// [NopInterceptor] to implement only some of the phases.
type Interceptor interface {
	PrePersist(ctx context.Context, entity any) error
	PreSave(ctx context.Context, entity any, doc bson.D) (bson.D, error)
	PostPersist(ctx context.Context, entity any, doc bson.D) error
	PreLoad(ctx context.Context, entity any, doc bson.D) (bson.D, error)
	PostLoad(ctx context.Context, entity any, doc bson.D) error
}

// NopInterceptor implements [Interceptor] doing nothing.
type NopInterceptor struct{}

// PrePersist implements [Interceptor].
func (NopInterceptor) PrePersist(context.Context, any) error { return nil }

// PreSave implements [Interceptor].
func (NopInterceptor) PreSave(_ context.Context, _ any, doc bson.D) (bson.D, error) {
	return doc, nil
}

// PostPersist implements [Interceptor].
func (NopInterceptor) PostPersist(context.Context, any, bson.D) error { return nil }

// PreLoad implements [Interceptor].
func (NopInterceptor) PreLoad(_ context.Context, _ any, doc bson.D) (bson.D, error) {
	return doc, nil
}

// PostLoad implements [Interceptor].
func (NopInterceptor) PostLoad(context.Context, any, bson.D) error { return nil }

// ReferenceResolver loads the entity a reference field points to.
type ReferenceResolver interface {
	// Resolve decodes the document identified by key into target. It
	// returns [ErrNotFound] if no such document exists.
	Resolve(ctx context.Context, key Key, target any) error
}

// IDGenerator creates identifiers for entities that have none when first
// saved.
type IDGenerator interface {
	// GenerateID returns a new identifier assignable to a field of the
	// kind the mapper found for the identifier.
	GenerateID(kind IDKind) (any, error)
}

// TimeGetter provides the current time for $currentDate and timestamps.
type TimeGetter interface {
	GetTime() time.Time
}

// Decoder converts between different data representations.
type Decoder interface {
	// Decode converts source into the value pointed by target.
	Decode(source any, target any) error
}

// Comparer provides ordering and comparison operations for BSON values.
type Comparer interface {
	// Compare returns -1, 0, or 1 based on the comparison of two values.
	Compare(any, any) (int, error)
	// Comparable returns true if two values can be compared.
	Comparable(any, any) bool
}

// Getter represents a value that can be treated as undefined.
type Getter interface {
	// Get returns the value for the given address and a bool that indicates
	// whether the value counts as defined or not. If an address points to
	// an unset key in a document, or an out of bounds index in an array or
	// any address within a primitive value, it counts as undefined. If a
	// value is explicitly nil, it will not count as undefined.
	Get() (value any, defined bool)
}

// GetSetter represents a value in a [Document]. It is returned by
// [FieldNavigator] so things like identifying unset values and appending to
// nested arrays becomes easier. GetSetter is not concurrency safe.
type GetSetter interface {
	// GetSetter implements [Getter]. Undefined values can neither be set
	// nor unset.
	Getter
	// Set will set a new value for the address.
	Set(any)
	// Unset removes the given value from the parent item (object or array).
	Unset()
}

// FieldNavigator provides field access operations with dot notation support.
type FieldNavigator interface {
	// GetField extracts values from nested documents, following path parts.
	GetField(any, ...string) ([]GetSetter, bool, error)
	// EnsureField works like GetField, creating missing documents along the
	// path.
	EnsureField(any, ...string) ([]GetSetter, error)
	// GetAddress splits a dotted field name into path parts.
	GetAddress(field string) ([]string, error)
}

// Document is the representation of a stored record inside the in-memory
// database. It is read and written by one goroutine at a time and doesn't
// need to be concurrency safe.
type Document interface {
	// ID returns the document ID, if any.
	ID() any
	// D returns the subdocument for the given key, if any.
	D(string) Document
	// Get returns the value under the given key, or nil if unset.
	Get(string) any
	// Set sets the value under the given key.
	Set(string, any)
	// Unset unsets the value under the given key.
	Unset(string)
	// Iter returns an unordered sequence of key-value pairs in the
	// document.
	Iter() iter.Seq2[string, any]
	// Keys returns an unordered sequence of keys in the document.
	Keys() iter.Seq[string]
	// Has reports whether a value is set under the given key.
	Has(string) bool
	// Len returns the number of set fields in the document.
	Len() int
}

// Matcher evaluates whether documents match a filter.
type Matcher interface {
	// Match returns true if the value matches the filter.
	Match(value any, filter any) (bool, error)
}

// Modifier applies update documents to stored documents.
type Modifier interface {
	// Modify applies an update to a document and returns the result. The
	// original document is left untouched. insert reports whether the
	// document is being created by an upsert, enabling $setOnInsert.
	Modify(doc Document, update Document, insert bool) (Document, error)
}

// Projector applies a projection to documents.
type Projector interface {
	// Project returns projected copies of docs.
	Project(docs []Document, projection Document) ([]Document, error)
}

// DocumentFactory represents a function that constructs [Document] instances
// from structured data types. If nil is provided, returns an empty document.
type DocumentFactory = func(any) (Document, error)
