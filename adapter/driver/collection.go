package driver

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection implements [domain.Collection] over a driver collection.
// Cursors returned by Find outlive the operation timeout; their getMore
// calls use the context given to Next.
type Collection struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// Mongo returns the underlying driver collection.
func (c *Collection) Mongo() *mongo.Collection {
	return c.coll
}

// Name implements [domain.Collection].
func (c *Collection) Name() string {
	return c.coll.Name()
}

// Find implements [domain.Collection].
func (c *Collection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.coll.Find(ctx, filter, opts...)
}

// FindOne implements [domain.Collection].
func (c *Collection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.coll.FindOne(ctx, filter, opts...)
}

// CountDocuments implements [domain.Collection].
func (c *Collection) CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.coll.CountDocuments(ctx, filter, opts...)
}

// InsertOne implements [domain.Collection].
func (c *Collection) InsertOne(ctx context.Context, doc any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.coll.InsertOne(ctx, doc, opts...)
}

// InsertMany implements [domain.Collection].
func (c *Collection) InsertMany(ctx context.Context, docs []any, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.coll.InsertMany(ctx, docs, opts...)
}

// ReplaceOne implements [domain.Collection].
func (c *Collection) ReplaceOne(ctx context.Context, filter any, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.coll.ReplaceOne(ctx, filter, replacement, opts...)
}

// UpdateOne implements [domain.Collection].
func (c *Collection) UpdateOne(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

// UpdateMany implements [domain.Collection].
func (c *Collection) UpdateMany(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.coll.UpdateMany(ctx, filter, update, opts...)
}

// DeleteOne implements [domain.Collection].
func (c *Collection) DeleteOne(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.coll.DeleteOne(ctx, filter, opts...)
}

// DeleteMany implements [domain.Collection].
func (c *Collection) DeleteMany(ctx context.Context, filter any, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.coll.DeleteMany(ctx, filter, opts...)
}

// FindOneAndUpdate implements [domain.Collection].
func (c *Collection) FindOneAndUpdate(ctx context.Context, filter any, update any, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.coll.FindOneAndUpdate(ctx, filter, update, opts...)
}

// FindOneAndDelete implements [domain.Collection].
func (c *Collection) FindOneAndDelete(ctx context.Context, filter any, opts ...*options.FindOneAndDeleteOptions) *mongo.SingleResult {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.coll.FindOneAndDelete(ctx, filter, opts...)
}

// CreateIndexes implements [domain.Collection].
func (c *Collection) CreateIndexes(ctx context.Context, models []mongo.IndexModel) ([]string, error) {
	if len(models) == 0 {
		return nil, nil
	}
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.coll.Indexes().CreateMany(ctx, models)
}

// Drop implements [domain.Collection].
func (c *Collection) Drop(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()
	return c.coll.Drop(ctx)
}
