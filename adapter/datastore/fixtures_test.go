package datastore

import (
	"context"
	"errors"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/memdb"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/logger"
)

type Account struct {
	ID      primitive.ObjectID `gedm:",id"`
	Owner   string             `gedm:",index,unique"`
	Balance int
	Version int64 `gedm:",version"`
}

func (Account) EntityOptions() domain.EntityOptions {
	return domain.EntityOptions{Collection: "accounts"}
}

type Person struct {
	ID        string `gedm:",id"`
	FirstName string `gedm:"first_name"`
	Nick      *string
	Values    []int
}

type Author struct {
	ID   primitive.ObjectID `gedm:",id"`
	Name string
}

type Book struct {
	ID     primitive.ObjectID `gedm:",id"`
	Title  string
	Author *Author `gedm:",reference"`
}

type LogEntry struct {
	ID      primitive.ObjectID `gedm:",id"`
	Message string
}

func (LogEntry) EntityOptions() domain.EntityOptions {
	return domain.EntityOptions{Collection: "log", Capped: &domain.CappedAt{Count: 1}}
}

type Rating struct {
	ID    primitive.ObjectID `gedm:",id"`
	Stars int
}

func (Rating) EntityOptions() domain.EntityOptions {
	return domain.EntityOptions{
		Collection: "ratings",
		Validation: &domain.Validation{
			Validator: bson.D{{Key: "stars", Value: bson.D{{Key: "$gte", Value: 1}}}},
		},
	}
}

type Audit struct {
	ID   primitive.ObjectID `gedm:",id"`
	Note string
}

func (Audit) EntityOptions() domain.EntityOptions {
	return domain.EntityOptions{Collection: "audits", WriteConcern: writeconcern.Majority()}
}

type Hooked struct {
	ID     primitive.ObjectID `gedm:",id"`
	Name   string
	Stamp  string   `gedm:",notsaved"`
	Calls  []string `gedm:"-"`
	Loaded bool     `gedm:"-"`
}

func (h *Hooked) PrePersist(context.Context) error {
	h.Calls = append(h.Calls, "PrePersist")
	return nil
}

func (h *Hooked) PreSave(_ context.Context, doc bson.D) (bson.D, error) {
	h.Calls = append(h.Calls, "PreSave")
	return append(doc, bson.E{Key: "stamp", Value: "saved"}), nil
}

func (h *Hooked) PostPersist(context.Context, bson.D) error {
	h.Calls = append(h.Calls, "PostPersist")
	return nil
}

func (h *Hooked) PostLoad(context.Context, bson.D) error {
	h.Loaded = true
	return nil
}

var errHook = errors.New("hook failed")

type Fragile struct {
	ID      primitive.ObjectID `gedm:",id"`
	Name    string
	Version int64 `gedm:",version"`
	Fail    bool  `gedm:"-"`
}

func (f *Fragile) PostPersist(context.Context, bson.D) error {
	if f.Fail {
		return errHook
	}
	return nil
}

// spyDatabase records the write concern of every collection handle.
type spyDatabase struct {
	*memdb.Database
	concerns []*writeconcern.WriteConcern
}

func (d *spyDatabase) Collection(name string, opts ...*options.CollectionOptions) domain.Collection {
	d.concerns = append(d.concerns, options.MergeCollectionOptions(opts...).WriteConcern)
	return d.Database.Collection(name, opts...)
}

func (d *spyDatabase) last() *writeconcern.WriteConcern {
	if len(d.concerns) == 0 {
		return nil
	}
	return d.concerns[len(d.concerns)-1]
}

// filterSpy records the filters of every update sent to its collections.
type filterSpy struct {
	*memdb.Database
	filters []any
}

func (d *filterSpy) Collection(name string, opts ...*options.CollectionOptions) domain.Collection {
	return &filterSpyCollection{Collection: d.Database.Collection(name, opts...), spy: d}
}

func (d *filterSpy) last() bson.D {
	if len(d.filters) == 0 {
		return nil
	}
	f, _ := d.filters[len(d.filters)-1].(bson.D)
	return f
}

type filterSpyCollection struct {
	domain.Collection
	spy *filterSpy
}

func (c *filterSpyCollection) UpdateOne(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	c.spy.filters = append(c.spy.filters, filter)
	return c.Collection.UpdateOne(ctx, filter, update, opts...)
}

func (c *filterSpyCollection) UpdateMany(ctx context.Context, filter, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	c.spy.filters = append(c.spy.filters, filter)
	return c.Collection.UpdateMany(ctx, filter, update, opts...)
}

func (c *filterSpyCollection) FindOneAndUpdate(ctx context.Context, filter, update any, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult {
	c.spy.filters = append(c.spy.filters, filter)
	return c.Collection.FindOneAndUpdate(ctx, filter, update, opts...)
}

type loggerMock struct{ mock.Mock }

func (l *loggerMock) Debug(msg string, args ...any) { l.Called(msg, args) }
func (l *loggerMock) Info(msg string, args ...any)  { l.Called(msg, args) }
func (l *loggerMock) Warn(msg string, args ...any)  { l.Called(msg, args) }
func (l *loggerMock) Error(msg string, args ...any) { l.Called(msg, args) }
func (l *loggerMock) With(...any) logger.Logger     { return l }
