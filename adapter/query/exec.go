package query

import (
	"context"
	"errors"
	"reflect"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Get decodes the first matching document into target. It returns
// [domain.ErrNotFound] if no document matches.
func (q *Query) Get(ctx context.Context, target any) error {
	filter, err := q.Render()
	if err != nil {
		return err
	}
	return q.inst.Run(ctx, "find_one", q.collection, func(ctx context.Context) error {
		q.log.Debug("find one", "collection", q.collection, "filter", q.String())
		raw, err := q.Target().FindOne(ctx, filter, q.FindOneOptions()).Raw()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		return q.codec.Decode(ctx, raw, target)
	})
}

// List decodes every matching document into the slice pointed by target.
// Slice elements may be values, pointers or an interface implemented by the
// class.
func (q *Query) List(ctx context.Context, target any) error {
	if target == nil {
		return domain.ErrTargetNil
	}
	tv := reflect.ValueOf(target)
	if tv.Kind() != reflect.Pointer {
		return domain.ErrNonPointer
	}
	if tv.IsNil() {
		return domain.ErrTargetNil
	}
	sv := tv.Elem()
	if sv.Kind() != reflect.Slice {
		return &domain.IllegalArgumentError{Argument: target, Reason: "target must point to a slice"}
	}

	return q.iterate(ctx, "find", func(ctx context.Context, cur *mongo.Cursor) error {
		elemType := sv.Type().Elem()
		res := reflect.MakeSlice(sv.Type(), 0, cur.RemainingBatchLength())
		for cur.Next(ctx) {
			elem, err := q.decodeElem(ctx, cur.Current, elemType)
			if err != nil {
				return err
			}
			res = reflect.Append(res, elem)
		}
		if err := cur.Err(); err != nil {
			return err
		}
		sv.Set(res)
		return nil
	})
}

func (q *Query) decodeElem(ctx context.Context, raw bson.Raw, t reflect.Type) (reflect.Value, error) {
	if t.Kind() == reflect.Pointer {
		ptr := reflect.New(t.Elem())
		if err := q.codec.Decode(ctx, raw, ptr.Interface()); err != nil {
			return reflect.Value{}, err
		}
		return ptr, nil
	}
	ptr := reflect.New(t)
	if err := q.codec.Decode(ctx, raw, ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

// Keys returns the keys of every matching document.
func (q *Query) Keys(ctx context.Context) ([]domain.Key, error) {
	cp := q.Clone()
	cp.projection = bson.D{{Key: mapper.IDKey, Value: int32(1)}}

	var keys []domain.Key
	err := cp.iterate(ctx, "find_keys", func(ctx context.Context, cur *mongo.Cursor) error {
		for cur.Next(ctx) {
			raw, err := cur.Current.LookupErr(mapper.IDKey)
			if err != nil {
				return err
			}
			var id any
			if err := raw.Unmarshal(&id); err != nil {
				return err
			}
			keys = append(keys, domain.Key{Collection: q.collection, Type: q.class.Type, ID: id})
		}
		return cur.Err()
	})
	return keys, err
}

// Count returns the number of matching documents, honouring limit and
// offset.
func (q *Query) Count(ctx context.Context) (int64, error) {
	filter, err := q.Render()
	if err != nil {
		return 0, err
	}
	var n int64
	err = q.inst.Run(ctx, "count", q.collection, func(ctx context.Context) error {
		q.log.Debug("count", "collection", q.collection, "filter", q.String())
		c, err := q.Target().CountDocuments(ctx, filter, q.CountOptions())
		n = c
		return err
	})
	return n, err
}

// Iterate returns an iterator over the matching documents. The iterator must
// be closed.
func (q *Query) Iterate(ctx context.Context) (*Iterator, error) {
	filter, err := q.Render()
	if err != nil {
		return nil, err
	}
	var cur *mongo.Cursor
	err = q.inst.Run(ctx, "find", q.collection, func(ctx context.Context) error {
		c, err := q.Target().Find(ctx, filter, q.FindOptions())
		cur = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Iterator{cursor: cur, query: q}, nil
}

func (q *Query) iterate(ctx context.Context, op string, fn func(context.Context, *mongo.Cursor) error) error {
	filter, err := q.Render()
	if err != nil {
		return err
	}
	return q.inst.Run(ctx, op, q.collection, func(ctx context.Context) error {
		q.log.Debug("find", "collection", q.collection, "filter", q.String())
		cur, err := q.Target().Find(ctx, filter, q.FindOptions())
		if err != nil {
			return err
		}
		defer cur.Close(ctx)
		return fn(ctx, cur)
	})
}

// Iterator decodes the documents of a query one at a time.
type Iterator struct {
	cursor *mongo.Cursor
	query  *Query
}

// Next advances to the next document. It returns false at the end of the
// results or on error.
func (it *Iterator) Next(ctx context.Context) bool {
	return it.cursor.Next(ctx)
}

// Decode decodes the current document into target.
func (it *Iterator) Decode(ctx context.Context, target any) error {
	return it.query.codec.Decode(ctx, it.cursor.Current, target)
}

// Raw returns the current document.
func (it *Iterator) Raw() bson.Raw {
	return it.cursor.Current
}

// Err returns the error that stopped the iteration, if any.
func (it *Iterator) Err() error {
	return it.cursor.Err()
}

// Close releases the cursor.
func (it *Iterator) Close(ctx context.Context) error {
	return it.cursor.Close(ctx)
}
