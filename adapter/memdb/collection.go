package memdb

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/structure"
)

// Collection implements [domain.Collection].
type Collection struct {
	db   *Database
	name string
	wc   *writeconcern.WriteConcern
}

// Name implements [domain.Collection].
func (c *Collection) Name() string {
	return c.name
}

// WriteConcern returns the write concern the handle was created with. The
// in-memory database acknowledges every write, so it is only reported.
func (c *Collection) WriteConcern() *writeconcern.WriteConcern {
	return c.wc
}

// Find implements [domain.Collection].
func (c *Collection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := options.MergeFindOptions(opts...)

	if err := c.db.mu.RLock(ctx); err != nil {
		return nil, err
	}
	defer c.db.mu.RUnlock()

	docs, err := c.find(c.db.collections[c.name], filter, o.Sort, deref(o.Skip), deref(o.Limit))
	if err != nil {
		return nil, err
	}
	if docs, err = c.project(docs, o.Projection); err != nil {
		return nil, err
	}
	return cursor(docs)
}

// FindOne implements [domain.Collection].
func (c *Collection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult {
	if err := ctx.Err(); err != nil {
		return errResult(err)
	}
	o := options.MergeFindOneOptions(opts...)

	if err := c.db.mu.RLock(ctx); err != nil {
		return errResult(err)
	}
	defer c.db.mu.RUnlock()

	docs, err := c.find(c.db.collections[c.name], filter, o.Sort, deref(o.Skip), 1)
	if err != nil {
		return errResult(err)
	}
	return c.single(docs, o.Projection)
}

// CountDocuments implements [domain.Collection].
func (c *Collection) CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	o := options.MergeCountOptions(opts...)

	if err := c.db.mu.RLock(ctx); err != nil {
		return 0, err
	}
	defer c.db.mu.RUnlock()

	docs, err := c.find(c.db.collections[c.name], filter, nil, deref(o.Skip), deref(o.Limit))
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// InsertOne implements [domain.Collection]. A missing _id is generated and
// becomes the first field of the stored document.
func (c *Collection) InsertOne(ctx context.Context, doc any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := options.MergeInsertOneOptions(opts...)

	d, err := c.prepare(doc)
	if err != nil {
		return nil, err
	}

	if err := c.db.mu.Lock(ctx); err != nil {
		return nil, err
	}
	defer c.db.mu.Unlock()

	s, err := c.db.storeFor(c.name, true)
	if err != nil {
		return nil, err
	}
	if err := s.insert(d, deref(o.BypassDocumentValidation)); err != nil {
		return nil, s.writeError(0, err)
	}
	return &mongo.InsertOneResult{InsertedID: data.ToBSON(d.ID())}, nil
}

// InsertMany implements [domain.Collection]. Ordered inserts stop at the
// first failure; unordered inserts report every failure at the end.
func (c *Collection) InsertMany(ctx context.Context, docs []any, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, mongo.ErrEmptySlice
	}
	o := options.MergeInsertManyOptions(opts...)
	ordered := o.Ordered == nil || *o.Ordered

	prepared := make([]domain.Document, len(docs))
	for n, doc := range docs {
		d, err := c.prepare(doc)
		if err != nil {
			return nil, err
		}
		prepared[n] = d
	}

	if err := c.db.mu.Lock(ctx); err != nil {
		return nil, err
	}
	defer c.db.mu.Unlock()

	s, err := c.db.storeFor(c.name, true)
	if err != nil {
		return nil, err
	}

	res := &mongo.InsertManyResult{}
	var failed []mongo.BulkWriteError
	for n, d := range prepared {
		if err := s.insert(d, deref(o.BypassDocumentValidation)); err != nil {
			var we mongo.WriteException
			if !errors.As(s.writeError(n, err), &we) {
				return res, err
			}
			failed = append(failed, mongo.BulkWriteError{
				WriteError: we.WriteErrors[0],
				Request:    mongo.NewInsertOneModel().SetDocument(d),
			})
			if ordered {
				break
			}
			continue
		}
		res.InsertedIDs = append(res.InsertedIDs, data.ToBSON(d.ID()))
	}
	if len(failed) > 0 {
		return res, mongo.BulkWriteException{WriteErrors: failed}
	}
	return res, nil
}

// ReplaceOne implements [domain.Collection].
func (c *Collection) ReplaceOne(ctx context.Context, filter any, replacement any, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := options.MergeReplaceOptions(opts...)
	repl, err := c.updateDoc(replacement, false)
	if err != nil {
		return nil, err
	}
	return c.update(ctx, filter, repl, false, deref(o.Upsert), deref(o.BypassDocumentValidation))
}

// UpdateOne implements [domain.Collection].
func (c *Collection) UpdateOne(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return c.updateOps(ctx, filter, update, false, opts)
}

// UpdateMany implements [domain.Collection].
func (c *Collection) UpdateMany(ctx context.Context, filter any, update any, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	return c.updateOps(ctx, filter, update, true, opts)
}

func (c *Collection) updateOps(ctx context.Context, filter, update any, multi bool, opts []*options.UpdateOptions) (*mongo.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := options.MergeUpdateOptions(opts...)
	if o.ArrayFilters != nil {
		return nil, fmt.Errorf("%w: arrayFilters", domain.ErrUnsupported)
	}
	upd, err := c.updateDoc(update, true)
	if err != nil {
		return nil, err
	}
	return c.update(ctx, filter, upd, multi, deref(o.Upsert), deref(o.BypassDocumentValidation))
}

func (c *Collection) update(ctx context.Context, filter any, upd domain.Document, multi, upsert, bypass bool) (*mongo.UpdateResult, error) {
	if err := c.db.mu.Lock(ctx); err != nil {
		return nil, err
	}
	defer c.db.mu.Unlock()

	s := c.db.collections[c.name]
	var limit int64
	if !multi {
		limit = 1
	}
	matches, err := c.find(s, filter, nil, 0, limit)
	if err != nil {
		return nil, err
	}

	res := &mongo.UpdateResult{MatchedCount: int64(len(matches))}
	for _, old := range matches {
		newDoc, err := c.db.modifier.Modify(old, upd, false)
		if err != nil {
			return res, s.writeError(0, err)
		}
		if sameDoc(old, newDoc) {
			continue
		}
		if err := s.replace(old, newDoc, bypass); err != nil {
			return res, s.writeError(0, err)
		}
		res.ModifiedCount++
	}

	if len(matches) == 0 && upsert {
		if s, err = c.db.storeFor(c.name, true); err != nil {
			return nil, err
		}
		doc, err := c.upsert(s, filter, upd, bypass)
		if err != nil {
			return res, err
		}
		res.UpsertedCount = 1
		res.UpsertedID = data.ToBSON(doc.ID())
	}
	return res, nil
}

// DeleteOne implements [domain.Collection].
func (c *Collection) DeleteOne(ctx context.Context, filter any, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	return c.delete(ctx, filter, 1)
}

// DeleteMany implements [domain.Collection].
func (c *Collection) DeleteMany(ctx context.Context, filter any, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	return c.delete(ctx, filter, 0)
}

func (c *Collection) delete(ctx context.Context, filter any, limit int64) (*mongo.DeleteResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.db.mu.Lock(ctx); err != nil {
		return nil, err
	}
	defer c.db.mu.Unlock()

	s := c.db.collections[c.name]
	matches, err := c.find(s, filter, nil, 0, limit)
	if err != nil {
		return nil, err
	}
	res := &mongo.DeleteResult{}
	for _, d := range matches {
		if err := s.remove(d); err != nil {
			return res, err
		}
		res.DeletedCount++
	}
	return res, nil
}

// FindOneAndUpdate implements [domain.Collection]. The document is returned
// as it was before the update unless options.After is requested.
func (c *Collection) FindOneAndUpdate(ctx context.Context, filter any, update any, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult {
	if err := ctx.Err(); err != nil {
		return errResult(err)
	}
	o := options.MergeFindOneAndUpdateOptions(opts...)
	if o.ArrayFilters != nil {
		return errResult(fmt.Errorf("%w: arrayFilters", domain.ErrUnsupported))
	}
	upd, err := c.updateDoc(update, true)
	if err != nil {
		return errResult(err)
	}
	after := o.ReturnDocument != nil && *o.ReturnDocument == options.After
	bypass := deref(o.BypassDocumentValidation)

	if err := c.db.mu.Lock(ctx); err != nil {
		return errResult(err)
	}
	defer c.db.mu.Unlock()

	s := c.db.collections[c.name]
	matches, err := c.find(s, filter, o.Sort, 0, 1)
	if err != nil {
		return errResult(err)
	}

	if len(matches) == 0 {
		if !deref(o.Upsert) {
			return errResult(mongo.ErrNoDocuments)
		}
		if s, err = c.db.storeFor(c.name, true); err != nil {
			return errResult(err)
		}
		doc, err := c.upsert(s, filter, upd, bypass)
		if err != nil {
			return errResult(err)
		}
		if !after {
			return errResult(mongo.ErrNoDocuments)
		}
		return c.single([]domain.Document{doc}, o.Projection)
	}

	old := matches[0]
	newDoc, err := c.db.modifier.Modify(old, upd, false)
	if err != nil {
		return errResult(s.writeError(0, err))
	}
	if !sameDoc(old, newDoc) {
		if err := s.replace(old, newDoc, bypass); err != nil {
			return errResult(s.writeError(0, err))
		}
	}
	if after {
		return c.single([]domain.Document{newDoc}, o.Projection)
	}
	return c.single([]domain.Document{old}, o.Projection)
}

// FindOneAndDelete implements [domain.Collection].
func (c *Collection) FindOneAndDelete(ctx context.Context, filter any, opts ...*options.FindOneAndDeleteOptions) *mongo.SingleResult {
	if err := ctx.Err(); err != nil {
		return errResult(err)
	}
	o := options.MergeFindOneAndDeleteOptions(opts...)

	if err := c.db.mu.Lock(ctx); err != nil {
		return errResult(err)
	}
	defer c.db.mu.Unlock()

	s := c.db.collections[c.name]
	matches, err := c.find(s, filter, o.Sort, 0, 1)
	if err != nil {
		return errResult(err)
	}
	if len(matches) == 0 {
		return errResult(mongo.ErrNoDocuments)
	}
	if err := s.remove(matches[0]); err != nil {
		return errResult(err)
	}
	return c.single(matches, o.Projection)
}

// CreateIndexes implements [domain.Collection]. Requesting an index that
// already exists with the same name and options is a no-op; reusing a name
// or a key pattern with different options fails.
func (c *Collection) CreateIndexes(ctx context.Context, models []mongo.IndexModel) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.db.mu.Lock(ctx); err != nil {
		return nil, err
	}
	defer c.db.mu.Unlock()

	s, err := c.db.storeFor(c.name, true)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(models))
	var build []*index
	for _, model := range models {
		i, err := c.db.newIndex(model)
		if err != nil {
			return nil, err
		}
		exists, err := existingIndex(slices.Concat(s.indexes, build), i)
		if err != nil {
			return nil, err
		}
		names = append(names, i.name)
		if !exists {
			build = append(build, i)
		}
	}

	if err := s.addIndexes(build...); err != nil {
		return nil, err
	}
	for _, i := range build {
		c.db.log.Debug("index created", "ns", s.ns, "index", i.name, "unique", i.unique)
	}
	return names, nil
}

func existingIndex(indexes []*index, i *index) (bool, error) {
	for _, e := range indexes {
		switch {
		case e.name == i.name && e.sameSpec(i):
			return true, nil
		case e.name == i.name:
			return false, commandError(CodeIndexKeySpecsConflict, "IndexKeySpecsConflict", fmt.Errorf(
				"An existing index has the same name as the requested index. Requested index: %v, existing index: %v",
				i.spec(), e.spec(),
			))
		case e.sameKeys(i):
			return false, commandError(CodeIndexOptionsConflict, "IndexOptionsConflict", fmt.Errorf(
				"Index already exists with a different name: %s", e.name,
			))
		}
	}
	return false, nil
}

// Drop implements [domain.Collection]. Dropping a missing collection
// succeeds.
func (c *Collection) Drop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.db.mu.Lock(ctx); err != nil {
		return err
	}
	defer c.db.mu.Unlock()
	delete(c.db.collections, c.name)
	return nil
}

// find returns the stored documents matching filter, sorted and windowed by
// skip and limit. A nil store has no documents.
func (c *Collection) find(s *store, filter any, sort any, skip, limit int64) ([]domain.Document, error) {
	match, err := c.db.compile(filter)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}

	var res []domain.Document
	for _, d := range s.docs {
		ok, err := match(d)
		if err != nil {
			return nil, filterError(err)
		}
		if !ok {
			continue
		}
		res = append(res, d)
		if sort == nil && limit > 0 && skip == 0 && int64(len(res)) == limit {
			break
		}
	}

	if err := c.db.sortDocs(res, sort); err != nil {
		return nil, err
	}
	return window(res, skip, limit), nil
}

func window(docs []domain.Document, skip, limit int64) []domain.Document {
	if skip > 0 {
		if skip >= int64(len(docs)) {
			return nil
		}
		docs = docs[skip:]
	}
	if limit < 0 {
		limit = -limit
	}
	if limit > 0 && limit < int64(len(docs)) {
		docs = docs[:limit]
	}
	return docs
}

func (c *Collection) project(docs []domain.Document, projection any) ([]domain.Document, error) {
	if projection == nil {
		return docs, nil
	}
	p, err := c.db.docFac(projection)
	if err != nil {
		return nil, err
	}
	res, err := c.db.projector.Project(docs, p)
	if err != nil {
		return nil, filterError(err)
	}
	return res, nil
}

func (c *Collection) single(docs []domain.Document, projection any) *mongo.SingleResult {
	if len(docs) == 0 {
		return errResult(mongo.ErrNoDocuments)
	}
	docs, err := c.project(docs[:1], projection)
	if err != nil {
		return errResult(err)
	}
	return mongo.NewSingleResultFromDocument(docs[0], nil, nil)
}

// prepare normalises a document about to be inserted, generating its _id.
func (c *Collection) prepare(doc any) (domain.Document, error) {
	d, err := c.db.docFac(doc)
	if err != nil {
		return nil, err
	}
	if !d.Has(data.IDKey) {
		id, err := c.db.idGen.GenerateID(domain.IDKindObjectID)
		if err != nil {
			return nil, err
		}
		prepend(d, data.IDKey, id)
	}
	if _, ok := d.ID().([]any); ok {
		return nil, writeException(0, CodeBadValue, "can't use an array for _id")
	}
	return d, nil
}

func prepend(d domain.Document, key string, value any) {
	if p, ok := d.(interface{ Prepend(string, any) }); ok {
		p.Prepend(key, value)
		return
	}
	d.Set(key, value)
}

// updateDoc normalises an update document. operators tells whether it must
// hold only update operators or only plain fields.
func (c *Collection) updateDoc(update any, operators bool) (domain.Document, error) {
	switch update.(type) {
	case bson.A, []any, mongo.Pipeline, []bson.D:
		return nil, fmt.Errorf("%w: aggregation pipeline updates", domain.ErrUnsupported)
	}
	d, err := c.db.docFac(update)
	if err != nil {
		return nil, err
	}
	if operators && d.Len() == 0 {
		return nil, ErrEmptyUpdate
	}
	for k := range d.Keys() {
		dollar := strings.HasPrefix(k, "$")
		if operators && !dollar {
			return nil, ErrUpdateOperators
		}
		if !operators && dollar {
			return nil, ErrReplacementOperators
		}
	}
	return d, nil
}

// upsert inserts the document built from the equality fields of filter and
// the update.
func (c *Collection) upsert(s *store, filter any, upd domain.Document, bypass bool) (domain.Document, error) {
	base, err := c.db.docFac(nil)
	if err != nil {
		return nil, err
	}
	if f, err := c.db.docFac(filter); err == nil {
		if err := c.equalities(base, f); err != nil {
			return nil, err
		}
	}

	doc, err := c.db.modifier.Modify(base, upd, true)
	if err != nil {
		return nil, s.writeError(0, err)
	}
	if !doc.Has(data.IDKey) {
		id, err := c.db.idGen.GenerateID(domain.IDKindObjectID)
		if err != nil {
			return nil, err
		}
		prepend(doc, data.IDKey, id)
	}
	if err := s.insert(doc, bypass); err != nil {
		return nil, s.writeError(0, err)
	}
	return doc, nil
}

// equalities copies the fields filter compares for equality into base,
// including those nested in $and.
func (c *Collection) equalities(base, filter domain.Document) error {
	for k, v := range filter.Iter() {
		if k == "$and" {
			list, _ := v.([]any)
			for _, item := range list {
				if sub, ok := item.(domain.Document); ok {
					if err := c.equalities(base, sub); err != nil {
						return err
					}
				}
			}
			continue
		}
		if strings.HasPrefix(k, "$") {
			continue
		}

		if d, ok := v.(domain.Document); ok && operatorsOnly(d) {
			if !d.Has("$eq") {
				continue
			}
			v = d.Get("$eq")
		}
		if _, ok := v.(primitive.Regex); ok {
			continue
		}

		addr, err := c.db.fn.GetAddress(k)
		if err != nil {
			return err
		}
		fields, err := c.db.fn.EnsureField(base, addr...)
		if err != nil {
			return err
		}
		for _, f := range fields {
			f.Set(data.Clone(v))
		}
	}
	return nil
}

func operatorsOnly(d domain.Document) bool {
	if d.Len() == 0 {
		return false
	}
	for k := range d.Keys() {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

// sortDocs sorts docs in place by a sort specification. Array fields sort by
// their smallest element ascending and by their largest descending.
func (db *Database) sortDocs(docs []domain.Document, sort any) error {
	if sort == nil {
		return nil
	}
	spec, err := db.docFac(sort)
	if err != nil {
		return err
	}

	type key struct {
		addr []string
		dir  int
	}
	var keys []key
	for k, v := range spec.Iter() {
		dir, ok := structure.AsInteger(v)
		if !ok || (dir != 1 && dir != -1) {
			if d, isDoc := v.(domain.Document); isDoc && d.Has("$meta") {
				return fmt.Errorf("%w: $meta sort", domain.ErrUnsupported)
			}
			return commandError(CodeBadValue, "BadValue", fmt.Errorf("invalid sort direction for %q: %v", k, v))
		}
		if k == "$natural" {
			if dir < 0 {
				slices.Reverse(docs)
			}
			continue
		}
		addr, err := db.fn.GetAddress(k)
		if err != nil {
			return err
		}
		keys = append(keys, key{addr: addr, dir: dir})
	}
	if len(keys) == 0 {
		return nil
	}

	var sortErr error
	slices.SortStableFunc(docs, func(a, b domain.Document) int {
		for _, k := range keys {
			c, err := db.comp.Compare(db.sortValue(a, k.addr, k.dir), db.sortValue(b, k.addr, k.dir))
			if err != nil {
				sortErr = err
				return 0
			}
			if c != 0 {
				return c * k.dir
			}
		}
		return 0
	})
	return sortErr
}

func (db *Database) sortValue(doc domain.Document, addr []string, dir int) any {
	fields, _, err := db.fn.GetField(doc, addr...)
	if err != nil {
		return nil
	}
	var values []any
	for _, f := range fields {
		v, ok := f.Get()
		if !ok {
			continue
		}
		if arr, isArr := v.([]any); isArr {
			values = append(values, arr...)
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil
	}
	best := values[0]
	for _, v := range values[1:] {
		if c, err := db.comp.Compare(v, best); err == nil && c*dir < 0 {
			best = v
		}
	}
	return best
}

func cursor(docs []domain.Document) (*mongo.Cursor, error) {
	vals := make([]any, len(docs))
	for n, d := range docs {
		vals[n] = d
	}
	return mongo.NewCursorFromDocuments(vals, nil, nil)
}

func errResult(err error) *mongo.SingleResult {
	return mongo.NewSingleResultFromDocument(bson.D{}, err, nil)
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
