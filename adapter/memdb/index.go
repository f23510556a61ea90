package memdb

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/vinicius-lino-figueiredo/bst"
	"github.com/vinicius-lino-figueiredo/bst/adapter/avl"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/structure"
)

const idIndexName = "_id_"

// bstComparer orders index keys with the value comparer. Two entries under
// the same key hold the same document when their identifiers are equal.
type bstComparer struct {
	comparer domain.Comparer
}

// CompareKeys implements bst.Comparer.
func (bc *bstComparer) CompareKeys(a any, b any) (int, error) {
	return bc.comparer.Compare(a, b)
}

// CompareValues implements bst.Comparer.
func (bc *bstComparer) CompareValues(a domain.Document, b domain.Document) (bool, error) {
	c, err := bc.comparer.Compare(a.ID(), b.ID())
	if err != nil {
		return false, err
	}
	return c == 0, nil
}

type indexField struct {
	name string
	addr []string
	kind any
}

// index keeps the keys of a collection index. Only indexes over ascending
// and descending fields hold a tree; text, geo and hashed indexes are
// recorded so they can be listed and compared, but they constrain nothing.
type index struct {
	name    string
	fields  []indexField
	keys    domain.Document
	unique  bool
	sparse  bool
	partial domain.Document
	expire  *int32
	tree    bst.BST[any, domain.Document]
	db      *Database
}

func (db *Database) newIndex(model mongo.IndexModel) (*index, error) {
	keys, err := db.docFac(model.Keys)
	if err != nil {
		return nil, fmt.Errorf("index keys: %w", err)
	}
	if keys.Len() == 0 {
		return nil, commandError(CodeBadValue, "BadValue", errors.New("index keys cannot be empty"))
	}

	opts := model.Options
	if opts == nil {
		opts = options.Index()
	}

	i := &index{keys: keys, db: db, expire: opts.ExpireAfterSeconds}
	ordered := true
	for k, v := range keys.Iter() {
		addr, err := db.fn.GetAddress(k)
		if err != nil {
			return nil, err
		}
		i.fields = append(i.fields, indexField{name: k, addr: addr, kind: v})
		if !structure.IsNumber(v) || strings.HasPrefix(k, "$") {
			ordered = false
		}
	}

	i.name = indexName(keys)
	if opts.Name != nil {
		i.name = *opts.Name
	}
	i.unique = opts.Unique != nil && *opts.Unique
	i.sparse = opts.Sparse != nil && *opts.Sparse
	if opts.PartialFilterExpression != nil {
		if i.partial, err = db.docFac(opts.PartialFilterExpression); err != nil {
			return nil, fmt.Errorf("partialFilterExpression: %w", err)
		}
	}

	if ordered {
		i.tree = avl.NewBST(i.unique, 8, db.bstComparer)
	}
	return i, nil
}

// indexName builds the default name of an index the way the driver does,
// joining each field and its kind with underscores.
func indexName(keys domain.Document) string {
	parts := make([]string, 0, keys.Len()*2)
	for k, v := range keys.Iter() {
		parts = append(parts, k, fmt.Sprint(v))
	}
	return strings.Join(parts, "_")
}

// keysOf returns the keys doc must be stored under. A nil slice means the
// document is left out of the index.
func (i *index) keysOf(doc domain.Document) ([]any, error) {
	if i.partial != nil {
		ok, err := i.db.matcher.Match(doc, i.partial)
		if err != nil || !ok {
			return nil, err
		}
	}
	if len(i.fields) != 1 {
		return i.compoundKey(doc)
	}

	values, defined, err := i.values(doc, i.fields[0])
	if err != nil {
		return nil, err
	}
	if !defined && i.sparse {
		return nil, nil
	}

	var keys []any
	for _, v := range values {
		if arr, ok := v.([]any); ok {
			if len(arr) == 0 {
				keys = append(keys, nil)
			}
			keys = append(keys, arr...)
			continue
		}
		keys = append(keys, v)
	}

	compare := func(a, b any) int {
		c, _ := i.db.comp.Compare(a, b)
		return c
	}
	slices.SortFunc(keys, compare)
	return slices.CompactFunc(keys, func(a, b any) bool { return compare(a, b) == 0 }), nil
}

// compoundKey returns a single array key holding the first value found for
// every field. Missing fields count as null.
func (i *index) compoundKey(doc domain.Document) ([]any, error) {
	key := make([]any, len(i.fields))
	anyDefined := false
	for n, f := range i.fields {
		values, defined, err := i.values(doc, f)
		if err != nil {
			return nil, err
		}
		anyDefined = anyDefined || defined
		if defined {
			key[n] = values[0]
		}
	}
	if i.sparse && !anyDefined {
		return nil, nil
	}
	return []any{key}, nil
}

func (i *index) values(doc domain.Document, f indexField) ([]any, bool, error) {
	fields, _, err := i.db.fn.GetField(doc, f.addr...)
	if err != nil {
		return nil, false, err
	}
	values := make([]any, 0, len(fields))
	defined := false
	for _, gs := range fields {
		v, ok := gs.Get()
		if ok {
			defined = true
			values = append(values, v)
		}
	}
	if !defined {
		values = append(values, nil)
	}
	return values, defined, nil
}

// insert adds docs to the index. Keys added before a failure are removed
// again so the index is left as it was.
func (i *index) insert(docs ...domain.Document) error {
	if i.tree == nil {
		return nil
	}

	type kv struct {
		key any
		doc domain.Document
	}
	added := make([]kv, 0, len(docs))

	var err error
DocInsertion:
	for _, d := range docs {
		var keys []any
		if keys, err = i.keysOf(d); err != nil {
			break
		}
		for _, k := range keys {
			if err = i.tree.Insert(k, d); err != nil {
				if errors.As(err, new(bst.ErrUniqueViolated)) {
					err = &dupKeyError{index: i.name, key: i.dupKey(k)}
				}
				break DocInsertion
			}
			added = append(added, kv{key: k, doc: d})
		}
	}
	if err == nil {
		return nil
	}

	errs := []error{err}
	for _, v := range added {
		if e := i.tree.Delete(v.key, &v.doc); e != nil {
			errs = append(errs, e)
		}
	}
	return errors.Join(errs...)
}

func (i *index) dupKey(key any) bson.D {
	if len(i.fields) == 1 {
		return bson.D{{Key: i.fields[0].name, Value: data.ToBSON(key)}}
	}
	arr, _ := key.([]any)
	res := make(bson.D, len(i.fields))
	for n, f := range i.fields {
		res[n] = bson.E{Key: f.name, Value: data.ToBSON(arr[n])}
	}
	return res
}

func (i *index) remove(docs ...domain.Document) error {
	if i.tree == nil {
		return nil
	}
	var errs []error
	for _, d := range docs {
		keys, err := i.keysOf(d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, k := range keys {
			if err := i.tree.Delete(k, &d); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// update swaps oldDoc for newDoc, restoring oldDoc if newDoc is rejected.
func (i *index) update(oldDoc, newDoc domain.Document) error {
	if err := i.remove(oldDoc); err != nil {
		return err
	}
	if err := i.insert(newDoc); err != nil {
		_ = i.insert(oldDoc)
		return err
	}
	return nil
}

func (i *index) reset(docs ...domain.Document) error {
	if i.tree != nil {
		i.tree = avl.NewBST(i.unique, 8, i.db.bstComparer)
	}
	return i.insert(docs...)
}

// sameSpec reports whether i and o would be built from the same options.
func (i *index) sameSpec(o *index) bool {
	if i.unique != o.unique || i.sparse != o.sparse || !i.sameKeys(o) {
		return false
	}
	if (i.partial == nil) != (o.partial == nil) {
		return false
	}
	if i.partial != nil {
		if c, err := i.db.comp.Compare(i.partial, o.partial); err != nil || c != 0 {
			return false
		}
	}
	if (i.expire == nil) != (o.expire == nil) {
		return false
	}
	return i.expire == nil || *i.expire == *o.expire
}

func (i *index) sameKeys(o *index) bool {
	c, err := i.db.comp.Compare(i.keys, o.keys)
	return err == nil && c == 0 && slices.EqualFunc(i.fields, o.fields, func(a, b indexField) bool {
		return a.name == b.name
	})
}

// spec returns the index description listed by the server.
func (i *index) spec() bson.D {
	d := bson.D{
		{Key: "v", Value: int32(2)},
		{Key: "key", Value: data.ToBSON(i.keys)},
		{Key: "name", Value: i.name},
	}
	if i.unique {
		d = append(d, bson.E{Key: "unique", Value: true})
	}
	if i.sparse {
		d = append(d, bson.E{Key: "sparse", Value: true})
	}
	if i.partial != nil {
		d = append(d, bson.E{Key: "partialFilterExpression", Value: data.ToBSON(i.partial)})
	}
	if i.expire != nil {
		d = append(d, bson.E{Key: "expireAfterSeconds", Value: *i.expire})
	}
	return d
}

// modelFromSpec rebuilds the model an index spec was created from.
func modelFromSpec(spec domain.Document) mongo.IndexModel {
	opts := options.Index()
	if name, ok := spec.Get("name").(string); ok {
		opts.SetName(name)
	}
	if u, ok := spec.Get("unique").(bool); ok && u {
		opts.SetUnique(true)
	}
	if s, ok := spec.Get("sparse").(bool); ok && s {
		opts.SetSparse(true)
	}
	if p := spec.D("partialFilterExpression"); p != nil {
		opts.SetPartialFilterExpression(data.ToBSON(p))
	}
	if e, ok := structure.AsInt64(spec.Get("expireAfterSeconds")); ok && spec.Has("expireAfterSeconds") {
		opts.SetExpireAfterSeconds(int32(e))
	}
	return mongo.IndexModel{Keys: data.ToBSON(spec.D("key")), Options: opts}
}
