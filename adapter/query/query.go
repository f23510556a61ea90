// Package query builds filters, sort orders and projections for a mapped
// class and runs them against its collection.
package query

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/codec"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/instrument"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/logger"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/structure"
)

// Source returns the collection a query runs against, applying opts to the
// returned handle.
type Source func(opts ...*options.CollectionOptions) domain.Collection

// Query is a filter over the documents of one collection, decoded into one
// mapped class. A query is not safe for concurrent use; use [Query.Clone] to
// derive queries from a common base.
//
// Builder methods record the first error found, which is returned by
// [Query.Err] and by every method that renders or runs the query.
type Query struct {
	codec      *codec.Codec
	mapper     *mapper.Mapper
	class      *mapper.MappedClass
	collection string
	source     Source

	root     *Container
	validate bool
	err      error

	sort       bson.D
	projection bson.D
	include    *bool
	limit      int64
	skip       int64
	batchSize  int32
	maxTime    time.Duration
	collation  *options.Collation
	readPref   *readpref.ReadPref
	comment    string
	hint       any

	log  logger.Logger
	inst instrument.Instrument
}

// New returns a query over the documents of collection, decoded into mc.
func New(c *codec.Codec, mc *mapper.MappedClass, collection string, src Source, opts ...Option) *Query {
	q := &Query{
		codec:      c,
		mapper:     c.Mapper(),
		class:      mc,
		collection: collection,
		source:     src,
		root:       And(),
		validate:   true,
		log:        logger.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Class returns the class results are decoded into.
func (q *Query) Class() *mapper.MappedClass {
	return q.class
}

// CollectionName returns the name of the queried collection.
func (q *Query) CollectionName() string {
	return q.collection
}

// Target returns the queried collection, with the read preference of the
// query applied.
func (q *Query) Target() domain.Collection {
	if q.readPref != nil {
		return q.source(options.Collection().SetReadPreference(q.readPref))
	}
	return q.source()
}

// Err returns the first error recorded by a builder method.
func (q *Query) Err() error {
	return q.err
}

func (q *Query) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

// Fail records err as the error of the query, unless one was already
// recorded.
func (q *Query) Fail(err error) *Query {
	q.fail(err)
	return q
}

// DisableValidation turns off path and operator validation for criteria
// added afterwards. Paths are still translated to stored names where they
// can be resolved.
func (q *Query) DisableValidation() *Query {
	q.validate = false
	return q
}

// EnableValidation turns path and operator validation back on.
func (q *Query) EnableValidation() *Query {
	q.validate = true
	return q
}

// Filter adds a criteria given as "field operator", such as "age >=" or
// "tags in". A condition without an operator is an equality.
func (q *Query) Filter(condition string, value any) *Query {
	parts := strings.Fields(condition)
	op := Equal
	switch len(parts) {
	case 1:
	case 2:
		var ok bool
		if op, ok = ParseCondition(parts[1]); !ok {
			q.fail(&domain.ValidationError{
				Type:     q.class.Type,
				Field:    parts[0],
				Operator: parts[1],
				Reason:   "unknown operator",
			})
			return q
		}
	default:
		q.fail(&domain.ValidationError{
			Type:   q.class.Type,
			Reason: fmt.Sprintf("invalid filter condition %q", condition),
		})
		return q
	}
	return q.add(q.criteria(parts[0], op, value, false))
}

// Field starts a criteria on field that is added to the query.
func (q *Query) Field(field string) *FieldEnd[*Query] {
	return &FieldEnd[*Query]{
		query: q,
		field: field,
		done:  func(c *FieldCriteria) *Query { return q.add(c) },
	}
}

// Criteria starts a detached criteria on field, to be combined with
// [Query.And], [Query.Or] or the package level [And] and [Or].
func (q *Query) Criteria(field string) *FieldEnd[*FieldCriteria] {
	return &FieldEnd[*FieldCriteria]{
		query: q,
		field: field,
		done:  func(c *FieldCriteria) *FieldCriteria { return c },
	}
}

// And adds a node matching documents matched by every criteria.
func (q *Query) And(criteria ...Criteria) *Query {
	return q.add(And(criteria...))
}

// Or adds a node matching documents matched by any criteria.
func (q *Query) Or(criteria ...Criteria) *Query {
	return q.add(Or(criteria...))
}

// Search adds a text search. An optional language overrides the language of
// the text index.
func (q *Query) Search(text string, language ...string) *Query {
	search := bson.D{{Key: "$search", Value: text}}
	if len(language) > 0 && language[0] != "" {
		search = append(search, bson.E{Key: "$language", Value: language[0]})
	}
	return q.add(rawCriteria{doc: bson.D{{Key: "$text", Value: search}}})
}

// Where adds a JavaScript predicate.
func (q *Query) Where(js string) *Query {
	return q.add(rawCriteria{doc: bson.D{{Key: "$where", Value: primitive.JavaScript(js)}}})
}

func (q *Query) add(c Criteria) *Query {
	if err := criteriaErr(c); err != nil {
		q.fail(err)
	}
	q.root.Add(c)
	return q
}

// criteria resolves field, validates value against op and encodes it.
func (q *Query) criteria(field string, op FilterOperator, value any, not bool) *FieldCriteria {
	c := &FieldCriteria{operator: op, not: not}

	target, err := q.mapper.ResolvePath(q.class, field, q.validate)
	if err != nil {
		c.err = err
		return c
	}
	c.field = target.Path

	if q.validate && target.Type != nil {
		if reasons, ok := Compatible(target, op, value); !ok {
			c.err = &domain.ValidationError{
				Type:     q.class.Type,
				Field:    field,
				Operator: string(op),
				Reason:   reasons,
			}
			return c
		}
	}

	c.value, c.err = q.encode(target.Field, op, value)
	return c
}

// Compatible checks value against the type a resolved path points to and,
// for lists and maps, against their element type. It returns the reasons
// of the failure when neither accepts value.
func Compatible(target mapper.PathTarget, op FilterOperator, value any) (string, bool) {
	if target.Type == nil {
		return "", true
	}
	types := []reflect.Type{target.Type}
	if t := target.Type; (isList(t) || t.Kind() == reflect.Map) && !mapper.IsLeafType(t) {
		types = append(types, mapper.Deref(t.Elem()))
	}

	var reasons []string
	for _, t := range types {
		ok, failures := IsCompatibleForOperator(target.Class, target.Field, t, op, value)
		if ok {
			return "", true
		}
		for _, f := range failures {
			reasons = append(reasons, f.Reason)
		}
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "value is not compatible with the field")
	}
	return strings.Join(reasons, "; "), false
}

func (q *Query) encode(mf *mapper.MappedField, op FilterOperator, value any) (any, error) {
	switch op {
	case Exists, Type, Near, NearSphere, GeoWithin, Intersects:
		return value, nil
	case Size:
		if n, ok := structure.AsInt64(value); ok {
			return n, nil
		}
		return value, nil
	case Mod:
		seq, _, err := structure.Seq(value)
		if err != nil {
			return nil, err
		}
		arr := bson.A{}
		for v := range seq {
			n, _ := structure.AsInt64(v)
			arr = append(arr, n)
		}
		return arr, nil
	case ElemMatch:
		if sub, ok := value.(*Query); ok {
			return sub.Render()
		}
	}
	return q.codec.EncodeValue(mf, value)
}

// Order sets the sort order from a comma separated list of fields. A field
// prefixed with "-" is sorted in descending order. "$natural" sorts by
// insertion order.
func (q *Query) Order(fields string) *Query {
	sort := bson.D{}
	for part := range strings.SplitSeq(fields, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		dir := int32(1)
		if strings.HasPrefix(part, "-") {
			dir, part = -1, strings.TrimSpace(part[1:])
		}
		if part == "$natural" {
			sort = append(sort, bson.E{Key: part, Value: dir})
			continue
		}
		target, err := q.mapper.ResolvePath(q.class, part, q.validate)
		if err != nil {
			q.fail(err)
			return q
		}
		sort = append(sort, bson.E{Key: target.Path, Value: dir})
	}
	q.sort = sort
	return q
}

// Project includes or excludes field from the returned documents. Included
// and excluded fields cannot be mixed, except for the id.
func (q *Query) Project(field string, include bool) *Query {
	target, err := q.mapper.ResolvePath(q.class, field, q.validate)
	if err != nil {
		q.fail(err)
		return q
	}
	if target.Path != mapper.IDKey {
		if q.include != nil && *q.include != include {
			q.fail(&domain.ValidationError{
				Type:   q.class.Type,
				Field:  field,
				Reason: "projections cannot mix included and excluded fields",
			})
			return q
		}
		q.include = &include
	}

	val := int32(0)
	if include {
		val = 1
	}
	for i, e := range q.projection {
		if e.Key == target.Path {
			q.projection[i].Value = val
			return q
		}
	}
	q.projection = append(q.projection, bson.E{Key: target.Path, Value: val})
	return q
}

// RetrievedFields calls [Query.Project] for each field.
func (q *Query) RetrievedFields(include bool, fields ...string) *Query {
	for _, f := range fields {
		q.Project(f, include)
	}
	return q
}

// Limit sets the maximum number of returned documents. Zero means no limit.
func (q *Query) Limit(n int64) *Query {
	q.limit = n
	return q
}

// Offset sets the number of documents skipped.
func (q *Query) Offset(n int64) *Query {
	q.skip = n
	return q
}

// BatchSize sets the number of documents fetched per round trip.
func (q *Query) BatchSize(n int32) *Query {
	q.batchSize = n
	return q
}

// MaxTime bounds the server-side execution time.
func (q *Query) MaxTime(d time.Duration) *Query {
	q.maxTime = d
	return q
}

// Collation sets the collation used to compare strings.
func (q *Query) Collation(c *options.Collation) *Query {
	q.collation = c
	return q
}

// ReadPreference sets the read preference for this query only.
func (q *Query) ReadPreference(rp *readpref.ReadPref) *Query {
	q.readPref = rp
	return q
}

// Comment attaches a comment to the query, visible in server logs.
func (q *Query) Comment(c string) *Query {
	q.comment = c
	return q
}

// Hint forces the use of an index, given by name or key document.
func (q *Query) Hint(h any) *Query {
	q.hint = h
	return q
}

// Clone returns a copy that can be changed without affecting q.
func (q *Query) Clone() *Query {
	cp := *q
	cp.root = q.root.clone()
	cp.sort = append(bson.D(nil), q.sort...)
	cp.projection = append(bson.D(nil), q.projection...)
	if q.include != nil {
		include := *q.include
		cp.include = &include
	}
	return &cp
}

// Render returns the filter document.
func (q *Query) Render() (bson.D, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.root.Render()
}

// SortDocument returns the sort document, or nil.
func (q *Query) SortDocument() bson.D {
	if len(q.sort) == 0 {
		return nil
	}
	return q.sort
}

// Projection returns the projection document, or nil.
func (q *Query) Projection() bson.D {
	if len(q.projection) == 0 {
		return nil
	}
	return q.projection
}

// FindOptions returns the options of a find command running the query.
func (q *Query) FindOptions() *options.FindOptions {
	fo := options.Find()
	if s := q.SortDocument(); s != nil {
		fo.SetSort(s)
	}
	if p := q.Projection(); p != nil {
		fo.SetProjection(p)
	}
	if q.limit > 0 {
		fo.SetLimit(q.limit)
	}
	if q.skip > 0 {
		fo.SetSkip(q.skip)
	}
	if q.batchSize > 0 {
		fo.SetBatchSize(q.batchSize)
	}
	if q.maxTime > 0 {
		fo.SetMaxTime(q.maxTime)
	}
	if q.collation != nil {
		fo.SetCollation(q.collation)
	}
	if q.comment != "" {
		fo.SetComment(q.comment)
	}
	if q.hint != nil {
		fo.SetHint(q.hint)
	}
	return fo
}

// FindOneOptions returns the options of a find command returning the first
// document matched by the query.
func (q *Query) FindOneOptions() *options.FindOneOptions {
	fo := options.FindOne()
	if s := q.SortDocument(); s != nil {
		fo.SetSort(s)
	}
	if p := q.Projection(); p != nil {
		fo.SetProjection(p)
	}
	if q.skip > 0 {
		fo.SetSkip(q.skip)
	}
	if q.maxTime > 0 {
		fo.SetMaxTime(q.maxTime)
	}
	if q.collation != nil {
		fo.SetCollation(q.collation)
	}
	if q.comment != "" {
		fo.SetComment(q.comment)
	}
	if q.hint != nil {
		fo.SetHint(q.hint)
	}
	return fo
}

// CountOptions returns the options of a count running the query.
func (q *Query) CountOptions() *options.CountOptions {
	co := options.Count()
	if q.limit > 0 {
		co.SetLimit(q.limit)
	}
	if q.skip > 0 {
		co.SetSkip(q.skip)
	}
	if q.maxTime > 0 {
		co.SetMaxTime(q.maxTime)
	}
	if q.collation != nil {
		co.SetCollation(q.collation)
	}
	if q.hint != nil {
		co.SetHint(q.hint)
	}
	return co
}

// String returns the filter as relaxed extended JSON.
func (q *Query) String() string {
	doc, err := q.Render()
	if err != nil {
		return "invalid query: " + err.Error()
	}
	b, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return fmt.Sprint(doc)
	}
	return string(b)
}
