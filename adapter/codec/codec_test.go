package codec

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

const pkg = "github.com/vinicius-lino-figueiredo/gedm/adapter/codec."

type resolverMock struct {
	mock.Mock
}

func (r *resolverMock) Resolve(ctx context.Context, key domain.Key, target any) error {
	return r.Called(ctx, key, target).Error(0)
}

type CodecTestSuite struct {
	suite.Suite
	m *mapper.Mapper
	c *Codec
}

func (s *CodecTestSuite) SetupTest() {
	s.m = mapper.NewMapper()
	s.c = NewCodec(s.m)
}

func (s *CodecTestSuite) book() (*Book, bson.D) {
	_, err := s.m.MappedClass(Circle{})
	s.Require().NoError(err)
	_, err = s.m.MappedClass(&Square{})
	s.Require().NoError(err)

	oid := primitive.NewObjectID()
	aid := primitive.NewObjectID()
	eid := primitive.NewObjectID()
	published := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	b := &Book{
		ID:        oid,
		Version:   2,
		Title:     "Go",
		Status:    "draft",
		Published: published,
		Tags:      []string{"a", "b"},
		Ratings:   map[string]int{"z": 1, "a": 2},
		Address:   Address{Street: "Main", City: "X"},
		Shapes:    []Shape{Circle{Radius: 1}, &Square{Side: 2}},
		Author:    &Author{ID: aid, Name: "Ann"},
		Editors:   []Author{{ID: eid}},
		Owner:     domain.Key{Collection: "people", ID: "p1"},
		Cache:     "c",
		Old:       "o",
	}
	doc := bson.D{
		{Key: "_id", Value: oid},
		{Key: "className", Value: pkg + "Book"},
		{Key: "version", Value: int64(2)},
		{Key: "title", Value: "Go"},
		{Key: "status", Value: "draft"},
		{Key: "published", Value: primitive.NewDateTimeFromTime(published)},
		{Key: "tags", Value: bson.A{"a", "b"}},
		{Key: "ratings", Value: bson.D{{Key: "a", Value: 2}, {Key: "z", Value: 1}}},
		{Key: "address", Value: bson.D{{Key: "street", Value: "Main"}, {Key: "city", Value: "X"}}},
		{Key: "shapes", Value: bson.A{
			bson.D{{Key: "className", Value: pkg + "Circle"}, {Key: "radius", Value: 1.0}},
			bson.D{{Key: "className", Value: pkg + "Square"}, {Key: "side", Value: 2.0}},
		}},
		{Key: "author", Value: bson.D{{Key: "$ref", Value: "Author"}, {Key: "$id", Value: aid}}},
		{Key: "editors", Value: bson.A{eid}},
		{Key: "owner", Value: bson.D{{Key: "$ref", Value: "people"}, {Key: "$id", Value: "p1"}}},
		{Key: "old", Value: "o"},
	}
	return b, doc
}

func (s *CodecTestSuite) TestEncode() {
	b, expected := s.book()
	doc, err := s.c.Encode(s.T().Context(), b)
	s.Require().NoError(err)
	s.Equal(expected, doc)

	doc, err = s.c.Encode(s.T().Context(), *b)
	s.Require().NoError(err)
	s.Equal(expected, doc)
}

func (s *CodecTestSuite) TestEncodeWithoutDiscriminatorOrID() {
	doc, err := s.c.Encode(s.T().Context(), &Plain{Name: "x"})
	s.NoError(err)
	s.Equal(bson.D{{Key: "name", Value: "x"}}, doc)
}

func (s *CodecTestSuite) TestStoreNullsAndEmpties() {
	c := NewCodec(mapper.NewMapper(mapper.WithStoreNulls(true), mapper.WithStoreEmpties(true)))
	doc, err := c.Encode(s.T().Context(), &Book{Tags: []string{}, Ratings: map[string]int{}})
	s.Require().NoError(err)

	values := doc.Map()
	s.Contains(values, "pages")
	s.Nil(values["pages"])
	s.Equal(bson.A{}, values["tags"])
	s.Equal(bson.D{}, values["ratings"])
	s.Nil(values["author"])
}

func (s *CodecTestSuite) TestEncodeUnsavedReference() {
	_, err := s.c.Encode(s.T().Context(), &Book{Author: &Author{Name: "Ann"}})
	s.ErrorIs(err, domain.ErrNoID)

	_, err = s.c.Encode(s.T().Context(), &Book{Owner: domain.Key{Collection: "people"}})
	s.ErrorIs(err, domain.ErrNoID)

	doc, err := s.c.Encode(s.T().Context(), &Book{})
	s.NoError(err)
	s.NotContains(doc.Map(), "owner")
}

func (s *CodecTestSuite) TestDecode() {
	b, doc := s.book()
	var got Book
	s.Require().NoError(s.c.Decode(s.T().Context(), doc, &got))

	s.Equal(b.ID, got.ID)
	s.Equal(b.Version, got.Version)
	s.Equal(b.Title, got.Title)
	s.Equal(b.Status, got.Status)
	s.Equal(b.Published, got.Published)
	s.Nil(got.Pages)
	s.Equal(b.Tags, got.Tags)
	s.Equal(b.Ratings, got.Ratings)
	s.Equal(b.Address, got.Address)
	s.Equal(b.Shapes, got.Shapes)
	s.Equal(&Author{ID: b.Author.ID}, got.Author)
	s.Equal(b.Editors, got.Editors)
	s.Equal(b.Owner, got.Owner)
	s.Empty(got.Cache)
	s.Equal("o", got.Old)
}

func (s *CodecTestSuite) TestDecodeResetsTarget() {
	got := Plain{ID: "x", Name: "old"}
	s.NoError(s.c.Decode(s.T().Context(), bson.M{"_id": "y"}, &got))
	s.Equal(Plain{ID: "y"}, got)
}

func (s *CodecTestSuite) TestDecodeRaw() {
	b, doc := s.book()
	raw, err := bson.Marshal(doc)
	s.Require().NoError(err)

	var got Book
	s.Require().NoError(s.c.Decode(s.T().Context(), bson.Raw(raw), &got))
	s.Equal(b.Ratings, got.Ratings)
	s.Equal(b.Published, got.Published)
	s.Equal(b.Shapes, got.Shapes)
}

func (s *CodecTestSuite) TestAlsoLoad() {
	var got Book
	s.NoError(s.c.Decode(s.T().Context(), bson.D{{Key: "legacy", Value: "L"}}, &got))
	s.Equal("L", got.Old)
}

func (s *CodecTestSuite) TestDecodeErrors() {
	s.ErrorIs(s.c.Decode(s.T().Context(), bson.D{}, nil), domain.ErrTargetNil)
	s.ErrorIs(s.c.Decode(s.T().Context(), bson.D{}, Plain{}), domain.ErrNonPointer)

	var p Plain
	s.ErrorAs(s.c.Decode(s.T().Context(), 1, &p), new(domain.DecodeError))

	var b Book
	err := s.c.Decode(s.T().Context(), bson.D{{Key: "title", Value: bson.A{1}}}, &b)
	var de domain.DecodeError
	s.Require().ErrorAs(err, &de)
	s.Equal("title", de.Field)

	err = s.c.Decode(s.T().Context(), bson.D{{Key: "address", Value: bson.D{{Key: "city", Value: 1.5}}}}, &b)
	s.ErrorContains(err, "address.city")
}

func (s *CodecTestSuite) TestPolymorphicTarget() {
	_, err := s.m.MappedClass(Circle{})
	s.Require().NoError(err)

	var shape Shape
	s.NoError(s.c.Decode(s.T().Context(), bson.D{{Key: "radius", Value: 2.0}}, &shape))
	s.Equal(Circle{Radius: 2}, shape)

	_, err = s.m.MappedClass(Square{})
	s.Require().NoError(err)

	err = s.c.Decode(s.T().Context(), bson.D{{Key: "radius", Value: 2.0}}, &shape)
	var me *domain.MappingError
	s.ErrorAs(err, &me)

	s.NoError(s.c.Decode(s.T().Context(), bson.D{
		{Key: "className", Value: pkg + "Square"},
		{Key: "side", Value: 3.0},
	}, &shape))
	s.Equal(&Square{Side: 3}, shape)

	err = s.c.Decode(s.T().Context(), bson.D{{Key: "className", Value: "nope"}}, &shape)
	s.ErrorAs(err, &me)
}

func (s *CodecTestSuite) TestUntypedField() {
	var b Book
	doc := bson.D{{Key: "extra", Value: bson.D{{Key: "a", Value: int32(1)}}}}
	s.NoError(s.c.Decode(s.T().Context(), doc, &b))
	s.Equal(bson.D{{Key: "a", Value: int32(1)}}, b.Extra)

	doc = bson.D{{Key: "extra", Value: bson.A{"x"}}}
	s.NoError(s.c.Decode(s.T().Context(), doc, &b))
	s.Equal([]any{"x"}, b.Extra)

	b = Book{Extra: Circle{Radius: 1}}
	enc, err := s.c.Encode(s.T().Context(), &b)
	s.NoError(err)
	s.Equal(bson.D{{Key: "className", Value: pkg + "Circle"}, {Key: "radius", Value: 1.0}}, enc.Map()["extra"])
}

func (s *CodecTestSuite) TestRegexp() {
	b := &Book{Pattern: regexp.MustCompile("^a")}
	doc, err := s.c.Encode(s.T().Context(), b)
	s.Require().NoError(err)
	s.Equal(primitive.Regex{Pattern: "^a"}, doc.Map()["pattern"])

	var got Book
	doc = bson.D{{Key: "pattern", Value: primitive.Regex{Pattern: "^a", Options: "i"}}}
	s.Require().NoError(s.c.Decode(s.T().Context(), doc, &got))
	s.True(got.Pattern.MatchString("ABC"))
}

func (s *CodecTestSuite) TestResolver() {
	r := new(resolverMock)
	c := NewCodec(s.m, WithReferenceResolver(r))
	aid := primitive.NewObjectID()

	r.On("Resolve", mock.Anything, domain.Key{
		Collection: "Author",
		Type:       reflect.TypeFor[Author](),
		ID:         aid,
	}, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(2).(*Author).ID = aid
		args.Get(2).(*Author).Name = "Ann"
	}).Return(nil)

	var got Book
	doc := bson.D{{Key: "author", Value: bson.D{{Key: "$ref", Value: "Author"}, {Key: "$id", Value: aid}}}}
	s.Require().NoError(c.Decode(s.T().Context(), doc, &got))
	s.Equal(&Author{ID: aid, Name: "Ann"}, got.Author)
	r.AssertExpectations(s.T())
}

func (s *CodecTestSuite) TestResolverErrors() {
	r := new(resolverMock)
	c := NewCodec(s.m, WithReferenceResolver(r))
	aid := primitive.NewObjectID()
	doc := bson.D{{Key: "author", Value: bson.D{{Key: "$ref", Value: "Author"}, {Key: "$id", Value: aid}}}}

	r.On("Resolve", mock.Anything, mock.Anything, mock.Anything).Return(domain.ErrNotFound).Once()
	var got Book
	s.NoError(c.Decode(s.T().Context(), doc, &got))
	s.Equal(&Author{ID: aid}, got.Author)

	boom := errors.New("boom")
	r.On("Resolve", mock.Anything, mock.Anything, mock.Anything).Return(boom).Once()
	s.ErrorIs(c.Decode(s.T().Context(), doc, &got), boom)
}

type nodeStore struct {
	c    *Codec
	docs map[string]bson.D
	hits int
}

func (n *nodeStore) Resolve(ctx context.Context, key domain.Key, target any) error {
	n.hits++
	doc, ok := n.docs[key.ID.(string)]
	if !ok {
		return domain.ErrNotFound
	}
	return n.c.Decode(ctx, doc, target)
}

func (s *CodecTestSuite) TestReferenceCycle() {
	store := &nodeStore{docs: map[string]bson.D{
		"a": {{Key: "_id", Value: "a"}, {Key: "name", Value: "A"}, {Key: "parent", Value: bson.D{{Key: "$ref", Value: "nodes"}, {Key: "$id", Value: "b"}}}},
		"b": {{Key: "_id", Value: "b"}, {Key: "name", Value: "B"}, {Key: "parent", Value: bson.D{{Key: "$ref", Value: "nodes"}, {Key: "$id", Value: "a"}}}},
	}}
	store.c = NewCodec(s.m, WithReferenceResolver(store))

	var got Node
	s.Require().NoError(store.c.Decode(s.T().Context(), store.docs["a"], &got))
	s.Equal("B", got.Parent.Name)
	s.Equal("A", got.Parent.Parent.Name)
	s.Equal("b", got.Parent.Parent.Parent.ID)
	s.Empty(got.Parent.Parent.Parent.Name)
	s.Equal(2, store.hits)
}

func (s *CodecTestSuite) TestLifecycle() {
	rec := &recordingInterceptor{}
	s.m.AddInterceptor(rec)

	h := &Hooked{ID: "1", Name: "n"}
	doc, err := s.c.Encode(s.T().Context(), h)
	s.Require().NoError(err)
	s.Equal(bson.D{
		{Key: "_id", Value: "1"},
		{Key: "name", Value: "n"},
		{Key: "stamp", Value: "stamped"},
		{Key: "saved", Value: true},
	}, doc)
	s.Require().Len(rec.seen, 1)
	s.Equal(doc, rec.seen[0])

	s.NoError(s.c.PostPersist(s.T().Context(), h, doc))
	s.Equal([]string{"PrePersist", "PreSave", "PostPersist"}, h.calls)

	var got Hooked
	s.NoError(s.c.Decode(s.T().Context(), bson.D{{Key: "_id", Value: "1"}}, &got))
	s.Equal("loaded", got.Stamp)
	s.Equal([]string{"PreLoad", "PostLoad"}, got.calls)
	s.Require().Len(rec.seen, 2)
	s.Equal(bson.D{{Key: "_id", Value: "1"}, {Key: "stamp", Value: "loaded"}}, rec.seen[1])
}

func (s *CodecTestSuite) TestHookErrors() {
	boom := errors.New("boom")
	s.m.AddInterceptor(failingInterceptor{err: boom})

	_, err := s.c.Encode(s.T().Context(), &Plain{ID: "1"})
	s.ErrorIs(err, boom)

	var p Plain
	s.ErrorIs(s.c.Decode(s.T().Context(), bson.D{}, &p), boom)
}

type failingInterceptor struct {
	domain.NopInterceptor
	err error
}

func (f failingInterceptor) PrePersist(context.Context, any) error { return f.err }

func (f failingInterceptor) PostLoad(context.Context, any, bson.D) error { return f.err }

func (s *CodecTestSuite) TestEncodeValue() {
	mc, err := s.m.EntityClass(Book{})
	s.Require().NoError(err)
	aid := primitive.NewObjectID()

	v, err := s.c.EncodeValue(mc.Field("author"), &Author{ID: aid})
	s.NoError(err)
	s.Equal(bson.D{{Key: "$ref", Value: "Author"}, {Key: "$id", Value: aid}}, v)

	v, err = s.c.EncodeValue(mc.Field("author"), aid)
	s.NoError(err)
	s.Equal(aid, v)

	v, err = s.c.EncodeValue(mc.Field("editors"), []Author{{ID: aid}})
	s.NoError(err)
	s.Equal(bson.A{aid}, v)

	v, err = s.c.EncodeValue(mc.Field("editors"), domain.Key{Collection: "Author", ID: aid})
	s.NoError(err)
	s.Equal(aid, v)

	v, err = s.c.EncodeValue(mc.Field("status"), status("x"))
	s.NoError(err)
	s.Equal("x", v)

	v, err = s.c.EncodeValue(mc.Field("address"), Address{City: "c"})
	s.NoError(err)
	s.Equal(bson.D{{Key: "street", Value: ""}, {Key: "city", Value: "c"}}, v)

	v, err = s.c.EncodeValue(mc.Field("shapes"), Circle{Radius: 1})
	s.NoError(err)
	s.Equal(bson.D{{Key: "className", Value: pkg + "Circle"}, {Key: "radius", Value: 1.0}}, v)

	v, err = s.c.EncodeValue(mc.Field("tags"), []string{})
	s.NoError(err)
	s.Equal(bson.A{}, v)

	v, err = s.c.EncodeValue(nil, nil)
	s.NoError(err)
	s.Nil(v)
}

func TestCodecTestSuite(t *testing.T) {
	suite.Run(t, new(CodecTestSuite))
}
