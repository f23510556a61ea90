package matcher

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type M = bson.M

type A = bson.A

type fieldNavigatorMock struct{ mock.Mock }

// EnsureField implements [domain.FieldNavigator].
func (f *fieldNavigatorMock) EnsureField(obj any, addr ...string) ([]domain.GetSetter, error) {
	call := f.Called(obj, addr)
	return call.Get(0).([]domain.GetSetter), call.Error(1)
}

// GetAddress implements [domain.FieldNavigator].
func (f *fieldNavigatorMock) GetAddress(field string) ([]string, error) {
	call := f.Called(field)
	return call.Get(0).([]string), call.Error(1)
}

// GetField implements [domain.FieldNavigator].
func (f *fieldNavigatorMock) GetField(obj any, addr ...string) ([]domain.GetSetter, bool, error) {
	call := f.Called(obj, addr)
	return call.Get(0).([]domain.GetSetter), call.Bool(1), call.Error(2)
}

type MatcherTestSuite struct {
	suite.Suite
	mtchr *Matcher
}

func (s *MatcherTestSuite) SetupTest() {
	s.mtchr = NewMatcher().(*Matcher)
}

func (s *MatcherTestSuite) match(doc any, filter any) bool {
	ok, err := s.mtchr.Match(doc, filter)
	s.Require().NoError(err)
	return ok
}

func (s *MatcherTestSuite) TestEmptyFilterMatchesAll() {
	s.True(s.match(M{"a": 1}, nil))
	s.True(s.match(M{"a": 1}, M{}))
	s.True(s.match(M{}, bson.D{}))
}

func (s *MatcherTestSuite) TestSimpleFieldEquality() {
	s.False(s.match(M{"test": "yea"}, M{"test": "yeah"}))
	s.False(s.match(M{"test": "yeahh"}, M{"test": "yeah"}))
	s.True(s.match(M{"test": "yeah"}, M{"test": "yeah"}))
	s.True(s.match(M{"n": int64(3)}, M{"n": 3.0}))
	s.False(s.match(M{"n": "3"}, M{"n": 3}))
}

func (s *MatcherTestSuite) TestDotNotation() {
	doc := M{"test": M{"ooo": "yeah"}}
	s.False(s.match(doc, M{"test.ooo": "yea"}))
	s.False(s.match(doc, M{"test.oo": "yeah"}))
	s.False(s.match(doc, M{"tst.ooo": "yeah"}))
	s.True(s.match(doc, M{"test.ooo": "yeah"}))
}

func (s *MatcherTestSuite) TestNestedObjectsAreDeepEqual() {
	s.True(s.match(M{"a": M{"b": 5}}, M{"a": M{"b": 5}}))
	s.False(s.match(M{"a": M{"b": 5, "c": 3}}, M{"a": M{"b": 5}}))
	s.True(s.match(
		bson.D{{Key: "a", Value: bson.D{{Key: "x", Value: 1}, {Key: "y", Value: 2}}}},
		bson.D{{Key: "a", Value: bson.D{{Key: "x", Value: 1}, {Key: "y", Value: 2}}}},
	))
	s.False(s.match(
		bson.D{{Key: "a", Value: bson.D{{Key: "x", Value: 1}, {Key: "y", Value: 2}}}},
		bson.D{{Key: "a", Value: bson.D{{Key: "y", Value: 2}, {Key: "x", Value: 1}}}},
	))
}

func (s *MatcherTestSuite) TestArrays() {
	doc := M{"tags": A{"node", "embedded", "database"}}
	s.True(s.match(doc, M{"tags": "embedded"}))
	s.False(s.match(doc, M{"tags": "other"}))
	s.True(s.match(doc, M{"tags": A{"node", "embedded", "database"}}))
	s.False(s.match(doc, M{"tags": A{"embedded", "node", "database"}}))
	s.True(s.match(doc, M{"tags.1": "embedded"}))
	s.False(s.match(doc, M{"tags.0": "embedded"}))

	planets := M{"planets": A{M{"name": "Earth", "n": 3}, M{"name": "Mars", "n": 4}}}
	s.True(s.match(planets, M{"planets.name": "Mars"}))
	s.False(s.match(planets, M{"planets.name": "Venus"}))
	s.True(s.match(planets, M{"planets.n": M{"$gt": 3}}))
}

func (s *MatcherTestSuite) TestNull() {
	s.True(s.match(M{"a": nil}, M{"a": nil}))
	s.True(s.match(M{"b": 1}, M{"a": nil}))
	s.False(s.match(M{"a": 1}, M{"a": nil}))
	s.True(s.match(M{"a": A{M{"b": 1}, M{"c": 1}}}, M{"a.b": nil}))
}

func (s *MatcherTestSuite) TestComparisons() {
	doc := M{"a": 5, "s": "gedm", "d": time.UnixMilli(1000)}
	s.True(s.match(doc, M{"a": M{"$lt": 6}}))
	s.False(s.match(doc, M{"a": M{"$lt": 5}}))
	s.True(s.match(doc, M{"a": M{"$lte": 5}}))
	s.True(s.match(doc, M{"a": M{"$gt": 4.5}}))
	s.True(s.match(doc, M{"a": M{"$gte": 5, "$lt": 6}}))
	s.False(s.match(doc, M{"a": M{"$gte": 6}}))
	s.True(s.match(doc, M{"s": M{"$gt": "gedc"}}))
	s.False(s.match(doc, M{"s": M{"$lt": "gedc"}}))
	s.True(s.match(doc, M{"d": M{"$lt": time.UnixMilli(2000)}}))
	s.False(s.match(doc, M{"d": M{"$gt": time.UnixMilli(2000)}}))

	// different type brackets never match range operators
	s.False(s.match(doc, M{"a": M{"$lt": "z"}}))
	s.False(s.match(doc, M{"s": M{"$gt": 1}}))
	s.False(s.match(doc, M{"missing": M{"$lt": 1}}))

	s.True(s.match(M{"a": A{5, 10}}, M{"a": M{"$gt": 8}}))
	s.False(s.match(M{"a": A{5, 10}}, M{"a": M{"$gt": 10}}))
}

func (s *MatcherTestSuite) TestEqNe() {
	doc := M{"a": 5, "tags": A{"x", "y"}}
	s.True(s.match(doc, M{"a": M{"$eq": 5}}))
	s.False(s.match(doc, M{"a": M{"$ne": 5}}))
	s.True(s.match(doc, M{"a": M{"$ne": 4}}))
	s.True(s.match(doc, M{"missing": M{"$ne": 4}}))
	s.False(s.match(doc, M{"tags": M{"$ne": "x"}}))
	s.True(s.match(doc, M{"tags": M{"$ne": "z"}}))
}

func (s *MatcherTestSuite) TestInNin() {
	doc := M{"a": 5, "tags": A{"x", "y"}}
	s.True(s.match(doc, M{"a": M{"$in": A{1, 5}}}))
	s.False(s.match(doc, M{"a": M{"$in": A{1, 2}}}))
	s.True(s.match(doc, M{"tags": M{"$in": A{"z", "y"}}}))
	s.True(s.match(doc, M{"missing": M{"$in": A{nil}}}))
	s.True(s.match(doc, M{"tags": M{"$in": A{regexp.MustCompile("^y")}}}))
	s.True(s.match(doc, M{"a": M{"$nin": A{1, 2}}}))
	s.False(s.match(doc, M{"tags": M{"$nin": A{"x"}}}))
	s.True(s.match(doc, M{"missing": M{"$nin": A{1}}}))
	s.False(s.match(doc, M{"a": M{"$in": A{}}}))

	_, err := s.mtchr.Match(doc, M{"a": M{"$in": 1}})
	s.ErrorAs(err, &ErrCompArgType{})
}

func (s *MatcherTestSuite) TestAll() {
	doc := M{"tags": A{"x", "y", "z"}}
	s.True(s.match(doc, M{"tags": M{"$all": A{"x", "z"}}}))
	s.False(s.match(doc, M{"tags": M{"$all": A{"x", "w"}}}))
	s.False(s.match(doc, M{"tags": M{"$all": A{}}}))
}

func (s *MatcherTestSuite) TestExists() {
	doc := M{"a": nil, "b": M{"c": 1}}
	s.True(s.match(doc, M{"a": M{"$exists": true}}))
	s.True(s.match(doc, M{"b.c": M{"$exists": 1}}))
	s.False(s.match(doc, M{"b.d": M{"$exists": true}}))
	s.True(s.match(doc, M{"b.d": M{"$exists": false}}))
	s.True(s.match(doc, M{"b.d": M{"$exists": 0}}))
	s.False(s.match(doc, M{"a": M{"$exists": nil}}))
}

func (s *MatcherTestSuite) TestSize() {
	doc := M{"a": A{1, 2, 3}, "b": "abc"}
	s.True(s.match(doc, M{"a": M{"$size": 3}}))
	s.False(s.match(doc, M{"a": M{"$size": 2}}))
	s.False(s.match(doc, M{"b": M{"$size": 3}}))

	_, err := s.mtchr.Match(doc, M{"a": M{"$size": "3"}})
	s.ErrorAs(err, &ErrCompArgType{})
}

func (s *MatcherTestSuite) TestMod() {
	s.True(s.match(M{"a": 10}, M{"a": M{"$mod": A{4, 2}}}))
	s.False(s.match(M{"a": 11}, M{"a": M{"$mod": A{4, 2}}}))
	s.True(s.match(M{"a": 10.7}, M{"a": M{"$mod": A{5, 0}}}))
	s.False(s.match(M{"a": "10"}, M{"a": M{"$mod": A{5, 0}}}))

	_, err := s.mtchr.Match(M{}, M{"a": M{"$mod": A{0, 1}}})
	s.ErrorAs(err, &ErrCompArgType{})
	_, err = s.mtchr.Match(M{}, M{"a": M{"$mod": A{1}}})
	s.ErrorAs(err, &ErrCompArgType{})
}

func (s *MatcherTestSuite) TestRegex() {
	doc := M{"test": "helLo", "n": 1}
	s.True(s.match(doc, M{"test": regexp.MustCompile("^hel")}))
	s.True(s.match(doc, M{"test": primitive.Regex{Pattern: "LO$", Options: "i"}}))
	s.False(s.match(doc, M{"test": primitive.Regex{Pattern: "LO$"}}))
	s.True(s.match(doc, M{"test": M{"$regex": "ll", "$options": "i"}}))
	s.False(s.match(doc, M{"test": M{"$regex": "ll"}}))
	s.False(s.match(doc, M{"n": M{"$regex": "1"}}))
	s.False(s.match(doc, M{"missing": M{"$regex": "1"}}))
	s.True(s.match(M{"tags": A{"abc", "xyz"}}, M{"tags": regexp.MustCompile("y")}))

	_, err := s.mtchr.Match(doc, M{"test": M{"$regex": 1}})
	s.ErrorAs(err, &ErrCompArgType{})
	_, err = s.mtchr.Match(doc, M{"test": M{"$regex": "a", "$options": "x"}})
	s.ErrorIs(err, domain.ErrUnsupported)
	_, err = s.mtchr.Match(doc, M{"test": M{"$regex": "("}})
	s.Error(err)
}

func (s *MatcherTestSuite) TestType() {
	doc := M{
		"i": 1, "l": int64(1) << 40, "f": 1.5, "s": "x", "o": M{},
		"a": A{1}, "n": nil, "id": primitive.NewObjectID(), "b": true,
		"d": time.Now(),
	}
	s.True(s.match(doc, M{"i": M{"$type": "int"}}))
	s.True(s.match(doc, M{"i": M{"$type": 16}}))
	s.True(s.match(doc, M{"l": M{"$type": "long"}}))
	s.True(s.match(doc, M{"f": M{"$type": "number"}}))
	s.True(s.match(doc, M{"s": M{"$type": A{"int", "string"}}}))
	s.True(s.match(doc, M{"o": M{"$type": "object"}}))
	s.True(s.match(doc, M{"a": M{"$type": "array"}}))
	s.True(s.match(doc, M{"n": M{"$type": "null"}}))
	s.True(s.match(doc, M{"id": M{"$type": "objectId"}}))
	s.True(s.match(doc, M{"b": M{"$type": 8}}))
	s.True(s.match(doc, M{"d": M{"$type": "date"}}))
	s.False(s.match(doc, M{"s": M{"$type": "int"}}))
	s.False(s.match(doc, M{"missing": M{"$type": "null"}}))

	_, err := s.mtchr.Match(doc, M{"s": M{"$type": "text"}})
	s.ErrorAs(err, &ErrCompArgType{})
	_, err = s.mtchr.Match(doc, M{"s": M{"$type": 99}})
	s.ErrorAs(err, &ErrCompArgType{})
}

func (s *MatcherTestSuite) TestElemMatch() {
	doc := M{
		"scores": A{82, 85, 88},
		"items":  A{M{"k": "a", "v": 1}, M{"k": "b", "v": 2}},
	}
	s.True(s.match(doc, M{"scores": M{"$elemMatch": M{"$gte": 84, "$lt": 86}}}))
	s.False(s.match(doc, M{"scores": M{"$elemMatch": M{"$gte": 89}}}))
	s.True(s.match(doc, M{"items": M{"$elemMatch": M{"k": "b", "v": 2}}}))
	s.False(s.match(doc, M{"items": M{"$elemMatch": M{"k": "b", "v": 1}}}))
	s.True(s.match(doc, M{"items": M{"$elemMatch": M{"$or": A{M{"v": 5}, M{"k": "a"}}}}}))
	s.False(s.match(M{"items": "a"}, M{"items": M{"$elemMatch": M{"k": "a"}}}))
}

func (s *MatcherTestSuite) TestNot() {
	doc := M{"a": 5, "s": "hello"}
	s.True(s.match(doc, M{"a": M{"$not": M{"$gt": 6}}}))
	s.False(s.match(doc, M{"a": M{"$not": M{"$gt": 4}}}))
	s.True(s.match(doc, M{"s": M{"$not": regexp.MustCompile("^x")}}))
	s.False(s.match(doc, M{"s": M{"$not": primitive.Regex{Pattern: "^h"}}}))
	s.True(s.match(doc, M{"missing": M{"$not": M{"$gt": 1}}}))

	_, err := s.mtchr.Match(doc, M{"a": M{"$not": 5}})
	s.ErrorAs(err, &ErrCompArgType{})
}

func (s *MatcherTestSuite) TestLogicalOperators() {
	doc := M{"a": 5, "b": "x"}
	s.True(s.match(doc, M{"$or": A{M{"a": 4}, M{"b": "x"}}}))
	s.False(s.match(doc, M{"$or": A{M{"a": 4}, M{"b": "y"}}}))
	s.True(s.match(doc, M{"$and": A{M{"a": 5}, M{"b": "x"}}}))
	s.False(s.match(doc, M{"$and": A{M{"a": 5}, M{"b": "y"}}}))
	s.True(s.match(doc, M{"$nor": A{M{"a": 4}, M{"b": "y"}}}))
	s.False(s.match(doc, M{"$nor": A{M{"a": 5}}}))
	s.True(s.match(doc, M{"a": 5, "$or": A{M{"b": "x"}}}))

	_, err := s.mtchr.Match(doc, M{"$or": A{}})
	s.ErrorAs(err, &ErrCompArgType{})
	_, err = s.mtchr.Match(doc, M{"$or": M{"a": 1}})
	s.ErrorAs(err, &ErrCompArgType{})
}

func (s *MatcherTestSuite) TestWhere() {
	doc := M{"a": 5}
	where := func(d domain.Document) (bool, error) {
		return d.Get("a") == int32(5), nil
	}
	s.True(s.match(doc, M{"$where": where}))
	s.True(s.match(doc, M{"$where": func(v any) (bool, error) { return true, nil }}))

	fail := errors.New("fail")
	_, err := s.mtchr.Match(doc, M{"$where": func(domain.Document) (bool, error) { return false, fail }})
	s.ErrorIs(err, fail)

	_, err = s.mtchr.Match(doc, M{"$where": primitive.JavaScript("this.a == 5")})
	s.ErrorIs(err, domain.ErrUnsupported)
	_, err = s.mtchr.Match(doc, M{"$where": 1})
	s.ErrorAs(err, &ErrCompArgType{})
}

func (s *MatcherTestSuite) TestText() {
	doc := M{"title": "The Quick Fox", "tags": A{"animals"}, "meta": M{"lang": "en"}}
	s.True(s.match(doc, M{"$text": M{"$search": "quick"}}))
	s.True(s.match(doc, M{"$text": M{"$search": "dog animals"}}))
	s.False(s.match(doc, M{"$text": M{"$search": "quick", "$caseSensitive": true}}))
	s.False(s.match(doc, M{"$text": M{"$search": "dog"}}))
	s.False(s.match(doc, M{"$text": M{"$search": ""}}))
}

func (s *MatcherTestSuite) TestIgnoredAndUnknownOperators() {
	s.True(s.match(M{"a": 1}, M{"$isolated": 1, "a": 1}))
	s.True(s.match(M{"a": 1}, M{"$comment": "x"}))

	_, err := s.mtchr.Match(M{"a": 1}, M{"$foo": 1})
	s.ErrorAs(err, &ErrUnknownOperator{})
	_, err = s.mtchr.Match(M{"a": 1}, M{"a": M{"$foo": 1}})
	s.ErrorAs(err, &ErrUnknownComparison{})
	_, err = s.mtchr.Match(M{"a": 1}, bson.D{{Key: "a", Value: bson.D{{Key: "$gt", Value: 1}, {Key: "b", Value: 1}}}})
	s.ErrorIs(err, ErrMixedOperators)
	_, err = s.mtchr.Match(M{"a": 1}, M{"loc": M{"$near": A{1, 2}}})
	s.ErrorIs(err, domain.ErrUnsupported)
	_, err = s.mtchr.Match(M{"a": 1}, 3)
	s.ErrorAs(err, &ErrCompArgType{})
}

func (s *MatcherTestSuite) TestCompileOnce() {
	qry, err := s.mtchr.Compile(M{"a": M{"$gt": 1}})
	s.Require().NoError(err)

	for n, want := range []bool{false, false, true, true} {
		doc, err := data.NewDocument(M{"a": n})
		s.Require().NoError(err)
		ok, err := s.mtchr.MatchQuery(doc, qry)
		s.NoError(err)
		s.Equal(want, ok)
	}
}

func (s *MatcherTestSuite) TestFieldNavigatorErrors() {
	fn := new(fieldNavigatorMock)
	m := NewMatcher(WithFieldNavigator(fn)).(*Matcher)

	fn.On("GetAddress", "a").Return([]string(nil), errors.New("bad address")).Once()
	_, err := m.Match(M{"a": 1}, M{"a": 1})
	s.EqualError(err, "bad address")

	fn.On("GetAddress", "b").Return([]string{"b"}, nil).Once()
	fn.On("GetField", mock.Anything, []string{"b"}).Return([]domain.GetSetter(nil), false, errors.New("bad field")).Once()
	_, err = m.Match(M{"b": 1}, M{"b": 1})
	s.EqualError(err, "bad field")

	fn.AssertExpectations(s.T())
}

func (s *MatcherTestSuite) TestDocumentFactoryError() {
	m := NewMatcher(WithDocumentFactory(func(any) (domain.Document, error) {
		return nil, errors.New("no document")
	})).(*Matcher)
	_, err := m.Match(M{"a": 1}, M{"a": 1})
	s.EqualError(err, "no document")
}

func (s *MatcherTestSuite) TestOperatorNames() {
	s.Equal("$nor", Nor.String())
	s.Equal("$elemMatch", ElemMatch.String())
	s.Equal("$not", Not.String())
	s.Equal("unknown", Operator(200).String())
	s.Equal("unknown", Logic(9).String())
}

func TestMatcherTestSuite(t *testing.T) {
	suite.Run(t, new(MatcherTestSuite))
}
