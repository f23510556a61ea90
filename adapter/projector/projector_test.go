package projector

import (
	"testing"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type D = bson.D

type A = bson.A

type ProjectorTestSuite struct {
	suite.Suite
	p domain.Projector
}

func (s *ProjectorTestSuite) SetupTest() {
	s.p = NewProjector()
}

func (s *ProjectorTestSuite) doc(v any) domain.Document {
	d, err := data.NewDocument(v)
	s.Require().NoError(err)
	return d
}

func (s *ProjectorTestSuite) norm(v any) bson.D {
	return s.doc(v).(*data.D).BSON()
}

func (s *ProjectorTestSuite) project(doc D, proj D) bson.D {
	res, err := s.p.Project([]domain.Document{s.doc(doc)}, s.doc(proj))
	s.Require().NoError(err)
	s.Require().Len(res, 1)
	return res[0].(*data.D).BSON()
}

func (s *ProjectorTestSuite) projectErr(proj D) error {
	_, err := s.p.Project([]domain.Document{s.doc(D{})}, s.doc(proj))
	return err
}

var sample = D{
	{Key: "_id", Value: 1},
	{Key: "name", Value: "ann"},
	{Key: "age", Value: 30},
	{Key: "address", Value: D{{Key: "city", Value: "x"}, {Key: "zip", Value: "1"}}},
	{Key: "pets", Value: A{
		D{{Key: "name", Value: "rex"}, {Key: "kind", Value: "dog"}},
		"loose",
		D{{Key: "kind", Value: "cat"}},
	}},
}

func (s *ProjectorTestSuite) TestEmptyProjection() {
	docs := []domain.Document{s.doc(sample)}
	res, err := s.p.Project(docs, nil)
	s.NoError(err)
	s.Equal(docs, res)

	res, err = s.p.Project(docs, s.doc(D{}))
	s.NoError(err)
	s.Equal(docs, res)
}

func (s *ProjectorTestSuite) TestInclude() {
	s.Equal(
		s.norm(D{{Key: "_id", Value: 1}, {Key: "name", Value: "ann"}, {Key: "age", Value: 30}}),
		s.project(sample, D{{Key: "age", Value: 1}, {Key: "name", Value: true}}),
	)

	s.Equal(
		s.norm(D{{Key: "name", Value: "ann"}}),
		s.project(sample, D{{Key: "name", Value: 1}, {Key: "_id", Value: 0}}),
	)

	s.Equal(
		s.norm(D{{Key: "_id", Value: 1}}),
		s.project(sample, D{{Key: "_id", Value: 1}}),
	)
}

func (s *ProjectorTestSuite) TestIncludeNested() {
	s.Equal(
		s.norm(D{
			{Key: "_id", Value: 1},
			{Key: "address", Value: D{{Key: "city", Value: "x"}}},
			{Key: "pets", Value: A{D{{Key: "kind", Value: "dog"}}, D{{Key: "kind", Value: "cat"}}}},
		}),
		s.project(sample, D{{Key: "pets.kind", Value: 1}, {Key: "address.city", Value: 1}}),
	)

	s.Equal(
		s.norm(D{{Key: "_id", Value: 1}}),
		s.project(sample, D{{Key: "name.first", Value: 1}}),
	)
}

func (s *ProjectorTestSuite) TestExclude() {
	s.Equal(
		s.norm(D{
			{Key: "_id", Value: 1},
			{Key: "address", Value: D{{Key: "zip", Value: "1"}}},
			{Key: "pets", Value: A{
				D{{Key: "kind", Value: "dog"}},
				"loose",
				D{{Key: "kind", Value: "cat"}},
			}},
		}),
		s.project(sample, D{
			{Key: "name", Value: 0},
			{Key: "age", Value: false},
			{Key: "address.city", Value: 0},
			{Key: "pets.name", Value: 0},
		}),
	)

	res := s.project(sample, D{{Key: "_id", Value: 0}})
	s.Len(res, 4)
	s.Equal("name", res[0].Key)
}

func (s *ProjectorTestSuite) TestSlice() {
	doc := D{{Key: "_id", Value: 1}, {Key: "a", Value: 1}, {Key: "arr", Value: A{1, 2, 3, 4}}}

	s.Equal(
		s.norm(D{{Key: "_id", Value: 1}, {Key: "a", Value: 1}, {Key: "arr", Value: A{1, 2}}}),
		s.project(doc, D{{Key: "arr", Value: D{{Key: "$slice", Value: 2}}}}),
	)

	s.Equal(
		s.norm(D{{Key: "_id", Value: 1}, {Key: "a", Value: 1}, {Key: "arr", Value: A{3, 4}}}),
		s.project(doc, D{{Key: "arr", Value: D{{Key: "$slice", Value: -2}}}}),
	)

	s.Equal(
		s.norm(D{{Key: "a", Value: 1}, {Key: "arr", Value: A{2, 3}}}),
		s.project(doc, D{{Key: "_id", Value: 0}, {Key: "arr", Value: D{{Key: "$slice", Value: A{1, 2}}}}}),
	)

	s.Equal(
		s.norm(D{{Key: "_id", Value: 1}, {Key: "a", Value: 1}, {Key: "arr", Value: A{4}}}),
		s.project(doc, D{{Key: "a", Value: 1}, {Key: "arr", Value: D{{Key: "$slice", Value: A{-1, 5}}}}}),
	)
}

func (s *ProjectorTestSuite) TestErrors() {
	s.ErrorIs(s.projectErr(D{{Key: "a", Value: 1}, {Key: "b", Value: 0}}), ErrMixOmitType)
	s.ErrorIs(s.projectErr(D{{Key: "a", Value: 1}, {Key: "a.b", Value: 1}}), ErrPathCollision)
	s.ErrorIs(s.projectErr(D{{Key: "a.b", Value: 1}, {Key: "a", Value: 1}}), ErrPathCollision)
	s.ErrorIs(s.projectErr(D{{Key: "a", Value: "x"}}), ErrProjectionValue)
	s.ErrorIs(s.projectErr(D{{Key: "a", Value: D{{Key: "$elemMatch", Value: D{}}}}}), domain.ErrUnsupported)
	s.ErrorIs(s.projectErr(D{{Key: "a", Value: D{{Key: "$slice", Value: A{1, 0}}}}}), ErrProjectionValue)
	s.Error(s.projectErr(D{{Key: "a..b", Value: 1}}))
}

func (s *ProjectorTestSuite) TestSourceUntouched() {
	doc := s.doc(sample)
	before := doc.(*data.D).BSON()

	_, err := s.p.Project([]domain.Document{doc}, s.doc(D{{Key: "pets", Value: D{{Key: "$slice", Value: 1}}}}))
	s.NoError(err)
	s.Equal(before, doc.(*data.D).BSON())
}

func TestProjectorTestSuite(t *testing.T) {
	suite.Run(t, new(ProjectorTestSuite))
}
