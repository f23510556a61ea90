package idgenerator

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/timegetter"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type IDGeneratorTestSuite struct {
	suite.Suite
	ig *IDGenerator
}

func (s *IDGeneratorTestSuite) SetupTest() {
	s.ig = NewIDGenerator().(*IDGenerator)
}

func (s *IDGeneratorTestSuite) TestObjectID() {
	id1, err := s.ig.GenerateID(domain.IDKindObjectID)
	s.NoError(err)
	s.IsType(primitive.ObjectID{}, id1)
	s.False(id1.(primitive.ObjectID).IsZero())

	id2, err := s.ig.GenerateID(domain.IDKindObjectID)
	s.NoError(err)
	s.NotEqual(id1, id2)
}

func (s *IDGeneratorTestSuite) TestObjectIDTimestamp() {
	at := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
	s.ig = NewIDGenerator(WithTimeGetter(timegetter.Fixed(at))).(*IDGenerator)

	id1, err := s.ig.GenerateID(domain.IDKindObjectID)
	s.NoError(err)
	id2, err := s.ig.GenerateID(domain.IDKindObjectID)
	s.NoError(err)

	s.True(at.Equal(id1.(primitive.ObjectID).Timestamp()))
	s.NotEqual(id1, id2)
}

func (s *IDGeneratorTestSuite) TestString() {
	id, err := s.ig.GenerateID(domain.IDKindString)
	s.NoError(err)
	str, ok := id.(string)
	s.Require().True(ok)
	parsed, err := uuid.Parse(str)
	s.NoError(err)
	s.Equal(uuid.Version(4), parsed.Version())
}

// If the value in the random reader does not repeat, IDs multiple times will
// not result in collision.
func (s *IDGeneratorTestSuite) TestCollision() {
	t := `abcdefghijklmnopqrstuvwxy0123456789ABCDEFGHIJKLMNOPQRSTUVWXY`
	s.ig = NewIDGenerator(WithReader(strings.NewReader(t))).(*IDGenerator)

	id1, err := s.ig.GenerateID(domain.IDKindString)
	s.NoError(err)

	id2, err := s.ig.GenerateID(domain.IDKindString)
	s.NoError(err)

	s.NotEqual(id1, id2)
}

func (s *IDGeneratorTestSuite) TestReadError() {
	s.ig = NewIDGenerator(WithReader(strings.NewReader(""))).(*IDGenerator)

	id, err := s.ig.GenerateID(domain.IDKindString)
	s.ErrorIs(err, io.EOF)
	s.Nil(id)
}

func (s *IDGeneratorTestSuite) TestUnknownKind() {
	id, err := s.ig.GenerateID(domain.IDKindNone)
	s.ErrorIs(err, domain.ErrUnsupported)
	s.Nil(id)
}

func TestIDGeneratorTestSuite(t *testing.T) {
	suite.Run(t, new(IDGeneratorTestSuite))
}
