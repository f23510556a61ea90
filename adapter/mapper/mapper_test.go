package mapper

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type MapperTestSuite struct {
	suite.Suite
	m *Mapper
}

func (s *MapperTestSuite) SetupTest() {
	s.m = NewMapper()
}

func (s *MapperTestSuite) mapped(v any) *MappedClass {
	mc, err := s.m.MappedClass(v)
	s.Require().NoError(err)
	return mc
}

func (s *MapperTestSuite) mappingError(v any, reason string) {
	_, err := s.m.EntityClass(v)
	var me *domain.MappingError
	s.Require().ErrorAs(err, &me)
	s.Contains(me.Reason, reason)
}

func (s *MapperTestSuite) TestMapPerson() {
	mc := s.mapped(Person{})

	s.Equal("Person", mc.Name)
	s.Equal("people", mc.Collection)
	s.Equal("github.com/vinicius-lino-figueiredo/gedm/adapter/mapper.Person", mc.Discriminator)
	s.True(mc.IsEntity())
	s.True(mc.UsesDiscriminator())
	s.Equal(domain.IDKindObjectID, mc.IDKind())

	s.Require().NotNil(mc.ID)
	s.Equal("_id", mc.ID.StoredName)
	s.Require().NotNil(mc.Version)
	s.Equal("version", mc.Version.StoredName)

	var stored []string
	for _, f := range mc.Fields {
		stored = append(stored, f.StoredName)
	}
	s.Equal([]string{
		"createdBy", "created_at", "_id", "version", "first_name", "lastName",
		"age", "addresses", "home", "pic", "picIDs", "tags", "scores", "shape",
		"owner", "computed",
	}, stored)
	s.Equal([]reflect.Type{reflect.TypeFor[Audit]()}, mc.Supers)
}

func (s *MapperTestSuite) TestFieldLookup() {
	mc := s.mapped(&Person{})

	s.Same(mc.Field("first_name"), mc.Field("FirstName"))
	s.Same(mc.Field("first_name"), mc.Field("firstName"))
	s.Equal([]string{"fname", "given"}, mc.Field("first_name").LoadNames)
	s.Same(mc.ID, mc.Field("_id"))
	s.Same(mc.ID, mc.Field("id"))
	s.Nil(mc.Field("ignored"))
	s.Nil(mc.Field("unexported"))
	s.True(mc.Field("computed").NotSaved)
}

func (s *MapperTestSuite) TestFieldKinds() {
	mc := s.mapped(Person{})

	addresses := mc.Field("addresses")
	s.True(addresses.IsCollection())
	s.True(addresses.IsMultipleValues())
	s.True(addresses.IsEmbedded())
	s.Equal(reflect.TypeFor[Address](), addresses.SubType())

	home := mc.Field("home")
	s.False(home.IsMultipleValues())
	s.True(home.IsEmbedded())

	pic := mc.Field("pic")
	s.True(pic.IsReference)
	s.False(pic.IDOnly)
	s.False(pic.IsEmbedded())

	picIDs := mc.Field("picIDs")
	s.True(picIDs.IsReference)
	s.True(picIDs.IDOnly)

	tags := mc.Field("tags")
	s.True(tags.IsMap())
	s.Equal(reflect.TypeFor[string](), tags.SubType())

	s.True(mc.Field("owner").IsReference)
	s.True(mc.Field("shape").IsEmbedded())
	s.False(mc.Field("created_at").IsEmbedded())

	age := mc.Field("age")
	s.Require().NotNil(age.IndexSpec)
	s.Equal(domain.Desc, age.IndexSpec.Fields[0].Type)
	s.Equal("age", age.IndexSpec.Fields[0].Name)
	s.True(age.IndexSpec.Options.Unique)
	s.Equal("age_idx", age.IndexSpec.Options.Name)
}

func (s *MapperTestSuite) TestNestedTypesAreMapped() {
	s.mapped(Person{})
	s.True(s.m.IsMapped(reflect.TypeFor[Address]()))
	s.True(s.m.IsMapped(reflect.TypeFor[Picture]()))
	s.False(s.m.IsMapped(reflect.TypeFor[Audit]()))
	s.False(s.m.IsMapped(reflect.TypeFor[Circle]()))
}

func (s *MapperTestSuite) TestMapOnce() {
	a := s.mapped(Person{})
	b := s.mapped(&Person{})
	c := s.mapped(reflect.TypeFor[*Person]())
	s.Same(a, b)
	s.Same(a, c)
}

func (s *MapperTestSuite) TestConcurrentMapping() {
	var wg sync.WaitGroup
	res := make([]*MappedClass, 16)
	for n := range res {
		wg.Go(func() {
			mc, err := s.m.MappedClass(Node{})
			s.NoError(err)
			res[n] = mc
		})
	}
	wg.Wait()
	for _, mc := range res {
		s.Same(res[0], mc)
	}
}

func (s *MapperTestSuite) TestRecursiveType() {
	mc := s.mapped(Node{})
	s.Equal("_id", mc.ID.StoredName)
	s.Equal(domain.IDKindString, mc.IDKind())
	s.True(mc.Field("parent").IsReference)
}

func (s *MapperTestSuite) TestEmbeddedType() {
	mc := s.mapped(Badge{})
	s.False(mc.IsEntity())
	s.Equal("badge", mc.Discriminator)
	s.Empty(mc.Collection)
	s.NoError(s.m.Map(Badge{}))

	got, ok := s.m.ByDiscriminator("badge")
	s.True(ok)
	s.Same(mc, got)

	_, err := s.m.EntityClass(Badge{})
	s.Error(err)
}

func (s *MapperTestSuite) TestMappingErrors() {
	s.mappingError(NoID{}, "no field is marked as id")
	s.mappingError(TwoIDs{}, "more than one field is marked as id")
	s.mappingError(EmbeddedWithID{}, "embedded types cannot have an id field")
	s.mappingError(NamedEmbedded{}, "embedded types cannot declare a name")
	s.mappingError(TwoVersions{}, "more than one field is marked as version")
	s.mappingError(StringVersion{}, "version field must be an integer")
	s.mappingError(BadMapKey{}, "unsupported map key type")
	s.mappingError(BadRef{}, "has no id field")
	s.mappingError(DupNames{}, "are both stored as")
	s.mappingError(IDClash{}, "more than one field is marked as id: ID and Other")
	s.mappingError(BadTag{}, "unknown tag option")
	s.mappingError(struct{ ID string }{}, "anonymous struct types")
	s.mappingError(1, "only struct types")
	s.mappingError(WithBadField{}, "more than one field is marked as id")

	s.ErrorIs(s.m.Map(nil), domain.ErrTargetNil)
	s.Error(s.m.Map(NoID{}))
}

func (s *MapperTestSuite) TestFailedMappingIsNotCached() {
	_, err := s.m.MappedClass(WithBadField{})
	s.Error(err)
	s.False(s.m.IsMapped(reflect.TypeFor[WithBadField]()))
	s.False(s.m.IsMapped(reflect.TypeFor[TwoIDs]()))

	s.NoError(s.m.Map(Picture{}))
	s.True(s.m.IsMapped(reflect.TypeFor[Picture]()))
}

func (s *MapperTestSuite) TestShadowedPromotedField() {
	mc := s.mapped(Shadowing{})
	f := mc.Field("createdBy")
	s.Require().NotNil(f)
	s.Equal(reflect.TypeFor[int](), f.Type)
	s.Len(mc.Fields, 3)
}

func (s *MapperTestSuite) TestDiscriminatorClash() {
	m := NewMapper()
	s.Require().NoError(m.Map(Badge{}))
	m.byDisc["github.com/vinicius-lino-figueiredo/gedm/adapter/mapper.Picture"] = m.classes[reflect.TypeFor[Badge]()]
	_, err := m.MappedClass(Picture{})
	var me *domain.MappingError
	s.ErrorAs(err, &me)
	s.Contains(me.Reason, "already used")
}

func (s *MapperTestSuite) TestSubtypes() {
	s.Require().NoError(s.m.Map(Person{}, Badge{}))
	_, err := s.m.MappedClass(Circle{})
	s.Require().NoError(err)

	shapeType := reflect.TypeFor[Shape]()
	subs := s.m.Subtypes(shapeType)
	s.Require().Len(subs, 1)
	s.Equal(reflect.TypeFor[Circle](), subs[0].Type)

	impl, err := s.m.Implementation(shapeType)
	s.NoError(err)
	s.Same(subs[0], impl)

	_, err = s.m.MappedClass(Square{})
	s.Require().NoError(err)
	_, err = s.m.Implementation(shapeType)
	var me *domain.MappingError
	s.ErrorAs(err, &me)

	subs = s.m.Subtypes(reflect.TypeFor[Audit]())
	s.Require().Len(subs, 1)
	s.Equal(reflect.TypeFor[Person](), subs[0].Type)

	_, err = s.m.Implementation(reflect.TypeFor[interface{ Nothing() }]())
	s.ErrorAs(err, &me)
}

func (s *MapperTestSuite) TestClasses() {
	s.Require().NoError(s.m.Map(Node{}, Badge{}))
	classes := s.m.Classes()
	s.Require().Len(classes, 2)
	s.Equal("badge", classes[0].Discriminator)
}

func (s *MapperTestSuite) TestIDAndVersion() {
	p := &Person{}

	id, err := s.m.ID(p)
	s.NoError(err)
	s.Nil(id)

	_, err = s.m.Key(p)
	s.ErrorIs(err, domain.ErrNoID)

	oid := primitive.NewObjectID()
	s.NoError(s.m.SetID(p, oid))
	s.Equal(oid, p.ID)

	id, err = s.m.ID(*p)
	s.NoError(err)
	s.Equal(oid, id)

	key, err := s.m.Key(p)
	s.NoError(err)
	s.Equal(domain.Key{Collection: "people", Type: reflect.TypeFor[Person](), ID: oid}, key)

	same, err := s.m.Key(key)
	s.NoError(err)
	s.Equal(key, same)

	s.NoError(s.m.SetVersion(p, 3))
	s.Equal(int64(3), p.Version)
	v, err := s.m.Version(p)
	s.NoError(err)
	s.Equal(int64(3), v)

	s.ErrorIs(s.m.SetID(*p, oid), domain.ErrNonPointer)
	s.ErrorIs(s.m.SetID(nil, oid), domain.ErrTargetNil)

	var np *Person
	_, err = s.m.ID(np)
	s.ErrorIs(err, domain.ErrTargetNil)

	err = s.m.SetVersion(&Picture{}, 1)
	var me *domain.MappingError
	s.ErrorAs(err, &me)
}

func (s *MapperTestSuite) TestPointerVersion() {
	p := &PtrVersion{}
	v, err := s.m.Version(p)
	s.NoError(err)
	s.Zero(v)

	s.NoError(s.m.SetVersion(p, 7))
	s.Require().NotNil(p.Version)
	s.Equal(uint32(7), *p.Version)

	v, err = s.m.Version(p)
	s.NoError(err)
	s.Equal(int64(7), v)

	s.Error(s.m.SetVersion(p, -1))
}

func (s *MapperTestSuite) TestCollectionName() {
	name, err := s.m.CollectionName(&Person{})
	s.NoError(err)
	s.Equal("people", name)

	name, err = s.m.CollectionName(Node{})
	s.NoError(err)
	s.Equal("Node", name)
}

func (s *MapperTestSuite) TestAssign() {
	var i int8
	s.NoError(Assign(reflect.ValueOf(&i).Elem(), 12))
	s.Equal(int8(12), i)
	s.Error(Assign(reflect.ValueOf(&i).Elem(), 1000))
	s.Error(Assign(reflect.ValueOf(&i).Elem(), "x"))

	var p *string
	s.NoError(Assign(reflect.ValueOf(&p).Elem(), "x"))
	s.Equal("x", *p)
	s.NoError(Assign(reflect.ValueOf(&p).Elem(), nil))
	s.Nil(p)

	type label string
	var l label
	s.NoError(Assign(reflect.ValueOf(&l).Elem(), "a"))
	s.Equal(label("a"), l)
}

func (s *MapperTestSuite) TestInterceptors() {
	var a, b domain.NopInterceptor
	m := NewMapper(WithInterceptors(a))
	m.AddInterceptor(b)
	s.Len(m.Interceptors(), 2)
}

func (s *MapperTestSuite) TestOptions() {
	m := NewMapper(WithDiscriminatorKey("_t"), WithStoreNulls(true), WithStoreEmpties(true))
	s.Equal("_t", m.DiscriminatorKey())
	s.True(m.StoreNulls())
	s.True(m.StoreEmpties())
	s.Equal(DefaultDiscriminatorKey, NewMapper().DiscriminatorKey())
}

func (s *MapperTestSuite) TestLowerCamel() {
	s.Equal("firstName", LowerCamel("FirstName"))
	s.Equal("id", LowerCamel("ID"))
	s.Equal("urlPath", LowerCamel("URLPath"))
	s.Equal("name", LowerCamel("name"))
	s.Equal("", LowerCamel(""))
}

func (s *MapperTestSuite) TestLeafTypes() {
	s.True(IsLeafType(reflect.TypeFor[primitive.ObjectID]()))
	s.True(IsLeafType(reflect.TypeFor[[]byte]()))
	s.True(IsLeafType(reflect.TypeFor[*int]()))
	s.False(IsLeafType(reflect.TypeFor[Address]()))
	s.False(IsLeafType(reflect.TypeFor[[]int]()))
	s.True(IsStructType(reflect.TypeFor[*Address]()))
	s.False(IsStructType(reflect.TypeFor[domain.Key]()))
}

func (s *MapperTestSuite) TestErrorsAreTyped() {
	_, err := s.m.EntityClass(NoID{})
	s.True(errors.As(err, new(*domain.MappingError)))
}

func TestMapperTestSuite(t *testing.T) {
	suite.Run(t, new(MapperTestSuite))
}
