package datastore

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/memdb"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/update"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/metrics"
)

type DatastoreTestSuite struct {
	suite.Suite
	ctx context.Context
	db  *spyDatabase
	ds  *Datastore
}

func (s *DatastoreTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.db = &spyDatabase{Database: memdb.New("test")}
	var err error
	s.ds, err = NewDatastore(s.db)
	s.Require().NoError(err)
}

func TestDatastoreTestSuite(t *testing.T) {
	suite.Run(t, new(DatastoreTestSuite))
}

func (s *DatastoreTestSuite) account(owner string, balance int) *Account {
	a := &Account{Owner: owner, Balance: balance}
	_, err := s.ds.Save(s.ctx, a)
	s.Require().NoError(err)
	return a
}

func (s *DatastoreTestSuite) stored(id primitive.ObjectID) Account {
	var a Account
	s.Require().NoError(s.ds.Get(s.ctx, &a, id))
	return a
}

func (s *DatastoreTestSuite) TestNewDatastore() {
	_, err := NewDatastore(nil)
	s.ErrorIs(err, ErrNilDatabase)

	s.NotNil(s.ds.Mapper())
	s.NotNil(s.ds.Codec())
	s.Equal(s.db, s.ds.Database())
}

func (s *DatastoreTestSuite) TestSaveNew() {
	a := &Account{Owner: "ann", Balance: 10}
	key, err := s.ds.Save(s.ctx, a)
	s.Require().NoError(err)

	s.False(a.ID.IsZero())
	s.Equal(int64(1), a.Version)
	s.Equal("accounts", key.Collection)
	s.Equal(a.ID, key.ID)
	s.Equal(*a, s.stored(a.ID))
}

func (s *DatastoreTestSuite) TestSaveTarget() {
	_, err := s.ds.Save(s.ctx, Account{})
	s.ErrorIs(err, domain.ErrNonPointer)

	_, err = s.ds.Save(s.ctx, nil)
	s.ErrorIs(err, domain.ErrTargetNil)
}

func (s *DatastoreTestSuite) TestSaveVersioned() {
	a := s.account("ann", 10)
	stale := *a

	a.Balance = 20
	_, err := s.ds.Save(s.ctx, a)
	s.Require().NoError(err)
	s.Equal(int64(2), a.Version)

	stale.Balance = 30
	_, err = s.ds.Save(s.ctx, &stale)
	var cme *domain.ConcurrentModificationError
	s.Require().ErrorAs(err, &cme)
	s.Equal(a.ID, cme.ID)
	s.Equal(int64(1), cme.Version)
	s.Equal(int64(1), stale.Version)

	got := s.stored(a.ID)
	s.Equal(20, got.Balance)
	s.Equal(int64(2), got.Version)
}

func (s *DatastoreTestSuite) TestSaveUnversioned() {
	p := &Person{ID: "p1", FirstName: "Ann"}
	_, err := s.ds.Save(s.ctx, p)
	s.Require().NoError(err)

	p.FirstName = "Anna"
	_, err = s.ds.Save(s.ctx, p)
	s.Require().NoError(err)

	n, err := s.ds.Count(s.ctx, Person{})
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	var got Person
	s.Require().NoError(s.ds.Get(s.ctx, &got, "p1"))
	s.Equal("Anna", got.FirstName)
}

func (s *DatastoreTestSuite) TestSaveGeneratesStringID() {
	p := &Person{FirstName: "Bob"}
	key, err := s.ds.Save(s.ctx, p)
	s.Require().NoError(err)
	s.NotEmpty(p.ID)
	s.Equal(p.ID, key.ID)
}

func (s *DatastoreTestSuite) TestSaveIn() {
	p := &Person{ID: "p1", FirstName: "Ann"}
	key, err := s.ds.SaveIn(s.ctx, "archive", p)
	s.Require().NoError(err)
	s.Equal("archive", key.Collection)

	n, err := s.ds.FindIn("archive", Person{}).Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
	n, err = s.ds.Count(s.ctx, Person{})
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *DatastoreTestSuite) TestSaveAll() {
	keys, err := s.ds.SaveAll(s.ctx, []any{
		&Person{ID: "a", FirstName: "Ann"},
		&Person{ID: "b", FirstName: "Bob"},
		Person{ID: "c"},
	})
	s.ErrorIs(err, domain.ErrNonPointer)
	s.Len(keys, 2)
}

func (s *DatastoreTestSuite) TestInsert() {
	a := &Account{Owner: "ann"}
	_, err := s.ds.Insert(s.ctx, a)
	s.Require().NoError(err)
	s.Equal(int64(1), a.Version)

	dup := &Account{ID: a.ID, Owner: "bob"}
	_, err = s.ds.Insert(s.ctx, dup)
	s.True(IsDuplicateKey(err))
	s.Zero(dup.Version)

	_, err = s.ds.InsertIn(s.ctx, "old_accounts", &Account{ID: a.ID, Owner: "ann"})
	s.NoError(err)
}

func (s *DatastoreTestSuite) TestMerge() {
	nick := "annie"
	p := &Person{ID: "p1", FirstName: "Ann", Nick: &nick, Values: []int{1}}
	_, err := s.ds.Save(s.ctx, p)
	s.Require().NoError(err)

	_, err = s.ds.Merge(s.ctx, &Person{ID: "p1", FirstName: "Anna"})
	s.Require().NoError(err)

	var got Person
	s.Require().NoError(s.ds.Get(s.ctx, &got, "p1"))
	s.Equal("Anna", got.FirstName)
	s.Require().NotNil(got.Nick)
	s.Equal("annie", *got.Nick)
	s.Equal([]int{1}, got.Values)

	_, err = s.ds.Merge(s.ctx, &Person{ID: "missing"})
	s.ErrorIs(err, domain.ErrNotFound)

	_, err = s.ds.Merge(s.ctx, &Person{})
	s.ErrorIs(err, domain.ErrNoID)
}

func (s *DatastoreTestSuite) TestMergeVersioned() {
	a := s.account("ann", 10)
	stale := *a

	_, err := s.ds.Merge(s.ctx, &Account{ID: a.ID, Owner: "ann", Balance: 5, Version: 1})
	s.Require().NoError(err)
	s.Equal(int64(2), s.stored(a.ID).Version)

	_, err = s.ds.Merge(s.ctx, &stale)
	var cme *domain.ConcurrentModificationError
	s.ErrorAs(err, &cme)
	s.Equal(int64(1), stale.Version)
}

func (s *DatastoreTestSuite) TestGet() {
	a := s.account("ann", 10)

	var got Account
	s.Require().NoError(s.ds.Get(s.ctx, &got, a.ID))
	s.Equal(*a, got)

	err := s.ds.Get(s.ctx, &got, primitive.NewObjectID())
	s.ErrorIs(err, domain.ErrNotFound)

	err = s.ds.Get(s.ctx, &got, nil)
	s.ErrorIs(err, domain.ErrNoID)
}

func (s *DatastoreTestSuite) TestGetByKeys() {
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.ds.Save(s.ctx, &Person{ID: id, FirstName: id})
		s.Require().NoError(err)
	}
	keys := []domain.Key{
		{Collection: "Person", ID: "c"},
		{Collection: "Person", ID: "missing"},
		{Collection: "Person", ID: "a"},
	}

	var people []Person
	s.Require().NoError(s.ds.GetByKeys(s.ctx, keys, &people))
	s.Require().Len(people, 2)
	s.Equal("c", people[0].ID)
	s.Equal("a", people[1].ID)

	var ptrs []*Person
	s.Require().NoError(s.ds.GetByKeys(s.ctx, keys[2:], &ptrs))
	s.Require().Len(ptrs, 1)
	s.Equal("a", ptrs[0].FirstName)

	s.ErrorIs(s.ds.GetByKeys(s.ctx, keys, people), domain.ErrNonPointer)
	s.ErrorIs(s.ds.GetByKeys(s.ctx, []domain.Key{{Collection: "Person"}}, &people), domain.ErrNoID)
}

func (s *DatastoreTestSuite) TestGetByKey() {
	a := s.account("ann", 10)
	key, err := s.ds.Key(a)
	s.Require().NoError(err)

	var got Account
	s.Require().NoError(s.ds.GetByKey(s.ctx, key, &got))
	s.Equal(a.ID, got.ID)
}

func (s *DatastoreTestSuite) TestExists() {
	a := s.account("ann", 10)

	ok, err := s.ds.Exists(s.ctx, a)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.ds.Exists(s.ctx, domain.Key{Collection: "accounts", ID: primitive.NewObjectID()})
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.ds.Exists(s.ctx, &Account{})
	s.ErrorIs(err, domain.ErrNoID)
}

func (s *DatastoreTestSuite) TestReferences() {
	author := &Author{Name: "Ursula"}
	_, err := s.ds.Save(s.ctx, author)
	s.Require().NoError(err)
	book := &Book{Title: "The Dispossessed", Author: author}
	_, err = s.ds.Save(s.ctx, book)
	s.Require().NoError(err)

	var got Book
	s.Require().NoError(s.ds.Get(s.ctx, &got, book.ID))
	s.Require().NotNil(got.Author)
	s.Equal(*author, *got.Author)

	n, err := s.ds.DeleteByID(s.ctx, Author{}, author.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	got = Book{}
	s.Require().NoError(s.ds.Get(s.ctx, &got, book.ID))
	s.Require().NotNil(got.Author)
	s.Equal(author.ID, got.Author.ID)
	s.Empty(got.Author.Name)
}

func (s *DatastoreTestSuite) TestDelete() {
	a := s.account("ann", 10)
	stale := *a
	a.Balance = 20
	_, err := s.ds.Save(s.ctx, a)
	s.Require().NoError(err)

	_, err = s.ds.Delete(s.ctx, &stale)
	var cme *domain.ConcurrentModificationError
	s.ErrorAs(err, &cme)

	n, err := s.ds.Delete(s.ctx, a)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.ds.Delete(s.ctx, a)
	s.Require().NoError(err)
	s.Zero(n)

	_, err = s.ds.Delete(s.ctx, &Account{})
	s.ErrorIs(err, domain.ErrNoID)
}

func (s *DatastoreTestSuite) TestDeleteKey() {
	p := &Person{ID: "p1"}
	_, err := s.ds.Save(s.ctx, p)
	s.Require().NoError(err)
	key, err := s.ds.Key(p)
	s.Require().NoError(err)

	n, err := s.ds.Delete(s.ctx, key)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	ok, err := s.ds.Exists(s.ctx, key)
	s.Require().NoError(err)
	s.False(ok)

	a := s.account("ann", 1)
	n, err = s.ds.Delete(s.ctx, domain.Key{Collection: "accounts", ID: a.ID})
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	_, err = s.ds.Delete(s.ctx, domain.Key{Collection: "nowhere", ID: "x"})
	s.ErrorIs(err, domain.ErrNotMapped)
}

func (s *DatastoreTestSuite) TestDeleteQuery() {
	s.account("ann", 10)
	s.account("bob", 10)
	s.account("cid", 50)

	q := s.ds.Find(Account{}).Filter("balance", 10)
	n, err := s.ds.DeleteQuery(s.ctx, q, domain.WithDeleteMulti(false))
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.ds.DeleteQuery(s.ctx, s.ds.Find(Account{}))
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	_, err = s.ds.DeleteQuery(s.ctx, s.ds.Find(Account{}).Filter("nope", 1))
	var ve *domain.ValidationError
	s.ErrorAs(err, &ve)
}

func (s *DatastoreTestSuite) TestUpdate() {
	s.account("ann", 10)
	s.account("bob", 10)

	ops := s.ds.CreateUpdateOperations(Account{}).Inc("balance", 5)
	res, err := s.ds.Update(s.ctx, s.ds.Find(Account{}), ops)
	s.Require().NoError(err)
	s.Equal(int64(2), res.ModifiedCount)

	var all []Account
	s.Require().NoError(s.ds.Find(Account{}).Order("owner").List(s.ctx, &all))
	s.Require().Len(all, 2)
	for _, a := range all {
		s.Equal(15, a.Balance)
		s.Equal(int64(2), a.Version)
	}

	res, err = s.ds.Update(s.ctx, s.ds.Find(Account{}), ops.Isolated(), domain.WithUpdateMulti(false))
	s.Require().NoError(err)
	s.Equal(int64(1), res.ModifiedCount)

	res, err = s.ds.Update(s.ctx, s.ds.Find(Account{}).Filter("owner", "cid"),
		s.ds.CreateUpdateOperations(Account{}).Set("balance", 1), domain.WithUpsert(true))
	s.Require().NoError(err)
	s.Equal(int64(1), res.UpsertedCount)
}

func (s *DatastoreTestSuite) TestIsolatedOperations() {
	spy := &filterSpy{Database: memdb.New("isolated")}
	ds, err := NewDatastore(spy)
	s.Require().NoError(err)
	a := &Account{Owner: "ann", Balance: 1}
	_, err = ds.Save(s.ctx, a)
	s.Require().NoError(err)

	isolated := func(f bson.D) bool {
		for _, e := range f {
			if e.Key == "$isolated" {
				return true
			}
		}
		return false
	}
	ops := func() *update.Operations {
		return ds.CreateUpdateOperations(Account{}).Inc("balance", 1)
	}

	_, err = ds.Update(s.ctx, ds.Find(Account{}), ops())
	s.Require().NoError(err)
	s.False(isolated(spy.last()))

	_, err = ds.Update(s.ctx, ds.Find(Account{}), ops().Isolated())
	s.Require().NoError(err)
	s.True(isolated(spy.last()))

	s.Require().NoError(ds.Get(s.ctx, a, a.ID))
	_, err = ds.UpdateEntity(s.ctx, a, ops().Isolated())
	s.Require().NoError(err)
	s.True(isolated(spy.last()))

	var got Account
	s.Require().NoError(ds.FindAndModify(s.ctx, ds.Find(Account{}), ops().Isolated(), &got))
	s.True(isolated(spy.last()))
	s.Equal(5, got.Balance)

	s.Require().NoError(ds.FindAndModify(s.ctx, ds.Find(Account{}), ops(), &got))
	s.False(isolated(spy.last()))
}

// Adding the same value to a set twice changes nothing the second time.
func (s *DatastoreTestSuite) TestAddToSetIdempotent() {
	_, err := s.ds.Save(s.ctx, &Person{ID: "p1", Values: []int{1, 2, 3}})
	s.Require().NoError(err)

	q := s.ds.Find(Person{}).Filter("_id", "p1")
	ops := s.ds.CreateUpdateOperations(Person{}).AddToSet("values", 4)

	res, err := s.ds.Update(s.ctx, q, ops)
	s.Require().NoError(err)
	s.Equal(int64(1), res.ModifiedCount)

	res, err = s.ds.Update(s.ctx, q, ops)
	s.Require().NoError(err)
	s.Equal(int64(1), res.MatchedCount)
	s.Zero(res.ModifiedCount)

	var got Person
	s.Require().NoError(s.ds.Get(s.ctx, &got, "p1"))
	s.Equal([]int{1, 2, 3, 4}, got.Values)
}

func (s *DatastoreTestSuite) TestUpdateEntity() {
	a := s.account("ann", 10)
	stale := *a

	ops := s.ds.CreateUpdateOperations(a).Inc("balance", 5)
	res, err := s.ds.UpdateEntity(s.ctx, a, ops)
	s.Require().NoError(err)
	s.Equal(int64(1), res.ModifiedCount)
	s.Equal(int64(2), a.Version)
	s.Equal(int64(2), s.stored(a.ID).Version)

	_, err = s.ds.UpdateEntity(s.ctx, &stale, ops)
	var cme *domain.ConcurrentModificationError
	s.ErrorAs(err, &cme)
	s.Equal(int64(1), stale.Version)

	_, err = s.ds.UpdateEntity(s.ctx, &Account{}, ops)
	s.ErrorIs(err, domain.ErrNoID)
}

func (s *DatastoreTestSuite) TestFindAndModify() {
	s.account("ann", 10)
	s.account("bob", 20)

	var got Account
	err := s.ds.FindAndModify(s.ctx, s.ds.Find(Account{}).Order("-balance"),
		s.ds.CreateUpdateOperations(Account{}).Set("balance", 0), &got)
	s.Require().NoError(err)
	s.Equal("bob", got.Owner)
	s.Zero(got.Balance)
	s.Equal(int64(2), got.Version)

	err = s.ds.FindAndModify(s.ctx, s.ds.Find(Account{}).Filter("owner", "ann"),
		s.ds.CreateUpdateOperations(Account{}).Set("balance", 1), &got, domain.WithReturnNew(false))
	s.Require().NoError(err)
	s.Equal(10, got.Balance)

	err = s.ds.FindAndModify(s.ctx, s.ds.Find(Account{}).Filter("owner", "cid"),
		s.ds.CreateUpdateOperations(Account{}).Set("balance", 1), &got)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *DatastoreTestSuite) TestFindAndDelete() {
	s.account("ann", 10)
	s.account("bob", 20)

	var got Account
	s.Require().NoError(s.ds.FindAndDelete(s.ctx, s.ds.Find(Account{}).Order("balance"), &got))
	s.Equal("ann", got.Owner)

	n, err := s.ds.Count(s.ctx, Account{})
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	err = s.ds.FindAndDelete(s.ctx, s.ds.Find(Account{}).Filter("owner", "ann"), &got)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *DatastoreTestSuite) TestCount() {
	s.account("ann", 10)
	s.account("bob", 20)

	n, err := s.ds.Count(s.ctx, Account{})
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	n, err = s.ds.Count(s.ctx, s.ds.Find(Account{}).Filter("balance >", 15))
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	_, err = s.ds.Count(s.ctx, struct{ A int }{})
	s.Error(err)
}

func (s *DatastoreTestSuite) TestRenamedFields() {
	_, err := s.ds.Save(s.ctx, &Person{ID: "p1", FirstName: "Ann"})
	s.Require().NoError(err)
	_, err = s.ds.Save(s.ctx, &Person{ID: "p2", FirstName: "Bob"})
	s.Require().NoError(err)

	byGoName, err := s.ds.Count(s.ctx, s.ds.Find(Person{}).Filter("firstName", "Ann"))
	s.Require().NoError(err)
	byStoredName, err := s.ds.Count(s.ctx, s.ds.Find(Person{}).Filter("first_name", "Ann"))
	s.Require().NoError(err)
	s.Equal(int64(1), byGoName)
	s.Equal(byGoName, byStoredName)
}

func (s *DatastoreTestSuite) TestEnsureIndexes() {
	s.Require().NoError(s.ds.EnsureIndexes(s.ctx, Account{}))
	s.Require().NoError(s.ds.EnsureIndexes(s.ctx, Account{}))

	s.account("ann", 10)
	_, err := s.ds.Save(s.ctx, &Account{Owner: "ann"})
	s.True(IsDuplicateKey(err))

	s.Error(s.ds.EnsureIndexes(s.ctx, struct{ A int }{}))
}

// A collection capped at one document keeps only the last one saved.
func (s *DatastoreTestSuite) TestCapped() {
	s.Require().NoError(s.ds.Map(LogEntry{}))
	s.Require().NoError(s.ds.EnsureCaps(s.ctx))

	var last *LogEntry
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		last = &LogEntry{Message: msg}
		_, err := s.ds.Save(s.ctx, last)
		s.Require().NoError(err)
	}

	var entries []LogEntry
	s.Require().NoError(s.ds.Find(LogEntry{}).List(s.ctx, &entries))
	s.Equal([]LogEntry{*last}, entries)
}

func (s *DatastoreTestSuite) TestEnsureCapsExisting() {
	log := new(loggerMock)
	log.On("Debug", mock.Anything, mock.Anything).Return().Maybe()
	log.On("Warn", "collection exists and is not capped", mock.Anything).Return().Once()
	ds, err := NewDatastore(s.db, WithLogger(log))
	s.Require().NoError(err)

	s.Require().NoError(s.db.CreateCollection(s.ctx, "log"))
	s.Require().NoError(ds.Map(LogEntry{}))
	s.Require().NoError(ds.EnsureCaps(s.ctx))
	log.AssertExpectations(s.T())
}

func (s *DatastoreTestSuite) TestEnableDocumentValidation() {
	s.Require().NoError(s.ds.Map(Rating{}))
	s.Require().NoError(s.ds.EnableDocumentValidation(s.ctx))

	_, err := s.ds.Save(s.ctx, &Rating{Stars: 0})
	var we mongo.WriteException
	s.Require().ErrorAs(err, &we)
	s.Equal(121, we.WriteErrors[0].Code)

	_, err = s.ds.Save(s.ctx, &Rating{Stars: 3})
	s.NoError(err)

	// existing collections get the validator through collMod
	s.Require().NoError(s.ds.EnableDocumentValidation(s.ctx))
	_, err = s.ds.Save(s.ctx, &Rating{Stars: -1})
	s.ErrorAs(err, &we)
}

func (s *DatastoreTestSuite) TestWriteConcernPrecedence() {
	_, err := s.ds.Save(s.ctx, &Person{ID: "p1"})
	s.Require().NoError(err)
	s.Nil(s.db.last())

	_, err = s.ds.Save(s.ctx, &Audit{Note: "x"})
	s.Require().NoError(err)
	s.Equal(writeconcern.Majority(), s.db.last())

	w1 := &writeconcern.WriteConcern{W: 1}
	_, err = s.ds.Save(s.ctx, &Audit{Note: "y"}, domain.WithWriteConcern(w1))
	s.Require().NoError(err)
	s.Equal(w1, s.db.last())

	journaled := writeconcern.Journaled()
	ds, err := NewDatastore(s.db, WithWriteConcern(journaled))
	s.Require().NoError(err)
	_, err = ds.Save(s.ctx, &Person{ID: "p2"})
	s.Require().NoError(err)
	s.Equal(journaled, s.db.last())

	_, err = ds.Save(s.ctx, &Audit{Note: "z"})
	s.Require().NoError(err)
	s.Equal(writeconcern.Majority(), s.db.last())

	coll, err := ds.Collection(Audit{})
	s.Require().NoError(err)
	s.Equal(writeconcern.Majority(), coll.(*memdb.Collection).WriteConcern())
}

func (s *DatastoreTestSuite) TestLifecycleHooks() {
	h := &Hooked{Name: "x"}
	_, err := s.ds.Save(s.ctx, h)
	s.Require().NoError(err)
	s.Equal([]string{"PrePersist", "PreSave", "PostPersist"}, h.Calls)

	var got Hooked
	s.Require().NoError(s.ds.Get(s.ctx, &got, h.ID))
	s.Equal("saved", got.Stamp)
	s.True(got.Loaded)
}

func (s *DatastoreTestSuite) TestPostPersistErrorKeepsStoredVersion() {
	f := &Fragile{Name: "a", Fail: true}
	_, err := s.ds.Save(s.ctx, f)
	s.ErrorIs(err, errHook)
	s.False(f.ID.IsZero())
	s.Equal(int64(1), f.Version)

	f.Name = "b"
	_, err = s.ds.Save(s.ctx, f)
	s.ErrorIs(err, errHook)
	s.Equal(int64(2), f.Version)

	f.Name = "c"
	_, err = s.ds.Merge(s.ctx, f)
	s.ErrorIs(err, errHook)
	s.Equal(int64(3), f.Version)

	var got Fragile
	s.Require().NoError(s.ds.Get(s.ctx, &got, f.ID))
	s.Equal(f.Version, got.Version)
	s.Equal("c", got.Name)

	f.Fail = false
	f.Name = "d"
	_, err = s.ds.Save(s.ctx, f)
	s.Require().NoError(err)
	s.Equal(int64(4), f.Version)
}

func (s *DatastoreTestSuite) TestBuildersOverUnmappedTypes() {
	q := s.ds.Find(42)
	s.Error(q.Err())
	_, err := q.Count(s.ctx)
	s.Error(err)

	ops := s.ds.CreateUpdateOperations(42)
	s.Error(ops.Err())
	_, err = ops.Render()
	s.Error(err)
}

func (s *DatastoreTestSuite) TestInstrumentation() {
	spans := tracetest.NewSpanRecorder()
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	s.Require().NoError(err)
	ds, err := NewDatastore(s.db,
		WithTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))),
		WithRecorder(rec),
	)
	s.Require().NoError(err)

	a := &Account{Owner: "ann"}
	_, err = ds.Save(s.ctx, a)
	s.Require().NoError(err)
	stale := *a
	_, err = ds.Save(s.ctx, a)
	s.Require().NoError(err)
	_, err = ds.Save(s.ctx, &stale)
	s.Require().Error(err)
	_, err = ds.Count(s.ctx, Account{})
	s.Require().NoError(err)

	var names []string
	for _, span := range spans.Ended() {
		names = append(names, span.Name())
	}
	s.Equal([]string{"gedm.insert", "gedm.save", "gedm.save", "gedm.count"}, names)

	conflicts, err := testutil.GatherAndCount(reg, "gedm_concurrent_modifications_total")
	s.Require().NoError(err)
	s.Equal(1, conflicts)
}

func (s *DatastoreTestSuite) TestCanceledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	a := &Account{Owner: "ann"}
	_, err := s.ds.Save(ctx, a)
	s.ErrorIs(err, context.Canceled)
	s.True(a.ID.IsZero())
	s.Zero(a.Version)
	s.True(errors.Is(s.ds.Get(ctx, &Account{}, primitive.NewObjectID()), context.Canceled))
}
