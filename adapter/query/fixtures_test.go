package query

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type Picture struct {
	ID   primitive.ObjectID `gedm:",id"`
	Name string
}

type Address struct {
	Street string
	City   string `gedm:"city_name"`
}

type Person struct {
	ID        primitive.ObjectID `gedm:",id"`
	FirstName string             `gedm:"first_name"`
	Age       int
	Score     float64
	Active    bool
	Tags      []string
	Values    []int
	Addresses []Address
	Home      Address
	Pic       *Picture `gedm:",reference"`
	Owner     domain.Key
	Location  []float64
	Extra     map[string]int
}

func (Person) EntityOptions() domain.EntityOptions {
	return domain.EntityOptions{Collection: "people"}
}
