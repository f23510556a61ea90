package update

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type Phone struct {
	Kind   string
	Number string `gedm:"num"`
}

type Group struct {
	ID   primitive.ObjectID `gedm:",id"`
	Name string
}

type Contact struct {
	ID      primitive.ObjectID `gedm:",id"`
	Version int64              `gedm:",version"`
	Name    string
	Age     int
	Score   float64
	Tags    []string
	Phones  []Phone
	Main    Phone `gedm:"main_phone"`
	Group   *Group `gedm:",reference"`
	Seen    primitive.DateTime
}

func (Contact) EntityOptions() domain.EntityOptions {
	return domain.EntityOptions{Collection: "contacts"}
}

type Counter struct {
	ID    string `gedm:",id"`
	Count int64
}
