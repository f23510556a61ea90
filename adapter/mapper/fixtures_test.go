package mapper

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type Audit struct {
	CreatedBy string
	CreatedAt time.Time `gedm:"created_at"`
}

type Address struct {
	Street string `gedm:"street,index"`
	City   string
}

type Picture struct {
	ID   primitive.ObjectID `gedm:",id"`
	Name string
}

type Shape interface {
	Area() float64
}

type Circle struct {
	Radius float64
}

func (c Circle) Area() float64 { return 3 * c.Radius * c.Radius }

type Square struct {
	Side float64
}

func (s *Square) Area() float64 { return s.Side * s.Side }

type Person struct {
	Audit
	ID         primitive.ObjectID `gedm:",id"`
	Version    int64              `gedm:",version"`
	FirstName  string             `gedm:"first_name,alsoload=fname|given"`
	LastName   string
	Age        int     `gedm:",index=desc,unique,indexname=age_idx"`
	Addresses  []Address
	Home       *Address
	Pic        *Picture `gedm:"pic,reference"`
	PicIDs     []*Picture `gedm:",idonly"`
	Tags       map[string]string
	Scores     map[string][]int
	Shape      Shape
	Owner      domain.Key
	Ignored    string `gedm:"-"`
	Computed   int    `gedm:",notsaved"`
	unexported int
}

func (Person) EntityOptions() domain.EntityOptions {
	return domain.EntityOptions{Collection: "people"}
}

type Badge struct {
	Label string
}

func (Badge) EmbeddedOptions() domain.EmbeddedOptions {
	return domain.EmbeddedOptions{Discriminator: "badge"}
}

type Node struct {
	ID       string `gedm:"_id"`
	Children []Node
	Parent   *Node `gedm:",reference"`
}

type NoID struct {
	Name string
}

type TwoIDs struct {
	A string `gedm:",id"`
	B string `gedm:",id"`
}

type EmbeddedWithID struct {
	ID string `gedm:",id"`
}

func (EmbeddedWithID) EmbeddedOptions() domain.EmbeddedOptions { return domain.EmbeddedOptions{} }

type NamedEmbedded struct {
	X int
}

func (NamedEmbedded) EmbeddedOptions() domain.EmbeddedOptions {
	return domain.EmbeddedOptions{Name: "named"}
}

type TwoVersions struct {
	ID string `gedm:",id"`
	A  int    `gedm:",version"`
	B  int    `gedm:",version"`
}

type StringVersion struct {
	ID string `gedm:",id"`
	V  string `gedm:",version"`
}

type BadMapKey struct {
	ID string `gedm:",id"`
	M  map[float64]string
}

type BadRef struct {
	ID  string `gedm:",id"`
	Ref *NoID  `gedm:",reference"`
}

type DupNames struct {
	ID string `gedm:",id"`
	A  string `gedm:"x"`
	B  string `gedm:"x"`
}

type IDClash struct {
	ID    string `gedm:",id"`
	Other string `gedm:"_id"`
}

type BadTag struct {
	ID string `gedm:",id,frobnicate"`
}

type WithBadField struct {
	ID    string `gedm:",id"`
	Inner TwoIDs
}

type Shadowing struct {
	Audit
	ID        string `gedm:",id"`
	CreatedBy int
}

type PtrVersion struct {
	ID      string `gedm:",id"`
	Version *uint32 `gedm:",version"`
}
