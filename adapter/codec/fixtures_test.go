package codec

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type status string

type Address struct {
	Street string
	City   string `gedm:"city"`
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

type Author struct {
	ID   primitive.ObjectID `gedm:",id"`
	Name string
}

type Book struct {
	ID        primitive.ObjectID `gedm:",id"`
	Version   int64              `gedm:",version"`
	Title     string
	Status    status
	Published time.Time
	Pages     *int
	Tags      []string
	Ratings   map[string]int
	Address   Address
	Shapes    []Shape
	Author    *Author  `gedm:",reference"`
	Editors   []Author `gedm:",idonly"`
	Owner     domain.Key
	Extra     any
	Pattern   *regexp.Regexp
	Cache     string `gedm:",notsaved"`
	Old       string `gedm:"old,alsoload=legacy"`
}

type Plain struct {
	ID   string `gedm:"_id"`
	Name string
}

func (Plain) EntityOptions() domain.EntityOptions {
	return domain.EntityOptions{Collection: "plain", NoDiscriminator: true}
}

type Node struct {
	ID     string `gedm:"_id"`
	Name   string
	Parent *Node `gedm:",reference"`
}

func (Node) EntityOptions() domain.EntityOptions {
	return domain.EntityOptions{Collection: "nodes", NoDiscriminator: true}
}

type Hooked struct {
	ID    string `gedm:"_id"`
	Name  string
	Stamp string

	calls []string
}

func (Hooked) EntityOptions() domain.EntityOptions {
	return domain.EntityOptions{NoDiscriminator: true}
}

func (h *Hooked) PrePersist(context.Context) error {
	h.calls = append(h.calls, "PrePersist")
	h.Stamp = "stamped"
	return nil
}

func (h *Hooked) PreSave(_ context.Context, doc bson.D) (bson.D, error) {
	h.calls = append(h.calls, "PreSave")
	return append(doc, bson.E{Key: "saved", Value: true}), nil
}

func (h *Hooked) PostPersist(context.Context, bson.D) error {
	h.calls = append(h.calls, "PostPersist")
	return nil
}

func (h *Hooked) PreLoad(_ context.Context, doc bson.D) (bson.D, error) {
	h.calls = append(h.calls, "PreLoad")
	return append(doc, bson.E{Key: "stamp", Value: "loaded"}), nil
}

func (h *Hooked) PostLoad(context.Context, bson.D) error {
	h.calls = append(h.calls, "PostLoad")
	return nil
}

type recordingInterceptor struct {
	domain.NopInterceptor
	seen []bson.D
}

func (r *recordingInterceptor) PreSave(_ context.Context, _ any, doc bson.D) (bson.D, error) {
	r.seen = append(r.seen, doc)
	return nil, nil
}

func (r *recordingInterceptor) PreLoad(_ context.Context, _ any, doc bson.D) (bson.D, error) {
	r.seen = append(r.seen, doc)
	return doc, nil
}
