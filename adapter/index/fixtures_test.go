package index

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type Writer struct {
	ID   primitive.ObjectID `gedm:",id"`
	Name string
}

type Tag struct {
	Label string `gedm:",index"`
	Code  string
}

func (Tag) Indexes() []domain.Index {
	return []domain.Index{{Fields: []domain.IndexField{{Name: "code"}}}}
}

type Article struct {
	ID      primitive.ObjectID `gedm:",id"`
	Title   string             `gedm:"title,index=text,weight=5"`
	Body    string
	Slug    string    `gedm:"slug,unique,indexname=slug_idx"`
	Created time.Time `gedm:",expire=3600"`
	Author  *Writer   `gedm:",reference"`
	Tags    []Tag
	Main    Tag
	ByName  map[string]Tag
}

func (Article) Indexes() []domain.Index {
	return []domain.Index{
		{
			Fields: []domain.IndexField{
				{Name: "title", Type: domain.Text, Weight: 10},
				{Name: "Body", Type: domain.Text, Weight: 2},
			},
			Options: domain.IndexOptions{Name: "search", DefaultLanguage: "english", LanguageOverride: "lang"},
		},
		{
			Fields: []domain.IndexField{{Name: "slug"}, {Name: "created", Type: domain.Desc}},
			Options: domain.IndexOptions{
				Sparse:        true,
				Background:    true,
				Collation:     &domain.Collation{Locale: "en", Strength: 2},
				PartialFilter: bson.D{{Key: "slug", Value: bson.D{{Key: "$exists", Value: true}}}},
			},
		},
	}
}

type TreeNode struct {
	Label    string `gedm:",index"`
	Children []TreeNode
}

type Forest struct {
	ID   string `gedm:",id"`
	Root TreeNode
}

type Plain struct {
	ID   string `gedm:",id"`
	Name string
}

type BadWeight struct {
	ID   string `gedm:",id"`
	Name string `gedm:",index,weight=2"`
}
