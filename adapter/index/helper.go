// Package index converts the indexes declared by mapped classes into driver
// index models and creates them.
package index

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/logger"
)

// Wildcard is the key of wildcard indexes. Paths ending with it are never
// validated.
const Wildcard = "$**"

// Helper converts the indexes declared by mapped classes into driver index
// models.
type Helper struct {
	mapper *mapper.Mapper
	log    logger.Logger
}

// NewHelper returns a new Helper.
func NewHelper(m *mapper.Mapper, opts ...Option) *Helper {
	h := &Helper{
		mapper: m,
		log:    logger.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Models returns one index model per index declared by mc: class-level
// indexes first, then field indexes, then the indexes of embedded types
// with their paths prefixed by the embedding field.
func (h *Helper) Models(mc *mapper.MappedClass) ([]mongo.IndexModel, error) {
	var models []mongo.IndexModel
	seen := map[reflect.Type]bool{}
	if err := h.collect(mc, mc, "", seen, &models); err != nil {
		return nil, err
	}
	return models, nil
}

func (h *Helper) collect(root, mc *mapper.MappedClass, prefix string, seen map[reflect.Type]bool, models *[]mongo.IndexModel) error {
	seen[mc.Type] = true
	defer delete(seen, mc.Type)

	add := func(idx domain.Index) error {
		m, err := h.Model(root, prefixed(idx, prefix))
		if err != nil {
			return err
		}
		*models = append(*models, m)
		return nil
	}

	for _, idx := range mc.Indexes {
		if err := add(idx); err != nil {
			return err
		}
	}
	for _, f := range mc.Fields {
		if f.IndexSpec != nil {
			if err := add(*f.IndexSpec); err != nil {
				return err
			}
		}
	}
	for _, f := range mc.Fields {
		if !f.IsEmbedded() || f.IsMap() || !mapper.IsStructType(f.SubType()) || seen[f.SubType()] {
			continue
		}
		sub, err := h.mapper.ClassOf(f.SubType())
		if err != nil {
			return err
		}
		if err := h.collect(root, sub, prefix+f.StoredName+".", seen, models); err != nil {
			return err
		}
	}
	return nil
}

func prefixed(idx domain.Index, prefix string) domain.Index {
	if prefix == "" {
		return idx
	}
	fields := make([]domain.IndexField, len(idx.Fields))
	for i, f := range idx.Fields {
		f.Name = prefix + f.Name
		fields[i] = f
	}
	idx.Fields = fields
	return idx
}

// Model converts a single index over the fields of mc. Field names are
// translated to stored names and validated unless the index disables
// validation or the path is a wildcard.
func (h *Helper) Model(mc *mapper.MappedClass, idx domain.Index) (mongo.IndexModel, error) {
	if len(idx.Fields) == 0 {
		return mongo.IndexModel{}, &domain.ValidationError{Type: mc.Type, Reason: "index has no fields"}
	}

	keys := bson.D{}
	weights := bson.D{}
	for _, f := range idx.Fields {
		if f.Weight != 0 && f.Type != domain.Text {
			return mongo.IndexModel{}, &domain.ValidationError{
				Type:   mc.Type,
				Field:  f.Name,
				Reason: fmt.Sprintf("a weight can only be set on text index fields, found %q", f.Type.Value()),
			}
		}
		validate := !idx.Options.DisableValidation && !strings.HasSuffix(f.Name, Wildcard)
		target, err := h.mapper.ResolvePath(mc, f.Name, validate)
		if err != nil {
			return mongo.IndexModel{}, err
		}
		keys = append(keys, bson.E{Key: target.Path, Value: f.Type.Value()})
		if f.Weight != 0 {
			weights = append(weights, bson.E{Key: target.Path, Value: f.Weight})
		}
	}

	opts := options.Index()
	o := idx.Options
	if o.Name != "" {
		opts.SetName(o.Name)
	}
	if o.Background {
		opts.SetBackground(true)
	}
	if o.Unique {
		opts.SetUnique(true)
	}
	if o.Sparse {
		opts.SetSparse(true)
	}
	if o.ExpireAfterSeconds > 0 {
		opts.SetExpireAfterSeconds(o.ExpireAfterSeconds)
	}
	if o.Collation != nil {
		opts.SetCollation(ConvertCollation(o.Collation))
	}
	if o.PartialFilter != nil {
		opts.SetPartialFilterExpression(o.PartialFilter)
	}
	if o.DefaultLanguage != "" {
		opts.SetDefaultLanguage(o.DefaultLanguage)
	}
	if o.LanguageOverride != "" {
		opts.SetLanguageOverride(o.LanguageOverride)
	}
	if len(weights) > 0 {
		opts.SetWeights(weights)
	}
	return mongo.IndexModel{Keys: keys, Options: opts}, nil
}

// ConvertCollation converts a declared collation into driver options.
func ConvertCollation(c *domain.Collation) *options.Collation {
	if c == nil {
		return nil
	}
	return &options.Collation{
		Locale:          c.Locale,
		CaseLevel:       c.CaseLevel,
		CaseFirst:       c.CaseFirst,
		Strength:        c.Strength,
		NumericOrdering: c.NumericOrdering,
		Alternate:       c.Alternate,
		MaxVariable:     c.MaxVariable,
		Normalization:   c.Normalization,
		Backwards:       c.Backwards,
	}
}

// EnsureIndexes creates the indexes declared by mc on coll. Indexes that
// already exist are left as they are.
func (h *Helper) EnsureIndexes(ctx context.Context, coll domain.Collection, mc *mapper.MappedClass) error {
	models, err := h.Models(mc)
	if err != nil {
		return err
	}
	if len(models) == 0 {
		return nil
	}
	names, err := coll.CreateIndexes(ctx, models)
	if err != nil {
		return fmt.Errorf("creating indexes of %s: %w", mc.Name, err)
	}
	h.log.Debug("indexes ensured", "collection", coll.Name(), "indexes", names)
	return nil
}
