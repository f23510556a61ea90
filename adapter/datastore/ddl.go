package datastore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// EnsureIndexes creates the indexes declared by the types of values, or by
// every mapped entity type when no value is given.
func (ds *Datastore) EnsureIndexes(ctx context.Context, values ...any) error {
	classes, err := ds.classes(values)
	if err != nil {
		return err
	}
	for _, mc := range classes {
		err := ds.inst.Run(ctx, "ensure_indexes", mc.Collection, func(ctx context.Context) error {
			return ds.indexes.EnsureIndexes(ctx, ds.collection(mc.Collection, mc, nil), mc)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// EnsureCaps creates the capped collections declared by mapped entity types.
// Existing collections are left untouched; a warning is logged when one of
// them is not capped.
func (ds *Datastore) EnsureCaps(ctx context.Context) error {
	for _, mc := range ds.entityClasses() {
		if mc.Entity == nil || mc.Entity.Capped == nil {
			continue
		}
		capped := mc.Entity.Capped
		err := ds.inst.Run(ctx, "ensure_caps", mc.Collection, func(ctx context.Context) error {
			exists, err := ds.hasCollection(ctx, mc.Collection, nil)
			if err != nil {
				return err
			}
			if exists {
				isCapped, err := ds.hasCollection(ctx, mc.Collection, &bson.E{Key: "options.capped", Value: true})
				if err != nil {
					return err
				}
				if !isCapped {
					ds.log.Warn("collection exists and is not capped", "collection", mc.Collection,
						"type", mc.Type.String())
				}
				return nil
			}

			size := capped.Size
			if size <= 0 {
				size = domain.DefaultCappedSize
			}
			opts := options.CreateCollection().SetCapped(true).SetSizeInBytes(size)
			if capped.Count > 0 {
				opts.SetMaxDocuments(capped.Count)
			}
			if err := ds.db.CreateCollection(ctx, mc.Collection, opts); err != nil {
				return fmt.Errorf("creating capped collection %s: %w", mc.Collection, err)
			}
			ds.log.Info("capped collection created", "collection", mc.Collection,
				"size", size, "max", capped.Count)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// EnableDocumentValidation installs the validators declared by mapped entity
// types, creating their collections when needed.
func (ds *Datastore) EnableDocumentValidation(ctx context.Context) error {
	for _, mc := range ds.entityClasses() {
		if mc.Entity == nil || mc.Entity.Validation == nil {
			continue
		}
		v := mc.Entity.Validation
		err := ds.inst.Run(ctx, "enable_validation", mc.Collection, func(ctx context.Context) error {
			exists, err := ds.hasCollection(ctx, mc.Collection, nil)
			if err != nil {
				return err
			}
			if !exists {
				opts := options.CreateCollection().SetValidator(v.Validator)
				if v.Level != "" {
					opts.SetValidationLevel(v.Level)
				}
				if v.Action != "" {
					opts.SetValidationAction(v.Action)
				}
				if err := ds.db.CreateCollection(ctx, mc.Collection, opts); err != nil {
					return fmt.Errorf("creating collection %s: %w", mc.Collection, err)
				}
				ds.log.Info("collection created with validator", "collection", mc.Collection)
				return nil
			}

			cmd := bson.D{
				{Key: "collMod", Value: mc.Collection},
				{Key: "validator", Value: v.Validator},
			}
			if v.Level != "" {
				cmd = append(cmd, bson.E{Key: "validationLevel", Value: v.Level})
			}
			if v.Action != "" {
				cmd = append(cmd, bson.E{Key: "validationAction", Value: v.Action})
			}
			if err := ds.db.RunCommand(ctx, cmd).Err(); err != nil {
				return fmt.Errorf("installing validator on %s: %w", mc.Collection, err)
			}
			ds.log.Info("validator installed", "collection", mc.Collection)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// hasCollection reports whether a collection named name, matching the extra
// condition when given, exists.
func (ds *Datastore) hasCollection(ctx context.Context, name string, cond *bson.E) (bool, error) {
	filter := bson.D{{Key: "name", Value: name}}
	if cond != nil {
		filter = append(filter, *cond)
	}
	names, err := ds.db.ListCollectionNames(ctx, filter)
	if err != nil {
		return false, err
	}
	return len(names) > 0, nil
}

// classes returns the classes of values, or every mapped entity class.
func (ds *Datastore) classes(values []any) ([]*mapper.MappedClass, error) {
	if len(values) == 0 {
		return ds.entityClasses(), nil
	}
	res := make([]*mapper.MappedClass, 0, len(values))
	for _, v := range values {
		mc, err := ds.mapper.EntityClass(v)
		if err != nil {
			return nil, err
		}
		res = append(res, mc)
	}
	return res, nil
}

func (ds *Datastore) entityClasses() []*mapper.MappedClass {
	var res []*mapper.MappedClass
	for _, mc := range ds.mapper.Classes() {
		if mc.IsEntity() {
			res = append(res, mc)
		}
	}
	return res
}
