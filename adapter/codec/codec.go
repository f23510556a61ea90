// Package codec converts mapped entities to BSON documents and back, calling
// lifecycle hooks and interceptors around each conversion.
package codec

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/decoder"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/mapper"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/logger"
)

// Codec encodes and decodes entities described by a [mapper.Mapper].
type Codec struct {
	mapper   *mapper.Mapper
	decoder  domain.Decoder
	resolver domain.ReferenceResolver
	log      logger.Logger
}

// NewCodec returns a new Codec.
func NewCodec(m *mapper.Mapper, opts ...Option) *Codec {
	c := &Codec{
		mapper:  m,
		decoder: decoder.NewDecoder(),
		log:     logger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mapper returns the mapper the codec reads classes from.
func (c *Codec) Mapper() *mapper.Mapper {
	return c.mapper
}

// Encode converts entity into a document, calling the PrePersist and PreSave
// hooks. If entity is not a pointer, hooks run on a copy.
func (c *Codec) Encode(ctx context.Context, entity any) (bson.D, error) {
	v, mc, err := c.mapper.Entity(entity)
	if err != nil {
		return nil, err
	}

	ptr := entity
	if reflect.TypeOf(entity).Kind() != reflect.Pointer {
		cp := reflect.New(v.Type())
		cp.Elem().Set(v)
		ptr, v = cp.Interface(), cp.Elem()
	}

	if err := c.PrePersist(ctx, ptr); err != nil {
		return nil, err
	}

	doc, err := c.encodeStruct(v, mc, mc.UsesDiscriminator())
	if err != nil {
		return nil, err
	}

	return c.PreSave(ctx, ptr, doc)
}

// Decode decodes source into the value pointed by target, calling the
// PreLoad and PostLoad hooks. Source may be a bson.D, bson.M, bson.Raw or a
// map with string keys. Targets pointing to an interface are resolved
// through the discriminator.
func (c *Codec) Decode(ctx context.Context, source any, target any) error {
	if target == nil {
		return domain.ErrTargetNil
	}
	tv := reflect.ValueOf(target)
	if tv.Kind() != reflect.Pointer {
		return domain.ErrNonPointer
	}
	if tv.IsNil() {
		return domain.ErrTargetNil
	}

	doc, ok := toD(source)
	if !ok {
		return domain.DecodeError{Source: source, Target: tv.Type().Elem()}
	}

	ev := tv.Elem()
	if ev.Kind() == reflect.Interface {
		mc, err := c.classFor(doc, ev.Type())
		if err != nil {
			return err
		}
		ptr := reflect.New(mc.Type)
		if err := c.decodeEntity(ctx, doc, ptr.Interface(), mc); err != nil {
			return err
		}
		return setImplementation(ev, ptr, mc)
	}

	mc, err := c.mapper.ClassOf(ev.Type())
	if err != nil {
		return err
	}
	return c.decodeEntity(ctx, doc, target, mc)
}

func (c *Codec) decodeEntity(ctx context.Context, doc bson.D, target any, mc *mapper.MappedClass) error {
	ev := reflect.ValueOf(target).Elem()
	ev.SetZero()

	doc, err := c.PreLoad(ctx, target, doc)
	if err != nil {
		return err
	}
	if err := c.decodeStruct(ctx, doc, ev, mc, ""); err != nil {
		return err
	}
	return c.PostLoad(ctx, target, doc)
}

func setImplementation(dst reflect.Value, ptr reflect.Value, mc *mapper.MappedClass) error {
	switch {
	case mc.Type.AssignableTo(dst.Type()):
		dst.Set(ptr.Elem())
	case ptr.Type().AssignableTo(dst.Type()):
		dst.Set(ptr)
	default:
		return &domain.MappingError{
			Type:   mc.Type,
			Reason: fmt.Sprintf("type does not implement %s", dst.Type()),
		}
	}
	return nil
}

// classFor returns the class a document stored in a value of interface type
// t decodes into.
func (c *Codec) classFor(doc bson.D, t reflect.Type) (*mapper.MappedClass, error) {
	if disc, ok := lookup(doc, c.mapper.DiscriminatorKey()); ok {
		name, _ := disc.(string)
		mc, found := c.mapper.ByDiscriminator(name)
		if !found {
			return nil, &domain.MappingError{
				Type:   t,
				Reason: fmt.Sprintf("no mapped type uses the discriminator %q", name),
			}
		}
		return mc, nil
	}
	return c.mapper.Implementation(t)
}

func lookup(doc bson.D, key string) (any, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// toD normalizes the document representations accepted by the codec.
func toD(v any) (bson.D, bool) {
	switch t := v.(type) {
	case bson.D:
		return t, true
	case bson.Raw:
		var d bson.D
		if err := bson.Unmarshal(t, &d); err != nil {
			return nil, false
		}
		return d, true
	case bson.M:
		return mapToD(t), true
	case map[string]any:
		return mapToD(t), true
	default:
		return nil, false
	}
}

func mapToD(m map[string]any) bson.D {
	d := make(bson.D, 0, len(m))
	for k, v := range m {
		d = append(d, bson.E{Key: k, Value: v})
	}
	slices.SortFunc(d, func(a, b bson.E) int { return cmp.Compare(a.Key, b.Key) })
	return d
}
