package codec

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Each phase calls the hook declared by the entity first and then every
// interceptor of the mapper, in registration order. Replacement documents
// returned by PreSave and PreLoad are passed on to the next hook.

// PrePersist runs the hooks called before entity is encoded.
func (c *Codec) PrePersist(ctx context.Context, entity any) error {
	if h, ok := entity.(domain.PrePersister); ok {
		if err := h.PrePersist(ctx); err != nil {
			return err
		}
	}
	for _, i := range c.mapper.Interceptors() {
		if err := i.PrePersist(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

// PreSave runs the hooks called after entity was encoded into doc. It
// returns the document to write.
func (c *Codec) PreSave(ctx context.Context, entity any, doc bson.D) (bson.D, error) {
	if h, ok := entity.(domain.PreSaver); ok {
		res, err := h.PreSave(ctx, doc)
		if err != nil {
			return nil, err
		}
		if res != nil {
			doc = res
		}
	}
	for _, i := range c.mapper.Interceptors() {
		res, err := i.PreSave(ctx, entity, doc)
		if err != nil {
			return nil, err
		}
		if res != nil {
			doc = res
		}
	}
	return doc, nil
}

// PostPersist runs the hooks called after doc, encoded from entity, was
// written.
func (c *Codec) PostPersist(ctx context.Context, entity any, doc bson.D) error {
	if h, ok := entity.(domain.PostPersister); ok {
		if err := h.PostPersist(ctx, doc); err != nil {
			return err
		}
	}
	for _, i := range c.mapper.Interceptors() {
		if err := i.PostPersist(ctx, entity, doc); err != nil {
			return err
		}
	}
	return nil
}

// PreLoad runs the hooks called before doc is decoded into entity. It
// returns the document to decode.
func (c *Codec) PreLoad(ctx context.Context, entity any, doc bson.D) (bson.D, error) {
	if h, ok := entity.(domain.PreLoader); ok {
		res, err := h.PreLoad(ctx, doc)
		if err != nil {
			return nil, err
		}
		if res != nil {
			doc = res
		}
	}
	for _, i := range c.mapper.Interceptors() {
		res, err := i.PreLoad(ctx, entity, doc)
		if err != nil {
			return nil, err
		}
		if res != nil {
			doc = res
		}
	}
	return doc, nil
}

// PostLoad runs the hooks called after doc was decoded into entity.
func (c *Codec) PostLoad(ctx context.Context, entity any, doc bson.D) error {
	if h, ok := entity.(domain.PostLoader); ok {
		if err := h.PostLoad(ctx, doc); err != nil {
			return err
		}
	}
	for _, i := range c.mapper.Interceptors() {
		if err := i.PostLoad(ctx, entity, doc); err != nil {
			return err
		}
	}
	return nil
}
