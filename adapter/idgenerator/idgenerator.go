// Package idgenerator contains the default [domain.IDGenerator] implementation.
// Object identifiers come from the driver and string identifiers are random
// UUIDs.
package idgenerator

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// IDGenerator implements [domain.IDGenerator].
type IDGenerator struct {
	reader io.Reader
	clock  domain.TimeGetter
}

// NewIDGenerator returns the default [domain.IDGenerator].
func NewIDGenerator(opts ...Option) domain.IDGenerator {
	i := IDGenerator{
		reader: rand.Reader,
	}
	for _, opt := range opts {
		opt(&i)
	}
	return &i
}

// GenerateID implements [domain.IDGenerator].
func (i *IDGenerator) GenerateID(kind domain.IDKind) (any, error) {
	switch kind {
	case domain.IDKindObjectID:
		if i.clock != nil {
			return primitive.NewObjectIDFromTimestamp(i.clock.GetTime()), nil
		}
		return primitive.NewObjectID(), nil
	case domain.IDKindString:
		id, err := uuid.NewRandomFromReader(i.reader)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	}
	return nil, fmt.Errorf("%w: cannot generate identifier of kind %d", domain.ErrUnsupported, kind)
}
