// Package decoder contains the default [domain.Decoder] implementation, used
// by the codec to convert stored leaf values into Go field types.
package decoder

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

var (
	timeType     = reflect.TypeFor[time.Time]()
	dateTimeType = reflect.TypeFor[primitive.DateTime]()
	objectIDType = reflect.TypeFor[primitive.ObjectID]()
	binaryType   = reflect.TypeFor[primitive.Binary]()
	bsonDType    = reflect.TypeFor[bson.D]()
)

// Decoder implements domain.Decoder.
type Decoder struct {
	hook mapstructure.DecodeHookFunc
}

// NewDecoder returns a new implementation of domain.Decoder.
func NewDecoder() domain.Decoder {
	return &Decoder{
		hook: mapstructure.ComposeDecodeHookFunc(
			dateTimeHook,
			timeHook,
			binaryHook,
			objectIDHook,
			documentHook,
		),
	}
}

// Decode implements domain.Decoder.
func (d *Decoder) Decode(source any, target any) error {
	if target == nil {
		return domain.ErrTargetNil
	}

	value := reflect.ValueOf(target)
	if value.Kind() != reflect.Pointer {
		return domain.ErrNonPointer
	}
	if value.IsNil() {
		return domain.ErrTargetNil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: d.hook,
		TagName:    "gedm",
		Result:     target,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(source); err != nil {
		errDec := domain.DecodeError{Source: source, Target: value.Type().Elem()}
		return fmt.Errorf("%w: %w", errDec, err)
	}
	return nil
}

func dateTimeHook(from, to reflect.Type, data any) (any, error) {
	if from != dateTimeType || to != timeType {
		return data, nil
	}
	return data.(primitive.DateTime).Time().UTC(), nil
}

func timeHook(from, to reflect.Type, data any) (any, error) {
	if from != timeType || to != dateTimeType {
		return data, nil
	}
	return primitive.NewDateTimeFromTime(data.(time.Time)), nil
}

func binaryHook(from, to reflect.Type, data any) (any, error) {
	if from != binaryType || to.Kind() != reflect.Slice || to.Elem().Kind() != reflect.Uint8 {
		return data, nil
	}
	return data.(primitive.Binary).Data, nil
}

func objectIDHook(from, to reflect.Type, data any) (any, error) {
	switch {
	case from.Kind() == reflect.String && to == objectIDType:
		return primitive.ObjectIDFromHex(reflect.ValueOf(data).String())
	case from == objectIDType && to.Kind() == reflect.String:
		return data.(primitive.ObjectID).Hex(), nil
	}
	return data, nil
}

func documentHook(from, to reflect.Type, data any) (any, error) {
	if from != bsonDType || to.Kind() != reflect.Map {
		return data, nil
	}
	return toMap(data.(bson.D)), nil
}

func toMap(d bson.D) map[string]any {
	m := make(map[string]any, len(d))
	for _, e := range d {
		m[e.Key] = toMapValue(e.Value)
	}
	return m
}

func toMapValue(v any) any {
	switch t := v.(type) {
	case bson.D:
		return toMap(t)
	case bson.A:
		res := make([]any, len(t))
		for n, i := range t {
			res[n] = toMapValue(i)
		}
		return res
	default:
		return v
	}
}

