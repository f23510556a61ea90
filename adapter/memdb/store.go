package memdb

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Validation levels and actions accepted by collections with a validator.
const (
	ValidationStrict   = "strict"
	ValidationModerate = "moderate"
	ValidationOff      = "off"
	ActionError        = "error"
	ActionWarn         = "warn"
)

// store holds the documents of a collection in insertion order, which is
// also the natural order returned by unsorted queries.
type store struct {
	db      *Database
	name    string
	ns      string
	docs    []domain.Document
	indexes []*index

	capped  bool
	maxDocs int64
	maxSize int64

	validator        domain.Document
	validationLevel  string
	validationAction string
}

func (db *Database) newStore(name string, opts *options.CreateCollectionOptions) (*store, error) {
	s := &store{
		db:               db,
		name:             name,
		ns:               db.name + "." + name,
		validationLevel:  ValidationStrict,
		validationAction: ActionError,
	}
	if opts != nil {
		if opts.Capped != nil && *opts.Capped {
			if opts.SizeInBytes == nil || *opts.SizeInBytes <= 0 {
				return nil, commandError(CodeInvalidOptions, "InvalidOptions",
					errors.New("the 'size' field is required when 'capped' is true"))
			}
			s.capped, s.maxSize = true, *opts.SizeInBytes
			if opts.MaxDocuments != nil {
				s.maxDocs = *opts.MaxDocuments
			}
		}
		if err := s.setValidation(opts.Validator, opts.ValidationLevel, opts.ValidationAction); err != nil {
			return nil, err
		}
	}

	id, err := db.newIndex(mongo.IndexModel{
		Keys:    bson.D{{Key: data.IDKey, Value: int32(1)}},
		Options: options.Index().SetName(idIndexName).SetUnique(true),
	})
	if err != nil {
		return nil, err
	}
	s.indexes = []*index{id}
	return s, nil
}

func (s *store) setValidation(validator any, level, action *string) error {
	if validator != nil {
		v, err := s.db.docFac(validator)
		if err != nil {
			return commandError(CodeBadValue, "BadValue", fmt.Errorf("validator: %w", err))
		}
		if _, err := s.db.compile(v); err != nil {
			return err
		}
		s.validator = v
		if v.Len() == 0 {
			s.validator = nil
		}
	}
	if level != nil {
		switch *level {
		case ValidationStrict, ValidationModerate, ValidationOff:
			s.validationLevel = *level
		default:
			return commandError(CodeBadValue, "BadValue", fmt.Errorf("invalid validation level %q", *level))
		}
	}
	if action != nil {
		switch *action {
		case ActionError, ActionWarn:
			s.validationAction = *action
		default:
			return commandError(CodeBadValue, "BadValue", fmt.Errorf("invalid validation action %q", *action))
		}
	}
	return nil
}

// options returns the collection options listed by the server.
func (s *store) options() bson.D {
	opts := bson.D{}
	if s.capped {
		opts = append(opts, bson.E{Key: "capped", Value: true}, bson.E{Key: "size", Value: s.maxSize})
		if s.maxDocs > 0 {
			opts = append(opts, bson.E{Key: "max", Value: s.maxDocs})
		}
	}
	if s.validator != nil {
		opts = append(opts,
			bson.E{Key: "validator", Value: data.ToBSON(s.validator)},
			bson.E{Key: "validationLevel", Value: s.validationLevel},
			bson.E{Key: "validationAction", Value: s.validationAction},
		)
	}
	return opts
}

// validate checks newDoc against the collection validator. oldDoc is the
// stored version of an updated document and nil for inserts.
func (s *store) validate(newDoc, oldDoc domain.Document) error {
	if s.validator == nil || s.validationLevel == ValidationOff {
		return nil
	}
	ok, err := s.db.matcher.Match(newDoc, s.validator)
	if err != nil || ok {
		return err
	}
	if oldDoc != nil && s.validationLevel == ValidationModerate {
		valid, err := s.db.matcher.Match(oldDoc, s.validator)
		if err != nil || !valid {
			return err
		}
	}
	if s.validationAction == ActionWarn {
		s.db.log.Warn("document failed validation", "ns", s.ns, "_id", newDoc.ID())
		return nil
	}
	return errValidation
}

func (s *store) position(doc domain.Document) int {
	return slices.IndexFunc(s.docs, func(d domain.Document) bool { return d == doc })
}

func (s *store) insert(doc domain.Document, bypass bool) error {
	if !bypass {
		if err := s.validate(doc, nil); err != nil {
			return err
		}
	}
	for n, i := range s.indexes {
		if err := i.insert(doc); err != nil {
			for _, prev := range s.indexes[:n] {
				_ = prev.remove(doc)
			}
			return err
		}
	}
	s.docs = append(s.docs, doc)
	return s.evict()
}

// replace swaps a stored document for its new version keeping its position.
func (s *store) replace(oldDoc, newDoc domain.Document, bypass bool) error {
	pos := s.position(oldDoc)
	if pos < 0 {
		return fmt.Errorf("document %v is not stored in %s", oldDoc.ID(), s.ns)
	}
	if !bypass {
		if err := s.validate(newDoc, oldDoc); err != nil {
			return err
		}
	}
	for n, i := range s.indexes {
		if err := i.update(oldDoc, newDoc); err != nil {
			for _, prev := range s.indexes[:n] {
				_ = prev.update(newDoc, oldDoc)
			}
			return err
		}
	}
	s.docs[pos] = newDoc
	return nil
}

func (s *store) remove(doc domain.Document) error {
	pos := s.position(doc)
	if pos < 0 {
		return nil
	}
	var errs []error
	for _, i := range s.indexes {
		if err := i.remove(doc); err != nil {
			errs = append(errs, err)
		}
	}
	s.docs = slices.Delete(s.docs, pos, pos+1)
	return errors.Join(errs...)
}

// evict drops the oldest documents of a capped collection until it fits its
// limits again. The newest document is always kept.
func (s *store) evict() error {
	if !s.capped {
		return nil
	}
	for len(s.docs) > 1 {
		if s.maxDocs > 0 && int64(len(s.docs)) > s.maxDocs {
			if err := s.remove(s.docs[0]); err != nil {
				return err
			}
			continue
		}
		size, err := s.dataSize()
		if err != nil {
			return err
		}
		if size <= s.maxSize {
			return nil
		}
		if err := s.remove(s.docs[0]); err != nil {
			return err
		}
	}
	return nil
}

func (s *store) dataSize() (int64, error) {
	var size int64
	for _, d := range s.docs {
		b, err := bson.Marshal(d)
		if err != nil {
			return 0, err
		}
		size += int64(len(b))
	}
	return size, nil
}

// addIndexes builds every index over the stored documents and keeps them
// only if all of them could be built.
func (s *store) addIndexes(idx ...*index) error {
	for _, i := range idx {
		if err := i.reset(s.docs...); err != nil {
			var dup *dupKeyError
			if errors.As(err, &dup) {
				return commandError(CodeDuplicateKey, "DuplicateKey", fmt.Errorf(
					"E11000 duplicate key error collection: %s %s", s.ns, dup.Error(),
				))
			}
			return err
		}
	}
	s.indexes = append(s.indexes, idx...)
	return nil
}

// sameDoc reports whether a and b encode to the same bytes, so reordered
// fields count as a change.
func sameDoc(a, b domain.Document) bool {
	ba, errA := bson.Marshal(a)
	bb, errB := bson.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ba, bb)
}
