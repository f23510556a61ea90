package memdb

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/modifier"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// Server error codes reported by the in-memory database.
const (
	CodeBadValue                  = 2
	CodeTypeMismatch              = 14
	CodeNamespaceNotFound         = 26
	CodeNamespaceExists           = 48
	CodeCommandNotFound           = 59
	CodeImmutableField            = 66
	CodeInvalidOptions            = 72
	CodeIndexOptionsConflict      = 85
	CodeIndexKeySpecsConflict     = 86
	CodeDocumentValidationFailure = 121
	CodeDuplicateKey              = 11000
)

var (
	// ErrUpdateOperators is returned when an update document holds fields
	// that are not update operators.
	ErrUpdateOperators = errors.New("update document must contain key beginning with '$'")
	// ErrReplacementOperators is returned when a replacement document holds
	// update operators.
	ErrReplacementOperators = errors.New("replacement document cannot contain keys beginning with '$'")
	// ErrEmptyUpdate is returned for update documents without fields.
	ErrEmptyUpdate = errors.New("update document must have at least one element")

	errValidation = errors.New("Document failed validation")
)

// dupKeyError is returned by an index when a unique key is already taken.
type dupKeyError struct {
	index string
	key   bson.D
}

func (e *dupKeyError) Error() string {
	key, err := bson.MarshalExtJSON(e.key, false, false)
	if err != nil {
		return fmt.Sprintf("index: %s dup key: %v", e.index, e.key)
	}
	return fmt.Sprintf("index: %s dup key: %s", e.index, key)
}

func commandError(code int32, name string, err error) error {
	return mongo.CommandError{Code: code, Name: name, Message: err.Error(), Wrapped: err}
}

// filterError converts a filter compilation failure. Unsupported features
// are returned as they are so callers can test for [domain.ErrUnsupported].
func filterError(err error) error {
	if errors.Is(err, domain.ErrUnsupported) {
		return err
	}
	return commandError(CodeBadValue, "BadValue", err)
}

func writeException(index int, code int, msg string) error {
	return mongo.WriteException{
		WriteErrors: mongo.WriteErrors{{Index: index, Code: code, Message: msg}},
	}
}

// writeError converts an error found while writing the document at index of
// a write batch into the error the server would report.
func (s *store) writeError(index int, err error) error {
	var dup *dupKeyError
	var fieldType modifier.ErrModFieldType
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrUnsupported):
		return err
	case errors.As(err, &dup):
		return writeException(index, CodeDuplicateKey, fmt.Sprintf(
			"E11000 duplicate key error collection: %s %s", s.ns, dup.Error(),
		))
	case errors.Is(err, errValidation):
		return writeException(index, CodeDocumentValidationFailure, err.Error())
	case errors.Is(err, domain.ErrImmutableID):
		return writeException(index, CodeImmutableField, err.Error())
	case errors.As(err, &fieldType):
		return writeException(index, CodeTypeMismatch, err.Error())
	}
	var we mongo.WriteException
	var ce mongo.CommandError
	if errors.As(err, &we) || errors.As(err, &ce) {
		return err
	}
	return writeException(index, CodeBadValue, err.Error())
}
