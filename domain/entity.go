package domain

import (
	"fmt"
	"reflect"

	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Key identifies a persisted entity without holding the entity itself. It is
// used by reference fields and for cross-entity lookups.
type Key struct {
	// Collection is the collection the entity is stored in.
	Collection string
	// Type is the mapped Go type of the entity. It may be nil for keys
	// read from fields that only carry a collection name.
	Type reflect.Type
	// ID is the identifier value. A key with a nil ID cannot be used in
	// lookups.
	ID any
}

// Equal reports whether two keys point to the same entity.
func (k Key) Equal(o Key) bool {
	if k.Collection != o.Collection || k.Type != o.Type {
		return false
	}
	return reflect.DeepEqual(k.ID, o.ID)
}

// String implements [fmt.Stringer].
func (k Key) String() string {
	name := "<nil>"
	if k.Type != nil {
		name = k.Type.String()
	}
	return fmt.Sprintf("Key{%s, %s, %v}", k.Collection, name, k.ID)
}

// IDKind tells the [IDGenerator] what kind of identifier a mapped type uses.
type IDKind uint8

// Identifier kinds that can be generated automatically.
const (
	IDKindNone IDKind = iota
	IDKindObjectID
	IDKindString
)

// EntityOptions carries the collection-level mapping options of an entity.
type EntityOptions struct {
	// Collection is the collection name. Defaults to the type name.
	Collection string
	// NoDiscriminator disables writing the discriminator field.
	NoDiscriminator bool
	// Discriminator overrides the discriminator value, which defaults to
	// the fully qualified type name.
	Discriminator string
	// Capped makes the collection capped when created by the datastore.
	Capped *CappedAt
	// WriteConcern overrides the datastore default for this entity.
	WriteConcern *writeconcern.WriteConcern
	// Validation installs a document validator on the collection.
	Validation *Validation
}

// EmbeddedOptions carries the options of an embedded-only type.
type EmbeddedOptions struct {
	// Name is not allowed for embedded types and fails the mapping when
	// set. Embedded values are stored under the name of the field holding
	// them.
	Name string
	// NoDiscriminator disables writing the discriminator field for values
	// of this type stored in polymorphic fields.
	NoDiscriminator bool
	// Discriminator overrides the discriminator value.
	Discriminator string
}

// DefaultCappedSize is the size used for capped collections declaring only a
// document count.
const DefaultCappedSize int64 = 1024 * 1024

// CappedAt bounds a capped collection.
type CappedAt struct {
	// Count is the maximum number of documents. Zero means unbounded.
	Count int64
	// Size is the maximum size in bytes. Zero means [DefaultCappedSize].
	Size int64
}

// Validation is a collection document validator.
type Validation struct {
	// Validator is a match expression every written document must satisfy.
	Validator any
	// Level is either "strict", "moderate" or "off". Defaults to "strict".
	Level string
	// Action is either "error" or "warn". Defaults to "error".
	Action string
}

// IndexType is the value stored for a field in an index key document.
type IndexType string

// Supported index field types.
const (
	Asc         IndexType = "asc"
	Desc        IndexType = "desc"
	Text        IndexType = "text"
	Hashed      IndexType = "hashed"
	Geo2D       IndexType = "2d"
	Geo2DSphere IndexType = "2dsphere"
)

// Value returns the value stored in the key document for this type.
func (t IndexType) Value() any {
	switch t {
	case Desc:
		return int32(-1)
	case "", Asc:
		return int32(1)
	default:
		return string(t)
	}
}

// Index declares an index on one or more fields.
type Index struct {
	Fields  []IndexField
	Options IndexOptions
}

// IndexField is one field of an [Index].
type IndexField struct {
	// Name is the field path, using either Go or stored names.
	Name string
	// Type is the index type. Defaults to [Asc].
	Type IndexType
	// Weight is the text index weight. Only valid for [Text] fields.
	Weight int32
}

// IndexOptions are the options of an [Index].
type IndexOptions struct {
	Name       string
	Background bool
	Unique     bool
	Sparse     bool
	// ExpireAfterSeconds creates a TTL index when positive.
	ExpireAfterSeconds int32
	Collation          *Collation
	// PartialFilter is a match expression limiting the indexed documents.
	PartialFilter    any
	DefaultLanguage  string
	LanguageOverride string
	// DisableValidation skips field path validation, used for wildcard and
	// dynamic paths.
	DisableValidation bool
}

// Collation holds locale-aware comparison options.
type Collation struct {
	Locale          string
	CaseLevel       bool
	CaseFirst       string
	Strength        int
	NumericOrdering bool
	Alternate       string
	MaxVariable     string
	Normalization   bool
	Backwards       bool
}
