package mapper

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

type refCheck struct {
	owner  *MappedClass
	field  *MappedField
	target *MappedClass
}

// builder maps a type and every struct type reachable from it. Nothing is
// cached unless the whole graph maps successfully.
type builder struct {
	m       *Mapper
	pending map[reflect.Type]*MappedClass
	order   []*MappedClass
	refs    []refCheck
}

func (b *builder) class(t reflect.Type) (*MappedClass, error) {
	if mc, ok := b.m.classes[t]; ok {
		return mc, nil
	}
	if mc, ok := b.pending[t]; ok {
		return mc, nil
	}
	if t.Kind() != reflect.Struct || IsLeafType(t) {
		return nil, &domain.MappingError{Type: t, Reason: "only struct types can be mapped"}
	}
	if t.Name() == "" {
		return nil, &domain.MappingError{Type: t, Reason: "anonymous struct types cannot be mapped"}
	}

	mc := &MappedClass{
		Type:     t,
		Name:     t.Name(),
		byStored: make(map[string]*MappedField),
		byGo:     make(map[string]*MappedField),
		byCamel:  make(map[string]*MappedField),
	}
	b.pending[t] = mc
	b.order = append(b.order, mc)

	if err := b.describe(mc); err != nil {
		return nil, err
	}
	if err := b.fields(mc, t, nil); err != nil {
		return nil, err
	}
	if err := b.validate(mc); err != nil {
		return nil, err
	}
	return mc, nil
}

func (b *builder) describe(mc *MappedClass) error {
	zero := reflect.New(mc.Type).Interface()
	mc.Discriminator = mc.Type.PkgPath() + "." + mc.Type.Name()

	ent, isEntity := zero.(domain.EntityDescriber)
	emb, isEmbedded := zero.(domain.EmbeddedDescriber)
	if isEntity && isEmbedded {
		return &domain.MappingError{Type: mc.Type, Reason: "a type cannot be both an entity and an embedded type"}
	}

	if isEmbedded {
		opts := emb.EmbeddedOptions()
		if opts.Name != "" {
			return &domain.MappingError{
				Type:   mc.Type,
				Reason: fmt.Sprintf("embedded types cannot declare a name, found %q", opts.Name),
			}
		}
		mc.Embedded = &opts
		if opts.Discriminator != "" {
			mc.Discriminator = opts.Discriminator
		}
	} else {
		mc.Collection = mc.Type.Name()
	}

	if isEntity {
		opts := ent.EntityOptions()
		mc.Entity = &opts
		if opts.Collection != "" {
			mc.Collection = opts.Collection
		}
		if opts.Discriminator != "" {
			mc.Discriminator = opts.Discriminator
		}
	}

	if idx, ok := zero.(domain.IndexDescriber); ok {
		mc.Indexes = idx.Indexes()
	}
	return nil
}

func (b *builder) fields(mc *MappedClass, t reflect.Type, prefix []int) error {
	for i := range t.NumField() {
		sf := t.Field(i)
		index := append(slices.Clone(prefix), i)
		tag, tagged := sf.Tag.Lookup(TagName)

		if sf.Anonymous && !tagged && IsStructType(sf.Type) {
			mc.Supers = append(mc.Supers, deref(sf.Type))
			if err := b.fields(mc, deref(sf.Type), index); err != nil {
				return err
			}
			continue
		}
		if !sf.IsExported() {
			continue
		}

		ft, err := parseTag(tag)
		if err != nil {
			return &domain.MappingError{Type: mc.Type, Reason: fmt.Sprintf("field %s: %s", sf.Name, err)}
		}
		if ft.skip {
			continue
		}

		mf := &MappedField{
			Name:        sf.Name,
			StoredName:  ft.name,
			LoadNames:   ft.alsoLoad,
			Type:        sf.Type,
			Index:       index,
			IsVersion:   ft.version,
			IsReference: ft.reference || innermost(sf.Type) == keyType,
			IDOnly:      ft.idOnly,
			NotSaved:    ft.notSaved,
			IndexSpec:   ft.index,
		}
		if mf.StoredName == "" {
			mf.StoredName = LowerCamel(sf.Name)
		}
		if ft.id || mf.StoredName == IDKey {
			mf.IsID = true
			mf.StoredName = IDKey
		}
		if mf.IndexSpec != nil {
			mf.IndexSpec.Fields[0].Name = mf.StoredName
		}

		if err := b.fieldType(mc, mf, ft); err != nil {
			return err
		}
		if err := b.add(mc, mf); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) fieldType(mc *MappedClass, mf *MappedField, ft fieldTag) error {
	fail := func(format string, args ...any) error {
		return &domain.MappingError{
			Type:   mc.Type,
			Reason: fmt.Sprintf("field %s: ", mf.Name) + fmt.Sprintf(format, args...),
		}
	}

	t := deref(mf.Type)
	switch t.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Uintptr,
		reflect.Complex64, reflect.Complex128:
		return fail("unsupported type %s", mf.Type)
	}

	if mf.IsVersion {
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			return fail("version field must be an integer, found %s", mf.Type)
		}
		if mf.IsID {
			return fail("a field cannot be both the id and the version")
		}
	}

	if mf.IsMap() {
		switch t.Key().Kind() {
		case reflect.String,
			reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		default:
			return fail("unsupported map key type %s", t.Key())
		}
	}

	inner := innermost(mf.Type)
	if ft.embedded && !IsStructType(inner) && inner.Kind() != reflect.Interface {
		return fail("embedded fields must hold structs or interfaces, found %s", mf.Type)
	}

	if mf.IsReference {
		if inner == keyType || inner.Kind() == reflect.Interface {
			return nil
		}
		if !IsStructType(inner) {
			return fail("reference fields must hold entities, found %s", mf.Type)
		}
		target, err := b.class(inner)
		if err != nil {
			return err
		}
		b.refs = append(b.refs, refCheck{owner: mc, field: mf, target: target})
		return nil
	}

	if IsStructType(inner) {
		if _, err := b.class(inner); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) add(mc *MappedClass, mf *MappedField) error {
	for n, other := range mc.Fields {
		if other.StoredName != mf.StoredName && other.Name != mf.Name {
			continue
		}
		// promoted fields are shadowed by shallower ones
		switch {
		case len(other.Index) > len(mf.Index):
			mc.Fields = slices.Delete(mc.Fields, n, n+1)
			b.unindex(mc, other)
		case len(other.Index) < len(mf.Index):
			return nil
		case other.IsID && mf.IsID:
			return &domain.MappingError{
				Type:   mc.Type,
				Reason: fmt.Sprintf("more than one field is marked as id: %s and %s", other.Name, mf.Name),
			}
		default:
			return &domain.MappingError{
				Type:   mc.Type,
				Reason: fmt.Sprintf("fields %s and %s are both stored as %q", other.Name, mf.Name, mf.StoredName),
			}
		}
		break
	}
	mc.Fields = append(mc.Fields, mf)
	mc.byStored[mf.StoredName] = mf
	mc.byGo[mf.Name] = mf
	mc.byCamel[LowerCamel(mf.Name)] = mf
	return nil
}

func (b *builder) unindex(mc *MappedClass, mf *MappedField) {
	delete(mc.byStored, mf.StoredName)
	delete(mc.byGo, mf.Name)
	delete(mc.byCamel, LowerCamel(mf.Name))
}

func (b *builder) validate(mc *MappedClass) error {
	for _, mf := range mc.Fields {
		switch {
		case mf.IsID:
			mc.ID = mf
		case mf.IsVersion && mc.Version != nil:
			return &domain.MappingError{
				Type:   mc.Type,
				Reason: fmt.Sprintf("more than one field is marked as version: %s and %s", mc.Version.Name, mf.Name),
			}
		case mf.IsVersion:
			mc.Version = mf
		}
	}
	if mc.ID != nil && mc.Embedded != nil {
		return &domain.MappingError{Type: mc.Type, Reason: "embedded types cannot have an id field"}
	}
	if mc.ID != nil && mc.ID.NotSaved {
		return &domain.MappingError{Type: mc.Type, Reason: "the id field cannot be marked as notsaved"}
	}
	return nil
}

func (b *builder) validateRefs() error {
	for _, r := range b.refs {
		if r.target.ID == nil {
			return &domain.MappingError{
				Type: r.owner.Type,
				Reason: fmt.Sprintf(
					"reference field %s points to %s, which has no id field",
					r.field.Name, r.target.Type,
				),
			}
		}
	}
	return nil
}

// innermost strips pointers, slices, arrays and maps from t until a leaf,
// struct or interface type is found.
func innermost(t reflect.Type) reflect.Type {
	for {
		t = deref(t)
		if IsLeafType(t) {
			return t
		}
		switch t.Kind() {
		case reflect.Slice, reflect.Array, reflect.Map:
			t = t.Elem()
		default:
			return t
		}
	}
}
