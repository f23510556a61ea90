// Package modifier contains a [domain.Modifier] implementation to apply changes
// to a doc based on a mongo-like API.
package modifier

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/vinicius-lino-figueiredo/gedm/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/gedm/adapter/timegetter"
	"github.com/vinicius-lino-figueiredo/gedm/domain"
	"github.com/vinicius-lino-figueiredo/gedm/pkg/structure"
)

var (
	// ErrMixedOperators is returned when user provides an update query with
	// mixed use of normal fields and dollar fields.
	ErrMixedOperators = errors.New("cannot mix modifiers and normal fields")
	// ErrNonObject is returned when a modifier value passed by user is not
	// an object.
	ErrNonObject = errors.New("modifier value must be an object")
	// ErrInvalidPushField is returned when user passes $slice, $sort or
	// $position without $each, or an unknown field with it.
	ErrInvalidPushField = errors.New("can only use $slice, $sort and $position in conjunction with $each when $push to array")
	// ErrInvalidAddToSetField is returned when user passes some field other
	// than $each when using $addToSet modifier.
	ErrInvalidAddToSetField = errors.New("cannot use another field in conjunction with $each")
	// ErrOverflow is returned when integer arithmetic would not fit in an
	// int64.
	ErrOverflow = errors.New("integer overflow")
)

// ErrModFieldType is returned when a modification function runs on a document
// field of a type that is not accepted.
type ErrModFieldType struct {
	Mod    string
	Want   string
	Actual any
}

// Error implements [error].
func (e ErrModFieldType) Error() string {
	return fmt.Sprintf("%s expects %s field, got %T", e.Mod, e.Want, e.Actual)
}

// ErrModArgType is returned when a modification function is called with an
// argument of a type that is not accepted.
type ErrModArgType struct {
	Mod    string
	Want   string
	Actual any
}

// Error implements [error].
func (e ErrModArgType) Error() string {
	return fmt.Sprintf("%s expects %s arg, got %T", e.Mod, e.Want, e.Actual)
}

// ErrModQuery is returned when provided modification query does not match the
// general expected mongo-like structure.
type ErrModQuery struct {
	Reason string
}

// Error implements [error].
func (e ErrModQuery) Error() string {
	return fmt.Sprintf("invalid modification query: %s", e.Reason)
}

// ErrUnknownModifier is returned when the user specifies a modification query
// with a modification procedure that is not known by the current implementation
// of [Modifier].
type ErrUnknownModifier struct {
	Name string
}

// Error implements [error].
func (e ErrUnknownModifier) Error() string {
	return fmt.Sprintf("unknown modifier %q", e.Name)
}

const (
	opSet         = "$set"
	opSetOnInsert = "$setOnInsert"
	opUnset       = "$unset"
	opInc         = "$inc"
	opMul         = "$mul"
	opRename      = "$rename"
	opPush        = "$push"
	opAddToSet    = "$addToSet"
	opPop         = "$pop"
	opPull        = "$pull"
	opPullAll     = "$pullAll"
	opMax         = "$max"
	opMin         = "$min"
	opCurrentDate = "$currentDate"
)

type modFunc func(domain.Document, []string, any) error

type pushArgs struct {
	each     []any
	position *int
	slice    *int
	sort     any
}

// Modifier implements [domain.Modifier]. Operators are applied in the order
// they appear in the update document, and so are the fields inside each
// operator.
type Modifier struct {
	comp           domain.Comparer
	docFac         domain.DocumentFactory
	fieldNavigator domain.FieldNavigator
	matcher        domain.Matcher
	timeGetter     domain.TimeGetter
	mods           map[string]modFunc
}

// NewModifier returns a new implementation of [domain.Modifier].
func NewModifier(opts ...Option) domain.Modifier {
	docFac := data.NewDocument
	m := &Modifier{
		comp:           comparer.NewComparer(),
		docFac:         docFac,
		fieldNavigator: fieldnavigator.NewFieldNavigator(docFac),
		matcher:        matcher.NewMatcher(),
		timeGetter:     timegetter.NewTimeGetter(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.mods = map[string]modFunc{
		opSet:         m.set,
		opSetOnInsert: m.set,
		opUnset:       m.unset,
		opInc:         m.inc,
		opMul:         m.mul,
		opRename:      m.rename,
		opPush:        m.push,
		opAddToSet:    m.addToSet,
		opPop:         m.pop,
		opPull:        m.pull,
		opPullAll:     m.pullAll,
		opMax:         m.minMax(1),
		opMin:         m.minMax(-1),
		opCurrentDate: m.currentDate,
	}

	return m
}

// Modify implements [domain.Modifier].
func (m *Modifier) Modify(obj domain.Document, mod domain.Document, insert bool) (domain.Document, error) {
	if obj == nil {
		var err error
		if obj, err = m.docFac(nil); err != nil {
			return nil, err
		}
	}

	replace, err := m.isReplacement(mod)
	if err != nil {
		return nil, err
	}

	if replace {
		return m.replaceMod(obj, mod)
	}

	return m.dollarMod(obj, mod, insert)
}

func (m *Modifier) isReplacement(mod domain.Document) (bool, error) {
	if mod == nil {
		return true, nil
	}
	dollarFields := 0
	for k := range mod.Keys() {
		if strings.HasPrefix(k, "$") {
			dollarFields++
		}
	}
	if dollarFields > 0 && dollarFields != mod.Len() {
		return false, ErrMixedOperators
	}
	return dollarFields == 0, nil
}

// replaceMod returns a copy of mod, keeping the _id of obj.
func (m *Modifier) replaceMod(obj domain.Document, mod domain.Document) (domain.Document, error) {
	newDoc, err := m.docFac(nil)
	if err != nil {
		return nil, err
	}

	hasID := obj.Has(data.IDKey)
	if hasID {
		newDoc.Set(data.IDKey, data.Clone(obj.ID()))
	}
	if mod == nil {
		return newDoc, nil
	}

	for k, v := range mod.Iter() {
		if k == data.IDKey && hasID {
			if !m.equal(v, obj.ID()) {
				return nil, domain.ErrImmutableID
			}
			continue
		}
		newDoc.Set(k, data.Clone(v))
	}
	return newDoc, nil
}

func (m *Modifier) dollarMod(obj domain.Document, mod domain.Document, insert bool) (domain.Document, error) {
	newDoc, err := m.docFac(obj)
	if err != nil {
		return nil, err
	}

	var touched [][]string
	for name, arg := range mod.Iter() {
		fn, ok := m.mods[name]
		if !ok {
			return nil, ErrUnknownModifier{Name: name}
		}
		fields, ok := arg.(domain.Document)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNonObject, name)
		}
		for field, value := range fields.Iter() {
			addr, err := m.address(field)
			if err != nil {
				return nil, err
			}
			if err := conflict(touched, addr); err != nil {
				return nil, err
			}
			touched = append(touched, addr)

			if name == opSetOnInsert && !insert {
				continue
			}
			if err := fn(newDoc, addr, value); err != nil {
				return nil, fmt.Errorf("%s %s: %w", name, field, err)
			}
		}
	}

	if obj.Has(data.IDKey) && (!newDoc.Has(data.IDKey) || !m.equal(obj.ID(), newDoc.ID())) {
		return nil, domain.ErrImmutableID
	}

	return newDoc, nil
}

func (m *Modifier) address(field string) ([]string, error) {
	addr, err := m.fieldNavigator.GetAddress(field)
	if err != nil {
		return nil, err
	}
	for _, part := range addr {
		if part == "$" || strings.HasPrefix(part, "$[") {
			return nil, fmt.Errorf("%w: positional operator in %q", domain.ErrUnsupported, field)
		}
	}
	return addr, nil
}

// conflict checks whether addr is, or is a prefix of, a path already
// modified by the same update.
func conflict(touched [][]string, addr []string) error {
	for _, t := range touched {
		n := min(len(t), len(addr))
		if slices.Equal(t[:n], addr[:n]) {
			return ErrModQuery{Reason: fmt.Sprintf(
				"updating the path %q would create a conflict at %q",
				strings.Join(addr, "."), strings.Join(t[:n], "."),
			)}
		}
	}
	return nil
}

// ensure returns the field under addr, creating it if needed, and reports
// whether it was set before.
func (m *Modifier) ensure(obj domain.Document, addr []string) (domain.GetSetter, bool, error) {
	current, expanded, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return nil, false, err
	}
	if expanded {
		return nil, false, ErrModQuery{
			Reason: fmt.Sprintf("cannot create field %q in array elements", strings.Join(addr, ".")),
		}
	}
	existed := false
	if len(current) == 1 {
		_, existed = current[0].Get()
	}

	fields, err := m.fieldNavigator.EnsureField(obj, addr...)
	if err != nil {
		return nil, false, err
	}
	if len(fields) != 1 {
		return nil, false, ErrModQuery{Reason: fmt.Sprintf("ambiguous path %q", strings.Join(addr, "."))}
	}
	return fields[0], existed, nil
}

// array returns the array under addr. A nil GetSetter is returned if the
// field is not set.
func (m *Modifier) array(obj domain.Document, addr []string, mod string) ([]any, domain.GetSetter, error) {
	fields, expanded, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return nil, nil, err
	}
	if expanded || len(fields) != 1 {
		return nil, nil, nil
	}
	curr, ok := fields[0].Get()
	if !ok {
		return nil, nil, nil
	}
	arr, ok := curr.([]any)
	if !ok {
		return nil, nil, ErrModFieldType{Mod: mod, Want: "array", Actual: curr}
	}
	return arr, fields[0], nil
}

func (m *Modifier) equal(a, b any) bool {
	if !m.comp.Comparable(a, b) {
		return false
	}
	c, err := m.comp.Compare(a, b)
	return err == nil && c == 0
}

func (m *Modifier) set(obj domain.Document, addr []string, v any) error {
	gs, _, err := m.ensure(obj, addr)
	if err != nil {
		return err
	}
	gs.Set(data.Clone(v))
	return nil
}

func (m *Modifier) unset(obj domain.Document, addr []string, _ any) error {
	fields, expanded, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil || expanded {
		return err
	}
	for _, gs := range fields {
		if _, ok := gs.Get(); ok {
			gs.Unset()
		}
	}
	return nil
}

func (m *Modifier) inc(obj domain.Document, addr []string, v any) error {
	return m.arith(opInc, obj, addr, v, v, false)
}

func (m *Modifier) mul(obj domain.Document, addr []string, v any) error {
	zero, _ := arith(v, int32(0), true)
	return m.arith(opMul, obj, addr, v, zero, true)
}

func (m *Modifier) arith(mod string, obj domain.Document, addr []string, v, missing any, mul bool) error {
	if !isNumber(v) {
		return ErrModArgType{Mod: mod, Want: "numeric", Actual: v}
	}
	gs, existed, err := m.ensure(obj, addr)
	if err != nil {
		return err
	}
	if !existed {
		gs.Set(missing)
		return nil
	}
	curr, _ := gs.Get()
	if !isNumber(curr) {
		return ErrModFieldType{Mod: mod, Want: "numeric", Actual: curr}
	}
	res, err := arith(curr, v, mul)
	if err != nil {
		return err
	}
	gs.Set(res)
	return nil
}

func (m *Modifier) rename(obj domain.Document, addr []string, v any) error {
	target, ok := v.(string)
	if !ok {
		return ErrModArgType{Mod: opRename, Want: "string", Actual: v}
	}
	to, err := m.address(target)
	if err != nil {
		return err
	}
	n := min(len(to), len(addr))
	if slices.Equal(to[:n], addr[:n]) {
		return ErrModQuery{Reason: "$rename source and destination must not overlap"}
	}

	fields, expanded, err := m.fieldNavigator.GetField(obj, addr...)
	if err != nil {
		return err
	}
	if expanded {
		return ErrModQuery{Reason: "$rename source may not be inside an array"}
	}
	val, ok := fields[0].Get()
	if !ok {
		return nil
	}
	fields[0].Unset()

	gs, _, err := m.ensure(obj, to)
	if err != nil {
		return err
	}
	gs.Set(val)
	return nil
}

func (m *Modifier) push(obj domain.Document, addr []string, v any) error {
	args, err := m.pushArgs(v)
	if err != nil {
		return err
	}

	gs, existed, err := m.ensure(obj, addr)
	if err != nil {
		return err
	}
	var arr []any
	if existed {
		curr, _ := gs.Get()
		a, ok := curr.([]any)
		if !ok {
			return ErrModFieldType{Mod: opPush, Want: "array", Actual: curr}
		}
		arr = a
	}

	pos := len(arr)
	if args.position != nil {
		pos = *args.position
		if pos < 0 {
			pos = max(0, len(arr)+pos)
		}
		pos = min(pos, len(arr))
	}

	items := make([]any, len(args.each))
	for i, item := range args.each {
		items[i] = data.Clone(item)
	}
	res := slices.Insert(slices.Clone(arr), pos, items...)
	if res == nil {
		res = []any{}
	}

	if args.sort != nil {
		if err := m.sortArray(res, args.sort); err != nil {
			return err
		}
	}

	if args.slice != nil {
		if n := *args.slice; n >= 0 {
			res = res[:min(n, len(res))]
		} else {
			res = res[max(0, len(res)+n):]
		}
	}

	gs.Set(res)
	return nil
}

func (m *Modifier) pushArgs(v any) (pushArgs, error) {
	d, ok := v.(domain.Document)
	if !ok || !hasDollarKey(d) {
		return pushArgs{each: []any{v}}, nil
	}
	if !d.Has("$each") {
		return pushArgs{}, ErrInvalidPushField
	}

	var args pushArgs
	for k, val := range d.Iter() {
		switch k {
		case "$each":
			arr, ok := val.([]any)
			if !ok {
				return args, ErrModArgType{Mod: "$each", Want: "array", Actual: val}
			}
			args.each = arr
		case "$slice":
			n, ok := integer(val)
			if !ok {
				return args, ErrModArgType{Mod: "$slice", Want: "integer", Actual: val}
			}
			args.slice = &n
		case "$position":
			n, ok := integer(val)
			if !ok {
				return args, ErrModArgType{Mod: "$position", Want: "integer", Actual: val}
			}
			args.position = &n
		case "$sort":
			args.sort = val
		default:
			return args, fmt.Errorf("%w: %s", ErrInvalidPushField, k)
		}
	}
	return args, nil
}

type sortKey struct {
	addr []string
	dir  int
}

func (m *Modifier) sortArray(arr []any, spec any) error {
	var keys []sortKey
	if dir, ok := direction(spec); ok {
		keys = []sortKey{{dir: dir}}
	} else if d, ok := spec.(domain.Document); ok && d.Len() > 0 {
		for k, v := range d.Iter() {
			dir, ok := direction(v)
			if !ok {
				return ErrModArgType{Mod: "$sort", Want: "1 or -1", Actual: v}
			}
			addr, err := m.fieldNavigator.GetAddress(k)
			if err != nil {
				return err
			}
			keys = append(keys, sortKey{addr: addr, dir: dir})
		}
	} else {
		return ErrModArgType{Mod: "$sort", Want: "1, -1 or sort document", Actual: spec}
	}

	var sortErr error
	slices.SortStableFunc(arr, func(a, b any) int {
		for _, k := range keys {
			va, vb := m.sortValue(a, k.addr), m.sortValue(b, k.addr)
			c, err := m.comp.Compare(va, vb)
			if err != nil && sortErr == nil {
				sortErr = err
			}
			if c != 0 {
				return c * k.dir
			}
		}
		return 0
	})
	return sortErr
}

func (m *Modifier) sortValue(v any, addr []string) any {
	if len(addr) == 0 {
		return v
	}
	fields, _, err := m.fieldNavigator.GetField(v, addr...)
	if err != nil {
		return nil
	}
	for _, gs := range fields {
		if val, ok := gs.Get(); ok {
			return val
		}
	}
	return nil
}

func (m *Modifier) addToSet(obj domain.Document, addr []string, v any) error {
	values := []any{v}
	if d, ok := v.(domain.Document); ok && d.Has("$each") {
		if d.Len() != 1 {
			return ErrInvalidAddToSetField
		}
		each, ok := d.Get("$each").([]any)
		if !ok {
			return ErrModArgType{Mod: "$each", Want: "array", Actual: d.Get("$each")}
		}
		values = each
	}

	gs, existed, err := m.ensure(obj, addr)
	if err != nil {
		return err
	}
	arr := []any{}
	if existed {
		curr, _ := gs.Get()
		a, ok := curr.([]any)
		if !ok {
			return ErrModFieldType{Mod: opAddToSet, Want: "array", Actual: curr}
		}
		arr = slices.Clone(a)
	}

	for _, val := range values {
		if !slices.ContainsFunc(arr, func(e any) bool { return m.equal(e, val) }) {
			arr = append(arr, data.Clone(val))
		}
	}
	gs.Set(arr)
	return nil
}

func (m *Modifier) pop(obj domain.Document, addr []string, v any) error {
	n, ok := integer(v)
	if !ok || (n != 1 && n != -1) {
		return ErrModArgType{Mod: opPop, Want: "1 or -1", Actual: v}
	}
	arr, gs, err := m.array(obj, addr, opPop)
	if err != nil || gs == nil || len(arr) == 0 {
		return err
	}
	if n == 1 {
		gs.Set(slices.Clone(arr[:len(arr)-1]))
	} else {
		gs.Set(slices.Clone(arr[1:]))
	}
	return nil
}

func (m *Modifier) pull(obj domain.Document, addr []string, v any) error {
	arr, gs, err := m.array(obj, addr, opPull)
	if err != nil || gs == nil {
		return err
	}
	res := make([]any, 0, len(arr))
	for _, e := range arr {
		matched, err := m.pullMatch(e, v)
		if err != nil {
			return err
		}
		if !matched {
			res = append(res, e)
		}
	}
	gs.Set(res)
	return nil
}

// pullMatch matches elem against a $pull condition. Documents with plain
// fields are queries over document elements, operator documents and
// regular expressions are conditions over the element itself, and anything
// else is compared for equality.
func (m *Modifier) pullMatch(elem any, cond any) (bool, error) {
	switch c := cond.(type) {
	case domain.Document:
		if !operatorsOnly(c) {
			if _, ok := elem.(domain.Document); ok {
				return m.matcher.Match(elem, c)
			}
			return false, nil
		}
	case primitive.Regex:
	default:
		return m.equal(elem, cond), nil
	}

	wrapper, err := m.docFac(nil)
	if err != nil {
		return false, err
	}
	wrapper.Set("v", elem)
	filter, err := m.docFac(nil)
	if err != nil {
		return false, err
	}
	filter.Set("v", cond)
	return m.matcher.Match(wrapper, filter)
}

func (m *Modifier) pullAll(obj domain.Document, addr []string, v any) error {
	values, ok := v.([]any)
	if !ok {
		return ErrModArgType{Mod: opPullAll, Want: "array", Actual: v}
	}
	arr, gs, err := m.array(obj, addr, opPullAll)
	if err != nil || gs == nil {
		return err
	}
	res := make([]any, 0, len(arr))
	for _, e := range arr {
		if !slices.ContainsFunc(values, func(val any) bool { return m.equal(e, val) }) {
			res = append(res, e)
		}
	}
	gs.Set(res)
	return nil
}

func (m *Modifier) minMax(sign int) modFunc {
	return func(obj domain.Document, addr []string, v any) error {
		gs, existed, err := m.ensure(obj, addr)
		if err != nil {
			return err
		}
		if !existed {
			gs.Set(data.Clone(v))
			return nil
		}
		curr, _ := gs.Get()
		c, err := m.comp.Compare(v, curr)
		if err != nil {
			return err
		}
		if c*sign > 0 {
			gs.Set(data.Clone(v))
		}
		return nil
	}
}

func (m *Modifier) currentDate(obj domain.Document, addr []string, v any) error {
	now := m.timeGetter.GetTime()

	var val any
	switch t := v.(type) {
	case bool:
		val = primitive.NewDateTimeFromTime(now)
	case domain.Document:
		typ, _ := t.Get("$type").(string)
		if t.Len() != 1 {
			typ = ""
		}
		switch typ {
		case "date":
			val = primitive.NewDateTimeFromTime(now)
		case "timestamp":
			val = primitive.Timestamp{T: uint32(now.Unix()), I: 1}
		default:
			return ErrModArgType{Mod: opCurrentDate, Want: `{$type: "date"|"timestamp"}`, Actual: v}
		}
	default:
		return ErrModArgType{Mod: opCurrentDate, Want: "boolean or $type document", Actual: v}
	}

	gs, _, err := m.ensure(obj, addr)
	if err != nil {
		return err
	}
	gs.Set(val)
	return nil
}

func hasDollarKey(d domain.Document) bool {
	for k := range d.Keys() {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func operatorsOnly(d domain.Document) bool {
	if d.Len() == 0 {
		return false
	}
	for k := range d.Keys() {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func integer(v any) (int, bool) {
	if !structure.IsNumber(v) {
		return 0, false
	}
	return structure.AsInteger(v)
}

func direction(v any) (int, bool) {
	n, ok := integer(v)
	if !ok || (n != 1 && n != -1) {
		return 0, false
	}
	return n, true
}

func isNumber(v any) bool {
	switch v.(type) {
	case int32, int64, float64, primitive.Decimal128:
		return true
	}
	return false
}

// arith adds or multiplies two numbers keeping the widest type of both.
// Two int32 values give an int32 unless the result overflows it.
func arith(a, b any, mul bool) (any, error) {
	_, aDec := a.(primitive.Decimal128)
	_, bDec := b.(primitive.Decimal128)
	if aDec || bDec {
		x, err := bigFloat(a)
		if err != nil {
			return nil, err
		}
		y, err := bigFloat(b)
		if err != nil {
			return nil, err
		}
		r := new(big.Float).SetPrec(128)
		if mul {
			r.Mul(x, y)
		} else {
			r.Add(x, y)
		}
		return primitive.ParseDecimal128(r.Text('g', 34))
	}

	_, aFloat := a.(float64)
	_, bFloat := b.(float64)
	if aFloat || bFloat {
		x, y := toFloat(a), toFloat(b)
		if mul {
			return x * y, nil
		}
		return x + y, nil
	}

	x, _ := structure.AsInt64(a)
	y, _ := structure.AsInt64(b)
	var r int64
	var overflow bool
	if mul {
		r = x * y
		overflow = x != 0 && (r/x != y || (x == -1 && y == math.MinInt64))
	} else {
		r = x + y
		overflow = (x > 0 && y > 0 && r < 0) || (x < 0 && y < 0 && r >= 0)
	}
	if overflow {
		return nil, ErrOverflow
	}

	_, aInt32 := a.(int32)
	_, bInt32 := b.(int32)
	if aInt32 && bInt32 && r >= math.MinInt32 && r <= math.MaxInt32 {
		return int32(r), nil
	}
	return r, nil
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float64:
		return t
	}
	return 0
}

func bigFloat(v any) (*big.Float, error) {
	f := new(big.Float).SetPrec(128)
	switch t := v.(type) {
	case int32:
		return f.SetInt64(int64(t)), nil
	case int64:
		return f.SetInt64(t), nil
	case float64:
		if math.IsNaN(t) {
			return nil, ErrModFieldType{Mod: "decimal arithmetic", Want: "finite", Actual: v}
		}
		return f.SetFloat64(t), nil
	case primitive.Decimal128:
		r, _, err := big.ParseFloat(t.String(), 10, 128, big.ToNearestEven)
		if err != nil {
			return nil, ErrModFieldType{Mod: "decimal arithmetic", Want: "finite", Actual: v}
		}
		return r, nil
	}
	return nil, ErrModFieldType{Mod: "arithmetic", Want: "numeric", Actual: v}
}
