package query

// FilterOperator is a comparison, array or geospatial operator a criteria
// node applies to a field.
type FilterOperator string

// Supported filter operators. Equal is rendered as a plain value.
const (
	Equal              FilterOperator = "$eq"
	NotEqual           FilterOperator = "$ne"
	GreaterThan        FilterOperator = "$gt"
	GreaterThanOrEqual FilterOperator = "$gte"
	LessThan           FilterOperator = "$lt"
	LessThanOrEqual    FilterOperator = "$lte"
	Exists             FilterOperator = "$exists"
	Type               FilterOperator = "$type"
	Mod                FilterOperator = "$mod"
	Size               FilterOperator = "$size"
	In                 FilterOperator = "$in"
	NotIn              FilterOperator = "$nin"
	All                FilterOperator = "$all"
	ElemMatch          FilterOperator = "$elemMatch"
	Near               FilterOperator = "$near"
	NearSphere         FilterOperator = "$nearSphere"
	GeoWithin          FilterOperator = "$geoWithin"
	Intersects         FilterOperator = "$geoIntersects"
)

var conditions = map[string]FilterOperator{
	"=":          Equal,
	"==":         Equal,
	"eq":         Equal,
	"!=":         NotEqual,
	"<>":         NotEqual,
	"ne":         NotEqual,
	">":          GreaterThan,
	"gt":         GreaterThan,
	">=":         GreaterThanOrEqual,
	"gte":        GreaterThanOrEqual,
	"<":          LessThan,
	"lt":         LessThan,
	"<=":         LessThanOrEqual,
	"lte":        LessThanOrEqual,
	"exists":     Exists,
	"type":       Type,
	"mod":        Mod,
	"size":       Size,
	"in":         In,
	"nin":        NotIn,
	"all":        All,
	"elem":       ElemMatch,
	"elemMatch":  ElemMatch,
	"near":       Near,
	"nearSphere": NearSphere,
	"within":     GeoWithin,
	"geoWithin":  GeoWithin,
	"intersects": Intersects,
}

// ParseCondition returns the operator named by a filter condition such as
// ">=" or "nin". Operator names may also be given with a leading "$".
func ParseCondition(cond string) (FilterOperator, bool) {
	if op, ok := conditions[cond]; ok {
		return op, true
	}
	for _, op := range conditions {
		if string(op) == cond {
			return op, true
		}
	}
	return "", false
}
