package mapper

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// TagName is the struct tag key read by the mapper.
const TagName = "gedm"

type fieldTag struct {
	name       string
	skip       bool
	id         bool
	version    bool
	embedded   bool
	reference  bool
	idOnly     bool
	notSaved   bool
	alsoLoad   []string
	index      *domain.Index
	weight     int32
	hasIndexed bool
}

func parseTag(tag string) (fieldTag, error) {
	var ft fieldTag
	if tag == "-" {
		ft.skip = true
		return ft, nil
	}
	parts := strings.Split(tag, ",")
	ft.name = strings.TrimSpace(parts[0])

	idx := domain.Index{Fields: []domain.IndexField{{}}}
	for _, p := range parts[1:] {
		key, value, _ := strings.Cut(strings.TrimSpace(p), "=")
		switch key {
		case "":
		case "id":
			ft.id = true
		case "version":
			ft.version = true
		case "embedded":
			ft.embedded = true
		case "reference":
			ft.reference = true
		case "idonly":
			ft.reference = true
			ft.idOnly = true
		case "notsaved":
			ft.notSaved = true
		case "alsoload":
			for n := range strings.SplitSeq(value, "|") {
				if n = strings.TrimSpace(n); n != "" {
					ft.alsoLoad = append(ft.alsoLoad, n)
				}
			}
		case "index":
			ft.hasIndexed = true
			switch t := domain.IndexType(value); t {
			case "", domain.Asc, domain.Desc, domain.Text, domain.Hashed,
				domain.Geo2D, domain.Geo2DSphere:
				idx.Fields[0].Type = t
			default:
				return ft, fmt.Errorf("unknown index type %q", value)
			}
		case "unique":
			ft.hasIndexed = true
			idx.Options.Unique = true
		case "sparse":
			ft.hasIndexed = true
			idx.Options.Sparse = true
		case "background":
			ft.hasIndexed = true
			idx.Options.Background = true
		case "indexname":
			ft.hasIndexed = true
			idx.Options.Name = value
		case "expire":
			n, err := strconv.ParseInt(value, 10, 32)
			if err != nil || n < 0 {
				return ft, fmt.Errorf("invalid expire value %q", value)
			}
			ft.hasIndexed = true
			idx.Options.ExpireAfterSeconds = int32(n)
		case "weight":
			n, err := strconv.ParseInt(value, 10, 32)
			if err != nil || n <= 0 {
				return ft, fmt.Errorf("invalid weight value %q", value)
			}
			ft.hasIndexed = true
			ft.weight = int32(n)
		default:
			return ft, fmt.Errorf("unknown tag option %q", key)
		}
	}
	if ft.hasIndexed {
		idx.Fields[0].Weight = ft.weight
		ft.index = &idx
	}
	return ft, nil
}

// LowerCamel lowers the leading upper case run of a Go identifier, so that
// FirstName becomes firstName and URLPath becomes urlPath.
func LowerCamel(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	n := 0
	for n < len(runes) && unicode.IsUpper(runes[n]) {
		n++
	}
	switch {
	case n == 0:
		return s
	case n == 1 || n == len(runes):
		for i := range n {
			runes[i] = unicode.ToLower(runes[i])
		}
	default:
		// keep the last upper rune, it starts the next word
		for i := range n - 1 {
			runes[i] = unicode.ToLower(runes[i])
		}
	}
	return string(runes)
}

func isExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
