package domain

import (
	"sort"
	"strconv"
	"strings"
)

// Category classifies the outcome computed for one diff row.
type Category int

// Wire ordinals for categories. The server filters by these numeric codes,
// so the mapping must match the server-side enumeration exactly.
const (
	CategoryCreate Category = 0
	CategoryDelete Category = 1
	CategoryError  Category = 2
	CategorySkip   Category = 3
	CategoryUpdate Category = 4
)

// Categories lists every category in wire-ordinal order.
var Categories = []Category{
	CategoryCreate,
	CategoryDelete,
	CategoryError,
	CategorySkip,
	CategoryUpdate,
}

// String returns the human-readable name of the category.
func (c Category) String() string {
	switch c {
	case CategoryCreate:
		return "create"
	case CategoryDelete:
		return "delete"
	case CategoryError:
		return "error"
	case CategorySkip:
		return "skip"
	case CategoryUpdate:
		return "update"
	default:
		return "unknown(" + strconv.Itoa(int(c)) + ")"
	}
}

// IsValid reports whether c is one of the five known categories.
func (c Category) IsValid() bool {
	return c >= CategoryCreate && c <= CategoryUpdate
}

// CategorySet is a filter over diff-row categories. An empty set means
// "no filter": every category is shown.
type CategorySet map[Category]struct{}

// NewCategorySet builds a set from the given categories.
func NewCategorySet(cats ...Category) CategorySet {
	s := make(CategorySet, len(cats))
	for _, c := range cats {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether c is in the set.
func (s CategorySet) Has(c Category) bool {
	_, ok := s[c]
	return ok
}

// IsEmpty reports whether the set holds no categories.
func (s CategorySet) IsEmpty() bool {
	return len(s) == 0
}

// Clone returns an independent copy of the set.
func (s CategorySet) Clone() CategorySet {
	c := make(CategorySet, len(s))
	for k := range s {
		c[k] = struct{}{}
	}
	return c
}

// Ordinals returns the wire codes of the set members in ascending order.
func (s CategorySet) Ordinals() []int {
	out := make([]int, 0, len(s))
	for c := range s {
		out = append(out, int(c))
	}
	sort.Ints(out)
	return out
}

// QueryValue renders the set as a comma-separated ordinal list for query
// strings. Empty string for an empty set.
func (s CategorySet) QueryValue() string {
	ords := s.Ordinals()
	parts := make([]string, len(ords))
	for i, o := range ords {
		parts[i] = strconv.Itoa(o)
	}
	return strings.Join(parts, ",")
}

// ParseCategorySet parses a comma-separated ordinal list as produced by
// QueryValue. Unknown ordinals are rejected.
func ParseCategorySet(raw string) (CategorySet, error) {
	s := make(CategorySet)
	if strings.TrimSpace(raw) == "" {
		return s, nil
	}
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		c := Category(n)
		if !c.IsValid() {
			return nil, &InvalidCategoryError{Code: n}
		}
		s[c] = struct{}{}
	}
	return s, nil
}
