//  _
// | |_ ___  ___ ___  ___ _ __ __ _
// | __/ _ \/ __/ __|/ _ \ '__/ _` |
// | ||  __/\__ \__ \  __/ | | (_| |
//  \__\___||___/___/\___|_|  \__,_|
//
//  Copyright © 2019 - 2026 Tessera Labs B.V. All rights reserved.
//
//  CONTACT: hello@tesseradb.io
//

package index

import (
	"math"
	"strings"

	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/value"
)

// Comparator tests a row against a predicate when scanning is cheaper than
// an index lookup or the field is not indexed at all. It must be bound to
// the namespace schema before use.
type Comparator struct {
	FieldName string
	Cond      queries.Condition
	Values    []value.Value
	Collate   value.CollateMode

	// two-field compare: right side read from the same row
	RightFieldID int

	// JSONPath serves predicates on undeclared tuple paths.
	JSONPath string

	pt      *payload.Type
	fieldID int
}

func NewComparator(fieldName string, cond queries.Condition, collate value.CollateMode, vals ...value.Value) *Comparator {
	return &Comparator{
		FieldName: fieldName, Cond: cond, Values: vals,
		Collate: collate, RightFieldID: -1, fieldID: -1,
	}
}

// Bind resolves the comparator against the namespace schema. fieldID < 0
// means the field lives in the tuple; Match then reads it through
// JSONPath, and with no JSONPath set the comparator sees no values.
func (c *Comparator) Bind(pt *payload.Type, fieldID int) {
	c.pt = pt
	c.fieldID = fieldID
}

func (c *Comparator) Bound() bool { return c.pt != nil }

// Match evaluates the predicate against the row. Array fields match when
// any element satisfies the condition (for AllSet: when every listed value
// is present among the elements).
func (c *Comparator) Match(row *payload.Row) bool {
	var vals []value.Value
	if c.fieldID >= 0 {
		vals = row.Get(c.pt, c.fieldID)
	} else if c.JSONPath != "" {
		want := value.TypeString
		if len(c.Values) > 0 {
			want = c.Values[0].Type()
		}
		vals = row.ValuesByPath(c.JSONPath, want)
	}
	if c.RightFieldID >= 0 {
		return c.matchTwoFields(vals, row.Get(c.pt, c.RightFieldID))
	}
	switch c.Cond {
	case queries.CondAny:
		return len(vals) > 0
	case queries.CondEmpty:
		return len(vals) == 0
	case queries.CondEq, queries.CondSet:
		for _, v := range vals {
			for _, w := range c.Values {
				if v.Compare(w, c.Collate) == 0 {
					return true
				}
			}
		}
		return false
	case queries.CondAllSet:
		for _, w := range c.Values {
			found := false
			for _, v := range vals {
				if v.Compare(w, c.Collate) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return len(c.Values) > 0
	case queries.CondLt, queries.CondLe, queries.CondGt, queries.CondGe:
		if len(c.Values) == 0 {
			return false
		}
		for _, v := range vals {
			if ordMatch(c.Cond, v.Compare(c.Values[0], c.Collate)) {
				return true
			}
		}
		return false
	case queries.CondRange:
		if len(c.Values) < 2 {
			return false
		}
		for _, v := range vals {
			if v.Compare(c.Values[0], c.Collate) >= 0 && v.Compare(c.Values[1], c.Collate) <= 0 {
				return true
			}
		}
		return false
	case queries.CondLike:
		if len(c.Values) == 0 {
			return false
		}
		pat := c.Values[0].AsString()
		for _, v := range vals {
			if likeMatch(v.String(), pat) {
				return true
			}
		}
		return false
	case queries.CondDWithin:
		return c.matchDWithin(vals)
	default:
		return false
	}
}

func (c *Comparator) matchTwoFields(left, right []value.Value) bool {
	for _, l := range left {
		for _, r := range right {
			if ordMatch(c.Cond, l.Compare(r, c.Collate)) {
				return true
			}
		}
	}
	return false
}

// matchDWithin expects Values = [point tuple(lat,lon), distance].
func (c *Comparator) matchDWithin(vals []value.Value) bool {
	if len(c.Values) < 2 || len(vals) < 2 {
		return false
	}
	center := c.Values[0].Subs()
	if len(center) < 2 {
		return false
	}
	dist := c.Values[1].AsDouble()
	dx := vals[0].AsDouble() - center[0].AsDouble()
	dy := vals[1].AsDouble() - center[1].AsDouble()
	return math.Sqrt(dx*dx+dy*dy) <= dist
}

func ordMatch(cond queries.Condition, cmp int) bool {
	switch cond {
	case queries.CondEq:
		return cmp == 0
	case queries.CondLt:
		return cmp < 0
	case queries.CondLe:
		return cmp <= 0
	case queries.CondGt:
		return cmp > 0
	case queries.CondGe:
		return cmp >= 0
	default:
		return false
	}
}

// likeMatch implements SQL LIKE with '%' (any run) and '_' (any rune).
func likeMatch(s, pat string) bool {
	s = strings.ToLower(s)
	pat = strings.ToLower(pat)
	return likeRec([]rune(s), []rune(pat))
}

func likeRec(s, pat []rune) bool {
	for len(pat) > 0 {
		switch pat[0] {
		case '%':
			for i := 0; i <= len(s); i++ {
				if likeRec(s[i:], pat[1:]) {
					return true
				}
			}
			return false
		case '_':
			if len(s) == 0 {
				return false
			}
			s, pat = s[1:], pat[1:]
		default:
			if len(s) == 0 || s[0] != pat[0] {
				return false
			}
			s, pat = s[1:], pat[1:]
		}
	}
	return len(s) == 0
}
