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

package selector

import (
	"sort"

	"github.com/tesseradb/tessera/entities/value"
)

// ItemRef points at one selected row. SortKey and Rank are filled when the
// query sorts by a field or ranks by full-text relevancy.
type ItemRef struct {
	NsID    int
	ID      uint64
	SortKey value.Value
	Rank    float64
}

// ItemRefLess builds the ordering used for sorted selects: sort key order
// (ties broken by id ascending), with an optional forced-values prefix
// pinning rows whose key appears in forced to the front, in forced order.
func ItemRefLess(desc bool, forced []value.Value, collate value.CollateMode) func(a, b ItemRef) bool {
	forcedPos := func(v value.Value) int {
		for i, f := range forced {
			if v.Compare(f, collate) == 0 {
				return i
			}
		}
		return -1
	}
	return func(av, bv ItemRef) bool {
		if len(forced) > 0 {
			ap, bp := forcedPos(av.SortKey), forcedPos(bv.SortKey)
			if ap != bp {
				switch {
				case ap < 0:
					return false
				case bp < 0:
					return true
				default:
					return ap < bp
				}
			}
			if ap >= 0 {
				return av.ID < bv.ID
			}
		}
		c := av.SortKey.Compare(bv.SortKey, collate)
		if c != 0 {
			if desc {
				return c > 0
			}
			return c < 0
		}
		return av.ID < bv.ID
	}
}

// SortItemRefs applies ItemRefLess to a slice in place.
func SortItemRefs(items []ItemRef, desc bool, forced []value.Value, collate value.CollateMode) {
	less := ItemRefLess(desc, forced, collate)
	sort.SliceStable(items, func(a, b int) bool { return less(items[a], items[b]) })
}

// SortByRank orders items by descending rank, ids ascending on ties.
func SortByRank(items []ItemRef) {
	sort.Slice(items, func(a, b int) bool {
		if items[a].Rank != items[b].Rank {
			return items[a].Rank > items[b].Rank
		}
		return items[a].ID < items[b].ID
	})
}
