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

// Package selector composes index lookup results into iterators over row
// ids, folds the filter tree into a concrete id-set plus comparator
// post-filters, and assembles the ordered, limited result set.
package selector

import (
	"sort"

	"github.com/weaviate/sroar"

	"github.com/tesseradb/tessera/adapters/repos/db/index"
	"github.com/tesseradb/tessera/entities/payload"
)

// SelectIterator walks the ids produced by one index lookup in ascending
// order. NextGE allows galloping intersection against a driving iterator.
type SelectIterator struct {
	FieldName string

	ids  *sroar.Bitmap
	cmps []*index.Comparator

	arr []uint64
	pos int
}

func NewSelectIterator(results []index.KeyResult, fieldName string) *SelectIterator {
	it := &SelectIterator{FieldName: fieldName}
	for _, kr := range results {
		if kr.IsComparator() {
			it.cmps = append(it.cmps, kr.Cmp)
			continue
		}
		if it.ids == nil {
			it.ids = kr.IDs
		} else {
			merged := it.ids.Clone()
			merged.Or(kr.IDs)
			it.ids = merged
		}
	}
	if it.ids != nil {
		it.arr = it.ids.ToArray()
	}
	return it
}

// Bind resolves the iterator's comparators against the namespace schema.
func (it *SelectIterator) Bind(pt *payload.Type, fieldID int) {
	for _, c := range it.cmps {
		c.Bind(pt, fieldID)
	}
}

// MaxIterations is the upper bound of ids this iterator yields; scanSize
// bounds comparator-only iterators.
func (it *SelectIterator) MaxIterations(scanSize int) int {
	if it.ids == nil {
		return scanSize
	}
	return len(it.arr)
}

func (it *SelectIterator) HasIDs() bool { return it.ids != nil }

func (it *SelectIterator) IDs() *sroar.Bitmap { return it.ids }

func (it *SelectIterator) Comparators() []*index.Comparator { return it.cmps }

// Next yields the next id in ascending order.
func (it *SelectIterator) Next() (uint64, bool) {
	if it.pos >= len(it.arr) {
		return 0, false
	}
	v := it.arr[it.pos]
	it.pos++
	return v, true
}

// NextGE seeks to the first id >= bound without consuming it, so a driver
// can gallop several laggards over the same position.
func (it *SelectIterator) NextGE(bound uint64) (uint64, bool) {
	rest := it.arr[it.pos:]
	i := sort.Search(len(rest), func(i int) bool { return rest[i] >= bound })
	it.pos += i
	if it.pos >= len(it.arr) {
		return 0, false
	}
	return it.arr[it.pos], true
}

func (it *SelectIterator) Reset() { it.pos = 0 }

// Intersect runs galloping intersection: the receiver drives (it should be
// the iterator with the smallest MaxIterations) and every other iterator is
// consulted with NextGE.
func (it *SelectIterator) Intersect(others []*SelectIterator) *sroar.Bitmap {
	out := sroar.NewBitmap()
	it.Reset()
	for _, o := range others {
		o.Reset()
	}
	id, ok := it.NextGE(0)
outer:
	for ok {
		matched := true
		for _, o := range others {
			oid, ook := o.NextGE(id)
			if !ook {
				break outer
			}
			if oid != id {
				// gallop the driver forward to the laggard's position
				if id, ok = it.NextGE(oid); !ok {
					break outer
				}
				matched = false
				break
			}
		}
		if matched {
			out.Set(id)
			id, ok = it.NextGE(id + 1)
		}
	}
	return out
}
