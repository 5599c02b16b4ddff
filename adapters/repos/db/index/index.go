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

// Package index implements the per-namespace secondary indexes: hash,
// ordered (btree), sparse and composite. Every index answers SelectKey with
// either concrete id-sets or comparator fallbacks; the selector composes
// those into iterators.
package index

import (
	"github.com/weaviate/sroar"

	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/value"
)

// SelectOpts tunes a SelectKey call.
type SelectOpts struct {
	// MaxIterations is the best iterator bound known so far; indexes may
	// prefer a comparator when scanning beats lookup.
	MaxIterations int
	// Unbuilt indicates sort orders are not built yet, so ordered walks
	// cannot be used to drive sorting.
	Unbuilt bool
}

// KeyResult is one result of an index lookup: either a concrete id-set
// (sorted ascending row ids) or a comparator evaluated against rows during
// the scan.
type KeyResult struct {
	IDs *sroar.Bitmap
	Cmp *Comparator
}

func (kr KeyResult) IsComparator() bool { return kr.Cmp != nil }

// MaxIterations is the upper bound of ids this result can yield.
func (kr KeyResult) MaxIterations(scanSize int) int {
	if kr.Cmp != nil {
		return scanSize
	}
	return kr.IDs.GetCardinality()
}

// Index is a secondary index over one field (or a composite fields-set).
type Index interface {
	Name() string
	KeyType() value.Type
	Collate() value.CollateMode
	IsOrdered() bool
	IsFulltext() bool
	IsSparse() bool
	// Size is the number of (value, id) pairs the index holds; the planner
	// uses it to pick the cheapest driver.
	Size() int

	SelectKey(vals []value.Value, cond queries.Condition, opts SelectOpts) ([]KeyResult, error)
	Upsert(v value.Value, id uint64) error
	Delete(v value.Value, id uint64) error
	// Truncate drops all buckets.
	Truncate()
}

// OrderedWalker is implemented by indexes whose bucket order can drive a
// sorted select.
type OrderedWalker interface {
	// WalkOrdered visits buckets in key order (reversed when desc). The
	// callback returns false to stop.
	WalkOrdered(desc bool, fn func(key value.Value, ids *sroar.Bitmap) bool)
}

// CompositeFields is implemented by composite indexes and exposes the
// compound fields-set for index substitution in the planner.
type CompositeFields interface {
	Fields() payload.FieldsSet
}
