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

// Package join executes inner, left and or-inner joins and cross-namespace
// merges: pre-result materialization, per-outer-row probing and the
// derived-filter injection that turns a nested loop into two index scans.
package join

import (
	"github.com/weaviate/sroar"

	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/value"
)

// Execution thresholds. A right side up to ValuesThreshold rows is
// materialized fully; up to IdSetThreshold only its row ids are kept;
// larger right sides are probed per outer row.
const (
	ValuesThreshold = 1024
	IdSetThreshold  = 131072

	// MaxIterationsScale guards injection: pushing the right-side key set
	// into the outer filter pays off only while the right side is no more
	// than this factor larger than the outer's best iterator.
	MaxIterationsScale = 100
)

type PreResultMode int8

const (
	ModeValues PreResultMode = iota
	ModeIdSet
	ModeDefer
)

func (m PreResultMode) String() string {
	switch m {
	case ModeValues:
		return "values"
	case ModeIdSet:
		return "id-set"
	case ModeDefer:
		return "defer"
	default:
		return "?"
	}
}

// PreResult is the materialization of a join sub-query, computed once per
// outer query and probed per outer row.
type PreResult struct {
	Mode    PreResultMode
	RightPt *payload.Type

	// ModeValues
	IDs  []uint64
	Rows []*payload.Row

	// ModeIdSet
	IdSet *sroar.Bitmap
}

// Size is the number of right-side candidates.
func (pr *PreResult) Size() int {
	switch pr.Mode {
	case ModeValues:
		return len(pr.Rows)
	case ModeIdSet:
		return pr.IdSet.GetCardinality()
	default:
		return -1
	}
}

// DistinctRightValues reads the distinct values of rightField from the
// materialized right side, converted to the left field's type when known.
// Used for condition injection into the outer filter.
func (pr *PreResult) DistinctRightValues(rightField int, leftType value.Type, rowOf func(id uint64) *payload.Row) []value.Value {
	seen := map[value.Key]bool{}
	var out []value.Value
	add := func(row *payload.Row) {
		if row.IsFree() {
			return
		}
		for _, v := range row.Get(pr.RightPt, rightField) {
			if leftType != value.TypeNull && leftType != value.TypeComposite {
				if conv, err := v.ConvertTo(leftType); err == nil {
					v = conv
				}
			}
			k := v.Key()
			if !seen[k] {
				seen[k] = true
				out = append(out, v)
			}
		}
	}
	switch pr.Mode {
	case ModeValues:
		for _, row := range pr.Rows {
			add(row)
		}
	case ModeIdSet:
		for _, id := range pr.IdSet.ToArray() {
			add(rowOf(id))
		}
	}
	return out
}
