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

package join

import (
	"context"

	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/value"
)

// RightSelect executes the join sub-query against the right namespace and
// returns matching row ids. Used in deferred mode.
type RightSelect func(ctx context.Context, q *queries.Query) ([]uint64, error)

// Selector executes one join against the current outer row set.
type Selector struct {
	Type     queries.JoinType
	RightNs  string
	On       []queries.OnEntry
	SubQuery *queries.Query
	Pre      *PreResult

	LeftPt   *payload.Type
	RightRow func(id uint64) *payload.Row
	Right    RightSelect

	// Optimized marks joins whose on-conditions were fully injected into
	// the outer filter: Process can skip re-probing for match checks.
	Optimized bool

	Called  int
	Matched int
}

// Process probes the right side for one outer row. It returns the joined
// right-side row ids; for Inner joins an empty result means the outer row
// is dropped. match=false runs the existence check only (OrInner inside a
// satisfied conjunction keeps the row without materializing hits).
func (js *Selector) Process(ctx context.Context, leftRow *payload.Row, match bool) ([]uint64, bool, error) {
	js.Called++
	if js.Optimized && !match {
		js.Matched++
		return nil, true, nil
	}

	conds, alwaysFalse := js.substituteOnValues(leftRow)
	if alwaysFalse {
		return nil, false, nil
	}

	var hits []uint64
	var err error
	switch js.Pre.Mode {
	case ModeValues:
		hits = js.probeValues(conds)
	case ModeIdSet:
		hits = js.probeIdSet(conds)
	default:
		hits, err = js.probeDeferred(ctx, conds)
		if err != nil {
			return nil, false, err
		}
	}
	if len(hits) > 0 {
		js.Matched++
	}
	return hits, len(hits) > 0, nil
}

type onCond struct {
	rightField int
	cond       queries.Condition
	op         queries.Op
	leftVals   []value.Value
}

// substituteOnValues reads the join-on left values from the outer row. An
// on-entry whose left field has no value in this row can never match.
func (js *Selector) substituteOnValues(leftRow *payload.Row) ([]onCond, bool) {
	conds := make([]onCond, 0, len(js.On))
	for _, on := range js.On {
		lf := js.LeftPt.FieldByName(on.LeftField)
		var vals []value.Value
		if lf >= 0 {
			vals = leftRow.Get(js.LeftPt, lf)
		}
		if len(vals) == 0 && on.Op == queries.OpAnd {
			return nil, true
		}
		rf := js.Pre.RightPt.FieldByName(on.RightField)
		conds = append(conds, onCond{rightField: rf, cond: on.Cond, op: on.Op, leftVals: vals})
	}
	return conds, false
}

func (js *Selector) matchOnConds(row *payload.Row, conds []onCond) bool {
	result := true
	first := true
	for _, c := range conds {
		m := js.matchOne(row, c)
		if first {
			result = m
			first = false
			continue
		}
		switch c.op {
		case queries.OpOr:
			result = result || m
		case queries.OpNot:
			result = result && !m
		default:
			result = result && m
		}
	}
	return result
}

func (js *Selector) matchOne(row *payload.Row, c onCond) bool {
	if c.rightField < 0 || row.IsFree() {
		return false
	}
	rvals := row.Get(js.Pre.RightPt, c.rightField)
	for _, rv := range rvals {
		for _, lv := range c.leftVals {
			var ok bool
			switch c.cond {
			case queries.CondEq, queries.CondSet:
				ok = rv.Compare(lv, value.CollateNone) == 0
			case queries.CondLt:
				// left < right, the condition relates left to right
				ok = lv.Compare(rv, value.CollateNone) < 0
			case queries.CondLe:
				ok = lv.Compare(rv, value.CollateNone) <= 0
			case queries.CondGt:
				ok = lv.Compare(rv, value.CollateNone) > 0
			case queries.CondGe:
				ok = lv.Compare(rv, value.CollateNone) >= 0
			}
			if ok {
				return true
			}
		}
	}
	return false
}

func (js *Selector) probeValues(conds []onCond) []uint64 {
	var hits []uint64
	limit := js.SubQuery.Limit
	for i, row := range js.Pre.Rows {
		if js.matchOnConds(row, conds) {
			hits = append(hits, js.Pre.IDs[i])
			if len(hits) >= limit {
				break
			}
		}
	}
	return hits
}

func (js *Selector) probeIdSet(conds []onCond) []uint64 {
	var hits []uint64
	limit := js.SubQuery.Limit
	for _, id := range js.Pre.IdSet.ToArray() {
		row := js.RightRow(id)
		if js.matchOnConds(row, conds) {
			hits = append(hits, id)
			if len(hits) >= limit {
				break
			}
		}
	}
	return hits
}

// probeDeferred pushes the on-conditions into the sub-query and runs it
// against the right namespace.
func (js *Selector) probeDeferred(ctx context.Context, conds []onCond) ([]uint64, error) {
	q := *js.SubQuery
	entries := make([]*queries.Entry, len(q.Entries), len(q.Entries)+len(conds))
	copy(entries, q.Entries)
	for i, c := range conds {
		cond := c.cond
		if cond == queries.CondEq && len(c.leftVals) > 1 {
			cond = queries.CondSet
		}
		e := queries.NewCondEntry(js.On[i].Op, js.On[i].RightField, invertOnCond(cond), c.leftVals...)
		entries = append(entries, e)
	}
	q.Entries = entries
	return js.Right(ctx, &q)
}

// invertOnCond flips an ordering condition: "left < right" probed from the
// right side reads "right > left".
func invertOnCond(c queries.Condition) queries.Condition {
	switch c {
	case queries.CondLt:
		return queries.CondGt
	case queries.CondLe:
		return queries.CondGe
	case queries.CondGt:
		return queries.CondLt
	case queries.CondGe:
		return queries.CondLe
	default:
		return c
	}
}

// CanInject reports whether the derived right-side key set may be pushed
// into the outer filter for this join (§values/id-set modes with equality
// on-conditions over plain indexed left fields).
func (js *Selector) CanInject(onIdx int, leftIndexed, leftFulltext, leftSparse bool, outerMaxIterations int) bool {
	if js.Type != queries.JoinInner || js.Pre == nil || js.Pre.Mode == ModeDefer {
		return false
	}
	on := js.On[onIdx]
	if on.Op != queries.OpAnd || (on.Cond != queries.CondEq && on.Cond != queries.CondSet) {
		return false
	}
	if onIdx+1 < len(js.On) && js.On[onIdx+1].Op == queries.OpOr {
		return false
	}
	if !leftIndexed || leftFulltext || leftSparse {
		return false
	}
	return js.Pre.Size() <= outerMaxIterations*MaxIterationsScale
}
