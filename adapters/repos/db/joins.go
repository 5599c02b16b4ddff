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

package db

import (
	"context"
	"fmt"

	"github.com/weaviate/sroar"

	"github.com/tesseradb/tessera/adapters/repos/db/join"
	"github.com/tesseradb/tessera/adapters/repos/db/planner"
	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/terrors"
)

// prepareJoins materializes the pre-result of every joined sub-query and
// builds the per-join selectors. The execution mode follows the right-side
// size: values, id-set, or per-row deferred probing.
func (db *DB) prepareJoins(ctx context.Context, ns *Namespace, q *queries.Query) ([]*join.Selector, error) {
	if len(q.Joins) == 0 {
		return nil, nil
	}
	sels := make([]*join.Selector, len(q.Joins))
	for ji, jq := range q.Joins {
		rightNs, err := db.Namespace(jq.Query.NsName)
		if err != nil {
			return nil, err
		}
		pre, err := db.joinPreResult(ctx, rightNs, jq.Query)
		if err != nil {
			return nil, err
		}
		rn := rightNs
		sels[ji] = &join.Selector{
			Type:     jq.Type,
			RightNs:  jq.Query.NsName,
			On:       jq.On,
			SubQuery: jq.Query,
			Pre:      pre,
			LeftPt:   ns.pt,
			RightRow: func(id uint64) *payload.Row {
				rn.mu.RLock()
				defer rn.mu.RUnlock()
				if id >= uint64(len(rn.rows)) {
					return nil
				}
				return rn.rows[id]
			},
			Right: func(ctx context.Context, sub *queries.Query) ([]uint64, error) {
				return db.selectRefs(ctx, sub)
			},
		}
	}
	return sels, nil
}

func (db *DB) joinPreResult(ctx context.Context, rightNs *Namespace, sub *queries.Query) (*join.PreResult, error) {
	fp := sub.Fingerprint()
	if pre, ok := db.joinCache.Get(fp, rightNs.Version()); ok {
		return pre, nil
	}

	probe := *sub
	probe.Limit = join.IdSetThreshold + 1
	probe.Offset = 0
	ids, err := db.selectRefs(ctx, &probe)
	if err != nil {
		return nil, err
	}

	pre := &join.PreResult{RightPt: rightNs.pt}
	switch {
	case len(ids) > join.IdSetThreshold:
		pre.Mode = join.ModeDefer
	case len(ids) > join.ValuesThreshold:
		pre.Mode = join.ModeIdSet
		pre.IdSet = sroar.NewBitmap()
		pre.IdSet.SetMany(ids)
	default:
		pre.Mode = join.ModeValues
		pre.IDs = ids
		rightNs.mu.RLock()
		pre.Rows = make([]*payload.Row, len(ids))
		for i, id := range ids {
			pre.Rows[i] = rightNs.rows[id]
		}
		rightNs.mu.RUnlock()
	}
	db.joinCache.Put(fp, rightNs.Version(), pre)
	return pre, nil
}

// injectJoinConditions pushes distinct right-side join-key values into the
// outer filter where the join engine's rules allow it, converting a nested
// loop into two independent index scans.
func (db *DB) injectJoinConditions(ns *Namespace, p *planner.Prepared, sels []*join.Selector, explain *Explain) {
	if len(sels) == 0 {
		return
	}
	outerMax := db.estimateMaxIterations(ns, p)
	for _, js := range sels {
		if js.Pre != nil {
			explain.JoinModes = append(explain.JoinModes,
				fmt.Sprintf("%s:%s", js.RightNs, js.Pre.Mode))
		}
		injected := 0
		for oi, on := range js.On {
			lf := ns.pt.FieldByName(on.LeftField)
			var leftIndexed, leftFulltext, leftSparse bool
			if lf >= 0 {
				if idx := ns.fieldIdx[lf]; idx != nil {
					leftIndexed = true
					leftFulltext = idx.IsFulltext()
					leftSparse = idx.IsSparse()
				}
			}
			if !js.CanInject(oi, leftIndexed, leftFulltext, leftSparse, outerMax) {
				continue
			}
			rf := js.Pre.RightPt.FieldByName(on.RightField)
			if rf < 0 {
				continue
			}
			leftType := ns.pt.Field(lf).Type
			vals := js.Pre.DistinctRightValues(rf, leftType, js.RightRow)
			p.InjectCondition(on.LeftField, lf, queries.CondSet, vals, ns.pt.Field(lf).Collate)
			explain.Injected = append(explain.Injected,
				fmt.Sprintf("%s IN [%d values from %s.%s]", on.LeftField, len(vals), js.RightNs, on.RightField))
			injected++
		}
		js.Optimized = injected == len(js.On) && injected > 0
	}
}

// estimateMaxIterations bounds the cheapest driving iterator of the
// prepared query, before joins.
func (db *DB) estimateMaxIterations(ns *Namespace, p *planner.Prepared) int {
	best := ns.live.GetCardinality()
	for _, e := range p.Entries {
		if e.Kind != queries.KindCondition || e.Op != queries.OpAnd || e.FieldID < 0 {
			continue
		}
		idx := ns.fieldIdx[e.FieldID]
		if idx == nil || idx.IsFulltext() || idx.IsSparse() {
			continue
		}
		if s := idx.Size(); s < best {
			best = s
		}
	}
	if best < 1 {
		best = 1
	}
	return best
}

// joinClause resolves join references during the filter fold: or-inner
// joins materialize to the id-set of matching outer rows, inner joins stay
// deferred and filter per row after selection.
type joinClause struct {
	db   *DB
	ns   *Namespace
	ctx  context.Context
	sels []*join.Selector
}

func (jc *joinClause) EvaluateJoin(idx int) (*sroar.Bitmap, error) {
	if idx < 0 || idx >= len(jc.sels) {
		return nil, terrors.Errorf(terrors.Internal, "join index %d out of range", idx)
	}
	js := jc.sels[idx]
	if js.Type != queries.JoinOrInner {
		return nil, nil
	}
	out := sroar.NewBitmap()
	for _, id := range jc.ns.live.ToArray() {
		row := jc.ns.rows[id]
		if row.IsFree() {
			continue
		}
		_, ok, err := js.Process(jc.ctx, row, false)
		if err != nil {
			return nil, err
		}
		if ok {
			out.Set(id)
		}
	}
	return out, nil
}

