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
	"sort"
	"time"

	"github.com/weaviate/sroar"

	"github.com/tesseradb/tessera/adapters/repos/db/aggregator"
	"github.com/tesseradb/tessera/adapters/repos/db/fulltext"
	"github.com/tesseradb/tessera/adapters/repos/db/index"
	"github.com/tesseradb/tessera/adapters/repos/db/join"
	"github.com/tesseradb/tessera/adapters/repos/db/planner"
	"github.com/tesseradb/tessera/adapters/repos/db/selector"
	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

// cancelCheckBatch bounds how many rows are walked between cancellation
// polls.
const cancelCheckBatch = 1024

// Select runs the full query pipeline and returns the materialized result.
func (db *DB) Select(ctx context.Context, q *queries.Query) (*Result, error) {
	if len(q.Merges) > 0 {
		return db.selectMerge(ctx, q)
	}
	return db.selectOne(ctx, q, 0, false)
}

func (db *DB) selectOne(ctx context.Context, q *queries.Query, nsid int, skipProject bool) (*Result, error) {
	start := time.Now()
	ns, err := db.Namespace(q.NsName)
	if err != nil {
		return nil, err
	}
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	res, err := db.selectLocked(ctx, ns, q, nsid, skipProject)
	if err != nil {
		return nil, err
	}
	db.metrics.ObserveQuery(ns.name, start, len(res.Items))
	return res, nil
}

// selectRefs evaluates a query and returns matching row ids only; used for
// join pre-results and or-inner materialization.
func (db *DB) selectRefs(ctx context.Context, q *queries.Query) ([]uint64, error) {
	res, err := db.selectOne(ctx, q, 0, true)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(res.Items))
	for i, it := range res.Items {
		ids[i] = it.Ref.ID
	}
	return ids, nil
}

func (db *DB) selectLocked(ctx context.Context, ns *Namespace, q *queries.Query, nsid int, skipProject bool) (*Result, error) {
	joinSels, err := db.prepareJoins(ctx, ns, q)
	if err != nil {
		return nil, err
	}

	p, err := planner.Preprocess(q, ns)
	if err != nil {
		return nil, err
	}

	explain := &Explain{}
	db.injectJoinConditions(ns, p, joinSels, explain)

	backend := nsBackend{ns}
	jc := &joinClause{db: db, ns: ns, ctx: ctx, sels: joinSels}
	folded, err := selector.Fold(p.Entries, backend, jc)
	if err != nil {
		return nil, err
	}
	explain.Iterations = folded.MaxIterations

	var ftData *fulltext.MergeData
	if p.FtEntry != nil {
		md, err := db.runFulltext(ctx, ns, p.FtEntry)
		if err != nil {
			return nil, err
		}
		ftData = md
		explain.Fulltext = true
	}

	aggs, cachedResults, err := db.buildAggregators(ns, q)
	if err != nil {
		return nil, err
	}

	needAll := len(aggs) > 0 || q.ReqTotal != queries.TotalDisabled || len(q.Aggregations) > 0
	collectLimit := -1
	if !needAll && p.SortFieldID < 0 && ftData == nil && q.Limit != queries.DefaultLimit {
		collectLimit = q.Limit + q.Offset
	}

	coll := &collector{
		db: db, ns: ns, ctx: ctx, nsid: nsid, q: q, p: p,
		cmps: folded.Cmps, joinSels: joinSels, aggs: aggs,
		collectLimit: collectLimit,
	}

	switch {
	case ftData != nil:
		for i := range ftData.Items {
			mi := &ftData.Items[i]
			if !folded.IDs.Contains(mi.ID) {
				continue
			}
			if err := coll.emit(mi.ID, mi.Proc); err != nil {
				return nil, err
			}
			if coll.full() {
				break
			}
		}
	case p.OrderedIndex != nil:
		err = coll.walkOrdered(p, folded.IDs)
		if err != nil {
			return nil, err
		}
	default:
		for _, id := range folded.IDs.ToArray() {
			if err := coll.emit(id, 0); err != nil {
				return nil, err
			}
			if coll.full() {
				break
			}
		}
	}

	items := coll.items
	// a sorted walk already produced order; everything else sorts here
	if p.SortFieldID >= 0 && !coll.orderedWalk {
		less := selector.ItemRefLess(p.SortDesc, p.Forced, p.SortCollate)
		sort.SliceStable(items, func(a, b int) bool { return less(items[a].Ref, items[b].Ref) })
	}
	// full-text ranked order was preserved during emission

	res := &Result{NsName: ns.name}
	res.TotalCount = coll.total
	if q.ReqTotal == queries.TotalCached {
		res.TotalCount = db.cachedTotal(ns, q, coll.total)
	}

	// aggregations materialize at end of stream
	res.Aggregations = append(res.Aggregations, cachedResults...)
	for _, a := range aggs {
		ar, err := a.Finish()
		if err != nil {
			return nil, err
		}
		if a.Type() == queries.AggCountCached {
			db.countCache.Add(countKey{q.Fingerprint(), ns.version}, int(ar.Value))
		}
		res.Aggregations = append(res.Aggregations, ar)
	}

	// limit and offset apply to the ordered item list
	if q.Offset > 0 {
		if q.Offset >= len(items) {
			items = nil
		} else {
			items = items[q.Offset:]
		}
	}
	if q.Limit >= 0 && q.Limit < len(items) {
		items = items[:q.Limit]
	}

	if !skipProject {
		for i := range items {
			doc, err := projectDoc(ns.rows[items[i].Ref.ID], q.SelectFilter, q.WithRank, items[i].Ref.Rank)
			if err != nil {
				return nil, err
			}
			items[i].Doc = doc
		}
	}
	res.Items = items
	if q.Explain {
		res.Explain = explain
	}
	return res, nil
}

// collector walks candidate ids, applies post-filters and joins, feeds the
// aggregators and gathers item refs.
type collector struct {
	db       *DB
	ns       *Namespace
	ctx      context.Context
	nsid     int
	q        *queries.Query
	p        *planner.Prepared
	cmps     []*index.Comparator
	joinSels []*join.Selector
	aggs     []*aggregator.Aggregator

	items        []Item
	total        int
	walked       int
	collectLimit int
	orderedWalk  bool
}

func (c *collector) full() bool {
	return c.collectLimit >= 0 && len(c.items) >= c.collectLimit
}

func (c *collector) emit(id uint64, rank float64) error {
	c.walked++
	if c.walked%cancelCheckBatch == 0 {
		if err := c.ctx.Err(); err != nil {
			if err == context.DeadlineExceeded {
				return terrors.New(terrors.Timeout, "select timed out")
			}
			return terrors.New(terrors.Cancelled, "select cancelled")
		}
	}
	row := c.ns.rows[id]
	if row.IsFree() {
		return nil
	}
	for _, cmp := range c.cmps {
		if !cmp.Match(row) {
			return nil
		}
	}

	joined := make([][]uint64, len(c.joinSels))
	for ji, js := range c.joinSels {
		hits, ok, err := js.Process(c.ctx, row, true)
		if err != nil {
			return err
		}
		if js.Type == queries.JoinInner && !ok {
			return nil
		}
		joined[ji] = hits
	}

	c.total++
	for _, a := range c.aggs {
		if err := a.Aggregate(row); err != nil {
			return err
		}
	}
	ref := selector.ItemRef{NsID: c.nsid, ID: id, Rank: rank}
	if c.p.SortFieldID >= 0 {
		ref.SortKey = row.First(c.ns.pt, c.p.SortFieldID)
	}
	c.items = append(c.items, Item{Ref: ref, Joined: joined})
	return nil
}

// walkOrdered drives selection in sort order through the ordered index.
func (c *collector) walkOrdered(p *planner.Prepared, candidates *sroar.Bitmap) error {
	c.orderedWalk = true
	var outerErr error
	p.OrderedIndex.WalkOrdered(p.SortDesc, func(_ value.Value, ids *sroar.Bitmap) bool {
		for _, id := range ids.ToArray() {
			if !candidates.Contains(id) {
				continue
			}
			if err := c.emit(id, 0); err != nil {
				outerErr = err
				return false
			}
			if c.full() {
				return false
			}
		}
		return true
	})
	return outerErr
}

func (db *DB) runFulltext(ctx context.Context, ns *Namespace, fte *queries.Entry) (*fulltext.MergeData, error) {
	if ns.ftIdx == nil {
		return nil, terrors.Errorf(terrors.InvalidQuery, "namespace '%s' has no fulltext index", ns.name)
	}
	if len(fte.Values) == 0 {
		return nil, terrors.New(terrors.InvalidQuery, "fulltext condition has no pattern")
	}
	terms, err := fulltext.ParseQuery(ns.ftIdx.Holder().Config(), ns.ftFields.Len(), fte.Values[0].AsString())
	if err != nil {
		return nil, err
	}
	md, err := ns.ftIdx.Selector().Process(ctx, terms)
	if err != nil {
		return nil, err
	}
	return &md, nil
}

type countKey struct {
	fingerprint string
	version     int64
}

func (db *DB) cachedTotal(ns *Namespace, q *queries.Query, computed int) int {
	key := countKey{q.Fingerprint(), ns.version}
	if v, ok := db.countCache.Get(key); ok {
		return v.(int)
	}
	db.countCache.Add(key, computed)
	return computed
}

func (db *DB) buildAggregators(ns *Namespace, q *queries.Query) ([]*aggregator.Aggregator, []aggregator.Result, error) {
	var aggs []*aggregator.Aggregator
	var cached []aggregator.Result
	for _, ae := range q.Aggregations {
		if ae.Type == queries.AggCountCached {
			key := countKey{q.Fingerprint(), ns.version}
			if v, ok := db.countCache.Get(key); ok {
				cached = append(cached, aggregator.Result{
					Type: queries.AggCountCached, Fields: ae.Fields, Value: float64(v.(int)),
				})
				continue
			}
		}
		var fs payload.FieldsSet
		for _, fname := range ae.Fields {
			fid := ns.pt.FieldByName(fname)
			if fid < 0 {
				return nil, nil, terrors.Errorf(terrors.InvalidQuery,
					"unknown aggregation field '%s' in namespace '%s'", fname, ns.name)
			}
			fs.Push(fid)
		}
		if fs.Len() == 0 && ae.Type != queries.AggCount && ae.Type != queries.AggCountCached {
			return nil, nil, terrors.Errorf(terrors.InvalidQuery, "aggregation %s needs at least one field", ae.Type)
		}
		aggs = append(aggs, aggregator.New(ns.pt, fs, ae.Fields, ae.Type, ae.Sort, ae.Limit, ae.Offset))
	}
	return aggs, cached, nil
}

func (db *DB) selectMerge(ctx context.Context, q *queries.Query) (*Result, error) {
	parts := make([]*queries.Query, 0, len(q.Merges)+1)
	main := *q
	main.Merges = nil
	main.Limit = queries.DefaultLimit
	main.Offset = 0
	parts = append(parts, &main)
	for _, mq := range q.Merges {
		sub := *mq
		sub.Limit = queries.DefaultLimit
		sub.Offset = 0
		parts = append(parts, &sub)
	}

	out := &Result{NsName: q.NsName}
	anyRank := false
	for nsid, part := range parts {
		r, err := db.selectOne(ctx, part, nsid, false)
		if err != nil {
			return nil, err
		}
		for _, it := range r.Items {
			if it.Ref.Rank > 0 {
				anyRank = true
			}
			out.Items = append(out.Items, it)
		}
		out.TotalCount += r.TotalCount
	}

	// merged results rank globally, or order by (nsid, id)
	sort.SliceStable(out.Items, func(a, b int) bool {
		x, y := out.Items[a].Ref, out.Items[b].Ref
		if anyRank && x.Rank != y.Rank {
			return x.Rank > y.Rank
		}
		if x.NsID != y.NsID {
			return x.NsID < y.NsID
		}
		return x.ID < y.ID
	})

	if q.Offset > 0 {
		if q.Offset >= len(out.Items) {
			out.Items = nil
		} else {
			out.Items = out.Items[q.Offset:]
		}
	}
	if q.Limit >= 0 && q.Limit < len(out.Items) {
		out.Items = out.Items[:q.Limit]
	}
	return out, nil
}

