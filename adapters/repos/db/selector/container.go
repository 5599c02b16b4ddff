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
	"github.com/weaviate/sroar"

	"github.com/tesseradb/tessera/adapters/repos/db/index"
	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/terrors"
)

// RowSource abstracts the namespace row storage for scans and post-filter
// evaluation.
type RowSource interface {
	Type() *payload.Type
	Row(id uint64) *payload.Row
	// LiveIDs is the id-set of all committed rows (the scan universe).
	LiveIDs() *sroar.Bitmap
	RowCount() int
}

// Backend resolves filter leaves against the namespace's index set. The
// preprocessor has already typed the entries; the backend executes the
// lookups and binds comparators.
type Backend interface {
	// SelectEntry runs the index lookup for a condition leaf. Non-indexed
	// leaves come back as comparator results.
	SelectEntry(e *queries.Entry, opts index.SelectOpts) ([]index.KeyResult, error)
	// BindComparator resolves a comparator's field against the schema.
	BindComparator(c *index.Comparator, e *queries.Entry)
	Source() RowSource
}

// JoinClause lets the container treat join references as opaque
// predicates: the join engine materializes them into id-sets on demand.
type JoinClause interface {
	// EvaluateJoin returns the id-set of outer rows satisfying join number
	// idx, or nil when the join must run per-row after selection.
	EvaluateJoin(idx int) (*sroar.Bitmap, error)
}

// Result of folding the filter tree: a concrete id-set plus the comparator
// post-filters applied while walking rows.
type Folded struct {
	IDs  *sroar.Bitmap
	Cmps []*index.Comparator
	// MaxIterations is the iteration bound of the cheapest driving set
	// before post-filters.
	MaxIterations int
}

// Fold reduces the (preprocessed) entry list into a Folded result. The
// entry ops fold left to right: AND intersects, OR unions, NOT subtracts,
// matching the bracket semantics of the query model.
func Fold(entries []*queries.Entry, b Backend, joins JoinClause) (Folded, error) {
	universe := b.Source().LiveIDs()
	return foldLevel(entries, b, joins, universe)
}

func foldLevel(entries []*queries.Entry, b Backend, joins JoinClause, universe *sroar.Bitmap) (Folded, error) {
	out := Folded{MaxIterations: universe.GetCardinality()}
	var acc *sroar.Bitmap // nil means "universe so far"

	// a positive conjunct yielding nothing short-circuits the level, but
	// only once no later Or can resurrect it
	lastOr := -1
	for i, e := range entries {
		if e.Op == queries.OpOr {
			lastOr = i
		}
	}

	for i, e := range entries {
		ids, cmps, err := foldEntry(e, b, joins, universe)
		if err != nil {
			return out, err
		}

		switch e.Op {
		case queries.OpAnd:
			out.Cmps = append(out.Cmps, cmps...)
			if ids == nil {
				continue
			}
			if acc == nil {
				acc = ids.Clone()
			} else {
				acc.And(ids)
			}
			if acc.IsEmpty() && i >= lastOr {
				out.IDs = acc
				out.MaxIterations = 0
				return out, nil
			}
		case queries.OpOr:
			if ids == nil {
				ids = materialize(cmps, b.Source(), universe)
			} else if len(cmps) > 0 {
				sub := materialize(cmps, b.Source(), ids)
				ids = sub
			}
			if acc == nil {
				acc = ids.Clone()
			} else {
				acc.Or(ids)
			}
		case queries.OpNot:
			if ids == nil {
				ids = materialize(cmps, b.Source(), universe)
			} else if len(cmps) > 0 {
				ids = materialize(cmps, b.Source(), ids)
			}
			if acc == nil {
				acc = universe.Clone()
			}
			acc.AndNot(ids)
		}
	}

	if acc == nil {
		acc = universe.Clone()
	}
	out.IDs = acc
	out.MaxIterations = acc.GetCardinality()
	return out, nil
}

func foldEntry(e *queries.Entry, b Backend, joins JoinClause, universe *sroar.Bitmap) (*sroar.Bitmap, []*index.Comparator, error) {
	switch e.Kind {
	case queries.KindAlwaysTrue:
		return universe.Clone(), nil, nil
	case queries.KindAlwaysFalse:
		return sroar.NewBitmap(), nil, nil
	case queries.KindBracket:
		folded, err := foldLevel(e.Children, b, joins, universe)
		if err != nil {
			return nil, nil, err
		}
		if len(folded.Cmps) > 0 {
			// brackets must resolve fully so the enclosing fold can treat
			// them as one id-set
			ids := materialize(folded.Cmps, b.Source(), folded.IDs)
			return ids, nil, nil
		}
		return folded.IDs, nil, nil
	case queries.KindJoinRef:
		if joins == nil {
			return nil, nil, terrors.Errorf(terrors.Internal, "join reference %d outside a join context", e.JoinIndex)
		}
		ids, err := joins.EvaluateJoin(e.JoinIndex)
		if err != nil {
			return nil, nil, err
		}
		if ids == nil {
			// deferred join: keep every candidate, the join engine filters
			// per row after selection
			return universe.Clone(), nil, nil
		}
		return ids, nil, nil
	case queries.KindTwoFields:
		cmp := index.NewComparator(e.Field, e.Cond, e.Collate)
		b.BindComparator(cmp, e)
		return nil, []*index.Comparator{cmp}, nil
	default: // KindCondition
		results, err := b.SelectEntry(e, index.SelectOpts{MaxIterations: universe.GetCardinality()})
		if err != nil {
			return nil, nil, err
		}
		it := NewSelectIterator(results, e.Field)
		for _, c := range it.Comparators() {
			b.BindComparator(c, e)
		}
		if !it.HasIDs() && len(it.Comparators()) > 0 {
			return nil, it.Comparators(), nil
		}
		ids := it.IDs()
		if ids == nil {
			ids = sroar.NewBitmap()
		}
		return ids, it.Comparators(), nil
	}
}

// materialize resolves comparators into a concrete id-set by scanning the
// candidate universe. Needed when a comparator sits under Or or Not, where
// late filtering cannot express the algebra.
func materialize(cmps []*index.Comparator, src RowSource, candidates *sroar.Bitmap) *sroar.Bitmap {
	out := sroar.NewBitmap()
	for _, id := range candidates.ToArray() {
		row := src.Row(id)
		if row.IsFree() {
			continue
		}
		ok := true
		for _, c := range cmps {
			if !c.Match(row) {
				ok = false
				break
			}
		}
		if ok {
			out.Set(id)
		}
	}
	return out
}
