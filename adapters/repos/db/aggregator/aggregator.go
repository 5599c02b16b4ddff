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

// Package aggregator accumulates streaming aggregations over the selected
// row set: sum, avg, min, max, count, facet and distinct. The selector
// feeds every matched row in selection order; materialization happens once
// at end of stream.
package aggregator

import (
	"sort"
	"strings"

	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

// CountField is the pseudo-field name usable in facet sort lists.
const CountField = "count"

// FacetRow is one facet bucket.
type FacetRow struct {
	Values []value.Value
	Count  int
}

// Result is the materialized output of one aggregation.
type Result struct {
	Type      queries.AggType
	Fields    []string
	Value     float64
	Facets    []FacetRow
	Distincts []value.Value
}

type facetBucket struct {
	key   value.Value
	count int
	order int
}

// Aggregator is the streaming state of one aggregation.
type Aggregator struct {
	typ    queries.AggType
	pt     *payload.Type
	fields payload.FieldsSet
	names  []string
	sorts  []queries.SortEntry
	limit  int
	offset int

	sum   float64
	count int
	minV  value.Value
	maxV  value.Value
	seen  bool

	// relaxed-hash buckets shared by facet and distinct
	buckets map[uint64][]*facetBucket
	inserts int

	sawString  bool
	sawNumeric bool
}

func New(pt *payload.Type, fields payload.FieldsSet, names []string, typ queries.AggType,
	sorts []queries.SortEntry, limit, offset int,
) *Aggregator {
	return &Aggregator{
		typ: typ, pt: pt, fields: fields, names: names,
		sorts: sorts, limit: limit, offset: offset,
		buckets: map[uint64][]*facetBucket{},
	}
}

func (a *Aggregator) Type() queries.AggType { return a.typ }
func (a *Aggregator) Names() []string { return a.names }

// Aggregate consumes one matched row.
func (a *Aggregator) Aggregate(row *payload.Row) error {
	switch a.typ {
	case queries.AggCount, queries.AggCountCached:
		a.count++
		return nil
	case queries.AggFacet, queries.AggDistinct:
		return a.aggregateKeyed(row)
	}
	for _, f := range a.fields.Fields() {
		for _, v := range row.Get(a.pt, f) {
			if err := a.aggregateScalar(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *Aggregator) aggregateScalar(v value.Value) error {
	switch a.typ {
	case queries.AggSum, queries.AggAvg:
		if !v.Type().IsNumeric() && v.Type() != value.TypeBool {
			return terrors.Errorf(terrors.InvalidAggregation,
				"can't aggregate %s over a %s value", a.typ, v.Type())
		}
		a.sum += v.AsDouble()
		a.count++
	case queries.AggMin:
		if !a.seen || v.Compare(a.minV, value.CollateNone) < 0 {
			a.minV = v
			a.seen = true
		}
	case queries.AggMax:
		if !a.seen || v.Compare(a.maxV, value.CollateNone) > 0 {
			a.maxV = v
			a.seen = true
		}
	}
	return nil
}

func (a *Aggregator) aggregateKeyed(row *payload.Row) error {
	var key value.Value
	if a.fields.Len() == 1 {
		vals := row.Get(a.pt, a.fields.Fields()[0])
		if len(vals) == 0 {
			key = value.Null()
		} else {
			key = vals[0]
		}
	} else {
		key = row.CompositeKey(a.pt, a.fields)
	}
	if err := a.checkMixing(key); err != nil {
		return err
	}
	h := key.RelaxHash()
	for _, b := range a.buckets[h] {
		if relaxKeyEqual(b.key, key) {
			b.count++
			return nil
		}
	}
	a.buckets[h] = append(a.buckets[h], &facetBucket{key: key, count: 1, order: a.inserts})
	a.inserts++
	return nil
}

// checkMixing rejects String mixed with numerics in one distinct/facet
// accumulator; the relaxed comparator is undefined across those kinds.
func (a *Aggregator) checkMixing(key value.Value) error {
	if a.fields.Len() > 1 {
		// composite keys compare field-wise, mixing across fields is fine
		return nil
	}
	if key.Type() == value.TypeString {
		a.sawString = true
	} else if key.Type().IsNumeric() {
		a.sawNumeric = true
	}
	if a.sawString && a.sawNumeric {
		return terrors.Errorf(terrors.InvalidAggregation,
			"%s can't mix string and numeric values over '%s'", a.typ, strings.Join(a.names, ","))
	}
	return nil
}

func relaxKeyEqual(a, b value.Value) bool {
	sa, sb := a.Subs(), b.Subs()
	if len(sa) > 0 || len(sb) > 0 {
		if len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if !value.RelaxEqual(sa[i], sb[i]) {
				return false
			}
		}
		return true
	}
	return value.RelaxEqual(a, b)
}

// Finish materializes the aggregation result.
func (a *Aggregator) Finish() (Result, error) {
	res := Result{Type: a.typ, Fields: a.names}
	switch a.typ {
	case queries.AggSum:
		res.Value = a.sum
	case queries.AggAvg:
		if a.count > 0 {
			res.Value = a.sum / float64(a.count)
		}
	case queries.AggMin:
		if a.seen {
			res.Value = a.minV.AsDouble()
		}
	case queries.AggMax:
		if a.seen {
			res.Value = a.maxV.AsDouble()
		}
	case queries.AggCount, queries.AggCountCached:
		res.Value = float64(a.count)
	case queries.AggDistinct:
		res.Distincts = a.orderedKeys()
	case queries.AggFacet:
		res.Facets = a.facetRows()
	}
	return res, nil
}

func (a *Aggregator) allBuckets() []*facetBucket {
	out := make([]*facetBucket, 0, a.inserts)
	for _, chain := range a.buckets {
		out = append(out, chain...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

func (a *Aggregator) orderedKeys() []value.Value {
	bs := a.allBuckets()
	out := make([]value.Value, len(bs))
	for i, b := range bs {
		out[i] = b.key
	}
	return out
}

func (a *Aggregator) facetRows() []FacetRow {
	bs := a.allBuckets()
	rows := make([]FacetRow, len(bs))
	for i, b := range bs {
		vals := b.key.Subs()
		if a.fields.Len() == 1 {
			vals = []value.Value{b.key}
		}
		rows[i] = FacetRow{Values: vals, Count: b.count}
	}
	if len(a.sorts) > 0 {
		sort.SliceStable(rows, func(i, j int) bool { return a.facetLess(rows[i], rows[j]) })
	}
	if a.offset > 0 {
		if a.offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[a.offset:]
		}
	}
	if a.limit >= 0 && a.limit < len(rows) {
		rows = rows[:a.limit]
	}
	return rows
}

func (a *Aggregator) facetLess(x, y FacetRow) bool {
	for _, s := range a.sorts {
		var c int
		if strings.EqualFold(s.Expr, CountField) {
			switch {
			case x.Count < y.Count:
				c = -1
			case x.Count > y.Count:
				c = 1
			}
		} else {
			fi := a.nameIndex(s.Expr)
			if fi < 0 || fi >= len(x.Values) {
				continue
			}
			c = x.Values[fi].Compare(y.Values[fi], value.CollateNone)
		}
		if c != 0 {
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
	}
	return false
}

func (a *Aggregator) nameIndex(name string) int {
	for i, n := range a.names {
		if strings.EqualFold(n, name) {
			return i
		}
	}
	return -1
}
