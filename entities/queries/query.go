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

package queries

import (
	"strconv"
	"strings"

	"github.com/tesseradb/tessera/entities/value"
)

const (
	DefaultLimit  = 1 << 30
	DefaultOffset = 0
)

type ReqTotal int8

const (
	TotalDisabled ReqTotal = iota
	TotalEnabled
	TotalCached
)

// SortEntry is one member of the sort list. ForcedValues, when present,
// make rows with those sort-key values come first, in the given order,
// before the natural order applies.
type SortEntry struct {
	Expr         string
	Desc         bool
	ForcedValues []value.Value
}

// AggEntry declares one aggregation over the selected row set.
type AggEntry struct {
	Type   AggType
	Fields []string
	// Sort applies to facet output; "count" is the pseudo-field.
	Sort   []SortEntry
	Limit  int
	Offset int
}

// OnEntry is one join-on condition; Op relates it to the previous on-entry.
type OnEntry struct {
	Op         Op
	LeftField  string
	Cond       Condition
	RightField string
}

// JoinQuery describes one joined sub-query.
type JoinQuery struct {
	Type  JoinType
	Query *Query
	On    []OnEntry
}

// Query is the parsed query tree consumed by the selector pipeline.
type Query struct {
	NsName       string
	Entries      []*Entry
	Sort         []SortEntry
	Aggregations []AggEntry
	Joins        []JoinQuery
	Merges       []*Query
	SelectFilter []string
	// EqualPositions constrains array fields at identical positions.
	EqualPositions [][]string
	Limit          int
	Offset         int
	ReqTotal       ReqTotal
	Explain        bool
	StrictMode     StrictMode
	WithRank       bool
}

func New(nsName string) *Query {
	return &Query{NsName: nsName, Limit: DefaultLimit}
}

func (q *Query) Where(field string, cond Condition, vals ...value.Value) *Query {
	q.Entries = append(q.Entries, NewCondEntry(OpAnd, field, cond, vals...))
	return q
}

func (q *Query) WhereOp(op Op, field string, cond Condition, vals ...value.Value) *Query {
	q.Entries = append(q.Entries, NewCondEntry(op, field, cond, vals...))
	return q
}

func (q *Query) Bracket(op Op, children ...*Entry) *Query {
	q.Entries = append(q.Entries, NewBracket(op, children...))
	return q
}

func (q *Query) SortBy(expr string, desc bool, forced ...value.Value) *Query {
	q.Sort = append(q.Sort, SortEntry{Expr: expr, Desc: desc, ForcedValues: forced})
	return q
}

func (q *Query) Aggregate(t AggType, fields ...string) *Query {
	q.Aggregations = append(q.Aggregations, AggEntry{Type: t, Fields: fields, Limit: DefaultLimit})
	return q
}

func (q *Query) Join(jt JoinType, sub *Query, on ...OnEntry) *Query {
	q.Joins = append(q.Joins, JoinQuery{Type: jt, Query: sub, On: on})
	joinIdx := len(q.Joins) - 1
	op := OpAnd
	if jt == JoinOrInner {
		op = OpOr
	}
	if jt != JoinLeft {
		q.Entries = append(q.Entries, NewJoinRef(op, joinIdx))
	}
	return q
}

// Fingerprint is a stable identity of the query shape and operands, used as
// the cache key for join pre-results and cached counts.
func (q *Query) Fingerprint() string {
	var sb strings.Builder
	sb.WriteString(q.NsName)
	sb.WriteByte('|')
	for _, e := range q.Entries {
		sb.WriteString(e.Dump())
	}
	for _, s := range q.Sort {
		sb.WriteString(s.Expr)
		if s.Desc {
			sb.WriteString(" desc")
		}
		sb.WriteByte(';')
	}
	sb.WriteString(strconv.Itoa(q.Limit))
	sb.WriteByte(':')
	sb.WriteString(strconv.Itoa(q.Offset))
	return sb.String()
}
