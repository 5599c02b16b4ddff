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
	"encoding/json"
	"math"

	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

// JSON DSL shapes. Only the query model consumed by the core is decoded
// here; SQL text parsing lives outside.

type dslQuery struct {
	Namespace      string         `json:"namespace"`
	Limit          *int           `json:"limit"`
	Offset         int            `json:"offset"`
	Filters        []dslFilter    `json:"filters"`
	Sort           []dslSort      `json:"sort"`
	MergeQueries   []dslQuery     `json:"merge_queries"`
	SelectFilter   []string       `json:"select_filter"`
	ReqTotal       string         `json:"req_total"`
	Aggregations   []dslAgg       `json:"aggregations"`
	Explain        bool           `json:"explain"`
	EqualPositions [][]string     `json:"equal_positions"`
	StrictMode     string         `json:"strict_mode"`
	Type           string         `json:"type"`
	WithRank       bool           `json:"with_rank"`
	DropFields     []string       `json:"drop_fields"`
	UpdateFields   []dslUpdateFld `json:"update_fields"`
}

type dslFilter struct {
	Op             string          `json:"op"`
	Cond           string          `json:"cond"`
	Field          string          `json:"field"`
	FirstField     string          `json:"first_field"`
	SecondField    string          `json:"second_field"`
	Value          json.RawMessage `json:"value"`
	Filters        []dslFilter     `json:"filters"`
	JoinQuery      *dslJoinQuery   `json:"join_query"`
	EqualPositions [][]string      `json:"equal_positions"`
}

type dslJoinQuery struct {
	Type         string      `json:"type"`
	Namespace    string      `json:"namespace"`
	Filters      []dslFilter `json:"filters"`
	Sort         []dslSort   `json:"sort"`
	Limit        *int        `json:"limit"`
	Offset       int         `json:"offset"`
	On           []dslOn     `json:"on"`
	SelectFilter []string    `json:"select_filter"`
}

type dslOn struct {
	LeftField  string `json:"left_field"`
	RightField string `json:"right_field"`
	Cond       string `json:"cond"`
	Op         string `json:"op"`
}

type dslSort struct {
	Field  string            `json:"field"`
	Desc   bool              `json:"desc"`
	Values []json.RawMessage `json:"values"`
}

type dslAgg struct {
	Type   string    `json:"type"`
	Fields []string  `json:"fields"`
	Sort   []dslSort `json:"sort"`
	Limit  *int      `json:"limit"`
	Offset int       `json:"offset"`
}

type dslUpdateFld struct {
	Name   string          `json:"name"`
	Value  json.RawMessage `json:"value"`
	IsExpr bool            `json:"is_expression"`
}

// FromDSL decodes the JSON query DSL into a Query.
func FromDSL(data []byte) (*Query, error) {
	var dq dslQuery
	if err := json.Unmarshal(data, &dq); err != nil {
		return nil, terrors.Errorf(terrors.InvalidQuery, "DSL parse error: %v", err)
	}
	return buildQuery(&dq)
}

func buildQuery(dq *dslQuery) (*Query, error) {
	if dq.Namespace == "" {
		return nil, terrors.New(terrors.InvalidQuery, "DSL query has no namespace")
	}
	q := New(dq.Namespace)
	if dq.Limit != nil {
		q.Limit = *dq.Limit
	}
	q.Offset = dq.Offset
	q.SelectFilter = dq.SelectFilter
	q.EqualPositions = dq.EqualPositions
	q.Explain = dq.Explain
	q.WithRank = dq.WithRank

	switch dq.ReqTotal {
	case "", "disabled":
	case "enabled":
		q.ReqTotal = TotalEnabled
	case "cached":
		q.ReqTotal = TotalCached
	default:
		return nil, terrors.Errorf(terrors.InvalidQuery, "unknown req_total mode '%s'", dq.ReqTotal)
	}
	switch dq.StrictMode {
	case "", "none":
	case "names":
		q.StrictMode = StrictModeNames
	case "indexes":
		q.StrictMode = StrictModeIndexes
	default:
		return nil, terrors.Errorf(terrors.InvalidQuery, "unknown strict mode '%s'", dq.StrictMode)
	}

	for _, f := range dq.Filters {
		e, err := buildFilter(q, &f)
		if err != nil {
			return nil, err
		}
		q.Entries = append(q.Entries, e)
	}
	for _, s := range dq.Sort {
		se, err := buildSort(&s)
		if err != nil {
			return nil, err
		}
		q.Sort = append(q.Sort, se)
	}
	for _, a := range dq.Aggregations {
		ae, err := buildAgg(&a)
		if err != nil {
			return nil, err
		}
		q.Aggregations = append(q.Aggregations, ae)
	}
	for i := range dq.MergeQueries {
		mq, err := buildQuery(&dq.MergeQueries[i])
		if err != nil {
			return nil, err
		}
		q.Merges = append(q.Merges, mq)
	}
	return q, nil
}

func buildFilter(q *Query, f *dslFilter) (*Entry, error) {
	op, err := opFromDSL(f.Op)
	if err != nil {
		return nil, err
	}
	switch {
	case f.JoinQuery != nil:
		return buildJoinRef(q, op, f.JoinQuery)
	case len(f.Filters) > 0:
		br := NewBracket(op)
		for i := range f.Filters {
			child, err := buildFilter(q, &f.Filters[i])
			if err != nil {
				return nil, err
			}
			br.Children = append(br.Children, child)
		}
		return br, nil
	case f.FirstField != "":
		cond, ok := CondFromDSL(f.Cond)
		if !ok {
			return nil, terrors.Errorf(terrors.InvalidQuery, "unknown condition '%s'", f.Cond)
		}
		return NewTwoFields(op, f.FirstField, cond, f.SecondField), nil
	default:
		cond, ok := CondFromDSL(f.Cond)
		if !ok {
			return nil, terrors.Errorf(terrors.InvalidQuery, "unknown condition '%s'", f.Cond)
		}
		vals, err := decodeValues(f.Value)
		if err != nil {
			return nil, err
		}
		return NewCondEntry(op, f.Field, cond, vals...), nil
	}
}

func buildJoinRef(q *Query, op Op, jq *dslJoinQuery) (*Entry, error) {
	var jt JoinType
	switch jq.Type {
	case "inner":
		jt = JoinInner
	case "left":
		jt = JoinLeft
	case "orinner":
		jt = JoinOrInner
	default:
		return nil, terrors.Errorf(terrors.InvalidQuery, "unknown join type '%s'", jq.Type)
	}
	sub := New(jq.Namespace)
	if jq.Limit != nil {
		sub.Limit = *jq.Limit
	}
	sub.Offset = jq.Offset
	sub.SelectFilter = jq.SelectFilter
	for i := range jq.Filters {
		e, err := buildFilter(sub, &jq.Filters[i])
		if err != nil {
			return nil, err
		}
		sub.Entries = append(sub.Entries, e)
	}
	for _, s := range jq.Sort {
		se, err := buildSort(&s)
		if err != nil {
			return nil, err
		}
		sub.Sort = append(sub.Sort, se)
	}
	var on []OnEntry
	for _, o := range jq.On {
		cond, ok := CondFromDSL(o.Cond)
		if !ok {
			return nil, terrors.Errorf(terrors.InvalidQuery, "unknown join-on condition '%s'", o.Cond)
		}
		oop := OpAnd
		if o.Op != "" {
			var err error
			if oop, err = opFromDSL(o.Op); err != nil {
				return nil, err
			}
		}
		on = append(on, OnEntry{Op: oop, LeftField: o.LeftField, Cond: cond, RightField: o.RightField})
	}
	if len(on) == 0 {
		return nil, terrors.New(terrors.InvalidQuery, "join has no on-conditions")
	}
	q.Joins = append(q.Joins, JoinQuery{Type: jt, Query: sub, On: on})
	if jt == JoinLeft {
		return AlwaysTrue(op), nil
	}
	return NewJoinRef(op, len(q.Joins)-1), nil
}

func buildSort(s *dslSort) (SortEntry, error) {
	se := SortEntry{Expr: s.Field, Desc: s.Desc}
	for _, raw := range s.Values {
		v, err := decodeScalar(raw)
		if err != nil {
			return se, err
		}
		se.ForcedValues = append(se.ForcedValues, v)
	}
	return se, nil
}

func buildAgg(a *dslAgg) (AggEntry, error) {
	ae := AggEntry{Fields: a.Fields, Limit: DefaultLimit, Offset: a.Offset}
	if a.Limit != nil {
		ae.Limit = *a.Limit
	}
	switch a.Type {
	case "sum":
		ae.Type = AggSum
	case "avg":
		ae.Type = AggAvg
	case "min":
		ae.Type = AggMin
	case "max":
		ae.Type = AggMax
	case "facet":
		ae.Type = AggFacet
	case "distinct":
		ae.Type = AggDistinct
	case "count":
		ae.Type = AggCount
	case "count_cached":
		ae.Type = AggCountCached
	default:
		return ae, terrors.Errorf(terrors.InvalidQuery, "unknown aggregation type '%s'", a.Type)
	}
	for _, s := range a.Sort {
		se, err := buildSort(&s)
		if err != nil {
			return ae, err
		}
		ae.Sort = append(ae.Sort, se)
	}
	return ae, nil
}

func opFromDSL(s string) (Op, error) {
	switch s {
	case "", "and":
		return OpAnd, nil
	case "or":
		return OpOr, nil
	case "not":
		return OpNot, nil
	default:
		return OpAnd, terrors.Errorf(terrors.InvalidQuery, "unknown operator '%s'", s)
	}
}

func decodeValues(raw json.RawMessage) ([]value.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil && len(raw) > 0 && raw[0] == '[' {
		out := make([]value.Value, 0, len(arr))
		for _, item := range arr {
			v, err := decodeScalar(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	v, err := decodeScalar(raw)
	if err != nil {
		return nil, err
	}
	return []value.Value{v}, nil
}

func decodeScalar(raw json.RawMessage) (value.Value, error) {
	var iv interface{}
	if err := json.Unmarshal(raw, &iv); err != nil {
		return value.Value{}, terrors.Errorf(terrors.InvalidQuery, "bad filter value: %v", err)
	}
	switch tv := iv.(type) {
	case nil:
		return value.Null(), nil
	case bool:
		return value.Bool(tv), nil
	case float64:
		if tv == math.Trunc(tv) && math.Abs(tv) < 1<<53 {
			return value.Int64(int64(tv)), nil
		}
		return value.Double(tv), nil
	case string:
		return value.String(tv), nil
	default:
		return value.Value{}, terrors.New(terrors.InvalidQuery, "unsupported filter value type")
	}
}
