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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseradb/tessera/entities/value"
)

func TestFromDSLBasic(t *testing.T) {
	q, err := FromDSL([]byte(`{
		"namespace": "books",
		"limit": 10,
		"offset": 5,
		"filters": [
			{"op": "and", "cond": "eq", "field": "author_id", "value": "A"},
			{"op": "and", "cond": "range", "field": "pages", "value": [100, 300]},
			{"op": "or", "filters": [
				{"cond": "set", "field": "genre", "value": ["sf", "fantasy"]}
			]}
		],
		"sort": [{"field": "pages", "desc": true}],
		"req_total": "enabled",
		"strict_mode": "names"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "books", q.NsName)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, 5, q.Offset)
	assert.Equal(t, TotalEnabled, q.ReqTotal)
	assert.Equal(t, StrictModeNames, q.StrictMode)

	require.Len(t, q.Entries, 3)
	assert.Equal(t, CondEq, q.Entries[0].Cond)
	assert.Equal(t, "A", q.Entries[0].Values[0].AsString())
	assert.Equal(t, CondRange, q.Entries[1].Cond)
	require.Len(t, q.Entries[1].Values, 2)
	assert.Equal(t, OpOr, q.Entries[2].Op)
	assert.Equal(t, KindBracket, q.Entries[2].Kind)
	require.Len(t, q.Entries[2].Children, 1)
	assert.Equal(t, CondSet, q.Entries[2].Children[0].Cond)

	require.Len(t, q.Sort, 1)
	assert.True(t, q.Sort[0].Desc)
}

func TestFromDSLJoin(t *testing.T) {
	q, err := FromDSL([]byte(`{
		"namespace": "books",
		"filters": [{
			"op": "and",
			"join_query": {
				"type": "inner",
				"namespace": "authors",
				"filters": [{"cond": "eq", "field": "country", "value": "US"}],
				"on": [{"left_field": "author_id", "right_field": "id", "cond": "eq", "op": "and"}]
			}
		}]
	}`))
	require.NoError(t, err)
	require.Len(t, q.Joins, 1)
	assert.Equal(t, JoinInner, q.Joins[0].Type)
	assert.Equal(t, "authors", q.Joins[0].Query.NsName)
	require.Len(t, q.Joins[0].On, 1)
	assert.Equal(t, "author_id", q.Joins[0].On[0].LeftField)
	require.Len(t, q.Entries, 1)
	assert.Equal(t, KindJoinRef, q.Entries[0].Kind)
}

func TestFromDSLLeftJoinHasNoFilterRef(t *testing.T) {
	q, err := FromDSL([]byte(`{
		"namespace": "books",
		"filters": [{
			"join_query": {
				"type": "left",
				"namespace": "awards",
				"on": [{"left_field": "author_id", "right_field": "author", "cond": "eq"}]
			}
		}]
	}`))
	require.NoError(t, err)
	require.Len(t, q.Joins, 1)
	assert.Equal(t, JoinLeft, q.Joins[0].Type)
	// a left join never filters the outer rows
	require.Len(t, q.Entries, 1)
	assert.Equal(t, KindAlwaysTrue, q.Entries[0].Kind)
}

func TestFromDSLAggregationsAndMerge(t *testing.T) {
	q, err := FromDSL([]byte(`{
		"namespace": "books",
		"aggregations": [
			{"type": "facet", "fields": ["author_id"], "sort": [{"field": "count", "desc": true}], "limit": 10},
			{"type": "distinct", "fields": ["pages"]}
		],
		"merge_queries": [{"namespace": "magazines"}]
	}`))
	require.NoError(t, err)
	require.Len(t, q.Aggregations, 2)
	assert.Equal(t, AggFacet, q.Aggregations[0].Type)
	assert.Equal(t, 10, q.Aggregations[0].Limit)
	require.Len(t, q.Merges, 1)
	assert.Equal(t, "magazines", q.Merges[0].NsName)
}

func TestFromDSLErrors(t *testing.T) {
	_, err := FromDSL([]byte(`{"filters": []}`))
	require.Error(t, err, "namespace is mandatory")

	_, err = FromDSL([]byte(`{"namespace": "x", "filters": [{"cond": "wat", "field": "f"}]}`))
	require.Error(t, err)

	_, err = FromDSL([]byte(`{"namespace": "x", "req_total": "bogus"}`))
	require.Error(t, err)

	_, err = FromDSL([]byte(`{"namespace": "x", "filters": [{"join_query": {"type": "inner", "namespace": "y", "on": []}}]}`))
	require.Error(t, err, "join without on-conditions")
}

func TestTwoFieldFilter(t *testing.T) {
	q, err := FromDSL([]byte(`{
		"namespace": "books",
		"filters": [{"cond": "lt", "first_field": "sold", "second_field": "printed"}]
	}`))
	require.NoError(t, err)
	require.Len(t, q.Entries, 1)
	assert.Equal(t, KindTwoFields, q.Entries[0].Kind)
	assert.Equal(t, "sold", q.Entries[0].Field)
	assert.Equal(t, "printed", q.Entries[0].RightFieldName)
}

func TestDecodeScalarTypes(t *testing.T) {
	q, err := FromDSL([]byte(`{
		"namespace": "x",
		"filters": [
			{"cond": "eq", "field": "a", "value": 5},
			{"cond": "eq", "field": "b", "value": 5.5},
			{"cond": "eq", "field": "c", "value": true},
			{"cond": "eq", "field": "d", "value": null}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, value.TypeInt64, q.Entries[0].Values[0].Type())
	assert.Equal(t, value.TypeDouble, q.Entries[1].Values[0].Type())
	assert.Equal(t, value.TypeBool, q.Entries[2].Values[0].Type())
	assert.True(t, q.Entries[3].Values[0].IsNull())
}
