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

package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

func testType(t *testing.T) *payload.Type {
	pt, err := payload.NewType("sales",
		payload.Field{Name: "id", Type: value.TypeInt, IsPK: true},
		payload.Field{Name: "amount", Type: value.TypeDouble},
		payload.Field{Name: "region", Type: value.TypeString},
	)
	require.NoError(t, err)
	return pt
}

func row(t *testing.T, pt *payload.Type, id int, amount value.Value, region string) *payload.Row {
	r := payload.NewRow(pt)
	r.Set(0, value.Int(id))
	r.Set(1, amount)
	r.Set(2, value.String(region))
	return r
}

func TestSumAvgMinMax(t *testing.T) {
	pt := testType(t)
	rows := []*payload.Row{
		row(t, pt, 1, value.Double(10), "eu"),
		row(t, pt, 2, value.Double(30), "eu"),
		row(t, pt, 3, value.Double(20), "us"),
	}
	for _, tc := range []struct {
		typ  queries.AggType
		want float64
	}{
		{queries.AggSum, 60},
		{queries.AggAvg, 20},
		{queries.AggMin, 10},
		{queries.AggMax, 30},
	} {
		a := New(pt, payload.NewFieldsSet(1), []string{"amount"}, tc.typ, nil, -1, 0)
		for _, r := range rows {
			require.NoError(t, a.Aggregate(r))
		}
		res, err := a.Finish()
		require.NoError(t, err)
		assert.Equal(t, tc.want, res.Value, tc.typ.String())
	}
}

func TestFacetSortByCountAndLimit(t *testing.T) {
	pt := testType(t)
	a := New(pt, payload.NewFieldsSet(2), []string{"region"}, queries.AggFacet,
		[]queries.SortEntry{{Expr: "count", Desc: true}}, 1, 0)
	regions := []string{"eu", "eu", "us", "eu", "us", "apac"}
	for i, rg := range regions {
		require.NoError(t, a.Aggregate(row(t, pt, i, value.Double(1), rg)))
	}
	res, err := a.Finish()
	require.NoError(t, err)
	require.Len(t, res.Facets, 1)
	assert.Equal(t, "eu", res.Facets[0].Values[0].AsString())
	assert.Equal(t, 3, res.Facets[0].Count)
}

func TestDistinctRelaxedNumerics(t *testing.T) {
	pt := testType(t)
	a := New(pt, payload.NewFieldsSet(1), []string{"amount"}, queries.AggDistinct, nil, -1, 0)
	// 5 as double and 5 as int collapse into one distinct value
	require.NoError(t, a.Aggregate(row(t, pt, 1, value.Double(5), "eu")))
	require.NoError(t, a.Aggregate(row(t, pt, 2, value.Int(5), "eu")))
	res, err := a.Finish()
	require.NoError(t, err)
	assert.Len(t, res.Distincts, 1)
}

func TestDistinctRejectsStringNumericMix(t *testing.T) {
	pt := testType(t)
	a := New(pt, payload.NewFieldsSet(1), []string{"amount"}, queries.AggDistinct, nil, -1, 0)
	require.NoError(t, a.Aggregate(row(t, pt, 1, value.Double(5), "eu")))
	err := a.Aggregate(row(t, pt, 2, value.String("five"), "eu"))
	require.Error(t, err)
	assert.Equal(t, terrors.InvalidAggregation, terrors.CodeOf(err))
}

func TestMultifieldFacet(t *testing.T) {
	pt := testType(t)
	a := New(pt, payload.NewFieldsSet(2, 1), []string{"region", "amount"}, queries.AggFacet, nil, -1, 0)
	require.NoError(t, a.Aggregate(row(t, pt, 1, value.Double(10), "eu")))
	require.NoError(t, a.Aggregate(row(t, pt, 2, value.Double(10), "eu")))
	require.NoError(t, a.Aggregate(row(t, pt, 3, value.Double(20), "eu")))
	res, err := a.Finish()
	require.NoError(t, err)
	require.Len(t, res.Facets, 2)
	assert.Equal(t, 2, res.Facets[0].Count)
}
