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
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func newBooksDB(t *testing.T) *DB {
	t.Helper()
	database := New("", testLogger(), nil)
	_, err := database.CreateNamespace(Definition{
		Name: "books",
		Fields: []FieldDef{
			{Name: "id", Type: value.TypeInt, Index: IndexHash, IsPK: true},
			{Name: "author_id", Type: value.TypeString, Index: IndexHash},
			{Name: "pages", Type: value.TypeInt, Index: IndexOrdered},
		},
	})
	require.NoError(t, err)
	ns, err := database.Namespace("books")
	require.NoError(t, err)
	rows := []string{
		`{"id":1,"author_id":"A","pages":100}`,
		`{"id":2,"author_id":"A","pages":300}`,
		`{"id":3,"author_id":"B","pages":300}`,
		`{"id":4,"author_id":"A","pages":300}`,
	}
	for _, doc := range rows {
		_, err := ns.Upsert([]byte(doc))
		require.NoError(t, err)
	}
	return database
}

// resultIDs extracts the document PKs from the projected items.
func resultIDs(t *testing.T, res *Result) []int64 {
	t.Helper()
	out := make([]int64, len(res.Items))
	for i := range res.Items {
		out[i] = int64(docValue(t, res, i, "id").(float64))
	}
	return out
}

func docValue(t *testing.T, res *Result, i int, field string) interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Items[i].Doc, &m))
	return m[field]
}

func TestAndIntersectionWithOrderedSort(t *testing.T) {
	database := newBooksDB(t)
	q := queries.New("books").
		Where("author_id", queries.CondEq, value.String("A")).
		Where("pages", queries.CondEq, value.Int(300)).
		SortBy("pages", true)
	res, err := database.Select(context.Background(), q)
	require.NoError(t, err)
	// tie on pages breaks by ascending id
	assert.Equal(t, []int64{2, 4}, resultIDs(t, res))
}

func TestForcedSortPrefix(t *testing.T) {
	database := newBooksDB(t)
	q := queries.New("books").
		SortBy("author_id", false, value.String("B"), value.String("A"))
	res, err := database.Select(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Items, 4)
	var authors []string
	for i := range res.Items {
		authors = append(authors, docValue(t, res, i, "author_id").(string))
	}
	assert.Equal(t, []string{"B", "A", "A", "A"}, authors)
}

func TestRangeAndLimitOffset(t *testing.T) {
	database := newBooksDB(t)
	q := queries.New("books").
		Where("pages", queries.CondRange, value.Int(100), value.Int(300)).
		SortBy("pages", false)
	q.Limit = 2
	q.Offset = 1
	res, err := database.Select(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	// pages order: 100(id1), then 300 ties by id: 2,3,4
	assert.Equal(t, []int64{2, 3}, resultIDs(t, res))
}

func TestInnerJoinWithConditionInjection(t *testing.T) {
	database := newBooksDB(t)
	_, err := database.CreateNamespace(Definition{
		Name: "authors",
		Fields: []FieldDef{
			{Name: "id", Type: value.TypeString, Index: IndexHash, IsPK: true},
			{Name: "country", Type: value.TypeString, Index: IndexHash},
		},
	})
	require.NoError(t, err)
	authors, err := database.Namespace("authors")
	require.NoError(t, err)
	_, err = authors.Upsert([]byte(`{"id":"A","country":"US"}`))
	require.NoError(t, err)
	_, err = authors.Upsert([]byte(`{"id":"B","country":"DE"}`))
	require.NoError(t, err)

	sub := queries.New("authors").Where("country", queries.CondEq, value.String("US"))
	q := queries.New("books").Join(queries.JoinInner, sub,
		queries.OnEntry{Op: queries.OpAnd, LeftField: "author_id", Cond: queries.CondEq, RightField: "id"})
	q.Explain = true

	res, err := database.Select(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 4}, resultIDs(t, res))

	// the right-side key set was pushed into the outer filter
	require.NotNil(t, res.Explain)
	require.Len(t, res.Explain.Injected, 1)
	assert.Contains(t, res.Explain.Injected[0], "author_id")

	// every joined bucket holds exactly the one matching author row
	for _, it := range res.Items {
		require.Len(t, it.Joined, 1)
		assert.Len(t, it.Joined[0], 1)
	}
}

func TestLeftJoinKeepsUnmatchedRows(t *testing.T) {
	database := newBooksDB(t)
	_, err := database.CreateNamespace(Definition{
		Name: "awards",
		Fields: []FieldDef{
			{Name: "id", Type: value.TypeInt, Index: IndexHash, IsPK: true},
			{Name: "author", Type: value.TypeString, Index: IndexHash},
		},
	})
	require.NoError(t, err)
	awards, err := database.Namespace("awards")
	require.NoError(t, err)
	_, err = awards.Upsert([]byte(`{"id":1,"author":"B"}`))
	require.NoError(t, err)

	sub := queries.New("awards")
	q := queries.New("books").Join(queries.JoinLeft, sub,
		queries.OnEntry{Op: queries.OpAnd, LeftField: "author_id", Cond: queries.CondEq, RightField: "author"})
	res, err := database.Select(context.Background(), q)
	require.NoError(t, err)
	// every outer row appears exactly once
	assert.Equal(t, []int64{1, 2, 3, 4}, resultIDs(t, res))
	for i := range res.Items {
		bucket := res.Items[i].Joined[0]
		if docValue(t, res, i, "author_id") == "B" {
			assert.Len(t, bucket, 1)
		} else {
			assert.Empty(t, bucket)
		}
	}
}

func TestAggregations(t *testing.T) {
	database := newBooksDB(t)
	q := queries.New("books").
		Aggregate(queries.AggSum, "pages").
		Aggregate(queries.AggFacet, "author_id").
		Aggregate(queries.AggDistinct, "pages")
	res, err := database.Select(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Aggregations, 3)

	assert.Equal(t, float64(1000), res.Aggregations[0].Value)

	facets := res.Aggregations[1].Facets
	require.Len(t, facets, 2)
	counts := map[string]int{}
	for _, f := range facets {
		counts[f.Values[0].AsString()] = f.Count
	}
	assert.Equal(t, map[string]int{"A": 3, "B": 1}, counts)

	assert.Len(t, res.Aggregations[2].Distincts, 2)
}

func TestCountCachedServedFromCache(t *testing.T) {
	database := newBooksDB(t)
	q := queries.New("books").Aggregate(queries.AggCountCached)
	res, err := database.Select(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Aggregations, 1)
	assert.Equal(t, float64(4), res.Aggregations[0].Value)

	// warm cache, unchanged namespace version: same answer
	res, err = database.Select(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, float64(4), res.Aggregations[0].Value)

	// a write bumps the version and invalidates the cached count
	ns, err := database.Namespace("books")
	require.NoError(t, err)
	_, err = ns.Upsert([]byte(`{"id":5,"author_id":"C","pages":50}`))
	require.NoError(t, err)
	res, err = database.Select(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, float64(5), res.Aggregations[0].Value)
}

func TestNotAndTwoFieldPredicates(t *testing.T) {
	database := newBooksDB(t)
	q := queries.New("books").
		WhereOp(queries.OpNot, "author_id", queries.CondEq, value.String("A"))
	res, err := database.Select(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, resultIDs(t, res))

	q = queries.New("books")
	q.Entries = append(q.Entries, queries.NewTwoFields(queries.OpAnd, "id", queries.CondLt, "pages"))
	res, err = database.Select(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, res.Items, 4)
}

func TestSelectFilterProjection(t *testing.T) {
	database := newBooksDB(t)
	q := queries.New("books").Where("id", queries.CondEq, value.Int(1))
	q.SelectFilter = []string{"author_id"}
	res, err := database.Select(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Items[0].Doc, &m))
	assert.Len(t, m, 1)
	assert.Equal(t, "A", m["author_id"])
}

func TestMergeQueriesOrdering(t *testing.T) {
	database := newBooksDB(t)
	_, err := database.CreateNamespace(Definition{
		Name: "magazines",
		Fields: []FieldDef{
			{Name: "id", Type: value.TypeInt, Index: IndexHash, IsPK: true},
		},
	})
	require.NoError(t, err)
	mags, err := database.Namespace("magazines")
	require.NoError(t, err)
	_, err = mags.Upsert([]byte(`{"id":7}`))
	require.NoError(t, err)

	q := queries.New("books").Where("pages", queries.CondEq, value.Int(100))
	q.Merges = append(q.Merges, queries.New("magazines"))
	res, err := database.Select(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	// no ranks: merged ordering is (nsid, id)
	assert.Equal(t, 0, res.Items[0].Ref.NsID)
	assert.Equal(t, 1, res.Items[1].Ref.NsID)
}

func TestSelectCancellation(t *testing.T) {
	database := newBooksDB(t)
	ns, err := database.Namespace("books")
	require.NoError(t, err)
	for i := 10; i < 3000; i++ {
		_, err := ns.Upsert([]byte(fmt.Sprintf(`{"id":%d,"author_id":"Z","pages":%d}`, i, i)))
		require.NoError(t, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = database.Select(ctx, queries.New("books"))
	require.Error(t, err)
	assert.Equal(t, terrors.Cancelled, terrors.CodeOf(err))

	ctx2, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	_, err = database.Select(ctx2, queries.New("books"))
	require.Error(t, err)
	assert.Equal(t, terrors.Timeout, terrors.CodeOf(err))
}

func TestStrictModeThroughSelect(t *testing.T) {
	database := newBooksDB(t)
	q := queries.New("books").Where("missing", queries.CondEq, value.Int(1))
	q.StrictMode = queries.StrictModeNames
	_, err := database.Select(context.Background(), q)
	require.Error(t, err)
	assert.Equal(t, terrors.StrictMode, terrors.CodeOf(err))
}
