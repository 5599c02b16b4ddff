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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

func newArticlesDB(t *testing.T) *DB {
	t.Helper()
	database := New("", testLogger(), nil)
	_, err := database.CreateNamespace(Definition{
		Name: "articles",
		Fields: []FieldDef{
			{Name: "id", Type: value.TypeInt, Index: IndexHash, IsPK: true},
			{Name: "title", Type: value.TypeString, Index: IndexFulltext},
			{Name: "views", Type: value.TypeInt, Index: IndexOrdered},
		},
	})
	require.NoError(t, err)
	ns, err := database.Namespace("articles")
	require.NoError(t, err)
	docs := []string{
		`{"id":1,"title":"fast red car","views":10}`,
		`{"id":2,"title":"red car fast","views":20}`,
		`{"id":3,"title":"slow blue bike","views":30}`,
	}
	for _, doc := range docs {
		_, err := ns.Upsert([]byte(doc))
		require.NoError(t, err)
	}
	return database
}

func TestFulltextRanking(t *testing.T) {
	database := newArticlesDB(t)
	q := queries.New("articles").
		Where("title", queries.CondEq, value.String("fast red car"))
	res, err := database.Select(context.Background(), q)
	require.NoError(t, err)
	// the phrase-order document outranks the shuffled one; the unrelated
	// document does not match at all
	assert.Equal(t, []int64{1, 2}, resultIDs(t, res))
	assert.Greater(t, res.Items[0].Ref.Rank, res.Items[1].Ref.Rank)
}

func TestFulltextWithPostFilter(t *testing.T) {
	database := newArticlesDB(t)
	q := queries.New("articles").
		Where("title", queries.CondEq, value.String("red car")).
		Where("views", queries.CondGt, value.Int(15))
	res, err := database.Select(context.Background(), q)
	require.NoError(t, err)
	// the remaining predicates post-filter the ranked stream
	assert.Equal(t, []int64{2}, resultIDs(t, res))
}

func TestFulltextRankProjection(t *testing.T) {
	database := newArticlesDB(t)
	q := queries.New("articles").
		Where("title", queries.CondEq, value.String("fast"))
	q.WithRank = true
	res, err := database.Select(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, res.Items)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(res.Items[0].Doc, &m))
	rank, ok := m["rank()"].(float64)
	require.True(t, ok, "rank() must be projected when requested")
	assert.Greater(t, rank, 0.0)
}

func TestFulltextNotIsRejected(t *testing.T) {
	database := newArticlesDB(t)
	q := queries.New("articles").
		WhereOp(queries.OpNot, "title", queries.CondEq, value.String("red"))
	_, err := database.Select(context.Background(), q)
	require.Error(t, err)
	assert.Equal(t, terrors.InvalidQuery, terrors.CodeOf(err))
}

func TestFulltextUpdateReindexes(t *testing.T) {
	database := newArticlesDB(t)
	ns, err := database.Namespace("articles")
	require.NoError(t, err)
	_, err = ns.Upsert([]byte(`{"id":3,"title":"fast green car","views":30}`))
	require.NoError(t, err)

	q := queries.New("articles").
		Where("title", queries.CondEq, value.String("fast"))
	res, err := database.Select(context.Background(), q)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2, 3}, resultIDs(t, res))
}
