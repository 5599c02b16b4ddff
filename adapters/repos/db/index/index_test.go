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

package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/sroar"

	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

func selectIDs(t *testing.T, idx Index, cond queries.Condition, vals ...value.Value) []uint64 {
	t.Helper()
	results, err := idx.SelectKey(vals, cond, SelectOpts{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.False(t, results[0].IsComparator())
	return results[0].IDs.ToArray()
}

func TestHashIndexEqSet(t *testing.T) {
	h := NewHash("brand", value.TypeString, value.CollateNone, false)
	require.NoError(t, h.Upsert(value.String("audi"), 1))
	require.NoError(t, h.Upsert(value.String("audi"), 2))
	require.NoError(t, h.Upsert(value.String("bmw"), 3))

	assert.Equal(t, []uint64{1, 2}, selectIDs(t, h, queries.CondEq, value.String("audi")))
	assert.Equal(t, []uint64{1, 2, 3}, selectIDs(t, h, queries.CondSet, value.String("audi"), value.String("bmw")))
	assert.Empty(t, selectIDs(t, h, queries.CondEq, value.String("opel")))
	assert.Equal(t, 3, h.Size())
}

func TestHashIndexPKConflict(t *testing.T) {
	h := NewHash("id", value.TypeInt, value.CollateNone, true)
	require.NoError(t, h.Upsert(value.Int(1), 10))
	err := h.Upsert(value.Int(1), 11)
	require.Error(t, err)
	assert.Equal(t, terrors.Conflict, terrors.CodeOf(err))
	// re-adding the same row id is a no-op, not a conflict
	require.NoError(t, h.Upsert(value.Int(1), 10))
}

func TestHashIndexDeletePresence(t *testing.T) {
	h := NewHash("tags", value.TypeString, value.CollateNone, false)
	// an array field references the row from two buckets
	require.NoError(t, h.Upsert(value.String("a"), 1))
	require.NoError(t, h.Upsert(value.String("b"), 1))
	require.NoError(t, h.Delete(value.String("a"), 1))
	assert.Equal(t, []uint64{1}, selectIDs(t, h, queries.CondAny))
	require.NoError(t, h.Delete(value.String("b"), 1))
	assert.Empty(t, selectIDs(t, h, queries.CondAny))
}

func TestHashIndexRangeFallsBackToComparator(t *testing.T) {
	h := NewHash("x", value.TypeInt, value.CollateNone, false)
	results, err := h.SelectKey([]value.Value{value.Int(5)}, queries.CondLt, SelectOpts{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsComparator())
}

func TestOrderedIndexRanges(t *testing.T) {
	o := NewOrdered("pages", value.TypeInt, value.CollateNone, false)
	for i, pages := range []int{100, 300, 300, 500} {
		require.NoError(t, o.Upsert(value.Int(pages), uint64(i+1)))
	}

	assert.Equal(t, []uint64{2, 3}, selectIDs(t, o, queries.CondEq, value.Int(300)))
	assert.Equal(t, []uint64{1}, selectIDs(t, o, queries.CondLt, value.Int(300)))
	assert.Equal(t, []uint64{1, 2, 3}, selectIDs(t, o, queries.CondLe, value.Int(300)))
	assert.Equal(t, []uint64{4}, selectIDs(t, o, queries.CondGt, value.Int(300)))
	assert.Equal(t, []uint64{2, 3, 4}, selectIDs(t, o, queries.CondGe, value.Int(300)))
	assert.Equal(t, []uint64{1, 2, 3}, selectIDs(t, o, queries.CondRange, value.Int(100), value.Int(300)))
}

func TestOrderedWalk(t *testing.T) {
	o := NewOrdered("pages", value.TypeInt, value.CollateNone, false)
	require.NoError(t, o.Upsert(value.Int(300), 2))
	require.NoError(t, o.Upsert(value.Int(100), 1))
	require.NoError(t, o.Upsert(value.Int(500), 3))

	var asc []int64
	o.WalkOrdered(false, func(k value.Value, _ *sroar.Bitmap) bool {
		asc = append(asc, k.AsInt64())
		return true
	})
	assert.Equal(t, []int64{100, 300, 500}, asc)

	var desc []int64
	o.WalkOrdered(true, func(k value.Value, _ *sroar.Bitmap) bool {
		desc = append(desc, k.AsInt64())
		return true
	})
	assert.Equal(t, []int64{500, 300, 100}, desc)
}

func TestComparatorConditions(t *testing.T) {
	pt, err := payload.NewType("t",
		payload.Field{Name: "n", Type: value.TypeInt},
		payload.Field{Name: "s", Type: value.TypeString},
		payload.Field{Name: "arr", Type: value.TypeInt, IsArray: true},
	)
	require.NoError(t, err)
	row := payload.NewRow(pt)
	row.Set(0, value.Int(10))
	row.Set(1, value.String("hello world"))
	row.Set(2, value.Int(1), value.Int(2), value.Int(3))

	tests := []struct {
		name  string
		field int
		cond  queries.Condition
		vals  []value.Value
		want  bool
	}{
		{"eq hit", 0, queries.CondEq, []value.Value{value.Int(10)}, true},
		{"eq miss", 0, queries.CondEq, []value.Value{value.Int(11)}, false},
		{"range", 0, queries.CondRange, []value.Value{value.Int(5), value.Int(15)}, true},
		{"like", 1, queries.CondLike, []value.Value{value.String("hello%")}, true},
		{"like miss", 1, queries.CondLike, []value.Value{value.String("%bye%")}, false},
		{"like underscore", 1, queries.CondLike, []value.Value{value.String("hell_ world")}, true},
		{"any array element", 2, queries.CondEq, []value.Value{value.Int(2)}, true},
		{"allset", 2, queries.CondAllSet, []value.Value{value.Int(1), value.Int(3)}, true},
		{"allset miss", 2, queries.CondAllSet, []value.Value{value.Int(1), value.Int(9)}, false},
		{"empty", 0, queries.CondEmpty, nil, false},
		{"any", 0, queries.CondAny, nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewComparator(pt.Field(tc.field).Name, tc.cond, value.CollateNone, tc.vals...)
			c.Bind(pt, tc.field)
			assert.Equal(t, tc.want, c.Match(row))
		})
	}
}

func TestComparatorJSONPath(t *testing.T) {
	pt, err := payload.NewType("t", payload.Field{Name: "id", Type: value.TypeInt, IsPK: true})
	require.NoError(t, err)
	row := payload.NewRow(pt)
	row.SetTuple([]byte(`{"id":1,"meta":{"rating":4}}`))

	c := NewComparator("meta.rating", queries.CondGe, value.CollateNone, value.Int(3))
	c.JSONPath = "meta.rating"
	c.Bind(pt, -1)
	assert.True(t, c.Match(row))

	c2 := NewComparator("meta.rating", queries.CondGt, value.CollateNone, value.Int(4))
	c2.JSONPath = "meta.rating"
	c2.Bind(pt, -1)
	assert.False(t, c2.Match(row))
}

func TestCompositeIndex(t *testing.T) {
	comp := NewComposite("brand+year", payload.NewFieldsSet(1, 2), value.CollateNone)
	key := value.Composite(value.String("audi"), value.Int(2020))
	require.NoError(t, comp.Upsert(key, 1))
	assert.Equal(t, []uint64{1}, selectIDs(t, comp, queries.CondEq, value.Composite(value.String("audi"), value.Int(2020))))
	assert.Empty(t, selectIDs(t, comp, queries.CondEq, value.Composite(value.String("audi"), value.Int(2021))))
	assert.Equal(t, payload.NewFieldsSet(1, 2), comp.Fields())
}
