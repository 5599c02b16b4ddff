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

package payload

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseradb/tessera/entities/value"
)

func TestTypeAppendOnly(t *testing.T) {
	pt, err := NewType("ns",
		Field{Name: "id", Type: value.TypeInt, IsPK: true},
		Field{Name: "name", Type: value.TypeString},
	)
	require.NoError(t, err)
	assert.Equal(t, 0, pt.FieldByName("ID"), "field names resolve case-insensitively")
	assert.Equal(t, -1, pt.FieldByName("missing"))
	assert.Equal(t, 0, pt.PKField())

	require.NoError(t, pt.AddField(Field{Name: "extra", Type: value.TypeDouble}))
	assert.Equal(t, 2, pt.FieldByName("extra"))

	err = pt.AddField(Field{Name: "name", Type: value.TypeInt})
	require.Error(t, err)
	err = pt.AddField(Field{Name: "pk2", Type: value.TypeInt, IsPK: true})
	require.Error(t, err, "a second PK is rejected")
}

func TestRowSparseAndPathAccess(t *testing.T) {
	pt, err := NewType("ns",
		Field{Name: "id", Type: value.TypeInt, IsPK: true},
		Field{Name: "score", Type: value.TypeDouble, IsSparse: true, JSONPath: "nested.score"},
	)
	require.NoError(t, err)
	row := NewRow(pt)
	row.Set(0, value.Int(1))
	row.SetTuple([]byte(`{"id":1,"nested":{"score":2.5,"tags":["a","b"]}}`))

	vals := row.Get(pt, 1)
	require.Len(t, vals, 1)
	assert.Equal(t, 2.5, vals[0].AsDouble())

	tags := row.ValuesByPath("nested.tags", value.TypeString)
	require.Len(t, tags, 2)
	assert.Equal(t, "a", tags[0].AsString())
}

func TestRowHashDeterministic(t *testing.T) {
	pt, err := NewType("ns",
		Field{Name: "id", Type: value.TypeInt, IsPK: true},
		Field{Name: "n", Type: value.TypeInt},
	)
	require.NoError(t, err)
	mk := func() *Row {
		r := NewRow(pt)
		r.Set(0, value.Int(1))
		r.Set(1, value.Int(5))
		r.SetTuple([]byte(`{"id":1,"n":5}`))
		return r
	}
	assert.Equal(t, mk().Hash(pt), mk().Hash(pt))

	other := mk()
	other.Set(1, value.Int(6))
	assert.NotEqual(t, mk().Hash(pt), other.Hash(pt))
}

func TestTagsMatcherNeverReusesNumbers(t *testing.T) {
	tm := NewTagsMatcher()
	a := tm.TagOrAdd("alpha")
	b := tm.TagOrAdd("beta")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, tm.TagOrAdd("alpha"))
	assert.Equal(t, "beta", tm.Name(b))
	assert.Equal(t, -1, tm.Tag("gamma"))
	assert.Equal(t, int32(2), tm.Version())
}

func TestTagsMatcherConcurrentAdds(t *testing.T) {
	tm := NewTagsMatcher()
	var wg sync.WaitGroup
	names := []string{"a", "b", "c", "d", "e"}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, n := range names {
				tm.TagOrAdd(n)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, len(names), tm.Size())
	seen := map[int]bool{}
	for _, n := range names {
		tag := tm.Tag(n)
		require.False(t, seen[tag], "tag numbers must be unique")
		seen[tag] = true
	}
}
