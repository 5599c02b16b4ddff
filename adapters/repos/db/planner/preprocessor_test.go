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

package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseradb/tessera/adapters/repos/db/index"
	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

// fakeNs is the minimal schema view for preprocessor tests.
type fakeNs struct {
	pt         *payload.Type
	indexes    map[int]index.Index
	composites []CompositeInfo
}

func newFakeNs(t *testing.T) *fakeNs {
	pt, err := payload.NewType("items",
		payload.Field{Name: "id", Type: value.TypeInt, IsPK: true},
		payload.Field{Name: "price", Type: value.TypeInt},
		payload.Field{Name: "brand", Type: value.TypeString},
		payload.Field{Name: "year", Type: value.TypeInt},
	)
	require.NoError(t, err)
	return &fakeNs{
		pt: pt,
		indexes: map[int]index.Index{
			0: index.NewHash("id", value.TypeInt, value.CollateNone, true),
			1: index.NewOrdered("price", value.TypeInt, value.CollateNone, false),
			2: index.NewHash("brand", value.TypeString, value.CollateNone, false),
		},
	}
}

func (f *fakeNs) PayloadType() *payload.Type { return f.pt }
func (f *fakeNs) IndexForField(id int) index.Index { return f.indexes[id] }
func (f *fakeNs) Composites() []CompositeInfo { return f.composites }

func prep(t *testing.T, ns Namespace, q *queries.Query) *Prepared {
	p, err := Preprocess(q, ns)
	require.NoError(t, err)
	return p
}

func TestMergeEqEq(t *testing.T) {
	ns := newFakeNs(t)

	q := queries.New("items").
		Where("price", queries.CondEq, value.Int(10)).
		Where("price", queries.CondEq, value.Int(10))
	p := prep(t, ns, q)
	require.Len(t, p.Entries, 1)
	assert.Equal(t, queries.CondEq, p.Entries[0].Cond)

	q = queries.New("items").
		Where("price", queries.CondEq, value.Int(10)).
		Where("price", queries.CondEq, value.Int(20))
	p = prep(t, ns, q)
	require.Len(t, p.Entries, 1)
	assert.Equal(t, queries.KindAlwaysFalse, p.Entries[0].Kind)
}

func TestMergeSetSet(t *testing.T) {
	ns := newFakeNs(t)
	q := queries.New("items").
		Where("price", queries.CondSet, value.Int(1), value.Int(2), value.Int(3)).
		Where("price", queries.CondSet, value.Int(2), value.Int(3), value.Int(4))
	p := prep(t, ns, q)
	require.Len(t, p.Entries, 1)
	assert.Equal(t, queries.CondSet, p.Entries[0].Cond)
	require.Len(t, p.Entries[0].Values, 2)

	// disjoint sets annihilate
	q = queries.New("items").
		Where("price", queries.CondSet, value.Int(1)).
		Where("price", queries.CondSet, value.Int(9))
	p = prep(t, ns, q)
	require.Len(t, p.Entries, 1)
	assert.Equal(t, queries.KindAlwaysFalse, p.Entries[0].Kind)
}

func TestMergeBounds(t *testing.T) {
	ns := newFakeNs(t)

	// Lt + Lt keeps the tighter bound
	q := queries.New("items").
		Where("price", queries.CondLt, value.Int(10)).
		Where("price", queries.CondLt, value.Int(5))
	p := prep(t, ns, q)
	require.Len(t, p.Entries, 1)
	assert.Equal(t, queries.CondLt, p.Entries[0].Cond)
	assert.Equal(t, int64(5), p.Entries[0].Values[0].AsInt64())

	// Ge + Le fold into a range
	q = queries.New("items").
		Where("price", queries.CondGe, value.Int(3)).
		Where("price", queries.CondLe, value.Int(8))
	p = prep(t, ns, q)
	require.Len(t, p.Entries, 1)
	assert.Equal(t, queries.CondRange, p.Entries[0].Cond)

	// Range + Ge tightens the lower bound, empty intersection annihilates
	q = queries.New("items").
		Where("price", queries.CondRange, value.Int(1), value.Int(5)).
		Where("price", queries.CondGe, value.Int(7))
	p = prep(t, ns, q)
	require.Len(t, p.Entries, 1)
	assert.Equal(t, queries.KindAlwaysFalse, p.Entries[0].Kind)
}

func TestMergeAnyYieldsOther(t *testing.T) {
	ns := newFakeNs(t)
	q := queries.New("items").
		Where("price", queries.CondAny).
		Where("price", queries.CondEq, value.Int(10))
	p := prep(t, ns, q)
	require.Len(t, p.Entries, 1)
	assert.Equal(t, queries.CondEq, p.Entries[0].Cond)
}

func TestMergeDoesNotCrossOr(t *testing.T) {
	ns := newFakeNs(t)
	q := queries.New("items").
		Where("price", queries.CondEq, value.Int(10)).
		WhereOp(queries.OpOr, "brand", queries.CondEq, value.String("x")).
		Where("price", queries.CondEq, value.Int(20))
	p := prep(t, ns, q)
	// nothing merged: the Or boundary protects both price entries
	assert.Len(t, p.Entries, 3)
}

func TestPreprocessIdempotent(t *testing.T) {
	ns := newFakeNs(t)
	q := queries.New("items").
		Where("price", queries.CondGe, value.Int(3)).
		Where("price", queries.CondLe, value.Int(8)).
		WhereOp(queries.OpOr, "brand", queries.CondEq, value.String("x"))
	p1 := prep(t, ns, q)

	q2 := queries.New("items")
	q2.Entries = p1.Entries
	p2 := prep(t, ns, q2)

	require.Equal(t, len(p1.Entries), len(p2.Entries))
	for i := range p1.Entries {
		assert.Equal(t, p1.Entries[i].Dump(), p2.Entries[i].Dump())
	}
}

func TestCompositeSubstitution(t *testing.T) {
	ns := newFakeNs(t)
	ns.composites = []CompositeInfo{{
		Name:   "brand+year",
		Fields: payload.NewFieldsSet(2, 3),
	}}
	q := queries.New("items").
		Where("brand", queries.CondEq, value.String("x")).
		Where("year", queries.CondEq, value.Int(2020)).
		Where("price", queries.CondLt, value.Int(100))
	p := prep(t, ns, q)
	require.Len(t, p.Entries, 2)
	assert.Equal(t, "brand+year", p.Entries[0].Field)
	assert.Equal(t, queries.CondEq, p.Entries[0].Cond)
	require.Len(t, p.Entries[0].Values, 1)
	assert.Equal(t, value.TypeComposite, p.Entries[0].Values[0].Type())
	assert.Equal(t, "price", p.Entries[1].Field)
}

func TestStrictModeNames(t *testing.T) {
	ns := newFakeNs(t)
	q := queries.New("items").Where("no_such_field", queries.CondEq, value.Int(1))
	q.StrictMode = queries.StrictModeNames
	_, err := Preprocess(q, ns)
	require.Error(t, err)
	assert.Equal(t, terrors.StrictMode, terrors.CodeOf(err))

	// without strict mode the unknown field becomes a tuple-path predicate
	q.StrictMode = queries.StrictModeNone
	_, err = Preprocess(q, ns)
	require.NoError(t, err)
}

func TestStrictModeIndexes(t *testing.T) {
	ns := newFakeNs(t)
	q := queries.New("items").Where("year", queries.CondEq, value.Int(2020))
	q.StrictMode = queries.StrictModeIndexes
	_, err := Preprocess(q, ns)
	require.Error(t, err)
	assert.Equal(t, terrors.StrictMode, terrors.CodeOf(err))
}

func TestBracketFlattening(t *testing.T) {
	ns := newFakeNs(t)
	inner := queries.NewCondEntry(queries.OpAnd, "price", queries.CondEq, value.Int(10))
	q := queries.New("items").Bracket(queries.OpAnd, inner)
	p := prep(t, ns, q)
	require.Len(t, p.Entries, 1)
	assert.Equal(t, queries.KindCondition, p.Entries[0].Kind)
}

func TestForcedSortResolution(t *testing.T) {
	ns := newFakeNs(t)
	q := queries.New("items").
		SortBy("price", false, value.String("300"), value.String("100"))
	p := prep(t, ns, q)
	assert.Equal(t, 1, p.SortFieldID)
	require.Len(t, p.Forced, 2)
	// forced values coerce to the sort field's type
	assert.Equal(t, value.TypeInt, p.Forced[0].Type())
	// forced-sort queries cannot ride the ordered walker
	assert.Nil(t, p.OrderedIndex)
}

func TestOrderedIndexDrivesSort(t *testing.T) {
	ns := newFakeNs(t)
	q := queries.New("items").SortBy("price", true)
	p := prep(t, ns, q)
	assert.NotNil(t, p.OrderedIndex)
	assert.True(t, p.SortDesc)
}
