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
	"github.com/google/btree"
	"github.com/weaviate/sroar"

	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

const btreeDegree = 16

type orderedItem struct {
	key value.Value
	ids *sroar.Bitmap
}

// Ordered is the btree-backed index: equality, ranges, and ordered walks
// that supply row order for sorted selects.
type Ordered struct {
	name    string
	keyType value.Type
	collate value.CollateMode
	isPK    bool

	tree    *btree.BTreeG[orderedItem]
	present *sroar.Bitmap
	refs    map[uint64]int
	size    int
}

func NewOrdered(name string, keyType value.Type, collate value.CollateMode, isPK bool) *Ordered {
	less := func(a, b orderedItem) bool {
		return a.key.Compare(b.key, collate) < 0
	}
	return &Ordered{
		name: name, keyType: keyType, collate: collate, isPK: isPK,
		tree:    btree.NewG(btreeDegree, less),
		present: sroar.NewBitmap(),
		refs:    map[uint64]int{},
	}
}

func (o *Ordered) Name() string { return o.name }
func (o *Ordered) KeyType() value.Type { return o.keyType }
func (o *Ordered) Collate() value.CollateMode { return o.collate }
func (o *Ordered) IsOrdered() bool { return true }
func (o *Ordered) IsFulltext() bool { return false }
func (o *Ordered) IsSparse() bool { return false }
func (o *Ordered) Size() int { return o.size }

func (o *Ordered) SelectKey(vals []value.Value, cond queries.Condition, opts SelectOpts) ([]KeyResult, error) {
	switch cond {
	case queries.CondEq, queries.CondSet:
		out := sroar.NewBitmap()
		for _, v := range vals {
			if item, ok := o.tree.Get(orderedItem{key: v}); ok {
				out.Or(item.ids)
			}
		}
		return []KeyResult{{IDs: out}}, nil
	case queries.CondAllSet:
		var out *sroar.Bitmap
		for _, v := range vals {
			item, ok := o.tree.Get(orderedItem{key: v})
			if !ok {
				return []KeyResult{{IDs: sroar.NewBitmap()}}, nil
			}
			if out == nil {
				out = item.ids.Clone()
			} else {
				out.And(item.ids)
			}
		}
		if out == nil {
			out = sroar.NewBitmap()
		}
		return []KeyResult{{IDs: out}}, nil
	case queries.CondAny:
		return []KeyResult{{IDs: o.present.Clone()}}, nil
	case queries.CondEmpty:
		return []KeyResult{{Cmp: NewComparator(o.name, queries.CondEmpty, o.collate)}}, nil
	case queries.CondLt, queries.CondLe:
		if len(vals) == 0 {
			return nil, terrors.Errorf(terrors.InvalidQuery, "condition %s on '%s' needs a value", cond, o.name)
		}
		out := sroar.NewBitmap()
		o.tree.AscendLessThan(orderedItem{key: vals[0]}, func(it orderedItem) bool {
			out.Or(it.ids)
			return true
		})
		if cond == queries.CondLe {
			if item, ok := o.tree.Get(orderedItem{key: vals[0]}); ok {
				out.Or(item.ids)
			}
		}
		return []KeyResult{{IDs: out}}, nil
	case queries.CondGt, queries.CondGe:
		if len(vals) == 0 {
			return nil, terrors.Errorf(terrors.InvalidQuery, "condition %s on '%s' needs a value", cond, o.name)
		}
		out := sroar.NewBitmap()
		o.tree.AscendGreaterOrEqual(orderedItem{key: vals[0]}, func(it orderedItem) bool {
			if cond == queries.CondGt && it.key.Compare(vals[0], o.collate) == 0 {
				return true
			}
			out.Or(it.ids)
			return true
		})
		return []KeyResult{{IDs: out}}, nil
	case queries.CondRange:
		if len(vals) < 2 {
			return nil, terrors.Errorf(terrors.InvalidQuery, "range condition on '%s' needs two values", o.name)
		}
		out := sroar.NewBitmap()
		o.tree.AscendGreaterOrEqual(orderedItem{key: vals[0]}, func(it orderedItem) bool {
			if it.key.Compare(vals[1], o.collate) > 0 {
				return false
			}
			out.Or(it.ids)
			return true
		})
		return []KeyResult{{IDs: out}}, nil
	case queries.CondLike, queries.CondDWithin:
		return []KeyResult{{Cmp: NewComparator(o.name, cond, o.collate, vals...)}}, nil
	default:
		return nil, terrors.Errorf(terrors.InvalidQuery, "condition %s is not supported by index '%s'", cond, o.name)
	}
}

func (o *Ordered) WalkOrdered(desc bool, fn func(key value.Value, ids *sroar.Bitmap) bool) {
	if desc {
		o.tree.Descend(func(it orderedItem) bool { return fn(it.key, it.ids) })
	} else {
		o.tree.Ascend(func(it orderedItem) bool { return fn(it.key, it.ids) })
	}
}

func (o *Ordered) Upsert(v value.Value, id uint64) error {
	item, ok := o.tree.Get(orderedItem{key: v})
	if o.isPK && ok && !item.ids.IsEmpty() && !item.ids.Contains(id) {
		return terrors.Errorf(terrors.Conflict, "duplicate PK value '%s' in index '%s'", v.String(), o.name)
	}
	var ids *sroar.Bitmap
	if !ok {
		ids = sroar.NewBitmap()
	} else {
		if item.ids.Contains(id) {
			return nil
		}
		ids = item.ids.Clone()
	}
	ids.Set(id)
	o.tree.ReplaceOrInsert(orderedItem{key: v, ids: ids})
	if o.refs[id] == 0 {
		np := o.present.Clone()
		np.Set(id)
		o.present = np
	}
	o.refs[id]++
	o.size++
	return nil
}

func (o *Ordered) Delete(v value.Value, id uint64) error {
	item, ok := o.tree.Get(orderedItem{key: v})
	if !ok || !item.ids.Contains(id) {
		return nil
	}
	ids := item.ids.Clone()
	ids.Remove(id)
	if ids.IsEmpty() {
		o.tree.Delete(orderedItem{key: v})
	} else {
		o.tree.ReplaceOrInsert(orderedItem{key: v, ids: ids})
	}
	if o.refs[id]--; o.refs[id] <= 0 {
		delete(o.refs, id)
		np := o.present.Clone()
		np.Remove(id)
		o.present = np
	}
	o.size--
	return nil
}

func (o *Ordered) Truncate() {
	o.tree.Clear(false)
	o.present = sroar.NewBitmap()
	o.refs = map[uint64]int{}
	o.size = 0
}
