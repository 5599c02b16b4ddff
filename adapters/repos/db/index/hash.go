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
	"github.com/weaviate/sroar"

	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

// Hash serves equality and IN lookups from value buckets. Buckets are
// immutable snapshots: a writer clones the bitmap before mutating and swaps
// the map entry, so selectors keep reading the old id-set.
type Hash struct {
	name    string
	keyType value.Type
	collate value.CollateMode
	isPK    bool

	buckets map[value.Key]*sroar.Bitmap
	keys    map[value.Key]value.Value
	present *sroar.Bitmap
	// refs counts buckets per row id; array fields reference a row from
	// several buckets and presence drops only with the last one.
	refs map[uint64]int
	size int
}

func NewHash(name string, keyType value.Type, collate value.CollateMode, isPK bool) *Hash {
	return &Hash{
		name: name, keyType: keyType, collate: collate, isPK: isPK,
		buckets: map[value.Key]*sroar.Bitmap{},
		keys:    map[value.Key]value.Value{},
		present: sroar.NewBitmap(),
		refs:    map[uint64]int{},
	}
}

func (h *Hash) Name() string { return h.name }
func (h *Hash) KeyType() value.Type { return h.keyType }
func (h *Hash) Collate() value.CollateMode { return h.collate }
func (h *Hash) IsOrdered() bool { return false }
func (h *Hash) IsFulltext() bool { return false }
func (h *Hash) IsSparse() bool { return false }
func (h *Hash) Size() int { return h.size }

func (h *Hash) SelectKey(vals []value.Value, cond queries.Condition, opts SelectOpts) ([]KeyResult, error) {
	switch cond {
	case queries.CondEq, queries.CondSet:
		out := sroar.NewBitmap()
		for _, v := range vals {
			if b, ok := h.buckets[v.Key()]; ok {
				out.Or(b)
			}
		}
		return []KeyResult{{IDs: out}}, nil
	case queries.CondAllSet:
		var out *sroar.Bitmap
		for _, v := range vals {
			b, ok := h.buckets[v.Key()]
			if !ok {
				return []KeyResult{{IDs: sroar.NewBitmap()}}, nil
			}
			if out == nil {
				out = b.Clone()
			} else {
				out.And(b)
			}
		}
		if out == nil {
			out = sroar.NewBitmap()
		}
		return []KeyResult{{IDs: out}}, nil
	case queries.CondAny:
		return []KeyResult{{IDs: h.present.Clone()}}, nil
	case queries.CondEmpty:
		cmp := NewComparator(h.name, queries.CondEmpty, h.collate)
		return []KeyResult{{Cmp: cmp}}, nil
	case queries.CondLt, queries.CondLe, queries.CondGt, queries.CondGe,
		queries.CondRange, queries.CondLike, queries.CondDWithin:
		// a hash index cannot serve ranges; fall back to scanning
		cmp := NewComparator(h.name, cond, h.collate, vals...)
		return []KeyResult{{Cmp: cmp}}, nil
	default:
		return nil, terrors.Errorf(terrors.InvalidQuery, "condition %s is not supported by index '%s'", cond, h.name)
	}
}

func (h *Hash) Upsert(v value.Value, id uint64) error {
	key := v.Key()
	b := h.buckets[key]
	if h.isPK && b != nil && !b.IsEmpty() && !b.Contains(id) {
		return terrors.Errorf(terrors.Conflict, "duplicate PK value '%s' in index '%s'", v.String(), h.name)
	}
	if b == nil {
		b = sroar.NewBitmap()
	} else {
		if b.Contains(id) {
			return nil
		}
		b = b.Clone()
	}
	b.Set(id)
	h.buckets[key] = b
	h.keys[key] = v
	if h.refs[id] == 0 {
		np := h.present.Clone()
		np.Set(id)
		h.present = np
	}
	h.refs[id]++
	h.size++
	return nil
}

func (h *Hash) Delete(v value.Value, id uint64) error {
	key := v.Key()
	b, ok := h.buckets[key]
	if !ok || !b.Contains(id) {
		return nil
	}
	nb := b.Clone()
	nb.Remove(id)
	if nb.IsEmpty() {
		delete(h.buckets, key)
		delete(h.keys, key)
	} else {
		h.buckets[key] = nb
	}
	if h.refs[id]--; h.refs[id] <= 0 {
		delete(h.refs, id)
		np := h.present.Clone()
		np.Remove(id)
		h.present = np
	}
	h.size--
	return nil
}

func (h *Hash) Truncate() {
	h.buckets = map[value.Key]*sroar.Bitmap{}
	h.keys = map[value.Key]value.Value{}
	h.present = sroar.NewBitmap()
	h.refs = map[uint64]int{}
	h.size = 0
}

// Composite is a hash index over a compound key assembled from a
// fields-set. It substitutes conjunctions of equality predicates over all
// of its fields.
type Composite struct {
	Hash
	fields payload.FieldsSet
}

func NewComposite(name string, fields payload.FieldsSet, collate value.CollateMode) *Composite {
	return &Composite{
		Hash:   *NewHash(name, value.TypeComposite, collate, false),
		fields: fields,
	}
}

func (c *Composite) Fields() payload.FieldsSet { return c.fields }
