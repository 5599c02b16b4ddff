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
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/tesseradb/tessera/entities/value"
)

// Row is one concrete document: a fixed slot per schema field plus the
// serialized tuple with all non-indexed paths. Scalars occupy slot[0];
// array fields use the whole slot slice.
type Row struct {
	slots [][]value.Value
	tuple []byte
	free  bool
}

func NewRow(t *Type) *Row {
	return &Row{slots: make([][]value.Value, t.NumFields())}
}

func (r *Row) IsFree() bool { return r == nil || r.free }

func (r *Row) MarkFree() { r.free = true }

func (r *Row) SetTuple(doc []byte) { r.tuple = doc }

func (r *Row) Tuple() []byte { return r.tuple }

// Set stores the field values as given. It does not look at the field's
// array flag: a non-array field keeps every value passed.
func (r *Row) Set(field int, vals ...value.Value) {
	r.slots[field] = vals
}

// Get returns all values of a field. Sparse fields are decoded from the
// tuple on demand.
func (r *Row) Get(t *Type, field int) []value.Value {
	f := t.Field(field)
	if f.IsSparse {
		return r.sparseValues(f)
	}
	return r.slots[field]
}

// First returns the field's scalar, or Null when the field is empty.
func (r *Row) First(t *Type, field int) value.Value {
	vals := r.Get(t, field)
	if len(vals) == 0 {
		return value.Null()
	}
	return vals[0]
}

func (r *Row) sparseValues(f Field) []value.Value {
	return JSONFieldValues(r.tuple, f)
}

// ValuesByPath reads a non-schema tuple path; the query engine uses it for
// predicates over fields the namespace never declared.
func (r *Row) ValuesByPath(path string, want value.Type) []value.Value {
	return JSONPathValues(r.tuple, path, want)
}

// CompositeKey assembles a compound key over the given fields-set, in set
// order. Missing scalars contribute Null.
func (r *Row) CompositeKey(t *Type, fs FieldsSet) value.Value {
	subs := make([]value.Value, 0, fs.Len())
	for _, f := range fs.Fields() {
		subs = append(subs, r.First(t, f))
	}
	return value.Composite(subs...)
}

// Hash produces the row's contribution to the namespace data hash. It is
// deterministic over the indexed values and the tuple, so two peers holding
// the same committed rows agree on the namespace hash regardless of
// insertion order.
func (r *Row) Hash(t *Type) uint64 {
	d := xxhash.New()
	var buf [8]byte
	for id := 0; id < t.NumFields(); id++ {
		if t.Field(id).IsSparse {
			continue
		}
		for _, v := range r.slots[id] {
			binary.LittleEndian.PutUint64(buf[:], v.RelaxHash())
			d.Write(buf[:])
		}
		d.Write([]byte{0xfe})
	}
	d.Write(r.tuple)
	return d.Sum64()
}
