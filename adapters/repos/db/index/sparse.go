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
	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/value"
)

// Sparse evaluates a tuple path on demand. It owns no id-sets: every
// SelectKey answer is a comparator and the selector scans.
type Sparse struct {
	name    string
	keyType value.Type
	collate value.CollateMode
}

func NewSparse(name string, keyType value.Type, collate value.CollateMode) *Sparse {
	return &Sparse{name: name, keyType: keyType, collate: collate}
}

func (s *Sparse) Name() string { return s.name }
func (s *Sparse) KeyType() value.Type { return s.keyType }
func (s *Sparse) Collate() value.CollateMode { return s.collate }
func (s *Sparse) IsOrdered() bool { return false }
func (s *Sparse) IsFulltext() bool { return false }
func (s *Sparse) IsSparse() bool { return true }
func (s *Sparse) Size() int { return 0 }

func (s *Sparse) SelectKey(vals []value.Value, cond queries.Condition, opts SelectOpts) ([]KeyResult, error) {
	return []KeyResult{{Cmp: NewComparator(s.name, cond, s.collate, vals...)}}, nil
}

func (s *Sparse) Upsert(v value.Value, id uint64) error { return nil }
func (s *Sparse) Delete(v value.Value, id uint64) error { return nil }
func (s *Sparse) Truncate() {}
