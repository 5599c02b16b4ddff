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

package fulltext

import (
	"github.com/sirupsen/logrus"

	"github.com/tesseradb/tessera/adapters/repos/db/index"
	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/queries"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

// Index is the full-text member of a namespace's index set. Upsert expects
// a tuple value with one string per indexed text field, in fields-set
// order. Lookups do not go through SelectKey: the query engine detects the
// full-text entry and drives the ranked selector instead.
type Index struct {
	name   string
	fields payload.FieldsSet
	holder *DataHolder
	sel    *Selector
}

func NewIndex(name string, fields payload.FieldsSet, cfg *Config, log logrus.FieldLogger) *Index {
	holder := NewDataHolder(cfg, fields.Len())
	return &Index{
		name:   name,
		fields: fields,
		holder: holder,
		sel:    NewSelector(holder, log),
	}
}

func (i *Index) Name() string { return i.name }
func (i *Index) KeyType() value.Type { return value.TypeString }
func (i *Index) Collate() value.CollateMode { return value.CollateUTF8 }
func (i *Index) IsOrdered() bool { return false }
func (i *Index) IsFulltext() bool { return true }
func (i *Index) IsSparse() bool { return false }
func (i *Index) Size() int { return i.holder.TotalDocs() }
func (i *Index) Fields() payload.FieldsSet { return i.fields }
func (i *Index) Holder() *DataHolder { return i.holder }
func (i *Index) Selector() *Selector { return i.sel }

func (i *Index) SelectKey(vals []value.Value, cond queries.Condition, opts index.SelectOpts) ([]index.KeyResult, error) {
	return nil, terrors.Errorf(terrors.InvalidQuery,
		"fulltext index '%s' serves ranked text queries only", i.name)
}

func (i *Index) Upsert(v value.Value, id uint64) error {
	subs := v.Subs()
	fields := make([]string, len(subs))
	for fi, s := range subs {
		fields[fi] = s.AsString()
	}
	i.holder.IndexDocument(id, fields)
	return nil
}

func (i *Index) Delete(v value.Value, id uint64) error {
	i.holder.RemoveDocument(id)
	return nil
}

func (i *Index) Truncate() { i.holder.Truncate() }
