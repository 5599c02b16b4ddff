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
	"github.com/weaviate/sroar"

	"github.com/tesseradb/tessera/adapters/repos/db/index"
	"github.com/tesseradb/tessera/adapters/repos/db/selector"
	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/queries"
)

// nsSource adapts a namespace to the selector's RowSource. The caller must
// hold the namespace shared lock for the lifetime of the source.
type nsSource struct {
	ns *Namespace
}

func (s nsSource) Type() *payload.Type { return s.ns.pt }

func (s nsSource) Row(id uint64) *payload.Row {
	if id >= uint64(len(s.ns.rows)) {
		return nil
	}
	return s.ns.rows[id]
}

func (s nsSource) LiveIDs() *sroar.Bitmap { return s.ns.live }

func (s nsSource) RowCount() int { return s.ns.live.GetCardinality() }

// nsBackend resolves preprocessed filter leaves against the namespace's
// index set.
type nsBackend struct {
	ns *Namespace
}

func (b nsBackend) SelectEntry(e *queries.Entry, opts index.SelectOpts) ([]index.KeyResult, error) {
	if e.FieldID >= 0 {
		idx := b.ns.fieldIdx[e.FieldID]
		if idx != nil && !idx.IsFulltext() {
			return idx.SelectKey(e.Values, e.Cond, opts)
		}
		// a fixed field without an index scans with a comparator
		return []index.KeyResult{{Cmp: index.NewComparator(e.Field, e.Cond, e.Collate, e.Values...)}}, nil
	}
	for _, c := range b.ns.composite {
		if c.Name() == e.Field {
			return c.SelectKey(e.Values, e.Cond, opts)
		}
	}
	cmp := index.NewComparator(e.Field, e.Cond, e.Collate, e.Values...)
	cmp.JSONPath = e.Field
	return []index.KeyResult{{Cmp: cmp}}, nil
}

func (b nsBackend) BindComparator(c *index.Comparator, e *queries.Entry) {
	if e.Kind == queries.KindTwoFields {
		c.RightFieldID = e.RightFieldID
	}
	if e.FieldID < 0 && c.JSONPath == "" {
		c.JSONPath = e.Field
	}
	c.Bind(b.ns.pt, e.FieldID)
}

func (b nsBackend) Source() selector.RowSource { return nsSource{b.ns} }
