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
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tesseradb/tessera/adapters/repos/db/aggregator"
	"github.com/tesseradb/tessera/adapters/repos/db/selector"
	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/terrors"
)

// Item is one row of a query result: the reference, the (projected)
// document and the joined buckets, one per declared join.
type Item struct {
	Ref    selector.ItemRef
	Doc    []byte
	Joined [][]uint64
}

// Explain records the decisions the pipeline took for one query.
type Explain struct {
	SortIndex  string   `json:"sort_index,omitempty"`
	Fulltext   bool     `json:"fulltext,omitempty"`
	Injected   []string `json:"on_conditions_injected,omitempty"`
	JoinModes  []string `json:"join_modes,omitempty"`
	Iterations int      `json:"iterations"`
}

// Result is a materialized query result.
type Result struct {
	NsName       string
	Items        []Item
	TotalCount   int
	Aggregations []aggregator.Result
	Explain      *Explain
}

// projectDoc applies the select-filter to a document and optionally adds
// the rank pseudo-field. An empty filter passes the document through
// untouched.
func projectDoc(row *payload.Row, selectFilter []string, withRank bool, rank float64) ([]byte, error) {
	doc := row.Tuple()
	if len(selectFilter) == 0 && !withRank {
		return doc, nil
	}
	var m map[string]interface{}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &m); err != nil {
			return nil, terrors.Errorf(terrors.Internal, "stored document is not decodable: %v", err)
		}
	}
	if len(selectFilter) > 0 {
		filtered := make(map[string]interface{}, len(selectFilter))
		for _, f := range selectFilter {
			if v, ok := m[f]; ok {
				filtered[f] = v
			}
		}
		m = filtered
	}
	if withRank {
		if m == nil {
			m = map[string]interface{}{}
		}
		m["rank()"] = rank
	}
	return json.Marshal(m)
}

// MarshalItemsMsgPack encodes the result documents as a MsgPack array, the
// compact wire format option of query results.
func (r *Result) MarshalItemsMsgPack() ([]byte, error) {
	docs := make([]json.RawMessage, len(r.Items))
	for i, it := range r.Items {
		docs[i] = it.Doc
	}
	raw := make([]map[string]interface{}, len(docs))
	for i, d := range docs {
		if len(d) == 0 {
			raw[i] = map[string]interface{}{}
			continue
		}
		if err := json.Unmarshal(d, &raw[i]); err != nil {
			return nil, err
		}
	}
	return msgpack.Marshal(raw)
}
