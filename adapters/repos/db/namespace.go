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

// Package db is the storage and query engine: namespaces with secondary
// indexes, the select pipeline binding planner, selector, full-text, joins
// and aggregation, and the snapshot/WAL surface consumed by replication.
package db

import (
	"strings"
	"sync"

	"github.com/buger/jsonparser"
	"github.com/sirupsen/logrus"
	"github.com/weaviate/sroar"

	"github.com/tesseradb/tessera/adapters/repos/db/fulltext"
	"github.com/tesseradb/tessera/adapters/repos/db/index"
	"github.com/tesseradb/tessera/adapters/repos/db/planner"
	"github.com/tesseradb/tessera/adapters/repos/db/wal"
	"github.com/tesseradb/tessera/entities/payload"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

// IndexKind selects the index implementation backing a field.
type IndexKind int8

const (
	IndexHash IndexKind = iota
	IndexOrdered
	IndexFulltext
	IndexNone
)

// FieldDef declares one schema field of a namespace.
type FieldDef struct {
	Name     string
	Type     value.Type
	Index    IndexKind
	IsArray  bool
	IsSparse bool
	IsPK     bool
	JSONPath string
	Collate  value.CollateMode
}

// CompositeDef declares a composite index over several fields.
type CompositeDef struct {
	Name   string
	Fields []string
}

// Definition is the full namespace schema handed to Create.
type Definition struct {
	Name       string
	Fields     []FieldDef
	Composites []CompositeDef
	FtConfig   *fulltext.Config
}

// ReplState is the replication position of a namespace.
type ReplState struct {
	NsVersion int64
	LastLSN   int64
	DataHash  uint64
}

func (rs ReplState) Extended() wal.ExtendedLSN {
	return wal.ExtendedLSN{NsVersion: rs.NsVersion, LSN: rs.LastLSN}
}

// Namespace owns the payload rows, the index set, the tags matcher and the
// WAL. Reads run under the shared lock; every mutation serializes on the
// write lock and emits WAL in commit order.
type Namespace struct {
	mu sync.RWMutex

	name      string
	pt        *payload.Type
	tm        *payload.TagsMatcher
	rows      []*payload.Row
	live      *sroar.Bitmap
	pkToID    map[value.Key]uint64
	freeIDs   []uint64
	fieldIdx  []index.Index
	composite []*index.Composite
	ftIdx     *fulltext.Index
	ftFields  payload.FieldsSet
	wal       *wal.WAL

	nsVersion int64
	dataHash  uint64
	// version counts committed writes, keyed into query caches
	version int64

	temporary bool
	def       Definition
	log       logrus.FieldLogger
}

func newNamespace(def Definition, nsVersion int64, log logrus.FieldLogger) (*Namespace, error) {
	fields := make([]payload.Field, 0, len(def.Fields))
	for _, fd := range def.Fields {
		fields = append(fields, payload.Field{
			Name: fd.Name, Type: fd.Type, IsArray: fd.IsArray,
			IsSparse: fd.IsSparse, IsPK: fd.IsPK, JSONPath: fd.JSONPath,
			Collate: fd.Collate,
		})
	}
	pt, err := payload.NewType(def.Name, fields...)
	if err != nil {
		return nil, err
	}
	if pt.PKField() < 0 {
		return nil, terrors.Errorf(terrors.InvalidArgument, "namespace '%s' has no PK field", def.Name)
	}

	ns := &Namespace{
		name:      def.Name,
		def:       def,
		pt:        pt,
		tm:        payload.NewTagsMatcher(),
		live:      sroar.NewBitmap(),
		pkToID:    map[value.Key]uint64{},
		fieldIdx:  make([]index.Index, len(def.Fields)),
		wal:       wal.New(0),
		nsVersion: nsVersion,
		log:       log,
	}

	var ftFields payload.FieldsSet
	for i, fd := range def.Fields {
		switch fd.Index {
		case IndexHash:
			ns.fieldIdx[i] = index.NewHash(fd.Name, fd.Type, fd.Collate, fd.IsPK)
		case IndexOrdered:
			ns.fieldIdx[i] = index.NewOrdered(fd.Name, fd.Type, fd.Collate, fd.IsPK)
		case IndexFulltext:
			ftFields.Push(i)
		case IndexNone:
			if fd.IsSparse {
				ns.fieldIdx[i] = index.NewSparse(fd.Name, fd.Type, fd.Collate)
			}
		}
	}
	if ftFields.Len() > 0 {
		names := make([]string, 0, ftFields.Len())
		for _, f := range ftFields.Fields() {
			names = append(names, pt.Field(f).Name)
		}
		ns.ftFields = ftFields
		ns.ftIdx = fulltext.NewIndex(strings.Join(names, "+"), ftFields, def.FtConfig, log)
		for _, f := range ftFields.Fields() {
			ns.fieldIdx[f] = ns.ftIdx
		}
	}
	for _, cd := range def.Composites {
		var fs payload.FieldsSet
		for _, fname := range cd.Fields {
			fid := pt.FieldByName(fname)
			if fid < 0 {
				return nil, terrors.Errorf(terrors.InvalidArgument,
					"composite index '%s' references unknown field '%s'", cd.Name, fname)
			}
			fs.Push(fid)
		}
		name := cd.Name
		if name == "" {
			name = strings.Join(cd.Fields, "+")
		}
		ns.composite = append(ns.composite, index.NewComposite(name, fs, value.CollateNone))
	}
	return ns, nil
}

func (ns *Namespace) Name() string { return ns.name }

func (ns *Namespace) PayloadType() *payload.Type { return ns.pt }

func (ns *Namespace) TagsMatcher() *payload.TagsMatcher { return ns.tm }

func (ns *Namespace) IndexForField(fieldID int) index.Index {
	if fieldID < 0 || fieldID >= len(ns.fieldIdx) {
		return nil
	}
	return ns.fieldIdx[fieldID]
}

func (ns *Namespace) Composites() []planner.CompositeInfo {
	out := make([]planner.CompositeInfo, len(ns.composite))
	for i, c := range ns.composite {
		out[i] = planner.CompositeInfo{Name: c.Name(), Fields: c.Fields()}
	}
	return out
}

// GetReplState reads the replication position under the shared lock.
func (ns *Namespace) GetReplState() ReplState {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ReplState{NsVersion: ns.nsVersion, LastLSN: ns.wal.LastLSN(), DataHash: ns.dataHash}
}

func (ns *Namespace) Version() int64 {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.version
}

func (ns *Namespace) RowCount() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.live.GetCardinality()
}

// Upsert inserts or replaces the document by its PK.
func (ns *Namespace) Upsert(doc []byte) (uint64, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	id, pk, err := ns.upsertLocked(doc)
	if err != nil {
		return 0, err
	}
	ns.wal.Add(wal.RecUpsert, pk.String(), doc)
	ns.version++
	return id, nil
}

// Insert is Upsert that refuses to replace an existing PK.
func (ns *Namespace) Insert(doc []byte) (uint64, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	pk, err := ns.pkFromDoc(doc)
	if err != nil {
		return 0, err
	}
	if _, exists := ns.pkToID[pk.Key()]; exists {
		return 0, terrors.Errorf(terrors.Conflict, "PK '%s' already exists in namespace '%s'", pk.String(), ns.name)
	}
	id, pkv, err := ns.upsertLocked(doc)
	if err != nil {
		return 0, err
	}
	ns.wal.Add(wal.RecUpsert, pkv.String(), doc)
	ns.version++
	return id, nil
}

// Delete removes the document with the given PK. Missing PKs are NotFound.
func (ns *Namespace) Delete(pk value.Value) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if err := ns.deleteLocked(pk); err != nil {
		return err
	}
	ns.wal.Add(wal.RecDelete, pk.String(), nil)
	ns.version++
	return nil
}

// Truncate drops every row, keeping schema and indexes.
func (ns *Namespace) Truncate() {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.truncateLocked()
	ns.wal.Add(wal.RecTruncate, "", nil)
	ns.version++
}

func (ns *Namespace) pkFromDoc(doc []byte) (value.Value, error) {
	pkField := ns.pt.Field(ns.pt.PKField())
	raw, dt, _, err := jsonparser.Get(doc, pkField.Name)
	if err != nil {
		return value.Value{}, terrors.Errorf(terrors.InvalidArgument,
			"document for namespace '%s' has no PK field '%s'", ns.name, pkField.Name)
	}
	v, ok := payload.JSONScalar(raw, dt, pkField.Type)
	if !ok {
		return value.Value{}, terrors.Errorf(terrors.InvalidArgument,
			"PK field '%s' has the wrong type", pkField.Name)
	}
	return v, nil
}

func (ns *Namespace) upsertLocked(doc []byte) (uint64, value.Value, error) {
	pk, err := ns.pkFromDoc(doc)
	if err != nil {
		return 0, value.Value{}, err
	}
	row := payload.NewRow(ns.pt)
	row.SetTuple(append([]byte(nil), doc...))
	for fid := 0; fid < ns.pt.NumFields(); fid++ {
		f := ns.pt.Field(fid)
		if f.IsSparse {
			continue
		}
		vals := payload.JSONFieldValues(doc, f)
		row.Set(fid, vals...)
	}
	// register document tags
	jsonparser.ObjectEach(doc, func(key []byte, _ []byte, _ jsonparser.ValueType, _ int) error {
		ns.tm.TagOrAdd(string(key))
		return nil
	})

	var id uint64
	if old, exists := ns.pkToID[pk.Key()]; exists {
		id = old
		ns.removeFromIndexes(id)
		ns.dataHash ^= ns.rows[id].Hash(ns.pt)
	} else if n := len(ns.freeIDs); n > 0 {
		id = ns.freeIDs[n-1]
		ns.freeIDs = ns.freeIDs[:n-1]
	} else {
		id = uint64(len(ns.rows))
		ns.rows = append(ns.rows, nil)
	}

	if err := ns.addToIndexes(row, id); err != nil {
		// roll the partially updated indexes back by re-adding the old row
		if old, exists := ns.pkToID[pk.Key()]; exists && ns.rows[old] != nil {
			ns.removeFromIndexes(old)
			_ = ns.addToIndexes(ns.rows[old], old)
			ns.dataHash ^= ns.rows[old].Hash(ns.pt)
		}
		return 0, value.Value{}, err
	}
	ns.rows[id] = row
	nl := ns.live.Clone()
	nl.Set(id)
	ns.live = nl
	ns.pkToID[pk.Key()] = id
	ns.dataHash ^= row.Hash(ns.pt)
	return id, pk, nil
}

func (ns *Namespace) deleteLocked(pk value.Value) error {
	pkConv, err := pk.ConvertTo(ns.pt.Field(ns.pt.PKField()).Type)
	if err != nil {
		return err
	}
	id, ok := ns.pkToID[pkConv.Key()]
	if !ok {
		return terrors.Errorf(terrors.NotFound, "PK '%s' not found in namespace '%s'", pk.String(), ns.name)
	}
	ns.removeFromIndexes(id)
	ns.dataHash ^= ns.rows[id].Hash(ns.pt)
	ns.rows[id].MarkFree()
	ns.rows[id] = nil
	nl := ns.live.Clone()
	nl.Remove(id)
	ns.live = nl
	delete(ns.pkToID, pkConv.Key())
	ns.freeIDs = append(ns.freeIDs, id)
	return nil
}

func (ns *Namespace) truncateLocked() {
	for _, idx := range ns.fieldIdx {
		if idx != nil {
			idx.Truncate()
		}
	}
	for _, c := range ns.composite {
		c.Truncate()
	}
	ns.rows = nil
	ns.freeIDs = nil
	ns.live = sroar.NewBitmap()
	ns.pkToID = map[value.Key]uint64{}
	ns.dataHash = 0
}

func (ns *Namespace) addToIndexes(row *payload.Row, id uint64) error {
	for fid := 0; fid < ns.pt.NumFields(); fid++ {
		idx := ns.fieldIdx[fid]
		if idx == nil || idx.IsSparse() || idx.IsFulltext() {
			continue
		}
		for _, v := range row.Get(ns.pt, fid) {
			if err := idx.Upsert(v, id); err != nil {
				return err
			}
		}
	}
	for _, c := range ns.composite {
		if err := c.Upsert(row.CompositeKey(ns.pt, c.Fields()), id); err != nil {
			return err
		}
	}
	if ns.ftIdx != nil {
		subs := make([]value.Value, 0, ns.ftFields.Len())
		for _, f := range ns.ftFields.Fields() {
			var sb strings.Builder
			for i, v := range row.Get(ns.pt, f) {
				if i > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(v.AsString())
			}
			subs = append(subs, value.String(sb.String()))
		}
		if err := ns.ftIdx.Upsert(value.Tuple(subs...), id); err != nil {
			return err
		}
	}
	return nil
}

func (ns *Namespace) removeFromIndexes(id uint64) {
	row := ns.rows[id]
	if row == nil {
		return
	}
	for fid := 0; fid < ns.pt.NumFields(); fid++ {
		idx := ns.fieldIdx[fid]
		if idx == nil || idx.IsSparse() || idx.IsFulltext() {
			continue
		}
		for _, v := range row.Get(ns.pt, fid) {
			_ = idx.Delete(v, id)
		}
	}
	for _, c := range ns.composite {
		_ = c.Delete(row.CompositeKey(ns.pt, c.Fields()), id)
	}
	if ns.ftIdx != nil {
		_ = ns.ftIdx.Delete(value.Null(), id)
	}
}

// Row reads a row slot; selectors run under the shared lock.
func (ns *Namespace) Row(id uint64) *payload.Row {
	if id >= uint64(len(ns.rows)) {
		return nil
	}
	return ns.rows[id]
}

func (ns *Namespace) Type() *payload.Type { return ns.pt }

func (ns *Namespace) LiveIDs() *sroar.Bitmap { return ns.live }
