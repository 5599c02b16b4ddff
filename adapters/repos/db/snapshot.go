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
	"github.com/tesseradb/tessera/adapters/repos/db/wal"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

// BuildSnapshot produces the stream a peer applies to catch up. A valid
// in-epoch WAL position yields a tail-only snapshot; anything else reads
// the full namespace as raw chunks plus a bounded tail.
func (ns *Namespace) BuildSnapshot(opts wal.SnapshotOpts) wal.Snapshot {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	latest := wal.ExtendedLSN{NsVersion: ns.nsVersion, LSN: ns.wal.LastLSN()}
	if !opts.From.IsEmpty() && opts.From.NsVersion == ns.nsVersion {
		if tail, ok := ns.wal.TailFrom(opts.From.LSN); ok {
			return wal.BuildTail(tail, latest)
		}
	}

	docs := make([]wal.Record, 0, ns.live.GetCardinality())
	for _, id := range ns.live.ToArray() {
		row := ns.rows[id]
		if row.IsFree() {
			continue
		}
		pk := row.First(ns.pt, ns.pt.PKField())
		docs = append(docs, wal.Record{
			Type: wal.RecUpsert,
			PK:   pk.String(),
			Doc:  row.Tuple(),
		})
	}
	tail, _ := ns.wal.TailFrom(ns.wal.LastLSN()) // raw docs already carry the state
	return wal.BuildRaw(docs, tail, latest, opts.MaxWALDepthOnForceSync)
}

// ApplySnapshotChunk applies one chunk of a snapshot stream in order. No
// concurrent writer touches a temporary namespace, and applying into a
// live namespace serializes on its write lock like any other mutation.
func (ns *Namespace) ApplySnapshotChunk(ch wal.Chunk) error {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	for _, rec := range ch.Records {
		if err := ns.applyRecordLocked(rec); err != nil {
			return err
		}
	}
	ns.version++
	return nil
}

func (ns *Namespace) applyRecordLocked(rec wal.Record) error {
	switch rec.Type {
	case wal.RecUpsert:
		if _, _, err := ns.upsertLocked(rec.Doc); err != nil {
			return err
		}
		if rec.LSN > 0 {
			ns.wal.AddApplied(rec)
		} else {
			ns.wal.Add(wal.RecUpsert, rec.PK, rec.Doc)
		}
		return nil
	case wal.RecDelete:
		pkField := ns.pt.Field(ns.pt.PKField())
		pk, err := value.String(rec.PK).ConvertTo(pkField.Type)
		if err != nil {
			return err
		}
		if err := ns.deleteLocked(pk); err != nil && !terrors.IsCode(err, terrors.NotFound) {
			return err
		}
		if rec.LSN > 0 {
			ns.wal.AddApplied(rec)
		} else {
			ns.wal.Add(wal.RecDelete, rec.PK, nil)
		}
		return nil
	case wal.RecTruncate:
		ns.truncateLocked()
		if rec.LSN > 0 {
			ns.wal.AddApplied(rec)
		} else {
			ns.wal.Add(wal.RecTruncate, "", nil)
		}
		return nil
	default:
		return terrors.Errorf(terrors.Internal, "unknown WAL record type %d", rec.Type)
	}
}

// clone rebuilds the namespace from its committed documents. Used by the
// copy-on-write heavy write path.
func (ns *Namespace) clone() (*Namespace, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	cp, err := newNamespace(ns.def, ns.nsVersion, ns.log)
	if err != nil {
		return nil, err
	}
	for _, id := range ns.live.ToArray() {
		row := ns.rows[id]
		if row.IsFree() {
			continue
		}
		if _, _, err := cp.upsertLocked(row.Tuple()); err != nil {
			return nil, err
		}
	}
	cp.wal.Reset(ns.wal.LastLSN())
	cp.version = ns.version
	cp.temporary = ns.temporary
	return cp, nil
}
