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

// Package wal implements the per-namespace append-only log of row
// mutations and the snapshot stream consumed by followers and the leader
// syncer.
package wal

import (
	"sync"
)

// EmptyLSN marks "no position": a snapshot request with an empty LSN reads
// the full namespace.
const EmptyLSN int64 = -1

// ExtendedLSN pairs the namespace version epoch with the in-namespace LSN.
// A namespace recreated by force sync gets a new version, invalidating any
// follower position from the old epoch.
type ExtendedLSN struct {
	NsVersion int64
	LSN       int64
}

func (l ExtendedLSN) IsEmpty() bool { return l.LSN == EmptyLSN || l.LSN == 0 && l.NsVersion == 0 }

// Compare orders by (version, lsn).
func (l ExtendedLSN) Compare(o ExtendedLSN) int {
	if l.NsVersion != o.NsVersion {
		if l.NsVersion < o.NsVersion {
			return -1
		}
		return 1
	}
	switch {
	case l.LSN < o.LSN:
		return -1
	case l.LSN > o.LSN:
		return 1
	default:
		return 0
	}
}

type RecordType int8

const (
	RecUpsert RecordType = iota
	RecDelete
	RecTruncate
)

// Record is one committed mutation. Doc carries the serialized document
// for upserts; deletes carry only the PK.
type Record struct {
	LSN  int64      `json:"lsn"`
	Type RecordType `json:"type"`
	PK   string     `json:"pk"`
	Doc  []byte     `json:"doc,omitempty"`
}

// WAL is the in-memory record log. Records are emitted in commit order
// under the namespace write lock; depth-limited compaction trims the head.
type WAL struct {
	mu      sync.RWMutex
	records []Record
	lastLSN int64
	// firstLSN is the oldest record still held; requests below it force a
	// raw-data snapshot.
	firstLSN int64
	maxDepth int
}

func New(maxDepth int) *WAL {
	if maxDepth <= 0 {
		maxDepth = 128 * 1024
	}
	return &WAL{firstLSN: 1, maxDepth: maxDepth}
}

// Add appends one record and returns its LSN.
func (w *WAL) Add(t RecordType, pk string, doc []byte) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastLSN++
	w.records = append(w.records, Record{LSN: w.lastLSN, Type: t, PK: pk, Doc: doc})
	if len(w.records) > w.maxDepth {
		drop := len(w.records) - w.maxDepth
		w.records = append([]Record(nil), w.records[drop:]...)
		w.firstLSN = w.records[0].LSN
	}
	return w.lastLSN
}

// AddApplied appends a record replicated from a peer, preserving its LSN.
func (w *WAL) AddApplied(r Record) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, r)
	if r.LSN > w.lastLSN {
		w.lastLSN = r.LSN
	}
	if len(w.records) > w.maxDepth {
		drop := len(w.records) - w.maxDepth
		w.records = append([]Record(nil), w.records[drop:]...)
		w.firstLSN = w.records[0].LSN
	}
}

func (w *WAL) LastLSN() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastLSN
}

// TailFrom returns the records after the given LSN. ok=false means the
// position was compacted away and the caller needs a full snapshot.
func (w *WAL) TailFrom(lsn int64) ([]Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if lsn == EmptyLSN {
		return nil, false
	}
	if lsn+1 < w.firstLSN {
		return nil, false
	}
	var out []Record
	for _, r := range w.records {
		if r.LSN > lsn {
			out = append(out, r)
		}
	}
	return out, true
}

// Reset re-initializes the log after truncate or snapshot restore.
func (w *WAL) Reset(lastLSN int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = nil
	w.lastLSN = lastLSN
	w.firstLSN = lastLSN + 1
}
