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

package replication

import (
	"sync"

	"github.com/tesseradb/tessera/adapters/repos/db/wal"
)

// SyncEntry is one namespace awaiting reconciliation. CandidateNodes and
// ExpectedDataHashes run parallel; the entry leaves the queue when a
// worker takes it, and is synced against that one candidate node only.
type SyncEntry struct {
	NsName             string
	CandidateNodes     []int
	ExpectedDataHashes []uint64
	LatestLSN          wal.ExtendedLSN
	LocalLSN           wal.ExtendedLSN
}

// SyncQueue distributes sync entries to worker threads. A worker keeps its
// current peer when possible to avoid reconnects; maxSyncsPerNode caps the
// concurrency against any single peer.
type SyncQueue struct {
	mu              sync.Mutex
	entries         []SyncEntry
	perNode         map[int]int
	maxSyncsPerNode int
}

func NewSyncQueue(maxSyncsPerNode int) *SyncQueue {
	if maxSyncsPerNode <= 0 {
		maxSyncsPerNode = 2
	}
	return &SyncQueue{perNode: map[int]int{}, maxSyncsPerNode: maxSyncsPerNode}
}

// Refill replaces the queue contents for a new sync term.
func (q *SyncQueue) Refill(entries []SyncEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append([]SyncEntry(nil), entries...)
	q.perNode = map[int]int{}
}

func (q *SyncQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// TryToGetEntry pops the next workable entry, preferring the caller's
// current node. It returns the chosen node and the expected data hash for
// that node. ok=false means the queue holds no entry this worker may take
// right now.
func (q *SyncQueue) TryToGetEntry(preferredNode int) (entry SyncEntry, node int, expectedHash uint64, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pick := func(wantNode int) bool {
		for i, e := range q.entries {
			for ci, cand := range e.CandidateNodes {
				if wantNode >= 0 && cand != wantNode {
					continue
				}
				if q.perNode[cand] >= q.maxSyncsPerNode {
					continue
				}
				entry = e
				node = cand
				expectedHash = e.ExpectedDataHashes[ci]
				q.entries = append(q.entries[:i], q.entries[i+1:]...)
				q.perNode[cand]++
				return true
			}
			if wantNode < 0 {
				// every candidate of the head entry is saturated; let other
				// workers look further down the queue
				continue
			}
		}
		return false
	}

	if preferredNode >= 0 && pick(preferredNode) {
		return entry, node, expectedHash, true
	}
	if pick(-1) {
		return entry, node, expectedHash, true
	}
	return SyncEntry{}, -1, 0, false
}

// SyncDone releases the per-node slot taken by TryToGetEntry.
func (q *SyncQueue) SyncDone(node int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.perNode[node] > 0 {
		q.perNode[node]--
	}
}
