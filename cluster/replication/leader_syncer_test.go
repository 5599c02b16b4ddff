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
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseradb/tessera/adapters/repos/db/wal"
	"github.com/tesseradb/tessera/entities/terrors"
)

// fakePeer serves canned snapshots.
type fakePeer struct {
	mu        sync.Mutex
	connects  []string
	snapshots map[string]wal.Snapshot
	forced    map[string]int
}

func (p *fakePeer) Connect(ctx context.Context, dsn string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects = append(p.connects, dsn)
	return nil
}

func (p *fakePeer) GetSnapshot(ctx context.Context, ns string, opts wal.SnapshotOpts) (*wal.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if opts.From.LSN == wal.EmptyLSN {
		p.forced[ns]++
	}
	snap, ok := p.snapshots[ns]
	if !ok {
		return nil, terrors.Errorf(terrors.NotFound, "namespace '%s' not on peer", ns)
	}
	return &snap, nil
}

func (p *fakePeer) Stop() {}

// fakeLocal is the syncer's view of the local database.
type fakeLocal struct {
	mu        sync.Mutex
	hashes    map[string]uint64 // data hash the namespace ends up with
	existing  map[string]bool
	tmpSeq    int
	created   []string
	dropped   []string
	renamed   map[string]string
	applied   map[string]int
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{
		hashes:   map[string]uint64{},
		existing: map[string]bool{},
		renamed:  map[string]string{},
		applied:  map[string]int{},
	}
}

func (l *fakeLocal) HasNamespace(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.existing[name]
}

func (l *fakeLocal) GetReplState(name string) (int64, int64, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return 1, 1, l.hashes[name], nil
}

func (l *fakeLocal) CreateTemporaryNamespace(base string, nsVersion int64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tmpSeq++
	name := fmt.Sprintf("@tmp_%s_%d", base, l.tmpSeq)
	l.created = append(l.created, name)
	l.existing[name] = true
	// the temporary namespace inherits the hash configured for its base
	l.hashes[name] = l.hashes["@apply:"+base]
	return name, nil
}

func (l *fakeLocal) DropNamespace(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dropped = append(l.dropped, name)
	delete(l.existing, name)
	return nil
}

func (l *fakeLocal) RenameNamespace(from, to string, overwrite bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.renamed[from] = to
	l.existing[to] = true
	l.hashes[to] = l.hashes[from]
	delete(l.existing, from)
	return nil
}

func (l *fakeLocal) ApplySnapshotChunk(name string, ch wal.Chunk) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applied[name]++
	return nil
}

func rawSnapshot() wal.Snapshot {
	return wal.Snapshot{
		HasRawData: true,
		Chunks:     []wal.Chunk{{Type: wal.ChunkRaw, Records: []wal.Record{{Type: wal.RecUpsert, PK: "1", Doc: []byte(`{"id":1}`)}}}},
		LatestLSN:  wal.ExtendedLSN{NsVersion: 2, LSN: 5},
	}
}

func syncerWith(peer Peer, threads int) *LeaderSyncer {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return NewLeaderSyncer(Config{
		DSNs:         []string{"node0", "node1"},
		ThreadsCount: threads,
		ServerID:     7,
	}, func() Peer { return peer }, l, nil)
}

func TestSyncSuccessMarksSynchronized(t *testing.T) {
	peer := &fakePeer{snapshots: map[string]wal.Snapshot{"ns1": rawSnapshot()}, forced: map[string]int{}}
	local := newFakeLocal()
	local.hashes["@apply:ns1"] = 42 // hash the apply produces

	state := leaderState("ns1")
	ls := syncerWith(peer, 1)
	entries := []SyncEntry{{
		NsName:             "ns1",
		CandidateNodes:     []int{1},
		ExpectedDataHashes: []uint64{42},
		LatestLSN:          wal.ExtendedLSN{NsVersion: 2, LSN: 5},
	}}
	require.NoError(t, ls.Sync(context.Background(), entries, state, local))

	assert.True(t, state.IsInitialSyncDone("ns1"))
	// raw data forced a temporary namespace which was renamed over the live one
	require.Len(t, local.created, 1)
	assert.Equal(t, "ns1", local.renamed[local.created[0]])
	assert.Empty(t, local.dropped)
}

func TestSyncHashMismatchRetriesForcedThenFails(t *testing.T) {
	peer := &fakePeer{snapshots: map[string]wal.Snapshot{
		"bad":  rawSnapshot(),
		"good": rawSnapshot(),
	}, forced: map[string]int{}}
	local := newFakeLocal()
	local.hashes["@apply:bad"] = 1 // never matches the expected hash
	local.hashes["@apply:good"] = 42

	state := leaderState("bad", "good")
	ls := syncerWith(peer, 1)
	entries := []SyncEntry{
		{NsName: "bad", CandidateNodes: []int{1}, ExpectedDataHashes: []uint64{99}},
		{NsName: "good", CandidateNodes: []int{1}, ExpectedDataHashes: []uint64{42}},
	}
	err := ls.Sync(context.Background(), entries, state, local)
	require.Error(t, err)
	assert.Equal(t, terrors.DataHashMismatch, terrors.CodeOf(err))

	// the failing namespace retried once with a forced full resync
	assert.Equal(t, 1, peer.forced["bad"])
	// both temporary namespaces of the failed sync were dropped
	dropCount := 0
	for _, d := range local.dropped {
		if len(d) > 9 && d[:9] == "@tmp_bad_" {
			dropCount++
		}
	}
	assert.Equal(t, 2, dropCount)
	assert.False(t, state.IsInitialSyncDone("bad"))

	// the worker continued with the remaining entry
	assert.True(t, state.IsInitialSyncDone("good"))
}

func TestSyncTerminateDropsTemporaries(t *testing.T) {
	local := newFakeLocal()
	local.hashes["@apply:ns1"] = 42

	entries := []SyncEntry{{NsName: "ns1", CandidateNodes: []int{1}, ExpectedDataHashes: []uint64{42}}}
	tp := &termPeer{snap: rawSnapshot()}
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	ls := NewLeaderSyncer(Config{DSNs: []string{"n0", "n1"}, ThreadsCount: 1},
		func() Peer { return tp }, log, nil)
	tp.ls = ls

	err := ls.Sync(context.Background(), entries, leaderState("ns1"), local)
	require.Error(t, err)
	assert.Equal(t, terrors.Terminated, terrors.CodeOf(err))
	// the in-progress temporary namespace was dropped
	found := false
	for _, d := range local.dropped {
		if len(d) > 9 && d[:9] == "@tmp_ns1_" {
			found = true
		}
	}
	assert.True(t, found)
}

// termPeer terminates the syncer right after handing out the snapshot, so
// the chunk loop observes the terminate flag.
type termPeer struct {
	snap wal.Snapshot
	ls   *LeaderSyncer
}

func (p *termPeer) Connect(ctx context.Context, dsn string) error { return nil }

func (p *termPeer) GetSnapshot(ctx context.Context, ns string, opts wal.SnapshotOpts) (*wal.Snapshot, error) {
	p.ls.Terminate()
	s := p.snap
	return &s, nil
}

func (p *termPeer) Stop() {}

func TestQueuePrefersCurrentNode(t *testing.T) {
	q := NewSyncQueue(2)
	q.Refill([]SyncEntry{
		{NsName: "a", CandidateNodes: []int{0}, ExpectedDataHashes: []uint64{1}},
		{NsName: "b", CandidateNodes: []int{1}, ExpectedDataHashes: []uint64{2}},
		{NsName: "c", CandidateNodes: []int{0}, ExpectedDataHashes: []uint64{3}},
	})
	entry, node, hash, ok := q.TryToGetEntry(-1)
	require.True(t, ok)
	assert.Equal(t, "a", entry.NsName)
	assert.Equal(t, 0, node)
	assert.Equal(t, uint64(1), hash)

	// preferring node 0 skips entry b
	entry, node, _, ok = q.TryToGetEntry(0)
	require.True(t, ok)
	assert.Equal(t, "c", entry.NsName)
	assert.Equal(t, 0, node)

	entry, node, _, ok = q.TryToGetEntry(0)
	require.True(t, ok)
	assert.Equal(t, "b", entry.NsName)
	assert.Equal(t, 1, node)
	assert.Equal(t, 0, q.Size())
}

func TestQueueMaxSyncsPerNode(t *testing.T) {
	q := NewSyncQueue(1)
	q.Refill([]SyncEntry{
		{NsName: "a", CandidateNodes: []int{0}, ExpectedDataHashes: []uint64{1}},
		{NsName: "b", CandidateNodes: []int{0}, ExpectedDataHashes: []uint64{2}},
	})
	_, node, _, ok := q.TryToGetEntry(-1)
	require.True(t, ok)
	// node 0 is saturated until SyncDone
	_, _, _, ok = q.TryToGetEntry(-1)
	assert.False(t, ok)
	q.SyncDone(node)
	_, _, _, ok = q.TryToGetEntry(-1)
	assert.True(t, ok)
}
