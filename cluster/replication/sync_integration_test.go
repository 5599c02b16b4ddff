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
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tesseradb/tessera/adapters/clients/cproto"
	"github.com/tesseradb/tessera/adapters/repos/db"
	"github.com/tesseradb/tessera/entities/value"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func booksDefinition() db.Definition {
	return db.Definition{
		Name: "books",
		Fields: []db.FieldDef{
			{Name: "id", Type: value.TypeInt, Index: db.IndexHash, IsPK: true},
			{Name: "author_id", Type: value.TypeString, Index: db.IndexHash},
			{Name: "pages", Type: value.TypeInt, Index: db.IndexOrdered},
		},
	}
}

// TestLeaderSyncOverCproto wires a real peer server, the RPC client and
// the syncer: the local empty namespace catches up to the peer's state and
// ends with the same data hash.
func TestLeaderSyncOverCproto(t *testing.T) {
	peerDB := db.New("", quietLogger(), nil)
	_, err := peerDB.CreateNamespace(booksDefinition())
	require.NoError(t, err)
	peerNs, err := peerDB.Namespace("books")
	require.NoError(t, err)
	for _, doc := range []string{
		`{"id":1,"author_id":"A","pages":100}`,
		`{"id":2,"author_id":"B","pages":200}`,
		`{"id":3,"author_id":"C","pages":300}`,
	} {
		_, err := peerNs.Upsert([]byte(doc))
		require.NoError(t, err)
	}
	peerState := peerNs.GetReplState()

	srv := cproto.NewServer(peerDB, 5, quietLogger())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	defer srv.Close()

	localDB := db.New("", quietLogger(), nil)
	_, err = localDB.CreateNamespace(booksDefinition())
	require.NoError(t, err)

	cfg := Config{
		DSNs:         []string{"", ln.Addr().String()},
		ClusterID:    5,
		ServerID:     0,
		ThreadsCount: 1,
		NetTimeout:   5 * time.Second,
	}
	state := leaderState("books")
	ls := NewLeaderSyncer(cfg, NewPeerDialer(cfg, quietLogger(), nil), quietLogger(), nil)

	entries := []SyncEntry{{
		NsName:             "books",
		CandidateNodes:     []int{1},
		ExpectedDataHashes: []uint64{peerState.DataHash},
		LatestLSN:          peerState.Extended(),
	}}
	require.NoError(t, ls.Sync(context.Background(), entries, state, DBNode{DB: localDB}))

	localState, err := localDB.GetReplState("books")
	require.NoError(t, err)
	assert.Equal(t, peerState.DataHash, localState.DataHash)
	assert.True(t, state.IsInitialSyncDone("books"))

	// a reader blocked on the sync barrier is free to proceed
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, state.AwaitInitialSync(ctx, "books"))
}

// TestLeaderSyncWrongCluster verifies that the expected-cluster-id pin
// fails the sync fast instead of pulling foreign data.
func TestLeaderSyncWrongCluster(t *testing.T) {
	peerDB := db.New("", quietLogger(), nil)
	_, err := peerDB.CreateNamespace(booksDefinition())
	require.NoError(t, err)
	srv := cproto.NewServer(peerDB, 5, quietLogger())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	defer srv.Close()

	localDB := db.New("", quietLogger(), nil)
	_, err = localDB.CreateNamespace(booksDefinition())
	require.NoError(t, err)

	cfg := Config{
		DSNs:         []string{"", ln.Addr().String()},
		ClusterID:    6, // wrong on purpose
		ServerID:     0,
		ThreadsCount: 1,
		NetTimeout:   2 * time.Second,
	}
	state := leaderState("books")
	ls := NewLeaderSyncer(cfg, NewPeerDialer(cfg, quietLogger(), nil), quietLogger(), nil)
	entries := []SyncEntry{{
		NsName:             "books",
		CandidateNodes:     []int{1},
		ExpectedDataHashes: []uint64{1},
	}}
	err = ls.Sync(context.Background(), entries, state, DBNode{DB: localDB})
	require.Error(t, err)
	assert.False(t, state.IsInitialSyncDone("books"))
}
