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

// Package cluster wires the raft consensus layer to replication: the store
// runs the local raft node, observes leadership transitions and drives the
// shared sync state and the leader syncer so readers only see namespaces
// that finished their initial sync.
package cluster

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftbolt "github.com/hashicorp/raft-boltdb/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tesseradb/tessera/adapters/clients/cproto"
	"github.com/tesseradb/tessera/adapters/repos/db"
	"github.com/tesseradb/tessera/cluster/replication"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/usecases/monitoring"
)

const (
	raftDBName = "raft.db"

	// logCacheCapacity caches the most recently committed raft entries to
	// cut disk reads on the hot path.
	logCacheCapacity = 512

	tcpMaxPool         = 3
	tcpTimeout         = 10 * time.Second
	nRetainedSnapshots = 3
)

// Config parameterizes the cluster store.
type Config struct {
	NodeID    string
	ClusterID int
	ServerID  int
	WorkDir   string
	BindAddr  string
	// PeerDSNs address every node's cproto endpoint, indexed by node id.
	PeerDSNs []string
	// RaftPeers lists the raft addresses for bootstrap.
	RaftPeers []raft.Server

	SyncThreads     int
	MaxSyncsPerNode int
	MaxWALDepth     int
	NetTimeout      time.Duration

	Logger  *logrus.Logger
	Metrics *monitoring.Metrics
}

// Store runs the local raft node and reacts to role changes.
type Store struct {
	cfg Config
	log logrus.FieldLogger

	db        *db.DB
	raft      *raft.Raft
	transport *raft.NetworkTransport
	logStore  *raftbolt.BoltStore
	logCache  *raft.LogCache
	snapshots *raft.FileSnapshotStore

	syncState *replication.SharedSyncState
	syncer    *replication.LeaderSyncer

	cancel context.CancelFunc
}

func NewStore(cfg Config, database *db.DB) *Store {
	log := cfg.Logger.WithField("component", "cluster")
	syncCfg := replication.Config{
		DSNs:                   cfg.PeerDSNs,
		ClusterID:              cfg.ClusterID,
		ServerID:               cfg.ServerID,
		ThreadsCount:           cfg.SyncThreads,
		MaxSyncsPerNode:        cfg.MaxSyncsPerNode,
		MaxWALDepthOnForceSync: cfg.MaxWALDepth,
		NetTimeout:             cfg.NetTimeout,
	}
	return &Store{
		cfg:       cfg,
		log:       log,
		db:        database,
		syncState: replication.NewSharedSyncState(log),
		syncer: replication.NewLeaderSyncer(syncCfg,
			replication.NewPeerDialer(syncCfg, log, cfg.Metrics), log, cfg.Metrics),
	}
}

// SyncState exposes the shared sync state readers block on.
func (st *Store) SyncState() *replication.SharedSyncState { return st.syncState }

// Open starts the raft node and the leadership observer.
func (st *Store) Open(ctx context.Context) error {
	if err := st.init(); err != nil {
		return err
	}

	conf := raft.DefaultConfig()
	conf.LocalID = raft.ServerID(st.cfg.NodeID)
	conf.LogOutput = st.cfg.Logger.Writer()

	r, err := raft.NewRaft(conf, &nsFSM{db: st.db, log: st.log}, st.logCache, st.logStore, st.snapshots, st.transport)
	if err != nil {
		return terrors.Errorf(terrors.Internal, "raft.NewRaft %v: %v", st.transport.LocalAddr(), err)
	}
	st.raft = r

	if len(st.cfg.RaftPeers) > 0 {
		st.raft.BootstrapCluster(raft.Configuration{Servers: st.cfg.RaftPeers})
	}

	obsCtx, cancel := context.WithCancel(ctx)
	st.cancel = cancel
	terrors.GoWrapper(func() { st.observeLeadership(obsCtx) }, st.log)
	st.log.WithField("node", st.cfg.NodeID).Info("raft node constructed")
	return nil
}

func (st *Store) init() error {
	if err := os.MkdirAll(st.cfg.WorkDir, 0o755); err != nil {
		return terrors.Errorf(terrors.Internal, "mkdir %s: %v", st.cfg.WorkDir, err)
	}
	var err error
	st.logStore, err = raftbolt.NewBoltStore(filepath.Join(st.cfg.WorkDir, raftDBName))
	if err != nil {
		return terrors.Errorf(terrors.Internal, "bolt store: %v", err)
	}
	st.logCache, err = raft.NewLogCache(logCacheCapacity, st.logStore)
	if err != nil {
		return terrors.Errorf(terrors.Internal, "log cache: %v", err)
	}
	st.snapshots, err = raft.NewFileSnapshotStore(st.cfg.WorkDir, nRetainedSnapshots, st.cfg.Logger.Writer())
	if err != nil {
		return terrors.Errorf(terrors.Internal, "snapshot store: %v", err)
	}
	addr, err := net.ResolveTCPAddr("tcp", st.cfg.BindAddr)
	if err != nil {
		return terrors.Errorf(terrors.Internal, "resolve %s: %v", st.cfg.BindAddr, err)
	}
	st.transport, err = raft.NewTCPTransport(st.cfg.BindAddr, addr, tcpMaxPool, tcpTimeout, st.cfg.Logger.Writer())
	if err != nil {
		return terrors.Errorf(terrors.Internal, "tcp transport: %v", err)
	}
	return nil
}

// Close terminates sync waiters and shuts the raft node down.
func (st *Store) Close() error {
	if st.cancel != nil {
		st.cancel()
	}
	st.syncer.Terminate()
	st.syncState.SetTerminated()
	if st.raft != nil {
		if err := st.raft.Shutdown().Error(); err != nil {
			return err
		}
	}
	if st.transport != nil {
		st.transport.Close()
	}
	if st.logStore != nil {
		return st.logStore.Close()
	}
	return nil
}

// observeLeadership turns raft leadership changes into sync-state role
// transitions and runs the initial leader sync on promotion.
func (st *Store) observeLeadership(ctx context.Context) {
	leaderCh := st.raft.LeaderCh()
	for {
		select {
		case <-ctx.Done():
			return
		case isLeader := <-leaderCh:
			if isLeader {
				st.onPromoted(ctx)
			} else {
				info := replication.RaftInfo{Role: replication.RoleFollower}
				st.syncState.SetRole(info)
				st.syncState.TryTransitRole(info)
				st.log.Info("demoted to follower")
			}
		}
	}
}

func (st *Store) onPromoted(ctx context.Context) {
	st.log.Info("promoted to leader, starting initial sync")
	names := st.db.NamespaceNames()
	st.syncState.Reset(names, st.cfg.SyncThreads, true)
	info := replication.RaftInfo{Role: replication.RoleLeader, LeaderID: int64(st.cfg.ServerID)}
	st.syncState.SetRole(info)
	st.syncState.TryTransitRole(info)

	entries, err := st.collectSyncEntries(ctx, names)
	if err != nil {
		st.log.WithError(err).Error("unable to collect sync entries")
		return
	}
	if err := st.syncer.Sync(ctx, entries, st.syncState, replication.DBNode{DB: st.db}); err != nil {
		st.log.WithError(err).Error("initial leader sync failed")
	}
}

// collectSyncEntries asks every peer for its replication state and
// enqueues the namespaces where some peer is ahead of us. Namespaces
// already at the latest state are marked synchronized immediately.
func (st *Store) collectSyncEntries(ctx context.Context, names []string) ([]replication.SyncEntry, error) {
	type peerState struct {
		node     int
		version  int64
		lsn      int64
		dataHash uint64
	}

	var entries []replication.SyncEntry
	for _, name := range names {
		local, err := st.db.GetReplState(name)
		if err != nil {
			return nil, err
		}
		var mu sync.Mutex
		var ahead []peerState
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(4)
		for node, dsn := range st.cfg.PeerDSNs {
			if node == st.cfg.ServerID || dsn == "" {
				continue
			}
			node, dsn := node, dsn
			eg.Go(func() error {
				client := cproto.NewClient(st.log, st.cfg.Metrics)
				opts := cproto.ConnectOpts{
					AppName:    "leader-sync-probe",
					NetTimeout: st.cfg.NetTimeout,
				}.WithExpectedClusterID(st.cfg.ClusterID)
				if err := client.Start(egCtx, dsn, opts); err != nil {
					st.log.WithError(err).WithField("node", node).Warn("peer is unreachable, skipping")
					return nil
				}
				defer client.Stop()
				version, lsn, hash, err := client.GetReplState(egCtx, name)
				if err != nil {
					st.log.WithError(err).WithField("node", node).Warn("peer repl state failed")
					return nil
				}
				remote := peerState{node: node, version: version, lsn: lsn, dataHash: hash}
				if remote.version > local.NsVersion ||
					(remote.version == local.NsVersion && remote.lsn > local.LastLSN) ||
					(remote.version == local.NsVersion && remote.lsn == local.LastLSN && remote.dataHash != local.DataHash) {
					mu.Lock()
					ahead = append(ahead, remote)
					mu.Unlock()
				}
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
		if len(ahead) == 0 {
			st.syncState.MarkSynchronized(name)
			continue
		}
		// best candidates first: highest (version, lsn) wins
		best := ahead[0]
		for _, p := range ahead[1:] {
			if p.version > best.version || (p.version == best.version && p.lsn > best.lsn) {
				best = p
			}
		}
		entry := replication.SyncEntry{
			NsName:    name,
			LatestLSN: extLSN(best.version, best.lsn),
			LocalLSN:  local.Extended(),
		}
		for _, p := range ahead {
			if p.version == best.version && p.lsn == best.lsn {
				entry.CandidateNodes = append(entry.CandidateNodes, p.node)
				entry.ExpectedDataHashes = append(entry.ExpectedDataHashes, p.dataHash)
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
