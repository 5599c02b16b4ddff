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
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tesseradb/tessera/adapters/repos/db/wal"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/usecases/monitoring"
)

// Config tunes the leader syncer.
type Config struct {
	// DSNs address every cluster node, indexed by node id.
	DSNs                   []string
	ClusterID              int
	ServerID               int
	ThreadsCount           int
	MaxSyncsPerNode        int
	MaxWALDepthOnForceSync int
	EnableCompression      bool
	NetTimeout             time.Duration
}

// LocalNode is the database surface the syncer drives.
type LocalNode interface {
	HasNamespace(name string) bool
	GetReplState(name string) (nsVersion, lastLSN int64, dataHash uint64, err error)
	CreateTemporaryNamespace(base string, nsVersion int64) (string, error)
	DropNamespace(name string) error
	RenameNamespace(from, to string, overwrite bool) error
	ApplySnapshotChunk(name string, ch wal.Chunk) error
}

// Peer is one connection to a cluster node.
type Peer interface {
	Connect(ctx context.Context, dsn string) error
	GetSnapshot(ctx context.Context, nsName string, opts wal.SnapshotOpts) (*wal.Snapshot, error)
	Stop()
}

// PeerDialer builds a fresh peer connection per worker.
type PeerDialer func() Peer

// LeaderSyncer reconciles local namespaces from peers when this node
// becomes the raft leader: per namespace it pulls a snapshot (WAL tail or
// raw data) and verifies the data hash, forcing one full resync on
// mismatch.
type LeaderSyncer struct {
	cfg     Config
	queue   *SyncQueue
	dial    PeerDialer
	log     logrus.FieldLogger
	metrics *monitoring.Metrics

	terminated atomic.Bool
}

func NewLeaderSyncer(cfg Config, dial PeerDialer, log logrus.FieldLogger, metrics *monitoring.Metrics) *LeaderSyncer {
	if cfg.ThreadsCount <= 0 {
		cfg.ThreadsCount = 2
	}
	if metrics == nil {
		metrics = monitoring.Noop()
	}
	return &LeaderSyncer{
		cfg:     cfg,
		queue:   NewSyncQueue(cfg.MaxSyncsPerNode),
		dial:    dial,
		log:     log,
		metrics: metrics,
	}
}

// Terminate stops all workers at the next chunk boundary.
func (ls *LeaderSyncer) Terminate() { ls.terminated.Store(true) }

// Sync drains the entries with the configured worker count and returns the
// first-seen error. A terminated batch reports Terminated regardless of
// stored errors.
func (ls *LeaderSyncer) Sync(ctx context.Context, entries []SyncEntry, state *SharedSyncState, local LocalNode) error {
	ls.terminated.Store(false)
	ls.queue.Refill(entries)

	errs := make([]error, ls.cfg.ThreadsCount)
	var wg sync.WaitGroup
	for i := 0; i < ls.cfg.ThreadsCount; i++ {
		wg.Add(1)
		tid := i
		terrors.GoWrapper(func() {
			defer wg.Done()
			errs[tid] = ls.worker(ctx, tid, state, local)
			state.MarkAllSynchronized()
		}, ls.log)
	}
	wg.Wait()

	if ls.terminated.Load() {
		return terrors.New(terrors.Terminated, "leader sync was terminated")
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (ls *LeaderSyncer) worker(ctx context.Context, tid int, state *SharedSyncState, local LocalNode) error {
	peer := ls.dial()
	defer peer.Stop()

	var lastErr error
	preferred := -1
	for !ls.terminated.Load() && ctx.Err() == nil {
		entry, node, expectedHash, ok := ls.queue.TryToGetEntry(preferred)
		if !ok {
			if ls.queue.Size() == 0 {
				break
			}
			// all candidates saturated, wait for a slot
			time.Sleep(10 * time.Millisecond)
			continue
		}
		log := ls.log.WithFields(logrus.Fields{
			"server_id": ls.cfg.ServerID, "thread": tid,
			"namespace": entry.NsName, "node": node,
		})
		log.Info("trying to sync namespace")

		if node != preferred {
			preferred = node
			peer.Stop()
		}
		err := func() error {
			if err := peer.Connect(ctx, ls.cfg.DSNs[node]); err != nil {
				return err
			}
			return ls.syncNamespace(ctx, peer, entry, expectedHash, log, local)
		}()
		if err != nil {
			lastErr = err
			log.WithError(err).Error("unable to sync local namespace")
		} else {
			state.MarkSynchronized(entry.NsName)
		}
		ls.queue.SyncDone(node)
	}
	return lastErr
}

// syncNamespace runs up to two attempts: the second one forces a full
// resync. The data hash verifies against the candidate's expected hash
// before a temporary namespace is published over the live one.
func (ls *LeaderSyncer) syncNamespace(ctx context.Context, peer Peer, entry SyncEntry,
	expectedHash uint64, log logrus.FieldLogger, local LocalNode,
) error {
	for attempt := 0; attempt < 2; attempt++ {
		forced := attempt > 0
		start := time.Now()
		tmpName, err := ls.syncNamespaceImpl(ctx, peer, entry, forced, log, local)
		if err != nil {
			if tmpName != "" {
				ls.dropTemporary(tmpName, log, local)
			}
			return err
		}
		kind := "wal"
		if forced {
			kind = "force"
		}
		ls.metrics.SyncDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

		stateName := entry.NsName
		if tmpName != "" {
			stateName = tmpName
		}
		nsVersion, lastLSN, dataHash, err := local.GetReplState(stateName)
		if err != nil {
			if tmpName != "" {
				ls.dropTemporary(tmpName, log, local)
			}
			return err
		}
		if dataHash == expectedHash {
			if tmpName != "" {
				if err := local.RenameNamespace(tmpName, entry.NsName, true); err != nil {
					ls.dropTemporary(tmpName, log, local)
					return err
				}
			}
			log.WithFields(logrus.Fields{
				"ns_version": nsVersion, "lsn": lastLSN,
			}).Info("local namespace was updated from peer")
			return nil
		}

		if tmpName != "" {
			ls.dropTemporary(tmpName, log, local)
		}
		if forced {
			return terrors.Errorf(terrors.DataHashMismatch,
				"%d: data hash mismatch after full resync of '%s': expected %d, actual %d",
				ls.cfg.ServerID, entry.NsName, expectedHash, dataHash)
		}
		ls.metrics.ForceResyncs.Inc()
		log.WithFields(logrus.Fields{
			"expected": expectedHash, "actual": dataHash,
		}).Warn("data hash mismatch after namespace sync, forcing full resync")
	}
	return nil
}

// syncNamespaceImpl pulls and applies one snapshot. It returns the name of
// the temporary namespace when one was created; the caller owns dropping
// or publishing it.
func (ls *LeaderSyncer) syncNamespaceImpl(ctx context.Context, peer Peer, entry SyncEntry,
	forced bool, log logrus.FieldLogger, local LocalNode,
) (string, error) {
	mode := "by wal"
	if forced {
		mode = "forced"
	}
	log.WithField("mode", mode).Info("synchronizing namespace")

	from := entry.LocalLSN
	if forced {
		from = wal.ExtendedLSN{LSN: wal.EmptyLSN}
	}
	snapshot, err := peer.GetSnapshot(ctx, entry.NsName, wal.SnapshotOpts{
		From:                   from,
		MaxWALDepthOnForceSync: ls.cfg.MaxWALDepthOnForceSync,
	})
	if err != nil {
		return "", err
	}

	target := entry.NsName
	tmpName := ""
	if !local.HasNamespace(entry.NsName) || snapshot.HasRawData {
		tmpName, err = local.CreateTemporaryNamespace(entry.NsName, snapshot.LatestLSN.NsVersion)
		if err != nil {
			return "", err
		}
		target = tmpName
	}

	for _, ch := range snapshot.Chunks {
		if ls.terminated.Load() {
			return tmpName, terrors.New(terrors.Terminated, "leader sync was terminated")
		}
		if err := ctx.Err(); err != nil {
			return tmpName, terrors.New(terrors.Cancelled, "leader sync cancelled")
		}
		if err := local.ApplySnapshotChunk(target, ch); err != nil {
			return tmpName, err
		}
	}
	return tmpName, nil
}

func (ls *LeaderSyncer) dropTemporary(tmpName string, log logrus.FieldLogger, local LocalNode) {
	log.WithField("temporary", tmpName).Error("dropping temporary namespace")
	if err := local.DropNamespace(tmpName); err != nil {
		log.WithError(err).Error("unable to drop temporary namespace")
	}
}
