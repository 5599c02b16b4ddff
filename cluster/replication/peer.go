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

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/tesseradb/tessera/adapters/clients/cproto"
	"github.com/tesseradb/tessera/adapters/repos/db"
	"github.com/tesseradb/tessera/adapters/repos/db/wal"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/usecases/monitoring"
)

// cprotoPeer adapts the RPC client to the syncer's Peer interface, with an
// exponential backoff on connect.
type cprotoPeer struct {
	cfg     Config
	client  *cproto.Client
	current string
}

// NewPeerDialer builds the production dialer over the binary RPC client.
func NewPeerDialer(cfg Config, log logrus.FieldLogger, metrics *monitoring.Metrics) PeerDialer {
	return func() Peer {
		return &cprotoPeer{
			cfg:    cfg,
			client: cproto.NewClient(log, metrics),
		}
	}
}

func (p *cprotoPeer) Connect(ctx context.Context, dsn string) error {
	if p.current == dsn {
		if p.client.Ping(ctx) == nil {
			return nil
		}
		p.client.Stop()
	}
	opts := cproto.ConnectOpts{
		AppName:           "leader-syncer",
		EnableCompression: p.cfg.EnableCompression,
		NetTimeout:        p.cfg.NetTimeout,
	}.WithExpectedClusterID(p.cfg.ClusterID)

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	err := backoff.Retry(func() error {
		if err := p.client.Start(ctx, dsn, opts); err != nil {
			if terrors.IsCode(err, terrors.ProtocolMismatch) {
				// wrong cluster: retrying cannot help
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, bo)
	if err != nil {
		return err
	}
	p.current = dsn
	return nil
}

func (p *cprotoPeer) GetSnapshot(ctx context.Context, nsName string, opts wal.SnapshotOpts) (*wal.Snapshot, error) {
	return p.client.GetSnapshot(ctx, nsName, opts)
}

func (p *cprotoPeer) Stop() {
	p.client.Stop()
	p.current = ""
}

// DBNode adapts the local database to the syncer's LocalNode interface.
type DBNode struct {
	DB *db.DB
}

func (n DBNode) HasNamespace(name string) bool {
	_, err := n.DB.Namespace(name)
	return err == nil
}

func (n DBNode) GetReplState(name string) (int64, int64, uint64, error) {
	st, err := n.DB.GetReplState(name)
	if err != nil {
		return 0, 0, 0, err
	}
	return st.NsVersion, st.LastLSN, st.DataHash, nil
}

func (n DBNode) CreateTemporaryNamespace(base string, nsVersion int64) (string, error) {
	return n.DB.CreateTemporaryNamespace(base, nsVersion)
}

func (n DBNode) DropNamespace(name string) error { return n.DB.DropNamespace(name) }

func (n DBNode) RenameNamespace(from, to string, overwrite bool) error {
	return n.DB.RenameNamespace(from, to, overwrite)
}

func (n DBNode) ApplySnapshotChunk(name string, ch wal.Chunk) error {
	return n.DB.ApplySnapshotChunk(name, ch)
}
