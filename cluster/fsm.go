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

package cluster

import (
	"encoding/json"
	"io"

	"github.com/hashicorp/raft"
	"github.com/sirupsen/logrus"

	"github.com/tesseradb/tessera/adapters/repos/db"
	"github.com/tesseradb/tessera/adapters/repos/db/wal"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/entities/value"
)

func extLSN(version, lsn int64) wal.ExtendedLSN {
	return wal.ExtendedLSN{NsVersion: version, LSN: lsn}
}

// Command is one replicated namespace mutation carried through the raft
// log.
type Command struct {
	Ns     string         `json:"ns"`
	Type   wal.RecordType `json:"type"`
	PK     string         `json:"pk,omitempty"`
	Doc    json.RawMessage `json:"doc,omitempty"`
}

// nsFSM applies committed raft entries to the local database.
type nsFSM struct {
	db  *db.DB
	log logrus.FieldLogger
}

func (f *nsFSM) Apply(l *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return terrors.Errorf(terrors.InvalidArgument, "malformed raft command: %v", err)
	}
	ns, err := f.db.Namespace(cmd.Ns)
	if err != nil {
		return err
	}
	switch cmd.Type {
	case wal.RecUpsert:
		_, err = ns.Upsert(cmd.Doc)
	case wal.RecDelete:
		err = ns.Delete(value.String(cmd.PK))
	case wal.RecTruncate:
		ns.Truncate()
	default:
		err = terrors.Errorf(terrors.InvalidArgument, "unknown raft command type %d", cmd.Type)
	}
	if err != nil {
		f.log.WithError(err).WithField("namespace", cmd.Ns).Error("raft apply failed")
	}
	return err
}

// Snapshot captures every namespace as raw documents.
func (f *nsFSM) Snapshot() (raft.FSMSnapshot, error) {
	state := map[string][]json.RawMessage{}
	for _, name := range f.db.NamespaceNames() {
		snap, err := f.db.GetSnapshot(name, wal.SnapshotOpts{From: wal.ExtendedLSN{LSN: wal.EmptyLSN}})
		if err != nil {
			return nil, err
		}
		for _, ch := range snap.Chunks {
			for _, rec := range ch.Records {
				if rec.Type == wal.RecUpsert {
					state[name] = append(state[name], rec.Doc)
				}
			}
		}
	}
	return &fsmSnapshot{state: state}, nil
}

func (f *nsFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var state map[string][]json.RawMessage
	if err := json.NewDecoder(rc).Decode(&state); err != nil {
		return err
	}
	for name, docs := range state {
		ns, err := f.db.Namespace(name)
		if err != nil {
			f.log.WithField("namespace", name).Warn("skipping snapshot of unknown namespace")
			continue
		}
		ns.Truncate()
		for _, doc := range docs {
			if _, err := ns.Upsert(doc); err != nil {
				return err
			}
		}
	}
	return nil
}

type fsmSnapshot struct {
	state map[string][]json.RawMessage
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.state); err != nil {
		sink.Cancel()
		return err
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}
