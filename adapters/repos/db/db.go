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
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/tesseradb/tessera/adapters/repos/db/join"
	"github.com/tesseradb/tessera/adapters/repos/db/wal"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/usecases/monitoring"
)

const countCacheSize = 4096

// tmpNsPrefix marks temporary namespaces created during force sync; they
// never serve queries by accident because the prefix is not addressable
// from the DSL.
const tmpNsPrefix = "@tmp_"

// DB is the namespace registry and the query entry point. Namespace
// handles are atomic pointers: heavy writers clone, apply and publish
// while readers keep the old instance.
type DB struct {
	mu         sync.RWMutex
	namespaces map[string]*atomic.Pointer[Namespace]

	dir        string
	log        logrus.FieldLogger
	metrics    *monitoring.Metrics
	joinCache  *join.Cache
	countCache *lru.Cache

	nsVersionSeq atomic.Int64
}

func New(dir string, log logrus.FieldLogger, metrics *monitoring.Metrics) *DB {
	if log == nil {
		log = logrus.New()
	}
	if metrics == nil {
		metrics = monitoring.Noop()
	}
	cc, _ := lru.New(countCacheSize)
	return &DB{
		namespaces: map[string]*atomic.Pointer[Namespace]{},
		dir:        dir,
		log:        log,
		metrics:    metrics,
		joinCache:  join.NewCache(),
		countCache: cc,
	}
}

// CreateNamespace creates and registers a namespace with its on-disk
// layout. Creating an existing name is a Conflict.
func (db *DB) CreateNamespace(def Definition) (*Namespace, error) {
	key := strings.ToLower(def.Name)
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.namespaces[key]; exists {
		return nil, terrors.Errorf(terrors.Conflict, "namespace '%s' already exists", def.Name)
	}
	ns, err := newNamespace(def, db.nsVersionSeq.Add(1), db.log.WithField("namespace", def.Name))
	if err != nil {
		return nil, err
	}
	if db.dir != "" && !strings.HasPrefix(def.Name, tmpNsPrefix) {
		if err := initNamespaceStorage(db.dir, def); err != nil {
			return nil, err
		}
	}
	h := &atomic.Pointer[Namespace]{}
	h.Store(ns)
	db.namespaces[key] = h
	db.log.WithField("namespace", def.Name).Info("namespace created")
	return ns, nil
}

// Namespace resolves a handle, case-insensitively.
func (db *DB) Namespace(name string) (*Namespace, error) {
	db.mu.RLock()
	h, ok := db.namespaces[strings.ToLower(name)]
	db.mu.RUnlock()
	if !ok {
		return nil, terrors.Errorf(terrors.NotFound, "namespace '%s' does not exist", name)
	}
	return h.Load(), nil
}

// NamespaceNames lists the registered non-temporary namespaces.
func (db *DB) NamespaceNames() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]string, 0, len(db.namespaces))
	for _, h := range db.namespaces {
		ns := h.Load()
		if !ns.temporary {
			out = append(out, ns.name)
		}
	}
	return out
}

// DropNamespace unregisters the namespace and removes its directory.
func (db *DB) DropNamespace(name string) error {
	key := strings.ToLower(name)
	db.mu.Lock()
	h, ok := db.namespaces[key]
	if ok {
		delete(db.namespaces, key)
	}
	db.mu.Unlock()
	if !ok {
		return terrors.Errorf(terrors.NotFound, "namespace '%s' does not exist", name)
	}
	ns := h.Load()
	if db.dir != "" && !ns.temporary {
		if err := dropNamespaceStorage(db.dir, ns.name); err != nil {
			return err
		}
	}
	db.log.WithField("namespace", name).Info("namespace dropped")
	return nil
}

// CreateTemporaryNamespace creates an empty namespace with the schema of
// base, used by force sync to build a fresh copy aside the live one.
func (db *DB) CreateTemporaryNamespace(base string, nsVersion int64) (string, error) {
	baseNs, err := db.Namespace(base)
	if err != nil {
		return "", err
	}
	def := baseNs.def
	def.Name = tmpNsPrefix + base + "_" + uuid.NewString()[:8]
	tmp, err := db.CreateNamespace(def)
	if err != nil {
		return "", err
	}
	tmp.mu.Lock()
	tmp.temporary = true
	if nsVersion != 0 {
		tmp.nsVersion = nsVersion
	}
	tmp.mu.Unlock()
	return def.Name, nil
}

// RenameNamespace atomically replaces the target handle with the source
// namespace. Used to publish a temporary namespace over the live one after
// a successful force sync.
func (db *DB) RenameNamespace(from, to string, overwrite bool) error {
	fromKey, toKey := strings.ToLower(from), strings.ToLower(to)
	db.mu.Lock()
	defer db.mu.Unlock()
	src, ok := db.namespaces[fromKey]
	if !ok {
		return terrors.Errorf(terrors.NotFound, "namespace '%s' does not exist", from)
	}
	if _, exists := db.namespaces[toKey]; exists && !overwrite {
		return terrors.Errorf(terrors.Conflict, "namespace '%s' already exists", to)
	}
	ns := src.Load()
	ns.mu.Lock()
	ns.name = to
	ns.pt = ns.pt.WithName(to)
	ns.temporary = false
	ns.def.Name = to
	ns.mu.Unlock()
	delete(db.namespaces, fromKey)
	if h, exists := db.namespaces[toKey]; exists {
		h.Store(ns)
	} else {
		h := &atomic.Pointer[Namespace]{}
		h.Store(ns)
		db.namespaces[toKey] = h
	}
	db.log.WithFields(logrus.Fields{"from": from, "to": to}).Info("namespace renamed")
	return nil
}

// GetReplState reads a namespace's replication position.
func (db *DB) GetReplState(name string) (ReplState, error) {
	ns, err := db.Namespace(name)
	if err != nil {
		return ReplState{}, err
	}
	return ns.GetReplState(), nil
}

// GetSnapshot builds a snapshot stream for a peer starting at its LSN.
func (db *DB) GetSnapshot(name string, opts wal.SnapshotOpts) (wal.Snapshot, error) {
	ns, err := db.Namespace(name)
	if err != nil {
		return wal.Snapshot{}, err
	}
	return ns.BuildSnapshot(opts), nil
}

// ApplySnapshotChunk applies one chunk in stream order.
func (db *DB) ApplySnapshotChunk(name string, ch wal.Chunk) error {
	ns, err := db.Namespace(name)
	if err != nil {
		return err
	}
	return ns.ApplySnapshotChunk(ch)
}

// UpdateHeavy runs a bulk mutation on a clone of the namespace while
// readers continue on the old instance; the clone is published atomically
// on success and discarded on failure.
func (db *DB) UpdateHeavy(name string, fn func(*Namespace) error) error {
	key := strings.ToLower(name)
	db.mu.RLock()
	h, ok := db.namespaces[key]
	db.mu.RUnlock()
	if !ok {
		return terrors.Errorf(terrors.NotFound, "namespace '%s' does not exist", name)
	}
	cur := h.Load()
	clone, err := cur.clone()
	if err != nil {
		return err
	}
	if err := fn(clone); err != nil {
		// the clone is dropped, readers never saw it and the WAL of the
		// live namespace did not advance
		return err
	}
	h.Store(clone)
	return nil
}
