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
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
	yaml "gopkg.in/yaml.v2"

	"github.com/tesseradb/tessera/usecases/monitoring"
)

// storagePlaceholder marks a namespace directory and names the meta
// engine inside it.
const (
	storagePlaceholder = ".tessera.storage"
	storageEngine      = "bbolt"
	metaDBName         = "meta.db"
	replConfName       = "replication.conf"
)

var (
	metaBucket = []byte("meta")
	defKey     = []byte("definition")
)

// ReplicationConf is the per-namespace replication.conf file.
type ReplicationConf struct {
	ClusterID int    `yaml:"cluster_id"`
	ServerID  int    `yaml:"server_id"`
	Role      string `yaml:"role"`
}

func initNamespaceStorage(dir string, def Definition) error {
	nsDir := filepath.Join(dir, def.Name)
	if err := os.MkdirAll(nsDir, 0o755); err != nil {
		return errors.Wrapf(err, "mkdir %s", nsDir)
	}
	if err := os.WriteFile(filepath.Join(nsDir, storagePlaceholder), []byte(storageEngine+"\n"), 0o644); err != nil {
		return errors.Wrap(err, "write storage placeholder")
	}
	replRaw, err := yaml.Marshal(ReplicationConf{Role: "none"})
	if err != nil {
		return errors.Wrap(err, "marshal replication.conf")
	}
	if err := os.WriteFile(filepath.Join(nsDir, replConfName), replRaw, 0o644); err != nil {
		return errors.Wrap(err, "write replication.conf")
	}

	meta, err := bolt.Open(filepath.Join(nsDir, metaDBName), 0o644, nil)
	if err != nil {
		return errors.Wrap(err, "open namespace meta db")
	}
	defer meta.Close()
	defRaw, err := json.Marshal(def)
	if err != nil {
		return errors.Wrap(err, "marshal namespace definition")
	}
	return meta.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		return b.Put(defKey, defRaw)
	})
}

func dropNamespaceStorage(dir, name string) error {
	nsDir := filepath.Join(dir, name)
	if _, err := os.Stat(filepath.Join(nsDir, storagePlaceholder)); err != nil {
		// refuse to remove a directory we did not create
		return nil
	}
	return os.RemoveAll(nsDir)
}

// LoadDefinitions scans the data directory and reads back every stored
// namespace definition.
func LoadDefinitions(dir string) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read data dir %s", dir)
	}
	var out []Definition
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		nsDir := filepath.Join(dir, e.Name())
		if _, err := os.Stat(filepath.Join(nsDir, storagePlaceholder)); err != nil {
			continue
		}
		meta, err := bolt.Open(filepath.Join(nsDir, metaDBName), 0o644, &bolt.Options{ReadOnly: true})
		if err != nil {
			return nil, errors.Wrapf(err, "open meta db of '%s'", e.Name())
		}
		var def Definition
		err = meta.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(metaBucket)
			if b == nil {
				return errors.Errorf("namespace '%s' has no meta bucket", e.Name())
			}
			raw := b.Get(defKey)
			if raw == nil {
				return errors.Errorf("namespace '%s' has no stored definition", e.Name())
			}
			return json.Unmarshal(raw, &def)
		})
		meta.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

// Open loads every namespace stored under dir into a fresh DB.
func Open(dir string, log logrus.FieldLogger, metrics *monitoring.Metrics) (*DB, error) {
	db := New(dir, log, metrics)
	defs, err := LoadDefinitions(dir)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if _, err := db.CreateNamespace(def); err != nil {
			return nil, errors.Wrapf(err, "load namespace '%s'", def.Name)
		}
	}
	return db, nil
}
