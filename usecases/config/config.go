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

// Package config loads the server configuration file.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Cluster configures the raft layer and the leader syncer.
type Cluster struct {
	NodeID          string   `yaml:"node_id"`
	ClusterID       int      `yaml:"cluster_id"`
	ServerID        int      `yaml:"server_id"`
	RaftBind        string   `yaml:"raft_bind"`
	PeerDSNs        []string `yaml:"peer_dsns"`
	SyncThreads     int      `yaml:"sync_threads"`
	MaxSyncsPerNode int      `yaml:"max_syncs_per_node"`
	MaxWALDepth     int      `yaml:"max_wal_depth_on_force_sync"`
	NetTimeoutMs    int      `yaml:"net_timeout_ms"`
}

// Config is the server configuration file.
type Config struct {
	DataDir   string  `yaml:"data_dir"`
	RPCBind   string  `yaml:"rpc_bind"`
	LogLevel  string  `yaml:"log_level"`
	Cluster   Cluster `yaml:"cluster"`
}

func Default() Config {
	return Config{
		DataDir:  "./data",
		RPCBind:  ":6534",
		LogLevel: "info",
		Cluster: Cluster{
			SyncThreads:     2,
			MaxSyncsPerNode: 2,
			MaxWALDepth:     1000,
			NetTimeoutMs:    int(10 * time.Second / time.Millisecond),
		},
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read config %s", path)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// NetTimeout converts the configured timeout.
func (c Cluster) NetTimeout() time.Duration {
	return time.Duration(c.NetTimeoutMs) * time.Millisecond
}
