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

package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/tesseradb/tessera/adapters/clients/cproto"
	"github.com/tesseradb/tessera/adapters/repos/db"
	"github.com/tesseradb/tessera/cluster"
	"github.com/tesseradb/tessera/entities/terrors"
	"github.com/tesseradb/tessera/usecases/config"
	"github.com/tesseradb/tessera/usecases/monitoring"
)

type options struct {
	Config   string `short:"c" long:"config" description:"path to the YAML configuration file"`
	DataDir  string `short:"d" long:"data-dir" description:"data directory override"`
	LogLevel string `long:"log-level" description:"log level override (debug, info, warn, error)"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(2)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		logrus.WithError(err).Fatal("unable to load configuration")
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	metrics := monitoring.New(prometheus.DefaultRegisterer)
	database, err := db.Open(cfg.DataDir, logger, metrics)
	if err != nil {
		logger.WithError(err).Fatal("unable to open database")
	}

	rpcLn, err := net.Listen("tcp", cfg.RPCBind)
	if err != nil {
		logger.WithError(err).Fatal("unable to bind RPC listener")
	}
	rpcSrv := cproto.NewServer(database, cfg.Cluster.ClusterID, logger)
	terrors.GoWrapper(func() { rpcSrv.Serve(rpcLn) }, logger)
	logger.WithField("addr", cfg.RPCBind).Info("RPC server listening")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store *cluster.Store
	if cfg.Cluster.RaftBind != "" {
		store = cluster.NewStore(cluster.Config{
			NodeID:          cfg.Cluster.NodeID,
			ClusterID:       cfg.Cluster.ClusterID,
			ServerID:        cfg.Cluster.ServerID,
			WorkDir:         cfg.DataDir + "/raft",
			BindAddr:        cfg.Cluster.RaftBind,
			PeerDSNs:        cfg.Cluster.PeerDSNs,
			SyncThreads:     cfg.Cluster.SyncThreads,
			MaxSyncsPerNode: cfg.Cluster.MaxSyncsPerNode,
			MaxWALDepth:     cfg.Cluster.MaxWALDepth,
			NetTimeout:      cfg.Cluster.NetTimeout(),
			Logger:          logger,
			Metrics:         metrics,
		}, database)
		if err := store.Open(ctx); err != nil {
			logger.WithError(err).Fatal("unable to open cluster store")
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	cancel()
	rpcSrv.Close()
	if store != nil {
		if err := store.Close(); err != nil {
			logger.WithError(err).Error("cluster store close failed")
		}
	}
}
