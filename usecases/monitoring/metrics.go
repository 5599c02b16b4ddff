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

// Package monitoring exposes the process metrics: query latencies, sync
// timings and RPC client state, registered on a prometheus registerer.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	QueryLatency  *prometheus.HistogramVec
	RowsSelected  *prometheus.CounterVec
	SyncDuration  *prometheus.HistogramVec
	ForceResyncs  prometheus.Counter
	RPCInflight   prometheus.Gauge
	RPCTimeouts   prometheus.Counter
	WALRecords    *prometheus.CounterVec
	registerer    prometheus.Registerer
}

// New builds and registers the metric set. A nil registerer produces a
// standalone (unregistered) set usable in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tessera",
			Name:      "query_latency_seconds",
			Help:      "Select pipeline latency per namespace",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}, []string{"namespace"}),
		RowsSelected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tessera",
			Name:      "rows_selected_total",
			Help:      "Rows matched by selects per namespace",
		}, []string{"namespace"}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tessera",
			Name:      "leader_sync_seconds",
			Help:      "Per-namespace leader sync duration",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"kind"}),
		ForceResyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tessera",
			Name:      "leader_force_resyncs_total",
			Help:      "Leader syncs that fell back to a full resync",
		}),
		RPCInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tessera",
			Name:      "rpc_inflight_calls",
			Help:      "RPC calls currently waiting for a response",
		}),
		RPCTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tessera",
			Name:      "rpc_timeouts_total",
			Help:      "RPC calls resolved by deadline expiry",
		}),
		WALRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tessera",
			Name:      "wal_records_total",
			Help:      "WAL records emitted per namespace",
		}, []string{"namespace"}),
		registerer: reg,
	}
	if reg != nil {
		reg.MustRegister(m.QueryLatency, m.RowsSelected, m.SyncDuration,
			m.ForceResyncs, m.RPCInflight, m.RPCTimeouts, m.WALRecords)
	}
	return m
}

// Noop returns an unregistered metric set.
func Noop() *Metrics { return New(nil) }

// ObserveQuery records one select.
func (m *Metrics) ObserveQuery(ns string, start time.Time, rows int) {
	m.QueryLatency.WithLabelValues(ns).Observe(time.Since(start).Seconds())
	m.RowsSelected.WithLabelValues(ns).Add(float64(rows))
}
