// Copyright 2018 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package metrics contains ambient, process-wide instrumentation for the
// dataset engine: scan/KNN latency histograms and index-cache hit/miss
// counters. None of this is part of the spec's functional surface (the
// spec's Non-goals exclude rate limiting and audit logging, but say
// nothing about internal observability); it exists purely so operators
// can see what the planner and vector index are doing, the same role
// OPA's internal/metrics/prometheus package plays for HTTP handlers.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Well-known metric names used as Timer/Counter keys throughout the
// engine.
const (
	ScanLatency       = "scan_latency_seconds"
	KNNLatency        = "knn_search_latency_seconds"
	FTSLatency        = "fts_search_latency_seconds"
	CommitLatency     = "commit_latency_seconds"
	CompactionLatency = "compaction_latency_seconds"

	IndexCacheHits   = "index_cache_hits_total"
	IndexCacheMisses = "index_cache_misses_total"
	FragmentsScanned = "fragments_scanned_total"
	RowsScanned      = "rows_scanned_total"
)

// Registry wraps a dedicated prometheus registry with the histograms and
// counters the dataset engine records against. A single Registry is
// expected to be shared by all datasets opened in a process; it is safe
// for concurrent use.
type Registry struct {
	reg        *prometheus.Registry
	histograms map[string]*prometheus.HistogramVec
	counters   map[string]*prometheus.CounterVec

	mu sync.Mutex
}

// NewRegistry returns a Registry with the dataset engine's well-known
// metrics pre-registered, labeled by dataset uri.
func NewRegistry() *Registry {
	r := &Registry{
		reg:        prometheus.NewRegistry(),
		histograms: map[string]*prometheus.HistogramVec{},
		counters:   map[string]*prometheus.CounterVec{},
	}
	for _, name := range []string{ScanLatency, KNNLatency, FTSLatency, CommitLatency, CompactionLatency} {
		hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: name,
			Help: "ContextFrame dataset engine latency histogram for " + name,
		}, []string{"dataset"})
		r.reg.MustRegister(hv)
		r.histograms[name] = hv
	}
	for _, name := range []string{IndexCacheHits, IndexCacheMisses, FragmentsScanned, RowsScanned} {
		cv := prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: name,
			Help: "ContextFrame dataset engine counter for " + name,
		}, []string{"dataset"})
		r.reg.MustRegister(cv)
		r.counters[name] = cv
	}
	return r
}

// ObserveSeconds records a duration observation against the named
// histogram for the given dataset id.
func (r *Registry) ObserveSeconds(name, dataset string, seconds float64) {
	r.mu.Lock()
	hv := r.histograms[name]
	r.mu.Unlock()
	if hv == nil {
		return
	}
	hv.WithLabelValues(dataset).Observe(seconds)
}

// Inc increments the named counter for the given dataset id by delta.
func (r *Registry) Inc(name, dataset string, delta float64) {
	r.mu.Lock()
	cv := r.counters[name]
	r.mu.Unlock()
	if cv == nil {
		return
	}
	cv.WithLabelValues(dataset).Add(delta)
}

// Gatherer exposes the underlying prometheus.Gatherer for callers that
// want to serve /metrics themselves (the HTTP surface is an external
// collaborator, spec §1 — this package only produces the data).
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
