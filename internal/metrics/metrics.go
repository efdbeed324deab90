// Package metrics holds the prometheus collectors shared by the index
// builder, the shard loader and the daemon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuildsTotal counts snapshot builds by result ("ok" or "error").
	BuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symdex_builds_total",
		Help: "Total snapshot builds by result",
	}, []string{"result"})

	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "symdex_build_duration_seconds",
		Help:    "Snapshot build duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
	})

	SymbolsIndexed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "symdex_symbols_indexed",
		Help: "Symbols in the latest build of each snapshot",
	}, []string{"snapshot"})

	// LookupsTotal counts queries by kind ("prefix", "path", "inheritance",
	// "doc") and whether anything matched.
	LookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symdex_lookups_total",
		Help: "Total queries by kind and result",
	}, []string{"kind", "result"})

	LookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "symdex_lookup_duration_seconds",
		Help:    "Query duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14), // 10us to ~160ms
	}, []string{"kind"})

	// ShardLoads counts lazy shard loads by result ("hit", "loaded",
	// "missing", "error").
	ShardLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "symdex_shard_loads_total",
		Help: "Lazy shard loads by result",
	}, []string{"result"})

	ShardRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "symdex_shard_load_retries_total",
		Help: "Shard fetch attempts that failed and were retried",
	})
)

// ObserveLookup records one query.
func ObserveLookup(kind string, start time.Time, found bool) {
	result := "empty"
	if found {
		result = "found"
	}
	LookupsTotal.WithLabelValues(kind, result).Inc()
	LookupDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

// ObserveBuild records one build.
func ObserveBuild(start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	BuildsTotal.WithLabelValues(result).Inc()
	BuildDuration.Observe(time.Since(start).Seconds())
}
