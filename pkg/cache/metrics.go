package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (memory, disk, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elexon_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"layer"},
	)

	// CacheMisses tracks absent or expired entries
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "elexon_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheWriteBytes tracks payload bytes written to the cache
	CacheWriteBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "elexon_cache_writes_bytes_total",
			Help: "Total payload bytes written to the response cache",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elexon_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set"
	)
)
