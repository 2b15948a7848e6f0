// Package cache provides best-effort response caching for API fetches.
//
// Entries are content addressed: the key of a request is the lowercase hex
// SHA-256 digest of the canonical JSON serialization of
//
//	[url, [[name, value], ...]]
//
// with parameters sorted by name, so the same request always maps to the
// same key regardless of parameter insertion order.
//
// # Backends
//
//   - DiskStore (default): one <key>.bin payload and one <key>.json metadata
//     file per entry under a configurable directory.
//   - RedisStore: entries shared between processes through Redis.
//   - MemoryTier: an LRU layer in front of any other backend.
//
// # Basic Usage
//
//	store, err := cache.NewDiskStore("/var/cache/elexon")
//	if err != nil {
//		return err
//	}
//	manager := cache.NewManager(store, 0) // TTL 0: entries never expire
//
//	key := cache.Key{URL: url, Params: params}
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the API, then
//		_ = manager.Set(ctx, key, cache.NewEntry(key, body))
//	}
//
// # Metrics
//
//   - elexon_cache_hits_total{layer} - Cache hits by backend layer
//   - elexon_cache_misses_total - Cache misses (absent or expired)
//   - elexon_cache_writes_bytes_total - Payload bytes written
//   - elexon_cache_errors_total{operation} - Backend errors
//
// Callers treat every cache error as a miss. The cache must never fail a
// fetch.
package cache
