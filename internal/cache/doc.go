// Package cache wraps Redis for read-through caching of run records.
// Completed runs are immutable, which makes them safe to cache; the
// API layer consults the cache before hitting the store and fills it
// after a miss.
package cache
