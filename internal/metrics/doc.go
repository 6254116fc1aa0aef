// Package metrics exposes Prometheus instrumentation for the HTTP
// surface, the execution engine, the cache, and the database pool.
package metrics
