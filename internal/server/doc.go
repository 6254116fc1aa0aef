// Package server manages HTTP listener lifecycles: non-blocking
// start, graceful shutdown with request draining, and SIGINT/SIGTERM
// handling. The workflow daemon runs two managers, one for the API
// and one for the Prometheus metrics endpoint.
package server
