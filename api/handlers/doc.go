// Package handlers implements the HTTP handlers of the workflow
// engine API: graph management, synchronous run execution, run record
// retrieval, WebSocket log streaming, and health probes. Handlers
// share a common JSON response envelope and error-code mapping.
package handlers
