// Package api defines the request and response types of the workflow
// engine's HTTP API.
//
// # API Overview
//
// The API exposes workflow graph management and execution:
//   - Graph CRUD under /api/v1/graphs
//   - Synchronous execution via POST /api/v1/graphs/run
//   - Run records under /api/v1/runs
//   - Live execution log streaming over WebSocket at
//     /api/v1/runs/{id}/stream
//   - Health and version endpoints
//
// All endpoints speak JSON and wrap their payloads in the common
// response envelope from api/handlers.
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
