// Command workflowd runs the workflow engine service: an HTTP API for
// defining graphs and executing runs, a WebSocket stream of run
// progress, a Prometheus metrics listener, and database migration
// subcommands.
//
// Usage:
//
//	workflowd serve                        start the service
//	workflowd serve --config config.yaml   start with a config file
//	workflowd migrate up                   apply pending migrations
//	workflowd migrate status               show migration status
//	workflowd health                       probe a running instance
//	workflowd version                      print build information
package main
