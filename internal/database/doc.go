// Package database manages the connection pool behind the GORM
// store: pool sizing, background health checks, pool gauge reporting,
// and transaction retry for transient failures (deadlocks,
// serialization conflicts, dropped connections).
package database
