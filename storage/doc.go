// Package storage persists graph definitions and run records. Two
// backends implement the same Store interface: a GORM-backed relational
// store (SQLite, PostgreSQL, MySQL) and a MongoDB document store.
// Graph and run payloads are stored as JSON documents either way; the
// relational store keeps them in JSON columns alongside the indexed
// identity and status fields it queries on.
package storage
