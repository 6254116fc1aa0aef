// Package migration manages the workflow engine's database schema
// with golang-migrate. Per-dialect SQL files for the graphs and runs
// tables are embedded for postgres, mysql, and sqlite; the CLI type
// wraps the migrator for the workflowd migrate subcommand.
package migration
