// Package database provides SQLite persistence for Velagate Core.
//
// It wraps database/sql with connection configuration tuned for an
// access-control workload: WAL mode so history and correlation reads do
// not block the ingestion write path, a busy timeout for lock
// contention, and a single-writer connection pool.
//
// # Migrations
//
// Schema migrations are embedded into the binary via the migrations
// package and applied on startup:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil { ... }
//	if err := db.Migrate(ctx); err != nil { ... }
//
// Migration files follow the naming convention
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql and are applied in
// version order, each in its own transaction.
package database
