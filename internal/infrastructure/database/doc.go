// Package database provides SQLite connectivity for Stocky Core.
//
// It manages:
//   - The connection, with WAL mode for concurrent reads during writes
//   - Schema migrations embedded in the binary (see the migrations package)
//   - Connection pool sizing for SQLite's single-writer model
//
// Tables owned by the schema:
//   - scanner_states: write-through copy of the device registry
//   - audit_logs: scanner event trail
//   - items, skus: read-only inventory data used for barcode resolution
//
// All queries use parameterised statements. The database file is created
// with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
