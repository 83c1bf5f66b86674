// Package database provides the relay's local SQLite storage.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Versioned schema migrations embedded in the binary
//   - Health checks for the status API
//
// The relay stores only batches it could not deliver, so the schema is
// small; see the migrations package for the SQL.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Spool.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
