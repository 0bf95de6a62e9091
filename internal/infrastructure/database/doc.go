// Package database provides SQLite connectivity for sfcd.
//
// This package manages:
//   - Database connection with WAL mode so sample inserts and API reads overlap
//   - Versioned schema migrations embedded in the binary
//   - Connection lifecycle and health checks
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files live in the top-level migrations package and follow
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql.
package database
