// Package database provides SQLite connectivity for Homey Core.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Schema migrations embedded by the migrations package
//   - A private in-memory mode (MemoryPath) for tests
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is chmod 0600
//
// Usage:
//
//	db, err := database.Open(ctx, database.FromConfig(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
