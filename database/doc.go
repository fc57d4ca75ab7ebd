// Package database connects stashbox to its object metadata backend.
//
// Two backends are supported:
//
//   - postgres: pgx connection pool, JSONB metadata, TIMESTAMPTZ columns
//   - sqlite: modernc.org/sqlite through database/sql on a single connection
//
// # Usage
//
//	db, err := database.Connect(ctx, database.Config{
//	    Type:   "sqlite",
//	    DSN:    "stashbox.db",
//	    Tables: stashbox.Tables{Objects: "stashbox_objects"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//	repo := db.GetRepo()
//
// Table names are configurable so several deployments can share one
// database. They are validated before any SQL is built from them.
package database
