package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sagarc03/stashbox"

	_ "modernc.org/sqlite" // SQLite driver
)

// database provides SQLite database operations.
type database struct {
	db     *sql.DB
	tables stashbox.Tables
}

// Connect opens an SQLite database.
// Tables should be validated before calling Connect.
//
// The pool is limited to a single connection: SQLite serializes writers
// anyway, and an in-memory database only exists on the connection that
// created it.
func Connect(_ context.Context, dsn string, tables stashbox.Tables) (*database, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	return &database{
		db:     db,
		tables: tables,
	}, nil
}

// Open returns a single-connection handle on dsn.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Ping verifies the database connection is alive.
func (d *database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate runs database migrations to create required tables.
func (d *database) Migrate(ctx context.Context) error {
	if err := Migrate(ctx, d.db, d.tables); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Validate checks that the database schema matches expected structure.
func (d *database) Validate(ctx context.Context) error {
	return ValidateSchema(ctx, d.db, d.tables)
}

// GetRepo returns the ObjectRepo for database operations.
func (d *database) GetRepo() stashbox.ObjectRepo {
	return &repo{db: d.db, tableName: d.tables.Objects}
}

// Close closes the database connection.
func (d *database) Close() error {
	return d.db.Close()
}
