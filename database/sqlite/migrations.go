package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sagarc03/stashbox"
)

// quoteIdentifier safely quotes a SQLite identifier
func quoteIdentifier(name string) string {
	return `"` + name + `"`
}

type TableMigration struct {
	TableName string
	Up        func(ctx context.Context, db *sql.DB) error
	Down      func(ctx context.Context, db *sql.DB) error
}

// getTableMigrations returns all table migrations for the app
func getTableMigrations(tables stashbox.Tables) []TableMigration {
	migrations := []TableMigration{}

	migrations = append(migrations, TableMigration{
		TableName: tables.Objects,
		Up:        createObjectsTable(tables.Objects),
		Down:      dropTable(tables.Objects),
	})

	return migrations
}

func Migrate(ctx context.Context, db *sql.DB, tables stashbox.Tables) error {
	if err := tables.Validate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	migrations := getTableMigrations(tables)

	for _, migration := range migrations {
		if err := migration.Up(ctx, db); err != nil {
			return fmt.Errorf("migrate up %s: %w", migration.TableName, err)
		}
	}

	return nil
}

func DropTables(ctx context.Context, db *sql.DB, tables stashbox.Tables) error {
	migrations := getTableMigrations(tables)

	for i := len(migrations) - 1; i >= 0; i-- {
		migration := migrations[i]
		if err := migration.Down(ctx, db); err != nil {
			return fmt.Errorf("migrate down %s: %w", migration.TableName, err)
		}
	}

	return nil
}

func createObjectsTable(tableName string) func(context.Context, *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		quotedTable := quoteIdentifier(tableName)

		createTableSQL := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT NOT NULL PRIMARY KEY,
				owner_id TEXT NOT NULL,
				bucket TEXT NOT NULL,
				object_key TEXT NOT NULL,
				blob_id TEXT NOT NULL,
				mime_type TEXT NOT NULL,
				size INTEGER,
				etag TEXT,
				metadata TEXT NOT NULL DEFAULT '{}',
				status TEXT NOT NULL CHECK (status IN ('pending', 'active', 'deleted')),
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				deleted_at TEXT,
				cleaned_up_at TEXT
			)
		`, quotedTable)

		if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
			return fmt.Errorf("create table: %w", err)
		}

		// Partial indexes need SQLite 3.8.0+.
		indexes := []struct {
			name string
			sql  string
		}{
			{
				name: "blob_id",
				sql:  `CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (blob_id)`,
			},
			{
				name: "owner_location",
				sql:  `CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (owner_id, bucket, object_key) WHERE status <> 'deleted'`,
			},
			{
				name: "active_list",
				sql:  `CREATE INDEX IF NOT EXISTS %s ON %s (owner_id, bucket, created_at, id) WHERE status = 'active'`,
			},
			{
				name: "pending_cleanup",
				sql:  `CREATE INDEX IF NOT EXISTS %s ON %s (created_at, id) WHERE status = 'deleted' AND cleaned_up_at IS NULL`,
			},
		}

		for _, idx := range indexes {
			indexName := quoteIdentifier(fmt.Sprintf("idx_%s_%s", tableName, idx.name))
			if _, err := db.ExecContext(ctx, fmt.Sprintf(idx.sql, indexName, quotedTable)); err != nil {
				return fmt.Errorf("create index %s: %w", idx.name, err)
			}
		}

		return nil
	}
}

func dropTable(tableName string) func(context.Context, *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		quotedTable := quoteIdentifier(tableName)
		dropSQL := fmt.Sprintf("DROP TABLE IF EXISTS %s", quotedTable)

		_, err := db.ExecContext(ctx, dropSQL)
		return err
	}
}
