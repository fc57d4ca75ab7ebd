package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/stashbox"
)

type TableMigration struct {
	TableName string
	Up        func(ctx context.Context, pool *pgxpool.Pool) error
	Down      func(ctx context.Context, pool *pgxpool.Pool) error
}

func getTableMigrations(tables stashbox.Tables) []TableMigration {
	return []TableMigration{
		{
			TableName: tables.Objects,
			Up:        createObjectsTable(tables.Objects),
			Down:      dropTable(tables.Objects),
		},
	}
}

// Migrate creates every table in tables if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool, tables stashbox.Tables) error {
	if err := tables.Validate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	for _, migration := range getTableMigrations(tables) {
		if err := migration.Up(ctx, pool); err != nil {
			return fmt.Errorf("migrate up %s: %w", migration.TableName, err)
		}
	}

	return nil
}

// DropTables drops every table in tables, in reverse creation order.
func DropTables(ctx context.Context, pool *pgxpool.Pool, tables stashbox.Tables) error {
	migrations := getTableMigrations(tables)

	for i := len(migrations) - 1; i >= 0; i-- {
		migration := migrations[i]
		if err := migration.Down(ctx, pool); err != nil {
			return fmt.Errorf("migrate down %s: %w", migration.TableName, err)
		}
	}

	return nil
}

func createObjectsTable(tableName string) func(context.Context, *pgxpool.Pool) error {
	return func(ctx context.Context, pool *pgxpool.Pool) error {
		quotedTable := pgx.Identifier{tableName}.Sanitize()
		indexBlobID := pgx.Identifier{fmt.Sprintf("idx_%s_blob_id", tableName)}.Sanitize()
		indexOwnerLocation := pgx.Identifier{fmt.Sprintf("idx_%s_owner_location", tableName)}.Sanitize()
		indexActiveList := pgx.Identifier{fmt.Sprintf("idx_%s_active_list", tableName)}.Sanitize()
		indexPendingCleanup := pgx.Identifier{fmt.Sprintf("idx_%s_pending_cleanup", tableName)}.Sanitize()

		sql := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				owner_id TEXT NOT NULL,
				bucket TEXT NOT NULL,
				object_key TEXT NOT NULL,
				blob_id TEXT NOT NULL,
				mime_type TEXT NOT NULL,
				size BIGINT,
				etag TEXT,
				metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
				status TEXT NOT NULL CHECK (status IN ('pending', 'active', 'deleted')),
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				deleted_at TIMESTAMPTZ,
				cleaned_up_at TIMESTAMPTZ
			);

			CREATE UNIQUE INDEX IF NOT EXISTS %s
			ON %s (blob_id);

			CREATE UNIQUE INDEX IF NOT EXISTS %s
			ON %s (owner_id, bucket, object_key)
			WHERE (status <> 'deleted');

			CREATE INDEX IF NOT EXISTS %s
			ON %s (owner_id, bucket, created_at, id)
			WHERE (status = 'active');

			CREATE INDEX IF NOT EXISTS %s
			ON %s (created_at, id)
			WHERE (status = 'deleted' AND cleaned_up_at IS NULL);
		`,
			quotedTable,
			indexBlobID, quotedTable,
			indexOwnerLocation, quotedTable,
			indexActiveList, quotedTable,
			indexPendingCleanup, quotedTable,
		)

		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("create objects table: %w", err)
		}
		return nil
	}
}

func dropTable(tableName string) func(context.Context, *pgxpool.Pool) error {
	return func(ctx context.Context, pool *pgxpool.Pool) error {
		sql := fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", pgx.Identifier{tableName}.Sanitize())
		_, err := pool.Exec(ctx, sql)
		return err
	}
}
