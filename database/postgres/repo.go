// Package postgres implements the object repo on PostgreSQL using pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/stashbox"
	"github.com/sagarc03/stashbox/database/internal"
)

const objectColumns = `id, owner_id, bucket, object_key, blob_id, mime_type, size, etag, metadata, status, created_at, updated_at, deleted_at`

type repo struct {
	pool      *pgxpool.Pool
	tableName string
}

func scanObject(row pgx.Row) (stashbox.Object, error) {
	var (
		o        stashbox.Object
		status   string
		metadata []byte
	)

	err := row.Scan(&o.ID, &o.OwnerID, &o.Bucket, &o.Key, &o.BlobID, &o.MimeType,
		&o.Size, &o.ETag, &metadata, &status, &o.CreatedAt, &o.UpdatedAt, &o.DeletedAt)
	if err != nil {
		return stashbox.Object{}, err
	}

	if o.Status, err = stashbox.ParseStatus(status); err != nil {
		return stashbox.Object{}, err
	}

	if len(metadata) > 0 && string(metadata) != "{}" {
		if err := json.Unmarshal(metadata, &o.Metadata); err != nil {
			return stashbox.Object{}, fmt.Errorf("parse metadata: %w", err)
		}
	}

	return o, nil
}

func (r *repo) queryOne(ctx context.Context, opName, query string, args ...any) (stashbox.Object, error) {
	o, err := scanObject(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stashbox.Object{}, fmt.Errorf("%s: %w", opName, stashbox.ErrNotFound)
		}
		return stashbox.Object{}, fmt.Errorf("%s: %w", opName, err)
	}
	return o, nil
}

func (r *repo) CreatePending(ctx context.Context, obj stashbox.PendingObject) (stashbox.Object, error) {
	metadata := []byte("{}")
	if len(obj.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(obj.Metadata)
		if err != nil {
			return stashbox.Object{}, fmt.Errorf("create pending: %w: metadata: %w", stashbox.ErrInvalidInput, err)
		}
	}

	// ON CONFLICT without a target covers both the blob id and the
	// live-location unique indexes.
	query := fmt.Sprintf(`
		INSERT INTO %s (owner_id, bucket, object_key, blob_id, mime_type, metadata, status)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, 'pending')
		ON CONFLICT DO NOTHING
		RETURNING %s
	`, r.tableName, objectColumns)

	o, err := r.queryOne(ctx, "create pending", query,
		obj.OwnerID, obj.Bucket, obj.Key, obj.BlobID, obj.MimeType, string(metadata))
	if errors.Is(err, stashbox.ErrNotFound) {
		return stashbox.Object{}, fmt.Errorf("create pending %s/%s: %w", obj.Bucket, obj.Key, stashbox.ErrConflict)
	}
	return o, err
}

func (r *repo) FindByBlobID(ctx context.Context, blobID string) (stashbox.Object, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE blob_id = $1`, objectColumns, r.tableName)
	return r.queryOne(ctx, "find by blob id", query, blobID)
}

func (r *repo) FindActive(ctx context.Context, ownerID, bucket, key string) (stashbox.Object, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE owner_id = $1 AND bucket = $2 AND object_key = $3 AND status = 'active'
	`, objectColumns, r.tableName)
	return r.queryOne(ctx, "find active", query, ownerID, bucket, key)
}

func (r *repo) MarkActive(ctx context.Context, blobID string, size int64, etag string) (stashbox.Object, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'active', size = $1, etag = $2, updated_at = NOW()
		WHERE blob_id = $3 AND status = 'pending'
		RETURNING %s
	`, r.tableName, objectColumns)

	o, err := r.queryOne(ctx, "mark active", query, size, etag, blobID)
	if errors.Is(err, stashbox.ErrNotFound) {
		if _, findErr := r.FindByBlobID(ctx, blobID); findErr == nil {
			return stashbox.Object{}, fmt.Errorf("mark active: %w: object is not pending", stashbox.ErrConflict)
		}
	}
	return o, err
}

func (r *repo) MarkDeleted(ctx context.Context, ownerID, bucket, key string) (stashbox.Object, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'deleted', deleted_at = NOW(), updated_at = NOW()
		WHERE owner_id = $1 AND bucket = $2 AND object_key = $3 AND status = 'active'
		RETURNING %s
	`, r.tableName, objectColumns)

	return r.queryOne(ctx, "mark deleted", query, ownerID, bucket, key)
}

func (r *repo) List(ctx context.Context, q stashbox.ListQuery) (stashbox.ListResult, error) {
	return r.listWithCondition(ctx, q, "status = 'active'", "list")
}

func (r *repo) ListPendingCleanup(ctx context.Context, q stashbox.ListQuery) (stashbox.ListResult, error) {
	return r.listWithCondition(ctx, q, "status = 'deleted' AND cleaned_up_at IS NULL", "list pending cleanup")
}

func (r *repo) listWithCondition(ctx context.Context, q stashbox.ListQuery, whereCondition, opName string) (stashbox.ListResult, error) {
	cursor, err := internal.ParseListCursor(q.Cursor)
	if err != nil {
		return stashbox.ListResult{}, fmt.Errorf("%s: %w", opName, err)
	}

	limit := internal.ListLimit(q.Limit)

	conditions := []string{whereCondition}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.OwnerID != "" {
		conditions = append(conditions, "owner_id = "+arg(q.OwnerID))
	}
	if q.Bucket != "" {
		conditions = append(conditions, "bucket = "+arg(q.Bucket))
	}
	if q.KeyPrefix != "" {
		conditions = append(conditions,
			fmt.Sprintf(`object_key LIKE %s || '%%' ESCAPE '\'`, arg(internal.EscapeLikePattern(q.KeyPrefix))))
	}
	if q.Cursor != "" {
		conditions = append(conditions,
			fmt.Sprintf("(created_at, id) > (%s, %s::uuid)", arg(cursor.CreatedAt), arg(cursor.ID)))
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE %s
		ORDER BY created_at, id
		LIMIT %s
	`, objectColumns, r.tableName, strings.Join(conditions, " AND "), arg(limit+1))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return stashbox.ListResult{}, fmt.Errorf("%s: %w", opName, err)
	}
	defer rows.Close()

	items := make([]stashbox.Object, 0, min(limit+1, internal.DefaultListLimit))
	for rows.Next() {
		o, scanErr := scanObject(rows)
		if scanErr != nil {
			return stashbox.ListResult{}, fmt.Errorf("%s: scan: %w", opName, scanErr)
		}
		items = append(items, o)
	}

	if err := rows.Err(); err != nil {
		return stashbox.ListResult{}, fmt.Errorf("%s: rows: %w", opName, err)
	}

	var nextCursor string
	if len(items) > limit {
		// Cursor points to the last item of the current page
		lastItem := items[limit-1]
		nextCursor = internal.EncodeCursor(lastItem.CreatedAt, lastItem.ID.String())
		items = items[:limit]
	}

	return stashbox.ListResult{Items: items, NextCursor: nextCursor}, nil
}

func (r *repo) MarkCleanedUp(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET cleaned_up_at = NOW()
		WHERE id = $1 AND status = 'deleted' AND cleaned_up_at IS NULL
	`, r.tableName)

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark cleaned up: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("mark cleaned up: %w", stashbox.ErrNotFound)
	}

	return nil
}
