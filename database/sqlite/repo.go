// Package sqlite implements the object repo using SQLite
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sagarc03/stashbox"
	"github.com/sagarc03/stashbox/database/internal"
)

// timeFormat is fixed width so that text comparison orders timestamps.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const objectColumns = `id, owner_id, bucket, object_key, blob_id, mime_type, size, etag, metadata, status, created_at, updated_at, deleted_at`

type repo struct {
	db        *sql.DB
	tableName string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func now() string {
	return formatTime(time.Now())
}

func scanObject(row rowScanner) (stashbox.Object, error) {
	var (
		o                    stashbox.Object
		idStr, status        string
		metadata             string
		size                 sql.NullInt64
		etag, deletedAt      sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(&idStr, &o.OwnerID, &o.Bucket, &o.Key, &o.BlobID, &o.MimeType,
		&size, &etag, &metadata, &status, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return stashbox.Object{}, err
	}

	if o.ID, err = uuid.Parse(idStr); err != nil {
		return stashbox.Object{}, fmt.Errorf("parse uuid: %w", err)
	}

	if o.Status, err = stashbox.ParseStatus(status); err != nil {
		return stashbox.Object{}, err
	}

	if size.Valid {
		o.Size = &size.Int64
	}
	if etag.Valid {
		o.ETag = &etag.String
	}

	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &o.Metadata); err != nil {
			return stashbox.Object{}, fmt.Errorf("parse metadata: %w", err)
		}
	}

	if o.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return stashbox.Object{}, fmt.Errorf("parse created_at: %w", err)
	}
	if o.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return stashbox.Object{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if deletedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, deletedAt.String)
		if err != nil {
			return stashbox.Object{}, fmt.Errorf("parse deleted_at: %w", err)
		}
		o.DeletedAt = &t
	}

	return o, nil
}

func (r *repo) queryOne(ctx context.Context, opName, query string, args ...any) (stashbox.Object, error) {
	o, err := scanObject(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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

	id := uuid.New()
	ts := now()

	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (id, owner_id, bucket, object_key, blob_id, mime_type, metadata, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?, ?)
		ON CONFLICT DO NOTHING`, r.tableName)

	result, err := r.db.ExecContext(ctx, query,
		id.String(), obj.OwnerID, obj.Bucket, obj.Key, obj.BlobID, obj.MimeType, string(metadata), ts, ts,
	)
	if err != nil {
		return stashbox.Object{}, fmt.Errorf("create pending: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return stashbox.Object{}, fmt.Errorf("create pending: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return stashbox.Object{}, fmt.Errorf("create pending %s/%s: %w", obj.Bucket, obj.Key, stashbox.ErrConflict)
	}

	query = fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, objectColumns, r.tableName) //nolint:gosec // table name is validated
	return r.queryOne(ctx, "create pending", query, id.String())
}

func (r *repo) FindByBlobID(ctx context.Context, blobID string) (stashbox.Object, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE blob_id = ?`, objectColumns, r.tableName) //nolint:gosec // table name is validated
	return r.queryOne(ctx, "find by blob id", query, blobID)
}

func (r *repo) FindActive(ctx context.Context, ownerID, bucket, key string) (stashbox.Object, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s
		WHERE owner_id = ? AND bucket = ? AND object_key = ? AND status = 'active'`, objectColumns, r.tableName)
	return r.queryOne(ctx, "find active", query, ownerID, bucket, key)
}

func (r *repo) MarkActive(ctx context.Context, blobID string, size int64, etag string) (stashbox.Object, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`UPDATE %s
		SET status = 'active', size = ?, etag = ?, updated_at = ?
		WHERE blob_id = ? AND status = 'pending'
		RETURNING %s`, r.tableName, objectColumns)

	o, err := r.queryOne(ctx, "mark active", query, size, etag, now(), blobID)
	if errors.Is(err, stashbox.ErrNotFound) {
		if _, findErr := r.FindByBlobID(ctx, blobID); findErr == nil {
			return stashbox.Object{}, fmt.Errorf("mark active: %w: object is not pending", stashbox.ErrConflict)
		}
	}
	return o, err
}

func (r *repo) MarkDeleted(ctx context.Context, ownerID, bucket, key string) (stashbox.Object, error) {
	ts := now()
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`UPDATE %s
		SET status = 'deleted', deleted_at = ?, updated_at = ?
		WHERE owner_id = ? AND bucket = ? AND object_key = ? AND status = 'active'
		RETURNING %s`, r.tableName, objectColumns)

	return r.queryOne(ctx, "mark deleted", query, ts, ts, ownerID, bucket, key)
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

	if q.OwnerID != "" {
		conditions = append(conditions, "owner_id = ?")
		args = append(args, q.OwnerID)
	}
	if q.Bucket != "" {
		conditions = append(conditions, "bucket = ?")
		args = append(args, q.Bucket)
	}
	if q.KeyPrefix != "" {
		conditions = append(conditions, `object_key LIKE ? || '%' ESCAPE '\'`)
		args = append(args, internal.EscapeLikePattern(q.KeyPrefix))
	}
	if q.Cursor != "" {
		conditions = append(conditions, "(created_at, id) > (?, ?)")
		args = append(args, formatTime(cursor.CreatedAt), cursor.ID)
	}
	args = append(args, limit+1)

	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s
		WHERE %s
		ORDER BY created_at, id
		LIMIT ?`, objectColumns, r.tableName, strings.Join(conditions, " AND "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return stashbox.ListResult{}, fmt.Errorf("%s: %w", opName, err)
	}
	defer func() { _ = rows.Close() }()

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
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`UPDATE %s
		SET cleaned_up_at = ?
		WHERE id = ? AND status = 'deleted' AND cleaned_up_at IS NULL`, r.tableName)

	result, err := r.db.ExecContext(ctx, query, now(), id.String())
	if err != nil {
		return fmt.Errorf("mark cleaned up: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark cleaned up: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("mark cleaned up: %w", stashbox.ErrNotFound)
	}

	return nil
}
