package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func (d *DB) CreateAuditLog(ctx context.Context, create *store.AuditLog) (*store.AuditLog, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	stmt := `
		INSERT INTO audit_log (session_id, user_id, action, detail, created_ts)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.SessionID, create.UserID, create.Action,
		marshalJSON(create.Detail, "{}"), create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create audit log")
	}
	return create, nil
}

func (d *DB) ListAuditLogs(ctx context.Context, find *store.FindAuditLog) ([]*store.AuditLog, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *find.SessionID)
	}
	if find.Action != nil {
		where, args = append(where, "action = ?"), append(args, *find.Action)
	}

	query := `
		SELECT id, session_id, user_id, action, detail, created_ts
		FROM audit_log
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id DESC
	`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list audit logs")
	}
	defer rows.Close()

	list := []*store.AuditLog{}
	for rows.Next() {
		log := &store.AuditLog{}
		var detailJSON string
		if err := rows.Scan(&log.ID, &log.SessionID, &log.UserID, &log.Action, &detailJSON, &log.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan audit log")
		}
		log.Detail = unmarshalMap(detailJSON)
		list = append(list, log)
	}
	return list, rows.Err()
}

func (d *DB) DeleteAuditLogs(ctx context.Context, delete *store.DeleteAuditLog) (int64, error) {
	limit := delete.BatchLimit
	if limit <= 0 {
		limit = 1000
	}
	stmt := "DELETE FROM audit_log WHERE id IN (SELECT id FROM audit_log WHERE created_ts < ? LIMIT ?)"
	result, err := d.db.ExecContext(ctx, stmt, delete.BeforeTs, limit)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete audit logs")
	}
	return result.RowsAffected()
}

func (d *DB) CreateCacheInvalidationLog(ctx context.Context, create *store.CacheInvalidationLog) (*store.CacheInvalidationLog, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	stmt := `
		INSERT INTO cache_invalidation_log (cache_name, key, reason, created_ts)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.CacheName, create.Key, create.Reason, create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create cache invalidation log")
	}
	return create, nil
}

func (d *DB) DeleteCacheInvalidationLogs(ctx context.Context, delete *store.DeleteCacheInvalidationLog) (int64, error) {
	limit := delete.BatchLimit
	if limit <= 0 {
		limit = 1000
	}
	stmt := "DELETE FROM cache_invalidation_log WHERE id IN (SELECT id FROM cache_invalidation_log WHERE created_ts < ? LIMIT ?)"
	result, err := d.db.ExecContext(ctx, stmt, delete.BeforeTs, limit)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete cache invalidation logs")
	}
	return result.RowsAffected()
}
