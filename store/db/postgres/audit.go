package postgres

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
		VALUES ($1, $2, $3, $4, $5)
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
	w := newWhere()
	if find.SessionID != nil {
		w.add("session_id", *find.SessionID)
	}
	if find.Action != nil {
		w.add("action", *find.Action)
	}

	query := `
		SELECT id, session_id, user_id, action, detail, created_ts
		FROM audit_log
		WHERE ` + strings.Join(w.clauses, " AND ") + `
		ORDER BY id DESC
	`
	if find.Limit != nil {
		query += " LIMIT " + w.next(*find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, w.args...)
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
	stmt := "DELETE FROM audit_log WHERE id IN (SELECT id FROM audit_log WHERE created_ts < $1 LIMIT $2)"
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
		VALUES ($1, $2, $3, $4)
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
	stmt := "DELETE FROM cache_invalidation_log WHERE id IN (SELECT id FROM cache_invalidation_log WHERE created_ts < $1 LIMIT $2)"
	result, err := d.db.ExecContext(ctx, stmt, delete.BeforeTs, limit)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete cache invalidation logs")
	}
	return result.RowsAffected()
}
