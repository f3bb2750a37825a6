package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func (d *DB) UpsertUserContext(ctx context.Context, upsert *store.UpsertUserContext) (*store.UserContext, error) {
	now := time.Now().Unix()
	scope := upsert.Scope
	if scope == "" {
		scope = store.ScopeGlobal
	}
	stmt := `
		INSERT INTO user_contexts (user_id, type, key, value, scope, priority, is_active, created_ts, updated_ts, expires_ts)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8, $9)
		ON CONFLICT (user_id, type, key)
		DO UPDATE SET value = EXCLUDED.value, scope = EXCLUDED.scope, priority = EXCLUDED.priority,
			is_active = TRUE, updated_ts = EXCLUDED.updated_ts, expires_ts = EXCLUDED.expires_ts
		RETURNING id, created_ts
	`
	userContext := &store.UserContext{
		UserID:    upsert.UserID,
		Type:      upsert.Type,
		Key:       upsert.Key,
		Value:     upsert.Value,
		Scope:     scope,
		Priority:  upsert.Priority,
		IsActive:  true,
		UpdatedTs: now,
		ExpiresTs: upsert.ExpiresTs,
	}
	if err := d.db.QueryRowContext(ctx, stmt,
		upsert.UserID, upsert.Type, upsert.Key, upsert.Value, scope,
		upsert.Priority, now, now, upsert.ExpiresTs,
	).Scan(&userContext.ID, &userContext.CreatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert user context")
	}
	return userContext, nil
}

func (d *DB) ListUserContexts(ctx context.Context, find *store.FindUserContext) ([]*store.UserContext, error) {
	w := newWhere()
	if find.UserID != nil {
		w.add("user_id", *find.UserID)
	}
	if find.Type != nil {
		w.add("type", *find.Type)
	}
	if find.Key != nil {
		w.add("key", *find.Key)
	}
	if find.IsActive != nil {
		w.add("is_active", *find.IsActive)
	}

	query := `
		SELECT id, user_id, type, key, value, scope, priority, is_active, created_ts, updated_ts, expires_ts
		FROM user_contexts
		WHERE ` + strings.Join(w.clauses, " AND ") + `
		ORDER BY priority DESC, id ASC
	`
	rows, err := d.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list user contexts")
	}
	defer rows.Close()

	list := []*store.UserContext{}
	for rows.Next() {
		userContext := &store.UserContext{}
		if err := rows.Scan(&userContext.ID, &userContext.UserID, &userContext.Type,
			&userContext.Key, &userContext.Value, &userContext.Scope, &userContext.Priority,
			&userContext.IsActive, &userContext.CreatedTs, &userContext.UpdatedTs, &userContext.ExpiresTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan user context")
		}
		list = append(list, userContext)
	}
	return list, rows.Err()
}

func (d *DB) DeleteUserContexts(ctx context.Context, delete *store.DeleteUserContext) (int64, error) {
	w := newWhere()
	if delete.UserID != nil {
		w.add("user_id", *delete.UserID)
	}
	if delete.ExpiredAt != nil {
		w.raw("expires_ts > 0 AND expires_ts < " + w.next(*delete.ExpiredAt))
	}

	limit := delete.BatchLimit
	if limit <= 0 {
		limit = 1000
	}
	stmt := "DELETE FROM user_contexts WHERE id IN (SELECT id FROM user_contexts WHERE " +
		strings.Join(w.clauses, " AND ") + " LIMIT " + w.next(limit) + ")"

	result, err := d.db.ExecContext(ctx, stmt, w.args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete user contexts")
	}
	return result.RowsAffected()
}
