package sqlite

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
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT (user_id, type, key)
		DO UPDATE SET value = excluded.value, scope = excluded.scope, priority = excluded.priority,
			is_active = 1, updated_ts = excluded.updated_ts, expires_ts = excluded.expires_ts
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
	where, args := []string{"1 = 1"}, []any{}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.Type != nil {
		where, args = append(where, "type = ?"), append(args, *find.Type)
	}
	if find.Key != nil {
		where, args = append(where, "key = ?"), append(args, *find.Key)
	}
	if find.IsActive != nil {
		where, args = append(where, "is_active = ?"), append(args, boolToInt(*find.IsActive))
	}

	query := `
		SELECT id, user_id, type, key, value, scope, priority, is_active, created_ts, updated_ts, expires_ts
		FROM user_contexts
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY priority DESC, id ASC
	`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list user contexts")
	}
	defer rows.Close()

	list := []*store.UserContext{}
	for rows.Next() {
		userContext := &store.UserContext{}
		var isActive int
		if err := rows.Scan(&userContext.ID, &userContext.UserID, &userContext.Type,
			&userContext.Key, &userContext.Value, &userContext.Scope, &userContext.Priority,
			&isActive, &userContext.CreatedTs, &userContext.UpdatedTs, &userContext.ExpiresTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan user context")
		}
		userContext.IsActive = isActive == 1
		list = append(list, userContext)
	}
	return list, rows.Err()
}

func (d *DB) DeleteUserContexts(ctx context.Context, delete *store.DeleteUserContext) (int64, error) {
	where, args := []string{"1 = 1"}, []any{}
	if delete.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *delete.UserID)
	}
	if delete.ExpiredAt != nil {
		where, args = append(where, "expires_ts > 0 AND expires_ts < ?"), append(args, *delete.ExpiredAt)
	}

	limit := delete.BatchLimit
	if limit <= 0 {
		limit = 1000
	}
	stmt := "DELETE FROM user_contexts WHERE id IN (SELECT id FROM user_contexts WHERE " +
		strings.Join(where, " AND ") + " LIMIT ?)"
	args = append(args, limit)

	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete user contexts")
	}
	return result.RowsAffected()
}
