package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func (d *DB) UpsertUser(ctx context.Context, upsert *store.UpsertUser) (*store.User, error) {
	now := time.Now().Unix()
	userType := upsert.Type
	if userType == "" {
		userType = store.UserTypeNovice
	}
	stmt := `
		INSERT INTO users (id, type, preferences, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET type = excluded.type, preferences = excluded.preferences, updated_ts = excluded.updated_ts
		RETURNING created_ts
	`
	user := &store.User{
		ID:          upsert.ID,
		Type:        userType,
		Preferences: upsert.Preferences,
		UpdatedTs:   now,
	}
	if err := d.db.QueryRowContext(ctx, stmt,
		upsert.ID, userType, marshalJSON(upsert.Preferences, "{}"), now, now,
	).Scan(&user.CreatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert user")
	}
	return user, nil
}

func (d *DB) GetUser(ctx context.Context, find *store.FindUser) (*store.User, error) {
	if find.ID == nil {
		return nil, errors.New("user id required")
	}
	user := &store.User{}
	var prefsJSON string
	err := d.db.QueryRowContext(ctx,
		"SELECT id, type, preferences, created_ts, updated_ts FROM users WHERE id = ?",
		*find.ID,
	).Scan(&user.ID, &user.Type, &prefsJSON, &user.CreatedTs, &user.UpdatedTs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}
	user.Preferences = unmarshalStringMap(prefsJSON)
	return user, nil
}
