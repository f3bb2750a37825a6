package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func (d *DB) CreateSession(ctx context.Context, create *store.Session) (*store.Session, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}
	if create.State == "" {
		create.State = store.SessionActive
	}
	if create.Context == nil {
		create.Context = map[string]any{}
	}

	stmt := `
		INSERT INTO sessions (id, user_id, state, context, created_ts, updated_ts, expires_ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID, create.UserID, create.State, marshalJSON(create.Context, "{}"),
		create.CreatedTs, create.UpdatedTs, create.ExpiresTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}
	return create, nil
}

func (d *DB) ListSessions(ctx context.Context, find *store.FindSession) ([]*store.Session, error) {
	w := newWhere()
	if find.ID != nil {
		w.add("id", *find.ID)
	}
	if find.UserID != nil {
		w.add("user_id", *find.UserID)
	}
	if find.State != nil {
		w.add("state", *find.State)
	}

	query := `
		SELECT id, user_id, state, context, created_ts, updated_ts, expires_ts
		FROM sessions
		WHERE ` + strings.Join(w.clauses, " AND ") + `
		ORDER BY updated_ts DESC, id DESC
	`
	if find.Limit != nil {
		query += " LIMIT " + w.next(*find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	defer rows.Close()

	list := []*store.Session{}
	for rows.Next() {
		session := &store.Session{}
		var contextJSON string
		if err := rows.Scan(&session.ID, &session.UserID, &session.State, &contextJSON,
			&session.CreatedTs, &session.UpdatedTs, &session.ExpiresTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan session")
		}
		session.Context = unmarshalMap(contextJSON)
		list = append(list, session)
	}
	return list, rows.Err()
}

func (d *DB) UpdateSession(ctx context.Context, update *store.UpdateSession) (*store.Session, error) {
	set, args := []string{}, []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if update.State != nil {
		set = append(set, "state = "+next(*update.State))
	}
	if update.Context != nil {
		set = append(set, "context = "+next(marshalJSON(update.Context, "{}")))
	}
	if update.ExpiresTs != nil {
		set = append(set, "expires_ts = "+next(*update.ExpiresTs))
	}
	updatedTs := time.Now().Unix()
	if update.UpdatedTs != nil {
		updatedTs = *update.UpdatedTs
	}
	set = append(set, "updated_ts = "+next(updatedTs))

	stmt := "UPDATE sessions SET " + strings.Join(set, ", ") + " WHERE id = " + next(update.ID)
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to update session")
	}

	sessions, err := d.ListSessions(ctx, &store.FindSession{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, errors.Errorf("session %s not found", update.ID)
	}
	return sessions[0], nil
}

func (d *DB) DeleteSession(ctx context.Context, delete *store.DeleteSession) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1", delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete session")
	}
	return nil
}

func (d *DB) UpsertUser(ctx context.Context, upsert *store.UpsertUser) (*store.User, error) {
	now := time.Now().Unix()
	userType := upsert.Type
	if userType == "" {
		userType = store.UserTypeNovice
	}
	stmt := `
		INSERT INTO users (id, type, preferences, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET type = EXCLUDED.type, preferences = EXCLUDED.preferences, updated_ts = EXCLUDED.updated_ts
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
		"SELECT id, type, preferences, created_ts, updated_ts FROM users WHERE id = $1",
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
