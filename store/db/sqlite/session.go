package sqlite

import (
	"context"
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
		VALUES (?, ?, ?, ?, ?, ?, ?)
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
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.State != nil {
		where, args = append(where, "state = ?"), append(args, *find.State)
	}

	query := `
		SELECT id, user_id, state, context, created_ts, updated_ts, expires_ts
		FROM sessions
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_ts DESC, id DESC
	`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
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
	if update.State != nil {
		set, args = append(set, "state = ?"), append(args, *update.State)
	}
	if update.Context != nil {
		set, args = append(set, "context = ?"), append(args, marshalJSON(update.Context, "{}"))
	}
	if update.ExpiresTs != nil {
		set, args = append(set, "expires_ts = ?"), append(args, *update.ExpiresTs)
	}
	updatedTs := time.Now().Unix()
	if update.UpdatedTs != nil {
		updatedTs = *update.UpdatedTs
	}
	set, args = append(set, "updated_ts = ?"), append(args, updatedTs)
	args = append(args, update.ID)

	stmt := "UPDATE sessions SET " + strings.Join(set, ", ") + " WHERE id = ?"
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
	if _, err := d.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete session")
	}
	return nil
}
