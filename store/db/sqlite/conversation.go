package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func (d *DB) CreateConversationTurn(ctx context.Context, create *store.ConversationTurn) (*store.ConversationTurn, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	// Turn numbers are assigned here so they stay monotonic per session
	// even when the caller does not track them.
	if create.TurnNumber == 0 {
		var maxTurn int32
		if err := d.db.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(turn_number), 0) FROM conversations WHERE session_id = ?",
			create.SessionID,
		).Scan(&maxTurn); err != nil {
			return nil, errors.Wrap(err, "failed to read max turn number")
		}
		create.TurnNumber = maxTurn + 1
	}

	stmt := `
		INSERT INTO conversations (
			session_id, user_id, turn_number, user_input, recognized_intent,
			confidence, system_response, response_type, status, processing_time_ms, created_ts
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.SessionID, create.UserID, create.TurnNumber, create.UserInput,
		create.RecognizedIntent, create.Confidence, create.SystemResponse,
		create.ResponseType, create.Status, create.ProcessingTimeMS, create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create conversation turn")
	}
	return create, nil
}

func (d *DB) ListConversationTurns(ctx context.Context, find *store.FindConversationTurn) ([]*store.ConversationTurn, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *find.SessionID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if find.ExcludeErrors {
		where = append(where, "status NOT IN ('system_error', 'validation_error', 'parsing_error')")
	}

	query := `
		SELECT id, session_id, user_id, turn_number, user_input, recognized_intent,
			confidence, system_response, response_type, status, processing_time_ms, created_ts
		FROM conversations
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id DESC
	`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversation turns")
	}
	defer rows.Close()

	list := []*store.ConversationTurn{}
	for rows.Next() {
		turn := &store.ConversationTurn{}
		if err := rows.Scan(&turn.ID, &turn.SessionID, &turn.UserID, &turn.TurnNumber,
			&turn.UserInput, &turn.RecognizedIntent, &turn.Confidence, &turn.SystemResponse,
			&turn.ResponseType, &turn.Status, &turn.ProcessingTimeMS, &turn.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation turn")
		}
		list = append(list, turn)
	}
	return list, rows.Err()
}

func (d *DB) DeleteConversationTurns(ctx context.Context, delete *store.DeleteConversationTurn) (int64, error) {
	where, args := []string{"1 = 1"}, []any{}
	if delete.ID != nil {
		where, args = append(where, "id = ?"), append(args, *delete.ID)
	}
	if delete.BeforeTs != nil {
		where, args = append(where, "created_ts < ?"), append(args, *delete.BeforeTs)
	}

	stmt := "DELETE FROM conversations WHERE id IN (SELECT id FROM conversations WHERE " +
		strings.Join(where, " AND ") + " LIMIT ?)"
	limit := delete.BatchLimit
	if limit <= 0 {
		limit = 1000
	}
	args = append(args, limit)

	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete conversation turns")
	}
	return result.RowsAffected()
}
