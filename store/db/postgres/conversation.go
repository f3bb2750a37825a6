package postgres

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
	if create.TurnNumber == 0 {
		var maxTurn int32
		if err := d.db.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(turn_number), 0) FROM conversations WHERE session_id = $1",
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
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
	w := newWhere()
	if find.ID != nil {
		w.add("id", *find.ID)
	}
	if find.SessionID != nil {
		w.add("session_id", *find.SessionID)
	}
	if find.UserID != nil {
		w.add("user_id", *find.UserID)
	}
	if find.ExcludeErrors {
		w.raw("status NOT IN ('system_error', 'validation_error', 'parsing_error')")
	}

	query := `
		SELECT id, session_id, user_id, turn_number, user_input, recognized_intent,
			confidence, system_response, response_type, status, processing_time_ms, created_ts
		FROM conversations
		WHERE ` + strings.Join(w.clauses, " AND ") + `
		ORDER BY id DESC
	`
	if find.Limit != nil {
		query += " LIMIT " + w.next(*find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, w.args...)
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
	w := newWhere()
	if delete.ID != nil {
		w.add("id", *delete.ID)
	}
	if delete.BeforeTs != nil {
		w.raw("created_ts < " + w.next(*delete.BeforeTs))
	}

	limit := delete.BatchLimit
	if limit <= 0 {
		limit = 1000
	}
	stmt := "DELETE FROM conversations WHERE id IN (SELECT id FROM conversations WHERE " +
		strings.Join(w.clauses, " AND ") + " LIMIT " + w.next(limit) + ")"

	result, err := d.db.ExecContext(ctx, stmt, w.args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete conversation turns")
	}
	return result.RowsAffected()
}
