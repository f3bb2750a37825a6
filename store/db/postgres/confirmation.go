package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func (d *DB) CreateConfirmationRequest(ctx context.Context, create *store.ConfirmationRequest) (*store.ConfirmationRequest, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	stmt := `
		INSERT INTO confirmation_requests (
			request_id, session_id, intent, proposed_slots, strategy, risk,
			triggers, retry_count, created_ts, expires_ts
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.RequestID, create.SessionID, create.Intent,
		marshalJSON(create.ProposedSlots, "{}"), create.Strategy, create.Risk,
		marshalJSON(create.Triggers, "[]"), create.RetryCount, create.CreatedTs, create.ExpiresTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create confirmation request")
	}
	return create, nil
}

func (d *DB) GetConfirmationRequest(ctx context.Context, find *store.FindConfirmationRequest) (*store.ConfirmationRequest, error) {
	w := newWhere()
	if find.RequestID != nil {
		w.add("request_id", *find.RequestID)
	}
	if find.SessionID != nil {
		w.add("session_id", *find.SessionID)
	}

	query := `
		SELECT request_id, session_id, intent, proposed_slots, strategy, risk,
			triggers, retry_count, created_ts, expires_ts
		FROM confirmation_requests
		WHERE ` + strings.Join(w.clauses, " AND ") + `
		ORDER BY created_ts DESC
		LIMIT 1
	`
	request := &store.ConfirmationRequest{}
	var slotsJSON, triggersJSON string
	err := d.db.QueryRowContext(ctx, query, w.args...).Scan(
		&request.RequestID, &request.SessionID, &request.Intent, &slotsJSON,
		&request.Strategy, &request.Risk, &triggersJSON, &request.RetryCount,
		&request.CreatedTs, &request.ExpiresTs,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get confirmation request")
	}
	request.ProposedSlots = unmarshalStringMap(slotsJSON)
	request.Triggers = unmarshalStrings(triggersJSON)
	return request, nil
}

func (d *DB) UpdateConfirmationRequest(ctx context.Context, update *store.UpdateConfirmationRequest) (*store.ConfirmationRequest, error) {
	if update.RetryCount == nil {
		return nil, errors.New("no fields to update")
	}
	if _, err := d.db.ExecContext(ctx,
		"UPDATE confirmation_requests SET retry_count = $1 WHERE request_id = $2",
		*update.RetryCount, update.RequestID,
	); err != nil {
		return nil, errors.Wrap(err, "failed to update confirmation request")
	}
	return d.GetConfirmationRequest(ctx, &store.FindConfirmationRequest{RequestID: &update.RequestID})
}

func (d *DB) DeleteConfirmationRequests(ctx context.Context, delete *store.DeleteConfirmationRequest) (int64, error) {
	w := newWhere()
	if delete.RequestID != nil {
		w.add("request_id", *delete.RequestID)
	}
	if delete.ExpiredAt != nil {
		w.raw("expires_ts > 0 AND expires_ts < " + w.next(*delete.ExpiredAt))
	}

	stmt := "DELETE FROM confirmation_requests WHERE " + strings.Join(w.clauses, " AND ")
	result, err := d.db.ExecContext(ctx, stmt, w.args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete confirmation requests")
	}
	return result.RowsAffected()
}
