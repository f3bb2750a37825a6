package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func (d *DB) CreateIntentTransfer(ctx context.Context, create *store.IntentTransfer) (*store.IntentTransfer, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	stmt := `
		INSERT INTO intent_transfers (
			session_id, from_intent, to_intent, transfer_type, reason,
			saved_context, confidence, created_ts, resumed_ts
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.SessionID, create.FromIntent, create.ToIntent, create.TransferType,
		create.Reason, marshalJSON(create.SavedContext, "{}"), create.Confidence,
		create.CreatedTs, create.ResumedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create intent transfer")
	}
	return create, nil
}

func (d *DB) ListIntentTransfers(ctx context.Context, find *store.FindIntentTransfer) ([]*store.IntentTransfer, error) {
	w := newWhere()
	if find.ID != nil {
		w.add("id", *find.ID)
	}
	if find.SessionID != nil {
		w.add("session_id", *find.SessionID)
	}
	if find.FromIntent != nil {
		w.add("from_intent", *find.FromIntent)
	}
	if find.Unresumed {
		w.raw("transfer_type = 'user_request' AND resumed_ts = 0")
	}

	query := `
		SELECT id, session_id, from_intent, to_intent, transfer_type, reason,
			saved_context, confidence, created_ts, resumed_ts
		FROM intent_transfers
		WHERE ` + strings.Join(w.clauses, " AND ") + `
		ORDER BY id DESC
	`
	if find.Limit != nil {
		query += " LIMIT " + w.next(*find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list intent transfers")
	}
	defer rows.Close()

	list := []*store.IntentTransfer{}
	for rows.Next() {
		transfer := &store.IntentTransfer{}
		var savedJSON string
		if err := rows.Scan(&transfer.ID, &transfer.SessionID, &transfer.FromIntent,
			&transfer.ToIntent, &transfer.TransferType, &transfer.Reason, &savedJSON,
			&transfer.Confidence, &transfer.CreatedTs, &transfer.ResumedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan intent transfer")
		}
		transfer.SavedContext = unmarshalMap(savedJSON)
		list = append(list, transfer)
	}
	return list, rows.Err()
}

func (d *DB) UpdateIntentTransfer(ctx context.Context, update *store.UpdateIntentTransfer) (*store.IntentTransfer, error) {
	if update.ResumedTs == nil {
		return nil, errors.New("no fields to update")
	}
	if _, err := d.db.ExecContext(ctx,
		"UPDATE intent_transfers SET resumed_ts = $1 WHERE id = $2",
		*update.ResumedTs, update.ID,
	); err != nil {
		return nil, errors.Wrap(err, "failed to update intent transfer")
	}

	list, err := d.ListIntentTransfers(ctx, &store.FindIntentTransfer{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Errorf("transfer %d not found", update.ID)
	}
	return list[0], nil
}
