package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func (d *DB) CreateSlotValue(ctx context.Context, create *store.SlotValue) (*store.SlotValue, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	stmt := `
		INSERT INTO slot_values (
			conversation_turn_id, session_id, slot_name, intent_name, original_text,
			extracted_value, normalized_value, confidence, extraction_method,
			validation_status, validation_error, is_confirmed, created_ts
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.ConversationTurnID, create.SessionID, create.SlotName, create.IntentName,
		create.OriginalText, create.ExtractedValue, create.NormalizedValue, create.Confidence,
		create.ExtractionMethod, create.ValidationStatus, create.ValidationError,
		create.IsConfirmed, create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create slot value")
	}
	return create, nil
}

func (d *DB) ListSlotValues(ctx context.Context, find *store.FindSlotValue) ([]*store.SlotValue, error) {
	w := newWhere()
	if find.SessionID != nil {
		w.add("session_id", *find.SessionID)
	}
	if find.SlotName != nil {
		w.add("slot_name", *find.SlotName)
	}
	if find.IntentName != nil {
		w.add("intent_name", *find.IntentName)
	}
	if find.LatestOnly {
		// For each (session_id, slot_name) the highest row id is current.
		w.raw(`id IN (
			SELECT MAX(id) FROM slot_values GROUP BY session_id, slot_name
		)`)
	}

	query := `
		SELECT id, conversation_turn_id, session_id, slot_name, intent_name, original_text,
			extracted_value, normalized_value, confidence, extraction_method,
			validation_status, validation_error, is_confirmed, created_ts
		FROM slot_values
		WHERE ` + strings.Join(w.clauses, " AND ") + `
		ORDER BY id DESC
	`
	if find.Limit != nil {
		query += " LIMIT " + w.next(*find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list slot values")
	}
	defer rows.Close()

	list := []*store.SlotValue{}
	for rows.Next() {
		value := &store.SlotValue{}
		if err := rows.Scan(&value.ID, &value.ConversationTurnID, &value.SessionID,
			&value.SlotName, &value.IntentName, &value.OriginalText, &value.ExtractedValue,
			&value.NormalizedValue, &value.Confidence, &value.ExtractionMethod,
			&value.ValidationStatus, &value.ValidationError, &value.IsConfirmed, &value.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan slot value")
		}
		list = append(list, value)
	}
	return list, rows.Err()
}

func (d *DB) DeleteSlotValues(ctx context.Context, delete *store.DeleteSlotValue) (int64, error) {
	w := newWhere()
	if delete.SessionID != nil {
		w.add("session_id", *delete.SessionID)
	}
	if delete.BeforeTs != nil {
		w.raw("created_ts < " + w.next(*delete.BeforeTs))
	}
	if delete.OnlyStatus != nil {
		w.add("validation_status", *delete.OnlyStatus)
	}

	limit := delete.BatchLimit
	if limit <= 0 {
		limit = 1000
	}
	stmt := "DELETE FROM slot_values WHERE id IN (SELECT id FROM slot_values WHERE " +
		strings.Join(w.clauses, " AND ") + " LIMIT " + w.next(limit) + ")"

	result, err := d.db.ExecContext(ctx, stmt, w.args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete slot values")
	}
	return result.RowsAffected()
}
