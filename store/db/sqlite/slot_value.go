package sqlite

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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.ConversationTurnID, create.SessionID, create.SlotName, create.IntentName,
		create.OriginalText, create.ExtractedValue, create.NormalizedValue, create.Confidence,
		create.ExtractionMethod, create.ValidationStatus, create.ValidationError,
		boolToInt(create.IsConfirmed), create.CreatedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create slot value")
	}
	return create, nil
}

func (d *DB) ListSlotValues(ctx context.Context, find *store.FindSlotValue) ([]*store.SlotValue, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *find.SessionID)
	}
	if find.SlotName != nil {
		where, args = append(where, "slot_name = ?"), append(args, *find.SlotName)
	}
	if find.IntentName != nil {
		where, args = append(where, "intent_name = ?"), append(args, *find.IntentName)
	}
	if find.LatestOnly {
		// For each (session_id, slot_name) the highest row id is current.
		where = append(where, `id IN (
			SELECT MAX(id) FROM slot_values GROUP BY session_id, slot_name
		)`)
	}

	query := `
		SELECT id, conversation_turn_id, session_id, slot_name, intent_name, original_text,
			extracted_value, normalized_value, confidence, extraction_method,
			validation_status, validation_error, is_confirmed, created_ts
		FROM slot_values
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id DESC
	`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list slot values")
	}
	defer rows.Close()

	list := []*store.SlotValue{}
	for rows.Next() {
		value := &store.SlotValue{}
		var confirmed int
		if err := rows.Scan(&value.ID, &value.ConversationTurnID, &value.SessionID,
			&value.SlotName, &value.IntentName, &value.OriginalText, &value.ExtractedValue,
			&value.NormalizedValue, &value.Confidence, &value.ExtractionMethod,
			&value.ValidationStatus, &value.ValidationError, &confirmed, &value.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan slot value")
		}
		value.IsConfirmed = confirmed == 1
		list = append(list, value)
	}
	return list, rows.Err()
}

func (d *DB) DeleteSlotValues(ctx context.Context, delete *store.DeleteSlotValue) (int64, error) {
	where, args := []string{"1 = 1"}, []any{}
	if delete.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *delete.SessionID)
	}
	if delete.BeforeTs != nil {
		where, args = append(where, "created_ts < ?"), append(args, *delete.BeforeTs)
	}
	if delete.OnlyStatus != nil {
		where, args = append(where, "validation_status = ?"), append(args, *delete.OnlyStatus)
	}

	limit := delete.BatchLimit
	if limit <= 0 {
		limit = 1000
	}
	stmt := "DELETE FROM slot_values WHERE id IN (SELECT id FROM slot_values WHERE " +
		strings.Join(where, " AND ") + " LIMIT ?)"
	args = append(args, limit)

	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete slot values")
	}
	return result.RowsAffected()
}
