package sqlite

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func (d *DB) CreateIntentAmbiguity(ctx context.Context, create *store.IntentAmbiguity) (*store.IntentAmbiguity, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	stmt := `
		INSERT INTO intent_ambiguities (
			conversation_turn_id, session_id, user_input, candidates, question, options,
			user_choice, resolution_method, resolved_intent, resolved, created_ts, resolved_ts
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.ConversationTurnID, create.SessionID, create.UserInput,
		marshalJSON(create.Candidates, "[]"), create.Question, marshalJSON(create.Options, "[]"),
		create.UserChoice, create.ResolutionMethod, create.ResolvedIntent,
		boolToInt(create.Resolved), create.CreatedTs, create.ResolvedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create intent ambiguity")
	}
	return create, nil
}

func (d *DB) ListIntentAmbiguities(ctx context.Context, find *store.FindIntentAmbiguity) ([]*store.IntentAmbiguity, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *find.SessionID)
	}
	if find.Resolved != nil {
		where, args = append(where, "resolved = ?"), append(args, boolToInt(*find.Resolved))
	}

	query := `
		SELECT id, conversation_turn_id, session_id, user_input, candidates, question, options,
			user_choice, resolution_method, resolved_intent, resolved, created_ts, resolved_ts
		FROM intent_ambiguities
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id DESC
	`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list intent ambiguities")
	}
	defer rows.Close()

	list := []*store.IntentAmbiguity{}
	for rows.Next() {
		ambiguity := &store.IntentAmbiguity{}
		var resolved int
		var candidatesJSON, optionsJSON string
		if err := rows.Scan(&ambiguity.ID, &ambiguity.ConversationTurnID, &ambiguity.SessionID,
			&ambiguity.UserInput, &candidatesJSON, &ambiguity.Question, &optionsJSON,
			&ambiguity.UserChoice, &ambiguity.ResolutionMethod, &ambiguity.ResolvedIntent,
			&resolved, &ambiguity.CreatedTs, &ambiguity.ResolvedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan intent ambiguity")
		}
		ambiguity.Resolved = resolved == 1
		_ = json.Unmarshal([]byte(candidatesJSON), &ambiguity.Candidates)
		ambiguity.Options = unmarshalStrings(optionsJSON)
		list = append(list, ambiguity)
	}
	return list, rows.Err()
}

func (d *DB) UpdateIntentAmbiguity(ctx context.Context, update *store.UpdateIntentAmbiguity) (*store.IntentAmbiguity, error) {
	set, args := []string{}, []any{}
	if update.UserChoice != nil {
		set, args = append(set, "user_choice = ?"), append(args, *update.UserChoice)
	}
	if update.ResolutionMethod != nil {
		set, args = append(set, "resolution_method = ?"), append(args, *update.ResolutionMethod)
	}
	if update.ResolvedIntent != nil {
		set, args = append(set, "resolved_intent = ?"), append(args, *update.ResolvedIntent)
	}
	if update.Resolved != nil {
		set, args = append(set, "resolved = ?"), append(args, boolToInt(*update.Resolved))
	}
	if update.ResolvedTs != nil {
		set, args = append(set, "resolved_ts = ?"), append(args, *update.ResolvedTs)
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}
	args = append(args, update.ID)

	stmt := "UPDATE intent_ambiguities SET " + strings.Join(set, ", ") + " WHERE id = ?"
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to update intent ambiguity")
	}

	list, err := d.ListIntentAmbiguities(ctx, &store.FindIntentAmbiguity{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Errorf("ambiguity %d not found", update.ID)
	}
	return list[0], nil
}
