package postgres

import (
	"context"
	"encoding/json"
	"fmt"
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.ConversationTurnID, create.SessionID, create.UserInput,
		marshalJSON(create.Candidates, "[]"), create.Question, marshalJSON(create.Options, "[]"),
		create.UserChoice, create.ResolutionMethod, create.ResolvedIntent,
		create.Resolved, create.CreatedTs, create.ResolvedTs,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create intent ambiguity")
	}
	return create, nil
}

func (d *DB) ListIntentAmbiguities(ctx context.Context, find *store.FindIntentAmbiguity) ([]*store.IntentAmbiguity, error) {
	w := newWhere()
	if find.ID != nil {
		w.add("id", *find.ID)
	}
	if find.SessionID != nil {
		w.add("session_id", *find.SessionID)
	}
	if find.Resolved != nil {
		w.add("resolved", *find.Resolved)
	}

	query := `
		SELECT id, conversation_turn_id, session_id, user_input, candidates, question, options,
			user_choice, resolution_method, resolved_intent, resolved, created_ts, resolved_ts
		FROM intent_ambiguities
		WHERE ` + strings.Join(w.clauses, " AND ") + `
		ORDER BY id DESC
	`
	if find.Limit != nil {
		query += " LIMIT " + w.next(*find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list intent ambiguities")
	}
	defer rows.Close()

	list := []*store.IntentAmbiguity{}
	for rows.Next() {
		ambiguity := &store.IntentAmbiguity{}
		var candidatesJSON, optionsJSON string
		if err := rows.Scan(&ambiguity.ID, &ambiguity.ConversationTurnID, &ambiguity.SessionID,
			&ambiguity.UserInput, &candidatesJSON, &ambiguity.Question, &optionsJSON,
			&ambiguity.UserChoice, &ambiguity.ResolutionMethod, &ambiguity.ResolvedIntent,
			&ambiguity.Resolved, &ambiguity.CreatedTs, &ambiguity.ResolvedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan intent ambiguity")
		}
		_ = json.Unmarshal([]byte(candidatesJSON), &ambiguity.Candidates)
		ambiguity.Options = unmarshalStrings(optionsJSON)
		list = append(list, ambiguity)
	}
	return list, rows.Err()
}

func (d *DB) UpdateIntentAmbiguity(ctx context.Context, update *store.UpdateIntentAmbiguity) (*store.IntentAmbiguity, error) {
	set, args := []string{}, []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if update.UserChoice != nil {
		set = append(set, "user_choice = "+next(*update.UserChoice))
	}
	if update.ResolutionMethod != nil {
		set = append(set, "resolution_method = "+next(*update.ResolutionMethod))
	}
	if update.ResolvedIntent != nil {
		set = append(set, "resolved_intent = "+next(*update.ResolvedIntent))
	}
	if update.Resolved != nil {
		set = append(set, "resolved = "+next(*update.Resolved))
	}
	if update.ResolvedTs != nil {
		set = append(set, "resolved_ts = "+next(*update.ResolvedTs))
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	stmt := "UPDATE intent_ambiguities SET " + strings.Join(set, ", ") + " WHERE id = " + next(update.ID)
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
