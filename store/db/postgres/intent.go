package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/leichangqing/intelligence-intent-sub003/store"
)

func (d *DB) CreateIntentDefinition(ctx context.Context, create *store.IntentDefinition) (*store.IntentDefinition, error) {
	stmt := `
		INSERT INTO intents (
			name, display_name, description, confidence_threshold, priority, category,
			is_active, examples, fallback_response, handler_type, handler_config, templates
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.Name, create.DisplayName, create.Description, create.ConfidenceThreshold,
		create.Priority, create.Category, create.IsActive,
		marshalJSON(create.Examples, "[]"), create.FallbackResponse,
		create.HandlerType, marshalJSON(create.HandlerConfig, "{}"), marshalJSON(create.Templates, "{}"),
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create intent definition")
	}
	return create, nil
}

func (d *DB) ListIntentDefinitions(ctx context.Context, find *store.FindIntentDefinition) ([]*store.IntentDefinition, error) {
	w := newWhere()
	if find.ID != nil {
		w.add("id", *find.ID)
	}
	if find.Name != nil {
		w.add("name", *find.Name)
	}
	if find.IsActive != nil {
		w.add("is_active", *find.IsActive)
	}

	query := `
		SELECT id, name, display_name, description, confidence_threshold, priority, category,
			is_active, examples, fallback_response, handler_type, handler_config, templates
		FROM intents
		WHERE ` + strings.Join(w.clauses, " AND ") + `
		ORDER BY priority DESC, name ASC
	`
	rows, err := d.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list intent definitions")
	}
	defer rows.Close()

	list := []*store.IntentDefinition{}
	for rows.Next() {
		intent := &store.IntentDefinition{}
		var examplesJSON, handlerConfigJSON, templatesJSON string
		if err := rows.Scan(&intent.ID, &intent.Name, &intent.DisplayName, &intent.Description,
			&intent.ConfidenceThreshold, &intent.Priority, &intent.Category, &intent.IsActive,
			&examplesJSON, &intent.FallbackResponse, &intent.HandlerType,
			&handlerConfigJSON, &templatesJSON); err != nil {
			return nil, errors.Wrap(err, "failed to scan intent definition")
		}
		intent.Examples = unmarshalStrings(examplesJSON)
		intent.HandlerConfig = unmarshalMap(handlerConfigJSON)
		intent.Templates = unmarshalStringMap(templatesJSON)
		list = append(list, intent)
	}
	return list, rows.Err()
}

func (d *DB) UpdateIntentDefinition(ctx context.Context, update *store.UpdateIntentDefinition) (*store.IntentDefinition, error) {
	set, args := []string{}, []any{}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if update.DisplayName != nil {
		set = append(set, "display_name = "+next(*update.DisplayName))
	}
	if update.Description != nil {
		set = append(set, "description = "+next(*update.Description))
	}
	if update.ConfidenceThreshold != nil {
		set = append(set, "confidence_threshold = "+next(*update.ConfidenceThreshold))
	}
	if update.Priority != nil {
		set = append(set, "priority = "+next(*update.Priority))
	}
	if update.IsActive != nil {
		set = append(set, "is_active = "+next(*update.IsActive))
	}
	if update.FallbackResponse != nil {
		set = append(set, "fallback_response = "+next(*update.FallbackResponse))
	}
	if update.HandlerConfig != nil {
		set = append(set, "handler_config = "+next(marshalJSON(update.HandlerConfig, "{}")))
	}
	if update.Templates != nil {
		set = append(set, "templates = "+next(marshalJSON(update.Templates, "{}")))
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	stmt := "UPDATE intents SET " + strings.Join(set, ", ") + " WHERE id = " + next(update.ID)
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to update intent definition")
	}

	list, err := d.ListIntentDefinitions(ctx, &store.FindIntentDefinition{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Errorf("intent %d not found", update.ID)
	}
	return list[0], nil
}

func (d *DB) DeleteIntentDefinition(ctx context.Context, delete *store.DeleteIntentDefinition) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM intents WHERE id = $1", delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete intent definition")
	}
	return nil
}

func (d *DB) CreateSlotDefinition(ctx context.Context, create *store.SlotDefinition) (*store.SlotDefinition, error) {
	stmt := `
		INSERT INTO slots (intent_name, name, type, is_required, validation_rules, default_value, prompt_template)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.IntentName, create.Name, create.Type, create.Required,
		marshalJSON(create.ValidationRules, "{}"), create.DefaultValue, create.PromptTemplate,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create slot definition")
	}
	return create, nil
}

func (d *DB) ListSlotDefinitions(ctx context.Context, find *store.FindSlotDefinition) ([]*store.SlotDefinition, error) {
	w := newWhere()
	if find.IntentName != nil {
		w.add("intent_name", *find.IntentName)
	}
	if find.Name != nil {
		w.add("name", *find.Name)
	}

	query := `
		SELECT id, intent_name, name, type, is_required, validation_rules, default_value, prompt_template
		FROM slots
		WHERE ` + strings.Join(w.clauses, " AND ") + `
		ORDER BY id ASC
	`
	rows, err := d.db.QueryContext(ctx, query, w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list slot definitions")
	}
	defer rows.Close()

	list := []*store.SlotDefinition{}
	for rows.Next() {
		slot := &store.SlotDefinition{}
		var rulesJSON string
		if err := rows.Scan(&slot.ID, &slot.IntentName, &slot.Name, &slot.Type,
			&slot.Required, &rulesJSON, &slot.DefaultValue, &slot.PromptTemplate); err != nil {
			return nil, errors.Wrap(err, "failed to scan slot definition")
		}
		slot.ValidationRules = unmarshalMap(rulesJSON)
		list = append(list, slot)
	}
	return list, rows.Err()
}
