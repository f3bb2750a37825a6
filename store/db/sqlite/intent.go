package sqlite

import (
	"context"
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.Name, create.DisplayName, create.Description, create.ConfidenceThreshold,
		create.Priority, create.Category, boolToInt(create.IsActive),
		marshalJSON(create.Examples, "[]"), create.FallbackResponse,
		create.HandlerType, marshalJSON(create.HandlerConfig, "{}"), marshalJSON(create.Templates, "{}"),
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create intent definition")
	}
	return create, nil
}

func (d *DB) ListIntentDefinitions(ctx context.Context, find *store.FindIntentDefinition) ([]*store.IntentDefinition, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.Name != nil {
		where, args = append(where, "name = ?"), append(args, *find.Name)
	}
	if find.IsActive != nil {
		where, args = append(where, "is_active = ?"), append(args, boolToInt(*find.IsActive))
	}

	query := `
		SELECT id, name, display_name, description, confidence_threshold, priority, category,
			is_active, examples, fallback_response, handler_type, handler_config, templates
		FROM intents
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY priority DESC, name ASC
	`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list intent definitions")
	}
	defer rows.Close()

	list := []*store.IntentDefinition{}
	for rows.Next() {
		intent := &store.IntentDefinition{}
		var isActive int
		var examplesJSON, handlerConfigJSON, templatesJSON string
		if err := rows.Scan(&intent.ID, &intent.Name, &intent.DisplayName, &intent.Description,
			&intent.ConfidenceThreshold, &intent.Priority, &intent.Category, &isActive,
			&examplesJSON, &intent.FallbackResponse, &intent.HandlerType,
			&handlerConfigJSON, &templatesJSON); err != nil {
			return nil, errors.Wrap(err, "failed to scan intent definition")
		}
		intent.IsActive = isActive == 1
		intent.Examples = unmarshalStrings(examplesJSON)
		intent.HandlerConfig = unmarshalMap(handlerConfigJSON)
		intent.Templates = unmarshalStringMap(templatesJSON)
		list = append(list, intent)
	}
	return list, rows.Err()
}

func (d *DB) UpdateIntentDefinition(ctx context.Context, update *store.UpdateIntentDefinition) (*store.IntentDefinition, error) {
	set, args := []string{}, []any{}
	if update.DisplayName != nil {
		set, args = append(set, "display_name = ?"), append(args, *update.DisplayName)
	}
	if update.Description != nil {
		set, args = append(set, "description = ?"), append(args, *update.Description)
	}
	if update.ConfidenceThreshold != nil {
		set, args = append(set, "confidence_threshold = ?"), append(args, *update.ConfidenceThreshold)
	}
	if update.Priority != nil {
		set, args = append(set, "priority = ?"), append(args, *update.Priority)
	}
	if update.IsActive != nil {
		set, args = append(set, "is_active = ?"), append(args, boolToInt(*update.IsActive))
	}
	if update.FallbackResponse != nil {
		set, args = append(set, "fallback_response = ?"), append(args, *update.FallbackResponse)
	}
	if update.HandlerConfig != nil {
		set, args = append(set, "handler_config = ?"), append(args, marshalJSON(update.HandlerConfig, "{}"))
	}
	if update.Templates != nil {
		set, args = append(set, "templates = ?"), append(args, marshalJSON(update.Templates, "{}"))
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}
	args = append(args, update.ID)

	stmt := "UPDATE intents SET " + strings.Join(set, ", ") + " WHERE id = ?"
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
	if _, err := d.db.ExecContext(ctx, "DELETE FROM intents WHERE id = ?", delete.ID); err != nil {
		return errors.Wrap(err, "failed to delete intent definition")
	}
	return nil
}

func (d *DB) CreateSlotDefinition(ctx context.Context, create *store.SlotDefinition) (*store.SlotDefinition, error) {
	stmt := `
		INSERT INTO slots (intent_name, name, type, is_required, validation_rules, default_value, prompt_template)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	if err := d.db.QueryRowContext(ctx, stmt,
		create.IntentName, create.Name, create.Type, boolToInt(create.Required),
		marshalJSON(create.ValidationRules, "{}"), create.DefaultValue, create.PromptTemplate,
	).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create slot definition")
	}
	return create, nil
}

func (d *DB) ListSlotDefinitions(ctx context.Context, find *store.FindSlotDefinition) ([]*store.SlotDefinition, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.IntentName != nil {
		where, args = append(where, "intent_name = ?"), append(args, *find.IntentName)
	}
	if find.Name != nil {
		where, args = append(where, "name = ?"), append(args, *find.Name)
	}

	query := `
		SELECT id, intent_name, name, type, is_required, validation_rules, default_value, prompt_template
		FROM slots
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC
	`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list slot definitions")
	}
	defer rows.Close()

	list := []*store.SlotDefinition{}
	for rows.Next() {
		slot := &store.SlotDefinition{}
		var required int
		var rulesJSON string
		if err := rows.Scan(&slot.ID, &slot.IntentName, &slot.Name, &slot.Type,
			&required, &rulesJSON, &slot.DefaultValue, &slot.PromptTemplate); err != nil {
			return nil, errors.Wrap(err, "failed to scan slot definition")
		}
		slot.Required = required == 1
		slot.ValidationRules = unmarshalMap(rulesJSON)
		list = append(list, slot)
	}
	return list, rows.Err()
}
