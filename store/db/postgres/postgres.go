package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"

	// Import the Postgres driver.
	_ "github.com/lib/pq"

	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// DB implements store.Driver on PostgreSQL.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a Postgres connection pool using the profile's DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	pgDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	pgDB.SetMaxOpenConns(25)
	pgDB.SetMaxIdleConns(5)

	driver := DB{db: pgDB, profile: profile}
	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL DEFAULT 'novice',
	preferences JSONB NOT NULL DEFAULT '{}',
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	state TEXT NOT NULL DEFAULT 'active',
	context JSONB NOT NULL DEFAULT '{}',
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL,
	expires_ts BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions (user_id, state, updated_ts);

CREATE TABLE IF NOT EXISTS conversations (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	turn_number INTEGER NOT NULL,
	user_input TEXT NOT NULL,
	recognized_intent TEXT NOT NULL DEFAULT '',
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	system_response TEXT NOT NULL DEFAULT '',
	response_type TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	processing_time_ms BIGINT NOT NULL DEFAULT 0,
	created_ts BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations (session_id, id);

CREATE TABLE IF NOT EXISTS intents (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	confidence_threshold DOUBLE PRECISION NOT NULL DEFAULT 0.70,
	priority INTEGER NOT NULL DEFAULT 0,
	category TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	examples JSONB NOT NULL DEFAULT '[]',
	fallback_response TEXT NOT NULL DEFAULT '',
	handler_type TEXT NOT NULL DEFAULT 'mock_service',
	handler_config JSONB NOT NULL DEFAULT '{}',
	templates JSONB NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS slots (
	id SERIAL PRIMARY KEY,
	intent_name TEXT NOT NULL,
	name TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT 'text',
	is_required BOOLEAN NOT NULL DEFAULT FALSE,
	validation_rules JSONB NOT NULL DEFAULT '{}',
	default_value TEXT NOT NULL DEFAULT '',
	prompt_template TEXT NOT NULL DEFAULT '',
	UNIQUE (intent_name, name)
);

CREATE TABLE IF NOT EXISTS slot_values (
	id BIGSERIAL PRIMARY KEY,
	conversation_turn_id BIGINT NOT NULL DEFAULT 0,
	session_id TEXT NOT NULL,
	slot_name TEXT NOT NULL,
	intent_name TEXT NOT NULL,
	original_text TEXT NOT NULL DEFAULT '',
	extracted_value TEXT NOT NULL DEFAULT '',
	normalized_value TEXT NOT NULL DEFAULT '',
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	extraction_method TEXT NOT NULL DEFAULT 'nlu',
	validation_status TEXT NOT NULL DEFAULT 'pending',
	validation_error TEXT NOT NULL DEFAULT '',
	is_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
	created_ts BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_slot_values_session ON slot_values (session_id, slot_name, id);

CREATE TABLE IF NOT EXISTS intent_ambiguities (
	id BIGSERIAL PRIMARY KEY,
	conversation_turn_id BIGINT NOT NULL DEFAULT 0,
	session_id TEXT NOT NULL,
	user_input TEXT NOT NULL DEFAULT '',
	candidates JSONB NOT NULL DEFAULT '[]',
	question TEXT NOT NULL DEFAULT '',
	options JSONB NOT NULL DEFAULT '[]',
	user_choice TEXT NOT NULL DEFAULT '',
	resolution_method TEXT NOT NULL DEFAULT '',
	resolved_intent TEXT NOT NULL DEFAULT '',
	resolved BOOLEAN NOT NULL DEFAULT FALSE,
	created_ts BIGINT NOT NULL,
	resolved_ts BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_ambiguities_session ON intent_ambiguities (session_id, resolved, id);

CREATE TABLE IF NOT EXISTS intent_transfers (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	from_intent TEXT NOT NULL DEFAULT '',
	to_intent TEXT NOT NULL DEFAULT '',
	transfer_type TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL DEFAULT '',
	saved_context JSONB NOT NULL DEFAULT '{}',
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_ts BIGINT NOT NULL,
	resumed_ts BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_transfers_session ON intent_transfers (session_id, resumed_ts, id);

CREATE TABLE IF NOT EXISTS user_contexts (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT '',
	scope TEXT NOT NULL DEFAULT 'global',
	priority INTEGER NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL,
	expires_ts BIGINT NOT NULL DEFAULT 0,
	UNIQUE (user_id, type, key)
);

CREATE TABLE IF NOT EXISTS confirmation_requests (
	request_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	intent TEXT NOT NULL,
	proposed_slots JSONB NOT NULL DEFAULT '{}',
	strategy TEXT NOT NULL DEFAULT 'explicit',
	risk TEXT NOT NULL DEFAULT 'low',
	triggers JSONB NOT NULL DEFAULT '[]',
	retry_count INTEGER NOT NULL DEFAULT 0,
	created_ts BIGINT NOT NULL,
	expires_ts BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS audit_log (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	detail JSONB NOT NULL DEFAULT '{}',
	created_ts BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS cache_invalidation_log (
	id BIGSERIAL PRIMARY KEY,
	cache_name TEXT NOT NULL,
	key TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	created_ts BIGINT NOT NULL
);
`

// Migrate creates the schema and installs the seed intent configuration
// when the intents table is empty.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to create schema")
	}

	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM intents").Scan(&count); err != nil {
		return errors.Wrap(err, "failed to count intents")
	}
	if count > 0 {
		return nil
	}

	for _, intent := range store.SeedIntentDefinitions() {
		if _, err := d.CreateIntentDefinition(ctx, intent); err != nil {
			return errors.Wrapf(err, "failed to seed intent %s", intent.Name)
		}
	}
	for _, slot := range store.SeedSlotDefinitions() {
		if _, err := d.CreateSlotDefinition(ctx, slot); err != nil {
			return errors.Wrapf(err, "failed to seed slot %s.%s", slot.IntentName, slot.Name)
		}
	}
	return nil
}

// whereBuilder accumulates WHERE clauses with $N placeholders.
type whereBuilder struct {
	clauses []string
	args    []any
}

func newWhere() *whereBuilder {
	return &whereBuilder{clauses: []string{"TRUE"}}
}

func (w *whereBuilder) add(field string, value any) {
	w.args = append(w.args, value)
	w.clauses = append(w.clauses, fmt.Sprintf("%s = $%d", field, len(w.args)))
}

func (w *whereBuilder) raw(clause string) {
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) next(value any) string {
	w.args = append(w.args, value)
	return fmt.Sprintf("$%d", len(w.args))
}

func marshalJSON(v any, def string) string {
	if v == nil {
		return def
	}
	b, err := json.Marshal(v)
	if err != nil {
		return def
	}
	return string(b)
}

func unmarshalMap(s string) map[string]any {
	m := map[string]any{}
	if s != "" {
		_ = json.Unmarshal([]byte(s), &m)
	}
	return m
}

func unmarshalStringMap(s string) map[string]string {
	m := map[string]string{}
	if s != "" {
		_ = json.Unmarshal([]byte(s), &m)
	}
	return m
}

func unmarshalStrings(s string) []string {
	var list []string
	if s != "" {
		_ = json.Unmarshal([]byte(s), &list)
	}
	return list
}
