package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// DB implements store.Driver on SQLite. Intended for development and
// single-instance deployments; concurrent writes are serialized by the
// single-connection pool below.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the SQLite database at the profile's DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// WAL journal mode avoids reader/writer lock contention; busy_timeout
	// covers the remaining write serialization window.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// SQLite: a single connection is optimal with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}
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
	preferences TEXT NOT NULL DEFAULT '{}',
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	state TEXT NOT NULL DEFAULT 'active',
	context TEXT NOT NULL DEFAULT '{}',
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL,
	expires_ts BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions (user_id, state, updated_ts);

CREATE TABLE IF NOT EXISTS conversations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	turn_number INTEGER NOT NULL,
	user_input TEXT NOT NULL,
	recognized_intent TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,
	system_response TEXT NOT NULL DEFAULT '',
	response_type TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	processing_time_ms BIGINT NOT NULL DEFAULT 0,
	created_ts BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations (session_id, id);

CREATE TABLE IF NOT EXISTS intents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	confidence_threshold REAL NOT NULL DEFAULT 0.70,
	priority INTEGER NOT NULL DEFAULT 0,
	category TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 1,
	examples TEXT NOT NULL DEFAULT '[]',
	fallback_response TEXT NOT NULL DEFAULT '',
	handler_type TEXT NOT NULL DEFAULT 'mock_service',
	handler_config TEXT NOT NULL DEFAULT '{}',
	templates TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS slots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	intent_name TEXT NOT NULL,
	name TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT 'text',
	is_required INTEGER NOT NULL DEFAULT 0,
	validation_rules TEXT NOT NULL DEFAULT '{}',
	default_value TEXT NOT NULL DEFAULT '',
	prompt_template TEXT NOT NULL DEFAULT '',
	UNIQUE (intent_name, name)
);

CREATE TABLE IF NOT EXISTS slot_values (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_turn_id BIGINT NOT NULL DEFAULT 0,
	session_id TEXT NOT NULL,
	slot_name TEXT NOT NULL,
	intent_name TEXT NOT NULL,
	original_text TEXT NOT NULL DEFAULT '',
	extracted_value TEXT NOT NULL DEFAULT '',
	normalized_value TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,
	extraction_method TEXT NOT NULL DEFAULT 'nlu',
	validation_status TEXT NOT NULL DEFAULT 'pending',
	validation_error TEXT NOT NULL DEFAULT '',
	is_confirmed INTEGER NOT NULL DEFAULT 0,
	created_ts BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_slot_values_session ON slot_values (session_id, slot_name, id);

CREATE TABLE IF NOT EXISTS intent_ambiguities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_turn_id BIGINT NOT NULL DEFAULT 0,
	session_id TEXT NOT NULL,
	user_input TEXT NOT NULL DEFAULT '',
	candidates TEXT NOT NULL DEFAULT '[]',
	question TEXT NOT NULL DEFAULT '',
	options TEXT NOT NULL DEFAULT '[]',
	user_choice TEXT NOT NULL DEFAULT '',
	resolution_method TEXT NOT NULL DEFAULT '',
	resolved_intent TEXT NOT NULL DEFAULT '',
	resolved INTEGER NOT NULL DEFAULT 0,
	created_ts BIGINT NOT NULL,
	resolved_ts BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_ambiguities_session ON intent_ambiguities (session_id, resolved, id);

CREATE TABLE IF NOT EXISTS intent_transfers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	from_intent TEXT NOT NULL DEFAULT '',
	to_intent TEXT NOT NULL DEFAULT '',
	transfer_type TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL DEFAULT '',
	saved_context TEXT NOT NULL DEFAULT '{}',
	confidence REAL NOT NULL DEFAULT 0,
	created_ts BIGINT NOT NULL,
	resumed_ts BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_transfers_session ON intent_transfers (session_id, resumed_ts, id);

CREATE TABLE IF NOT EXISTS user_contexts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT '',
	scope TEXT NOT NULL DEFAULT 'global',
	priority INTEGER NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_ts BIGINT NOT NULL,
	updated_ts BIGINT NOT NULL,
	expires_ts BIGINT NOT NULL DEFAULT 0,
	UNIQUE (user_id, type, key)
);

CREATE TABLE IF NOT EXISTS confirmation_requests (
	request_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	intent TEXT NOT NULL,
	proposed_slots TEXT NOT NULL DEFAULT '{}',
	strategy TEXT NOT NULL DEFAULT 'explicit',
	risk TEXT NOT NULL DEFAULT 'low',
	triggers TEXT NOT NULL DEFAULT '[]',
	retry_count INTEGER NOT NULL DEFAULT 0,
	created_ts BIGINT NOT NULL,
	expires_ts BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL DEFAULT '',
	user_id TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '{}',
	created_ts BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS cache_invalidation_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
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
