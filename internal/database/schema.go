package database

import (
	"context"
	"fmt"
	"strings"
)

// Column types that differ between dialects. document holds snapshot payloads, which carry
// free text verbatim; JSONB rejects the \u0000 escape so Postgres stores them as JSON.
type dialect struct {
	json      string
	document  string
	timestamp string
	boolean   string
}

var dialects = map[string]dialect{
	DriverPostgres: {json: "JSONB", document: "JSON", timestamp: "TIMESTAMPTZ", boolean: "BOOLEAN"},
	DriverSQLite:   {json: "TEXT", document: "TEXT", timestamp: "TEXT", boolean: "INTEGER"},
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS tracker_snapshots (
	user_id TEXT PRIMARY KEY,
	payload {{document}} NOT NULL,
	created_at {{timestamp}} NOT NULL,
	updated_at {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS tag_statistics (
	user_id TEXT PRIMARY KEY,
	analytics {{json}} NOT NULL,
	tainted {{boolean}} NOT NULL DEFAULT TRUE,
	last_analyzed_at {{timestamp}},
	analysis_version INTEGER NOT NULL DEFAULT 0,
	created_at {{timestamp}} NOT NULL,
	updated_at {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS cors_config (
	config_key TEXT PRIMARY KEY,
	allowed_origins TEXT NOT NULL,
	allow_credentials {{boolean}} NOT NULL DEFAULT FALSE,
	max_age INTEGER NOT NULL DEFAULT 0,
	created_at {{timestamp}} NOT NULL,
	updated_at {{timestamp}} NOT NULL
);

CREATE TABLE IF NOT EXISTS ratelimit_config (
	config_key TEXT PRIMARY KEY,
	rate TEXT NOT NULL,
	created_at {{timestamp}} NOT NULL,
	updated_at {{timestamp}} NOT NULL
)
`

// schemaDDL renders the schema for driver
func schemaDDL(driver string) (string, error) {
	d, ok := dialects[driver]
	if !ok {
		return "", fmt.Errorf("no schema for driver %q", driver)
	}
	return strings.NewReplacer(
		"{{json}}", d.json,
		"{{document}}", d.document,
		"{{timestamp}}", d.timestamp,
		"{{boolean}}", d.boolean,
	).Replace(schemaTemplate), nil
}

// EnsureSchema creates any missing tables
func (db *DB) EnsureSchema(ctx context.Context) error {
	ddl, err := schemaDDL(db.driver)
	if err != nil {
		return err
	}

	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
