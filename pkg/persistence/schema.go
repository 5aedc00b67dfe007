package persistence

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 1

// InitializeDatabase creates and initializes a SQLite database with the
// required schema. This function is idempotent and safe to call multiple
// times; tests use it to get private connections without the singleton.
func InitializeDatabase(dbPath string) (*sql.DB, error) {
	return openDatabase(dbPath)
}

// initializeSchemaWithMigrations ensures the database schema is at the current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// Empty database gets a fresh schema.
	if currentVersion == 0 {
		return createSchema(db)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies database migrations from current version to target version.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}

		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

// runMigration applies a specific version migration.
func runMigration(db *sql.DB, version int) error {
	switch version {
	case 1:
		return createSchema(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// createSchema creates the full schema from scratch.
func createSchema(db *sql.DB) error {
	tables := []string{
		// One row per pipeline run against a target site.
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			target_url TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT 'demo' CHECK (mode IN ('demo', 'live')),
			final_state TEXT,
			started_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			completed_at DATETIME
		)`,

		// One row per improve/evaluate cycle inside a run.
		`CREATE TABLE IF NOT EXISTS iterations (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			iteration INTEGER NOT NULL,
			completion_pct INTEGER NOT NULL DEFAULT 0,
			started_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			completed_at DATETIME,
			PRIMARY KEY (run_id, iteration)
		)`,

		// One row per applied implementation plan.
		`CREATE TABLE IF NOT EXISTS plans (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			iteration INTEGER NOT NULL,
			summary TEXT NOT NULL,
			files_patched INTEGER NOT NULL DEFAULT 0,
			ops_applied INTEGER NOT NULL DEFAULT 0,
			ops_skipped INTEGER NOT NULL DEFAULT 0,
			backup_path TEXT,
			applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,

		// One row per change operation outcome.
		`CREATE TABLE IF NOT EXISTS patch_ops (
			plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
			file TEXT NOT NULL,
			op_type TEXT NOT NULL CHECK (op_type IN ('replace', 'add', 'remove')),
			status TEXT NOT NULL CHECK (status IN ('applied', 'skipped')),
			reason TEXT
		)`,

		// Cost ledger: one row per producer LLM request.
		`CREATE TABLE IF NOT EXISTS llm_costs (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			worker TEXT NOT NULL,
			model TEXT NOT NULL,
			prompt_tokens BIGINT NOT NULL DEFAULT 0,
			completion_tokens BIGINT NOT NULL DEFAULT 0,
			cost_usd DECIMAL(10,6) NOT NULL DEFAULT 0.0,
			created_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		)`,
	}

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_iterations_run ON iterations(run_id)",
		"CREATE INDEX IF NOT EXISTS idx_plans_run ON plans(run_id)",
		"CREATE INDEX IF NOT EXISTS idx_patch_ops_plan ON patch_ops(plan_id)",
		"CREATE INDEX IF NOT EXISTS idx_llm_costs_run ON llm_costs(run_id)",
		"CREATE INDEX IF NOT EXISTS idx_llm_costs_worker ON llm_costs(worker)",
	}

	for _, ddl := range tables {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, ddl := range indices {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := setSchemaVersion(db, CurrentSchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return nil
}

// setSchemaVersion records the current schema version.
func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO schema_version (version) VALUES (?)
	`, version)
	if err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil // No version set yet
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}
