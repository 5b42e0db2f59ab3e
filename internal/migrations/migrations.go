package migrations

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: 1,
		Name:    "Add lookup indices for run listing and per-task summaries",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_load_runs_started_at ON load_runs(started_at DESC);
			CREATE INDEX IF NOT EXISTS idx_load_runs_status ON load_runs(status);
			CREATE INDEX IF NOT EXISTS idx_load_metrics_run_task ON load_task_metrics(run_id, task);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_load_runs_started_at;
			DROP INDEX IF EXISTS idx_load_runs_status;
			DROP INDEX IF EXISTS idx_load_metrics_run_task;
		`,
	},
	{
		Version: 2,
		Name:    "Add run_uuid uniqueness",
		Up: `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_load_runs_uuid ON load_runs(run_uuid);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_load_runs_uuid;
		`,
	},
}

// InitSchema creates all tables required by the run store
// This must be called before running migrations to ensure all tables exist
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS load_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_uuid TEXT NOT NULL,
		name TEXT NOT NULL,
		host TEXT NOT NULL,
		users INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		status TEXT NOT NULL,
		total_requests INTEGER DEFAULT 0,
		total_successes INTEGER DEFAULT 0,
		total_errors INTEGER DEFAULT 0,
		total_failures INTEGER DEFAULT 0,
		total_anomalies INTEGER DEFAULT 0,
		teams_seeded INTEGER DEFAULT 0,
		users_seeded INTEGER DEFAULT 0,
		open_pull_requests INTEGER DEFAULT 0,
		avg_duration_ms REAL DEFAULT 0,
		min_duration_ms INTEGER DEFAULT 0,
		max_duration_ms INTEGER DEFAULT 0,
		p50_duration_ms INTEGER DEFAULT 0,
		p95_duration_ms INTEGER DEFAULT 0,
		p99_duration_ms INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS load_task_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		session_id INTEGER NOT NULL,
		task TEXT NOT NULL,
		outcome TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		request_size INTEGER DEFAULT 0,
		response_size INTEGER DEFAULT 0,
		error_message TEXT,
		FOREIGN KEY (run_id) REFERENCES load_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_load_metrics_run_id ON load_task_metrics(run_id);
	CREATE INDEX IF NOT EXISTS idx_load_metrics_elapsed ON load_task_metrics(run_id, elapsed_ms);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Run executes all pending migrations on the database
func Run(db *sql.DB) error {
	// Initialize schema first to ensure all tables exist
	if err := InitSchema(db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Create migrations tracking table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := GetCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	// Apply pending migrations
	for _, migration := range AllMigrations {
		if migration.Version <= currentVersion {
			continue
		}

		if _, err := db.Exec(migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		_, err = db.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version,
			migration.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// GetCurrentVersion returns the current database schema version
func GetCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_migrations
	`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return version, nil
}
