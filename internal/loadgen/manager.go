package loadgen

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/studiowebux/reviewload/internal/migrations"
)

// Manager handles load run persistence
type Manager struct {
	db *sql.DB
}

// NewManager opens (or creates) the run database at dbPath
func NewManager(dbPath string) (*Manager, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Manager{db: db}, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}

const runColumns = `id, run_uuid, name, host, users, started_at, completed_at, status,
	total_requests, total_successes, total_errors, total_failures, total_anomalies,
	teams_seeded, users_seeded, open_pull_requests,
	COALESCE(avg_duration_ms, 0), COALESCE(min_duration_ms, 0), COALESCE(max_duration_ms, 0),
	COALESCE(p50_duration_ms, 0), COALESCE(p95_duration_ms, 0), COALESCE(p99_duration_ms, 0)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var completedAt sql.NullTime
	err := row.Scan(&run.ID, &run.RunUUID, &run.Name, &run.Host, &run.Users, &run.StartedAt, &completedAt, &run.Status,
		&run.TotalRequests, &run.TotalSuccesses, &run.TotalErrors, &run.TotalFailures, &run.TotalAnomalies,
		&run.TeamsSeeded, &run.UsersSeeded, &run.OpenPullRequests,
		&run.AvgDurationMs, &run.MinDurationMs, &run.MaxDurationMs,
		&run.P50DurationMs, &run.P95DurationMs, &run.P99DurationMs)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return run, nil
}

// CreateRun creates a new run record and sets run.ID
func (m *Manager) CreateRun(run *Run) error {
	result, err := m.db.Exec(`
		INSERT INTO load_runs (run_uuid, name, host, users, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.RunUUID, run.Name, run.Host, run.Users, run.StartedAt, run.Status)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// UpdateRun stores the final state of a run
func (m *Manager) UpdateRun(run *Run) error {
	_, err := m.db.Exec(`
		UPDATE load_runs
		SET completed_at = ?, status = ?, total_requests = ?, total_successes = ?, total_errors = ?,
		    total_failures = ?, total_anomalies = ?, teams_seeded = ?, users_seeded = ?, open_pull_requests = ?,
		    avg_duration_ms = ?, min_duration_ms = ?, max_duration_ms = ?,
		    p50_duration_ms = ?, p95_duration_ms = ?, p99_duration_ms = ?
		WHERE id = ?
	`, run.CompletedAt, run.Status, run.TotalRequests, run.TotalSuccesses, run.TotalErrors,
		run.TotalFailures, run.TotalAnomalies, run.TeamsSeeded, run.UsersSeeded, run.OpenPullRequests,
		run.AvgDurationMs, run.MinDurationMs, run.MaxDurationMs,
		run.P50DurationMs, run.P95DurationMs, run.P99DurationMs, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (m *Manager) GetRun(id int64) (*Run, error) {
	return scanRun(m.db.QueryRow(`SELECT `+runColumns+` FROM load_runs WHERE id = ?`, id))
}

// ListRuns returns the most recent runs first; limit <= 0 returns all
func (m *Manager) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM load_runs ORDER BY started_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := m.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun deletes a run and all its metrics
func (m *Manager) DeleteRun(id int64) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM load_task_metrics WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete metrics: %w", err)
	}
	result, err := tx.Exec("DELETE FROM load_runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return tx.Commit()
}

// SaveMetricsBatch saves multiple metrics in a single transaction
func (m *Manager) SaveMetricsBatch(metrics []*Metric) error {
	if len(metrics) == 0 {
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO load_task_metrics
		(run_id, timestamp, elapsed_ms, session_id, task, outcome, status_code, duration_ms, request_size, response_size, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, metric := range metrics {
		_, err := stmt.Exec(metric.RunID, metric.Timestamp, metric.ElapsedMs, metric.SessionID,
			string(metric.Task), string(metric.Outcome), metric.StatusCode, metric.DurationMs,
			metric.RequestSize, metric.ResponseSize, metric.ErrorMessage)
		if err != nil {
			return fmt.Errorf("failed to insert metric: %w", err)
		}
	}

	return tx.Commit()
}

// GetMetrics retrieves all metrics for a run ordered by elapsed time
func (m *Manager) GetMetrics(runID int64) ([]*Metric, error) {
	rows, err := m.db.Query(`
		SELECT id, run_id, timestamp, elapsed_ms, session_id, task, outcome, status_code, duration_ms,
		       request_size, response_size, error_message
		FROM load_task_metrics
		WHERE run_id = ?
		ORDER BY elapsed_ms, id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var metrics []*Metric
	for rows.Next() {
		metric := &Metric{}
		var task, outcome string
		var errorMsg sql.NullString

		err := rows.Scan(&metric.ID, &metric.RunID, &metric.Timestamp, &metric.ElapsedMs, &metric.SessionID,
			&task, &outcome, &metric.StatusCode, &metric.DurationMs,
			&metric.RequestSize, &metric.ResponseSize, &errorMsg)
		if err != nil {
			return nil, err
		}
		metric.Task = TaskKind(task)
		metric.Outcome = Outcome(outcome)
		if errorMsg.Valid {
			metric.ErrorMessage = errorMsg.String
		}
		metrics = append(metrics, metric)
	}
	return metrics, rows.Err()
}

// GetTaskSummaries aggregates a run's metrics per task kind
func (m *Manager) GetTaskSummaries(runID int64) ([]*TaskSummary, error) {
	rows, err := m.db.Query(`
		SELECT task,
		       COUNT(*),
		       SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END),
		       SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END),
		       SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END),
		       SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END),
		       AVG(duration_ms),
		       MAX(duration_ms)
		FROM load_task_metrics
		WHERE run_id = ?
		GROUP BY task
		ORDER BY task
	`, string(OutcomeSuccess), string(OutcomeError), string(OutcomeUnexpectedStatus), string(OutcomeAnomaly), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*TaskSummary
	for rows.Next() {
		summary := &TaskSummary{}
		var task string
		err := rows.Scan(&task, &summary.Requests, &summary.Successes, &summary.Errors,
			&summary.Failures, &summary.Anomalies, &summary.AvgDurationMs, &summary.MaxDurationMs)
		if err != nil {
			return nil, err
		}
		summary.Task = TaskKind(task)
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}
