package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// RecoveryOutcome is one journaled recovery execution.
type RecoveryOutcome struct {
	ID         int64     `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	TaskID     string    `json:"task_id,omitempty"`
	Strategy   string    `json:"strategy"`
	Action     string    `json:"action"`
	Success    bool      `json:"success"`
}

// EscalationRecommendation is one journaled upgrade recommendation.
type EscalationRecommendation struct {
	ID                int64     `json:"id"`
	OccurredAt        time.Time `json:"occurred_at"`
	TaskID            string    `json:"task_id,omitempty"`
	SuggestedLevel    string    `json:"suggested_level,omitempty"`
	SuggestHeavyModel bool      `json:"suggest_heavy_model"`
	Confidence        float64   `json:"confidence"`
	Reasons           []string  `json:"reasons,omitempty"`
}

// Journal is an append-only sqlite log of recovery and escalation
// outcomes. It exists for dashboards and postmortems; the control plane
// never reads it back to make decisions.
type Journal struct {
	db     *sql.DB
	readDB *sql.DB
}

// NewJournal opens (or creates) the journal database and applies
// migrations.
func NewJournal(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening write database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	readDB, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(1000)")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening read database: %w", err)
	}
	readDB.SetMaxOpenConns(10)
	readDB.SetMaxIdleConns(5)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	j := &Journal{db: db, readDB: readDB}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		_ = readDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate() error {
	_, err := j.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var currentVersion int
	row := j.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	migrations := []string{migrationV1}
	for i, migration := range migrations {
		version := i + 1
		if version <= currentVersion {
			continue
		}

		tx, err := j.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration transaction: %w", err)
		}
		for _, stmt := range splitStatements(migration) {
			if _, err := tx.Exec(stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("executing migration v%d: %w", version, err)
			}
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			version, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration v%d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration v%d: %w", version, err)
		}
	}
	return nil
}

func splitStatements(script string) []string {
	var statements []string
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		statements = append(statements, stmt)
	}
	return statements
}

// RecordRecovery appends one recovery outcome.
func (j *Journal) RecordRecovery(ctx context.Context, rec RecoveryOutcome) error {
	occurred := rec.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO recovery_outcomes (occurred_at, task_id, strategy, action, success)
		 VALUES (?, ?, ?, ?, ?)`,
		occurred.UTC().Format(time.RFC3339Nano), rec.TaskID, rec.Strategy, rec.Action, boolToInt(rec.Success))
	if err != nil {
		return fmt.Errorf("recording recovery outcome: %w", err)
	}
	return nil
}

// RecordEscalation appends one upgrade recommendation.
func (j *Journal) RecordEscalation(ctx context.Context, rec EscalationRecommendation) error {
	occurred := rec.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO escalation_recommendations
		 (occurred_at, task_id, suggested_level, suggest_heavy_model, confidence, reasons)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		occurred.UTC().Format(time.RFC3339Nano), rec.TaskID, rec.SuggestedLevel,
		boolToInt(rec.SuggestHeavyModel), rec.Confidence, strings.Join(rec.Reasons, "; "))
	if err != nil {
		return fmt.Errorf("recording escalation: %w", err)
	}
	return nil
}

// ListRecovery returns the most recent recovery outcomes, newest first,
// optionally filtered by task id.
func (j *Journal) ListRecovery(ctx context.Context, taskID string, limit int) ([]RecoveryOutcome, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, occurred_at, task_id, strategy, action, success
	          FROM recovery_outcomes`
	args := []interface{}{}
	if taskID != "" {
		query += " WHERE task_id = ?"
		args = append(args, taskID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := j.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying recovery outcomes: %w", err)
	}
	defer rows.Close()

	var out []RecoveryOutcome
	for rows.Next() {
		var rec RecoveryOutcome
		var occurred string
		var success int
		if err := rows.Scan(&rec.ID, &occurred, &rec.TaskID, &rec.Strategy, &rec.Action, &success); err != nil {
			return nil, fmt.Errorf("scanning recovery outcome: %w", err)
		}
		rec.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurred)
		rec.Success = success != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListEscalations returns the most recent escalation recommendations,
// newest first.
func (j *Journal) ListEscalations(ctx context.Context, limit int) ([]EscalationRecommendation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.readDB.QueryContext(ctx,
		`SELECT id, occurred_at, task_id, suggested_level, suggest_heavy_model, confidence, reasons
		 FROM escalation_recommendations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying escalations: %w", err)
	}
	defer rows.Close()

	var out []EscalationRecommendation
	for rows.Next() {
		var rec EscalationRecommendation
		var occurred, reasons string
		var heavy int
		if err := rows.Scan(&rec.ID, &occurred, &rec.TaskID, &rec.SuggestedLevel, &heavy, &rec.Confidence, &reasons); err != nil {
			return nil, fmt.Errorf("scanning escalation: %w", err)
		}
		rec.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurred)
		rec.SuggestHeavyModel = heavy != 0
		if reasons != "" {
			rec.Reasons = strings.Split(reasons, "; ")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes both database connections.
func (j *Journal) Close() error {
	werr := j.db.Close()
	rerr := j.readDB.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
