package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS experiments (
    id TEXT PRIMARY KEY,
    name TEXT UNIQUE NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    traffic_split REAL NOT NULL DEFAULT 100,
    target_element TEXT NOT NULL DEFAULT '',
    target_selector TEXT NOT NULL DEFAULT '',
    goal_type TEXT NOT NULL DEFAULT '',
    goal_value REAL NOT NULL DEFAULT 0,
    significance REAL NOT NULL DEFAULT 0.95,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);

CREATE INDEX IF NOT EXISTS idx_experiments_name ON experiments(name);
CREATE INDEX IF NOT EXISTS idx_experiments_status ON experiments(status);

CREATE TABLE IF NOT EXISTS variants (
    id TEXT PRIMARY KEY,
    experiment_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    css_class TEXT NOT NULL DEFAULT '',
    weight REAL NOT NULL DEFAULT 0,
    is_control INTEGER NOT NULL DEFAULT 0,
    is_winner INTEGER NOT NULL DEFAULT 0,
    position INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (experiment_id) REFERENCES experiments(id),
    UNIQUE (experiment_id, name)
);

CREATE INDEX IF NOT EXISTS idx_variants_experiment ON variants(experiment_id);

CREATE TABLE IF NOT EXISTS assignments (
    visitor_id TEXT NOT NULL,
    experiment_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    assigned_at INTEGER NOT NULL DEFAULT (unixepoch()),
    PRIMARY KEY (visitor_id, experiment_id)
);

CREATE INDEX IF NOT EXISTS idx_assignments_experiment ON assignments(experiment_id);

CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    experiment_id TEXT NOT NULL,
    variant_id TEXT NOT NULL,
    visitor_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    value REAL,
    created_at INTEGER NOT NULL DEFAULT (unixepoch()),
    FOREIGN KEY (experiment_id) REFERENCES experiments(id)
);

CREATE INDEX IF NOT EXISTS idx_events_experiment ON events(experiment_id);
CREATE INDEX IF NOT EXISTS idx_events_variant ON events(experiment_id, variant_id, event_type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_dedup ON events(experiment_id, visitor_id, event_type);
`

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateExperiment(ctx context.Context, exp *Experiment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO experiments (id, name, description, type, status, traffic_split,
		     target_element, target_selector, goal_type, goal_value, significance,
		     created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		exp.ID, exp.Name, exp.Description, string(exp.Type), string(exp.Status),
		exp.TrafficSplit, exp.TargetElement, exp.TargetSelector,
		exp.GoalType, exp.GoalValue, exp.Significance, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert experiment: %w", err)
	}

	for i, v := range exp.Variants {
		v.ExperimentID = exp.ID
		v.Position = i
		if err := insertVariant(ctx, tx, v); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit experiment: %w", err)
	}

	exp.CreatedAt = time.Unix(now, 0)
	exp.UpdatedAt = time.Unix(now, 0)
	return nil
}

func insertVariant(ctx context.Context, tx *sql.Tx, v *Variant) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO variants (id, experiment_id, name, description, content,
		     css_class, weight, is_control, is_winner, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.ExperimentID, v.Name, v.Description, v.Content,
		v.CSSClass, v.Weight, boolToInt(v.IsControl), boolToInt(v.IsWinner), v.Position,
	)
	if err != nil {
		return fmt.Errorf("failed to insert variant: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddVariant(ctx context.Context, v *Variant) error {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(position) FROM variants WHERE experiment_id = ?`, v.ExperimentID,
	).Scan(&max)
	if err != nil {
		return fmt.Errorf("failed to read variant positions: %w", err)
	}
	if max.Valid {
		v.Position = int(max.Int64) + 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO variants (id, experiment_id, name, description, content,
		     css_class, weight, is_control, is_winner, position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.ExperimentID, v.Name, v.Description, v.Content,
		v.CSSClass, v.Weight, boolToInt(v.IsControl), boolToInt(v.IsWinner), v.Position,
	)
	if err != nil {
		return fmt.Errorf("failed to insert variant: %w", err)
	}
	return nil
}

const experimentColumns = `id, name, description, type, status, traffic_split,
    target_element, target_selector, goal_type, goal_value, significance,
    created_at, updated_at`

func (s *SQLiteStore) GetExperiment(ctx context.Context, name string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE name = ?`, name)
	return s.scanExperiment(ctx, row)
}

func (s *SQLiteStore) GetExperimentByID(ctx context.Context, id string) (*Experiment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+experimentColumns+` FROM experiments WHERE id = ?`, id)
	return s.scanExperiment(ctx, row)
}

func (s *SQLiteStore) scanExperiment(ctx context.Context, row *sql.Row) (*Experiment, error) {
	exp, err := scanExperimentRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}

	if err := s.loadVariants(ctx, exp); err != nil {
		return nil, err
	}
	return exp, nil
}

func scanExperimentRow(scan func(dest ...any) error) (*Experiment, error) {
	var exp Experiment
	var createdAt, updatedAt int64
	err := scan(
		&exp.ID, &exp.Name, &exp.Description, &exp.Type, &exp.Status,
		&exp.TrafficSplit, &exp.TargetElement, &exp.TargetSelector,
		&exp.GoalType, &exp.GoalValue, &exp.Significance, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	exp.CreatedAt = time.Unix(createdAt, 0)
	exp.UpdatedAt = time.Unix(updatedAt, 0)
	return &exp, nil
}

func (s *SQLiteStore) loadVariants(ctx context.Context, exp *Experiment) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, experiment_id, name, description, content, css_class,
		     weight, is_control, is_winner, position
		 FROM variants WHERE experiment_id = ? ORDER BY position`, exp.ID)
	if err != nil {
		return fmt.Errorf("failed to load variants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v Variant
		var isControl, isWinner int
		err := rows.Scan(&v.ID, &v.ExperimentID, &v.Name, &v.Description,
			&v.Content, &v.CSSClass, &v.Weight, &isControl, &isWinner, &v.Position)
		if err != nil {
			return fmt.Errorf("failed to scan variant: %w", err)
		}
		v.IsControl = isControl != 0
		v.IsWinner = isWinner != 0
		exp.Variants = append(exp.Variants, &v)
	}
	return rows.Err()
}

func (s *SQLiteStore) ListExperiments(ctx context.Context, status ExperimentStatus) ([]*Experiment, error) {
	query := `SELECT ` + experimentColumns + ` FROM experiments`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list experiments: %w", err)
	}
	defer rows.Close()

	var experiments []*Experiment
	for rows.Next() {
		exp, err := scanExperimentRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		experiments = append(experiments, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, exp := range experiments {
		if err := s.loadVariants(ctx, exp); err != nil {
			return nil, err
		}
	}

	return experiments, nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status ExperimentStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE experiments SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update experiment status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteExperiment marks the experiment completed and flags the winning
// variant, keeping the at-most-one invariant. Both writes share one
// transaction: a failure rolls back the flag and the status together.
func (s *SQLiteStore) CompleteExperiment(ctx context.Context, experimentID, winnerVariantID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE variants SET is_winner = 0 WHERE experiment_id = ?`, experimentID); err != nil {
		return fmt.Errorf("failed to clear winner flags: %w", err)
	}

	if winnerVariantID != "" {
		result, err := tx.ExecContext(ctx,
			`UPDATE variants SET is_winner = 1 WHERE experiment_id = ? AND id = ?`,
			experimentID, winnerVariantID)
		if err != nil {
			return fmt.Errorf("failed to set winner: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return ErrNotFound
		}
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE experiments SET status = ?, updated_at = ? WHERE id = ?`,
		string(StatusCompleted), time.Now().Unix(), experimentID)
	if err != nil {
		return fmt.Errorf("failed to update experiment status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit completion: %w", err)
	}
	return nil
}

// DeleteExperiment removes the experiment and everything it owns:
// variants, assignments, and events.
func (s *SQLiteStore) DeleteExperiment(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM events WHERE experiment_id = ?`,
		`DELETE FROM assignments WHERE experiment_id = ?`,
		`DELETE FROM variants WHERE experiment_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("failed to delete experiment data: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM experiments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete experiment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetAssignment(ctx context.Context, visitorID, experimentID string) (*Assignment, error) {
	var a Assignment
	var assignedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT visitor_id, experiment_id, variant_id, assigned_at
		 FROM assignments WHERE visitor_id = ? AND experiment_id = ?`,
		visitorID, experimentID,
	).Scan(&a.VisitorID, &a.ExperimentID, &a.VariantID, &assignedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	a.AssignedAt = time.Unix(assignedAt, 0)
	return &a, nil
}

// PutAssignment persists the (visitor, experiment) -> variant binding with
// first-write-wins semantics: INSERT OR IGNORE leaves a concurrent writer's
// row untouched, and the read-back returns whichever variant won the race.
func (s *SQLiteStore) PutAssignment(ctx context.Context, visitorID, experimentID, variantID string) (string, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO assignments (visitor_id, experiment_id, variant_id, assigned_at)
		 VALUES (?, ?, ?, ?)`,
		visitorID, experimentID, variantID, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to put assignment: %w", err)
	}

	var persisted string
	err = s.db.QueryRowContext(ctx,
		`SELECT variant_id FROM assignments WHERE visitor_id = ? AND experiment_id = ?`,
		visitorID, experimentID,
	).Scan(&persisted)
	if err != nil {
		return "", fmt.Errorf("failed to read back assignment: %w", err)
	}
	return persisted, nil
}

func (s *SQLiteStore) RecordEvent(ctx context.Context, e *Event) error {
	// INSERT OR IGNORE: repeat events for the same visitor and type are
	// dropped by the dedup index.
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO events (experiment_id, variant_id, visitor_id, event_type, value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ExperimentID, e.VariantID, e.VisitorID, string(e.EventType),
		nullableFloat(e.Value), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetVariantCounts(ctx context.Context, experimentID string) ([]VariantCounts, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			variant_id,
			COUNT(DISTINCT CASE WHEN event_type = 'visit' THEN visitor_id END) as visitors,
			COUNT(DISTINCT CASE WHEN event_type = 'conversion' THEN visitor_id END) as conversions
		FROM events
		WHERE experiment_id = ?
		GROUP BY variant_id
	`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get variant counts: %w", err)
	}
	defer rows.Close()

	var counts []VariantCounts
	for rows.Next() {
		var c VariantCounts
		if err := rows.Scan(&c.VariantID, &c.Visitors, &c.Conversions); err != nil {
			return nil, fmt.Errorf("failed to scan counts: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) GetEvents(ctx context.Context, experimentID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, experiment_id, variant_id, visitor_id, event_type, value, created_at
		 FROM events WHERE experiment_id = ? ORDER BY created_at DESC`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var value sql.NullFloat64
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.ExperimentID, &e.VariantID, &e.VisitorID, &e.EventType, &value, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if value.Valid {
			e.Value = value.Float64
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// DB returns the underlying database connection for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableFloat(f float64) sql.NullFloat64 {
	if f == 0 {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}
