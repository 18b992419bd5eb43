package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seantiz/xbrowse/internal/model"

	_ "modernc.org/sqlite"
)

const createRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    state       TEXT NOT NULL,
    engines     TEXT NOT NULL,
    tests       TEXT NOT NULL,
    tags        TEXT NOT NULL,
    concurrency INTEGER NOT NULL,
    summary     TEXT,
    created_at  DATETIME NOT NULL,
    started_at  DATETIME,
    finished_at DATETIME
)`

const createOutcomesTable = `
CREATE TABLE IF NOT EXISTS outcomes (
    run_id      TEXT NOT NULL REFERENCES runs(id),
    seq         INTEGER NOT NULL,
    unit_id     TEXT NOT NULL,
    test_id     TEXT NOT NULL,
    engine      TEXT NOT NULL,
    status      TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    error       TEXT NOT NULL,
    stack       TEXT NOT NULL,
    artifacts   TEXT NOT NULL,
    notes       TEXT NOT NULL,
    attempts    INTEGER NOT NULL,
    started_at  DATETIME NOT NULL,
    finished_at DATETIME NOT NULL,
    PRIMARY KEY (run_id, unit_id)
)`

const createOutcomesIndex = `CREATE INDEX IF NOT EXISTS outcomes_run_seq ON outcomes (run_id, seq)`

// ErrNotFound is returned when a run is not found.
var ErrNotFound = errors.New("run not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createRunsTable, createOutcomesTable, createOutcomesIndex} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *model.Run) error {
	summary, err := encodeSummary(r.Summary)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (
			id, state, engines, tests, tags, concurrency, summary,
			created_at, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.State, encodeList(r.Engines), encodeList(r.Tests), encodeList(r.Tags),
		r.Concurrency, summary, r.CreatedAt, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const selectRun = `SELECT id, state, engines, tests, tags, concurrency, summary,
	created_at, started_at, finished_at FROM runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	r := &model.Run{}
	var engines, tests, tags string
	var summary sql.NullString
	if err := row.Scan(
		&r.ID, &r.State, &engines, &tests, &tags, &r.Concurrency, &summary,
		&r.CreatedAt, &r.StartedAt, &r.FinishedAt,
	); err != nil {
		return nil, err
	}
	r.Engines = decodeList(engines)
	r.Tests = decodeList(tests)
	r.Tags = decodeList(tags)
	if summary.Valid && summary.String != "" {
		r.Summary = &model.Summary{}
		if err := json.Unmarshal([]byte(summary.String), r.Summary); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
	}
	return r, nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, selectRun+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns a paginated list of runs ordered by created_at DESC,
// along with the total count of all runs.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := tx.QueryContext(ctx, selectRun+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, total, nil
}

// UpdateRunState moves a run to state, enforcing the run state machine.
// Entering running sets started_at; entering completed sets finished_at.
func (s *SQLiteStore) UpdateRunState(ctx context.Context, id, state string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT state FROM runs WHERE id = ?", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read run state: %w", err)
	}
	if !model.ValidRunTransition(current, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, state)
	}

	now := time.Now().UTC()
	switch state {
	case model.RunRunning:
		_, err = tx.ExecContext(ctx, "UPDATE runs SET state = ?, started_at = ? WHERE id = ?", state, now, id)
	case model.RunCompleted:
		_, err = tx.ExecContext(ctx, "UPDATE runs SET state = ?, finished_at = ? WHERE id = ?", state, now, id)
	default:
		_, err = tx.ExecContext(ctx, "UPDATE runs SET state = ? WHERE id = ?", state, id)
	}
	if err != nil {
		return fmt.Errorf("update run state: %w", err)
	}
	return tx.Commit()
}

// UpdateRun overwrites the mutable fields of a run: state, summary and
// timestamps.
func (s *SQLiteStore) UpdateRun(ctx context.Context, r *model.Run) error {
	summary, err := encodeSummary(r.Summary)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, summary = ?, started_at = ?, finished_at = ? WHERE id = ?`,
		r.State, summary, r.StartedAt, r.FinishedAt, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertOutcome stores an outcome of runID. seq is the completion order.
func (s *SQLiteStore) InsertOutcome(ctx context.Context, runID string, seq int, o model.Outcome) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outcomes (
			run_id, seq, unit_id, test_id, engine, status, duration_ms, error,
			stack, artifacts, notes, attempts, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, seq, o.UnitID, o.TestID, o.Engine, o.Status, o.DurationMS, o.Error,
		o.Stack, encodeList(o.Artifacts), encodeList(o.Notes), o.Attempts,
		o.StartedAt.UTC(), o.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// GetOutcomes returns the outcomes of a run in completion order.
func (s *SQLiteStore) GetOutcomes(ctx context.Context, runID string) ([]model.Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT unit_id, test_id, engine, status, duration_ms, error, stack,
			artifacts, notes, attempts, started_at, finished_at
		FROM outcomes WHERE run_id = ? ORDER BY seq ASC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("get outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []model.Outcome
	for rows.Next() {
		var o model.Outcome
		var artifacts, notes string
		if err := rows.Scan(
			&o.UnitID, &o.TestID, &o.Engine, &o.Status, &o.DurationMS, &o.Error, &o.Stack,
			&artifacts, &notes, &o.Attempts, &o.StartedAt, &o.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Artifacts = decodeList(artifacts)
		o.Notes = decodeList(notes)
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// GetRunStats computes statistics across all runs and outcomes.
func (s *SQLiteStore) GetRunStats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{
		CountByState:     make(map[string]int),
		CountByStatus:    make(map[string]int),
		CountByEngine:    make(map[string]int),
		FailuresByEngine: make(map[string]int),
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	if err := countInto(ctx, tx, "SELECT state, COUNT(*) FROM runs GROUP BY state", stats.CountByState); err != nil {
		return nil, fmt.Errorf("count runs by state: %w", err)
	}
	for _, n := range stats.CountByState {
		stats.Runs += n
	}

	if err := countInto(ctx, tx, "SELECT status, COUNT(*) FROM outcomes GROUP BY status", stats.CountByStatus); err != nil {
		return nil, fmt.Errorf("count outcomes by status: %w", err)
	}
	for _, n := range stats.CountByStatus {
		stats.Outcomes += n
	}

	if err := countInto(ctx, tx, "SELECT engine, COUNT(*) FROM outcomes GROUP BY engine", stats.CountByEngine); err != nil {
		return nil, fmt.Errorf("count outcomes by engine: %w", err)
	}

	failing := fmt.Sprintf("SELECT engine, COUNT(*) FROM outcomes WHERE status IN ('%s', '%s', '%s') GROUP BY engine",
		model.StatusFailed, model.StatusErrored, model.StatusTimedOut)
	if err := countInto(ctx, tx, failing, stats.FailuresByEngine); err != nil {
		return nil, fmt.Errorf("count failures by engine: %w", err)
	}

	var avg sql.NullFloat64
	if err := tx.QueryRowContext(ctx, "SELECT AVG(duration_ms) FROM outcomes").Scan(&avg); err != nil {
		return nil, fmt.Errorf("average duration: %w", err)
	}
	if avg.Valid {
		stats.AvgUnitDuration = avg.Float64
	}

	return stats, nil
}

func countInto(ctx context.Context, tx *sql.Tx, query string, into map[string]int) error {
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

func encodeList(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeList(s string) []string {
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil || len(v) == 0 {
		return nil
	}
	return v
}

func encodeSummary(sum *model.Summary) (any, error) {
	if sum == nil {
		return nil, nil
	}
	b, err := json.Marshal(sum)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	return string(b), nil
}
