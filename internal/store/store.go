package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"

	"github.com/valpere/sctran/internal"
	"github.com/valpere/sctran/internal/audit"
)

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = errors.New("store: run not found")

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer; the HTTP API records runs concurrently.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		contract_text TEXT NOT NULL,
		source_lang TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		max_iterations INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		iterations INTEGER DEFAULT 0,
		severity TEXT,
		approved BOOLEAN DEFAULT FALSE,
		compiles BOOLEAN,
		failed_stage TEXT,
		error TEXT,
		result_json TEXT,
		duration_ms INTEGER DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP
	);

	-- audits keeps every auditor pass so the refinement trajectory can be replayed
	CREATE TABLE IF NOT EXISTS audits (
		run_id TEXT NOT NULL,
		pass INTEGER NOT NULL,
		severity TEXT NOT NULL,
		approved BOOLEAN NOT NULL,
		issues INTEGER NOT NULL,
		report_json TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, pass),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_lookup ON runs(contract_text, provider, model, status);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRequest records a run in the running state.
func (s *Store) SaveRequest(ctx context.Context, req internal.TranslationRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, contract_text, source_lang, provider, model, max_iterations, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, normalizeText(req.ContractText), req.SourceLang, req.Provider, req.Model, req.MaxIterations, StatusRunning, req.Timestamp.UTC())
	return err
}

// SaveAudit records one auditor pass; pass 0 audits the generated code.
func (s *Store) SaveAudit(ctx context.Context, runID string, pass int, report audit.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode audit report: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO audits (run_id, pass, severity, approved, issues, report_json) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, pass, string(report.SeverityLevel), report.Approved, len(report.Issues), string(data))
	return err
}

// Completion is the summary of a finished run.
type Completion struct {
	Iterations int
	Severity   audit.Severity
	Approved   bool
	Compiles   *bool
	Result     []byte
	Duration   time.Duration
}

func (s *Store) CompleteRun(ctx context.Context, runID string, c Completion) error {
	var compiles sql.NullBool
	if c.Compiles != nil {
		compiles = sql.NullBool{Bool: *c.Compiles, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, iterations = ?, severity = ?, approved = ?, compiles = ?, result_json = ?, duration_ms = ?, finished_at = ? WHERE id = ?`,
		StatusCompleted, c.Iterations, string(c.Severity), c.Approved, compiles, string(c.Result), c.Duration.Milliseconds(), time.Now().UTC(), runID)
	return err
}

func (s *Store) FailRun(ctx context.Context, runID, stage string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, failed_stage = ?, error = ?, finished_at = ? WHERE id = ?`,
		StatusFailed, stage, msg, time.Now().UTC(), runID)
	return err
}

// CachedResult returns the result JSON of the most recent completed run of
// the same contract text on the same provider and model with the same
// refinement budget.
func (s *Store) CachedResult(ctx context.Context, contractText, provider, model string, maxIterations int) ([]byte, bool, error) {
	var result string
	err := s.db.QueryRowContext(ctx,
		`SELECT result_json FROM runs WHERE contract_text = ? AND provider = ? AND model = ? AND max_iterations = ? AND status = ? AND result_json IS NOT NULL ORDER BY created_at DESC LIMIT 1`,
		normalizeText(contractText), provider, model, maxIterations, StatusCompleted).Scan(&result)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(result), true, nil
}

// Run is a row from the runs table.
type Run struct {
	ID            string          `json:"id"`
	ContractText  string          `json:"contract_text"`
	SourceLang    string          `json:"source_lang"`
	Provider      string          `json:"provider"`
	Model         string          `json:"model"`
	MaxIterations int             `json:"max_iterations"`
	Status        string          `json:"status"`
	Iterations    int             `json:"iterations"`
	Severity      string          `json:"severity,omitempty"`
	Approved      bool            `json:"approved"`
	Compiles      *bool           `json:"compiles,omitempty"`
	FailedStage   string          `json:"failed_stage,omitempty"`
	Error         string          `json:"error,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	DurationMs    int64           `json:"duration_ms"`
	CreatedAt     time.Time       `json:"created_at"`
}

// AuditEntry is a row from the audits table.
type AuditEntry struct {
	Pass   int          `json:"pass"`
	Report audit.Report `json:"report"`
}

// RunStats summarises run history.
type RunStats struct {
	TotalRuns     int     `json:"total_runs"`
	Completed     int     `json:"completed"`
	Failed        int     `json:"failed"`
	Approved      int     `json:"approved"`
	Compiled      int     `json:"compiled"`
	AvgIterations float64 `json:"avg_iterations"`
}

const runColumns = `id, contract_text, source_lang, provider, model, max_iterations, status, iterations,
	COALESCE(severity, ''), approved, compiles, COALESCE(failed_stage, ''), COALESCE(error, ''), duration_ms, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner, extra ...any) (Run, error) {
	var r Run
	var compiles sql.NullBool
	dest := append([]any{&r.ID, &r.ContractText, &r.SourceLang, &r.Provider, &r.Model, &r.MaxIterations, &r.Status, &r.Iterations,
		&r.Severity, &r.Approved, &compiles, &r.FailedStage, &r.Error, &r.DurationMs, &r.CreatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return r, err
	}
	if compiles.Valid {
		v := compiles.Bool
		r.Compiles = &v
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first, without result payloads.
// limit <= 0 returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetRun returns one run with its result payload.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var result sql.NullString
	r, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+`, result_json FROM runs WHERE id = ?`, id), &result)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	if result.Valid && result.String != "" {
		r.Result = json.RawMessage(result.String)
	}
	return &r, nil
}

// ListAudits returns the audit passes of a run in order.
func (s *Store) ListAudits(ctx context.Context, runID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pass, report_json FROM audits WHERE run_id = ? ORDER BY pass`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var data string
		if err := rows.Scan(&e.Pass, &data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &e.Report); err != nil {
			return nil, fmt.Errorf("corrupt audit report for run %s pass %d: %w", runID, e.Pass, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns summary statistics over all runs.
func (s *Store) Stats(ctx context.Context) (*RunStats, error) {
	stats := &RunStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN approved THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN compiles THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN status = 'completed' THEN iterations END), 0)
		FROM runs`).Scan(
		&stats.TotalRuns,
		&stats.Completed,
		&stats.Failed,
		&stats.Approved,
		&stats.Compiled,
		&stats.AvgIterations,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// DeleteRun permanently removes a run and its audits.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM audits WHERE run_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

// ClearRuns removes all history and returns the number of runs deleted.
func (s *Store) ClearRuns(ctx context.Context) (int64, error) {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM audits`); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
