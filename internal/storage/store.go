// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package storage persists extraction reports to SQLite and serves the
// report CLI command. The database holds triage runs, curated documents,
// per-agent results, and assembled reports, with an FTS5 index over result
// payloads for full-text lookup.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/pdiddy/litriage/pkg/types"
)

const dbFile = "litriage.db"

// ackRetryBase is the first delay before retrying a busy/locked write; each
// retry doubles it. Overridden in tests.
var ackRetryBase = 100 * time.Millisecond

// ackRetries bounds retries of a write that SQLite refused with busy or
// locked. Other errors are not retried.
const ackRetries = 3

// Store manages the report database.
type Store struct {
	db  *sql.DB
	dir string
}

// NewStore opens or creates the report database at dir/litriage.db,
// creating the schema if it does not exist.
func NewStore(cfg types.StorageConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Dir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dir: cfg.Dir}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES runs(id),
			source TEXT,
			native_id TEXT,
			title TEXT,
			score REAL,
			confidence REAL,
			cluster_size INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_run_id ON documents(run_id)`,
		`CREATE TABLE IF NOT EXISTS results (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			document_id TEXT NOT NULL REFERENCES documents(id),
			agent_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			confidence REAL,
			UNIQUE(document_id, agent_id)
		)`,
		`CREATE TABLE IF NOT EXISTS reports (
			document_id TEXT PRIMARY KEY REFERENCES documents(id),
			run_id TEXT NOT NULL,
			quality REAL,
			complete INTEGER,
			missing TEXT,
			failures TEXT,
			finished_at TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='results_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE results_fts USING fts5(payload, content=results, content_rowid=rowid)`,
			`CREATE TRIGGER results_ai AFTER INSERT ON results BEGIN
				INSERT INTO results_fts(rowid, payload) VALUES (new.rowid, new.payload);
			END`,
			`CREATE TRIGGER results_ad AFTER DELETE ON results BEGIN
				INSERT INTO results_fts(results_fts, rowid, payload) VALUES('delete', old.rowid, old.payload);
			END`,
			`CREATE TRIGGER results_au AFTER UPDATE ON results BEGIN
				INSERT INTO results_fts(results_fts, rowid, payload) VALUES('delete', old.rowid, old.payload);
				INSERT INTO results_fts(rowid, payload) VALUES (new.rowid, new.payload);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// SaveReport persists the document, its agent results, and the assembled
// report in one transaction. Writes refused with SQLITE_BUSY or
// SQLITE_LOCKED are retried with a doubled delay; any other error aborts.
func (s *Store) SaveReport(ctx context.Context, report types.DocumentExtractionReport, doc types.CuratedDocument) error {
	delay := ackRetryBase
	var err error
	for attempt := 0; attempt <= ackRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}
		if err = s.saveReportOnce(ctx, report, doc); err == nil || !isBusy(err) {
			return err
		}
	}
	return fmt.Errorf("saving report for %s: retries exhausted: %w", report.DocumentID, err)
}

func (s *Store) saveReportOnce(ctx context.Context, report types.DocumentExtractionReport, doc types.CuratedDocument) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (id, created_at) VALUES (?, ?)`,
		report.RunID, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, run_id, source, native_id, title, score, confidence, cluster_size)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			run_id=excluded.run_id, source=excluded.source, native_id=excluded.native_id,
			title=excluded.title, score=excluded.score, confidence=excluded.confidence,
			cluster_size=excluded.cluster_size`,
		report.DocumentID, report.RunID, doc.Record.Source, doc.Record.NativeID,
		doc.Record.Title, doc.Score.Total, doc.Classification.Confidence, doc.ClusterSize,
	); err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM results WHERE document_id = ?`, report.DocumentID,
	); err != nil {
		return fmt.Errorf("deleting old results: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (document_id, agent_id, payload, confidence) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for agentID, res := range report.Results {
		payloadJSON, err := json.Marshal(res.Payload)
		if err != nil {
			return fmt.Errorf("marshaling payload for %s: %w", agentID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			report.DocumentID, agentID, string(payloadJSON), res.Confidence,
		); err != nil {
			return fmt.Errorf("inserting result %s: %w", agentID, err)
		}
	}

	missingJSON, _ := json.Marshal(report.Missing)
	failuresJSON, _ := json.Marshal(report.Failures)
	complete := 0
	if report.Complete {
		complete = 1
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reports (document_id, run_id, quality, complete, missing, failures, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(document_id) DO UPDATE SET
			run_id=excluded.run_id, quality=excluded.quality, complete=excluded.complete,
			missing=excluded.missing, failures=excluded.failures, finished_at=excluded.finished_at`,
		report.DocumentID, report.RunID, report.Quality, complete,
		string(missingJSON), string(failuresJSON),
		report.FinishedAt.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("upserting report: %w", err)
	}

	return tx.Commit()
}

// isBusy reports whether err is a SQLite busy or locked refusal.
func isBusy(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}

// ReportSummary is one row of the report listing.
type ReportSummary struct {
	DocumentID string    `json:"document_id" yaml:"document_id"`
	RunID      string    `json:"run_id" yaml:"run_id"`
	Title      string    `json:"title" yaml:"title"`
	Quality    float64   `json:"quality" yaml:"quality"`
	Complete   bool      `json:"complete" yaml:"complete"`
	Missing    []string  `json:"missing,omitempty" yaml:"missing,omitempty"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// ListReports returns report summaries, newest run first within quality
// order. An empty runID lists every run.
func (s *Store) ListReports(ctx context.Context, runID string) ([]ReportSummary, error) {
	query := `SELECT r.document_id, r.run_id, d.title, r.quality, r.complete, r.missing, r.finished_at
		FROM reports r
		JOIN documents d ON d.id = r.document_id`
	var args []any
	if runID != "" {
		query += ` WHERE r.run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY r.quality DESC, r.document_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close()

	var out []ReportSummary
	for rows.Next() {
		var (
			sum         ReportSummary
			complete    int
			missingJSON sql.NullString
			finishedAt  string
		)
		if err := rows.Scan(&sum.DocumentID, &sum.RunID, &sum.Title,
			&sum.Quality, &complete, &missingJSON, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		sum.Complete = complete == 1
		if missingJSON.Valid {
			json.Unmarshal([]byte(missingJSON.String), &sum.Missing)
		}
		sum.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// SearchHit is one full-text match over stored agent payloads.
type SearchHit struct {
	DocumentID string         `json:"document_id" yaml:"document_id"`
	AgentID    string         `json:"agent_id" yaml:"agent_id"`
	Title      string         `json:"title" yaml:"title"`
	Payload    map[string]any `json:"payload" yaml:"payload"`
}

// SearchPayloads runs an FTS5 query over agent payloads, ranked by
// relevance.
func (s *Store) SearchPayloads(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT res.document_id, res.agent_id, d.title, res.payload
		FROM results_fts
		JOIN results res ON res.rowid = results_fts.rowid
		JOIN documents d ON d.id = res.document_id
		WHERE results_fts MATCH ?
		ORDER BY results_fts.rank
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("searching payloads: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var (
			hit         SearchHit
			payloadJSON string
		)
		if err := rows.Scan(&hit.DocumentID, &hit.AgentID, &hit.Title, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		json.Unmarshal([]byte(payloadJSON), &hit.Payload)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
