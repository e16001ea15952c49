// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.yaml.in/yaml/v3"
)

// ExportEntry holds one report with its document metadata and agent
// payloads, as written to export.yaml.
type ExportEntry struct {
	DocumentID string                    `json:"document_id" yaml:"document_id"`
	RunID      string                    `json:"run_id" yaml:"run_id"`
	Title      string                    `json:"title" yaml:"title"`
	Source     string                    `json:"source" yaml:"source"`
	Score      float64                   `json:"score" yaml:"score"`
	Quality    float64                   `json:"quality" yaml:"quality"`
	Complete   bool                      `json:"complete" yaml:"complete"`
	Missing    []string                  `json:"missing,omitempty" yaml:"missing,omitempty"`
	Failures   map[string]string         `json:"failures,omitempty" yaml:"failures,omitempty"`
	Results    map[string]map[string]any `json:"results" yaml:"results"`
	FinishedAt time.Time                 `json:"finished_at" yaml:"finished_at"`
}

// ExportYAML writes every report (optionally restricted to one run) to
// dir/export.yaml.
func (s *Store) ExportYAML(ctx context.Context, runID string) error {
	entries, err := s.exportEntries(ctx, runID)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	path := filepath.Join(s.dir, "export.yaml")
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) exportEntries(ctx context.Context, runID string) ([]ExportEntry, error) {
	query := `SELECT r.document_id, r.run_id, d.title, d.source, d.score,
			r.quality, r.complete, r.missing, r.failures, r.finished_at
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
		return nil, fmt.Errorf("querying for export: %w", err)
	}
	defer rows.Close()

	var entries []ExportEntry
	for rows.Next() {
		var (
			e            ExportEntry
			complete     int
			missingJSON  sql.NullString
			failuresJSON sql.NullString
			finishedAt   string
		)
		if err := rows.Scan(&e.DocumentID, &e.RunID, &e.Title, &e.Source, &e.Score,
			&e.Quality, &complete, &missingJSON, &failuresJSON, &finishedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		e.Complete = complete == 1
		if missingJSON.Valid {
			json.Unmarshal([]byte(missingJSON.String), &e.Missing)
		}
		if failuresJSON.Valid {
			json.Unmarshal([]byte(failuresJSON.String), &e.Failures)
		}
		e.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		results, err := s.resultsFor(ctx, entries[i].DocumentID)
		if err != nil {
			return nil, err
		}
		entries[i].Results = results
	}
	return entries, nil
}

func (s *Store) resultsFor(ctx context.Context, docID string) (map[string]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, payload FROM results WHERE document_id = ?`, docID)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[string]any)
	for rows.Next() {
		var agentID, payloadJSON string
		if err := rows.Scan(&agentID, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		var payload map[string]any
		json.Unmarshal([]byte(payloadJSON), &payload)
		out[agentID] = payload
	}
	return out, rows.Err()
}
