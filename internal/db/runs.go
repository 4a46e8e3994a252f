package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AssemblyRun records one assembled ModelInput.
type AssemblyRun struct {
	RunID      string
	CreatedAt  time.Time
	ConfigJSON string
	K          int
	NCores     int
	NCells     int
	NPot       int
	OutputPath string
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }

// RecordRun stores r, assigning a run id when r.RunID is empty. It returns
// the run id.
func (db *DB) RecordRun(ctx context.Context, r AssemblyRun) (string, error) {
	if r.RunID == "" {
		r.RunID = NewRunID()
	}
	if _, err := uuid.Parse(r.RunID); err != nil {
		return "", fmt.Errorf("invalid run id %q: %w", r.RunID, err)
	}
	var out sql.NullString
	if r.OutputPath != "" {
		out = sql.NullString{String: r.OutputPath, Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO assembly_runs (run_id, config_json, k, n_cores, n_cells, n_pot, output_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.ConfigJSON, r.K, r.NCores, r.NCells, r.NPot, out)
	if err != nil {
		return "", fmt.Errorf("record run %s: %w", r.RunID, err)
	}
	return r.RunID, nil
}

// ListRuns returns up to limit runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]AssemblyRun, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT run_id, created_at, config_json, k, n_cores, n_cells, n_pot, output_path
		 FROM assembly_runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []AssemblyRun
	for rows.Next() {
		var r AssemblyRun
		var out sql.NullString
		if err := rows.Scan(&r.RunID, &r.CreatedAt, &r.ConfigJSON, &r.K, &r.NCores, &r.NCells, &r.NPot, &out); err != nil {
			return nil, err
		}
		r.OutputPath = out.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
