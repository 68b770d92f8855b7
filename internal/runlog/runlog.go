/*
Copyright © 2020 A. Jensen <jensen.aaro@gmail.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package runlog records every pipeline run and the files it produced in a local sqlite
// database.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"
	"os"
	"path/filepath"
	"time"

	"github.com/ajjensen13/crsppanel/internal/load"
	"github.com/ajjensen13/crsppanel/internal/util"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

const timeLayout = time.RFC3339Nano

type Run struct {
	ID       int64
	Kind     string
	Params   json.RawMessage
	Status   Status
	Rows     int
	Error    string
	Started  time.Time
	Finished time.Time
	Outputs  []Output
}

type Output struct {
	Variable string
	Path     string
	Type     string
	Rows     int
	Cols     int
	Skipped  string
}

// Ledger is a handle to the run database. It is safe for concurrent use.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

func dsn(path string) string {
	return path + "?_busy_timeout=5000&_fk=1"
}

// Open opens the ledger at path. The schema must already be migrated.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for run ledger %s: %w", path, err)
	}
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open run ledger %s: %w", path, err)
	}
	ctx, cancel := context.WithTimeout(ctx, util.ShortReqTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping run ledger %s: %w", path, err)
	}
	return New(db), nil
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Migrator returns a migrator for the ledger at path using migrations from sourceURL.
func Migrator(sourceURL, path string) (*migrate.Migrate, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory for run ledger %s: %w", path, err)
	}
	m, err := migrate.New(sourceURL, "sqlite3://"+dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create run ledger migrator: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration. An up to date schema is not an error.
func MigrateUp(m *migrate.Migrate) error {
	err := m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// Start records a new running job and returns its id. params is stored as JSON.
func (l *Ledger) Start(ctx context.Context, kind string, params interface{}) (int64, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s run parameters: %w", kind, err)
	}

	r, err := l.db.ExecContext(ctx, `INSERT INTO job_run (kind, params, status, started) VALUES (?, ?, ?, ?)`,
		kind, string(b), StatusRunning, l.now().UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to record %s run: %w", kind, err)
	}
	id, err := r.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read %s run id: %w", kind, err)
	}
	return id, nil
}

// detach keeps the values of ctx but not its cancellation, so a run interrupted by a signal
// is still closed out in the ledger.
func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), util.ShortReqTimeout)
}

// RecordOutputs stores outputs of run id in one transaction. It runs even when ctx is done.
func (l *Ledger) RecordOutputs(ctx context.Context, id int64, outputs []load.Output) error {
	ctx, cancel := detach(ctx)
	defer cancel()

	return util.RunTx(ctx, l.db, func(ctx context.Context, tx *sql.Tx) error {
		for _, o := range outputs {
			skipped := ""
			if o.Err != nil {
				skipped = o.Err.Error()
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO job_output (run_id, variable, path, type, row_count, col_count, skipped) VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (run_id, variable) DO UPDATE SET path = excluded.path, type = excluded.type, row_count = excluded.row_count, col_count = excluded.col_count, skipped = excluded.skipped`,
				id, o.Variable, o.Path, o.Type.String(), o.Rows, o.Cols, skipped)
			if err != nil {
				return fmt.Errorf("failed to record output %q of run %d: %w", o.Variable, id, err)
			}
		}
		return nil
	})
}

// Finish marks run id as succeeded, or failed when runErr is set. It runs even when ctx is
// done.
func (l *Ledger) Finish(ctx context.Context, id int64, rows int, runErr error) error {
	ctx, cancel := detach(ctx)
	defer cancel()

	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	r, err := l.db.ExecContext(ctx, `UPDATE job_run SET status = ?, row_count = ?, error = ?, finished = ? WHERE id = ?`,
		status, rows, msg, l.now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", id, err)
	}
	if n, err := r.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to finish run %d: %w", id, sql.ErrNoRows)
	}
	return nil
}

// Runs returns the most recent runs first, each with its outputs.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	result, err := l.runs(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range result {
		outputs, err := l.outputs(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Outputs = outputs
	}
	return result, nil
}

func (l *Ledger) runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id, kind, params, status, row_count, error, started, finished FROM job_run ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var result []Run
	for rows.Next() {
		var r Run
		var params, started string
		var finished sql.NullString
		if err := rows.Scan(&r.ID, &r.Kind, &params, &r.Status, &r.Rows, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to parse run: %w", err)
		}
		r.Params = json.RawMessage(params)
		if r.Started, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("failed to parse start of run %d: %w", r.ID, err)
		}
		if finished.Valid {
			if r.Finished, err = time.Parse(timeLayout, finished.String); err != nil {
				return nil, fmt.Errorf("failed to parse finish of run %d: %w", r.ID, err)
			}
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return result, nil
}

func (l *Ledger) outputs(ctx context.Context, id int64) ([]Output, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT variable, path, type, row_count, col_count, skipped FROM job_output WHERE run_id = ? ORDER BY variable`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query outputs of run %d: %w", id, err)
	}
	defer rows.Close()

	var result []Output
	for rows.Next() {
		var o Output
		if err := rows.Scan(&o.Variable, &o.Path, &o.Type, &o.Rows, &o.Cols, &o.Skipped); err != nil {
			return nil, fmt.Errorf("failed to parse output of run %d: %w", id, err)
		}
		result = append(result, o)
	}
	return result, rows.Err()
}
