package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jandubois/healthmon/internal/probe"
	"github.com/jandubois/healthmon/internal/snapshot"
)

// ErrNoSnapshot is returned when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot saved")

// SnapshotWriter persists every committed snapshot, replacing the previous one.
type SnapshotWriter struct {
	db *DB
}

// NewSnapshotWriter creates a writer backed by database.
func NewSnapshotWriter(database *DB) *SnapshotWriter {
	return &SnapshotWriter{db: database}
}

// Name identifies the writer in logs.
func (w *SnapshotWriter) Name() string {
	return "sqlite"
}

// Observe stores next.
func (w *SnapshotWriter) Observe(ctx context.Context, _, next *snapshot.Snapshot) error {
	return w.db.SaveSnapshot(ctx, next)
}

// SaveSnapshot replaces the stored snapshot with snap in one transaction.
func (d *DB) SaveSnapshot(ctx context.Context, snap *snapshot.Snapshot) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM service_status`); err != nil {
		return fmt.Errorf("clear service status: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO service_status (target_id, name, status, response_time_ms, status_code, error, last_checked)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for id, r := range snap.Results {
		_, err := stmt.ExecContext(ctx,
			id, r.Name, string(r.Status),
			nullInt64(r.ResponseTimeMs), nullInt(r.StatusCode), nullString(r.Error),
			formatTime(r.LastChecked),
		)
		if err != nil {
			return fmt.Errorf("insert status for %s: %w", id, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshot_meta (id, cycle_id, seq, started_at, completed_at)
		VALUES (1, ?, ?, ?, ?)
	`, snap.CycleID, int64(snap.Seq), formatTime(snap.StartedAt), formatTime(snap.CompletedAt))
	if err != nil {
		return fmt.Errorf("write snapshot meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the stored snapshot.
func (d *DB) LoadSnapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	snap := &snapshot.Snapshot{Results: make(map[string]probe.Result)}

	var seq int64
	var startedAt, completedAt NullTime
	err := d.db.QueryRowContext(ctx,
		`SELECT cycle_id, seq, started_at, completed_at FROM snapshot_meta WHERE id = 1`,
	).Scan(&snap.CycleID, &seq, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot meta: %w", err)
	}
	snap.Seq = uint64(seq)
	snap.StartedAt = startedAt.Time
	snap.CompletedAt = completedAt.Time

	rows, err := d.db.QueryContext(ctx, `
		SELECT target_id, name, status, response_time_ms, status_code, error, last_checked
		FROM service_status
		ORDER BY target_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query service status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name, status string
		var responseTime, statusCode sql.NullInt64
		var errText sql.NullString
		var lastChecked NullTime
		if err := rows.Scan(&id, &name, &status, &responseTime, &statusCode, &errText, &lastChecked); err != nil {
			return nil, fmt.Errorf("scan service status: %w", err)
		}

		r := probe.Result{
			Status:      probe.Status(status),
			Name:        name,
			LastChecked: lastChecked.Time,
		}
		if responseTime.Valid {
			ms := responseTime.Int64
			r.ResponseTimeMs = &ms
		}
		if statusCode.Valid {
			code := int(statusCode.Int64)
			r.StatusCode = &code
		}
		if errText.Valid {
			text := errText.String
			r.Error = &text
		}
		snap.Results[id] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service status: %w", err)
	}

	return snap, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
