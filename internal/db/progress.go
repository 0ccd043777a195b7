package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/wesm/coursesync/internal/course"
)

// StateProgress is the persisted download state of one node
// of one course's sync tree. ID is the node id the writer was
// given: the entry id for a course, the tab id for a tab, the
// file id for a file.
type StateProgress struct {
	ID        string               `json:"id"`
	Selection course.Selection     `json:"selection"`
	State     course.DownloadState `json:"state"`
	UpdatedAt string               `json:"updated_at,omitempty"`
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// UpsertStateProgress writes state rows in one transaction.
// A row that already exists for the same (id, selection) is
// rewritten in place and keeps its position.
func (db *DB) UpsertStateProgress(
	ctx context.Context, rows ...StateProgress,
) error {
	if err := validateStates(rows); err != nil {
		return err
	}
	return db.Update(ctx, func(tx *sql.Tx) error {
		return upsertStateTx(ctx, tx, rows)
	})
}

func validateStates(rows []StateProgress) error {
	for _, r := range rows {
		if err := r.Selection.Validate(); err != nil {
			return fmt.Errorf("state progress %s: %w", r.ID, err)
		}
		if err := r.State.Validate(); err != nil {
			return fmt.Errorf("state progress %s: %w", r.ID, err)
		}
	}
	return nil
}

func upsertStateTx(
	ctx context.Context, tx *sql.Tx, rows []StateProgress,
) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO state_progress
			(id, kind, entry_id, item_id, status, progress, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, kind, entry_id, item_id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	ts := now()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.ID, int(r.Selection.Kind), r.Selection.EntryID,
			r.Selection.ItemID, int(r.State.Status),
			progressValue(r.State), ts,
		); err != nil {
			return fmt.Errorf(
				"upserting state progress %s: %w", r.ID, err,
			)
		}
	}
	return nil
}

func progressValue(s course.DownloadState) any {
	if s.Status != course.StatusLoading || s.Progress == nil {
		return nil
	}
	return *s.Progress
}

// ListStateProgress returns every state row in insertion
// order.
func (db *DB) ListStateProgress(
	ctx context.Context,
) ([]StateProgress, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT id, kind, entry_id, item_id, status, progress,
			updated_at
		FROM state_progress
		ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying state progress: %w", err)
	}
	defer rows.Close()

	out := []StateProgress{}
	for rows.Next() {
		var (
			r        StateProgress
			kind     int
			status   int
			progress sql.NullFloat64
		)
		if err := rows.Scan(
			&r.ID, &kind, &r.Selection.EntryID, &r.Selection.ItemID,
			&status, &progress, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning state progress: %w", err)
		}
		r.Selection.Kind = course.SelectionKind(kind)
		if err := r.Selection.Validate(); err != nil {
			return nil, fmt.Errorf("state progress %s: %w", r.ID, err)
		}
		r.State.Status = course.Status(status)
		if !r.State.Status.IsValid() {
			return nil, fmt.Errorf(
				"state progress %s: %w: %d",
				r.ID, course.ErrUnknownStatus, status,
			)
		}
		if progress.Valid && r.State.Status == course.StatusLoading {
			p := progress.Float64
			r.State.Progress = &p
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// FailLoadingStates flips every loading row to error and
// reports how many rows changed.
func (db *DB) FailLoadingStates(ctx context.Context) (int64, error) {
	var n int64
	err := db.Update(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE state_progress
			SET status = ?, progress = NULL, updated_at = ?
			WHERE status = ?`,
			int(course.StatusError), now(), int(course.StatusLoading),
		)
		if err != nil {
			return fmt.Errorf("failing loading states: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// ClearProgress removes every state row, download row and the
// sync result.
func (db *DB) ClearProgress(ctx context.Context) error {
	return db.Update(ctx, func(tx *sql.Tx) error {
		return clearProgressTx(ctx, tx)
	})
}

func clearProgressTx(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{
		"state_progress", "download_progress", "sync_result",
	} {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table,
		); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}

// DeleteCourseProgress removes state and download rows that
// belong to the given entry ids. It returns the number of
// state rows removed.
func (db *DB) DeleteCourseProgress(
	ctx context.Context, entryIDs []string,
) (int64, error) {
	if len(entryIDs) == 0 {
		return 0, nil
	}
	ph := strings.TrimSuffix(strings.Repeat("?,", len(entryIDs)), ",")
	args := make([]any, len(entryIDs))
	for i, id := range entryIDs {
		args[i] = id
	}

	var n int64
	err := db.Update(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM state_progress WHERE entry_id IN ("+ph+")",
			args...,
		)
		if err != nil {
			return fmt.Errorf("deleting state progress: %w", err)
		}
		if n, err = res.RowsAffected(); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM download_progress WHERE entry_id IN ("+ph+")",
			args...,
		); err != nil {
			return fmt.Errorf("deleting download progress: %w", err)
		}
		return nil
	})
	return n, err
}
