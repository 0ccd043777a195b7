package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wesm/coursesync/internal/course"
)

// DownloadProgress is the byte rollup for one course.
type DownloadProgress struct {
	EntryID         string  `json:"entry_id"`
	BytesToDownload int64   `json:"bytes_to_download"`
	BytesDownloaded int64   `json:"bytes_downloaded"`
	Progress        float64 `json:"progress"`
	UpdatedAt       string  `json:"updated_at,omitempty"`
}

// ReplaceDownloadProgress rewrites the rows of the given
// courses in one transaction. Rows of other courses are left
// alone.
func (db *DB) ReplaceDownloadProgress(
	ctx context.Context, rows []DownloadProgress,
) error {
	if err := validateDownloads(rows); err != nil {
		return err
	}
	return db.Update(ctx, func(tx *sql.Tx) error {
		return replaceDownloadTx(ctx, tx, rows)
	})
}

func validateDownloads(rows []DownloadProgress) error {
	for _, r := range rows {
		if r.BytesToDownload < 0 || r.BytesDownloaded < 0 {
			return fmt.Errorf(
				"download progress %s: %w", r.EntryID, course.ErrNegativeSize,
			)
		}
	}
	return nil
}

func replaceDownloadTx(
	ctx context.Context, tx *sql.Tx, rows []DownloadProgress,
) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO download_progress
			(entry_id, bytes_to_download, bytes_downloaded,
			 progress, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET
			bytes_to_download = excluded.bytes_to_download,
			bytes_downloaded = excluded.bytes_downloaded,
			progress = excluded.progress,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	ts := now()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.EntryID, r.BytesToDownload, r.BytesDownloaded,
			r.Progress, ts,
		); err != nil {
			return fmt.Errorf(
				"writing download progress %s: %w", r.EntryID, err,
			)
		}
	}
	return nil
}

// ListDownloadProgress returns every course rollup in
// insertion order.
func (db *DB) ListDownloadProgress(
	ctx context.Context,
) ([]DownloadProgress, error) {
	rows, err := db.reader.QueryContext(ctx, `
		SELECT entry_id, bytes_to_download, bytes_downloaded,
			progress, updated_at
		FROM download_progress
		ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("querying download progress: %w", err)
	}
	defer rows.Close()

	out := []DownloadProgress{}
	for rows.Next() {
		var r DownloadProgress
		if err := rows.Scan(
			&r.EntryID, &r.BytesToDownload, &r.BytesDownloaded,
			&r.Progress, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf(
				"scanning download progress: %w", err,
			)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SyncResult is the outcome of the current or last sync run.
type SyncResult struct {
	RunID      string   `json:"run_id"`
	IsFinished bool     `json:"is_finished"`
	Error      string   `json:"error,omitempty"`
	CourseIDs  []string `json:"course_ids"`
	UpdatedAt  string   `json:"updated_at,omitempty"`
}

// StartRun resets the sync result for a new run over the
// given courses.
func (db *DB) StartRun(
	ctx context.Context, runID string, courseIDs []string,
) error {
	return db.Update(ctx, func(tx *sql.Tx) error {
		return startRunTx(ctx, tx, runID, courseIDs)
	})
}

// NewRun is everything recorded when a run begins.
type NewRun struct {
	RunID     string
	CourseIDs []string
	States    []StateProgress
	Downloads []DownloadProgress
}

// ReplaceRun forgets every earlier run and records run, all in
// one transaction, so observers never see the store empty.
func (db *DB) ReplaceRun(ctx context.Context, run NewRun) error {
	if err := validateStates(run.States); err != nil {
		return err
	}
	if err := validateDownloads(run.Downloads); err != nil {
		return err
	}
	return db.Update(ctx, func(tx *sql.Tx) error {
		if err := clearProgressTx(ctx, tx); err != nil {
			return err
		}
		if err := upsertStateTx(ctx, tx, run.States); err != nil {
			return err
		}
		if err := replaceDownloadTx(ctx, tx, run.Downloads); err != nil {
			return err
		}
		return startRunTx(ctx, tx, run.RunID, run.CourseIDs)
	})
}

func startRunTx(
	ctx context.Context, tx *sql.Tx, runID string, courseIDs []string,
) error {
	if courseIDs == nil {
		courseIDs = []string{}
	}
	ids, err := json.Marshal(courseIDs)
	if err != nil {
		return fmt.Errorf("encoding course ids: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_result
			(id, run_id, is_finished, error, course_ids, updated_at)
		VALUES (1, ?, 0, NULL, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			run_id = excluded.run_id,
			is_finished = 0,
			error = NULL,
			course_ids = excluded.course_ids,
			updated_at = excluded.updated_at`,
		runID, string(ids), now(),
	)
	if err != nil {
		return fmt.Errorf("starting run: %w", err)
	}
	return nil
}

// SaveResult records whether the run finished and its error
// message, if any. The run id and course ids are kept.
func (db *DB) SaveResult(
	ctx context.Context, finished bool, errMsg string,
) error {
	var msg any
	if errMsg != "" {
		msg = errMsg
	}
	return db.Update(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_result (id, is_finished, error, updated_at)
			VALUES (1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				is_finished = excluded.is_finished,
				error = excluded.error,
				updated_at = excluded.updated_at`,
			finished, msg, now(),
		)
		if err != nil {
			return fmt.Errorf("saving result: %w", err)
		}
		return nil
	})
}

// GetSyncResult returns the stored result, or a zero value
// when no run was recorded.
func (db *DB) GetSyncResult(ctx context.Context) (SyncResult, error) {
	var (
		r      SyncResult
		errMsg sql.NullString
		ids    string
	)
	err := db.reader.QueryRowContext(ctx, `
		SELECT run_id, is_finished, error, course_ids, updated_at
		FROM sync_result WHERE id = 1`,
	).Scan(&r.RunID, &r.IsFinished, &errMsg, &ids, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncResult{CourseIDs: []string{}}, nil
	}
	if err != nil {
		return SyncResult{}, fmt.Errorf("querying sync result: %w", err)
	}
	r.Error = errMsg.String
	if err := json.Unmarshal([]byte(ids), &r.CourseIDs); err != nil {
		return SyncResult{}, fmt.Errorf("decoding course ids: %w", err)
	}
	if r.CourseIDs == nil {
		r.CourseIDs = []string{}
	}
	return r, nil
}
