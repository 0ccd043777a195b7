package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/wesm/coursesync/internal/course"
	"github.com/wesm/coursesync/internal/db"
)

// Writer ingests progress reported by the download executor
// and persists it.
type Writer struct {
	db       *db.DB
	newRunID func() (string, error)
}

// NewWriter returns a writer backed by d.
func NewWriter(d *db.DB) *Writer {
	return &Writer{db: d, newRunID: newRunID}
}

func newRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// SaveStateProgress records the state of one node. Writing the
// same id and selection again replaces the earlier state.
func (w *Writer) SaveStateProgress(
	ctx context.Context, id string, sel course.Selection,
	state course.DownloadState,
) error {
	return w.db.UpsertStateProgress(ctx, db.StateProgress{
		ID: id, Selection: sel, State: state,
	})
}

// DownloadProgressOf computes the byte rollup of one course
// over its selected files.
func DownloadProgressOf(e course.Entry) db.DownloadProgress {
	p := db.DownloadProgress{EntryID: e.ID}
	for _, f := range e.SelectedFiles() {
		size := max(f.BytesToDownload, 0)
		p.BytesToDownload += size
		p.BytesDownloaded += int64(float64(size) * f.State.Fraction())
	}
	if p.BytesToDownload > 0 {
		p.Progress = float64(p.BytesDownloaded) / float64(p.BytesToDownload)
	}
	return p
}

// SaveDownloadProgress replaces the byte rollup of every
// course in entries.
func (w *Writer) SaveDownloadProgress(
	ctx context.Context, entries []course.Entry,
) error {
	rows := make([]db.DownloadProgress, len(entries))
	for i, e := range entries {
		rows[i] = DownloadProgressOf(e)
	}
	return w.db.ReplaceDownloadProgress(ctx, rows)
}

// SetInitialLoadingState marks each course and its selected
// tabs and files as loading, skipping anything already
// downloaded, and starts a new run. It returns the run id.
func (w *Writer) SetInitialLoadingState(
	ctx context.Context, entries []course.Entry,
) (string, error) {
	rows, courseIDs := initialLoadingRows(entries)
	runID, err := w.newRunID()
	if err != nil {
		return "", fmt.Errorf("generating run id: %w", err)
	}
	if len(rows) > 0 {
		if err := w.db.UpsertStateProgress(ctx, rows...); err != nil {
			return "", err
		}
	}
	if err := w.db.StartRun(ctx, runID, courseIDs); err != nil {
		return "", err
	}
	slog.Info("sync run started",
		"run_id", runID, "courses", len(entries), "nodes", len(rows))
	return runID, nil
}

// StartRun forgets earlier runs, marks entries loading and
// records their byte rollups in one transaction. It returns
// the run id.
func (w *Writer) StartRun(
	ctx context.Context, entries []course.Entry,
) (string, error) {
	rows, courseIDs := initialLoadingRows(entries)
	runID, err := w.newRunID()
	if err != nil {
		return "", fmt.Errorf("generating run id: %w", err)
	}
	downloads := make([]db.DownloadProgress, len(entries))
	for i, e := range entries {
		downloads[i] = DownloadProgressOf(e)
	}
	err = w.db.ReplaceRun(ctx, db.NewRun{
		RunID:     runID,
		CourseIDs: courseIDs,
		States:    rows,
		Downloads: downloads,
	})
	if err != nil {
		return "", err
	}
	slog.Info("sync run started",
		"run_id", runID, "courses", len(entries), "nodes", len(rows))
	return runID, nil
}

func initialLoadingRows(
	entries []course.Entry,
) ([]db.StateProgress, []string) {
	var rows []db.StateProgress
	add := func(id string, sel course.Selection, s course.DownloadState) {
		if s.IsDownloaded() {
			return
		}
		rows = append(rows, db.StateProgress{
			ID: id, Selection: sel, State: course.Loading(),
		})
	}

	courseIDs := make([]string, 0, len(entries))
	for _, e := range entries {
		courseIDs = append(courseIDs, e.CourseID())
		add(e.ID, course.CourseSelection(e.ID), e.State)
		for _, t := range e.Tabs {
			if t.SelectionState.IsAny() {
				add(t.ID, course.TabSelection(e.ID, t.ID), t.State)
			}
		}
		for _, f := range e.SelectedFiles() {
			add(f.ID, course.FileSelection(e.ID, f.ID), f.State)
		}
	}
	return rows, courseIDs
}

// CleanUpPreviousDownloadProgress forgets everything recorded
// by earlier runs.
func (w *Writer) CleanUpPreviousDownloadProgress(ctx context.Context) error {
	return w.db.ClearProgress(ctx)
}

// SaveDownloadResult records the outcome of the current run.
func (w *Writer) SaveDownloadResult(
	ctx context.Context, finished bool, errMsg string,
) error {
	return w.db.SaveResult(ctx, finished, errMsg)
}

// MarkInProgressDownloadsAsFailed turns every loading node
// into an error. It is used when a run was interrupted.
func (w *Writer) MarkInProgressDownloadsAsFailed(
	ctx context.Context,
) (int64, error) {
	n, err := w.db.FailLoadingStates(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Warn("interrupted downloads marked failed", "nodes", n)
	}
	return n, nil
}

// CleanCourses removes persisted progress for the given
// courses and returns the number of state rows removed.
func (w *Writer) CleanCourses(
	ctx context.Context, entryIDs []string,
) (int64, error) {
	return w.db.DeleteCourseProgress(ctx, entryIDs)
}
