// Package dbtest provides helpers for tests that need a
// progress database.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/wesm/coursesync/internal/course"
	"github.com/wesm/coursesync/internal/db"
)

// OpenTestDB opens a fresh database in a temp dir and closes
// it when the test ends.
func OpenTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// SeedState writes one state row per selection, all with the
// given state.
func SeedState(
	t *testing.T, d *db.DB, state course.DownloadState,
	sels ...course.Selection,
) {
	t.Helper()
	rows := make([]db.StateProgress, len(sels))
	for i, s := range sels {
		rows[i] = db.StateProgress{ID: s.Key(), Selection: s, State: state}
	}
	if err := d.UpsertStateProgress(context.Background(), rows...); err != nil {
		t.Fatalf("seeding state progress: %v", err)
	}
}
