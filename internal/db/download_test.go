package db_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/coursesync/internal/course"
	"github.com/wesm/coursesync/internal/db"
	"github.com/wesm/coursesync/internal/dbtest"
)

func TestDownloadProgress_Replace(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	ctx := context.Background()

	require.NoError(t, d.ReplaceDownloadProgress(ctx, []db.DownloadProgress{
		{EntryID: entry1, BytesToDownload: 1000, BytesDownloaded: 1000, Progress: 1},
		{EntryID: entry2, BytesToDownload: 50},
	}))
	require.NoError(t, d.ReplaceDownloadProgress(ctx, []db.DownloadProgress{
		{EntryID: entry1, BytesToDownload: 1000, BytesDownloaded: 750, Progress: 0.75},
	}))

	got, err := d.ListDownloadProgress(ctx)
	require.NoError(t, err)
	want := []db.DownloadProgress{
		{EntryID: entry1, BytesToDownload: 1000, BytesDownloaded: 750, Progress: 0.75},
		{EntryID: entry2, BytesToDownload: 50},
	}
	opt := cmpopts.IgnoreFields(db.DownloadProgress{}, "UpdatedAt")
	if diff := cmp.Diff(want, got, opt); diff != "" {
		t.Errorf("download progress mismatch (-want +got):\n%s", diff)
	}
}

func TestDownloadProgress_EmptyIsNotNil(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	got, err := d.ListDownloadProgress(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSyncResult_Lifecycle(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	ctx := context.Background()

	res, err := d.GetSyncResult(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.RunID)
	assert.Equal(t, []string{}, res.CourseIDs)

	require.NoError(t, d.StartRun(ctx, "run-1", []string{"1", "2"}))
	require.NoError(t, d.SaveResult(ctx, true, "network lost"))

	res, err = d.GetSyncResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.True(t, res.IsFinished)
	assert.Equal(t, "network lost", res.Error)
	assert.Equal(t, []string{"1", "2"}, res.CourseIDs)
	assert.NotEmpty(t, res.UpdatedAt)

	require.NoError(t, d.StartRun(ctx, "run-2", nil))
	res, err = d.GetSyncResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", res.RunID)
	assert.False(t, res.IsFinished)
	assert.Empty(t, res.Error)
	assert.Equal(t, []string{}, res.CourseIDs)
}

func TestSyncResult_SaveWithoutRun(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	ctx := context.Background()

	require.NoError(t, d.SaveResult(ctx, false, ""))
	res, err := d.GetSyncResult(ctx)
	require.NoError(t, err)
	assert.False(t, res.IsFinished)
	assert.Empty(t, res.RunID)
	assert.Equal(t, []string{}, res.CourseIDs)
}

func TestDownloadProgress_RejectsNegativeSize(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	err := d.ReplaceDownloadProgress(context.Background(), []db.DownloadProgress{
		{EntryID: entry1, BytesToDownload: -1},
	})
	assert.ErrorIs(t, err, course.ErrNegativeSize)
}

func TestReplaceRun(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	ctx := context.Background()

	dbtest.SeedState(t, d, course.Failed(), course.CourseSelection(entry2))
	require.NoError(t, d.ReplaceDownloadProgress(ctx, []db.DownloadProgress{
		{EntryID: entry2, BytesToDownload: 50},
	}))
	require.NoError(t, d.StartRun(ctx, "run-1", []string{"2"}))

	run := db.NewRun{
		RunID:     "run-2",
		CourseIDs: []string{"1"},
		States: []db.StateProgress{{
			ID: entry1, Selection: course.CourseSelection(entry1),
			State: course.Loading(),
		}},
		Downloads: []db.DownloadProgress{{EntryID: entry1, BytesToDownload: 10}},
	}
	require.NoError(t, d.ReplaceRun(ctx, run))

	states, err := d.ListStateProgress(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, entry1, states[0].ID)

	downloads, err := d.ListDownloadProgress(ctx)
	require.NoError(t, err)
	require.Len(t, downloads, 1)
	assert.Equal(t, entry1, downloads[0].EntryID)

	res, err := d.GetSyncResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", res.RunID)
	assert.Equal(t, []string{"1"}, res.CourseIDs)
}

func TestReplaceRun_InvalidInputKeepsPreviousRun(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	ctx := context.Background()
	require.NoError(t, d.StartRun(ctx, "run-1", []string{"2"}))

	err := d.ReplaceRun(ctx, db.NewRun{
		RunID:     "run-2",
		Downloads: []db.DownloadProgress{{EntryID: entry1, BytesToDownload: -5}},
	})
	assert.ErrorIs(t, err, course.ErrNegativeSize)

	res, err := d.GetSyncResult(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
}
