package sync

import (
	"context"
	"testing"
	"time"

	"github.com/wesm/coursesync/internal/course"
)

const streamTimeout = 5 * time.Second

// recv reads one value from ch or fails the test.
func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatal("stream closed")
		}
		return v
	case <-time.After(streamTimeout):
		t.Fatal("timed out waiting for stream value")
	}
	var zero T
	return zero
}

// recvUntil reads from ch until match returns true.
func recvUntil[T any](t *testing.T, ch <-chan T, match func(T) bool) T {
	t.Helper()
	deadline := time.After(streamTimeout)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				t.Fatal("stream closed before match")
			}
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching stream value")
		}
	}
}

// requireClosed drains ch and fails if it stays open.
func requireClosed[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	deadline := time.After(streamTimeout)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream not closed")
		}
	}
}

// sliceComposer emits fixed skeletons.
type sliceComposer struct {
	entries []course.Entry
	err     error
	got     []string
}

func (c *sliceComposer) Compose(
	_ context.Context, selections []string,
) (<-chan course.Entry, error) {
	c.got = selections
	if c.err != nil {
		return nil, c.err
	}
	ch := make(chan course.Entry, len(c.entries))
	for _, e := range c.entries {
		ch <- e.Clone()
	}
	close(ch)
	return ch, nil
}

type staticSelections struct {
	paths []string
	err   error
}

func (s staticSelections) OfflineSyncSelections() ([]string, error) {
	return s.paths, s.err
}

const (
	testEntryID   = "courses/course-id-1"
	testFilesTab  = "courses/course-id-1/tabs/files"
	testAssignTab = "courses/course-id-1/tabs/assignments"
	testFileID    = "courses/course-id-1/files/file-1"
)

func testSkeleton() course.Entry {
	return course.Entry{
		ID:   testEntryID,
		Name: "course-name-1",
		Tabs: []course.Tab{
			{ID: testFilesTab, Name: "tab-files", Type: course.TabFiles},
			{ID: testAssignTab, Name: "tab-assignments", Type: course.TabAssignments},
		},
		Files: []course.File{{
			ID:              testFileID,
			DisplayName:     "file-displayname",
			FileName:        "file-name",
			URL:             "https://canvas.instructure.com/files/1/download",
			MimeClass:       "image",
			BytesToDownload: 1000,
		}},
	}
}
