package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/coursesync/internal/course"
)

func TestBus_PostIsSynchronousAndOrdered(t *testing.T) {
	b := NewBus()
	var got []string
	b.Observe(OfflineSyncCancelled, func(Event) { got = append(got, "first") })
	b.Observe(OfflineSyncCancelled, func(Event) { got = append(got, "second") })
	b.Observe(OfflineSyncTriggered, func(Event) { got = append(got, "other") })

	b.Post(Event{Name: OfflineSyncCancelled})

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestBus_CancelObservation(t *testing.T) {
	b := NewBus()
	calls := 0
	stop := b.Observe(OfflineSyncCancelled, func(Event) { calls++ })
	keep := 0
	b.Observe(OfflineSyncCancelled, func(Event) { keep++ })

	b.Post(Event{Name: OfflineSyncCancelled})
	stop()
	stop()
	b.Post(Event{Name: OfflineSyncCancelled})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, keep)
}

func TestBus_ObserversGetCopies(t *testing.T) {
	b := NewBus()
	entries := []course.Entry{{
		ID:   "courses/1",
		Tabs: []course.Tab{{ID: "courses/1/tabs/pages", Type: course.TabPages}},
	}}

	var got []course.Entry
	b.Observe(OfflineSyncTriggered, func(ev Event) {
		ev.Entries[0].Tabs[0].State = course.Failed()
		got = ev.Entries
	})
	b.Post(Event{Name: OfflineSyncTriggered, Entries: entries})

	require.Len(t, got, 1)
	assert.True(t, got[0].Tabs[0].State.IsError())
	assert.True(t, entries[0].Tabs[0].State.IsLoading())
}
