package notify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesm/coursesync/internal/course"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("executor tests use sh")
	}
}

func TestNewExecHook(t *testing.T) {
	h, err := NewExecHook(`sh -c "cat > 'out file.json'"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"sh", "-c", "cat > 'out file.json'"}, h.argv)

	_, err = NewExecHook("   ")
	assert.Error(t, err)
}

func TestExecHook_WritesEntriesToStdin(t *testing.T) {
	skipOnWindows(t)
	out := filepath.Join(t.TempDir(), "entries.json")
	h, err := NewExecHook(`sh -c "cat > ` + out + `"`)
	require.NoError(t, err)

	bus := NewBus()
	detach := h.Attach(bus)
	defer detach()

	e := course.Entry{ID: "courses/1", Name: "Biology"}
	e.SelectCourse(course.Selected)
	bus.Post(Event{Name: OfflineSyncTriggered, Entries: []course.Entry{e}})
	h.Wait()

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var got []course.Entry
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, "courses/1", got[0].ID)
	assert.Equal(t, course.Selected, got[0].SelectionState())
}

func TestExecHook_CancelKillsCommand(t *testing.T) {
	skipOnWindows(t)
	h, err := NewExecHook("sleep 30")
	require.NoError(t, err)

	bus := NewBus()
	detach := h.Attach(bus)
	defer detach()

	bus.Post(Event{Name: OfflineSyncTriggered})

	stopped := make(chan struct{})
	go func() {
		bus.Post(Event{Name: OfflineSyncCancelled})
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("cancel did not stop the executor")
	}
	h.Wait()
}

func TestExecHook_ConcurrentStartsLeaveOneRun(t *testing.T) {
	skipOnWindows(t)
	h, err := NewExecHook("sleep 30")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Start(nil)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), h.live.Load(), "runs left after concurrent starts")

	stopped := make(chan struct{})
	go func() {
		h.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return")
	}
	assert.Equal(t, int32(0), h.live.Load(), "runs survived stop")
}
