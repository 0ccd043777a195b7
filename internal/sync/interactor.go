package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wesm/coursesync/internal/course"
	"github.com/wesm/coursesync/internal/db"
	"github.com/wesm/coursesync/internal/notify"
)

// EntryComposer turns the course listing into unselected
// entry skeletons, one per course, closing the channel when
// the listing is exhausted.
type EntryComposer interface {
	Compose(ctx context.Context, selections []string) (<-chan course.Entry, error)
}

// SelectionSource returns the persisted opt-in paths.
type SelectionSource interface {
	OfflineSyncSelections() ([]string, error)
}

// StateProgressSource streams persisted node states.
type StateProgressSource interface {
	ObserveStateProgress(ctx context.Context) <-chan []db.StateProgress
}

// Interactor keeps the entry list the UI renders: the
// composed selection tree with live download states merged in.
type Interactor struct {
	composer   EntryComposer
	selections SelectionSource
	progress   StateProgressSource
	bus        *notify.Bus

	mu      sync.Mutex
	entries []course.Entry
	// owner is the session whose list is in entries, and merged
	// whether that list has seen a state snapshot.
	owner       int
	merged      bool
	nextSession int
}

// NewInteractor wires an interactor from its collaborators.
func NewInteractor(
	composer EntryComposer, selections SelectionSource,
	progress StateProgressSource, bus *notify.Bus,
) *Interactor {
	return &Interactor{
		composer:   composer,
		selections: selections,
		progress:   progress,
		bus:        bus,
	}
}

// ObserveEntries composes the selected entries once, emits
// them with every node loading, then emits the merged list
// again for every state snapshot. The channel closes when ctx
// ends or the progress stream closes.
func (i *Interactor) ObserveEntries(
	ctx context.Context,
) (<-chan []course.Entry, error) {
	paths, err := i.selections.OfflineSyncSelections()
	if err != nil {
		return nil, fmt.Errorf("reading selections: %w", err)
	}
	skeletons, err := i.composer.Compose(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("composing entries: %w", err)
	}

	i.mu.Lock()
	i.nextSession++
	session := i.nextSession
	i.mu.Unlock()

	out := make(chan []course.Entry)
	go func() {
		defer close(out)
		defer i.release(session)

		skels, ok := drain(ctx, skeletons)
		if !ok {
			return
		}
		current := course.ApplySelections(skels, paths)
		if current == nil {
			current = []course.Entry{}
		}
		slog.Debug("entries composed",
			"courses", len(current), "selections", len(paths))
		if !i.emit(ctx, out, session, current, false) {
			return
		}

		states := i.progress.ObserveStateProgress(ctx)
		for {
			select {
			case rows, ok := <-states:
				if !ok {
					return
				}
				MergeStates(current, rows)
				if !i.emit(ctx, out, session, current, true) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// drain collects every skeleton. It reports false if ctx ended
// first.
func drain(
	ctx context.Context, in <-chan course.Entry,
) ([]course.Entry, bool) {
	var out []course.Entry
	for {
		select {
		case e, ok := <-in:
			if !ok {
				return out, true
			}
			out = append(out, e)
		case <-ctx.Done():
			return nil, false
		}
	}
}

// emit sends entries and records them as the last list. An
// unmerged list does not replace a merged one that a live
// session still owns.
func (i *Interactor) emit(
	ctx context.Context, out chan<- []course.Entry,
	session int, entries []course.Entry, merged bool,
) bool {
	i.mu.Lock()
	if merged || !i.merged || i.owner == session {
		i.entries = course.CloneEntries(entries)
		i.owner = session
		i.merged = merged
	}
	i.mu.Unlock()

	select {
	case out <- course.CloneEntries(entries):
		return true
	case <-ctx.Done():
		return false
	}
}

// release lets newer sessions replace the list session left
// behind.
func (i *Interactor) release(session int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.owner == session {
		i.merged = false
	}
}

// MergeStates applies each row's state to the node its
// selection addresses. Rows for unknown nodes are ignored.
// Course states are only ever taken from course rows.
func MergeStates(entries []course.Entry, rows []db.StateProgress) {
	index := make(map[string]int, len(entries))
	for n, e := range entries {
		index[e.ID] = n
	}
	for _, r := range rows {
		n, ok := index[r.Selection.EntryID]
		if !ok {
			continue
		}
		entries[n].UpdateState(r.Selection, r.State)
	}
}

// Entries returns the last list emitted by ObserveEntries. While
// a session with merged states is live, a newer session's first
// unmerged emission does not replace its list.
func (i *Interactor) Entries() []course.Entry {
	i.mu.Lock()
	defer i.mu.Unlock()
	return course.CloneEntries(i.entries)
}

// RetrySync asks the executor to sync the last emitted list
// again. Node states are passed along unchanged.
func (i *Interactor) RetrySync() {
	entries := i.Entries()
	if entries == nil {
		entries = []course.Entry{}
	}
	slog.Info("sync retry requested", "courses", len(entries))
	i.bus.Post(notify.Event{
		Name:    notify.OfflineSyncTriggered,
		Entries: entries,
	})
}

// CancelSync asks the executor to stop. It returns after every
// observer has seen the notification.
func (i *Interactor) CancelSync() {
	slog.Info("sync cancel requested")
	i.bus.Post(notify.Event{Name: notify.OfflineSyncCancelled})
}
