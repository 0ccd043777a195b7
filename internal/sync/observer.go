package sync

import (
	"context"
	"log/slog"

	"github.com/wesm/coursesync/internal/db"
)

// Observer exposes live snapshots of persisted progress.
// Every stream emits the current snapshot on subscription and
// a fresh full snapshot after each committed write. Streams
// close when ctx ends or a store read fails.
type Observer struct {
	db *db.DB
}

// NewObserver returns an observer backed by d.
func NewObserver(d *db.DB) *Observer {
	return &Observer{db: d}
}

// ObserveStateProgress streams every state row in insertion
// order.
func (o *Observer) ObserveStateProgress(
	ctx context.Context,
) <-chan []db.StateProgress {
	return observe(ctx, o.db, "state progress", o.db.ListStateProgress)
}

// ObserveDownloadProgress streams every course rollup.
func (o *Observer) ObserveDownloadProgress(
	ctx context.Context,
) <-chan []db.DownloadProgress {
	return observe(ctx, o.db, "download progress", o.db.ListDownloadProgress)
}

// ObserveSyncResult streams the current run's result.
func (o *Observer) ObserveSyncResult(
	ctx context.Context,
) <-chan db.SyncResult {
	return observe(ctx, o.db, "sync result", o.db.GetSyncResult)
}

func observe[T any](
	ctx context.Context, d *db.DB, what string,
	fetch func(context.Context) (T, error),
) <-chan T {
	out := make(chan T)
	// Subscribe before the first read so no commit between
	// the read and the wait is missed.
	changes, unsubscribe := d.Subscribe()

	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			v, err := fetch(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("observer read failed",
						"stream", what, "err", err)
				}
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
				return
			}
			select {
			case _, ok := <-changes:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
