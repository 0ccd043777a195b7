package server

import (
	"net/http"
	"time"

	"github.com/wesm/coursesync/internal/db"
)

func (s *Server) handleWatchEntries(
	w http.ResponseWriter, r *http.Request,
) {
	ctx := r.Context()
	updates := s.observeEntries(ctx, w)
	if updates == nil {
		return
	}

	stream, err := NewSSEStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case entries, ok := <-updates:
			if !ok {
				return
			}
			if !stream.SendJSON("entries", entries) {
				return
			}
		case <-heartbeat.C:
			stream.Send("heartbeat", time.Now().Format(time.RFC3339))
		}
	}
}

// handleWatchProgress streams course rollups as "progress"
// events and run outcomes as "result" events.
func (s *Server) handleWatchProgress(
	w http.ResponseWriter, r *http.Request,
) {
	stream, err := NewSSEStream(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx := r.Context()
	rollups := s.observer.ObserveDownloadProgress(ctx)
	results := s.observer.ObserveSyncResult(ctx)
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	var last db.SyncResult
	for {
		select {
		case <-ctx.Done():
			return
		case rows, ok := <-rollups:
			if !ok {
				return
			}
			if !stream.SendJSON("progress", newProgressResponse(rows, last)) {
				return
			}
		case res, ok := <-results:
			if !ok {
				return
			}
			last = res
			if !stream.SendJSON("result", res) {
				return
			}
		case <-heartbeat.C:
			stream.Send("heartbeat", time.Now().Format(time.RFC3339))
		}
	}
}
