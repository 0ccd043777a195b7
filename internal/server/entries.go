package server

import (
	"context"
	"errors"
	"io/fs"
	"net/http"

	"github.com/wesm/coursesync/internal/composer"
	"github.com/wesm/coursesync/internal/course"
)

// observeEntries starts an entry stream, writing an error
// response and returning nil if it cannot be started.
func (s *Server) observeEntries(
	ctx context.Context, w http.ResponseWriter,
) <-chan []course.Entry {
	stream, err := s.interactor.ObserveEntries(ctx)
	switch {
	case err == nil:
		return stream
	case errors.Is(err, fs.ErrNotExist):
		writeError(w, http.StatusNotFound, "course listing not found")
	case errors.Is(err, composer.ErrInvalidListing):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeInternal(w, err)
	}
	return nil
}

func (s *Server) handleGetEntries(
	w http.ResponseWriter, r *http.Request,
) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	stream := s.observeEntries(ctx, w)
	if stream == nil {
		return
	}
	select {
	case entries, ok := <-stream:
		if !ok {
			writeInternal(w, ctx.Err())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"entries": entries,
		})
	case <-ctx.Done():
	}
}

func (s *Server) handleRetrySync(
	w http.ResponseWriter, _ *http.Request,
) {
	s.interactor.RetrySync()
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "triggered",
	})
}

func (s *Server) handleCancelSync(
	w http.ResponseWriter, _ *http.Request,
) {
	s.interactor.CancelSync()
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "cancelled",
	})
}
