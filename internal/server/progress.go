package server

import (
	"net/http"

	"github.com/wesm/coursesync/internal/course"
	"github.com/wesm/coursesync/internal/db"
	"github.com/wesm/coursesync/internal/sync"
)

type progressResponse struct {
	Courses []db.DownloadProgress `json:"courses"`
	Totals  sync.Totals           `json:"totals"`
	Percent float64               `json:"percent"`
	Result  db.SyncResult         `json:"result"`
}

func newProgressResponse(
	rows []db.DownloadProgress, res db.SyncResult,
) progressResponse {
	totals := sync.TotalsOf(rows)
	return progressResponse{
		Courses: rows,
		Totals:  totals,
		Percent: totals.Percent(),
		Result:  res,
	}
}

func (s *Server) handleGetProgress(
	w http.ResponseWriter, r *http.Request,
) {
	rows, err := s.db.ListDownloadProgress(r.Context())
	if err != nil {
		writeInternal(w, err)
		return
	}
	res, err := s.db.GetSyncResult(r.Context())
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProgressResponse(rows, res))
}

type entriesRequest struct {
	Entries []course.Entry `json:"entries"`
}

func (req entriesRequest) validate() error {
	for _, e := range req.Entries {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// handleStartRun replaces the previous run with the posted
// entries, all marked loading.
func (s *Server) handleStartRun(
	w http.ResponseWriter, r *http.Request,
) {
	var req entriesRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runID, err := s.writer.StartRun(r.Context(), req.Entries)
	if err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"run_id": runID,
	})
}

type stateRequest struct {
	ID        string               `json:"id"`
	Selection course.Selection     `json:"selection"`
	State     course.DownloadState `json:"state"`
}

func (s *Server) handleSaveState(
	w http.ResponseWriter, r *http.Request,
) {
	var req stateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := req.Selection.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.State.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.writer.SaveStateProgress(
		r.Context(), req.ID, req.Selection, req.State,
	)
	if err != nil {
		writeInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSaveDownload(
	w http.ResponseWriter, r *http.Request,
) {
	var req entriesRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.writer.SaveDownloadProgress(r.Context(), req.Entries); err != nil {
		writeInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resultRequest struct {
	Finished bool   `json:"finished"`
	Error    string `json:"error"`
	// FailInProgress turns every still-loading node into an
	// error before the result is stored.
	FailInProgress bool `json:"fail_in_progress"`
}

func (s *Server) handleSaveResult(
	w http.ResponseWriter, r *http.Request,
) {
	var req resultRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()
	var failed int64
	if req.FailInProgress {
		n, err := s.writer.MarkInProgressDownloadsAsFailed(ctx)
		if err != nil {
			writeInternal(w, err)
			return
		}
		failed = n
	}
	if err := s.writer.SaveDownloadResult(ctx, req.Finished, req.Error); err != nil {
		writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"failed": failed,
	})
}
