package server

import (
	"net/http"

	"github.com/wesm/coursesync/internal/course"
)

func (s *Server) writeSelections(w http.ResponseWriter) {
	paths, err := s.selections.OfflineSyncSelections()
	if err != nil {
		writeInternal(w, err)
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"selections": paths,
	})
}

func (s *Server) handleGetSelections(
	w http.ResponseWriter, _ *http.Request,
) {
	s.writeSelections(w)
}

// putSelectionsRequest replaces stored paths. With Entries the
// paths are encoded from the posted trees and only those
// courses are rewritten; with EntryIDs only the listed courses
// are rewritten; otherwise every path is replaced.
type putSelectionsRequest struct {
	Selections []string       `json:"selections"`
	EntryIDs   []string       `json:"entry_ids"`
	Entries    []course.Entry `json:"entries"`
}

func (s *Server) handlePutSelections(
	w http.ResponseWriter, r *http.Request,
) {
	var req putSelectionsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	switch {
	case req.Entries != nil:
		ids := make([]string, len(req.Entries))
		for i, e := range req.Entries {
			ids[i] = e.ID
		}
		err = s.selections.ReplaceCourseSelections(
			ids, course.EncodeSelections(req.Entries),
		)
	case req.EntryIDs != nil:
		err = s.selections.ReplaceCourseSelections(
			req.EntryIDs, req.Selections,
		)
	default:
		err = s.selections.SetOfflineSyncSelections(req.Selections)
	}
	if err != nil {
		writeInternal(w, err)
		return
	}
	s.writeSelections(w)
}
