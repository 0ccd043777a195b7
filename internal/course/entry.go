// Package course holds the offline sync tree of a course:
// the course entry, its tabs and files, their selection state
// and their download state.
package course

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// TabName identifies the kind of a course tab.
type TabName string

const (
	TabAnnouncements     TabName = "announcements"
	TabAssignments       TabName = "assignments"
	TabCollaborations    TabName = "collaborations"
	TabConferences       TabName = "conferences"
	TabDiscussions       TabName = "discussions"
	TabFiles             TabName = "files"
	TabGrades            TabName = "grades"
	TabModules           TabName = "modules"
	TabPages             TabName = "pages"
	TabPeople            TabName = "people"
	TabQuizzes           TabName = "quizzes"
	TabSyllabus          TabName = "syllabus"
	TabAdditionalContent TabName = "additional-content"
)

// OfflineSyncableTabs lists the tab kinds that can be synced.
var OfflineSyncableTabs = []TabName{
	TabAssignments, TabDiscussions, TabGrades, TabPeople,
	TabPages, TabFiles, TabQuizzes, TabModules, TabSyllabus,
	TabConferences, TabAnnouncements, TabCollaborations,
}

// IsOfflineSyncable reports whether tabs of this kind can be
// selected for offline sync.
func (t TabName) IsOfflineSyncable() bool {
	return slices.Contains(OfflineSyncableTabs, t)
}

// ErrNegativeSize is returned for a file with a negative
// byte count.
var ErrNegativeSize = errors.New("negative byte count")

// Tab is one course tab in the sync tree.
type Tab struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Type           TabName        `json:"type"`
	SelectionState SelectionState `json:"selection_state"`
	State          DownloadState  `json:"state"`
}

// File is one downloadable course file in the sync tree.
type File struct {
	ID              string         `json:"id"`
	DisplayName     string         `json:"display_name"`
	FileName        string         `json:"file_name"`
	URL             string         `json:"url"`
	MimeClass       string         `json:"mime_class"`
	UpdatedAt       *time.Time     `json:"updated_at,omitempty"`
	BytesToDownload int64          `json:"bytes_to_download"`
	SelectionState  SelectionState `json:"selection_state"`
	State           DownloadState  `json:"state"`
}

// FileID returns the API file id, the last path segment.
func (f File) FileID() string {
	if i := strings.LastIndexByte(f.ID, '/'); i >= 0 {
		return f.ID[i+1:]
	}
	return f.ID
}

// Entry is the root sync unit for one course.
//
// The course's selection state is derived from its tabs and
// files. It can only be set directly when the course has no
// selectable children.
type Entry struct {
	ID           string
	Name         string
	HasFrontPage bool
	Tabs         []Tab
	Files        []File
	State        DownloadState

	selection SelectionState
}

// Validate checks every download state in the tree and that
// no file has a negative size.
func (e Entry) Validate() error {
	if err := e.State.Validate(); err != nil {
		return fmt.Errorf("entry %s: %w", e.ID, err)
	}
	for _, t := range e.Tabs {
		if err := t.State.Validate(); err != nil {
			return fmt.Errorf("tab %s: %w", t.ID, err)
		}
	}
	for _, f := range e.Files {
		if f.BytesToDownload < 0 {
			return fmt.Errorf("file %s: %w: %d",
				f.ID, ErrNegativeSize, f.BytesToDownload)
		}
		if err := f.State.Validate(); err != nil {
			return fmt.Errorf("file %s: %w", f.ID, err)
		}
	}
	return nil
}

// CourseID returns the API course id, the part after
// "courses/".
func (e Entry) CourseID() string {
	return CourseIDOf(e.ID)
}

func (e Entry) selectableTabs() int {
	n := 0
	for _, t := range e.Tabs {
		if t.Type != TabAdditionalContent {
			n++
		}
	}
	return n
}

// SelectionState derives the course's tri-state selection
// from its children: all selected gives Selected, none
// (fully or partially) selected gives Deselected, anything
// else PartiallySelected.
func (e Entry) SelectionState() SelectionState {
	total := e.selectableTabs() + len(e.Files)
	if total == 0 {
		return e.selection
	}
	full, some := 0, 0
	for _, t := range e.Tabs {
		if t.Type == TabAdditionalContent {
			continue
		}
		if t.SelectionState == Selected {
			full++
		}
		if t.SelectionState.IsAny() {
			some++
		}
	}
	for _, f := range e.Files {
		if f.SelectionState == Selected {
			full++
			some++
		}
	}
	switch {
	case full == total:
		return Selected
	case some == 0:
		return Deselected
	default:
		return PartiallySelected
	}
}

// IsFullContentSync reports whether the whole course was
// selected.
func (e Entry) IsFullContentSync() bool {
	return e.SelectionState() == Selected
}

// SelectCourse applies state to the course and every child.
// The additional content tab follows a full selection.
func (e *Entry) SelectCourse(state SelectionState) {
	if state == PartiallySelected {
		return
	}
	for i := range e.Tabs {
		e.Tabs[i].SelectionState = state
	}
	for i := range e.Files {
		e.Files[i].SelectionState = state
	}
	e.selection = state
}

// SelectTab sets one tab's selection. Selecting or
// deselecting the files tab applies to every file.
func (e *Entry) SelectTab(id string, state SelectionState) {
	i := e.tabIndex(id)
	if i < 0 {
		return
	}
	e.Tabs[i].SelectionState = state
	if e.Tabs[i].Type == TabFiles && state != PartiallySelected {
		for j := range e.Files {
			e.Files[j].SelectionState = state
		}
	}
	e.syncAdditionalContent()
}

// SelectFile sets one file's selection and re-derives the
// files tab from the files.
func (e *Entry) SelectFile(id string, state SelectionState) {
	i := e.fileIndex(id)
	if i < 0 {
		return
	}
	if state == Selected {
		e.Files[i].SelectionState = Selected
	} else {
		e.Files[i].SelectionState = Deselected
	}

	if ft := e.tabIndexByType(TabFiles); ft >= 0 {
		selected := len(e.SelectedFiles())
		switch {
		case selected == len(e.Files):
			e.Tabs[ft].SelectionState = Selected
		case selected > 0:
			e.Tabs[ft].SelectionState = PartiallySelected
		default:
			e.Tabs[ft].SelectionState = Deselected
		}
	}
	e.syncAdditionalContent()
}

func (e *Entry) syncAdditionalContent() {
	i := e.tabIndexByType(TabAdditionalContent)
	if i < 0 {
		return
	}
	if e.SelectionState() == Selected {
		e.Tabs[i].SelectionState = Selected
	} else {
		e.Tabs[i].SelectionState = Deselected
	}
}

// UpdateState sets the download state of the node addressed
// by sel. It reports false when sel does not belong to this
// entry or names an unknown child.
func (e *Entry) UpdateState(sel Selection, state DownloadState) bool {
	if sel.EntryID != e.ID {
		return false
	}
	switch sel.Kind {
	case KindCourse:
		e.State = state
		return true
	case KindTab:
		if i := e.tabIndex(sel.ItemID); i >= 0 {
			e.Tabs[i].State = state
			return true
		}
	case KindFile:
		if i := e.fileIndex(sel.ItemID); i >= 0 {
			e.Files[i].State = state
			return true
		}
	}
	return false
}

// Tab returns the tab with the given id.
func (e Entry) Tab(id string) (Tab, bool) {
	if i := e.tabIndex(id); i >= 0 {
		return e.Tabs[i], true
	}
	return Tab{}, false
}

// File returns the file with the given id.
func (e Entry) File(id string) (File, bool) {
	if i := e.fileIndex(id); i >= 0 {
		return e.Files[i], true
	}
	return File{}, false
}

func (e Entry) tabIndex(id string) int {
	return slices.IndexFunc(e.Tabs, func(t Tab) bool { return t.ID == id })
}

func (e Entry) tabIndexByType(name TabName) int {
	return slices.IndexFunc(e.Tabs, func(t Tab) bool { return t.Type == name })
}

func (e Entry) fileIndex(id string) int {
	return slices.IndexFunc(e.Files, func(f File) bool { return f.ID == id })
}

// SelectedTabs returns tabs that are fully or partially
// selected, excluding the additional content tab.
func (e Entry) SelectedTabs() []Tab {
	var out []Tab
	for _, t := range e.Tabs {
		if t.Type != TabAdditionalContent && t.SelectionState.IsAny() {
			out = append(out, t)
		}
	}
	return out
}

// SelectedFiles returns the selected files.
func (e Entry) SelectedFiles() []File {
	var out []File
	for _, f := range e.Files {
		if f.SelectionState == Selected {
			out = append(out, f)
		}
	}
	return out
}

// TotalSize is the byte size of every file in the course.
func (e Entry) TotalSize() int64 {
	var n int64
	for _, f := range e.Files {
		n += f.BytesToDownload
	}
	return n
}

// TotalSelectedSize is the byte size of the selected files.
func (e Entry) TotalSelectedSize() int64 {
	var n int64
	for _, f := range e.SelectedFiles() {
		n += f.BytesToDownload
	}
	return n
}

// HasError reports whether the course or any child failed.
func (e Entry) HasError() bool {
	if e.State.IsError() {
		return true
	}
	for _, t := range e.Tabs {
		if t.State.IsError() {
			return true
		}
	}
	for _, f := range e.Files {
		if f.State.IsError() {
			return true
		}
	}
	return false
}

// Clone returns a copy that shares no slices with e.
func (e Entry) Clone() Entry {
	e.Tabs = slices.Clone(e.Tabs)
	e.Files = slices.Clone(e.Files)
	return e
}

// CloneEntries deep-copies a list of entries.
func CloneEntries(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

type entryJSON struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	HasFrontPage   bool           `json:"has_front_page,omitempty"`
	Tabs           []Tab          `json:"tabs"`
	Files          []File         `json:"files"`
	SelectionState SelectionState `json:"selection_state"`
	State          DownloadState  `json:"state"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	out := entryJSON{
		ID:             e.ID,
		Name:           e.Name,
		HasFrontPage:   e.HasFrontPage,
		Tabs:           e.Tabs,
		Files:          e.Files,
		SelectionState: e.SelectionState(),
		State:          e.State,
	}
	if out.Tabs == nil {
		out.Tabs = []Tab{}
	}
	if out.Files == nil {
		out.Files = []File{}
	}
	return json.Marshal(out)
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var in entryJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = Entry{
		ID:           in.ID,
		Name:         in.Name,
		HasFrontPage: in.HasFrontPage,
		Tabs:         in.Tabs,
		Files:        in.Files,
		State:        in.State,
		selection:    in.SelectionState,
	}
	return nil
}
