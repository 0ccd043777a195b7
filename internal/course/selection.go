package course

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSelection is returned when a persisted selection
// kind cannot be decoded.
var ErrUnknownSelection = errors.New("unknown selection kind")

// SelectionKind tags which level of the tree a Selection
// addresses. The numeric values are persisted.
type SelectionKind int

const (
	KindCourse SelectionKind = 0
	KindTab    SelectionKind = 1
	KindFile   SelectionKind = 2
)

func (k SelectionKind) String() string {
	switch k {
	case KindCourse:
		return "course"
	case KindTab:
		return "tab"
	case KindFile:
		return "file"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseSelectionKind is the inverse of SelectionKind.String.
func ParseSelectionKind(name string) (SelectionKind, error) {
	switch name {
	case "course":
		return KindCourse, nil
	case "tab":
		return KindTab, nil
	case "file":
		return KindFile, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownSelection, name)
}

// Selection addresses one node of a course sync tree:
// course(entryID), tab(entryID, tabID) or file(entryID,
// fileID). ItemID is empty for course selections.
type Selection struct {
	Kind    SelectionKind `json:"kind"`
	EntryID string        `json:"entry_id"`
	ItemID  string        `json:"item_id,omitempty"`
}

// CourseSelection addresses the course node itself.
func CourseSelection(entryID string) Selection {
	return Selection{Kind: KindCourse, EntryID: entryID}
}

// TabSelection addresses one tab of a course.
func TabSelection(entryID, tabID string) Selection {
	return Selection{Kind: KindTab, EntryID: entryID, ItemID: tabID}
}

// FileSelection addresses one file of a course.
func FileSelection(entryID, fileID string) Selection {
	return Selection{Kind: KindFile, EntryID: entryID, ItemID: fileID}
}

// Validate checks that the fields match the kind.
func (s Selection) Validate() error {
	if s.EntryID == "" {
		return fmt.Errorf("selection %s: empty entry id", s.Kind)
	}
	switch s.Kind {
	case KindCourse:
		if s.ItemID != "" {
			return fmt.Errorf(
				"course selection %s: unexpected item id %q",
				s.EntryID, s.ItemID,
			)
		}
	case KindTab, KindFile:
		if s.ItemID == "" {
			return fmt.Errorf(
				"%s selection %s: empty item id", s.Kind, s.EntryID,
			)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownSelection, int(s.Kind))
	}
	return nil
}

// Key is the path of the addressed node, which doubles as
// its persistence key.
func (s Selection) Key() string {
	switch s.Kind {
	case KindCourse:
		return s.EntryID
	case KindTab, KindFile:
		return s.ItemID
	}
	return ""
}

func (s Selection) String() string {
	switch s.Kind {
	case KindCourse:
		return fmt.Sprintf("course(%s)", s.EntryID)
	case KindTab:
		return fmt.Sprintf("tab(%s, %s)", s.EntryID, s.ItemID)
	case KindFile:
		return fmt.Sprintf("file(%s, %s)", s.EntryID, s.ItemID)
	}
	return fmt.Sprintf("selection(%d)", int(s.Kind))
}

// Path helpers. Node ids are selection paths:
//
//	courses/<courseID>
//	courses/<courseID>/tabs/<tabName>
//	courses/<courseID>/files/<fileID>

const coursePrefix = "courses/"

func EntryID(courseID string) string {
	return coursePrefix + courseID
}

func TabID(courseID string, tab TabName) string {
	return EntryID(courseID) + "/tabs/" + string(tab)
}

func FileID(courseID, fileID string) string {
	return EntryID(courseID) + "/files/" + fileID
}

// CourseIDOf returns the API course id from any selection
// path, or "" if the path is not under courses/.
func CourseIDOf(path string) string {
	rest, ok := strings.CutPrefix(path, coursePrefix)
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	return id
}

// EntryIDOf returns the "courses/<id>" entry id that owns
// path, or "" if the path is not under courses/.
func EntryIDOf(path string) string {
	id := CourseIDOf(path)
	if id == "" {
		return ""
	}
	return EntryID(id)
}
