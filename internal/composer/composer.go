// Package composer reads a course listing and turns it into
// unselected course sync entries.
//
// A listing is a JSON document shaped like the LMS course API:
//
//	{"courses": [{
//	  "id": "42", "name": "Biology", "has_front_page": true,
//	  "tabs": [{"id": "assignments", "label": "Assignments"}],
//	  "files": [{"id": "7", "display_name": "Syllabus.pdf",
//	             "filename": "syllabus.pdf", "url": "...",
//	             "mime_class": "pdf", "size": 1024,
//	             "updated_at": "2024-06-01T10:00:00Z"}]
//	}]}
package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tidwall/gjson"

	"github.com/wesm/coursesync/internal/course"
)

// ErrInvalidListing is returned when the listing is not valid
// JSON.
var ErrInvalidListing = errors.New("invalid course listing")

// ListingComposer composes entries from a listing document.
type ListingComposer struct {
	read func() ([]byte, error)
}

// NewFile returns a composer that reads path on every Compose.
func NewFile(path string) *ListingComposer {
	return &ListingComposer{read: func() ([]byte, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading listing %s: %w", path, err)
		}
		return data, nil
	}}
}

// New returns a composer over a fixed listing.
func New(data []byte) *ListingComposer {
	return &ListingComposer{read: func() ([]byte, error) {
		return data, nil
	}}
}

// Compose emits one skeleton per listed course that any of
// the selection paths refers to, in listing order. The
// channel is closed after the last course or when ctx ends.
func (c *ListingComposer) Compose(
	ctx context.Context, selections []string,
) (<-chan course.Entry, error) {
	data, err := c.read()
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidListing
	}

	wanted := make(map[string]struct{}, len(selections))
	for _, s := range selections {
		if id := course.CourseIDOf(s); id != "" {
			wanted[id] = struct{}{}
		}
	}

	var entries []course.Entry
	gjson.GetBytes(data, "courses").ForEach(func(_, v gjson.Result) bool {
		id := v.Get("id").String()
		if id == "" {
			return true
		}
		if _, ok := wanted[id]; !ok {
			return true
		}
		entries = append(entries, parseCourse(id, v))
		return true
	})

	out := make(chan course.Entry)
	go func() {
		defer close(out)
		for _, e := range entries {
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func parseCourse(id string, v gjson.Result) course.Entry {
	e := course.Entry{
		ID:           course.EntryID(id),
		Name:         v.Get("name").Str,
		HasFrontPage: v.Get("has_front_page").Bool(),
		Tabs:         []course.Tab{},
		Files:        []course.File{},
	}

	v.Get("tabs").ForEach(func(_, t gjson.Result) bool {
		name := course.TabName(t.Get("id").Str)
		if !name.IsOfflineSyncable() && name != course.TabAdditionalContent {
			return true
		}
		label := t.Get("label").Str
		if label == "" {
			label = string(name)
		}
		e.Tabs = append(e.Tabs, course.Tab{
			ID:   course.TabID(id, name),
			Name: label,
			Type: name,
		})
		return true
	})

	v.Get("files").ForEach(func(_, f gjson.Result) bool {
		fileID := f.Get("id").String()
		if fileID == "" {
			return true
		}
		file := course.File{
			ID:              course.FileID(id, fileID),
			DisplayName:     f.Get("display_name").Str,
			FileName:        f.Get("filename").Str,
			URL:             f.Get("url").Str,
			MimeClass:       f.Get("mime_class").Str,
			BytesToDownload: max(f.Get("size").Int(), 0),
		}
		if ts := f.Get("updated_at").Str; ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				file.UpdatedAt = &t
			} else {
				slog.Debug("ignoring bad file timestamp",
					"file", file.ID, "updated_at", ts)
			}
		}
		e.Files = append(e.Files, file)
		return true
	})

	return e
}
