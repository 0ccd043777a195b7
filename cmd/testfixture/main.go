// Command testfixture writes a data directory with a course
// listing, stored selections and a sync run part way through,
// for exercising the server and CLI by hand.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/wesm/coursesync/internal/composer"
	"github.com/wesm/coursesync/internal/course"
	"github.com/wesm/coursesync/internal/db"
	"github.com/wesm/coursesync/internal/defaults"
	"github.com/wesm/coursesync/internal/sync"
)

type courseSpec struct {
	id        string
	name      string
	fileCount int
	fileSize  int64
	// full selects the whole course; otherwise only the pages
	// tab and the first file are selected.
	full bool
	// outcome of every selected file: "done", "failed" or a
	// loading fraction.
	outcome string
}

var specs = []courseSpec{
	{"101", "Biology 101", 2, 512 << 10, true, "done"},
	{"202", "Chemistry 202", 5, 2 << 20, true, "0.4"},
	{"303", "Physics 303", 8, 8 << 20, false, "failed"},
	{"404", "History 404", 0, 0, true, "done"},
	{"505", "Statistics 505", 40, 1 << 20, false, "0.1"},
}

var fixtureTabs = []course.TabName{
	course.TabAssignments, course.TabPages, course.TabFiles,
	course.TabQuizzes, course.TabAdditionalContent,
}

func main() {
	out := flag.String("out", "", "output data directory")
	session := flag.String("session", "default", "session to store selections for")
	flag.Parse()
	if *out == "" {
		fmt.Fprintln(os.Stderr, "usage: testfixture -out <dir>")
		os.Exit(1)
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		log.Fatalf("creating output dir: %v", err)
	}

	listing, err := buildListing(specs)
	if err != nil {
		log.Fatalf("building listing: %v", err)
	}
	listingPath := filepath.Join(*out, "listing.json")
	if err := os.WriteFile(listingPath, listing, 0o644); err != nil {
		log.Fatalf("writing listing: %v", err)
	}

	paths := selectionPaths(specs)
	if err := writeSelections(
		filepath.Join(*out, "defaults.db"), *session, paths,
	); err != nil {
		log.Fatalf("writing selections: %v", err)
	}

	dbPath := filepath.Join(*out, "progress.db")
	for _, p := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(p); err != nil &&
			!errors.Is(err, os.ErrNotExist) {
			log.Fatalf("removing existing db: %v", err)
		}
	}
	database, err := db.Open(dbPath)
	if err != nil {
		log.Fatalf("opening db: %v", err)
	}
	defer database.Close()

	entries, err := composeSelected(listing, paths)
	if err != nil {
		log.Fatalf("composing entries: %v", err)
	}
	runID, err := seedRun(context.Background(), database, entries)
	if err != nil {
		log.Fatalf("seeding run: %v", err)
	}

	for _, e := range entries {
		fmt.Printf("  %s: %d files selected\n", e.ID, len(e.SelectedFiles()))
	}
	fmt.Printf("Fixture run %s written to %s\n", runID, *out)
}

func buildListing(specs []courseSpec) ([]byte, error) {
	type file struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		FileName    string `json:"filename"`
		URL         string `json:"url"`
		MimeClass   string `json:"mime_class"`
		Size        int64  `json:"size"`
		UpdatedAt   string `json:"updated_at"`
	}
	type tab struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
	type listed struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		HasFrontPage bool   `json:"has_front_page"`
		Tabs         []tab  `json:"tabs"`
		Files        []file `json:"files"`
	}

	base := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	courses := make([]listed, 0, len(specs))
	for i, s := range specs {
		c := listed{
			ID: s.id, Name: s.name, HasFrontPage: i%2 == 0,
			Tabs: []tab{}, Files: []file{},
		}
		for _, t := range fixtureTabs {
			c.Tabs = append(c.Tabs, tab{ID: string(t), Label: string(t)})
		}
		for j := range s.fileCount {
			id := fmt.Sprintf("%s%03d", s.id, j)
			c.Files = append(c.Files, file{
				ID:          id,
				DisplayName: fmt.Sprintf("Lecture %d.pdf", j+1),
				FileName:    fmt.Sprintf("lecture-%d.pdf", j+1),
				URL:         "https://lms.example.com/files/" + id,
				MimeClass:   "pdf",
				Size:        s.fileSize,
				UpdatedAt: base.Add(time.Duration(j) * time.Hour).
					Format(time.RFC3339),
			})
		}
		courses = append(courses, c)
	}
	return json.MarshalIndent(map[string]any{"courses": courses}, "", "  ")
}

func selectionPaths(specs []courseSpec) []string {
	var paths []string
	for _, s := range specs {
		if s.full {
			paths = append(paths, course.EntryID(s.id))
			continue
		}
		paths = append(paths, course.TabID(s.id, course.TabPages))
		if s.fileCount > 0 {
			paths = append(paths, course.FileID(s.id, s.id+"000"))
		}
	}
	return paths
}

func writeSelections(path, session string, paths []string) error {
	store, err := defaults.Open(path, session)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SetOfflineSyncSelections(paths)
}

func composeSelected(listing []byte, paths []string) ([]course.Entry, error) {
	stream, err := composer.New(listing).Compose(context.Background(), paths)
	if err != nil {
		return nil, err
	}
	var skeletons []course.Entry
	for e := range stream {
		skeletons = append(skeletons, e)
	}
	return course.ApplySelections(skeletons, paths), nil
}

// seedRun starts a run over entries and moves every selected
// file to the outcome of its course.
func seedRun(
	ctx context.Context, database *db.DB, entries []course.Entry,
) (string, error) {
	w := sync.NewWriter(database)
	if err := w.CleanUpPreviousDownloadProgress(ctx); err != nil {
		return "", err
	}
	runID, err := w.SetInitialLoadingState(ctx, entries)
	if err != nil {
		return "", err
	}

	outcomes := make(map[string]string, len(specs))
	for _, s := range specs {
		outcomes[course.EntryID(s.id)] = s.outcome
	}

	for i := range entries {
		e := &entries[i]
		state, err := parseOutcome(outcomes[e.ID])
		if err != nil {
			return "", fmt.Errorf("course %s: %w", e.ID, err)
		}
		for j, f := range e.Files {
			if !f.SelectionState.IsAny() {
				continue
			}
			e.Files[j].State = state
			sel := course.FileSelection(e.ID, f.ID)
			if err := w.SaveStateProgress(ctx, f.ID, sel, state); err != nil {
				return "", err
			}
		}
		if state.IsDownloaded() {
			if err := w.SaveStateProgress(ctx, e.ID,
				course.CourseSelection(e.ID), state); err != nil {
				return "", err
			}
		}
	}
	if err := w.SaveDownloadProgress(ctx, entries); err != nil {
		return "", err
	}
	return runID, nil
}

func parseOutcome(s string) (course.DownloadState, error) {
	switch s {
	case "done":
		return course.Downloaded(), nil
	case "failed":
		return course.Failed(), nil
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return course.DownloadState{}, fmt.Errorf("bad outcome %q", s)
	}
	return course.LoadingAt(p), nil
}
