package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/coursesync/internal/course"
	"github.com/wesm/coursesync/internal/db"
	"github.com/wesm/coursesync/internal/dbtest"
)

func TestParseCleanFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    CleanConfig
		wantErr string
	}{
		{
			name:    "no filters",
			args:    []string{},
			wantErr: "at least one filter",
		},
		{
			name: "courses repeat",
			args: []string{"--course", "1", "--course", "courses/2", "--dry-run"},
			want: CleanConfig{
				EntryIDs: []string{"courses/1", "courses/2"}, DryRun: true,
			},
		},
		{
			name: "failed",
			args: []string{"--failed", "--yes"},
			want: CleanConfig{Failed: true, Yes: true},
		},
		{
			name:    "all with course",
			args:    []string{"--all", "--course", "1"},
			wantErr: "cannot be combined",
		},
		{
			name:    "empty course",
			args:    []string{"--course", " "},
			wantErr: "empty course",
		},
		{
			name:    "unknown flag",
			args:    []string{"--bogus"},
			wantErr: "flag provided but not defined",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parseCleanFlags(tt.args)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error %q missing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, cfg); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseCleanFlagsHelp(t *testing.T) {
	_, err := parseCleanFlags([]string{"--help"})
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"yes lowercase", "y\n", true},
		{"yes full", "yes\n", true},
		{"YES uppercase", "YES\n", true},
		{"no", "n\n", false},
		{"empty", "\n", false},
		{"y with spaces", "  y  \n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			got := confirm(strings.NewReader(tt.input), out, "Delete?")
			if got != tt.want {
				t.Errorf("confirm() = %v, want %v", got, tt.want)
			}
			if !strings.Contains(out.String(), "[y/N]") {
				t.Error("prompt missing [y/N]")
			}
		})
	}
}

func TestCollectCourses(t *testing.T) {
	states := []db.StateProgress{
		{Selection: course.CourseSelection("courses/1"), State: course.Loading()},
		{Selection: course.FileSelection("courses/1", "courses/1/files/1"), State: course.Failed()},
		{Selection: course.CourseSelection("courses/2"), State: course.Downloaded()},
	}
	downloads := []db.DownloadProgress{
		{EntryID: "courses/2", BytesToDownload: 10},
		{EntryID: "courses/3", BytesToDownload: 20},
	}
	want := []courseProgress{
		{EntryID: "courses/1", Nodes: 2, Failed: 1},
		{EntryID: "courses/2", Nodes: 1, Bytes: 10},
		{EntryID: "courses/3", Bytes: 20},
	}
	if diff := cmp.Diff(want, collectCourses(states, downloads)); diff != "" {
		t.Errorf("collectCourses mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCleanSummary(t *testing.T) {
	var buf bytes.Buffer
	writeCleanSummary(&buf, []courseProgress{
		{EntryID: "courses/1", Nodes: 3, Failed: 1, Bytes: 1024},
		{EntryID: "courses/2", Nodes: 1, Bytes: 2048},
	})
	want := `Found 2 courses (4 nodes, 1 failed, 3.0 KB selected)

By course:
  courses/1                                3
  courses/2                                1
`
	if got := buf.String(); got != want {
		t.Errorf("writeCleanSummary() mismatch\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func seedCourses(t *testing.T, d *db.DB) {
	t.Helper()
	dbtest.SeedState(t, d, course.Failed(),
		course.FileSelection("courses/1", "courses/1/files/1"))
	dbtest.SeedState(t, d, course.Downloaded(),
		course.CourseSelection("courses/1"),
		course.CourseSelection("courses/2"),
		course.TabSelection("courses/2", "courses/2/tabs/pages"))
	err := d.ReplaceDownloadProgress(context.Background(), []db.DownloadProgress{
		{EntryID: "courses/1", BytesToDownload: 100},
		{EntryID: "courses/2", BytesToDownload: 200},
	})
	if err != nil {
		t.Fatalf("seeding downloads: %v", err)
	}
}

func remainingCourses(t *testing.T, d *db.DB) []string {
	t.Helper()
	states, err := d.ListStateProgress(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	downloads, err := d.ListDownloadProgress(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	ids := []string{}
	for _, c := range collectCourses(states, downloads) {
		ids = append(ids, c.EntryID)
	}
	return ids
}

func TestCleaner(t *testing.T) {
	tests := []struct {
		name     string
		cfg      CleanConfig
		input    string
		want     []string
		wantText string
	}{
		{
			name:     "failed courses",
			cfg:      CleanConfig{Failed: true, Yes: true},
			want:     []string{"courses/2"},
			wantText: "Removed 2 nodes from 1 courses",
		},
		{
			name:     "named course",
			cfg:      CleanConfig{EntryIDs: []string{"courses/2"}, Yes: true},
			want:     []string{"courses/1"},
			wantText: "Removed 2 nodes from 1 courses",
		},
		{
			name:     "all",
			cfg:      CleanConfig{All: true, Yes: true},
			want:     []string{},
			wantText: "Cleared progress of 2 courses",
		},
		{
			name:     "dry run",
			cfg:      CleanConfig{All: true, DryRun: true},
			want:     []string{"courses/1", "courses/2"},
			wantText: "Dry run: no changes made.",
		},
		{
			name:     "declined",
			cfg:      CleanConfig{Failed: true},
			input:    "n\n",
			want:     []string{"courses/1", "courses/2"},
			wantText: "Aborted.",
		},
		{
			name:     "confirmed",
			cfg:      CleanConfig{Failed: true},
			input:    "y\n",
			want:     []string{"courses/2"},
			wantText: "Delete progress of 1 courses? [y/N]",
		},
		{
			name:     "no match",
			cfg:      CleanConfig{EntryIDs: []string{"courses/9"}, Yes: true},
			want:     []string{"courses/1", "courses/2"},
			wantText: "No recorded progress matches",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := dbtest.OpenTestDB(t)
			seedCourses(t, d)

			var out bytes.Buffer
			c := &Cleaner{DB: d, Out: &out, In: strings.NewReader(tt.input)}
			if err := c.Clean(context.Background(), tt.cfg); err != nil {
				t.Fatalf("clean: %v", err)
			}
			if !strings.Contains(out.String(), tt.wantText) {
				t.Errorf("output missing %q:\n%s", tt.wantText, out.String())
			}
			if diff := cmp.Diff(tt.want, remainingCourses(t, d)); diff != "" {
				t.Errorf("remaining courses mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCleanerEmptyFilterReturnsError(t *testing.T) {
	d := dbtest.OpenTestDB(t)
	c := &Cleaner{DB: d, Out: &bytes.Buffer{}}
	err := c.Clean(context.Background(), CleanConfig{})
	if err == nil || !strings.Contains(err.Error(), "at least one filter") {
		t.Fatalf("expected filter error, got %v", err)
	}
}
