package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/coursesync/internal/defaults"
)

func TestParseSelectFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    SelectConfig
		wantErr string
	}{
		{
			name: "add normalizes ids",
			args: []string{"42", "courses/7/tabs/pages", "/courses/9/"},
			want: SelectConfig{Paths: []string{
				"courses/42", "courses/7/tabs/pages", "courses/9",
			}},
		},
		{
			name: "remove",
			args: []string{"-remove", "-session", "s1", "42"},
			want: SelectConfig{
				Session: "s1", Remove: true, Paths: []string{"courses/42"},
			},
		},
		{
			name: "list",
			args: []string{},
			want: SelectConfig{},
		},
		{
			name:    "two modes",
			args:    []string{"-remove", "-replace", "42"},
			wantErr: "only one of",
		},
		{
			name:    "clear with paths",
			args:    []string{"-clear", "42"},
			wantErr: "--clear takes no paths",
		},
		{
			name:    "remove without paths",
			args:    []string{"-remove"},
			wantErr: "needs at least one path",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := parseSelectFlags(tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
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

func TestSelector(t *testing.T) {
	initial := []string{
		"courses/1", "courses/2/tabs/pages", "courses/2/files/5", "courses/3",
	}
	tests := []struct {
		name string
		cfg  SelectConfig
		want []string
	}{
		{
			name: "list only",
			cfg:  SelectConfig{},
			want: initial,
		},
		{
			name: "add skips duplicates",
			cfg:  SelectConfig{Paths: []string{"courses/3", "courses/4"}},
			want: append(append([]string{}, initial...), "courses/4"),
		},
		{
			name: "remove course drops children",
			cfg:  SelectConfig{Remove: true, Paths: []string{"courses/2"}},
			want: []string{"courses/1", "courses/3"},
		},
		{
			name: "remove single tab",
			cfg: SelectConfig{
				Remove: true, Paths: []string{"courses/2/tabs/pages"},
			},
			want: []string{"courses/1", "courses/2/files/5", "courses/3"},
		},
		{
			name: "replace",
			cfg: SelectConfig{
				Replace: true, Paths: []string{"courses/9", "courses/9"},
			},
			want: []string{"courses/9"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := defaults.Open("", "test")
			if err != nil {
				t.Fatalf("opening defaults: %v", err)
			}
			if err := store.SetOfflineSyncSelections(initial); err != nil {
				t.Fatalf("seeding selections: %v", err)
			}

			var out bytes.Buffer
			s := &Selector{Store: store, Out: &out}
			if err := s.Select(tt.cfg); err != nil {
				t.Fatalf("select: %v", err)
			}

			got, err := store.OfflineSyncSelections()
			if err != nil {
				t.Fatalf("reading selections: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("stored mismatch (-want +got):\n%s", diff)
			}
			if printed := strings.Fields(out.String()); !cmp.Equal(tt.want, printed) {
				t.Errorf("printed %v, want %v", printed, tt.want)
			}
		})
	}
}

func TestSelectorClear(t *testing.T) {
	store, err := defaults.Open("", "test")
	if err != nil {
		t.Fatalf("opening defaults: %v", err)
	}
	if err := store.SetOfflineSyncSelections([]string{"courses/1"}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	s := &Selector{Store: store, Out: &out}
	if err := s.Select(SelectConfig{Clear: true}); err != nil {
		t.Fatalf("select: %v", err)
	}
	if !strings.Contains(out.String(), "No paths selected") {
		t.Errorf("output = %q", out.String())
	}
	got, _ := store.OfflineSyncSelections()
	if len(got) != 0 {
		t.Errorf("selections = %v, want empty", got)
	}
}
