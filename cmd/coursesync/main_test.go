package main

import (
	"path/filepath"
	"testing"
)

func TestMustLoadConfig(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantHost    string
		wantPort    int
		wantSession string
		wantWatch   bool
	}{
		{
			name:        "DefaultArgs",
			args:        []string{},
			wantHost:    "127.0.0.1",
			wantPort:    8090,
			wantSession: "default",
			wantWatch:   true,
		},
		{
			name: "ExplicitFlags",
			args: []string{
				"-host", "0.0.0.0", "-port", "9090",
				"-session", "alice", "-watch-external=false",
			},
			wantHost:    "0.0.0.0",
			wantPort:    9090,
			wantSession: "alice",
			wantWatch:   false,
		},
		{
			name:        "PartialFlags",
			args:        []string{"-port", "3000"},
			wantHost:    "127.0.0.1",
			wantPort:    3000,
			wantSession: "default",
			wantWatch:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "data")
			t.Setenv("COURSESYNC_DATA_DIR", dir)
			cfg := mustLoadConfig(tt.args)

			if cfg.Host != tt.wantHost {
				t.Errorf("Host = %q, want %q", cfg.Host, tt.wantHost)
			}
			if cfg.Port != tt.wantPort {
				t.Errorf("Port = %d, want %d", cfg.Port, tt.wantPort)
			}
			if cfg.SessionID != tt.wantSession {
				t.Errorf("SessionID = %q, want %q", cfg.SessionID, tt.wantSession)
			}
			if cfg.WatchExternal != tt.wantWatch {
				t.Errorf("WatchExternal = %v, want %v", cfg.WatchExternal, tt.wantWatch)
			}
			if cfg.DataDir != dir {
				t.Errorf("DataDir = %q, want %q", cfg.DataDir, dir)
			}
			wantDBPath := filepath.Join(dir, "progress.db")
			if cfg.DBPath != wantDBPath {
				t.Errorf("DBPath = %q, want %q", cfg.DBPath, wantDBPath)
			}
		})
	}
}
