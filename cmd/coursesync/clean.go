package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strings"

	"github.com/wesm/coursesync/internal/config"
	"github.com/wesm/coursesync/internal/db"
	"github.com/wesm/coursesync/internal/sync"
)

// CleanConfig holds parsed CLI options for the clean command.
type CleanConfig struct {
	EntryIDs []string
	Failed   bool
	All      bool
	DryRun   bool
	Yes      bool
}

// HasFilters reports whether any course filter is set.
func (c CleanConfig) HasFilters() bool {
	return len(c.EntryIDs) > 0 || c.Failed || c.All
}

func parseCleanFlags(args []string) (CleanConfig, error) {
	var cfg CleanConfig
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	fs.Func(
		"course", "Course to clean (repeatable; id or courses/<id>)",
		func(v string) error {
			p := normalizePath(v)
			if p == "" {
				return errors.New("empty course")
			}
			cfg.EntryIDs = append(cfg.EntryIDs, p)
			return nil
		},
	)
	fs.BoolVar(&cfg.Failed, "failed", false,
		"Courses with at least one failed node")
	fs.BoolVar(&cfg.All, "all", false,
		"Every course and the run result")
	fs.BoolVar(&cfg.DryRun, "dry-run", false,
		"Show what would be removed without deleting")
	fs.BoolVar(&cfg.Yes, "yes", false, "Skip confirmation prompt")

	if err := fs.Parse(args); err != nil {
		return CleanConfig{}, err
	}
	if !cfg.HasFilters() {
		return CleanConfig{}, errors.New(
			"at least one filter is required\n" +
				"use --course, --failed, or --all",
		)
	}
	if cfg.All && (len(cfg.EntryIDs) > 0 || cfg.Failed) {
		return CleanConfig{}, errors.New(
			"--all cannot be combined with other filters",
		)
	}
	return cfg, nil
}

// courseProgress summarizes what is recorded for one course.
type courseProgress struct {
	EntryID string
	Nodes   int
	Failed  int
	Bytes   int64
}

// collectCourses groups rows by course in first-seen order.
func collectCourses(
	states []db.StateProgress, downloads []db.DownloadProgress,
) []courseProgress {
	var out []courseProgress
	index := make(map[string]int)
	get := func(id string) *courseProgress {
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, courseProgress{EntryID: id})
		}
		return &out[i]
	}
	for _, s := range states {
		c := get(s.Selection.EntryID)
		c.Nodes++
		if s.State.IsError() {
			c.Failed++
		}
	}
	for _, d := range downloads {
		get(d.EntryID).Bytes = d.BytesToDownload
	}
	return out
}

func (c CleanConfig) matches(p courseProgress) bool {
	if c.All {
		return true
	}
	if slices.Contains(c.EntryIDs, p.EntryID) {
		return true
	}
	return c.Failed && p.Failed > 0
}

// Cleaner executes the clean workflow against a database.
type Cleaner struct {
	DB  *db.DB
	Out io.Writer
	In  io.Reader
}

// Clean finds matching courses and deletes their progress.
func (c *Cleaner) Clean(ctx context.Context, cfg CleanConfig) error {
	if !cfg.HasFilters() {
		return errors.New(
			"at least one filter is required " +
				"(refusing to clean all courses)",
		)
	}

	states, err := c.DB.ListStateProgress(ctx)
	if err != nil {
		return fmt.Errorf("listing state progress: %w", err)
	}
	downloads, err := c.DB.ListDownloadProgress(ctx)
	if err != nil {
		return fmt.Errorf("listing download progress: %w", err)
	}

	var candidates []courseProgress
	for _, p := range collectCourses(states, downloads) {
		if cfg.matches(p) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 && !cfg.All {
		fmt.Fprintln(c.Out, "No recorded progress matches the given filters.")
		return nil
	}

	writeCleanSummary(c.Out, candidates)

	if cfg.DryRun {
		fmt.Fprintln(c.Out, "\nDry run: no changes made.")
		return nil
	}
	if !cfg.Yes {
		msg := fmt.Sprintf(
			"\nDelete progress of %d courses?", len(candidates),
		)
		if !confirm(c.In, c.Out, msg) {
			fmt.Fprintln(c.Out, "Aborted.")
			return nil
		}
	}

	w := sync.NewWriter(c.DB)
	if cfg.All {
		if err := w.CleanUpPreviousDownloadProgress(ctx); err != nil {
			return fmt.Errorf("clearing progress: %w", err)
		}
		fmt.Fprintf(c.Out, "\nCleared progress of %d courses\n",
			len(candidates))
		return nil
	}

	ids := make([]string, len(candidates))
	for i, p := range candidates {
		ids[i] = p.EntryID
	}
	removed, err := w.CleanCourses(ctx, ids)
	if err != nil {
		return fmt.Errorf("cleaning courses: %w", err)
	}
	fmt.Fprintf(c.Out, "\nRemoved %d nodes from %d courses\n",
		removed, len(ids))
	return nil
}

func confirm(r io.Reader, w io.Writer, msg string) bool {
	fmt.Fprintf(w, "%s [y/N] ", msg)
	scanner := bufio.NewScanner(r)
	scanner.Scan()
	ans := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return ans == "y" || ans == "yes"
}

func writeCleanSummary(w io.Writer, courses []courseProgress) {
	var nodes, failed int
	var bytes int64
	for _, c := range courses {
		nodes += c.Nodes
		failed += c.Failed
		bytes += c.Bytes
	}
	fmt.Fprintf(w,
		"Found %d courses (%d nodes, %d failed, %s selected)\n",
		len(courses), nodes, failed, formatBytes(bytes),
	)
	if len(courses) == 0 {
		return
	}
	fmt.Fprintln(w, "\nBy course:")
	for _, c := range courses {
		fmt.Fprintf(w, "  %-40s %d\n", c.EntryID, c.Nodes)
	}
}

func runClean(args []string) {
	cfg, err := parseCleanFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	appCfg, err := config.LoadMinimal()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	database, err := db.Open(appCfg.DBPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	cleaner := &Cleaner{DB: database, Out: os.Stdout, In: os.Stdin}
	if err := cleaner.Clean(context.Background(), cfg); err != nil {
		log.Fatalf("clean: %v", err)
	}
}
