package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"slices"
	"strings"

	"github.com/wesm/coursesync/internal/config"
	"github.com/wesm/coursesync/internal/course"
	"github.com/wesm/coursesync/internal/defaults"
)

// SelectConfig holds parsed CLI options for the select command.
type SelectConfig struct {
	Session string
	Paths   []string
	Remove  bool
	Replace bool
	Clear   bool
}

func parseSelectFlags(args []string) (SelectConfig, error) {
	fs := flag.NewFlagSet("select", flag.ContinueOnError)
	session := fs.String("session", "", "Session to change")
	remove := fs.Bool(
		"remove", false,
		"Remove the given paths instead of adding them",
	)
	replace := fs.Bool(
		"replace", false,
		"Replace every stored path with the given ones",
	)
	clearAll := fs.Bool("clear", false, "Remove every stored path")
	if err := fs.Parse(args); err != nil {
		return SelectConfig{}, err
	}

	cfg := SelectConfig{
		Session: *session,
		Remove:  *remove,
		Replace: *replace,
		Clear:   *clearAll,
	}
	for _, p := range fs.Args() {
		cfg.Paths = append(cfg.Paths, normalizePath(p))
	}

	modes := 0
	for _, on := range []bool{cfg.Remove, cfg.Replace, cfg.Clear} {
		if on {
			modes++
		}
	}
	if modes > 1 {
		return SelectConfig{}, errors.New(
			"use only one of --remove, --replace, --clear",
		)
	}
	if cfg.Clear && len(cfg.Paths) > 0 {
		return SelectConfig{}, errors.New("--clear takes no paths")
	}
	if cfg.Remove && len(cfg.Paths) == 0 {
		return SelectConfig{}, errors.New("--remove needs at least one path")
	}
	return cfg, nil
}

// normalizePath turns a bare course id into its entry path.
func normalizePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" || strings.HasPrefix(p, "courses/") {
		return p
	}
	return course.EntryID(p)
}

// selectionStore is the part of the defaults store select uses.
type selectionStore interface {
	OfflineSyncSelections() ([]string, error)
	SetOfflineSyncSelections(paths []string) error
}

// Selector edits the stored offline sync selections.
type Selector struct {
	Store selectionStore
	Out   io.Writer
}

// Select applies cfg and prints the resulting paths. With no
// paths and no mode it only prints.
func (s *Selector) Select(cfg SelectConfig) error {
	current, err := s.Store.OfflineSyncSelections()
	if err != nil {
		return fmt.Errorf("reading selections: %w", err)
	}

	next := current
	changed := true
	switch {
	case cfg.Clear:
		next = []string{}
	case cfg.Replace:
		next = dedupe(cfg.Paths)
	case cfg.Remove:
		next = removePaths(current, cfg.Paths)
	case len(cfg.Paths) > 0:
		next = dedupe(append(slices.Clone(current), cfg.Paths...))
	default:
		changed = false
	}

	if changed {
		if err := s.Store.SetOfflineSyncSelections(next); err != nil {
			return fmt.Errorf("saving selections: %w", err)
		}
	}

	if len(next) == 0 {
		fmt.Fprintln(s.Out, "No paths selected for offline sync.")
		return nil
	}
	for _, p := range next {
		fmt.Fprintln(s.Out, p)
	}
	return nil
}

func dedupe(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// removePaths drops every path in remove. Removing a course
// also drops its tab and file paths.
func removePaths(current, remove []string) []string {
	out := make([]string, 0, len(current))
	for _, p := range current {
		if slices.Contains(remove, p) ||
			slices.Contains(remove, course.EntryIDOf(p)) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func runSelect(args []string) {
	cfg, err := parseSelectFlags(args)
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
	if cfg.Session == "" {
		cfg.Session = appCfg.SessionID
	}

	store, err := defaults.Open(appCfg.DefaultsPath, cfg.Session)
	if err != nil {
		log.Fatalf("%v (is the server running?)", err)
	}
	defer store.Close()

	s := &Selector{Store: store, Out: os.Stdout}
	if err := s.Select(cfg); err != nil {
		log.Fatalf("select: %v", err)
	}
}
