package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"

	"github.com/sahilm/fuzzy"

	"github.com/wesm/coursesync/internal/config"
	"github.com/wesm/coursesync/internal/db"
	"github.com/wesm/coursesync/internal/sync"
)

// StatusConfig holds parsed CLI options for the status command.
type StatusConfig struct {
	Match string
	JSON  bool
}

func parseStatusFlags(args []string) (StatusConfig, error) {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	match := fs.String(
		"match", "",
		"Only courses whose id fuzzy-matches this text",
	)
	asJSON := fs.Bool("json", false, "Print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return StatusConfig{}, err
	}
	if fs.NArg() > 0 {
		return StatusConfig{}, fmt.Errorf(
			"unexpected arguments: %v", fs.Args(),
		)
	}
	return StatusConfig{Match: *match, JSON: *asJSON}, nil
}

// courseStatus is one course line of the status report.
type courseStatus struct {
	db.DownloadProgress
	Failed int `json:"failed"`
}

type statusReport struct {
	Result  db.SyncResult  `json:"result"`
	Totals  sync.Totals    `json:"totals"`
	Courses []courseStatus `json:"courses"`
}

// Reporter prints the progress of the current run.
type Reporter struct {
	DB  *db.DB
	Out io.Writer
}

// Report reads the store once and prints a report.
func (r *Reporter) Report(ctx context.Context, cfg StatusConfig) error {
	rows, err := r.DB.ListDownloadProgress(ctx)
	if err != nil {
		return err
	}
	states, err := r.DB.ListStateProgress(ctx)
	if err != nil {
		return err
	}
	res, err := r.DB.GetSyncResult(ctx)
	if err != nil {
		return err
	}

	rows = matchCourses(rows, cfg.Match)
	failed := make(map[string]int)
	for _, s := range states {
		if s.State.IsError() {
			failed[s.Selection.EntryID]++
		}
	}
	report := statusReport{
		Result:  res,
		Totals:  sync.TotalsOf(rows),
		Courses: make([]courseStatus, len(rows)),
	}
	for i, row := range rows {
		report.Courses[i] = courseStatus{
			DownloadProgress: row,
			Failed:           failed[row.EntryID],
		}
	}

	if cfg.JSON {
		enc := json.NewEncoder(r.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	writeReport(r.Out, report)
	return nil
}

// matchCourses keeps rows whose entry id fuzzy-matches query,
// best match first. An empty query keeps every row.
func matchCourses(
	rows []db.DownloadProgress, query string,
) []db.DownloadProgress {
	if query == "" {
		return rows
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.EntryID
	}
	matches := fuzzy.Find(query, ids)
	out := make([]db.DownloadProgress, len(matches))
	for i, m := range matches {
		out[i] = rows[m.Index]
	}
	return out
}

func writeReport(w io.Writer, r statusReport) {
	switch {
	case r.Result.RunID == "":
		fmt.Fprintln(w, "No sync run recorded.")
	case r.Result.IsFinished:
		fmt.Fprintf(w, "Run %s finished\n", r.Result.RunID)
	default:
		fmt.Fprintf(w, "Run %s in progress\n", r.Result.RunID)
	}
	if r.Result.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", r.Result.Error)
	}
	if len(r.Courses) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "COURSE\tPROGRESS\tDOWNLOADED\tFAILED")
	for _, c := range r.Courses {
		fmt.Fprintf(tw, "%s\t%.1f%%\t%s / %s\t%d\n",
			c.EntryID, c.Progress*100,
			formatBytes(c.BytesDownloaded),
			formatBytes(c.BytesToDownload), c.Failed,
		)
	}
	tw.Flush()

	fmt.Fprintf(w, "\n%d/%d courses done, %.1f%% (%s of %s)\n",
		r.Totals.CoursesDone, r.Totals.Courses, r.Totals.Percent(),
		formatBytes(r.Totals.BytesDownloaded),
		formatBytes(r.Totals.BytesToDownload),
	)
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func runStatus(args []string) {
	cfg, err := parseStatusFlags(args)
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

	r := &Reporter{DB: database, Out: os.Stdout}
	if err := r.Report(context.Background(), cfg); err != nil {
		log.Fatalf("status: %v", err)
	}
}
