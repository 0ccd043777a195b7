package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wesm/coursesync/internal/composer"
	"github.com/wesm/coursesync/internal/config"
	"github.com/wesm/coursesync/internal/db"
	"github.com/wesm/coursesync/internal/defaults"
	"github.com/wesm/coursesync/internal/logging"
	"github.com/wesm/coursesync/internal/notify"
	"github.com/wesm/coursesync/internal/server"
	"github.com/wesm/coursesync/internal/sync"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const (
	watcherDebounce = 250 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "status":
			runStatus(os.Args[2:])
			return
		case "select":
			runSelect(os.Args[2:])
			return
		case "clean":
			runClean(os.Args[2:])
			return
		case "serve":
			runServe(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("coursesync %s (commit %s, built %s, schema %s)\n",
				version, commit, buildDate, db.SchemaVersion)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	runServe(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`coursesync %s - offline course sync progress engine

Tracks which courses, tabs and files are opted in for offline
sync, records download progress in SQLite, and serves live
progress to the UI over a local HTTP API.

Usage:
  coursesync [flags]            Start the server (default command)
  coursesync serve [flags]      Start the server (explicit)
  coursesync status [flags]     Show progress of the current run
  coursesync select [flags] ..  Show or change offline sync selections
  coursesync clean [flags]      Delete recorded progress
  coursesync version            Show version information
  coursesync help               Show this help

Server flags:
  -host string        Host to bind to (default "127.0.0.1")
  -port int           Port to listen on (default 8090)
  -listing string     Course listing JSON file
  -session string     Session whose selections to sync (default "default")
  -executor string    Command that downloads triggered entries
  -watch-external     Pick up progress written by other processes (default true)
  -log-level string   Log level: debug, info, warn, error (default "info")

Status flags:
  -match string       Only courses whose id fuzzy-matches this text
  -json               Print JSON instead of a table

Select flags:
  -session string     Session to change (default from config)
  -remove             Remove the given paths instead of adding them
  -replace            Replace every stored path with the given ones
  -clear              Remove every stored path

Clean flags:
  -course string      Course to clean (repeatable; id or courses/<id>)
  -failed             Courses with at least one failed node
  -all                Every course and the run result
  -dry-run            Show what would be removed without deleting
  -yes                Skip confirmation prompt

Environment variables:
  COURSESYNC_DATA_DIR    Data directory (database, defaults, config)
  COURSESYNC_<KEY>       Any config.json key, e.g. COURSESYNC_PORT

Data is stored in ~/.coursesync/ by default. The select command
cannot run while the server holds the defaults file; use
PUT /api/v1/selections instead.
`, version)
}

func runServe(args []string) {
	cfg := mustLoadConfig(args)
	logCloser := mustSetupLogging(cfg)
	defer logCloser.Close()

	database := mustOpenDB(cfg)
	defer database.Close()

	prefs, err := defaults.Open(cfg.DefaultsPath, cfg.SessionID)
	if err != nil {
		log.Fatalf("opening defaults: %v", err)
	}
	defer prefs.Close()

	bus := notify.NewBus()
	if cfg.ExecutorCommand != "" {
		hook, err := notify.NewExecHook(cfg.ExecutorCommand)
		if err != nil {
			log.Fatalf("executor: %v", err)
		}
		detach := hook.Attach(bus)
		defer detach()
		recoverInterruptedRun(database)
	}

	interactor := sync.NewInteractor(
		composer.NewFile(cfg.ListingPath), prefs,
		sync.NewObserver(database), bus,
	)

	if cfg.WatchExternal {
		stopWatcher := startFileWatcher(cfg, database)
		defer stopWatcher()
	}

	port := server.FindAvailablePort(cfg.Host, cfg.Port)
	if port != cfg.Port {
		fmt.Printf("Port %d in use, using %d\n", cfg.Port, port)
	}
	cfg.Port = port

	srv := server.New(cfg, database, interactor, prefs,
		server.WithVersion(server.VersionInfo{
			Version:       version,
			Commit:        commit,
			BuildDate:     buildDate,
			SchemaVersion: db.SchemaVersion,
		}),
	)

	fmt.Printf("coursesync %s listening at http://%s:%d\n",
		version, cfg.Host, cfg.Port)

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown", "err", err)
		}
	}
}

func mustLoadConfig(args []string) config.Config {
	fs := flag.NewFlagSet("coursesync", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: coursesync [serve] [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	config.RegisterServeFlags(fs)
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	return cfg
}

func mustSetupLogging(cfg config.Config) io.Closer {
	logger, closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatalf("setting up logging: %v", err)
	}
	slog.SetDefault(logger)
	return closer
}

func mustOpenDB(cfg config.Config) *db.DB {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	return database
}

// recoverInterruptedRun fails nodes left loading by a previous
// process. Only called when this process owns the executor.
func recoverInterruptedRun(database *db.DB) {
	n, err := sync.NewWriter(database).
		MarkInProgressDownloadsAsFailed(context.Background())
	if err != nil {
		slog.Warn("recovering interrupted run", "err", err)
		return
	}
	if n > 0 {
		fmt.Printf("Marked %d interrupted downloads as failed\n", n)
	}
}

// startFileWatcher turns writes made by other processes to the
// progress database into change notifications.
func startFileWatcher(cfg config.Config, database *db.DB) func() {
	watcher, err := sync.NewWatcher(watcherDebounce, func([]string) {
		database.NotifyChanged()
	})
	if err != nil {
		slog.Warn("file watcher unavailable", "err", err)
		return func() {}
	}
	watcher.Start()
	if err := watcher.WatchFiles(
		cfg.DBPath, cfg.DBPath+"-wal",
	); err != nil {
		slog.Warn("watching database", "err", err)
		watcher.Stop()
		return func() {}
	}
	return watcher.Stop
}
