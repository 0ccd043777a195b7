package db

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/mod/semver"
)

//go:embed schema.sql
var schemaSQL string

// SchemaVersion is the layout this build reads and writes.
// v1.1.0 added updated_at stamps to every progress table.
const SchemaVersion = "v1.1.0"

// ErrSchemaTooNew is returned by Open when the database was
// written by a newer build.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

// DB manages a write connection and a read-only pool, and
// fans out a signal to subscribers after every committed
// write.
type DB struct {
	path   string
	writer *sql.DB
	reader *sql.DB
	mu     sync.Mutex // serializes writes

	subMu   sync.Mutex
	subs    map[int]chan struct{}
	nextSub int
}

// makeDSN builds a SQLite connection string with shared pragmas.
func makeDSN(path string, readOnly bool) string {
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", "5000")
	params.Set("_foreign_keys", "ON")
	if readOnly {
		params.Set("mode", "ro")
	} else {
		params.Set("_synchronous", "NORMAL")
	}
	return path + "?" + params.Encode()
}

// Open creates or opens the progress database at path.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	writer, err := sql.Open("sqlite3", makeDSN(path, false))
	if err != nil {
		return nil, fmt.Errorf("opening writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	reader, err := sql.Open("sqlite3", makeDSN(path, true))
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("opening reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	db := &DB{
		path:   path,
		writer: writer,
		reader: reader,
		subs:   make(map[int]chan struct{}),
	}
	if err := db.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// ensureColumn adds a column if it doesn't already exist.
func (db *DB) ensureColumn(
	table, column, definition string,
) error {
	var count int
	err := db.writer.QueryRow(
		fmt.Sprintf(
			"SELECT count(*) FROM pragma_table_info('%s')"+
				" WHERE name='%s'",
			table, column,
		),
	).Scan(&count)
	if err != nil {
		return fmt.Errorf(
			"checking column %s.%s: %w", table, column, err,
		)
	}
	if count > 0 {
		return nil
	}
	_, err = db.writer.Exec(fmt.Sprintf(
		"ALTER TABLE %s ADD COLUMN %s %s",
		table, column, definition,
	))
	if err == nil {
		return nil
	}
	// Another process sharing the file may have added it.
	var check int
	if checkErr := db.writer.QueryRow(
		fmt.Sprintf(
			"SELECT count(*) FROM pragma_table_info('%s')"+
				" WHERE name='%s'",
			table, column,
		),
	).Scan(&check); checkErr == nil && check > 0 {
		return nil
	}
	return err
}

func (db *DB) init() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, err := db.writer.Exec(schemaSQL); err != nil {
		return err
	}

	stored, err := db.storedVersion()
	if err != nil {
		return err
	}
	if stored != "" {
		if !semver.IsValid(stored) {
			return fmt.Errorf("invalid stored schema version %q", stored)
		}
		if semver.Compare(stored, SchemaVersion) > 0 {
			return fmt.Errorf(
				"%w: %s > %s", ErrSchemaTooNew, stored, SchemaVersion,
			)
		}
	}

	// v1.1.0: updated_at stamps.
	for _, table := range []string{
		"state_progress", "download_progress", "sync_result",
	} {
		if err := db.ensureColumn(
			table, "updated_at", "TEXT NOT NULL DEFAULT ''",
		); err != nil {
			return fmt.Errorf("adding %s.updated_at: %w", table, err)
		}
	}

	if stored == SchemaVersion {
		return nil
	}
	_, err = db.writer.Exec(
		`INSERT INTO schema_meta (key, value)
		 VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		SchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	return nil
}

func (db *DB) storedVersion() (string, error) {
	var v string
	err := db.writer.QueryRow(
		"SELECT value FROM schema_meta WHERE key = 'schema_version'",
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// StoredVersion returns the schema version recorded in the
// database file.
func (db *DB) StoredVersion() (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.storedVersion()
}

// Close closes both writer and reader connections and every
// subscription channel.
func (db *DB) Close() error {
	db.subMu.Lock()
	for id, ch := range db.subs {
		close(ch)
		delete(db.subs, id)
	}
	db.subMu.Unlock()
	return errors.Join(db.writer.Close(), db.reader.Close())
}

// Update executes fn within a write lock and transaction.
// The transaction is committed if fn returns nil, rolled back
// otherwise. Subscribers are signalled after a commit.
func (db *DB) Update(
	ctx context.Context, fn func(tx *sql.Tx) error,
) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	db.notify()
	return nil
}

// Reader returns the read-only connection pool.
func (db *DB) Reader() *sql.DB {
	return db.reader
}

// Subscribe returns a channel that receives a value after
// each committed write, and a function that ends the
// subscription. Signals coalesce: a slow reader sees one
// pending signal no matter how many writes happened.
func (db *DB) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	db.subMu.Lock()
	id := db.nextSub
	db.nextSub++
	db.subs[id] = ch
	db.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			db.subMu.Lock()
			defer db.subMu.Unlock()
			if _, ok := db.subs[id]; ok {
				delete(db.subs, id)
				close(ch)
			}
		})
	}
}

// NotifyChanged signals subscribers that the file changed
// outside this process.
func (db *DB) NotifyChanged() {
	db.notify()
}

func (db *DB) notify() {
	db.subMu.Lock()
	defer db.subMu.Unlock()
	for _, ch := range db.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
