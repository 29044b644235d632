// Package index caches the header classification of notebook files in a
// small SQLite database, so reopening a large notebook does not rescan
// files that have not changed. The cache lives outside the notebook folder
// and is strictly advisory: a miss or a stale row only costs a rescan.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	_ "modernc.org/sqlite" // SQLite driver
)

// DB wraps the SQLite handle for the header cache.
type DB struct {
	sql  *sql.DB
	path string
}

// Open initialises the cache database at the given path.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("cache path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", path)
	handle, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("ping cache database: %w", err)
	}

	if err := ensurePerm0600(path); err != nil {
		handle.Close()
		return nil, err
	}

	return &DB{sql: handle, path: path}, nil
}

// Close releases the database resources.
func Close(d *DB) error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// The cache never holds note bodies or keys, but header metadata still
// reveals the notebook's shape, so keep it owner-readable only.
func ensurePerm0600(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("chmod cache database: %w", err)
	}
	return nil
}

const createHeadersTable = `
CREATE TABLE IF NOT EXISTS headers (
	path         TEXT    PRIMARY KEY,
	mtime_ns     INTEGER NOT NULL,
	size         INTEGER NOT NULL,
	item_id      TEXT    NOT NULL,
	item_type    INTEGER NOT NULL,
	encrypted    INTEGER NOT NULL,
	updated_time TEXT    NOT NULL DEFAULT ''
);
`

// Migrate ensures the headers table exists.
func Migrate(d *DB) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("cache handle is nil")
	}
	if _, err := d.sql.Exec(createHeadersTable); err != nil {
		return fmt.Errorf("migrate cache schema: %w", err)
	}
	return nil
}

// Row is one cached header classification, keyed by file path and validated
// against the file's modification time and size.
type Row struct {
	Path        string
	MTimeNS     int64
	Size        int64
	ItemID      string
	ItemType    int
	Encrypted   bool
	UpdatedTime string
}

// Put inserts or replaces the cached classification for a file.
func Put(d *DB, r Row) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("cache handle is nil")
	}
	_, err := d.sql.Exec(
		`INSERT INTO headers (path, mtime_ns, size, item_id, item_type, encrypted, updated_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			mtime_ns = excluded.mtime_ns,
			size = excluded.size,
			item_id = excluded.item_id,
			item_type = excluded.item_type,
			encrypted = excluded.encrypted,
			updated_time = excluded.updated_time`,
		r.Path, r.MTimeNS, r.Size, r.ItemID, r.ItemType, boolToInt(r.Encrypted), r.UpdatedTime,
	)
	if err != nil {
		return fmt.Errorf("upsert header row: %w", err)
	}
	return nil
}

// Get returns the cached classification for a file, but only when the
// stored modification time and size still match. A changed file reads as a
// cache miss.
func Get(d *DB, path string, mtimeNS, size int64) (Row, bool, error) {
	if d == nil || d.sql == nil {
		return Row{}, false, fmt.Errorf("cache handle is nil")
	}

	var r Row
	var encrypted int
	err := d.sql.QueryRow(
		`SELECT path, mtime_ns, size, item_id, item_type, encrypted, updated_time
		 FROM headers WHERE path = ? AND mtime_ns = ? AND size = ?`,
		path, mtimeNS, size,
	).Scan(&r.Path, &r.MTimeNS, &r.Size, &r.ItemID, &r.ItemType, &encrypted, &r.UpdatedTime)
	if err == sql.ErrNoRows {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("select header row: %w", err)
	}
	r.Encrypted = encrypted == 1
	return r, true, nil
}

// Prune drops rows for files that no longer exist in the notebook.
func Prune(d *DB, keep map[string]bool) error {
	if d == nil || d.sql == nil {
		return fmt.Errorf("cache handle is nil")
	}

	rows, err := d.sql.Query(`SELECT path FROM headers`)
	if err != nil {
		return fmt.Errorf("select cached paths: %w", err)
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return fmt.Errorf("scan cached path: %w", err)
		}
		if !keep[p] {
			stale = append(stale, p)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate cached paths: %w", err)
	}

	for _, p := range stale {
		if _, err := d.sql.Exec(`DELETE FROM headers WHERE path = ?`, p); err != nil {
			return fmt.Errorf("delete stale row: %w", err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
