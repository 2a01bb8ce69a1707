// Package catalog keeps a durable sqlite record of every completed copy.
// It powers the "last run" display and post-hoc auditing; the engine
// itself never reads it during execution.
package catalog

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Catalog wraps the sqlite database.
type Catalog struct {
	db *sql.DB
}

// Open opens (creating if needed) the catalog at path.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		src_path TEXT,
		dest_path TEXT,
		size INTEGER,
		mtime INTEGER,
		session_id TEXT,
		copied_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_dest ON files(dest_path);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// LastRunTime returns the most recent copied_at time, or zero when the
// catalog is empty.
func (c *Catalog) LastRunTime() (time.Time, error) {
	row := c.db.QueryRow("SELECT MAX(copied_at) FROM files WHERE copied_at IS NOT NULL")
	var last sql.NullString
	if err := row.Scan(&last); err != nil || !last.Valid || last.String == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339, last.String)
	if err != nil {
		return time.Time{}, nil
	}
	return parsed, nil
}

// record is one buffered row.
type record struct {
	srcPath  string
	destPath string
	size     int64
	mtime    int64
	copiedAt string
}

// Batch buffers completed copies and writes them in transactions of
// batchSize rows, so sqlite is hit once per batch rather than once per
// copy. The RecordCopied call that fills a batch performs the write
// itself. Safe for concurrent RecordCopied.
type Batch struct {
	db        *sql.DB
	sessionID string
	batchSize int

	mu      sync.Mutex
	records []record
}

// NewBatch creates a batch inserter for one run session.
func (c *Catalog) NewBatch(sessionID string, batchSize int) *Batch {
	if batchSize <= 0 {
		batchSize = 1000
	}
	return &Batch{
		db:        c.db,
		sessionID: sessionID,
		batchSize: batchSize,
		records:   make([]record, 0, batchSize),
	}
}

// RecordCopied buffers one completed copy. Implements the executor's
// Recorder hook.
func (b *Batch) RecordCopied(sourcePath, destPath string, size int64, modTime time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, record{
		srcPath:  sourcePath,
		destPath: destPath,
		size:     size,
		mtime:    modTime.Unix(),
		copiedAt: time.Now().Format(time.RFC3339),
	})
	if len(b.records) >= b.batchSize {
		b.flushLocked()
	}
}

// Flush writes any buffered records.
func (b *Batch) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *Batch) flushLocked() {
	if len(b.records) == 0 {
		return
	}
	tx, err := b.db.Begin()
	if err != nil {
		return
	}
	stmt, err := tx.Prepare("INSERT INTO files (src_path, dest_path, size, mtime, session_id, copied_at) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return
	}
	defer stmt.Close()

	for _, r := range b.records {
		stmt.Exec(r.srcPath, r.destPath, r.size, r.mtime, b.sessionID, r.copiedAt)
	}
	if err := tx.Commit(); err != nil {
		tx.Rollback()
		return
	}
	b.records = b.records[:0]
}
