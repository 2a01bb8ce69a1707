package catalog

import (
	"path/filepath"
	"testing"
	"time"
)

func TestCatalogRecordsAndLastRun(t *testing.T) {
	dir := t.TempDir()
	cat, err := Open(filepath.Join(dir, "photocopy.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cat.Close()

	last, err := cat.LastRunTime()
	if err != nil {
		t.Fatalf("LastRunTime failed: %v", err)
	}
	if !last.IsZero() {
		t.Errorf("empty catalog has last run %v", last)
	}

	batch := cat.NewBatch("session-1", 2)
	batch.RecordCopied("/src/a.jpg", "/dest/a.jpg", 100, time.Now())
	batch.RecordCopied("/src/b.jpg", "/dest/b.jpg", 200, time.Now()) // hits the batch size, flushes
	batch.RecordCopied("/src/c.jpg", "/dest/c.jpg", 300, time.Now())
	batch.Flush()

	var count int
	if err := cat.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 3 {
		t.Errorf("rows = %d, want 3", count)
	}

	last, err = cat.LastRunTime()
	if err != nil {
		t.Fatalf("LastRunTime failed: %v", err)
	}
	if last.IsZero() {
		t.Error("last run should be set after recording")
	}
	if time.Since(last) > time.Minute {
		t.Errorf("last run suspiciously old: %v", last)
	}
}

func TestBatchFlushIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	cat, err := Open(filepath.Join(dir, "photocopy.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer cat.Close()

	batch := cat.NewBatch("session-2", 100)
	batch.RecordCopied("/src/a.jpg", "/dest/a.jpg", 1, time.Now())
	batch.Flush()
	batch.Flush()

	var count int
	cat.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&count)
	if count != 1 {
		t.Errorf("double flush duplicated rows: %d", count)
	}
}
