package txlog

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"photocopy/internal/fsys"
)

// writeLog persists a hand-built transaction log for rollback tests.
func writeLog(t *testing.T, dir string, tx *TransactionLog) string {
	t.Helper()
	path := filepath.Join(dir, "photocopy-"+tx.TransactionID+".json")
	data, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		t.Fatalf("marshal log: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func completedLog(ops []FileOperationEntry, dirs []string) *TransactionLog {
	now := time.Now()
	return &TransactionLog{
		TransactionID:      "20240101-093000-ab12cd34",
		StartTime:          now.Add(-time.Minute),
		EndTime:            &now,
		SourceDirectory:    "/S",
		DestinationPattern: "/D/{year}/{month}/{name}{ext}",
		Status:             StatusCompleted,
		CreatedDirectories: dirs,
		Operations:         ops,
	}
}

func TestRollbackMissingLog(t *testing.T) {
	result := Rollback(context.Background(), fsys.NewMem(), "/nowhere/photocopy-x.json")
	if result.Success {
		t.Error("missing log should fail")
	}
	if len(result.Errors) != 1 || result.Errors[0] != "Transaction log not found" {
		t.Errorf("errors = %v", result.Errors)
	}
}

func TestRollbackDryRunRefused(t *testing.T) {
	dir := t.TempDir()
	tx := completedLog(nil, nil)
	tx.IsDryRun = true
	path := writeLog(t, dir, tx)

	result := Rollback(context.Background(), fsys.NewMem(), path)
	if result.Success {
		t.Error("dry run rollback should fail")
	}
	if result.Errors[0] != "Cannot rollback a dry run transaction" {
		t.Errorf("errors = %v", result.Errors)
	}
}

func TestRollbackCopy(t *testing.T) {
	dir := t.TempDir()
	mem := fsys.NewMem()
	mem.AddFile("/D/2024/01/x.jpg", 10, time.Now())

	tx := completedLog([]FileOperationEntry{
		{Operation: OpCopy, SourcePath: "/S/x.jpg", DestinationPath: "/D/2024/01/x.jpg", FileSize: 10},
	}, []string{"/D/2024/01"})
	path := writeLog(t, dir, tx)

	result := Rollback(context.Background(), mem, path)
	if !result.Success {
		t.Fatalf("rollback failed: %v", result.Errors)
	}
	if mem.FileExists("/D/2024/01/x.jpg") {
		t.Error("copied file should be deleted")
	}
	if result.FilesRestored != 1 {
		t.Errorf("FilesRestored = %d", result.FilesRestored)
	}
	if result.DirectoriesRemoved != 1 {
		t.Errorf("DirectoriesRemoved = %d", result.DirectoriesRemoved)
	}

	// The log itself records the rollback.
	data, _ := os.ReadFile(path)
	var reloaded TransactionLog
	json.Unmarshal(data, &reloaded)
	if reloaded.Status != StatusRolledBack {
		t.Errorf("log status = %s, want RolledBack", reloaded.Status)
	}
}

func TestRollbackMove(t *testing.T) {
	dir := t.TempDir()
	mem := fsys.NewMem()
	mem.AddFile("/D/2024/01/x.jpg", 10, time.Now())

	tx := completedLog([]FileOperationEntry{
		{Operation: OpMove, SourcePath: "/S/x.jpg", DestinationPath: "/D/2024/01/x.jpg", FileSize: 10},
	}, []string{"/D/2024/01"})
	path := writeLog(t, dir, tx)

	result := Rollback(context.Background(), mem, path)
	if !result.Success {
		t.Fatalf("rollback failed: %v", result.Errors)
	}
	if mem.FileExists("/D/2024/01/x.jpg") {
		t.Error("destination should be gone")
	}
	if !mem.FileExists("/S/x.jpg") {
		t.Error("source should be restored")
	}
	if mem.DirectoryExists("/D/2024/01") {
		t.Error("created directory should be removed when empty")
	}
	if result.FilesRestored != 1 {
		t.Errorf("FilesRestored = %d", result.FilesRestored)
	}
}

func TestRollbackMoveMissingDestination(t *testing.T) {
	dir := t.TempDir()
	mem := fsys.NewMem()

	tx := completedLog([]FileOperationEntry{
		{Operation: OpMove, SourcePath: "/S/x.jpg", DestinationPath: "/D/2024/01/x.jpg", FileSize: 10},
	}, nil)
	path := writeLog(t, dir, tx)

	result := Rollback(context.Background(), mem, path)
	if result.Success {
		t.Error("missing move destination should fail the rollback")
	}
	if result.FilesFailed != 1 {
		t.Errorf("FilesFailed = %d, want 1", result.FilesFailed)
	}
	found := false
	for _, e := range result.Errors {
		if strings.Contains(e, "Destination file not found: /D/2024/01/x.jpg") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected missing-destination error, got %v", result.Errors)
	}

	// A failed rollback must not rewrite the log.
	data, _ := os.ReadFile(path)
	var reloaded TransactionLog
	json.Unmarshal(data, &reloaded)
	if reloaded.Status != StatusCompleted {
		t.Errorf("log status = %s, want unchanged Completed", reloaded.Status)
	}
}

func TestRollbackTwiceIsNoOp(t *testing.T) {
	dir := t.TempDir()
	mem := fsys.NewMem()
	mem.AddFile("/D/2024/01/x.jpg", 10, time.Now())
	mem.AddFile("/D/2024/01/y.jpg", 10, time.Now())

	tx := completedLog([]FileOperationEntry{
		{Operation: OpCopy, SourcePath: "/S/x.jpg", DestinationPath: "/D/2024/01/x.jpg", FileSize: 10},
		{Operation: OpCopy, SourcePath: "/S/y.jpg", DestinationPath: "/D/2024/01/y.jpg", FileSize: 10},
	}, nil)
	path := writeLog(t, dir, tx)

	first := Rollback(context.Background(), mem, path)
	if !first.Success || first.FilesRestored != 2 {
		t.Fatalf("first rollback: %+v", first)
	}
	before := mem.Paths()

	second := Rollback(context.Background(), mem, path)
	if !second.Success {
		t.Errorf("second rollback should succeed as a no-op: %v", second.Errors)
	}
	if second.FilesRestored != 0 {
		t.Errorf("second rollback restored %d files", second.FilesRestored)
	}
	after := mem.Paths()
	if len(before) != len(after) {
		t.Error("second rollback mutated the filesystem")
	}
}

func TestRollbackReversesInLIFOOrder(t *testing.T) {
	dir := t.TempDir()
	mem := fsys.NewMem()
	// Primary and sidecar both present; both must be undone.
	mem.AddFile("/D/2024/01/a.jpg", 10, time.Now())
	mem.AddFile("/D/2024/01/a.xmp", 1, time.Now())

	tx := completedLog([]FileOperationEntry{
		{Operation: OpCopy, SourcePath: "/S/a.jpg", DestinationPath: "/D/2024/01/a.jpg", FileSize: 10},
		{Operation: OpCopy, SourcePath: "/S/a.xmp", DestinationPath: "/D/2024/01/a.xmp", FileSize: 1},
	}, []string{"/D/2024", "/D/2024/01"})
	path := writeLog(t, dir, tx)

	result := Rollback(context.Background(), mem, path)
	if !result.Success {
		t.Fatalf("rollback failed: %v", result.Errors)
	}
	if mem.FileExists("/D/2024/01/a.jpg") || mem.FileExists("/D/2024/01/a.xmp") {
		t.Error("all copies should be removed")
	}
	// Nested directory first, then its parent: both end up removed.
	if mem.DirectoryExists("/D/2024/01") || mem.DirectoryExists("/D/2024") {
		t.Error("created directories should be removed innermost-first")
	}
}
