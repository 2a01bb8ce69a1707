package txlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerLifecycle(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(dir)

	tx, err := l.Begin("/src", "/dest/{year}", false)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if tx.Status != StatusInProgress {
		t.Errorf("new transaction status = %s", tx.Status)
	}
	if !strings.HasPrefix(filepath.Base(l.Path()), "photocopy-") {
		t.Errorf("log path = %s", l.Path())
	}

	l.LogDirectoryCreated("/dest/2023")
	if err := l.LogOperation(OpCopy, "/src/a.jpg", "/dest/2023/a.jpg", 100); err != nil {
		t.Fatalf("LogOperation failed: %v", err)
	}
	if err := l.Complete(); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}

	// The wire format is camelCase JSON; check the raw keys, not just
	// the struct round-trip.
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"transactionId", "startTime", "endTime", "sourceDirectory", "destinationPattern", "isDryRun", "status", "createdDirectories", "operations"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q in persisted log", key)
		}
	}
	if raw["status"] != "Completed" {
		t.Errorf("status = %v", raw["status"])
	}
	ops := raw["operations"].([]any)
	op := ops[0].(map[string]any)
	if op["operation"] != "Copy" || op["sourcePath"] != "/src/a.jpg" || op["destinationPath"] != "/dest/2023/a.jpg" {
		t.Errorf("operation entry = %v", op)
	}
	if op["fileSize"] != float64(100) {
		t.Errorf("fileSize = %v", op["fileSize"])
	}
}

func TestLoggerTransactionIDFormat(t *testing.T) {
	l := NewLogger(t.TempDir())
	tx, err := l.Begin("/src", "/dest", false)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	// YYYYMMDD-HHMMSS-<8 hex>
	parts := strings.Split(tx.TransactionID, "-")
	if len(parts) != 3 || len(parts[0]) != 8 || len(parts[1]) != 6 || len(parts[2]) != 8 {
		t.Errorf("transaction id = %s", tx.TransactionID)
	}
}

func TestLoggerSingleInProgress(t *testing.T) {
	l := NewLogger(t.TempDir())
	if _, err := l.Begin("/src", "/dest", false); err != nil {
		t.Fatalf("first Begin failed: %v", err)
	}
	if _, err := l.Begin("/src", "/dest", false); err == nil {
		t.Error("second Begin while in progress should fail")
	}

	l.Fail("test over")
	if _, err := l.Begin("/src", "/dest", false); err != nil {
		t.Errorf("Begin after Fail should work: %v", err)
	}
}

func TestLoggerPanicsWithoutTransaction(t *testing.T) {
	l := NewLogger(t.TempDir())
	defer func() {
		if recover() == nil {
			t.Error("LogOperation without a transaction should panic")
		}
	}()
	l.LogOperation(OpCopy, "/a", "/b", 0)
}

func TestLoggerFull(t *testing.T) {
	l := NewLogger(t.TempDir())
	if _, err := l.Begin("/src", "/dest", false); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	for i := 0; i < MaxOperationsPerLog; i++ {
		if err := l.LogOperation(OpCopy, "/a", "/b", 1); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}
	if !l.IsLogFull() {
		t.Error("IsLogFull should report true at the cap")
	}
	if err := l.LogOperation(OpCopy, "/a", "/b", 1); err != ErrLogFull {
		t.Errorf("append past cap = %v, want ErrLogFull", err)
	}
}

func TestLoggerAtomicSave(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(dir)
	l.Begin("/src", "/dest", false)
	l.LogOperation(OpCopy, "/a", "/b", 1)
	if err := l.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// No temp sibling may survive a save.
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestListTransactionLogs(t *testing.T) {
	dir := t.TempDir()

	l := NewLogger(dir)
	l.Begin("/src", "/dest", false)
	l.LogOperation(OpCopy, "/a", "/b", 1)
	l.Complete()

	l2 := NewLogger(dir)
	l2.Begin("/src", "/dest", true)
	l2.Fail("boom")

	// Malformed and unrelated files are skipped silently.
	os.WriteFile(filepath.Join(dir, "photocopy-broken.json"), []byte("{nope"), 0644)
	os.WriteFile(filepath.Join(dir, "unrelated.json"), []byte("{}"), 0644)

	infos := ListTransactionLogs(dir)
	if len(infos) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(infos))
	}
	byID := make(map[string]LogInfo)
	for _, info := range infos {
		byID[info.TransactionID] = info
	}
	first := byID[l.current.TransactionID]
	if first.Status != StatusCompleted || first.OperationCount != 1 {
		t.Errorf("first log info = %+v", first)
	}

	if got := ListTransactionLogs(filepath.Join(dir, "missing")); len(got) != 0 {
		t.Errorf("missing directory should list nothing, got %d", len(got))
	}
}
