// Package txlog records every mutating step of a run to a JSON
// transaction log and can undo a transaction in LIFO order.
package txlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MaxOperationsPerLog caps how many operations one transaction log
// records. When full the logger refuses further records; rolling into a
// new transaction is the caller's policy.
const MaxOperationsPerLog = 100000

// ErrLogFull is returned by LogOperation once the cap is reached.
var ErrLogFull = errors.New("transaction log is full")

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusInProgress Status = "InProgress"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
	StatusRolledBack Status = "RolledBack"
)

// OperationType distinguishes copies from moves in the log.
type OperationType string

const (
	OpCopy OperationType = "Copy"
	OpMove OperationType = "Move"
)

// FileOperationEntry is one recorded file mutation.
type FileOperationEntry struct {
	Timestamp       time.Time     `json:"timestamp"`
	Operation       OperationType `json:"operation"`
	SourcePath      string        `json:"sourcePath"`
	DestinationPath string        `json:"destinationPath"`
	FileSize        int64         `json:"fileSize"`
	Checksum        string        `json:"checksum,omitempty"`
}

// TransactionLog is the persistent JSON audit record of one run.
type TransactionLog struct {
	TransactionID      string               `json:"transactionId"`
	StartTime          time.Time            `json:"startTime"`
	EndTime            *time.Time           `json:"endTime,omitempty"`
	SourceDirectory    string               `json:"sourceDirectory"`
	DestinationPattern string               `json:"destinationPattern"`
	IsDryRun           bool                 `json:"isDryRun"`
	Status             Status               `json:"status"`
	ErrorMessage       string               `json:"errorMessage,omitempty"`
	CreatedDirectories []string             `json:"createdDirectories"`
	Operations         []FileOperationEntry `json:"operations"`
}

// Logger owns at most one in-progress transaction at a time. Appends are
// cheap under a mutex; Save snapshots under the lock and writes outside
// it.
type Logger struct {
	mu      sync.Mutex
	dir     string
	current *TransactionLog
	path    string
}

// NewLogger creates a logger whose log files land in dir — the literal
// root of the destination pattern (see DirFor).
func NewLogger(dir string) *Logger {
	return &Logger{dir: dir}
}

// DirFor returns the directory transaction logs live in for a
// destination pattern: its longest literal directory prefix.
func DirFor(destinationPattern string) string {
	prefix := destinationPattern
	if idx := strings.IndexByte(prefix, '{'); idx >= 0 {
		prefix = prefix[:idx]
		if sep := strings.LastIndexAny(prefix, `/\`); sep >= 0 {
			prefix = prefix[:sep]
		}
	} else {
		prefix = filepath.Dir(prefix)
	}
	if prefix == "" {
		prefix = "."
	}
	return prefix
}

// Begin opens a new transaction. Only one transaction may be in progress
// per logger.
func (l *Logger) Begin(sourceDir, destinationPattern string, dryRun bool) (*TransactionLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current != nil && l.current.Status == StatusInProgress {
		return nil, fmt.Errorf("transaction %s is still in progress", l.current.TransactionID)
	}

	now := time.Now()
	id := fmt.Sprintf("%s-%s", now.Format("20060102-150405"), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	l.current = &TransactionLog{
		TransactionID:      id,
		StartTime:          now,
		SourceDirectory:    sourceDir,
		DestinationPattern: destinationPattern,
		IsDryRun:           dryRun,
		Status:             StatusInProgress,
		CreatedDirectories: []string{},
		Operations:         []FileOperationEntry{},
	}
	l.path = filepath.Join(l.dir, fmt.Sprintf("photocopy-%s.json", id))
	return l.current, nil
}

// active returns the in-progress transaction or panics: logging outside
// a transaction is a caller contract violation, not a runtime condition.
func (l *Logger) active() *TransactionLog {
	if l.current == nil || l.current.Status != StatusInProgress {
		panic("txlog: no transaction in progress")
	}
	return l.current
}

// LogOperation appends one file mutation. Returns ErrLogFull at the cap.
func (l *Logger) LogOperation(op OperationType, sourcePath, destinationPath string, fileSize int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx := l.active()
	if len(tx.Operations) >= MaxOperationsPerLog {
		return ErrLogFull
	}
	tx.Operations = append(tx.Operations, FileOperationEntry{
		Timestamp:       time.Now(),
		Operation:       op,
		SourcePath:      sourcePath,
		DestinationPath: destinationPath,
		FileSize:        fileSize,
	})
	return nil
}

// LogDirectoryCreated records a directory the run created, so rollback
// can remove it again if it ends up empty.
func (l *Logger) LogDirectoryCreated(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx := l.active()
	tx.CreatedDirectories = append(tx.CreatedDirectories, path)
}

// IsLogFull reports whether the operation cap has been reached.
func (l *Logger) IsLogFull() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current != nil && len(l.current.Operations) >= MaxOperationsPerLog
}

// Complete finalizes the transaction as successful and persists it.
func (l *Logger) Complete() error {
	return l.finish(StatusCompleted, "")
}

// Fail finalizes the transaction as failed and persists it.
func (l *Logger) Fail(message string) error {
	return l.finish(StatusFailed, message)
}

func (l *Logger) finish(status Status, message string) error {
	l.mu.Lock()
	tx := l.active()
	now := time.Now()
	tx.EndTime = &now
	tx.Status = status
	tx.ErrorMessage = message
	snapshot := *tx
	path := l.path
	l.mu.Unlock()

	return writeLogAtomic(path, &snapshot)
}

// Save persists the current transaction without changing its status.
func (l *Logger) Save() error {
	l.mu.Lock()
	if l.current == nil {
		l.mu.Unlock()
		return nil
	}
	snapshot := *l.current
	path := l.path
	l.mu.Unlock()

	return writeLogAtomic(path, &snapshot)
}

// Path returns where the current transaction log is written.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// writeLogAtomic writes the log as pretty-printed JSON via a temp
// sibling and rename, so a partially written file is never loadable.
func writeLogAtomic(path string, tx *TransactionLog) error {
	data, err := json.MarshalIndent(tx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal transaction log: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write transaction log: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename transaction log: %w", err)
	}
	return nil
}

// LogInfo is summary metadata for one transaction log on disk.
type LogInfo struct {
	TransactionID  string
	StartTime      time.Time
	Status         Status
	OperationCount int
	FilePath       string
}

// ListTransactionLogs returns metadata for every photocopy-*.json log in
// dir. Malformed files are skipped; a missing directory yields an empty
// list. Sorting is the caller's concern.
func ListTransactionLogs(dir string) []LogInfo {
	matches, err := filepath.Glob(filepath.Join(dir, "photocopy-*.json"))
	if err != nil {
		return nil
	}
	var infos []LogInfo
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var tx TransactionLog
		if err := json.Unmarshal(data, &tx); err != nil || tx.TransactionID == "" {
			continue
		}
		infos = append(infos, LogInfo{
			TransactionID:  tx.TransactionID,
			StartTime:      tx.StartTime,
			Status:         tx.Status,
			OperationCount: len(tx.Operations),
			FilePath:       path,
		})
	}
	return infos
}
