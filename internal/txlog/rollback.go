package txlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"photocopy/internal/fsys"
)

// RollbackResult summarizes one rollback attempt.
type RollbackResult struct {
	Success            bool
	FilesRestored      int
	FilesFailed        int
	DirectoriesRemoved int
	Errors             []string
}

// Rollback undoes the operations of a transaction log in reverse order:
// copies are deleted at the destination, moves are moved back to their
// source, and directories the run created are removed if empty. On
// success the log is rewritten with status RolledBack.
func Rollback(ctx context.Context, fs fsys.FileSystem, logPath string) RollbackResult {
	var result RollbackResult

	data, err := os.ReadFile(logPath)
	if err != nil {
		result.Errors = append(result.Errors, "Transaction log not found")
		return result
	}
	var tx TransactionLog
	if err := json.Unmarshal(data, &tx); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Invalid transaction log: %v", err))
		return result
	}
	if tx.IsDryRun {
		result.Errors = append(result.Errors, "Cannot rollback a dry run transaction")
		return result
	}

	// Undo newest first so later operations never block earlier ones.
	for i := len(tx.Operations) - 1; i >= 0; i-- {
		op := tx.Operations[i]
		switch op.Operation {
		case OpCopy:
			if !fs.FileExists(op.DestinationPath) {
				continue // already gone, nothing to undo
			}
			if err := fs.DeleteFile(op.DestinationPath); err != nil {
				result.FilesFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("Failed to delete %s: %v", op.DestinationPath, err))
				continue
			}
			result.FilesRestored++

		case OpMove:
			if !fs.FileExists(op.DestinationPath) {
				result.FilesFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("Destination file not found: %s", op.DestinationPath))
				continue
			}
			if err := fs.CreateDirectory(filepath.Dir(op.SourcePath)); err != nil {
				result.FilesFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("Failed to recreate source directory for %s: %v", op.SourcePath, err))
				continue
			}
			if err := fs.MoveFile(ctx, op.DestinationPath, op.SourcePath); err != nil {
				result.FilesFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("Failed to restore %s: %v", op.SourcePath, err))
				continue
			}
			result.FilesRestored++
		}
	}

	for i := len(tx.CreatedDirectories) - 1; i >= 0; i-- {
		removed, err := fs.RemoveDirectoryIfEmpty(tx.CreatedDirectories[i])
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to remove directory %s: %v", tx.CreatedDirectories[i], err))
			continue
		}
		if removed {
			result.DirectoriesRemoved++
		}
	}

	result.Success = result.FilesFailed == 0
	if result.Success {
		tx.Status = StatusRolledBack
		if err := writeLogAtomic(logPath, &tx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to update transaction log: %v", err))
		}
	}
	return result
}
