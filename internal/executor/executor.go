// Package executor drives a copy plan to completion with a bounded
// worker pool, per-operation error isolation, and live checkpointing.
package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"photocopy/internal/checkpoint"
	"photocopy/internal/fsys"
	"photocopy/internal/plan"
	"photocopy/internal/txlog"
	"photocopy/internal/types"
)

// CopyError is one non-fatal per-operation failure. The run continues;
// the caller decides rendering.
type CopyError struct {
	FilePath        string
	DestinationPath string
	Message         string
}

func (e CopyError) Error() string {
	return fmt.Sprintf("%s -> %s: %s", e.FilePath, e.DestinationPath, e.Message)
}

// Progress is one sample delivered to the progress callback. Samples may
// arrive in any order across plans.
type Progress struct {
	ProcessedCount int64
	ProcessedBytes int64
	CurrentFile    string
}

// ProgressFunc receives progress samples. It must be safe to call from
// many goroutines.
type ProgressFunc func(Progress)

// Recorder receives successful copies, e.g. for the catalog database.
type Recorder interface {
	RecordCopied(sourcePath, destPath string, size int64, modTime time.Time)
}

// Result is the aggregate outcome of one Execute call.
type Result struct {
	// Processed counts units completed by this run.
	Processed int
	// Skipped counts units a resume checkpoint reported already done.
	Skipped int
	Failed  int

	BytesProcessed int64
	Errors         []CopyError

	// Unknown is the unknown-files report snapshot for this run.
	Unknown map[string]int

	// Stats is the checkpoint statistics snapshot after the final flush;
	// zero when no checkpoint writer was attached.
	Stats checkpoint.Statistics

	DryRun bool

	// LogTruncated is set when the transaction log hit its operation cap
	// and later mutations went unrecorded.
	LogTruncated bool
}

// Executor runs plans. Configure optional collaborators with the With
// methods before calling Execute.
type Executor struct {
	fs       fsys.FileSystem
	cfg      *types.Config
	logger   *txlog.Logger
	progress ProgressFunc
	recorder Recorder
}

func New(fs fsys.FileSystem, cfg *types.Config) *Executor {
	return &Executor{fs: fs, cfg: cfg}
}

// WithTransactionLogger enables rollback logging. The logger must have an
// open transaction when Execute is called.
func (e *Executor) WithTransactionLogger(l *txlog.Logger) *Executor {
	e.logger = l
	return e
}

func (e *Executor) WithProgress(fn ProgressFunc) *Executor {
	e.progress = fn
	return e
}

func (e *Executor) WithRecorder(r Recorder) *Executor {
	e.recorder = r
	return e
}

// run is the shared mutable state of one Execute call.
type run struct {
	processedCount atomic.Int64
	processedBytes atomic.Int64
	skipped        atomic.Int64
	completed      atomic.Int64
	failed         atomic.Int64
	logFull        atomic.Bool

	mu     sync.Mutex
	errors []CopyError
}

func (r *run) addError(ce CopyError) {
	r.mu.Lock()
	r.errors = append(r.errors, ce)
	r.mu.Unlock()
}

// Execute drives the plan with cfg.Workers() parallel workers. writer may
// be nil (no checkpointing, e.g. dry runs); unknown may be nil.
func (e *Executor) Execute(ctx context.Context, p *plan.CopyPlan, unknown *plan.UnknownFilesReport, writer *checkpoint.Writer) (*Result, error) {
	result := &Result{}
	if unknown != nil {
		result.Unknown = unknown.Snapshot()
	}

	if e.cfg.DryRun {
		result.DryRun = true
		result.Processed = len(p.Operations)
		result.BytesProcessed = p.TotalBytes
		return result, nil
	}

	if err := e.createDirectories(p); err != nil {
		return nil, err
	}

	st := &run{}
	err := e.runPool(ctx, p, writer, st)

	result.Processed = int(st.completed.Load())
	result.Skipped = int(st.skipped.Load())
	result.Failed = int(st.failed.Load())
	result.BytesProcessed = st.processedBytes.Load()
	result.Errors = st.errors
	result.LogTruncated = st.logFull.Load()

	if writer != nil {
		writer.Flush()
		result.Stats = writer.GetStatistics()
		if err != nil || result.Failed > 0 {
			writer.Fail(fmt.Sprintf("%d operations failed", result.Failed))
		} else {
			writer.Complete()
		}
	}

	if e.logger != nil {
		if err != nil {
			e.logger.Fail("run cancelled")
		} else if result.Failed > 0 {
			e.logger.Fail(fmt.Sprintf("%d operations failed", result.Failed))
		} else {
			e.logger.Complete()
		}
	}

	if err != nil {
		return result, err
	}
	return result, nil
}

// createDirectories pre-creates every destination directory in the plan,
// logging each one that did not already exist.
func (e *Executor) createDirectories(p *plan.CopyPlan) error {
	for _, dir := range p.Directories {
		if e.fs.DirectoryExists(dir) {
			continue
		}
		if err := e.fs.CreateDirectory(dir); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
		e.logDirectoryCreated(dir)
	}
	return nil
}

// runPool is the bounded worker pool over plan operations, following the
// jobs/results channel shape used throughout this codebase.
func (e *Executor) runPool(ctx context.Context, p *plan.CopyPlan, writer *checkpoint.Writer, st *run) error {
	workers := e.cfg.Workers()

	type job struct {
		index int
		op    plan.FileCopyPlan
	}
	jobs := make(chan job, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if ctx.Err() != nil {
					return
				}
				e.processUnit(ctx, j.index, j.op, writer, st)
			}
		}()
	}

	// Producer stops dispatching as soon as the context is cancelled;
	// in-flight units drain below.
dispatch:
	for i, op := range p.Operations {
		select {
		case jobs <- job{index: i, op: op}:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	return ctx.Err()
}

// processUnit performs one FileCopyPlan: the primary, then its sidecars
// in order. Sidecar failures never fail the primary.
func (e *Executor) processUnit(ctx context.Context, index int, op plan.FileCopyPlan, writer *checkpoint.Writer, st *run) {
	idx := uint64(index)

	// A resume checkpoint that already covers this unit means the bytes
	// are on disk; count them and move on without touching the disk.
	if writer != nil && writer.IsCompleted(idx) {
		st.skipped.Add(1)
		st.processedCount.Add(1)
		st.processedBytes.Add(op.File.Length)
		e.sample(st, op.File.Path)
		return
	}

	primaryErr := e.transferFile(ctx, idx, &op.File, op.Dest, writer, st)
	if ctx.Err() != nil {
		return
	}

	if primaryErr != nil {
		st.failed.Add(1)
		st.addError(CopyError{FilePath: op.File.Path, DestinationPath: op.Dest, Message: primaryErr.Error()})
		if writer != nil {
			writer.RecordFailure(idx, uint64(op.File.Length), primaryErr.Error())
		}
	} else {
		for _, sc := range op.Sidecars {
			if ctx.Err() != nil {
				return
			}
			if err := e.transferSidecar(ctx, &sc, st); err != nil {
				st.addError(CopyError{FilePath: sc.File.Path, DestinationPath: sc.Dest, Message: err.Error()})
			}
		}
		st.completed.Add(1)
		if writer != nil {
			writer.RecordCompletion(idx, checkpoint.ResultCompleted, uint64(op.File.Length))
		}
		if e.recorder != nil {
			e.recorder.RecordCopied(op.File.Path, op.Dest, op.File.Length, op.File.Modified)
		}
	}

	st.processedCount.Add(1)
	st.processedBytes.Add(op.File.Length)
	e.sample(st, op.File.Path)
}

// transferFile copies or moves one primary file. For moves the copy and
// the source delete are separate steps: a failed delete leaves the
// destination bytes valid, so the checkpoint records the intermediate
// copy-done state before the unit is surfaced as failed.
func (e *Executor) transferFile(ctx context.Context, idx uint64, f *types.FileRef, dest string, writer *checkpoint.Writer, st *run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.ensureParent(dest); err != nil {
		return err
	}

	if err := e.fs.CopyFile(ctx, f.Path, dest, e.cfg.Overwrite); err != nil {
		return err
	}

	if e.cfg.Mode == types.ModeMove {
		if err := e.fs.DeleteFile(f.Path); err != nil {
			if writer != nil {
				writer.RecordCompletion(idx, checkpoint.ResultCopyDonePendingDelete, uint64(f.Length))
			}
			return fmt.Errorf("copy succeeded but source delete failed: %v", err)
		}
	}

	e.logOperation(f.Path, dest, f.Length, st)
	return nil
}

func (e *Executor) transferSidecar(ctx context.Context, sc *plan.RelatedFilePlan, st *run) error {
	if err := e.ensureParent(sc.Dest); err != nil {
		return err
	}
	if err := e.fs.CopyFile(ctx, sc.File.Path, sc.Dest, e.cfg.Overwrite); err != nil {
		return err
	}
	if e.cfg.Mode == types.ModeMove {
		if err := e.fs.DeleteFile(sc.File.Path); err != nil {
			return fmt.Errorf("copy succeeded but source delete failed: %v", err)
		}
	}
	e.logOperation(sc.File.Path, sc.Dest, sc.File.Length, st)
	return nil
}

func (e *Executor) ensureParent(dest string) error {
	dir := filepath.Dir(dest)
	if e.fs.DirectoryExists(dir) {
		return nil
	}
	if err := e.fs.CreateDirectory(dir); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	e.logDirectoryCreated(dir)
	return nil
}

func (e *Executor) logOperation(src, dest string, size int64, st *run) {
	if e.logger == nil || st.logFull.Load() {
		return
	}
	op := txlog.OpCopy
	if e.cfg.Mode == types.ModeMove {
		op = txlog.OpMove
	}
	if err := e.logger.LogOperation(op, src, dest, size); err != nil {
		st.logFull.Store(true)
	}
}

func (e *Executor) logDirectoryCreated(dir string) {
	if e.logger != nil {
		e.logger.LogDirectoryCreated(dir)
	}
}

func (e *Executor) sample(st *run, currentFile string) {
	if e.progress == nil {
		return
	}
	e.progress(Progress{
		ProcessedCount: st.processedCount.Load(),
		ProcessedBytes: st.processedBytes.Load(),
		CurrentFile:    currentFile,
	})
}
