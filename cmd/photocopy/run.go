// photocopy: template-driven media organizer with crash-safe resume and rollback.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/schollz/progressbar/v3"

	"photocopy/internal/catalog"
	"photocopy/internal/checkpoint"
	"photocopy/internal/executor"
	"photocopy/internal/fsys"
	"photocopy/internal/metadata"
	"photocopy/internal/pathgen"
	"photocopy/internal/plan"
	"photocopy/internal/report"
	"photocopy/internal/txlog"
	"photocopy/internal/types"
)

// spaceBuffer is the safety margin on top of the planned byte total when
// checking destination free space.
const spaceBuffer = uint64(100 * 1024 * 1024)

// runCopy drives one full run: scan, plan, resume decision, execute,
// report. Returns the process exit code.
func runCopy(cfg *types.Config) int {
	checkDirExists(cfg.Source, "Source")

	// Graceful Ctrl+C: cancel the context, let the executor drain and
	// flush the checkpoint.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		color.New(color.FgRed, color.Bold).Println("\nInterrupted. Finishing in-flight files and saving progress.")
		cancel()
	}()

	fs := fsys.NewOS()
	startTime := time.Now()

	// Scan the source tree and collect location statistics for the
	// conditional template variables.
	fmt.Printf("Scanning %s...\n", cfg.Source)
	scanner := metadata.NewScanner(fs, cfg.Source)
	files, walkErrors := scanner.Scan(ctx)
	if ctx.Err() != nil {
		return 1
	}
	fmt.Printf("Found %d media files\n", len(files))

	stats := pathgen.NewStats()
	for i := range files {
		stats.Record(&files[i])
	}

	gen := pathgen.NewGenerator(cfg, stats)
	builder := plan.NewBuilder(fs, gen, cfg)
	validators := plan.DefaultValidators(cfg, metadata.MediaExtensions)

	p, err := builder.Build(files, validators)
	if err != nil {
		color.New(color.FgRed, color.Bold).Printf("Planning failed: %v\n", err)
		return 1
	}
	fmt.Printf("Planned %d operations (%.2f GB), %d skipped by validation\n",
		len(p.Operations), float64(p.TotalBytes)/(1024*1024*1024), len(p.Skipped))

	if !cfg.DryRun {
		if code := checkFreeSpace(cfg, p); code != 0 {
			return code
		}
	}

	planHash := checkpoint.ComputePlanHash(files)
	writer, code := resolveCheckpoint(cfg, p, planHash)
	if code != 0 {
		return code
	}

	// Transaction logging for rollback, unless disabled or dry run.
	var logger *txlog.Logger
	destRoot := txlog.DirFor(cfg.Destination)
	if !cfg.NoRollback && !cfg.DryRun {
		if err := fs.CreateDirectory(destRoot); err != nil {
			color.New(color.FgRed, color.Bold).Printf("Cannot create destination root: %v\n", err)
			return 1
		}
		logger = txlog.NewLogger(destRoot)
		if _, err := logger.Begin(cfg.Source, cfg.Destination, cfg.DryRun); err != nil {
			color.New(color.FgRed, color.Bold).Printf("Cannot start transaction: %v\n", err)
			return 1
		}
	}

	// Catalog of completed copies (best-effort; a failed open only
	// disables recording).
	var batch *catalog.Batch
	var cat *catalog.Catalog
	if !cfg.DryRun {
		if cat, err = catalog.Open(filepath.Join(destRoot, "photocopy.db")); err == nil {
			sessionID := ""
			if writer != nil {
				sessionID = writer.SessionID()
			}
			batch = cat.NewBatch(sessionID, 1000)
			defer cat.Close()
		}
	}

	bar := newExecBar(len(p.Operations))
	ex := executor.New(fs, cfg).WithProgress(func(pr executor.Progress) {
		bar.Add(1)
	})
	if logger != nil {
		ex = ex.WithTransactionLogger(logger)
	}
	if batch != nil {
		ex = ex.WithRecorder(batch)
	}

	res, execErr := ex.Execute(ctx, p, builder.Unknown(), writer)
	if batch != nil {
		batch.Flush()
	}
	if res == nil {
		color.New(color.FgRed, color.Bold).Printf("Execution failed: %v\n", execErr)
		if writer != nil {
			writer.Close()
		}
		return 1
	}
	totalTime := time.Since(startTime)

	for _, walkErr := range walkErrors {
		res.Errors = append(res.Errors, executor.CopyError{Message: fmt.Sprintf("walk error: %v", walkErr)})
	}

	printSummary(p, res, totalTime)
	writeReport(destRoot, p, res, totalTime)

	if execErr != nil || res.Failed > 0 {
		return 1
	}
	return 0
}

// resolveCheckpoint applies the resume decision and returns the writer
// for this run; nil for dry runs. The second value is a non-zero exit
// code on unrecoverable errors.
func resolveCheckpoint(cfg *types.Config, p *plan.CopyPlan, planHash [32]byte) (*checkpoint.Writer, int) {
	if cfg.DryRun {
		return nil, 0
	}

	decision, err := checkpoint.Decide(cfg)
	if err != nil {
		color.New(color.FgRed, color.Bold).Printf("Checkpoint discovery failed: %v\n", err)
		return nil, 1
	}

	if decision.Kind == checkpoint.PromptUser {
		v := decision.Validation
		fmt.Printf("Found a previous run from %s: %d of %d files complete\n",
			decision.State.Started.Format(time.RFC3339), v.CompletedOperations, v.TotalOperations)
		for _, w := range v.Warnings {
			color.New(color.FgYellow).Printf("Warning: %s\n", w)
		}
		prompt := promptui.Select{
			Label: "Resume the previous run?",
			Items: []string{"Resume", "Start fresh"},
		}
		_, choice, err := prompt.Run()
		if err == promptui.ErrInterrupt {
			color.New(color.FgRed, color.Bold).Println("\nInterrupted during prompt. Exiting cleanly.")
			return nil, 130
		} else if err != nil || choice != "Resume" {
			decision = checkpoint.Decision{Kind: checkpoint.StartFresh, Reason: "user chose fresh start"}
		} else {
			decision.Kind = checkpoint.ResumeFromCheckpoint
		}
	}

	// The validator only sees the config; the file set itself may have
	// changed since the checkpoint was written.
	if decision.Kind == checkpoint.ResumeFromCheckpoint && decision.State.PlanHash != planHash {
		decision = checkpoint.Decision{Kind: checkpoint.StartFresh, Reason: "File set has changed"}
	}

	dir := checkpoint.Dir(cfg.Destination, cfg.CheckpointDir)
	switch decision.Kind {
	case checkpoint.ResumeFromCheckpoint:
		fmt.Printf("Resuming: %d files already complete\n", decision.Validation.CompletedOperations)
		w, err := checkpoint.Resume(decision.State)
		if err != nil {
			color.New(color.FgRed, color.Bold).Printf("Cannot reopen checkpoint: %v\n", err)
			return nil, 1
		}
		return w, 0
	default:
		fmt.Printf("Starting fresh: %s\n", decision.Reason)
		state := checkpoint.NewState(cfg, uint64(len(p.Operations)), uint64(p.TotalBytes), planHash)
		w, err := checkpoint.Create(dir, state)
		if err != nil {
			color.New(color.FgRed, color.Bold).Printf("Cannot create checkpoint: %v\n", err)
			return nil, 1
		}
		return w, 0
	}
}

func checkFreeSpace(cfg *types.Config, p *plan.CopyPlan) int {
	destRoot := txlog.DirFor(cfg.Destination)
	if err := os.MkdirAll(destRoot, 0755); err != nil {
		color.New(color.FgRed, color.Bold).Printf("[FATAL] Cannot create destination root '%s': %v\n", destRoot, err)
		return 1
	}
	free, err := fsys.FreeSpace(destRoot)
	if err != nil {
		color.New(color.FgRed).Printf("[FATAL] Could not determine free space for '%s': %v\n", destRoot, err)
		return 1
	}
	// Moves within a volume free the space again; still require the full
	// amount so cross-volume moves cannot run out mid-way.
	required := uint64(p.TotalBytes) + spaceBuffer
	if free < required {
		color.New(color.FgRed, color.Bold).Printf("[FATAL] Not enough free space. Required: %.2f GB, Available: %.2f GB\n",
			float64(required)/(1024*1024*1024), float64(free)/(1024*1024*1024))
		return 1
	}
	return 0
}

func newExecBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetDescription("Processing files"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func printSummary(p *plan.CopyPlan, res *executor.Result, totalTime time.Duration) {
	fmt.Println()
	color.New(color.FgGreen).Printf("Processed: %d, ", res.Processed)
	color.New(color.FgYellow).Printf("Resumed: %d, Skipped: %d, ", res.Skipped, len(p.Skipped))
	color.New(color.FgRed).Printf("Errors: %d, ", res.Failed)
	fmt.Printf("Time: %s\n", totalTime.Round(time.Second))

	if res.LogTruncated {
		color.New(color.FgYellow).Println("Warning: transaction log is full; later operations are not covered by rollback")
	}
	for _, e := range res.Errors {
		color.New(color.FgRed).Printf("  %s\n", e.Error())
	}
	if res.DryRun {
		color.New(color.FgCyan).Println("Dry run: no files were written")
	}
}

func writeReport(destRoot string, p *plan.CopyPlan, res *executor.Result, totalTime time.Duration) {
	reportPath := flagReportPath
	if reportPath == "" {
		reportPath = filepath.Join(destRoot, fmt.Sprintf("report_%s.html", time.Now().Format("20060102_150405")))
	}
	if err := report.Write(reportPath, p, res, totalTime); err != nil {
		fmt.Printf("Warning: could not write report: %v\n", err)
		return
	}
	reportAbs, err := filepath.Abs(reportPath)
	if err == nil {
		link := fmt.Sprintf("file://%s", reportAbs)
		// ANSI hyperlink: \x1b]8;;<url>\x1b\\<text>\x1b]8;;\x1b\\
		ansiLink := fmt.Sprintf("\x1b]8;;%s\x1b\\%s\x1b]8;;\x1b\\", link, link)
		color.New(color.FgCyan).Printf("HTML report: %s\n", ansiLink)
	} else {
		color.New(color.FgCyan).Printf("HTML report: %s\n", reportPath)
	}
}
