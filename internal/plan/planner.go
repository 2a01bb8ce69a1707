package plan

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"photocopy/internal/fsys"
	"photocopy/internal/pathgen"
	"photocopy/internal/types"
)

// ErrExhaustedDuplicates is returned when duplicate resolution gives up.
var ErrExhaustedDuplicates = errors.New("exhausted duplicate name candidates")

// maxDuplicateAttempts bounds the counter loop in resolveDuplicate.
const maxDuplicateAttempts = 10000

// RelatedFilePlan is a sidecar scheduled to travel with its primary. It
// references the primary by plan index instead of a back-pointer.
type RelatedFilePlan struct {
	PrimaryIndex int
	File         types.FileRef
	Dest         string
}

// FileCopyPlan is one planned operation: a primary file, its exclusive
// destination, and the sidecars that follow it.
type FileCopyPlan struct {
	Index    int
	File     types.FileRef
	Dest     string
	Sidecars []RelatedFilePlan
}

// ValidationFailure records a file rejected by the validator chain.
type ValidationFailure struct {
	Path   string
	Reason string
}

// CopyPlan is the immutable output of planning. Operation order matches
// input file order with rejected files removed.
type CopyPlan struct {
	Operations  []FileCopyPlan
	Skipped     []ValidationFailure
	Directories []string
	TotalBytes  int64
}

// UnknownFilesReport tallies files placed into fallback locations because
// required metadata was absent. Safe for concurrent use.
type UnknownFilesReport struct {
	mu       sync.Mutex
	Total    int
	ByReason map[string]int
}

func NewUnknownFilesReport() *UnknownFilesReport {
	return &UnknownFilesReport{ByReason: make(map[string]int)}
}

func (r *UnknownFilesReport) Record(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Total++
	r.ByReason[reason]++
}

// Snapshot returns a copy for reporting.
func (r *UnknownFilesReport) Snapshot() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.ByReason))
	for k, v := range r.ByReason {
		out[k] = v
	}
	return out
}

// Builder produces CopyPlans. The reserved-path set lives on the builder,
// so one builder covers one run.
type Builder struct {
	fs       fsys.FileSystem
	gen      *pathgen.Generator
	cfg      *types.Config
	reserved *sync.Map
	unknown  *UnknownFilesReport
}

func NewBuilder(fs fsys.FileSystem, gen *pathgen.Generator, cfg *types.Config) *Builder {
	return &Builder{fs: fs, gen: gen, cfg: cfg, reserved: &sync.Map{}, unknown: NewUnknownFilesReport()}
}

// Unknown exposes the unknown-files report accumulated while planning.
func (b *Builder) Unknown() *UnknownFilesReport { return b.unknown }

// Build iterates files in order, applies the validator chain, expands the
// destination template, reserves a unique destination and attaches
// sidecar plans. Destinations are exclusive: no two operations in the
// returned plan share one.
func (b *Builder) Build(files []types.FileRef, validators []Validator) (*CopyPlan, error) {
	// Per-run state resets on every Build so a builder reused across
	// plans does not leak reservations.
	b.reserved = &sync.Map{}
	b.unknown = NewUnknownFilesReport()

	plan := &CopyPlan{}
	dirs := make(map[string]bool)

fileLoop:
	for _, f := range files {
		if !f.HasLocation() {
			reason := f.UnknownReason
			if reason == "" {
				reason = "no location data"
			}
			b.unknown.Record(reason)
		}

		for _, v := range validators {
			if outcome := v.Validate(&f); !outcome.OK {
				plan.Skipped = append(plan.Skipped, ValidationFailure{Path: f.Path, Reason: outcome.Reason})
				continue fileLoop
			}
		}

		candidate := b.gen.Generate(&f)
		dest, ok, err := b.resolveDuplicate(candidate)
		if err != nil {
			return nil, fmt.Errorf("resolve destination for %s: %w", f.Path, err)
		}
		if !ok {
			plan.Skipped = append(plan.Skipped, ValidationFailure{Path: f.Path, Reason: "destination already exists"})
			continue
		}

		op := FileCopyPlan{
			Index: len(plan.Operations),
			File:  f,
			Dest:  dest,
		}
		dirs[filepath.Dir(dest)] = true
		plan.TotalBytes += f.Length

		for _, sc := range f.Sidecars {
			scDest := pathgen.SidecarDestination(dest, &sc)
			dirs[filepath.Dir(scDest)] = true
			op.Sidecars = append(op.Sidecars, RelatedFilePlan{
				PrimaryIndex: op.Index,
				File:         sc,
				Dest:         scDest,
			})
		}

		plan.Operations = append(plan.Operations, op)
	}

	plan.Directories = make([]string, 0, len(dirs))
	for d := range dirs {
		plan.Directories = append(plan.Directories, d)
	}
	sort.Strings(plan.Directories)

	return plan, nil
}

// resolveDuplicate reserves a unique destination for path. The boolean is
// false when skip-existing policy drops the file. Reservation uses
// insert-if-absent semantics so concurrent planners never hand out the
// same destination twice.
func (b *Builder) resolveDuplicate(path string) (string, bool, error) {
	if !b.fs.FileExists(path) && b.reserve(path) {
		return path, true, nil
	}
	if b.cfg.SkipExisting {
		return "", false, nil
	}
	if b.cfg.Overwrite {
		return path, true, nil
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for counter := 1; counter <= maxDuplicateAttempts; counter++ {
		candidate := base + expandDuplicateFormat(b.cfg.DuplicatesFormat, counter) + ext
		if !b.fs.FileExists(candidate) && b.reserve(candidate) {
			return candidate, true, nil
		}
	}
	return "", false, fmt.Errorf("%w after %d attempts for %s", ErrExhaustedDuplicates, maxDuplicateAttempts, path)
}

func (b *Builder) reserve(path string) bool {
	_, loaded := b.reserved.LoadOrStore(path, struct{}{})
	return !loaded
}

// expandDuplicateFormat substitutes the counter into the configured
// duplicates format, e.g. "-{number}" with 3 yields "-3". A format
// without the placeholder gets the counter appended.
func expandDuplicateFormat(format string, counter int) string {
	if format == "" {
		format = "-{number}"
	}
	n := fmt.Sprintf("%d", counter)
	if strings.Contains(format, "{number}") {
		return strings.ReplaceAll(format, "{number}", n)
	}
	return format + n
}
