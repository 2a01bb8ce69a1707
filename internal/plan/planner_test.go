package plan

import (
	"strings"
	"testing"
	"time"

	"photocopy/internal/fsys"
	"photocopy/internal/pathgen"
	"photocopy/internal/types"
)

func testConfig() *types.Config {
	return &types.Config{
		Source:                  "/src",
		Destination:             "/dest/{year}/{month}/{name}{ext}",
		DuplicatesFormat:        "-{number}",
		UnknownLocationFallback: "unknown",
	}
}

func newBuilder(cfg *types.Config, fs fsys.FileSystem) *Builder {
	gen := pathgen.NewGenerator(cfg, nil)
	return NewBuilder(fs, gen, cfg)
}

func mediaFile(path string, size int64, taken time.Time) types.FileRef {
	return types.FileRef{Path: path, Length: size, Taken: taken}
}

func TestBuildBasicPlan(t *testing.T) {
	cfg := testConfig()
	mem := fsys.NewMem()
	b := newBuilder(cfg, mem)

	files := []types.FileRef{
		mediaFile("/src/a.jpg", 100, time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)),
		mediaFile("/src/b.png", 200, time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)),
		mediaFile("/src/c.mp4", 300, time.Date(2024, 12, 5, 0, 0, 0, 0, time.UTC)),
	}

	p, err := b.Build(files, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	wantDests := []string{
		"/dest/2023/06/a.jpg",
		"/dest/2023/03/b.png",
		"/dest/2024/12/c.mp4",
	}
	if len(p.Operations) != 3 {
		t.Fatalf("expected 3 operations, got %d", len(p.Operations))
	}
	for i, want := range wantDests {
		if p.Operations[i].Dest != want {
			t.Errorf("operation %d dest = %s, want %s", i, p.Operations[i].Dest, want)
		}
		if p.Operations[i].Index != i {
			t.Errorf("operation %d carries index %d", i, p.Operations[i].Index)
		}
	}
	if p.TotalBytes != 600 {
		t.Errorf("TotalBytes = %d, want 600", p.TotalBytes)
	}

	dirs := strings.Join(p.Directories, ",")
	for _, want := range []string{"/dest/2023/06", "/dest/2023/03", "/dest/2024/12"} {
		if !strings.Contains(dirs, want) {
			t.Errorf("directories missing %s (have %s)", want, dirs)
		}
	}
}

func TestBuildUniqueDestinations(t *testing.T) {
	cfg := testConfig()
	mem := fsys.NewMem()
	b := newBuilder(cfg, mem)

	// Two sources in different directories collide on the same dest.
	taken := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	files := []types.FileRef{
		mediaFile("/src/one/p.jpg", 10, taken),
		mediaFile("/src/two/p.jpg", 10, taken),
	}

	p, err := b.Build(files, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(p.Operations) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(p.Operations))
	}
	if p.Operations[0].Dest != "/dest/2024/05/p.jpg" {
		t.Errorf("first dest = %s", p.Operations[0].Dest)
	}
	if p.Operations[1].Dest != "/dest/2024/05/p-1.jpg" {
		t.Errorf("second dest = %s, want p-1.jpg", p.Operations[1].Dest)
	}

	seen := make(map[string]bool)
	for _, op := range p.Operations {
		if seen[op.Dest] {
			t.Errorf("duplicate destination %s", op.Dest)
		}
		seen[op.Dest] = true
	}
}

func TestBuildDuplicateOnDisk(t *testing.T) {
	cfg := testConfig()
	mem := fsys.NewMem()
	mem.AddFile("/dest/2024/05/p.jpg", 1, time.Now())
	b := newBuilder(cfg, mem)

	files := []types.FileRef{mediaFile("/src/p.jpg", 10, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))}
	p, err := b.Build(files, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if p.Operations[0].Dest != "/dest/2024/05/p-1.jpg" {
		t.Errorf("existing file on disk should push to p-1.jpg, got %s", p.Operations[0].Dest)
	}
}

func TestBuildSkipExisting(t *testing.T) {
	cfg := testConfig()
	cfg.SkipExisting = true
	mem := fsys.NewMem()
	mem.AddFile("/dest/2024/05/p.jpg", 1, time.Now())
	b := newBuilder(cfg, mem)

	files := []types.FileRef{mediaFile("/src/p.jpg", 10, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))}
	p, err := b.Build(files, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(p.Operations) != 0 {
		t.Errorf("skip-existing should drop the operation, got %d", len(p.Operations))
	}
	if len(p.Skipped) != 1 || p.Skipped[0].Reason != "destination already exists" {
		t.Errorf("skip reason missing: %+v", p.Skipped)
	}
}

func TestBuildOverwrite(t *testing.T) {
	cfg := testConfig()
	cfg.Overwrite = true
	mem := fsys.NewMem()
	mem.AddFile("/dest/2024/05/p.jpg", 1, time.Now())
	b := newBuilder(cfg, mem)

	files := []types.FileRef{mediaFile("/src/p.jpg", 10, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))}
	p, err := b.Build(files, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(p.Operations) != 1 || p.Operations[0].Dest != "/dest/2024/05/p.jpg" {
		t.Errorf("overwrite should keep the original destination: %+v", p.Operations)
	}
}

func TestBuildValidatorSkips(t *testing.T) {
	cfg := testConfig()
	mem := fsys.NewMem()
	b := newBuilder(cfg, mem)

	validators := []Validator{&ExtensionValidator{Allowed: map[string]bool{".jpg": true}}}
	files := []types.FileRef{
		mediaFile("/src/a.jpg", 10, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		mediaFile("/src/notes.txt", 10, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}

	p, err := b.Build(files, validators)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if len(p.Operations) != 1 {
		t.Errorf("expected 1 operation, got %d", len(p.Operations))
	}
	if len(p.Skipped) != 1 || p.Skipped[0].Path != "/src/notes.txt" {
		t.Errorf("rejected file missing from skip list: %+v", p.Skipped)
	}
	if p.TotalBytes != 10 {
		t.Errorf("skipped files must not count toward TotalBytes, got %d", p.TotalBytes)
	}
}

func TestBuildDateRangeValidator(t *testing.T) {
	v := &DateRangeValidator{
		Min: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Max: time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	inRange := mediaFile("/src/a.jpg", 1, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	tooOld := mediaFile("/src/b.jpg", 1, time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC))

	if out := v.Validate(&inRange); !out.OK {
		t.Errorf("in-range file rejected: %s", out.Reason)
	}
	if out := v.Validate(&tooOld); out.OK {
		t.Error("too-old file accepted")
	}
}

func TestBuildSidecars(t *testing.T) {
	cfg := testConfig()
	mem := fsys.NewMem()
	b := newBuilder(cfg, mem)

	primary := mediaFile("/src/a.jpg", 100, time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC))
	primary.Sidecars = []types.FileRef{
		{Path: "/src/a.xmp", Length: 5},
		{Path: "/src/a.json", Length: 7},
	}

	p, err := b.Build([]types.FileRef{primary}, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	op := p.Operations[0]
	if len(op.Sidecars) != 2 {
		t.Fatalf("expected 2 sidecars, got %d", len(op.Sidecars))
	}
	if op.Sidecars[0].Dest != "/dest/2023/06/a.xmp" {
		t.Errorf("sidecar dest = %s", op.Sidecars[0].Dest)
	}
	if op.Sidecars[1].Dest != "/dest/2023/06/a.json" {
		t.Errorf("sidecar dest = %s", op.Sidecars[1].Dest)
	}
	if op.Sidecars[0].PrimaryIndex != op.Index {
		t.Errorf("sidecar references primary index %d, want %d", op.Sidecars[0].PrimaryIndex, op.Index)
	}
	// Sidecars ride on the primary's byte count.
	if p.TotalBytes != 100 {
		t.Errorf("TotalBytes = %d, want 100", p.TotalBytes)
	}
}

func TestBuildRecordsUnknownFiles(t *testing.T) {
	cfg := testConfig()
	b := newBuilder(cfg, fsys.NewMem())

	noLoc := mediaFile("/src/a.jpg", 1, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	tagged := mediaFile("/src/b.jpg", 1, time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC))
	tagged.UnknownReason = "no capture date in metadata"
	located := mediaFile("/src/c.jpg", 1, time.Date(2023, 1, 3, 0, 0, 0, 0, time.UTC))
	located.Location = &types.LocationData{City: "Paris"}

	if _, err := b.Build([]types.FileRef{noLoc, tagged, located}, nil); err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	snapshot := b.Unknown().Snapshot()
	if snapshot["no location data"] != 1 {
		t.Errorf("missing default unknown reason: %+v", snapshot)
	}
	if snapshot["no capture date in metadata"] != 1 {
		t.Errorf("missing tagged unknown reason: %+v", snapshot)
	}
	if b.Unknown().Total != 2 {
		t.Errorf("Total = %d, want 2", b.Unknown().Total)
	}
}

func TestExpandDuplicateFormat(t *testing.T) {
	if got := expandDuplicateFormat("-{number}", 3); got != "-3" {
		t.Errorf("expandDuplicateFormat = %s", got)
	}
	if got := expandDuplicateFormat(" ({number})", 1); got != " (1)" {
		t.Errorf("expandDuplicateFormat = %s", got)
	}
	if got := expandDuplicateFormat("", 2); got != "-2" {
		t.Errorf("empty format should default: %s", got)
	}
}
