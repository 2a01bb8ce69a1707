package metadata

import (
	"context"
	"os"
	"testing"
	"time"

	"photocopy/internal/fsys"
)

func writeTestFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestScanBuildsFileRefs(t *testing.T) {
	mem := fsys.NewMem()
	mod := time.Date(2023, 6, 15, 10, 0, 0, 0, time.UTC)
	mem.AddFile("/src/holiday/IMG_1.jpg", 100, mod)
	mem.AddFile("/src/holiday/IMG_1.xmp", 5, mod)
	mem.AddFile("/src/holiday/IMG_1.jpg.json", 7, mod)
	mem.AddFile("/src/holiday/notes.txt", 3, mod)
	mem.AddFile("/src/loose.png", 50, mod)

	s := NewScanner(mem, "/src")
	refs, errs := s.Scan(context.Background())
	if len(errs) != 0 {
		t.Fatalf("scan errors: %v", errs)
	}
	if len(refs) != 2 {
		t.Fatalf("refs = %d, want 2 (jpg and png)", len(refs))
	}

	var jpg, png int = -1, -1
	for i, r := range refs {
		switch r.Path {
		case "/src/holiday/IMG_1.jpg":
			jpg = i
		case "/src/loose.png":
			png = i
		}
	}
	if jpg < 0 || png < 0 {
		t.Fatalf("expected primaries missing: %+v", refs)
	}

	if refs[jpg].Album != "holiday" {
		t.Errorf("album = %q, want holiday", refs[jpg].Album)
	}
	if refs[png].Album != "" {
		t.Errorf("root-level file should have no album, got %q", refs[png].Album)
	}
	if len(refs[jpg].Sidecars) != 2 {
		t.Fatalf("sidecars = %d, want 2", len(refs[jpg].Sidecars))
	}

	// The in-memory files have no EXIF bytes, so dates fall back to the
	// modification time and get tagged for the unknown-files report.
	if !refs[jpg].Taken.Equal(mod) {
		t.Errorf("taken = %v, want mtime fallback %v", refs[jpg].Taken, mod)
	}
	if refs[jpg].UnknownReason == "" {
		t.Error("mtime fallback should set an unknown reason")
	}
	if refs[jpg].Length != 100 {
		t.Errorf("length = %d", refs[jpg].Length)
	}
}

func TestScanSidecarMatchRules(t *testing.T) {
	mem := fsys.NewMem()
	mod := time.Now()
	mem.AddFile("/src/a.jpg", 1, mod)
	mem.AddFile("/src/a.xmp", 1, mod)     // matches name without extension
	mem.AddFile("/src/a.jpg.xmp", 1, mod) // matches full name
	mem.AddFile("/src/b.xmp", 1, mod)     // unattached

	s := NewScanner(mem, "/src")
	refs, _ := s.Scan(context.Background())
	if len(refs) != 1 {
		t.Fatalf("refs = %d, want 1", len(refs))
	}
	if len(refs[0].Sidecars) != 2 {
		t.Errorf("sidecars = %d, want 2", len(refs[0].Sidecars))
	}
}

func TestRegistryFallsBackToFilesystem(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/x.jpg"
	writeTestFile(t, path, []byte("not a real jpeg"))

	res := NewRegistry().ExtractBest(path)
	if res.Confidence != ConfidenceLow {
		t.Errorf("confidence = %v, want filesystem fallback", res.Confidence)
	}
	if res.Date.IsZero() {
		t.Error("fallback date missing")
	}
}
