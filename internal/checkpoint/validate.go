package checkpoint

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"photocopy/internal/types"
)

// staleAfter is how old a checkpoint may get before resuming it earns a
// warning.
const staleAfter = 30 * 24 * time.Hour

// ResumeValidation is the verdict on whether a checkpoint may seed a
// resumed run.
type ResumeValidation struct {
	IsValid             bool
	TotalOperations     uint64
	CompletedOperations uint64
	PendingOperations   uint64
	InvalidReason       string
	Warnings            []string
}

// Validate decides whether a loaded checkpoint matches the current
// configuration closely enough to resume from.
func Validate(s *State, cfg *types.Config) ResumeValidation {
	v := ResumeValidation{
		TotalOperations:     s.TotalFiles,
		CompletedOperations: s.Completed.Count(),
	}
	v.PendingOperations = v.TotalOperations - v.CompletedOperations

	switch {
	case !PathsEqual(s.SourceDir, cfg.Source):
		v.InvalidReason = "Source directory mismatch"
	case !PathsEqual(s.DestinationPattern, cfg.Destination):
		v.InvalidReason = "Destination pattern mismatch"
	case ComputeConfigHash(cfg) != s.ConfigHash:
		v.InvalidReason = "Configuration has changed"
	case s.Completed.Full():
		v.InvalidReason = "Already completed"
	default:
		v.IsValid = true
		if age := time.Since(s.Started); age > staleAfter {
			days := int(age.Hours() / 24)
			v.Warnings = append(v.Warnings, fmt.Sprintf("Checkpoint is %d days old", days))
		}
	}
	return v
}

// ComputeConfigHash hashes the placement-affecting configuration fields.
// Fields that cannot change where a file lands (parallelism, progress
// reporting, rollback) are excluded so tweaking them never invalidates a
// resume.
func ComputeConfigHash(cfg *types.Config) [32]byte {
	h := sha256.New()
	writeField := func(s string) {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
		h.Write(n[:])
		h.Write([]byte(s))
	}
	writeBool := func(b bool) {
		if b {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}
	writeInt := func(v int64) {
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(v))
		h.Write(n[:])
	}

	writeField(cfg.Destination)
	writeInt(int64(cfg.Mode))
	writeField(cfg.DuplicatesFormat)
	writeInt(int64(cfg.Casing))
	writeBool(cfg.UseFullCountryNames)
	writeInt(int64(cfg.Granularity))
	writeField(cfg.UnknownLocationFallback)
	writeInt(unixOrZero(cfg.MinDate))
	writeInt(unixOrZero(cfg.MaxDate))
	writeBool(cfg.SkipExisting)
	writeBool(cfg.Overwrite)

	return [32]byte(h.Sum(nil))
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// ComputePlanHash hashes the ordered enumerated file set as
// (path, length) pairs. Any change in membership, order or size yields a
// different hash.
func ComputePlanHash(files []types.FileRef) [32]byte {
	h := sha256.New()
	for _, f := range files {
		h.Write([]byte(f.Path))
		h.Write([]byte{0})
		var n [8]byte
		binary.LittleEndian.PutUint64(n[:], uint64(f.Length))
		h.Write(n[:])
	}
	return [32]byte(h.Sum(nil))
}
