package checkpoint

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// minFileLen is the smallest possible valid checkpoint: fixed header,
// two empty strings, empty bitset, statistics block.
const minFileLen = fixedHeaderLen + 4 + 4 + statsLen

// Load parses a checkpoint file. It returns (nil, nil) when the file does
// not exist or is too damaged to trust; callers treat that as "no
// checkpoint". An error is returned only for I/O failures on an existing
// file.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}

	if len(data) < minFileLen || [8]byte(data[0:8]) != magic {
		return nil, nil
	}

	s := &State{Path: path}
	s.Version = binary.LittleEndian.Uint32(data[8:12])
	s.SessionID = uuid.UUID(data[12:28])
	s.Started = timeOf(binary.LittleEndian.Uint64(data[28:36]))
	s.TotalFiles = binary.LittleEndian.Uint64(data[36:44])
	s.TotalBytes = binary.LittleEndian.Uint64(data[44:52])
	// A corrupt count would make the bitset allocation below explode;
	// anything claiming more files than the file could possibly describe
	// is garbage.
	if s.TotalFiles > uint64(len(data))*8 {
		return nil, nil
	}
	copy(s.ConfigHash[:], data[52:84])
	copy(s.PlanHash[:], data[84:116])

	off := int64(fixedHeaderLen)
	srcDir, off, ok := readString(data, off)
	if !ok {
		return nil, nil
	}
	destPattern, off, ok := readString(data, off)
	if !ok {
		return nil, nil
	}
	s.SourceDir = srcDir
	s.DestinationPattern = destPattern

	bitsetEnd := off + s.bitsetLen()
	statsEnd := bitsetEnd + statsLen
	if int64(len(data)) < statsEnd {
		return nil, nil
	}
	s.Completed = bitsetFromBytes(data[off:bitsetEnd], s.TotalFiles)

	stats := data[bitsetEnd:statsEnd]
	s.Stats = Statistics{
		FilesCompleted: binary.LittleEndian.Uint64(stats[0:8]),
		FilesFailed:    binary.LittleEndian.Uint64(stats[8:16]),
		FilesSkipped:   binary.LittleEndian.Uint64(stats[16:24]),
		BytesCompleted: binary.LittleEndian.Uint64(stats[24:32]),
		LastUpdated:    timeOf(binary.LittleEndian.Uint64(stats[32:40])),
	}

	// The record trailer may be missing or cut short by a crash; parse
	// whatever complete records exist.
	s.Failed = make(map[uint64]string)
	s.PendingSourceDeletion = make(map[uint64]bool)
	for rec := statsEnd; rec+RecordSize <= int64(len(data)); rec += RecordSize {
		r := decodeRecord(data[rec : rec+RecordSize])
		s.Records = append(s.Records, r)
		switch r.Result {
		case ResultFailed:
			s.Failed[r.Index] = "failed in a previous session"
		case ResultCopyDonePendingDelete:
			s.PendingSourceDeletion[r.Index] = true
		case ResultCompleted:
			delete(s.PendingSourceDeletion, r.Index)
		}
	}

	return s, nil
}

func readString(data []byte, off int64) (string, int64, bool) {
	if off+4 > int64(len(data)) {
		return "", 0, false
	}
	n := int64(binary.LittleEndian.Uint32(data[off : off+4]))
	if off+4+n > int64(len(data)) {
		return "", 0, false
	}
	return string(data[off+4 : off+4+n]), off + 4 + n, true
}

// Dir returns the directory checkpoints for a destination pattern live
// in: an explicit override when configured, otherwise a .photocopy
// folder at the longest literal prefix of the pattern.
func Dir(destinationPattern, override string) string {
	if override != "" {
		return override
	}
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
	return filepath.Join(prefix, ".photocopy")
}

// FindLatest scans the checkpoint directory for the newest checkpoint
// matching the given source directory and destination pattern. Returns
// (nil, nil) when nothing matches.
func FindLatest(dir, sourceDir, destinationPattern string) (*State, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "checkpoint-*.pchk"))
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint directory: %w", err)
	}

	var latest *State
	for _, path := range matches {
		s, err := Load(path)
		if err != nil || s == nil {
			continue
		}
		if !PathsEqual(s.SourceDir, sourceDir) || !PathsEqual(s.DestinationPattern, destinationPattern) {
			continue
		}
		if latest == nil || s.Started.After(latest.Started) {
			latest = s
		}
	}
	return latest, nil
}

// PathsEqual compares two paths treating forward and backslashes as
// equivalent and ignoring trailing separators.
func PathsEqual(a, b string) bool {
	return normalizePath(a) == normalizePath(b)
}

func normalizePath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}
