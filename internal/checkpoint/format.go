// Package checkpoint persists run progress to a fixed-layout binary file
// so an interrupted run can resume without re-copying completed work.
//
// On-disk layout, little-endian, offsets from file start:
//
//	0    8   magic "PCHK\x00\x01\x00\x00"
//	8    4   schema version
//	12   16  session UUID
//	28   8   started (ns since epoch)
//	36   8   total files
//	44   8   total bytes
//	52   32  config hash
//	84   32  plan hash
//	116  4+n source directory (length-prefixed UTF-8)
//	...  4+n destination pattern (length-prefixed UTF-8)
//	P    ⌈total/8⌉  completion bitset, bit i = file i
//	S    40  statistics: completed, failed, skipped, bytes, last-updated
//	R    ...  operation records, RecordSize bytes each, completion order
package checkpoint

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

var magic = [8]byte{'P', 'C', 'H', 'K', 0x00, 0x01, 0x00, 0x00}

const (
	// SchemaVersion is bumped whenever the layout changes.
	SchemaVersion uint32 = 1

	// fixedHeaderLen covers everything before the variable-length strings.
	fixedHeaderLen = 116

	// statsLen is the fixed statistics block at offset S.
	statsLen = 40

	// RecordSize is the fixed length of one operation record:
	// index (8) + result (1) + file size (8) + timestamp (8).
	RecordSize = 25
)

// OperationResult is the terminal (or intermediate, for moves) state of
// one plan index.
type OperationResult byte

const (
	ResultCompleted OperationResult = iota + 1
	ResultSkipped
	ResultFailed

	// ResultCopyDonePendingDelete marks a move whose copy landed but
	// whose source delete has not been confirmed. Persisted so a later
	// run knows the destination bytes are already good.
	ResultCopyDonePendingDelete
)

func (r OperationResult) String() string {
	switch r {
	case ResultCompleted:
		return "completed"
	case ResultSkipped:
		return "skipped"
	case ResultFailed:
		return "failed"
	case ResultCopyDonePendingDelete:
		return "copy done, delete pending"
	default:
		return "unknown"
	}
}

// Terminal reports whether the result counts as done for the completion
// bitmap.
func (r OperationResult) Terminal() bool {
	return r == ResultCompleted || r == ResultSkipped || r == ResultFailed
}

// OperationRecord is one fixed-size trailer entry, appended in completion
// order.
type OperationRecord struct {
	Index     uint64
	Result    OperationResult
	FileSize  uint64
	Timestamp time.Time
}

func (r OperationRecord) encode(buf []byte) {
	binary.LittleEndian.PutUint64(buf[0:8], r.Index)
	buf[8] = byte(r.Result)
	binary.LittleEndian.PutUint64(buf[9:17], r.FileSize)
	binary.LittleEndian.PutUint64(buf[17:25], ticksOf(r.Timestamp))
}

func decodeRecord(buf []byte) OperationRecord {
	return OperationRecord{
		Index:     binary.LittleEndian.Uint64(buf[0:8]),
		Result:    OperationResult(buf[8]),
		FileSize:  binary.LittleEndian.Uint64(buf[9:17]),
		Timestamp: timeOf(binary.LittleEndian.Uint64(buf[17:25])),
	}
}

// Statistics are the aggregate counters persisted at offset S.
type Statistics struct {
	FilesCompleted uint64
	FilesFailed    uint64
	FilesSkipped   uint64
	BytesCompleted uint64
	LastUpdated    time.Time
}

// State is the in-memory form of one checkpoint file.
type State struct {
	Version            uint32
	SessionID          uuid.UUID
	Started            time.Time
	SourceDir          string
	DestinationPattern string
	ConfigHash         [32]byte
	PlanHash           [32]byte
	TotalFiles         uint64
	TotalBytes         uint64

	Completed *Bitset
	Stats     Statistics

	// Failed maps plan indices to error messages. Messages live only in
	// memory; the binary trailer keeps the failed result code.
	Failed map[uint64]string

	// PendingSourceDeletion holds move indices whose copy landed but
	// whose source still exists.
	PendingSourceDeletion map[uint64]bool

	Records []OperationRecord

	// Path is where this state was loaded from or will be written.
	Path string
}

// headerLen returns the byte length of the header including the
// variable-length strings, i.e. the bitset offset P.
func (s *State) headerLen() int64 {
	return fixedHeaderLen + 4 + int64(len(s.SourceDir)) + 4 + int64(len(s.DestinationPattern))
}

func (s *State) bitsetLen() int64 {
	return int64((s.TotalFiles + 7) / 8)
}

func (s *State) statsOffset() int64 {
	return s.headerLen() + s.bitsetLen()
}

func (s *State) recordsOffset() int64 {
	return s.statsOffset() + statsLen
}

// ticksOf converts a time to the persisted epoch-nanosecond form. The
// zero time persists as zero.
func ticksOf(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixNano())
}

func timeOf(ticks uint64) time.Time {
	if ticks == 0 {
		return time.Time{}
	}
	return time.Unix(0, int64(ticks)).UTC()
}
