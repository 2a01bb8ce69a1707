package checkpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// ErrIndexOutOfRange rejects record calls for indices past the plan.
var ErrIndexOutOfRange = errors.New("checkpoint index out of range")

// flushInterval bounds how stale the on-disk state may get while the
// background flusher is running.
const flushInterval = 200 * time.Millisecond

// Writer is the single owner of one checkpoint file during a run.
// RecordCompletion, RecordFailure and IsCompleted are safe to call from
// many goroutines; durability is provided by a background flush task and
// by explicit Flush/Complete/Fail calls.
type Writer struct {
	state *State
	f     *os.File

	bitsetOff  int64
	statsOff   int64
	recordsOff int64

	completed atomic.Uint64
	failed    atomic.Uint64
	skipped   atomic.Uint64
	bytes     atomic.Uint64

	dirty atomic.Bool

	mu      sync.Mutex // guards pending, written, failed/pending maps, file writes, closed
	pending []OperationRecord
	written int
	closed  bool

	done     chan struct{}
	stopOnce sync.Once
	flushWG  sync.WaitGroup
}

// Create writes a brand-new checkpoint file for state into dir and
// returns its writer. The header, an all-zero bitset and zeroed
// statistics hit disk before Create returns.
func Create(dir string, state *State) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	state.Path = filepath.Join(dir, fmt.Sprintf("checkpoint-%s.pchk", state.SessionID))

	f, err := os.Create(state.Path)
	if err != nil {
		return nil, fmt.Errorf("create checkpoint file: %w", err)
	}

	w := newWriter(state, f)
	if err := w.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return nil, err
	}
	w.startFlusher()
	return w, nil
}

// Resume reopens the checkpoint file a loaded state came from, seeding
// the writer's counters and bitmap so a resumed run continues where the
// previous one stopped.
func Resume(state *State) (*Writer, error) {
	f, err := os.OpenFile(state.Path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint file: %w", err)
	}
	w := newWriter(state, f)
	w.completed.Store(state.Stats.FilesCompleted)
	w.failed.Store(state.Stats.FilesFailed)
	w.skipped.Store(state.Stats.FilesSkipped)
	w.bytes.Store(state.Stats.BytesCompleted)
	w.written = len(state.Records)
	w.startFlusher()
	return w, nil
}

func newWriter(state *State, f *os.File) *Writer {
	if state.Completed == nil {
		state.Completed = NewBitset(state.TotalFiles)
	}
	if state.Failed == nil {
		state.Failed = make(map[uint64]string)
	}
	if state.PendingSourceDeletion == nil {
		state.PendingSourceDeletion = make(map[uint64]bool)
	}
	return &Writer{
		state:      state,
		f:          f,
		bitsetOff:  state.headerLen(),
		statsOff:   state.statsOffset(),
		recordsOff: state.recordsOffset(),
		done:       make(chan struct{}),
	}
}

func (w *Writer) startFlusher() {
	w.flushWG.Add(1)
	go func() {
		defer w.flushWG.Done()
		ticker := time.NewTicker(flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if w.dirty.Load() {
					w.Flush()
				}
			case <-w.done:
				return
			}
		}
	}()
}

func (w *Writer) writeHeader() error {
	s := w.state
	buf := make([]byte, w.bitsetOff)
	copy(buf[0:8], magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], s.Version)
	copy(buf[12:28], s.SessionID[:])
	binary.LittleEndian.PutUint64(buf[28:36], ticksOf(s.Started))
	binary.LittleEndian.PutUint64(buf[36:44], s.TotalFiles)
	binary.LittleEndian.PutUint64(buf[44:52], s.TotalBytes)
	copy(buf[52:84], s.ConfigHash[:])
	copy(buf[84:116], s.PlanHash[:])

	off := fixedHeaderLen
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(s.SourceDir)))
	copy(buf[off+4:], s.SourceDir)
	off += 4 + len(s.SourceDir)
	binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(s.DestinationPattern)))
	copy(buf[off+4:], s.DestinationPattern)

	if _, err := w.f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("write checkpoint header: %w", err)
	}
	return nil
}

// RecordCompletion marks index done with the given result. The bit for a
// terminal result is set at most once; repeat calls are no-ops. A
// ResultCopyDonePendingDelete does not set the completion bit: the unit
// is not terminal until its source delete is confirmed.
func (w *Writer) RecordCompletion(index uint64, result OperationResult, fileBytes uint64) error {
	if index >= w.state.TotalFiles {
		return fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, index, w.state.TotalFiles)
	}

	switch result {
	case ResultCompleted:
		if !w.state.Completed.Set(index) {
			return nil
		}
		w.completed.Add(1)
		w.bytes.Add(fileBytes)
		w.mu.Lock()
		delete(w.state.PendingSourceDeletion, index)
		w.mu.Unlock()
	case ResultSkipped:
		if !w.state.Completed.Set(index) {
			return nil
		}
		w.skipped.Add(1)
	case ResultCopyDonePendingDelete:
		w.mu.Lock()
		w.state.PendingSourceDeletion[index] = true
		w.mu.Unlock()
	case ResultFailed:
		return w.RecordFailure(index, fileBytes, "recorded as failed")
	default:
		return fmt.Errorf("invalid operation result %d", result)
	}

	w.appendRecord(OperationRecord{
		Index:     index,
		Result:    result,
		FileSize:  fileBytes,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// RecordFailure marks index failed with an error message. The message
// stays in memory for reporting; the trailer keeps the result code.
func (w *Writer) RecordFailure(index uint64, fileBytes uint64, message string) error {
	if index >= w.state.TotalFiles {
		return fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, index, w.state.TotalFiles)
	}
	if !w.state.Completed.Set(index) {
		return nil
	}
	w.failed.Add(1)
	w.mu.Lock()
	w.state.Failed[index] = message
	w.mu.Unlock()

	w.appendRecord(OperationRecord{
		Index:     index,
		Result:    ResultFailed,
		FileSize:  fileBytes,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

func (w *Writer) appendRecord(rec OperationRecord) {
	w.mu.Lock()
	w.pending = append(w.pending, rec)
	w.mu.Unlock()
	w.dirty.Store(true)
}

// SessionID returns the checkpoint's session identifier.
func (w *Writer) SessionID() string {
	return w.state.SessionID.String()
}

// IsCompleted reports whether index reached a terminal state.
// Out-of-range indices read as false.
func (w *Writer) IsCompleted(index uint64) bool {
	return w.state.Completed.Get(index)
}

// GetStatistics snapshots the aggregate counters.
func (w *Writer) GetStatistics() Statistics {
	return Statistics{
		FilesCompleted: w.completed.Load(),
		FilesFailed:    w.failed.Load(),
		FilesSkipped:   w.skipped.Load(),
		BytesCompleted: w.bytes.Load(),
		LastUpdated:    time.Now().UTC(),
	}
}

// Flush forces a durable write of the bitset, statistics and any pending
// operation records.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

func (w *Writer) flushLocked() error {
	if w.closed {
		return nil
	}
	w.dirty.Store(false)

	if _, err := w.f.WriteAt(w.state.Completed.Bytes(), w.bitsetOff); err != nil {
		return fmt.Errorf("write checkpoint bitset: %w", err)
	}

	stats := make([]byte, statsLen)
	binary.LittleEndian.PutUint64(stats[0:8], w.completed.Load())
	binary.LittleEndian.PutUint64(stats[8:16], w.failed.Load())
	binary.LittleEndian.PutUint64(stats[16:24], w.skipped.Load())
	binary.LittleEndian.PutUint64(stats[24:32], w.bytes.Load())
	binary.LittleEndian.PutUint64(stats[32:40], ticksOf(time.Now().UTC()))
	if _, err := w.f.WriteAt(stats, w.statsOff); err != nil {
		return fmt.Errorf("write checkpoint statistics: %w", err)
	}

	if len(w.pending) > 0 {
		buf := make([]byte, len(w.pending)*RecordSize)
		for i, rec := range w.pending {
			rec.encode(buf[i*RecordSize:])
		}
		off := w.recordsOff + int64(w.written)*RecordSize
		if _, err := w.f.WriteAt(buf, off); err != nil {
			return fmt.Errorf("write checkpoint records: %w", err)
		}
		w.written += len(w.pending)
		w.state.Records = append(w.state.Records, w.pending...)
		w.pending = w.pending[:0]
	}

	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	return nil
}

// Complete finalizes a run with zero failures and closes the file.
func (w *Writer) Complete() error {
	return w.Close()
}

// Fail finalizes a run that had failures and closes the file. The message
// is not stored; the persisted statistics already carry the counts.
func (w *Writer) Fail(message string) error {
	return w.Close()
}

// Close stops the background flusher, performs a final flush, and closes
// the file. Idempotent.
func (w *Writer) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.flushWG.Wait()

		w.mu.Lock()
		defer w.mu.Unlock()
		err = w.flushLocked()
		w.closed = true
		if cerr := w.f.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

// Delete removes the checkpoint file. Called only on explicit user
// request, never automatically.
func (w *Writer) Delete() error {
	w.Close()
	return os.Remove(w.state.Path)
}
