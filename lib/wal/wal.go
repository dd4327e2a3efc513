package wal

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("wal")

// SyncMode determines when appended records are synced to disk
type SyncMode int

const (
	// SyncAlways syncs after every record (default)
	SyncAlways SyncMode = iota
	// SyncNone leaves syncing to the operating system
	SyncNone
)

func (m SyncMode) String() string {
	switch m {
	case SyncAlways:
		return "always"
	case SyncNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseSyncMode converts the textual form of a SyncMode
func ParseSyncMode(s string) (SyncMode, error) {
	switch strings.ToLower(s) {
	case "always", "":
		return SyncAlways, nil
	case "none":
		return SyncNone, nil
	default:
		return SyncAlways, fmt.Errorf("invalid wal sync mode: %s (expected always or none)", s)
	}
}

// File is the subset of *os.File the Writer needs.
// Truncate is used to cut off a record whose write or sync failed.
type File interface {
	io.Writer
	Sync() error
	Truncate(size int64) error
	Close() error
}

// Writer appends records to a log file.
//
// An append either adds a complete record or leaves the log as it was: a failed write or
// sync truncates the file back to its previous size. If that truncation fails too the
// writer is broken and rejects all further appends.
//
// Thread-safety: Append, Sync and Close are safe for concurrent use, records are never
// interleaved. Callers that need the log order to match another order (e.g. index visibility)
// must serialize their calls themselves.
type Writer struct {
	mu       sync.Mutex
	file     File
	syncMode SyncMode
	size     int64 // length of the log file, all complete records
	records  uint64
	bytes    int64
	broken   error
	closed   bool
}

// NewWriter creates a Writer appending to file. The file must be opened in append mode
// and size must be its current length.
func NewWriter(file File, size int64, syncMode SyncMode) *Writer {
	return &Writer{
		file:     file,
		size:     size,
		syncMode: syncMode,
	}
}

// Append serializes rec and writes it to the end of the log.
// It returns an error if the record could not be written (or synced, for SyncAlways),
// in which case the record is not part of the log.
func (w *Writer) Append(rec Record) error {
	buf, err := rec.encode()
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("wal: append to closed log")
	}
	if w.broken != nil {
		return fmt.Errorf("%w: %v", ErrBroken, w.broken)
	}

	if _, err := w.file.Write(buf); err != nil {
		return w.rollback(fmt.Errorf("wal: failed to append %s record: %w", rec.Op, err))
	}

	if w.syncMode == SyncAlways {
		if err := w.file.Sync(); err != nil {
			return w.rollback(fmt.Errorf("wal: failed to sync %s record: %w", rec.Op, err))
		}
	}

	w.size += int64(len(buf))
	w.bytes += int64(len(buf))
	w.records++
	return nil
}

// rollback cuts the log back to the last complete record and returns cause
func (w *Writer) rollback(cause error) error {
	if err := w.file.Truncate(w.size); err != nil {
		w.broken = err
		Logger.Errorf("failed to truncate log to %d bytes, rejecting further appends: %v", w.size, err)
		return fmt.Errorf("%w (rollback failed: %v)", cause, err)
	}
	Logger.Warningf("dropped incomplete record, log truncated to %d bytes: %v", w.size, cause)
	return cause
}

// Sync forces all appended records to stable storage
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	return w.file.Sync()
}

// Stats returns the number of records and bytes appended by this writer.
// Failed appends are not counted.
func (w *Writer) Stats() (records uint64, bytes int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.records, w.bytes
}

// Close syncs and closes the underlying file. Calling Close twice is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("wal: failed to sync on close: %w", err)
	}
	return w.file.Close()
}
