package lstore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/ValentinKolb/kvsys/lib/kv"
	"github.com/ValentinKolb/kvsys/lib/store"
	"github.com/ValentinKolb/kvsys/lib/wal"
	"github.com/google/btree"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("store")

const (
	defaultBTreeDegree = 32
)

// Options configures the store
type Options struct {
	SyncMode    wal.SyncMode // When log records are synced (default: every record)
	BTreeDegree int          // Degree of the index B-tree (0 = default)
}

// DefaultOptions returns the default store options
func DefaultOptions() *Options {
	return &Options{
		SyncMode:    wal.SyncAlways,
		BTreeDegree: defaultBTreeDegree,
	}
}

// --------------------------------------------------------------------------
// Index
// --------------------------------------------------------------------------

// entry is a single index entry, a nil value marks a tombstone
type entry struct {
	key   uint64
	value *kv.Value
}

func lessEntry(a, b entry) bool {
	return a.key < b.key
}

// Content is an index rebuilt from a log file, see ReadLogFile
type Content struct {
	index    *btree.BTreeG[entry]
	replayed uint64
	size     int64 // bytes of the log file
}

// Len returns the number of keys in the content
func (c *Content) Len() int {
	return c.index.Len()
}

func newIndex(degree int) *btree.BTreeG[entry] {
	if degree < 2 {
		degree = defaultBTreeDegree
	}
	return btree.NewG[entry](degree, lessEntry)
}

// ReadLogFile replays the log read from r and returns the resulting index content.
// The reader is only read, never written.
func ReadLogFile(r io.Reader) (*Content, error) {
	index := newIndex(defaultBTreeDegree)

	replayed, size, err := wal.Replay(r, func(rec wal.Record) error {
		switch rec.Op {
		case wal.OpPut:
			index.ReplaceOrInsert(entry{key: rec.Key.Encode(), value: rec.Value})
		case wal.OpDelete:
			index.Delete(entry{key: rec.Key.Encode()})
		default:
			return fmt.Errorf("unexpected op %s", rec.Op)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Content{index: index, replayed: replayed, size: size}, nil
}

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

type storeImpl struct {
	mu         sync.RWMutex
	index      *btree.BTreeG[entry]
	log        *wal.Writer
	live       int
	tombstones int
	replayed   uint64
}

// Open creates the store for the log file at path.
// If the file exists it is replayed (opened read-only) and then reopened for appending,
// otherwise a new empty log file is created.
func Open(path string, opts *Options) (store.IStore, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	_, err := os.Stat(path)
	switch {
	case err == nil:
		content, err := readLogPath(path)
		if err != nil {
			return nil, err
		}

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s for appending: %w", path, err)
		}

		Logger.Infof("replayed %d records from %s (%d keys)", content.replayed, path, content.Len())
		return NewLocalStoreWithContent(content, file, opts), nil

	case errors.Is(err, fs.ErrNotExist):
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file %s: %w", path, err)
		}

		Logger.Infof("created new log file %s", path)
		return NewLocalStore(file, opts), nil

	default:
		return nil, fmt.Errorf("failed to stat log file %s: %w", path, err)
	}
}

// readLogPath opens path read-only and replays it
func readLogPath(path string) (*Content, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s for reading: %w", path, err)
	}
	defer file.Close()

	content, err := ReadLogFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to replay log file %s: %w", path, err)
	}
	return content, nil
}

// NewLocalStore creates an empty store that appends its log to file. The file must be empty.
func NewLocalStore(file wal.File, opts *Options) store.IStore {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &storeImpl{
		index: newIndex(opts.BTreeDegree),
		log:   wal.NewWriter(file, 0, opts.SyncMode),
	}
}

// NewLocalStoreWithContent creates a store holding the replayed content that appends its log to file.
// The file must be the log the content was read from.
func NewLocalStoreWithContent(content *Content, file wal.File, opts *Options) store.IStore {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &storeImpl{
		index:    content.index,
		log:      wal.NewWriter(file, content.size, opts.SyncMode),
		live:     content.index.Len(), // replay never leaves tombstones
		replayed: content.replayed,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Get(key kv.Key) (*kv.Value, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.index.Get(entry{key: key.Encode()})
	if !ok || e.value == nil {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *storeImpl) Put(key kv.Key, value *kv.Value) error {
	if value == nil {
		return store.NewError(store.RetCInvalidOperation, "put without value")
	}

	// the stored value is a private copy, readers of the old value keep seeing it
	published := new(kv.Value)
	*published = *value

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.log.Append(wal.NewPutRecord(key, published)); err != nil {
		Logger.Warningf("put %v failed: %v", key, err)
		return store.WrapError(store.RetCIOError, "failed to log put", err)
	}

	old, replaced := s.index.ReplaceOrInsert(entry{key: key.Encode(), value: published})
	switch {
	case !replaced:
		s.live++
	case old.value == nil:
		s.tombstones--
		s.live++
	}
	return nil
}

func (s *storeImpl) Delete(key kv.Key) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded := key.Encode()
	old, ok := s.index.Get(entry{key: encoded})
	if !ok {
		return 0, nil
	}

	// an existing entry (even a tombstone) is always logged and counted
	if err := s.log.Append(wal.NewDeleteRecord(key)); err != nil {
		Logger.Warningf("delete %v failed: %v", key, err)
		return 0, store.WrapError(store.RetCIOError, "failed to log delete", err)
	}

	s.index.ReplaceOrInsert(entry{key: encoded})
	if old.value != nil {
		s.live--
		s.tombstones++
	}
	return 1, nil
}

func (s *storeImpl) Scan(low, high kv.Key) ([]kv.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pairs := make([]kv.Pair, 0)
	s.index.AscendRange(entry{key: low.Encode()}, entry{key: high.Encode()}, func(e entry) bool {
		if e.value != nil {
			pairs = append(pairs, kv.Pair{Key: kv.DecodeKey(e.key), Value: e.value})
		}
		return true
	})
	return pairs, nil
}

func (s *storeImpl) GetInfo() (store.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, bytes := s.log.Stats()
	return store.Info{
		Keys:       s.live,
		Tombstones: s.tombstones,
		LogRecords: records,
		LogBytes:   bytes,
		Replayed:   s.replayed,
	}, nil
}

func (s *storeImpl) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.log.Close(); err != nil {
		return store.WrapError(store.RetCIOError, "failed to close log", err)
	}
	return nil
}
