package lstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/kvsys/lib/store"
	storetesting "github.com/ValentinKolb/kvsys/lib/store/testing"
	"github.com/ValentinKolb/kvsys/lib/wal"
)

func TestLocalStore(t *testing.T) {
	storetesting.RunIStoreTests(t, "LocalStore", func(t testing.TB) store.IStore {
		s, err := Open(filepath.Join(t.TempDir(), "test.kv"), nil)
		if err != nil {
			t.Fatalf("Failed to open store: %v", err)
		}
		return s
	})

	storetesting.RunIStoreTests(t, "LocalStoreNoSync", func(t testing.TB) store.IStore {
		s, err := Open(filepath.Join(t.TempDir(), "test.kv"), &Options{SyncMode: wal.SyncNone, BTreeDegree: 4})
		if err != nil {
			t.Fatalf("Failed to open store: %v", err)
		}
		return s
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// toggleFile is an in-memory log file with switchable faults
type toggleFile struct {
	bytes.Buffer
	fail         bool // writes fail without writing anything
	tear         bool // writes store half of the data and then fail
	failSync     bool
	failTruncate bool
}

var (
	errDiskFull = errors.New("disk full")
	errReadOnly = errors.New("read-only file system")
)

func (f *toggleFile) Write(p []byte) (int, error) {
	switch {
	case f.fail:
		return 0, errDiskFull
	case f.tear:
		n, _ := f.Buffer.Write(p[:len(p)/2])
		return n, errDiskFull
	}
	return f.Buffer.Write(p)
}

func (f *toggleFile) Sync() error {
	if f.failSync {
		return errDiskFull
	}
	return nil
}

func (f *toggleFile) Truncate(size int64) error {
	if f.failTruncate {
		return errReadOnly
	}
	if size > int64(f.Len()) {
		return fmt.Errorf("truncate to %d beyond end of file (%d bytes)", size, f.Len())
	}
	f.Buffer.Truncate(int(size))
	return nil
}

func (f *toggleFile) Close() error { return nil }

// replayFile rebuilds a store from the current content of file
func replayFile(t *testing.T, file *toggleFile) store.IStore {
	t.Helper()
	content, err := ReadLogFile(bytes.NewReader(file.Bytes()))
	if err != nil {
		t.Fatalf("Log is not replayable: %v", err)
	}
	replica := &toggleFile{}
	replica.Write(file.Bytes())
	return NewLocalStoreWithContent(content, replica, nil)
}

// expectSameState checks that both stores hold the same pairs for keys
func expectSameState(t *testing.T, live, replayed store.IStore, keys ...string) {
	t.Helper()
	for _, k := range keys {
		key := storetesting.Key(k)
		v1, ok1, _ := live.Get(key)
		v2, ok2, _ := replayed.Get(key)
		if ok1 != ok2 || !v1.Equal(v2) {
			t.Errorf("Key %q differs after replay: live=%v (%v), replayed=%v (%v)", k, v1, ok1, v2, ok2)
		}
	}
}

func mustOpen(t *testing.T, path string) store.IStore {
	t.Helper()
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return s
}

func mustClose(t *testing.T, s store.IStore) {
	t.Helper()
	if err := s.Close(); err != nil {
		t.Fatalf("Failed to close store: %v", err)
	}
}

func expectIOError(t *testing.T, err error) {
	t.Helper()
	var storeErr *store.Error
	if !errors.As(err, &storeErr) || storeErr.Code != store.RetCIOError {
		t.Fatalf("Expected IOError, got %v", err)
	}
	if !errors.Is(err, errDiskFull) {
		t.Errorf("Expected cause to be preserved, got %v", err)
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestOpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.kv")

	s := mustOpen(t, path)
	defer mustClose(t, s)

	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Expected log file to be created: %v", err)
	}
	if stat.Size() != 0 {
		t.Errorf("Expected empty log file, got %d bytes", stat.Size())
	}

	info, err := s.GetInfo()
	if err != nil {
		t.Fatalf("GetInfo failed: %v", err)
	}
	if info.Keys != 0 || info.Replayed != 0 || info.LogRecords != 0 {
		t.Errorf("Expected empty info, got %+v", info)
	}
}

func TestRestartReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.kv")
	k1, k2, k3 := storetesting.Key("k1"), storetesting.Key("k2"), storetesting.Key("k3")
	v1, v2 := storetesting.Value("v1"), storetesting.Value("v2")

	s := mustOpen(t, path)
	if err := s.Put(k1, v1); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put(k2, v2); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if rows, err := s.Delete(k1); err != nil || rows != 1 {
		t.Fatalf("Expected 1 row, got %d, %v", rows, err)
	}
	mustClose(t, s)

	// 2 puts and 1 delete: 2*(5+264) + (5+8) bytes
	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if stat.Size() != 2*269+13 {
		t.Errorf("Expected %d bytes in log, got %d", 2*269+13, stat.Size())
	}

	s = mustOpen(t, path)
	defer mustClose(t, s)

	if _, ok, _ := s.Get(k1); ok {
		t.Errorf("Expected k1 to stay deleted after replay")
	}
	value, ok, err := s.Get(k2)
	if err != nil || !ok || !value.Equal(v2) {
		t.Errorf("Expected k2 = %v after replay, got %v (%v, %v)", v2, value, ok, err)
	}

	pairs, err := s.Scan(k1, k3)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(pairs) != 1 || pairs[0].Key != k2 {
		t.Errorf("Expected only k2 in scan, got %v", pairs)
	}

	info, err := s.GetInfo()
	if err != nil {
		t.Fatalf("GetInfo failed: %v", err)
	}
	if info.Replayed != 3 {
		t.Errorf("Expected 3 replayed records, got %d", info.Replayed)
	}
	if info.Keys != 1 || info.Tombstones != 0 {
		t.Errorf("Expected 1 key and no tombstones, got %+v", info)
	}

	// the delete removed the entry during replay, so deleting k1 again affects no rows
	if rows, err := s.Delete(k1); err != nil || rows != 0 {
		t.Errorf("Expected 0 rows for k1 after replay, got %d, %v", rows, err)
	}
}

func TestRestartAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append.kv")
	key := storetesting.Key("key")

	for i := 0; i < 3; i++ {
		s := mustOpen(t, path)
		if err := s.Put(key, storetesting.FilledValue(byte(i))); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		mustClose(t, s)
	}

	s := mustOpen(t, path)
	defer mustClose(t, s)

	value, ok, err := s.Get(key)
	if err != nil || !ok || !value.Equal(storetesting.FilledValue(2)) {
		t.Errorf("Expected last written value, got %v (%v, %v)", value, ok, err)
	}

	info, _ := s.GetInfo()
	if info.Replayed != 3 {
		t.Errorf("Expected 3 replayed records, got %d", info.Replayed)
	}
}

func TestOpenCorruptLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.kv")

	s := mustOpen(t, path)
	if err := s.Put(storetesting.Key("a"), storetesting.Value("a")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	mustClose(t, s)

	// cut the last record in half
	if err := os.Truncate(path, 100); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}

	if _, err := Open(path, nil); !errors.Is(err, wal.ErrCorruptRecord) {
		t.Fatalf("Expected ErrCorruptRecord, got %v", err)
	}
}

func TestReadLogFile(t *testing.T) {
	var log bytes.Buffer
	file := &toggleFile{}
	s := NewLocalStore(file, nil)
	for i := uint64(0); i < 10; i++ {
		if err := s.Put(storetesting.NumKey(i), storetesting.FilledValue(byte(i))); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	for i := uint64(0); i < 10; i += 2 {
		if _, err := s.Delete(storetesting.NumKey(i)); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	}
	log.Write(file.Bytes())

	content, err := ReadLogFile(&log)
	if err != nil {
		t.Fatalf("ReadLogFile failed: %v", err)
	}
	if content.Len() != 5 {
		t.Errorf("Expected 5 keys, got %d", content.Len())
	}

	restored := NewLocalStoreWithContent(content, file, nil)
	for i := uint64(0); i < 10; i++ {
		value, ok, err := restored.Get(storetesting.NumKey(i))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if i%2 == 0 && ok {
			t.Errorf("Expected key %d to be deleted", i)
		}
		if i%2 == 1 && (!ok || !value.Equal(storetesting.FilledValue(byte(i)))) {
			t.Errorf("Expected key %d to be restored, got %v", i, value)
		}
	}
}

func TestPutLogFailure(t *testing.T) {
	file := &toggleFile{}
	s := NewLocalStore(file, nil)
	key := storetesting.Key("k")

	if err := s.Put(key, storetesting.Value("before")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	file.fail = true
	expectIOError(t, s.Put(key, storetesting.Value("after")))
	expectIOError(t, s.Put(storetesting.Key("new"), storetesting.Value("new")))

	// the index is unchanged
	value, ok, _ := s.Get(key)
	if !ok || !value.Equal(storetesting.Value("before")) {
		t.Errorf("Expected old value after failed put, got %v", value)
	}
	if _, ok, _ := s.Get(storetesting.Key("new")); ok {
		t.Errorf("Expected failed put of a new key to be invisible")
	}

	info, _ := s.GetInfo()
	if info.Keys != 1 || info.LogRecords != 1 {
		t.Errorf("Expected 1 key and 1 log record, got %+v", info)
	}

	// the store recovers once the log is writable again
	file.fail = false
	if err := s.Put(key, storetesting.Value("after")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
}

func TestDeleteLogFailure(t *testing.T) {
	file := &toggleFile{}
	s := NewLocalStore(file, nil)
	key := storetesting.Key("k")

	if err := s.Put(key, storetesting.Value("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	file.fail = true
	rows, err := s.Delete(key)
	expectIOError(t, err)
	if rows != 0 {
		t.Errorf("Expected 0 rows on failure, got %d", rows)
	}

	if _, ok, _ := s.Get(key); !ok {
		t.Errorf("Expected key to survive a failed delete")
	}

	// a never-set key is not logged, so it cannot fail
	rows, err = s.Delete(storetesting.Key("none"))
	if err != nil || rows != 0 {
		t.Errorf("Expected 0 rows without error, got %d, %v", rows, err)
	}
}

func TestTornWriteIsRolledBack(t *testing.T) {
	file := &toggleFile{}
	s := NewLocalStore(file, nil)

	if err := s.Put(storetesting.Key("a"), storetesting.Value("1")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	size := file.Len()

	file.tear = true
	expectIOError(t, s.Put(storetesting.Key("b"), storetesting.Value("2")))
	if file.Len() != size {
		t.Fatalf("Expected torn record to be removed, log has %d bytes instead of %d", file.Len(), size)
	}

	file.tear = false
	if err := s.Put(storetesting.Key("c"), storetesting.Value("3")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := s.Delete(storetesting.Key("a")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	replayed := replayFile(t, file)
	expectSameState(t, s, replayed, "a", "b", "c")
	if _, ok, _ := replayed.Get(storetesting.Key("c")); !ok {
		t.Errorf("Expected put after the torn write to survive replay")
	}
}

func TestSyncFailure(t *testing.T) {
	tests := []struct {
		name string
		op   func(s store.IStore) error
	}{
		{"Put", func(s store.IStore) error {
			return s.Put(storetesting.Key("k"), storetesting.Value("new"))
		}},
		{"PutNewKey", func(s store.IStore) error {
			return s.Put(storetesting.Key("other"), storetesting.Value("new"))
		}},
		{"Delete", func(s store.IStore) error {
			_, err := s.Delete(storetesting.Key("k"))
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := &toggleFile{}
			s := NewLocalStore(file, nil)
			if err := s.Put(storetesting.Key("k"), storetesting.Value("old")); err != nil {
				t.Fatalf("Put failed: %v", err)
			}
			size := file.Len()

			file.failSync = true
			expectIOError(t, tt.op(s))
			if file.Len() != size {
				t.Fatalf("Expected unsynced record to be removed, log has %d bytes instead of %d", file.Len(), size)
			}

			// the failed operation must not come back after a restart
			expectSameState(t, s, replayFile(t, file), "k", "other")

			file.failSync = false
			if err := tt.op(s); err != nil {
				t.Fatalf("Retry failed: %v", err)
			}
			expectSameState(t, s, replayFile(t, file), "k", "other")
		})
	}
}

func TestFailedRollbackBreaksLog(t *testing.T) {
	file := &toggleFile{}
	s := NewLocalStore(file, nil)
	key := storetesting.Key("k")
	if err := s.Put(key, storetesting.Value("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	file.tear, file.failTruncate = true, true
	expectIOError(t, s.Put(storetesting.Key("x"), storetesting.Value("x")))

	// the log keeps the torn bytes, nothing may be appended after them
	file.tear, file.failTruncate = false, false
	size := file.Len()

	err := s.Put(storetesting.Key("y"), storetesting.Value("y"))
	if !errors.Is(err, wal.ErrBroken) {
		t.Fatalf("Expected ErrBroken, got %v", err)
	}
	if _, err := s.Delete(key); !errors.Is(err, wal.ErrBroken) {
		t.Fatalf("Expected ErrBroken, got %v", err)
	}
	if file.Len() != size {
		t.Errorf("Expected no writes to a broken log, got %d bytes instead of %d", file.Len(), size)
	}

	// reads keep working
	if value, ok, _ := s.Get(key); !ok || !value.Equal(storetesting.Value("v")) {
		t.Errorf("Expected %q to be readable, got %v", "k", value)
	}
}

func TestPutNilValue(t *testing.T) {
	s := NewLocalStore(&toggleFile{}, nil)

	var storeErr *store.Error
	if err := s.Put(storetesting.Key("k"), nil); !errors.As(err, &storeErr) || storeErr.Code != store.RetCInvalidOperation {
		t.Errorf("Expected InvalidOperation, got %v", err)
	}
}

func TestInfoCounters(t *testing.T) {
	s := NewLocalStore(&toggleFile{}, nil)
	k1, k2 := storetesting.Key("k1"), storetesting.Key("k2")

	steps := []struct {
		name       string
		op         func() error
		keys       int
		tombstones int
	}{
		{"put k1", func() error { return s.Put(k1, storetesting.Value("a")) }, 1, 0},
		{"put k2", func() error { return s.Put(k2, storetesting.Value("b")) }, 2, 0},
		{"overwrite k1", func() error { return s.Put(k1, storetesting.Value("c")) }, 2, 0},
		{"delete k1", func() error { _, err := s.Delete(k1); return err }, 1, 1},
		{"delete k1 again", func() error { _, err := s.Delete(k1); return err }, 1, 1},
		{"put k1", func() error { return s.Put(k1, storetesting.Value("d")) }, 2, 0},
	}

	for _, step := range steps {
		if err := step.op(); err != nil {
			t.Fatalf("%s failed: %v", step.name, err)
		}
		info, err := s.GetInfo()
		if err != nil {
			t.Fatalf("GetInfo failed: %v", err)
		}
		if info.Keys != step.keys || info.Tombstones != step.tombstones {
			t.Errorf("after %s: expected %d keys / %d tombstones, got %d / %d",
				step.name, step.keys, step.tombstones, info.Keys, info.Tombstones)
		}
	}
}
