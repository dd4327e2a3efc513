package testing

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/kvsys/lib/kv"
	"github.com/ValentinKolb/kvsys/lib/store"
)

// StoreFactory creates a new, empty instance of an IStore implementation.
// The suite closes the store when the test ends.
type StoreFactory func(t testing.TB) store.IStore

// RunIStoreTests runs the conformance suite for an IStore implementation.
func RunIStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, newStore(t, factory))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, newStore(t, factory))
		})

		t.Run("DeleteLogging", func(t *testing.T) {
			testDeleteLogging(t, newStore(t, factory))
		})

		t.Run("Scan", func(t *testing.T) {
			testScan(t, newStore(t, factory))
		})

		t.Run("ScanLarge", func(t *testing.T) {
			testScanLarge(t, newStore(t, factory))
		})

		t.Run("BinaryKeys", func(t *testing.T) {
			testBinaryKeys(t, newStore(t, factory))
		})

		t.Run("ValueIsolation", func(t *testing.T) {
			testValueIsolation(t, newStore(t, factory))
		})

		t.Run("ConcurrentPuts", func(t *testing.T) {
			testConcurrentPuts(t, newStore(t, factory))
		})

		t.Run("ConcurrentReadWrite", func(t *testing.T) {
			testConcurrentReadWrite(t, newStore(t, factory))
		})

		t.Run("Scenario", func(t *testing.T) {
			testScenario(t, newStore(t, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func newStore(t *testing.T, factory StoreFactory) store.IStore {
	s := factory(t)
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return s
}

// Key creates a zero padded key from a string (at most 8 bytes)
func Key(s string) kv.Key {
	k, err := kv.PadKey([]byte(s))
	if err != nil {
		panic(err)
	}
	return k
}

// NumKey creates a key whose order follows i
func NumKey(i uint64) kv.Key {
	return kv.DecodeKey(i)
}

// Value creates a zero padded value from a string
func Value(s string) *kv.Value {
	v, err := kv.PadValue([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

// FilledValue creates a value where every byte is b
func FilledValue(b byte) *kv.Value {
	v := new(kv.Value)
	for i := range v {
		v[i] = b
	}
	return v
}

func mustPut(t testing.TB, s store.IStore, key kv.Key, value *kv.Value) {
	t.Helper()
	if err := s.Put(key, value); err != nil {
		t.Fatalf("Put(%v) failed: %v", key, err)
	}
}

func expectValue(t testing.TB, s store.IStore, key kv.Key, expected *kv.Value) {
	t.Helper()
	value, ok, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get(%v) failed: %v", key, err)
	}
	if expected == nil {
		if ok || value != nil {
			t.Errorf("Expected %v to be absent, got %v", key, value)
		}
		return
	}
	if !ok {
		t.Errorf("Expected %v to exist", key)
		return
	}
	if !value.Equal(expected) {
		t.Errorf("Expected %v for %v, got %v", expected, key, value)
	}
}

func expectScan(t testing.TB, s store.IStore, low, high kv.Key, expected []kv.Pair) {
	t.Helper()
	pairs, err := s.Scan(low, high)
	if err != nil {
		t.Fatalf("Scan(%v, %v) failed: %v", low, high, err)
	}
	if len(pairs) != len(expected) {
		t.Fatalf("Expected %d pairs, got %d", len(expected), len(pairs))
	}
	for i := range expected {
		if pairs[i].Key != expected[i].Key || !pairs[i].Value.Equal(expected[i].Value) {
			t.Errorf("Pair %d: expected (%v, %v), got (%v, %v)",
				i, expected[i].Key, expected[i].Value, pairs[i].Key, pairs[i].Value)
		}
	}
}

// logRecords returns the number of log records or skips the test if the store does not report it
func logRecords(t testing.TB, s store.IStore) uint64 {
	t.Helper()
	info, err := s.GetInfo()
	if err != nil {
		var storeErr *store.Error
		if errors.As(err, &storeErr) && storeErr.Code == store.RetCUnsupportedOperation {
			t.Skip("store does not report log statistics")
		}
		t.Fatalf("GetInfo failed: %v", err)
	}
	return info.LogRecords
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, s store.IStore) {
	key := Key("test-key")

	expectValue(t, s, key, nil)

	mustPut(t, s, key, Value("value-1"))
	expectValue(t, s, key, Value("value-1"))

	mustPut(t, s, key, Value("value-2"))
	expectValue(t, s, key, Value("value-2"))

	expectValue(t, s, Key("other"), nil)
}

func testDelete(t *testing.T, s store.IStore) {
	key := Key("del")

	// never set
	rows, err := s.Delete(key)
	if err != nil || rows != 0 {
		t.Fatalf("Expected 0 rows for never-set key, got %d, %v", rows, err)
	}

	mustPut(t, s, key, Value("v"))

	rows, err = s.Delete(key)
	if err != nil || rows != 1 {
		t.Fatalf("Expected 1 row for set key, got %d, %v", rows, err)
	}
	expectValue(t, s, key, nil)

	// already deleted, the entry still exists
	rows, err = s.Delete(key)
	if err != nil || rows != 1 {
		t.Fatalf("Expected 1 row for deleted key, got %d, %v", rows, err)
	}
	expectValue(t, s, key, nil)

	// set again after delete
	mustPut(t, s, key, Value("again"))
	expectValue(t, s, key, Value("again"))
}

func testDeleteLogging(t *testing.T, s store.IStore) {
	key := Key("log")
	before := logRecords(t, s)

	if _, err := s.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if after := logRecords(t, s); after != before {
		t.Errorf("Delete of a never-set key must not be logged (%d -> %d records)", before, after)
	}

	mustPut(t, s, key, Value("v"))
	if _, err := s.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if after := logRecords(t, s); after != before+3 {
		t.Errorf("Expected put + 2 deletes to be logged (%d records), got %d", before+3, after)
	}
}

func testScan(t *testing.T, s store.IStore) {
	for _, k := range []string{"k1", "k2", "k3", "k5"} {
		mustPut(t, s, Key(k), Value("v-"+k))
	}

	expectScan(t, s, Key("k1"), Key("k3"), []kv.Pair{
		{Key: Key("k1"), Value: Value("v-k1")},
		{Key: Key("k2"), Value: Value("v-k2")},
	})

	// lower bound inclusive, upper bound exclusive, gaps are skipped
	expectScan(t, s, Key("k2"), Key("k9"), []kv.Pair{
		{Key: Key("k2"), Value: Value("v-k2")},
		{Key: Key("k3"), Value: Value("v-k3")},
		{Key: Key("k5"), Value: Value("v-k5")},
	})

	// empty ranges
	expectScan(t, s, Key("k2"), Key("k2"), nil)
	expectScan(t, s, Key("k3"), Key("k1"), nil)
	expectScan(t, s, Key("a"), Key("b"), nil)

	// deleted keys are not returned
	if _, err := s.Delete(Key("k2")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	expectScan(t, s, Key("k1"), Key("k4"), []kv.Pair{
		{Key: Key("k1"), Value: Value("v-k1")},
		{Key: Key("k3"), Value: Value("v-k3")},
	})
}

func testScanLarge(t *testing.T, s store.IStore) {
	const n = 2048

	expected := make([]kv.Pair, 0, n)
	// insert in reverse order, the scan must still be sorted
	for i := n - 1; i >= 0; i-- {
		mustPut(t, s, NumKey(uint64(i)), Value(fmt.Sprintf("value-%d", i)))
	}
	for i := 0; i < n; i++ {
		expected = append(expected, kv.Pair{Key: NumKey(uint64(i)), Value: Value(fmt.Sprintf("value-%d", i))})
	}

	expectScan(t, s, NumKey(0), NumKey(n), expected)
	expectScan(t, s, NumKey(100), NumKey(117), expected[100:117])
}

func testBinaryKeys(t *testing.T, s store.IStore) {
	keys := []kv.Key{
		{},
		{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01},
		{0x7f, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		{0x80},
		{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe},
	}
	for i, k := range keys {
		mustPut(t, s, k, FilledValue(byte(i)))
	}
	for i, k := range keys {
		expectValue(t, s, k, FilledValue(byte(i)))
	}

	max := kv.Key{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	expected := make([]kv.Pair, len(keys))
	for i, k := range keys {
		expected[i] = kv.Pair{Key: k, Value: FilledValue(byte(i))}
	}
	expectScan(t, s, kv.Key{}, max, expected)
}

func testValueIsolation(t *testing.T, s store.IStore) {
	key := Key("iso")
	value := Value("original")
	mustPut(t, s, key, value)

	// modifying the caller's value must not change the stored value
	value[0] = 'X'
	expectValue(t, s, key, Value("original"))

	// a value read before an overwrite keeps its content
	old, _, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	mustPut(t, s, key, Value("new"))
	if !old.Equal(Value("original")) {
		t.Errorf("Previously read value changed after overwrite: %v", old)
	}
	expectValue(t, s, key, Value("new"))
}

func testConcurrentPuts(t *testing.T, s store.IStore) {
	const (
		workers       = 8
		keysPerWorker = 100
	)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < keysPerWorker; i++ {
				id := uint64(w*keysPerWorker + i)
				if err := s.Put(NumKey(id), FilledValue(byte(id))); err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Fatalf("Concurrent put failed: %v", err)
	}

	for id := uint64(0); id < workers*keysPerWorker; id++ {
		expectValue(t, s, NumKey(id), FilledValue(byte(id)))
	}

	pairs, err := s.Scan(NumKey(0), NumKey(workers*keysPerWorker))
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(pairs) != workers*keysPerWorker {
		t.Errorf("Expected %d pairs, got %d", workers*keysPerWorker, len(pairs))
	}
}

func testConcurrentReadWrite(t *testing.T, s store.IStore) {
	const (
		keys       = 16
		iterations = 200
	)

	for i := uint64(0); i < keys; i++ {
		mustPut(t, s, NumKey(i), FilledValue(0))
	}

	// every value is filled with one byte, a reader must never see a mix
	checkValue := func(v *kv.Value) error {
		for i := range v {
			if v[i] != v[0] {
				return fmt.Errorf("torn value observed: byte 0 = %d, byte %d = %d", v[0], i, v[i])
			}
		}
		return nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, 8)

	for w := 0; w < 2; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				if err := s.Put(NumKey(uint64(i%keys)), FilledValue(byte(i+w))); err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				value, ok, err := s.Get(NumKey(uint64(i % keys)))
				if err != nil {
					errs <- err
					return
				}
				if !ok {
					errs <- fmt.Errorf("key %d disappeared", i%keys)
					return
				}
				if err := checkValue(value); err != nil {
					errs <- err
					return
				}

				if i%20 == 0 {
					pairs, err := s.Scan(NumKey(0), NumKey(keys))
					if err != nil {
						errs <- err
						return
					}
					if len(pairs) != keys {
						errs <- fmt.Errorf("expected %d pairs, got %d", keys, len(pairs))
						return
					}
					for _, p := range pairs {
						if err := checkValue(p.Value); err != nil {
							errs <- err
							return
						}
					}
				}
			}
		}()
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Concurrent access failed: %v", err)
	}
}

func testScenario(t *testing.T, s store.IStore) {
	k1, k2, k3 := Key("k1"), Key("k2"), Key("k3")
	v1, v2 := Value("v1"), Value("v2")

	mustPut(t, s, k1, v1)
	mustPut(t, s, k2, v2)

	expectScan(t, s, k1, k3, []kv.Pair{{Key: k1, Value: v1}, {Key: k2, Value: v2}})

	rows, err := s.Delete(k1)
	if err != nil || rows != 1 {
		t.Fatalf("Expected 1 row, got %d, %v", rows, err)
	}

	expectValue(t, s, k1, nil)
	expectScan(t, s, k1, k3, []kv.Pair{{Key: k2, Value: v2}})
}
