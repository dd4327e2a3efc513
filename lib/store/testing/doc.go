// Package testing provides a standardised conformance suite for implementations of
// the store.IStore interface.
//
// The suite covers point operations, the delete semantics (rows affected, tombstones),
// half-open range scans, value isolation and concurrent access. Implementation specific
// checks (log records, replay) stay in the implementation packages.
//
// Example usage:
//
//	func TestMyStore(t *testing.T) {
//		storetesting.RunIStoreTests(t, "MyStore", func(t testing.TB) store.IStore {
//			return NewMyStore(t.TempDir())
//		})
//	}
package testing
