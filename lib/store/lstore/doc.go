// Package lstore implements the storage engine of the key-value store: a local,
// single-node implementation of the store.IStore interface with an ordered in-memory
// index backed by the write-ahead log (package wal).
//
// Key Features:
//   - O(log n) point lookups and ordered range scans over a B-tree index
//   - Write-ahead logging: every mutation is logged before it becomes visible
//   - Crash recovery by replaying the log on startup
//   - Reader/writer locking for concurrent access from many connections
//
// Implementation Details:
//
//   - Index: keys are stored by their order-preserving integer encoding (kv.Key.Encode).
//     Each entry maps to an optional value. An entry without a value is a tombstone, it
//     records that the key existed and was deleted during the lifetime of the process.
//
//   - Put: appends a Put record, then publishes a new immutable value in the index.
//     If the append fails the index and the log are left unchanged and the error is returned.
//
//   - Delete: only keys that have an index entry (live or tombstoned) are deleted. Such a
//     delete always appends a Delete record and reports one affected row, even if the key
//     was already deleted. Keys without an entry report zero rows and are not logged.
//
//   - Replay: Put records insert entries, Delete records remove the entry entirely. After a
//     restart a deleted key and a never-set key are indistinguishable, which is fine since
//     both behave the same for Get and Scan.
//
//   - Open: an existing log file is opened read-only for the replay and reopened in
//     write+append mode afterwards. A missing file is created.
//
// Thread Safety:
//
//	Get, Scan and GetInfo take the lock in shared mode and may run concurrently.
//	Put, Delete and Close take it in exclusive mode, so mutations (including their log
//	appends) are serialized and the log order equals the order in which mutations
//	become visible. Values returned by Get and Scan are shared with the index and must
//	not be modified.
//
// Usage Example:
//
//	s, err := lstore.Open("data.kv", lstore.DefaultOptions())
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	err = s.Put(key, value)
//	value, found, err := s.Get(key)
//	pairs, err := s.Scan(low, high)
package lstore
