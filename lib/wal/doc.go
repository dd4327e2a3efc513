// Package wal implements the append-only write-ahead log that is the only durable state
// of the key-value store. The in-memory index is a cache that is rebuilt from this log on
// startup.
//
// Record format (all integers big endian):
//
//	+-----------+--------+-----------+---------------------------+
//	| crc32 (4) | op (1) | key (8)   | value (256, only for Put) |
//	+-----------+--------+-----------+---------------------------+
//
// The CRC (IEEE) covers op, key and value. Records are appended strictly in operation
// order and never rewritten, the log grows without bound.
//
// Durability:
//
//   - SyncAlways: every Append is followed by an fsync before it returns. A crash after a
//     successful Append leaves the record retrievable on the next replay.
//   - SyncNone: the record is handed to the operating system but not synced. A crash of the
//     machine (not only of the process) may lose the most recent records.
//
// Failed appends: a record whose write or fsync fails is cut off again by truncating the
// file to its previous size, so the log never holds a record the caller was told failed and
// never holds a torn record in front of later ones. If the truncation fails as well the
// Writer rejects every further Append with ErrBroken.
//
// Replay reads records sequentially until EOF. EOF exactly at a record boundary terminates
// the replay cleanly, a truncated or corrupt record is reported as ErrCorruptRecord.
//
// File handling: the Writer only appends (and truncates after a failed append), the Reader
// only reads. Callers open the
// log file read-only for replay and reopen it in write+append mode afterwards (see lstore.Open).
package wal
