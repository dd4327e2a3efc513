// Package store provides the interface of the key-value store together with its
// unified error handling. It is the contract between the storage engine and everything
// that serves or consumes it (the RPC server, the RPC client, the CLI and the tests).
//
// The package focuses on:
//   - A unified interface (IStore) for point lookups, point mutations and range scans
//   - A structured error type carrying a return code and the underlying cause
//
// Key Components:
//
//   - IStore Interface: Get, Put, Delete and Scan over fixed-width keys and values
//     (see package kv), plus GetInfo and Close. Absent keys, empty scans and deletes of
//     never-set keys are normal results, not errors.
//
//   - Error System: Error wraps a RetCode and a message and unwraps to its cause, so
//     callers can use errors.Is / errors.As on both the store error and the I/O error
//     that produced it.
//
// Implementations:
//
//   - Local Store (lstore): the storage engine. An ordered in-memory index backed by
//     the write-ahead log, guarded by a reader/writer lock.
//     Available in the "github.com/ValentinKolb/kvsys/lib/store/lstore" package.
//
//   - RPC Store (rpc/client): forwards every operation to a remote server over the
//     chunk protocol.
//
// The conformance suite in the "github.com/ValentinKolb/kvsys/lib/store/testing" package
// runs against every implementation.
package store
