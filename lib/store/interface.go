package store

import (
	"fmt"

	"github.com/ValentinKolb/kvsys/lib/kv"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the generic interface for interacting with the key–value store.
// Write operations return an error wrapping a *Error on failure,
// read operations return the requested data along with an error (nil on success).
type IStore interface {
	// Get returns the value for a key. The boolean return value indicates whether a value was found.
	// Deleted keys are reported as not found.
	Get(key kv.Key) (value *kv.Value, loaded bool, err error)
	// Put inserts or updates a key–value pair. The mutation is durable before it becomes visible.
	Put(key kv.Key, value *kv.Value) (err error)
	// Delete deletes a key and returns the number of affected rows (0 or 1).
	// Deleting a key that was never set affects 0 rows and is not an error.
	Delete(key kv.Key) (rowsAffected uint64, err error)
	// Scan returns all live pairs with low <= key < high in ascending key order.
	Scan(low, high kv.Key) (pairs []kv.Pair, err error)
	// GetInfo returns metadata about the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetInfo() (info Info, err error)
	// Close releases all resources held by the store.
	Close() (err error)
}

// Info holds metadata about a store
type Info struct {
	Keys       int    `json:"keys"`        // live keys
	Tombstones int    `json:"tombstones"`  // deleted keys still present in the index
	LogRecords uint64 `json:"log_records"` // records appended since the store was opened
	LogBytes   int64  `json:"log_bytes"`   // bytes appended since the store was opened
	Replayed   uint64 `json:"replayed"`    // records replayed when the store was opened
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and (optionally) the cause.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("KVStoreError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("KVStoreError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the cause of the error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new KVStoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new KVStoreError with the given code, message and cause.
func WrapError(code RetCode, msg string, err error) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  err,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the implementation.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCIOError                             // 4: The write-ahead log could not be written.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCIOError:
		return "IOError"
	default:
		return "Unknown"
	}
}
