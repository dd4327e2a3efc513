package store

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestErrorUnwrap(t *testing.T) {
	err := WrapError(RetCIOError, "put failed", io.ErrShortWrite)

	if !errors.Is(err, io.ErrShortWrite) {
		t.Errorf("Expected error to unwrap to io.ErrShortWrite")
	}

	var storeErr *Error
	if !errors.As(error(err), &storeErr) || storeErr.Code != RetCIOError {
		t.Errorf("Expected *Error with RetCIOError, got %v", err)
	}

	if !strings.Contains(err.Error(), "IOError") || !strings.Contains(err.Error(), "short write") {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}

func TestErrorWithoutCause(t *testing.T) {
	err := NewError(RetCUnsupportedOperation, "nope")
	if err.Unwrap() != nil {
		t.Errorf("Expected no cause")
	}
	if err.Error() != "KVStoreError (code UnsupportedOperation): nope" {
		t.Errorf("Unexpected message: %s", err.Error())
	}
}
