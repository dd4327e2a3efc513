package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/ValentinKolb/kvsys/lib/kv"
)

var ErrCorruptRecord = errors.New("wal: corrupt record")

// ErrBroken is returned by Append after a failed record could not be removed from the log
var ErrBroken = errors.New("wal: log is broken")

// Op is the type of a logged mutation
type Op uint8

const (
	OpPut    Op = 1
	OpDelete Op = 2
)

func (o Op) String() string {
	switch o {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

const (
	headerSize     = 4 + 1 // crc + op
	putBodySize    = kv.KeySize + kv.ValueSize
	deleteBodySize = kv.KeySize
)

// Record is a single logged mutation. Value is nil for OpDelete.
type Record struct {
	Op    Op
	Key   kv.Key
	Value *kv.Value
}

// NewPutRecord creates a record for Put(key, value)
func NewPutRecord(key kv.Key, value *kv.Value) Record {
	return Record{Op: OpPut, Key: key, Value: value}
}

// NewDeleteRecord creates a record for Delete(key)
func NewDeleteRecord(key kv.Key) Record {
	return Record{Op: OpDelete, Key: key}
}

// bodySize returns the number of bytes following the header for the given op
func bodySize(op Op) (int, error) {
	switch op {
	case OpPut:
		return putBodySize, nil
	case OpDelete:
		return deleteBodySize, nil
	default:
		return 0, fmt.Errorf("%w: unknown op %d", ErrCorruptRecord, op)
	}
}

// encode serializes the record including its checksum
func (r Record) encode() ([]byte, error) {
	size, err := bodySize(r.Op)
	if err != nil {
		return nil, err
	}
	if r.Op == OpPut && r.Value == nil {
		return nil, fmt.Errorf("wal: put record for %v without value", r.Key)
	}

	buf := make([]byte, headerSize+size)
	buf[4] = byte(r.Op)
	copy(buf[headerSize:], r.Key[:])
	if r.Op == OpPut {
		copy(buf[headerSize+kv.KeySize:], r.Value[:])
	}
	binary.BigEndian.PutUint32(buf[:4], crc32.ChecksumIEEE(buf[4:]))

	return buf, nil
}
