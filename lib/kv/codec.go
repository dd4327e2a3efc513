package kv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	KeySize   = 8
	ValueSize = 256

	// PairSize is the serialized size of one (Key, Value) pair
	PairSize = KeySize + ValueSize
)

var (
	ErrInvalidKeySize   = errors.New("kv: invalid key size")
	ErrInvalidValueSize = errors.New("kv: invalid value size")
)

// --------------------------------------------------------------------------
// Key
// --------------------------------------------------------------------------

// Key is the fixed-width key of the store
type Key [KeySize]byte

// KeyFromSlice copies b into a Key. It fails if len(b) != KeySize.
func KeyFromSlice(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeySize, KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// PadKey builds a Key from at most KeySize bytes, filling the remainder with zero bytes.
// Zero padding keeps the lexicographic order of the unpadded inputs.
func PadKey(b []byte) (Key, error) {
	var k Key
	if len(b) > KeySize {
		return k, fmt.Errorf("%w: at most %d bytes allowed, got %d", ErrInvalidKeySize, KeySize, len(b))
	}
	copy(k[:], b)
	return k, nil
}

// Encode returns the internal (order-preserving) representation of the key
func (k Key) Encode() uint64 {
	return binary.BigEndian.Uint64(k[:])
}

// DecodeKey is the inverse of Key.Encode
func DecodeKey(encoded uint64) Key {
	var k Key
	binary.BigEndian.PutUint64(k[:], encoded)
	return k
}

// Compare compares two keys byte-wise, returning -1, 0 or +1
func (k Key) Compare(other Key) int {
	return bytes.Compare(k[:], other[:])
}

// Bytes returns the serialized form of the key
func (k Key) Bytes() []byte {
	return k[:]
}

func (k Key) String() string {
	return fmt.Sprintf("KEY [%x]", k[:])
}

// --------------------------------------------------------------------------
// Value
// --------------------------------------------------------------------------

// Value is the fixed-width value of the store.
// Values held by the store are shared by pointer and must be treated as immutable.
type Value [ValueSize]byte

// ValueFromSlice copies b into a new Value. It fails if len(b) != ValueSize.
func ValueFromSlice(b []byte) (*Value, error) {
	if len(b) != ValueSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidValueSize, ValueSize, len(b))
	}
	v := new(Value)
	copy(v[:], b)
	return v, nil
}

// PadValue builds a Value from at most ValueSize bytes, filling the remainder with zero bytes
func PadValue(b []byte) (*Value, error) {
	if len(b) > ValueSize {
		return nil, fmt.Errorf("%w: at most %d bytes allowed, got %d", ErrInvalidValueSize, ValueSize, len(b))
	}
	v := new(Value)
	copy(v[:], b)
	return v, nil
}

// Bytes returns the serialized form of the value
func (v *Value) Bytes() []byte {
	return v[:]
}

// Equal reports whether both values hold the same bytes
func (v *Value) Equal(other *Value) bool {
	if v == nil || other == nil {
		return v == other
	}
	return *v == *other
}

func (v *Value) String() string {
	if v == nil {
		return "VALUE <nil>"
	}
	return fmt.Sprintf("VALUE [%x..]", v[:8])
}

// TrimZeros returns the value bytes without trailing zero padding
func (v *Value) TrimZeros() []byte {
	return bytes.TrimRight(v[:], "\x00")
}

// --------------------------------------------------------------------------
// Pair
// --------------------------------------------------------------------------

// Pair is a single (Key, Value) result of a scan
type Pair struct {
	Key   Key
	Value *Value
}
