// Package kv defines the fixed-width key and value types used by every layer of the
// key-value store, together with the order-preserving integer encoding of keys.
//
// Keys are exactly KeySize (8) bytes and values exactly ValueSize (256) bytes. Both are
// opaque payloads, they do not need to be text. The serialized form of a Key or Value is
// its raw byte representation, no length prefix is needed since both sides know the sizes.
//
// Encoding:
//
//	A Key is encoded into a uint64 by interpreting its 8 bytes as a big-endian integer.
//	For any two keys a and b:
//
//	  a.Compare(b) < 0  <=>  a.Encode() < b.Encode()
//
//	DecodeKey is the exact inverse of Encode over the full 64-bit space.
//
// All functions in this package are pure, they perform no I/O and hold no state.
package kv
