// Package serializer implements the wire encoding of requests and replies.
//
// Every message is the payload of exactly one chunk. The first byte is the tag
// (see common.RequestType and common.ReplyType), all following fields have a fixed size:
//
//	Get    0x01 key(8)                  9 bytes
//	Put    0x02 key(8) value(256)     265 bytes
//	Del    0x03 key(8)                  9 bytes
//	Scan   0x04 low(8) high(8)         17 bytes
//	Close  0x05                         1 byte
//
//	SingleValue  0x01 flag(1) [value(256)]   2 or 258 bytes
//	Success      0x02                        1 byte
//	Error        0x03 message(utf-8)         1 + n bytes
//	Number       0x04 uint64(8, big endian)  9 bytes
//	KVPairs      0x05 (key(8) value(256))*   1 + n*264 bytes, 1 <= n <= 15
//
// A payload with an unknown tag or an unexpected length is rejected with
// ErrMalformedRequest or ErrMalformedReply. Error messages longer than a chunk are
// truncated on a UTF-8 boundary.
//
// The serializer is stateless and safe for concurrent use.
package serializer
