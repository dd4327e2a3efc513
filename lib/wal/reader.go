package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/ValentinKolb/kvsys/lib/kv"
)

// Reader reads records sequentially from a log
type Reader struct {
	r      *bufio.Reader
	offset int64
}

// NewReader creates a Reader starting at the current position of r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Offset returns the number of bytes consumed by complete records
func (r *Reader) Offset() int64 {
	return r.offset
}

// Next returns the next record. It returns io.EOF if the log ends exactly at a record
// boundary and an error wrapping ErrCorruptRecord if the log ends inside a record or the
// record fails validation.
func (r *Reader) Next() (Record, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r.r, header[:]); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, r.corrupt("truncated header", err)
	}

	op := Op(header[4])
	size, err := bodySize(op)
	if err != nil {
		return Record{}, fmt.Errorf("%w (offset %d)", err, r.offset)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return Record{}, r.corrupt("truncated body", err)
	}

	crc := crc32.NewIEEE()
	crc.Write(header[4:])
	crc.Write(body)
	if crc.Sum32() != binary.BigEndian.Uint32(header[:4]) {
		return Record{}, r.corrupt("checksum mismatch", nil)
	}

	rec := Record{Op: op}
	copy(rec.Key[:], body[:kv.KeySize])
	if op == OpPut {
		rec.Value, _ = kv.ValueFromSlice(body[kv.KeySize:])
	}

	r.offset += int64(headerSize + size)
	return rec, nil
}

func (r *Reader) corrupt(reason string, cause error) error {
	if cause != nil && !errors.Is(cause, io.ErrUnexpectedEOF) {
		return fmt.Errorf("wal: read failed at offset %d: %w", r.offset, cause)
	}
	return fmt.Errorf("%w: %s at offset %d", ErrCorruptRecord, reason, r.offset)
}

// Replay reads all records from r and passes them to fn in log order.
// It returns the number of applied records and the size of the log in bytes.
func Replay(r io.Reader, fn func(rec Record) error) (uint64, int64, error) {
	reader := NewReader(r)
	var count uint64

	for {
		rec, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, reader.Offset(), err
		}

		if err := fn(rec); err != nil {
			return count, reader.Offset(), fmt.Errorf("wal: replay callback failed: %w", err)
		}
		count++
	}

	Logger.Debugf("replayed %d records (%d bytes)", count, reader.Offset())
	return count, reader.Offset(), nil
}
