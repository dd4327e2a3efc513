package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ValentinKolb/kvsys/rpc/common"
	"github.com/ValentinKolb/kvsys/rpc/transport"
)

// frameHeaderSize is the size of the length prefix of a chunk
const frameHeaderSize = 4

// writeFrame writes a frame to w with the format:
// - 4 bytes: payload length (uint32, big endian)
// - N bytes: payload
func writeFrame(w io.Writer, header []byte, payload []byte) error {
	if len(payload) > common.MaxChunkSize {
		return fmt.Errorf("%w: %d > %d bytes", transport.ErrChunkTooLarge, len(payload), common.MaxChunkSize)
	}

	binary.BigEndian.PutUint32(header[:frameHeaderSize], uint32(len(payload)))
	if len(payload) == 0 {
		_, err := w.Write(header[:frameHeaderSize])
		return err
	}

	b := net.Buffers{header[:frameHeaderSize], payload}
	_, err := b.WriteTo(w)
	return err
}

// readFrame reads one frame from r into buf, which must hold at least common.MaxChunkSize bytes.
// It returns io.EOF only if r ended before the first byte of the frame.
func readFrame(r io.Reader, header []byte, buf []byte) ([]byte, error) {
	if _, err := io.ReadFull(r, header[:frameHeaderSize]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:frameHeaderSize])
	if length > common.MaxChunkSize {
		return nil, fmt.Errorf("%w: peer announced %d bytes", transport.ErrChunkTooLarge, length)
	}

	if _, err := io.ReadFull(r, buf[:length]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf[:length], nil
}

// --------------------------------------------------------------------------
// Chunk Connection
// --------------------------------------------------------------------------

// chunkConn implements transport.IChunkConn on top of a net.Conn
type chunkConn struct {
	conn    net.Conn
	timeout time.Duration // deadline for every read and write, 0 = none

	readHeader  [frameHeaderSize]byte
	writeHeader [frameHeaderSize]byte
	buf         []byte
}

// NewChunkConn wraps conn. If timeout is > 0 every read and write must complete within it.
func NewChunkConn(conn net.Conn, timeout time.Duration) transport.IChunkConn {
	return &chunkConn{
		conn:    conn,
		timeout: timeout,
		buf:     make([]byte, common.MaxChunkSize),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IChunkConn)
// --------------------------------------------------------------------------

func (c *chunkConn) ReadChunk() ([]byte, error) {
	if c.timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}
	return readFrame(c.conn, c.readHeader[:], c.buf)
}

func (c *chunkConn) WriteChunk(payload []byte) error {
	if c.timeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	return writeFrame(c.conn, c.writeHeader[:], payload)
}

func (c *chunkConn) Close() error {
	return c.conn.Close()
}

func (c *chunkConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return "local"
}
