package base

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ValentinKolb/kvsys/rpc/common"
	"github.com/ValentinKolb/kvsys/rpc/transport"
)

func TestFrameRoundTrip(t *testing.T) {
	var stream bytes.Buffer
	header := make([]byte, frameHeaderSize)

	payloads := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xaa}, common.MaxChunkSize),
		{0x01},
	}
	for _, p := range payloads {
		if err := writeFrame(&stream, header, p); err != nil {
			t.Fatalf("writeFrame failed: %v", err)
		}
	}

	buf := make([]byte, common.MaxChunkSize)
	for i, want := range payloads {
		got, err := readFrame(&stream, header, buf)
		if err != nil {
			t.Fatalf("readFrame %d failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("Frame %d: expected %d bytes, got %d", i, len(want), len(got))
		}
	}

	// clean end of stream between frames
	if _, err := readFrame(&stream, header, buf); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestFrameFormat(t *testing.T) {
	var stream bytes.Buffer
	if err := writeFrame(&stream, make([]byte, frameHeaderSize), []byte{1, 2, 3}); err != nil {
		t.Fatalf("writeFrame failed: %v", err)
	}
	want := []byte{0, 0, 0, 3, 1, 2, 3}
	if !bytes.Equal(stream.Bytes(), want) {
		t.Errorf("Expected %x, got %x", want, stream.Bytes())
	}
}

func TestWriteFrameTooLarge(t *testing.T) {
	var stream bytes.Buffer
	err := writeFrame(&stream, make([]byte, frameHeaderSize), make([]byte, common.MaxChunkSize+1))
	if !errors.Is(err, transport.ErrChunkTooLarge) {
		t.Fatalf("Expected ErrChunkTooLarge, got %v", err)
	}
	if stream.Len() != 0 {
		t.Errorf("Expected nothing to be written, got %d bytes", stream.Len())
	}
}

func TestReadFrameErrors(t *testing.T) {
	tooLarge := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint32(tooLarge, common.MaxChunkSize+1)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"TruncatedHeader", []byte{0, 0}, io.ErrUnexpectedEOF},
		{"TruncatedPayload", []byte{0, 0, 0, 5, 1, 2}, io.ErrUnexpectedEOF},
		{"MissingPayload", []byte{0, 0, 0, 5}, io.ErrUnexpectedEOF},
		{"TooLarge", tooLarge, transport.ErrChunkTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, common.MaxChunkSize)
			_, err := readFrame(bytes.NewReader(tt.data), make([]byte, frameHeaderSize), buf)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestChunkConnPipe(t *testing.T) {
	a, b := net.Pipe()
	client := NewChunkConn(a, time.Second)
	server := NewChunkConn(b, time.Second)
	defer client.Close()
	defer server.Close()

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 3; i++ {
			chunk, err := server.ReadChunk()
			if err != nil {
				done <- err
				return
			}
			// echo
			if err := server.WriteChunk(chunk); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for _, msg := range [][]byte{[]byte("ping"), {}, bytes.Repeat([]byte("x"), 1000)} {
		if err := client.WriteChunk(msg); err != nil {
			t.Fatalf("WriteChunk failed: %v", err)
		}
		got, err := client.ReadChunk()
		if err != nil {
			t.Fatalf("ReadChunk failed: %v", err)
		}
		if !bytes.Equal(got, msg) {
			t.Errorf("Expected echo of %d bytes, got %d", len(msg), len(got))
		}
	}

	if err := <-done; err != nil {
		t.Fatalf("Server side failed: %v", err)
	}
}

func TestChunkConnTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	conn := NewChunkConn(a, 20*time.Millisecond)
	defer conn.Close()

	_, err := conn.ReadChunk()
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Errorf("Expected timeout error, got %v", err)
	}
}
