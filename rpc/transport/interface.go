package transport

import (
	"errors"
	"net"

	"github.com/ValentinKolb/kvsys/rpc/common"
)

// ErrChunkTooLarge is returned when a chunk exceeds common.MaxChunkSize
var ErrChunkTooLarge = errors.New("transport: chunk exceeds maximum size")

// --------------------------------------------------------------------------
// Chunk Connection
// --------------------------------------------------------------------------

// IChunkConn is a persistent connection exchanging length framed chunks.
// A connection must not be used by more than one goroutine at a time.
type IChunkConn interface {
	// ReadChunk blocks until one complete chunk is available and returns its payload.
	// The returned slice is only valid until the next call to ReadChunk.
	// It returns io.EOF if the peer closed the connection between two chunks.
	ReadChunk() ([]byte, error)
	// WriteChunk frames and writes one chunk. An empty payload is a valid chunk.
	WriteChunk(payload []byte) error
	// Close closes the underlying connection
	Close() error
	// RemoteAddr returns the address of the peer
	RemoteAddr() string
}

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ConnHandleFunc handles one accepted connection until it is done.
// It is called on a worker of the server pool, the transport closes the connection afterwards.
type ConnHandleFunc func(conn IChunkConn) error

// IRPCServerTransport accepts connections and hands them to the registered handler
type IRPCServerTransport interface {
	// RegisterHandler registers the handler called for every accepted connection
	RegisterHandler(handler ConnHandleFunc)
	// Listen binds the listener described by config and starts the worker pool
	Listen(config common.ServerConfig) error
	// Serve runs the accept loop. It returns nil after Close and an error if accepting failed.
	Serve() error
	// Addr returns the address of the listener (nil before Listen)
	Addr() net.Addr
	// Close stops accepting, closes all active connections and waits for the workers
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport opens connections to a server
type IRPCClientTransport interface {
	// Dial connects to the endpoint of config
	Dial(config common.ClientConfig) (IChunkConn, error)
}
