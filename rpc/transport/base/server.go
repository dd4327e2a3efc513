package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kvsys/lib/pool"
	"github.com/ValentinKolb/kvsys/rpc/common"
	"github.com/ValentinKolb/kvsys/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality
type serverTransport struct {
	connector IServerConnector
	handler   transport.ConnHandleFunc
	config    common.ServerConfig

	mu       sync.Mutex // guards listener and workers during Listen and Close
	listener net.Listener
	workers  *pool.WorkerPool

	conns      *xsync.MapOf[uint64, net.Conn] // active connections, closed on shutdown
	nextConnID atomic.Uint64
	closing    atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with the specified connector
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		conns:     xsync.NewMapOf[uint64, net.Conn](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ConnHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	if config.Threads <= 0 {
		return fmt.Errorf("threads must be greater than zero, got %d", config.Threads)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.listener != nil {
		return fmt.Errorf("%s transport is already listening", t.connector.GetName())
	}

	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	t.config = config
	t.listener = listener
	t.workers = pool.NewWorkerPool(config.Threads, 0)

	Logger.Infof("Listening on %s (%s) with %d workers", listener.Addr(), t.connector.GetName(), config.Threads)
	return nil
}

func (t *serverTransport) Serve() error {
	t.mu.Lock()
	listener, workers := t.listener, t.workers
	t.mu.Unlock()

	if listener == nil {
		return fmt.Errorf("serve called before listen")
	}

	var backoff time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.closing.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}

			if t.config.AcceptFailFast {
				Logger.Errorf("Accept error, no further connections are accepted: %v", err)
				return fmt.Errorf("accept failed: %w", err)
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else if backoff *= 2; backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			Logger.Warningf("Accept error, retrying in %s: %v", backoff, err)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}

		id := t.nextConnID.Add(1)
		t.conns.Store(id, conn)

		if err := workers.Submit(func() { t.handleConnection(id, conn) }); err != nil {
			t.conns.Delete(id)
			_ = conn.Close()
			if errors.Is(err, pool.ErrPoolClosed) {
				return nil
			}
			return fmt.Errorf("failed to schedule connection: %w", err)
		}
	}
}

func (t *serverTransport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *serverTransport) Close() error {
	if !t.closing.CompareAndSwap(false, true) {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.listener == nil {
		return nil
	}

	err := t.listener.Close()

	// unblock all workers waiting on their connections
	closed := 0
	t.conns.Range(func(id uint64, conn net.Conn) bool {
		_ = conn.Close()
		closed++
		return true
	})

	t.workers.Shutdown()
	Logger.Infof("%s transport stopped (%d active connections closed)", t.connector.GetName(), closed)

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection runs the handler for one connection on a worker
func (t *serverTransport) handleConnection(id uint64, conn net.Conn) {
	defer func() {
		t.conns.Delete(id)
		_ = conn.Close()
	}()

	// queued connections are dropped once the server is closing
	if t.closing.Load() {
		return
	}

	chunkConn := NewChunkConn(conn, 0)
	Logger.Debugf("Connection %d from %s opened", id, chunkConn.RemoteAddr())

	err := t.handler(chunkConn)
	switch {
	case err == nil:
		Logger.Debugf("Connection %d from %s closed", id, chunkConn.RemoteAddr())
	case t.closing.Load():
		Logger.Debugf("Connection %d closed by shutdown: %v", id, err)
	case errors.Is(err, io.EOF):
		Logger.Infof("Connection %d closed by client without close request", id)
	default:
		Logger.Warningf("Connection %d from %s terminated: %v", id, chunkConn.RemoteAddr(), err)
	}
}
