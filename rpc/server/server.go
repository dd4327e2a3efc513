package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ValentinKolb/kvsys/lib/store"
	"github.com/ValentinKolb/kvsys/rpc/common"
	"github.com/ValentinKolb/kvsys/rpc/serializer"
	"github.com/ValentinKolb/kvsys/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("rpc")

const metricsShutdownTimeout = 5 * time.Second

// RPCServer serves one store over a chunk transport
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	store      store.IStore
	adapter    IRPCServerAdapter
	metrics    *serverMetrics

	metricsServer *http.Server
	closeOnce     sync.Once
	closeErr      error
}

// NewRPCServer creates a new RPC server for the given store.
// The server owns the store and closes it in Close.
//
// Usage:
//
//	s := server.NewRPCServer(
//		config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//		st,
//	)
//
//	if err := s.ListenAndServe(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	store store.IStore,
) *RPCServer {
	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		store:      store,
		adapter:    NewIStoreServerAdapter(),
		metrics:    newServerMetrics(store),
	}
}

// Listen binds the transport (and the metrics endpoint, if configured)
func (s *RPCServer) Listen() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	s.transport.RegisterHandler(s.handleConnection)
	if err := s.transport.Listen(s.config); err != nil {
		return err
	}

	if s.config.MetricsEndpoint != "" {
		if err := s.startMetricsServer(); err != nil {
			_ = s.transport.Close()
			return err
		}
	}
	return nil
}

// Serve runs the accept loop until Close is called or accepting fails
func (s *RPCServer) Serve() error {
	return s.transport.Serve()
}

// ListenAndServe calls Listen and then Serve
func (s *RPCServer) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Addr returns the address of the listener (nil before Listen)
func (s *RPCServer) Addr() net.Addr {
	return s.transport.Addr()
}

// Close shuts the server down: the listener is closed, active connections are closed,
// the workers are drained and finally the store is closed.
func (s *RPCServer) Close() error {
	s.closeOnce.Do(func() {
		var errs []error

		if err := s.transport.Close(); err != nil {
			errs = append(errs, err)
		}

		if s.metricsServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			if err := s.metricsServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop metrics server: %w", err))
			}
			cancel()
		}

		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}

		s.closeErr = errors.Join(errs...)
		Logger.Infof("server stopped")
	})
	return s.closeErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// replyWriter implements IReplyWriter for one connection
type replyWriter struct {
	conn       transport.IChunkConn
	serializer serializer.IRPCSerializer
	wroteError bool
	pages      int
}

func (w *replyWriter) WriteReply(rep *common.Reply) error {
	data, err := w.serializer.SerializeReply(rep)
	if err != nil {
		return fmt.Errorf("failed to serialize %s reply: %w", rep.ReplyType, err)
	}
	switch rep.ReplyType {
	case common.RepTError:
		w.wroteError = true
	case common.RepTKVPairs:
		w.pages++
	}
	return w.conn.WriteChunk(data)
}

func (w *replyWriter) WriteEnd() error {
	return w.conn.WriteChunk(nil)
}

// handleConnection runs the request loop of one connection until the client sends
// a close request or an error occurs
func (s *RPCServer) handleConnection(conn transport.IChunkConn) error {
	s.metrics.connOpened()
	defer s.metrics.connClosed()

	w := &replyWriter{conn: conn, serializer: s.serializer}
	var req common.Request

	for {
		chunk, err := conn.ReadChunk()
		if err != nil {
			return fmt.Errorf("failed to read request: %w", err)
		}

		if err := s.serializer.DeserializeRequest(chunk, &req); err != nil {
			s.metrics.protoErrors.Inc()
			return err
		}

		if req.ReqType == common.ReqTClose {
			s.metrics.observe(req.ReqType, time.Now(), false)
			return nil
		}

		start := time.Now()
		w.wroteError, w.pages = false, 0

		err = s.adapter.Handle(&req, s.store, w)
		s.metrics.observe(req.ReqType, start, err != nil || w.wroteError)
		s.metrics.scanChunks.Add(w.pages)
		if err != nil {
			return err
		}
	}
}

// startMetricsServer exposes the metrics at http://<MetricsEndpoint>/metrics
func (s *RPCServer) startMetricsServer() error {
	listener, err := net.Listen("tcp", s.config.MetricsEndpoint)
	if err != nil {
		return fmt.Errorf("failed to listen on metrics endpoint: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		s.metrics.WritePrometheus(w)
	})

	s.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics server failed: %v", err)
		}
	}()

	Logger.Infof("serving metrics on http://%s/metrics", listener.Addr())
	return nil
}

// WriteMetrics writes the metrics of the server in Prometheus text format
func (s *RPCServer) WriteMetrics(w io.Writer) {
	s.metrics.WritePrometheus(w)
}
