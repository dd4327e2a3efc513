package client

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ValentinKolb/kvsys/rpc/common"
	"github.com/ValentinKolb/kvsys/rpc/serializer"
	"github.com/ValentinKolb/kvsys/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

var (
	// ErrServer wraps the message of an Error reply
	ErrServer = errors.New("server error")
	// ErrProtocol is returned if the server sent a reply that does not match the request
	ErrProtocol = errors.New("protocol error")
	// ErrClosed is returned after the client was closed or its connection broke
	ErrClosed = errors.New("client is closed")
)

// rpcClientAdapter stores everything needed to exchange requests over one connection.
// The connection carries one request at a time, mu serializes the callers.
type rpcClientAdapter struct {
	config     common.ClientConfig
	serializer serializer.IRPCSerializer

	mu     sync.Mutex
	conn   transport.IChunkConn
	broken error // set once the connection is no longer usable
}

// invokeRPCRequest sends req and reads a single reply of the expected type.
// An Error reply is returned as an error wrapping ErrServer.
func (c *rpcClientAdapter) invokeRPCRequest(req *common.Request, expected common.ReplyType) (*common.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.send(req); err != nil {
		return nil, err
	}

	chunk, err := c.conn.ReadChunk()
	if err != nil {
		return nil, c.fail(fmt.Errorf("failed to read %s reply: %w", req.ReqType, err))
	}

	rep, err := c.decode(chunk)
	if err != nil {
		return nil, err
	}

	if rep.ReplyType == common.RepTError {
		return nil, fmt.Errorf("%w: %s", ErrServer, rep.Err)
	}
	if rep.ReplyType != expected {
		return nil, c.fail(fmt.Errorf("%w: unexpected %s reply to %s request, expected %s", ErrProtocol, rep.ReplyType, req.ReqType, expected))
	}
	return rep, nil
}

// send serializes and writes req, the caller must hold mu
func (c *rpcClientAdapter) send(req *common.Request) error {
	switch {
	case c.broken == ErrClosed:
		return ErrClosed
	case c.broken != nil:
		return fmt.Errorf("%w: %v", ErrClosed, c.broken)
	}

	data, err := c.serializer.SerializeRequest(req)
	if err != nil {
		return err
	}

	if err := c.conn.WriteChunk(data); err != nil {
		return c.fail(fmt.Errorf("failed to send %s request: %w", req.ReqType, err))
	}
	return nil
}

// decode deserializes a reply chunk, the caller must hold mu
func (c *rpcClientAdapter) decode(chunk []byte) (*common.Reply, error) {
	rep := &common.Reply{}
	if err := c.serializer.DeserializeReply(chunk, rep); err != nil {
		return nil, c.fail(fmt.Errorf("%w: %w", ErrProtocol, err))
	}
	return rep, nil
}

// fail marks the connection as broken. The stream may be out of sync, so no further
// requests are sent over it.
func (c *rpcClientAdapter) fail(err error) error {
	if c.broken == nil {
		c.broken = err
		Logger.Warningf("connection to %s broken: %v", c.config.Endpoint, err)
		_ = c.conn.Close()
	}
	return err
}
