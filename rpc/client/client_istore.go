package client

import (
	"fmt"

	"github.com/ValentinKolb/kvsys/lib/kv"
	"github.com/ValentinKolb/kvsys/lib/store"
	"github.com/ValentinKolb/kvsys/rpc/common"
	"github.com/ValentinKolb/kvsys/rpc/serializer"
	"github.com/ValentinKolb/kvsys/rpc/transport"
)

// NewRPCStore connects to the server described by config and returns a store.IStore
// forwarding all operations to it.
func NewRPCStore(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (store.IStore, error) {
	conn, err := transport.Dial(config)
	if err != nil {
		return nil, err
	}

	return &rpcStore{
		rpcClientAdapter{
			config:     config,
			serializer: serializer,
			conn:       conn,
		},
	}, nil
}

type rpcStore struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see the store package in interface.go)
// --------------------------------------------------------------------------

func (i *rpcStore) Get(key kv.Key) (*kv.Value, bool, error) {
	rep, err := i.invokeRPCRequest(common.NewGetRequest(key), common.RepTSingleValue)
	if err != nil {
		return nil, false, err
	}
	return rep.Value, rep.Value != nil, nil
}

func (i *rpcStore) Put(key kv.Key, value *kv.Value) error {
	if value == nil {
		return store.NewError(store.RetCInvalidOperation, "put without value")
	}
	_, err := i.invokeRPCRequest(common.NewPutRequest(key, value), common.RepTSuccess)
	return err
}

func (i *rpcStore) Delete(key kv.Key) (uint64, error) {
	rep, err := i.invokeRPCRequest(common.NewDeleteRequest(key), common.RepTNumber)
	if err != nil {
		return 0, err
	}
	return rep.Number, nil
}

// Scan reads all pages of the scan until the end-of-scan chunk
func (i *rpcStore) Scan(low, high kv.Key) ([]kv.Pair, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	req := common.NewScanRequest(low, high)
	if err := i.send(req); err != nil {
		return nil, err
	}

	pairs := make([]kv.Pair, 0)
	for {
		chunk, err := i.conn.ReadChunk()
		if err != nil {
			return nil, i.fail(fmt.Errorf("failed to read scan reply: %w", err))
		}

		// end of scan
		if len(chunk) == 0 {
			return pairs, nil
		}

		rep, err := i.decode(chunk)
		if err != nil {
			return nil, err
		}
		if rep.ReplyType != common.RepTKVPairs {
			return nil, i.fail(fmt.Errorf("%w: unexpected %s reply to scan request", ErrProtocol, rep.ReplyType))
		}
		pairs = append(pairs, rep.Pairs...)
	}
}

// GetInfo is not supported over rpc
func (i *rpcStore) GetInfo() (store.Info, error) {
	return store.Info{}, store.NewError(store.RetCUnsupportedOperation, "GetInfo is not supported by the rpc client")
}

// Close sends a close request and closes the connection
func (i *rpcStore) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.broken != nil {
		return nil
	}

	sendErr := i.send(common.NewCloseRequest())
	if i.broken == nil {
		i.broken = ErrClosed
		if err := i.conn.Close(); err != nil && sendErr == nil {
			return err
		}
	}
	return sendErr
}
