// Package client implements a client for the key-value store server. NewRPCStore
// returns a store.IStore that forwards every operation over a single connection.
//
// Requests are sent one at a time, concurrent callers wait for each other. Scan
// collects all KVPairs pages until the empty end-of-scan chunk.
//
// Errors:
//
//   - An Error reply (e.g. the server could not log a put) is returned wrapping
//     ErrServer, the connection stays usable.
//   - A reply that cannot be decoded or does not match the request is returned wrapping
//     ErrProtocol. The connection is closed, since the stream may be out of sync.
//   - After Close or a broken connection every call fails with ErrClosed.
//
// GetInfo is not part of the wire protocol and returns store.RetCUnsupportedOperation.
//
// Usage Example:
//
//	config := common.ClientConfig{
//		Endpoint:      "127.0.0.1:1972",
//		Transport:     common.TransportTCP,
//		TimeoutSecond: 5,
//	}
//
//	s, err := client.NewRPCStore(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//		panic(err)
//	}
//	defer s.Close()
//
//	key, _ := kv.PadKey([]byte("hello"))
//	value, _ := kv.PadValue([]byte("world"))
//	_ = s.Put(key, value)
package client
