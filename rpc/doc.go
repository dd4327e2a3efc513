// Package rpc contains the network layer of kvsys: the chunked binary protocol
// spoken between clients and the server.
//
// The package is organized into several subpackages:
//
//   - common: Wire constants, the Request and Reply types, configuration structures and logging.
//
//   - transport: Chunk framing over stream sockets with TCP and unix-domain socket
//     implementations. The server side accepts connections and hands them to a worker pool.
//
//   - serializer: Binary encoding of requests and replies into chunk payloads.
//
//   - server: Per-connection request loop dispatching to the shared store, metrics
//     and graceful shutdown.
//
//   - client: A store.IStore implementation that forwards every operation to a server.
package rpc
