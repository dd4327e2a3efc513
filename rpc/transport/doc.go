// Package transport defines the chunk transport of the key-value store: a raw
// bidirectional byte stream turned into a sequence of discrete, bounded messages.
//
// Key Components:
//
//   - IChunkConn: a persistent connection exchanging chunks. A zero length chunk is a
//     valid message, used by higher layers as the end-of-scan sentinel.
//
//   - IRPCServerTransport: accepts connections and runs the registered ConnHandleFunc
//     for each of them on a fixed-size worker pool.
//
//   - IRPCClientTransport: opens chunk connections to a server.
//
// The implementations live in the base package, the tcp and unix packages provide the
// socket specific parts.
package transport
