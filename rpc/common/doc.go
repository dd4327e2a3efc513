// Package common provides the data structures shared by the server, the client and the
// command line tools of the key-value store.
//
// Key Components:
//
//   - Request / Reply: decoded form of the wire messages with factory functions for every
//     message type. RequestType and ReplyType values are the one byte wire tags.
//
//   - Wire constants: MaxChunkSize (4096 bytes), PairSerializedSize (264 bytes) and the
//     derived PairsPerChunk (15) used to paginate scan results.
//
//   - ServerConfig / ClientConfig: configuration of the server and client components,
//     including validation and a printable representation.
//
//   - Logger: custom formatter for dragonboats logger package, installed by InitLoggers.
package common
