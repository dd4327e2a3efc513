// Package base implements the chunk transport independent of the socket type.
// The tcp and unix packages extend it with protocol-specific connectors.
//
// Framing:
//
// Every chunk is sent as a 4 byte big endian length followed by the payload. Payloads
// are limited to common.MaxChunkSize bytes; a writer refuses larger payloads and a reader
// treats a larger announced length as a broken stream. Header and payload are written
// with net.Buffers, so a chunk needs a single writev call.
//
// Server:
//
// The accept loop hands every accepted connection to a fixed-size worker pool (see
// lib/pool). A connection stays on its worker until the handler returns. Active
// connections are tracked in an xsync.MapOf so that Close can close them and unblock
// their workers before the pool is drained.
//
// By default an accept error ends the accept loop. With ServerConfig.AcceptFailFast
// disabled the error is logged and accepting is retried with an exponential backoff.
//
// Client:
//
// Dial opens a single connection. With ClientConfig.TimeoutSecond set, every read and
// write on the connection must complete within the timeout.
package base
