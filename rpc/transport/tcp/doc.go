// Package tcp implements the chunk transport over TCP sockets. It provides the
// TCP specific connectors for the base package.
//
// Key Components:
//
//   - clientConnector: dials the server and applies TCP_NODELAY
//
//   - serverConnector: listens on a host:port endpoint and applies TCP_NODELAY and
//     keep-alive to accepted connections
package tcp
