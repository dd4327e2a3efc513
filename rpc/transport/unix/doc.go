// Package unix implements the chunk transport over Unix domain sockets for clients
// running on the same machine as the server.
//
// The endpoint is the path of the socket file. An existing file at that path is removed
// before listening, the listener removes it again when it is closed.
package unix
