package server

import (
	"github.com/ValentinKolb/kvsys/lib/store"
	"github.com/ValentinKolb/kvsys/rpc/common"
)

// IReplyWriter writes replies to the connection of the current request
type IReplyWriter interface {
	// WriteReply serializes rep and writes it as one chunk
	WriteReply(rep *common.Reply) error
	// WriteEnd writes the empty end-of-scan chunk
	WriteEnd() error
}

// IRPCServerAdapter is the interface for all RPC server adapters.
// It executes one request against the store and writes the reply (or replies) to w.
type IRPCServerAdapter interface {
	// Handle handles a single request.
	// A returned error is fatal for the connection. Failures the client can recover from
	// (e.g. a put that could not be logged) are written as an Error reply instead.
	Handle(req *common.Request, store store.IStore, w IReplyWriter) error
}
