package serializer

import (
	"errors"

	"github.com/ValentinKolb/kvsys/rpc/common"
)

var (
	// ErrMalformedRequest is returned if a chunk is not a valid request
	ErrMalformedRequest = errors.New("serializer: malformed request")
	// ErrMalformedReply is returned if a chunk is not a valid reply
	ErrMalformedReply = errors.New("serializer: malformed reply")
)

// IRPCSerializer is the interface for the wire encoding of requests and replies.
// Every request and every reply is encoded into exactly one chunk.
type IRPCSerializer interface {
	// SerializeRequest encodes a request into a chunk payload
	SerializeRequest(req *common.Request) ([]byte, error)
	// DeserializeRequest decodes a chunk payload into req.
	// It returns an error wrapping ErrMalformedRequest for unknown tags or wrong lengths.
	DeserializeRequest(b []byte, req *common.Request) error
	// SerializeReply encodes a reply into a chunk payload
	SerializeReply(rep *common.Reply) ([]byte, error)
	// DeserializeReply decodes a chunk payload into rep.
	// It returns an error wrapping ErrMalformedReply for unknown tags or wrong lengths.
	DeserializeReply(b []byte, rep *common.Reply) error
}
