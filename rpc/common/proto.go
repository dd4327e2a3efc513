package common

import (
	"fmt"

	"github.com/ValentinKolb/kvsys/lib/kv"
)

// --------------------------------------------------------------------------
// Wire Constants
// --------------------------------------------------------------------------

const (
	// MaxChunkSize is the maximum payload size of a single chunk in bytes
	MaxChunkSize = 4096

	// PairSerializedSize is the size of one serialized (Key, Value) pair
	PairSerializedSize = kv.PairSize

	// PairsPerChunk is the maximum number of pairs in one KVPairs reply.
	// One byte of the chunk is reserved for the reply tag.
	PairsPerChunk = (MaxChunkSize - 1) / PairSerializedSize
)

// --------------------------------------------------------------------------
// Request Structure
// --------------------------------------------------------------------------

// Request is a single decoded client request.
// Which fields are used depends on the type of the request.
type Request struct {
	ReqType RequestType
	Key     kv.Key    // Used for: Get, Put, Delete, Scan (lower bound, inclusive)
	EndKey  kv.Key    // Used for: Scan (upper bound, exclusive)
	Value   *kv.Value // Used for: Put
}

// NewGetRequest creates a new Get request
func NewGetRequest(key kv.Key) *Request {
	return &Request{
		ReqType: ReqTGet,
		Key:     key,
	}
}

// NewPutRequest creates a new Put request
func NewPutRequest(key kv.Key, value *kv.Value) *Request {
	return &Request{
		ReqType: ReqTPut,
		Key:     key,
		Value:   value,
	}
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(key kv.Key) *Request {
	return &Request{
		ReqType: ReqTDelete,
		Key:     key,
	}
}

// NewScanRequest creates a new Scan request for the range [low, high)
func NewScanRequest(low, high kv.Key) *Request {
	return &Request{
		ReqType: ReqTScan,
		Key:     low,
		EndKey:  high,
	}
}

// NewCloseRequest creates a new Close request
func NewCloseRequest() *Request {
	return &Request{
		ReqType: ReqTClose,
	}
}

// --------------------------------------------------------------------------
// Reply Structure
// --------------------------------------------------------------------------

// Reply is a single reply chunk sent by the server.
// Which fields are used depends on the type of the reply.
type Reply struct {
	ReplyType ReplyType
	Value     *kv.Value // Used for: SingleValue (nil = absent)
	Number    uint64    // Used for: Number
	Pairs     []kv.Pair // Used for: KVPairs
	Err       string    // Used for: Error
}

// NewValueReply creates a SingleValue reply, value may be nil
func NewValueReply(value *kv.Value) *Reply {
	return &Reply{
		ReplyType: RepTSingleValue,
		Value:     value,
	}
}

// NewSuccessReply creates a Success reply
func NewSuccessReply() *Reply {
	return &Reply{
		ReplyType: RepTSuccess,
	}
}

// NewErrorReply creates an Error reply
func NewErrorReply(msg string) *Reply {
	return &Reply{
		ReplyType: RepTError,
		Err:       msg,
	}
}

// NewNumberReply creates a Number reply
func NewNumberReply(n uint64) *Reply {
	return &Reply{
		ReplyType: RepTNumber,
		Number:    n,
	}
}

// NewPairsReply creates a KVPairs reply holding one page of a scan result
func NewPairsReply(pairs []kv.Pair) *Reply {
	return &Reply{
		ReplyType: RepTKVPairs,
		Pairs:     pairs,
	}
}

// --------------------------------------------------------------------------
// Type Constants (the values are the wire tags)
// --------------------------------------------------------------------------

// RequestType is the tag of a request
type RequestType uint8

const (
	ReqTUnknown RequestType = iota
	ReqTGet                 // Get the value of a key
	ReqTPut                 // Insert or update a key
	ReqTDelete              // Delete a key
	ReqTScan                // Scan a key range
	ReqTClose               // End the connection
)

func (t RequestType) String() string {
	switch t {
	case ReqTGet:
		return "get"
	case ReqTPut:
		return "put"
	case ReqTDelete:
		return "delete"
	case ReqTScan:
		return "scan"
	case ReqTClose:
		return "close"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ReplyType is the tag of a reply
type ReplyType uint8

const (
	RepTUnknown     ReplyType = iota
	RepTSingleValue           // Optional value (Get)
	RepTSuccess               // Mutation applied (Put)
	RepTError                 // Mutation failed, the connection stays open
	RepTNumber                // Row count (Delete)
	RepTKVPairs               // One page of a scan result
)

func (t ReplyType) String() string {
	switch t {
	case RepTSingleValue:
		return "single-value"
	case RepTSuccess:
		return "success"
	case RepTError:
		return "error"
	case RepTNumber:
		return "number"
	case RepTKVPairs:
		return "kv-pairs"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}
