package serializer

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/ValentinKolb/kvsys/lib/kv"
	"github.com/ValentinKolb/kvsys/rpc/common"
)

// NewBinarySerializer creates a new serializer using the fixed-width binary wire format
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer. The first byte of every message is the
// tag, all other fields have a fixed size.
type binarySerializerImpl struct{}

// Exact sizes of the messages
const (
	getRequestSize    = 1 + kv.KeySize
	putRequestSize    = 1 + kv.KeySize + kv.ValueSize
	deleteRequestSize = 1 + kv.KeySize
	scanRequestSize   = 1 + 2*kv.KeySize
	closeRequestSize  = 1

	absentValueReplySize  = 2
	presentValueReplySize = 2 + kv.ValueSize
	successReplySize      = 1
	numberReplySize       = 1 + 8

	// maxErrorLength is the longest error message that fits into a reply chunk
	maxErrorLength = common.MaxChunkSize - 1
)

const (
	valueAbsent  byte = 0
	valuePresent byte = 1
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) SerializeRequest(req *common.Request) ([]byte, error) {
	switch req.ReqType {
	case common.ReqTGet, common.ReqTDelete:
		buf := make([]byte, getRequestSize)
		buf[0] = byte(req.ReqType)
		copy(buf[1:], req.Key[:])
		return buf, nil

	case common.ReqTPut:
		if req.Value == nil {
			return nil, fmt.Errorf("serializer: put request without value")
		}
		buf := make([]byte, putRequestSize)
		buf[0] = byte(req.ReqType)
		copy(buf[1:], req.Key[:])
		copy(buf[1+kv.KeySize:], req.Value[:])
		return buf, nil

	case common.ReqTScan:
		buf := make([]byte, scanRequestSize)
		buf[0] = byte(req.ReqType)
		copy(buf[1:], req.Key[:])
		copy(buf[1+kv.KeySize:], req.EndKey[:])
		return buf, nil

	case common.ReqTClose:
		return []byte{byte(req.ReqType)}, nil

	default:
		return nil, fmt.Errorf("serializer: cannot serialize request of type %s", req.ReqType)
	}
}

func (b binarySerializerImpl) DeserializeRequest(data []byte, req *common.Request) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty chunk", ErrMalformedRequest)
	}

	*req = common.Request{ReqType: common.RequestType(data[0])}

	var expected int
	switch req.ReqType {
	case common.ReqTGet:
		expected = getRequestSize
	case common.ReqTPut:
		expected = putRequestSize
	case common.ReqTDelete:
		expected = deleteRequestSize
	case common.ReqTScan:
		expected = scanRequestSize
	case common.ReqTClose:
		expected = closeRequestSize
	default:
		return fmt.Errorf("%w: unknown tag %#x", ErrMalformedRequest, data[0])
	}

	if len(data) != expected {
		return fmt.Errorf("%w: %s request must be %d bytes, got %d", ErrMalformedRequest, req.ReqType, expected, len(data))
	}

	switch req.ReqType {
	case common.ReqTGet, common.ReqTDelete:
		copy(req.Key[:], data[1:])
	case common.ReqTPut:
		copy(req.Key[:], data[1:1+kv.KeySize])
		req.Value = new(kv.Value)
		copy(req.Value[:], data[1+kv.KeySize:])
	case common.ReqTScan:
		copy(req.Key[:], data[1:1+kv.KeySize])
		copy(req.EndKey[:], data[1+kv.KeySize:])
	}
	return nil
}

func (b binarySerializerImpl) SerializeReply(rep *common.Reply) ([]byte, error) {
	switch rep.ReplyType {
	case common.RepTSingleValue:
		if rep.Value == nil {
			return []byte{byte(rep.ReplyType), valueAbsent}, nil
		}
		buf := make([]byte, presentValueReplySize)
		buf[0] = byte(rep.ReplyType)
		buf[1] = valuePresent
		copy(buf[2:], rep.Value[:])
		return buf, nil

	case common.RepTSuccess:
		return []byte{byte(rep.ReplyType)}, nil

	case common.RepTError:
		msg := truncateMessage(rep.Err, maxErrorLength)
		buf := make([]byte, 1+len(msg))
		buf[0] = byte(rep.ReplyType)
		copy(buf[1:], msg)
		return buf, nil

	case common.RepTNumber:
		buf := make([]byte, numberReplySize)
		buf[0] = byte(rep.ReplyType)
		binary.BigEndian.PutUint64(buf[1:], rep.Number)
		return buf, nil

	case common.RepTKVPairs:
		n := len(rep.Pairs)
		if n == 0 || n > common.PairsPerChunk {
			return nil, fmt.Errorf("serializer: kv-pairs reply must hold 1 to %d pairs, got %d", common.PairsPerChunk, n)
		}
		buf := make([]byte, 1+n*common.PairSerializedSize)
		buf[0] = byte(rep.ReplyType)
		pos := 1
		for _, p := range rep.Pairs {
			if p.Value == nil {
				return nil, fmt.Errorf("serializer: pair %v without value", p.Key)
			}
			pos += copy(buf[pos:], p.Key[:])
			pos += copy(buf[pos:], p.Value[:])
		}
		return buf, nil

	default:
		return nil, fmt.Errorf("serializer: cannot serialize reply of type %s", rep.ReplyType)
	}
}

func (b binarySerializerImpl) DeserializeReply(data []byte, rep *common.Reply) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty chunk", ErrMalformedReply)
	}

	*rep = common.Reply{ReplyType: common.ReplyType(data[0])}

	switch rep.ReplyType {
	case common.RepTSingleValue:
		switch {
		case len(data) == absentValueReplySize && data[1] == valueAbsent:
			return nil
		case len(data) == presentValueReplySize && data[1] == valuePresent:
			rep.Value = new(kv.Value)
			copy(rep.Value[:], data[2:])
			return nil
		default:
			return fmt.Errorf("%w: invalid single-value reply (%d bytes)", ErrMalformedReply, len(data))
		}

	case common.RepTSuccess:
		if len(data) != successReplySize {
			return fmt.Errorf("%w: success reply must be %d bytes, got %d", ErrMalformedReply, successReplySize, len(data))
		}
		return nil

	case common.RepTError:
		rep.Err = string(data[1:])
		return nil

	case common.RepTNumber:
		if len(data) != numberReplySize {
			return fmt.Errorf("%w: number reply must be %d bytes, got %d", ErrMalformedReply, numberReplySize, len(data))
		}
		rep.Number = binary.BigEndian.Uint64(data[1:])
		return nil

	case common.RepTKVPairs:
		body := len(data) - 1
		n := body / common.PairSerializedSize
		if body%common.PairSerializedSize != 0 || n == 0 || n > common.PairsPerChunk {
			return fmt.Errorf("%w: invalid kv-pairs reply (%d bytes)", ErrMalformedReply, len(data))
		}

		// one allocation for all values of the page
		values := make([]kv.Value, n)
		rep.Pairs = make([]kv.Pair, n)
		pos := 1
		for i := 0; i < n; i++ {
			copy(rep.Pairs[i].Key[:], data[pos:pos+kv.KeySize])
			pos += kv.KeySize
			copy(values[i][:], data[pos:pos+kv.ValueSize])
			pos += kv.ValueSize
			rep.Pairs[i].Value = &values[i]
		}
		return nil

	default:
		return fmt.Errorf("%w: unknown tag %#x", ErrMalformedReply, data[0])
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// truncateMessage cuts msg to at most max bytes without splitting a UTF-8 sequence
func truncateMessage(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
