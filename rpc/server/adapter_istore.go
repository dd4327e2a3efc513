package server

import (
	"fmt"

	"github.com/ValentinKolb/kvsys/lib/kv"
	"github.com/ValentinKolb/kvsys/lib/store"
	"github.com/ValentinKolb/kvsys/rpc/common"
)

// NewIStoreServerAdapter creates the adapter translating requests to store.IStore calls
func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(req *common.Request, s store.IStore, w IReplyWriter) error {
	if s == nil {
		return fmt.Errorf("handler: store is nil")
	}

	switch req.ReqType {
	case common.ReqTGet:
		value, ok, err := s.Get(req.Key)
		if err != nil {
			return fmt.Errorf("get %v failed: %w", req.Key, err)
		}
		if !ok {
			value = nil
		}
		return w.WriteReply(common.NewValueReply(value))

	case common.ReqTPut:
		if err := s.Put(req.Key, req.Value); err != nil {
			Logger.Warningf("put %v failed: %v", req.Key, err)
			return w.WriteReply(common.NewErrorReply(err.Error()))
		}
		return w.WriteReply(common.NewSuccessReply())

	case common.ReqTDelete:
		rows, err := s.Delete(req.Key)
		if err != nil {
			Logger.Warningf("delete %v failed: %v", req.Key, err)
			return w.WriteReply(common.NewErrorReply(err.Error()))
		}
		return w.WriteReply(common.NewNumberReply(rows))

	case common.ReqTScan:
		pairs, err := s.Scan(req.Key, req.EndKey)
		if err != nil {
			return fmt.Errorf("scan [%v, %v) failed: %w", req.Key, req.EndKey, err)
		}
		for _, page := range paginate(pairs, common.PairsPerChunk) {
			if err := w.WriteReply(common.NewPairsReply(page)); err != nil {
				return err
			}
		}
		return w.WriteEnd()

	default:
		return fmt.Errorf("handler: unsupported request type %s", req.ReqType)
	}
}

// paginate splits pairs into consecutive pages of at most size pairs
func paginate(pairs []kv.Pair, size int) [][]kv.Pair {
	pages := make([][]kv.Pair, 0, (len(pairs)+size-1)/size)
	for start := 0; start < len(pairs); start += size {
		end := min(start+size, len(pairs))
		pages = append(pages, pairs[start:end])
	}
	return pages
}
