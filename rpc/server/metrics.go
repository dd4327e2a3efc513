package server

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kvsys/lib/store"
	"github.com/ValentinKolb/kvsys/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

var metricOps = []common.RequestType{common.ReqTGet, common.ReqTPut, common.ReqTDelete, common.ReqTScan, common.ReqTClose}

// opMetrics holds the metrics of one request type
type opMetrics struct {
	requests *metrics.Counter
	errors   *metrics.Counter
	duration *metrics.Histogram
}

// serverMetrics holds the metrics of one server in its own set
type serverMetrics struct {
	set *metrics.Set
	ops map[common.RequestType]*opMetrics

	scanChunks  *metrics.Counter
	connTotal   *metrics.Counter
	connActive  atomic.Int64
	protoErrors *metrics.Counter
}

func newServerMetrics(s store.IStore) *serverMetrics {
	m := &serverMetrics{
		set: metrics.NewSet(),
		ops: make(map[common.RequestType]*opMetrics, len(metricOps)),
	}

	for _, op := range metricOps {
		m.ops[op] = &opMetrics{
			requests: m.set.NewCounter(fmt.Sprintf(`kvsys_requests_total{op=%q}`, op)),
			errors:   m.set.NewCounter(fmt.Sprintf(`kvsys_request_errors_total{op=%q}`, op)),
			duration: m.set.NewHistogram(fmt.Sprintf(`kvsys_request_duration_seconds{op=%q}`, op)),
		}
	}

	m.scanChunks = m.set.NewCounter("kvsys_scan_chunks_total")
	m.connTotal = m.set.NewCounter("kvsys_connections_total")
	m.protoErrors = m.set.NewCounter("kvsys_protocol_errors_total")
	m.set.NewGauge("kvsys_connections_active", func() float64 {
		return float64(m.connActive.Load())
	})

	// store gauges, read on every scrape
	storeInfo := func(f func(info store.Info) float64) func() float64 {
		return func() float64 {
			info, err := s.GetInfo()
			if err != nil {
				return 0
			}
			return f(info)
		}
	}
	m.set.NewGauge("kvsys_store_keys", storeInfo(func(info store.Info) float64 { return float64(info.Keys) }))
	m.set.NewGauge("kvsys_store_tombstones", storeInfo(func(info store.Info) float64 { return float64(info.Tombstones) }))
	m.set.NewGauge("kvsys_wal_records", storeInfo(func(info store.Info) float64 { return float64(info.LogRecords) }))

	return m
}

func (m *serverMetrics) connOpened() {
	m.connTotal.Inc()
	m.connActive.Add(1)
}

func (m *serverMetrics) connClosed() {
	m.connActive.Add(-1)
}

// observe records one handled request
func (m *serverMetrics) observe(op common.RequestType, start time.Time, failed bool) {
	om, ok := m.ops[op]
	if !ok {
		return
	}
	om.requests.Inc()
	om.duration.UpdateDuration(start)
	if failed {
		om.errors.Inc()
	}
}

// WritePrometheus writes the server and process metrics in Prometheus text format
func (m *serverMetrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
	metrics.WriteProcessMetrics(w)
}
