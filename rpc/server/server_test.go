package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/kvsys/lib/kv"
	"github.com/ValentinKolb/kvsys/lib/store"
	"github.com/ValentinKolb/kvsys/lib/store/lstore"
	"github.com/ValentinKolb/kvsys/rpc/common"
	"github.com/ValentinKolb/kvsys/rpc/serializer"
	"github.com/ValentinKolb/kvsys/rpc/transport"
	"github.com/ValentinKolb/kvsys/rpc/transport/base"
	"github.com/ValentinKolb/kvsys/rpc/transport/tcp"
	"github.com/ValentinKolb/kvsys/rpc/transport/unix"
)

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// toggleFile is an in-memory log file whose writes can be made to fail
type toggleFile struct {
	bytes.Buffer
	fail atomic.Bool
}

func (f *toggleFile) Write(p []byte) (int, error) {
	if f.fail.Load() {
		return 0, errors.New("disk full")
	}
	return f.Buffer.Write(p)
}

func (f *toggleFile) Sync() error  { return nil }
func (f *toggleFile) Close() error { return nil }

func (f *toggleFile) Truncate(size int64) error {
	f.Buffer.Truncate(int(size))
	return nil
}

func testConfig(endpoint, transportName string) common.ServerConfig {
	return common.ServerConfig{
		Endpoint:       endpoint,
		Transport:      transportName,
		Threads:        4,
		AcceptFailFast: true,
		DBFile:         "memory",
		WALSync:        "always",
		LogLevel:       "info",
	}
}

func startServer(t *testing.T, config common.ServerConfig, tr transport.IRPCServerTransport, st store.IStore) *RPCServer {
	t.Helper()
	s := NewRPCServer(config, tr, serializer.NewBinarySerializer(), st)
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Serve() }()

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if err := <-done; err != nil {
			t.Errorf("Serve failed: %v", err)
		}
	})
	return s
}

// startTCPServer starts a server on a random local port backed by an in-memory store
func startTCPServer(t *testing.T) (*RPCServer, *toggleFile) {
	t.Helper()
	file := &toggleFile{}
	s := startServer(t, testConfig("127.0.0.1:0", common.TransportTCP), tcp.NewTCPServerTransport(), lstore.NewLocalStore(file, nil))
	return s, file
}

// rawClient speaks the wire protocol directly
type rawClient struct {
	t    *testing.T
	conn transport.IChunkConn
	ser  serializer.IRPCSerializer
}

func dialRaw(t *testing.T, network, address string) *rawClient {
	t.Helper()
	conn, err := net.DialTimeout(network, address, time.Second)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	c := &rawClient{t: t, conn: base.NewChunkConn(conn, 2*time.Second), ser: serializer.NewBinarySerializer()}
	t.Cleanup(func() { _ = c.conn.Close() })
	return c
}

func (c *rawClient) send(req *common.Request) {
	c.t.Helper()
	data, err := c.ser.SerializeRequest(req)
	if err != nil {
		c.t.Fatalf("SerializeRequest failed: %v", err)
	}
	if err := c.conn.WriteChunk(data); err != nil {
		c.t.Fatalf("WriteChunk failed: %v", err)
	}
}

func (c *rawClient) readChunk() []byte {
	c.t.Helper()
	chunk, err := c.conn.ReadChunk()
	if err != nil {
		c.t.Fatalf("ReadChunk failed: %v", err)
	}
	// the chunk buffer is reused by the next read
	return append([]byte{}, chunk...)
}

func (c *rawClient) reply() *common.Reply {
	c.t.Helper()
	var rep common.Reply
	if err := c.ser.DeserializeReply(c.readChunk(), &rep); err != nil {
		c.t.Fatalf("DeserializeReply failed: %v", err)
	}
	return &rep
}

// expectClosed checks that the server closed the connection
func (c *rawClient) expectClosed() {
	c.t.Helper()
	if _, err := c.conn.ReadChunk(); !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && !isConnReset(err) {
		c.t.Fatalf("Expected the server to close the connection, got %v", err)
	}
}

func isConnReset(err error) bool {
	return err != nil && strings.Contains(err.Error(), "connection reset")
}

func key(s string) kv.Key {
	k, _ := kv.PadKey([]byte(s))
	return k
}

func value(s string) *kv.Value {
	v, _ := kv.PadValue([]byte(s))
	return v
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestRequestReply(t *testing.T) {
	s, _ := startTCPServer(t)
	c := dialRaw(t, "tcp", s.Addr().String())

	c.send(common.NewGetRequest(key("k1")))
	if rep := c.reply(); rep.ReplyType != common.RepTSingleValue || rep.Value != nil {
		t.Fatalf("Expected absent value, got %+v", rep)
	}

	c.send(common.NewPutRequest(key("k1"), value("v1")))
	if rep := c.reply(); rep.ReplyType != common.RepTSuccess {
		t.Fatalf("Expected success, got %+v", rep)
	}

	c.send(common.NewGetRequest(key("k1")))
	if rep := c.reply(); rep.ReplyType != common.RepTSingleValue || !rep.Value.Equal(value("v1")) {
		t.Fatalf("Expected v1, got %+v", rep)
	}

	for _, want := range []uint64{1, 1} {
		c.send(common.NewDeleteRequest(key("k1")))
		if rep := c.reply(); rep.ReplyType != common.RepTNumber || rep.Number != want {
			t.Fatalf("Expected %d rows, got %+v", want, rep)
		}
	}

	c.send(common.NewDeleteRequest(key("never")))
	if rep := c.reply(); rep.ReplyType != common.RepTNumber || rep.Number != 0 {
		t.Fatalf("Expected 0 rows, got %+v", rep)
	}

	// close ends the connection without a reply
	c.send(common.NewCloseRequest())
	c.expectClosed()
}

func TestScanPagination(t *testing.T) {
	s, _ := startTCPServer(t)
	c := dialRaw(t, "tcp", s.Addr().String())

	const n = 40 // 15 + 15 + 10
	for i := 0; i < n; i++ {
		c.send(common.NewPutRequest(kv.DecodeKey(uint64(i)), value(fmt.Sprintf("v%d", i))))
		if rep := c.reply(); rep.ReplyType != common.RepTSuccess {
			t.Fatalf("Put %d failed: %+v", i, rep)
		}
	}

	tests := []struct {
		name      string
		low, high uint64
		pages     []int
	}{
		{"ThreePages", 0, n, []int{15, 15, 10}},
		{"ExactPage", 0, 15, []int{15}},
		{"PartialPage", 5, 12, []int{7}},
		{"Empty", 100, 200, nil},
		{"LowEqualsHigh", 3, 3, nil},
		{"Inverted", 20, 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.send(common.NewScanRequest(kv.DecodeKey(tt.low), kv.DecodeKey(tt.high)))

			next := tt.low
			for i, size := range tt.pages {
				rep := c.reply()
				if rep.ReplyType != common.RepTKVPairs || len(rep.Pairs) != size {
					t.Fatalf("Page %d: expected %d pairs, got %s with %d", i, size, rep.ReplyType, len(rep.Pairs))
				}
				for _, p := range rep.Pairs {
					if p.Key.Encode() != next {
						t.Fatalf("Expected key %d, got %d", next, p.Key.Encode())
					}
					if !p.Value.Equal(value(fmt.Sprintf("v%d", next))) {
						t.Fatalf("Unexpected value for key %d", next)
					}
					next++
				}
			}

			if end := c.readChunk(); len(end) != 0 {
				t.Fatalf("Expected empty end-of-scan chunk, got %d bytes", len(end))
			}
		})
	}
}

func TestPutFailureKeepsConnection(t *testing.T) {
	s, file := startTCPServer(t)
	c := dialRaw(t, "tcp", s.Addr().String())

	c.send(common.NewPutRequest(key("k"), value("before")))
	if rep := c.reply(); rep.ReplyType != common.RepTSuccess {
		t.Fatalf("Expected success, got %+v", rep)
	}

	file.fail.Store(true)

	c.send(common.NewPutRequest(key("k"), value("after")))
	rep := c.reply()
	if rep.ReplyType != common.RepTError || !strings.Contains(rep.Err, "disk full") {
		t.Fatalf("Expected error reply, got %+v", rep)
	}

	c.send(common.NewDeleteRequest(key("k")))
	if rep := c.reply(); rep.ReplyType != common.RepTError {
		t.Fatalf("Expected error reply for delete, got %+v", rep)
	}

	// the connection is still usable and the index unchanged
	c.send(common.NewGetRequest(key("k")))
	if rep := c.reply(); rep.ReplyType != common.RepTSingleValue || !rep.Value.Equal(value("before")) {
		t.Fatalf("Expected old value, got %+v", rep)
	}
}

func TestMalformedRequestClosesConnection(t *testing.T) {
	s, _ := startTCPServer(t)

	tests := []struct {
		name  string
		chunk []byte
	}{
		{"UnknownTag", []byte{0x42}},
		{"WrongLength", []byte{0x01, 1, 2}},
		{"Empty", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dialRaw(t, "tcp", s.Addr().String())
			if err := c.conn.WriteChunk(tt.chunk); err != nil {
				t.Fatalf("WriteChunk failed: %v", err)
			}
			c.expectClosed()
		})
	}

	// other connections are unaffected
	c := dialRaw(t, "tcp", s.Addr().String())
	c.send(common.NewGetRequest(key("x")))
	if rep := c.reply(); rep.ReplyType != common.RepTSingleValue {
		t.Fatalf("Expected single value reply, got %+v", rep)
	}
}

func TestBrokenFramingClosesConnection(t *testing.T) {
	s, _ := startTCPServer(t)

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	// announce a chunk larger than the maximum
	if _, err := conn.Write([]byte{0xff, 0xff, 0xff, 0xff}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Fatalf("Expected the server to close the connection")
	}
}

func TestConcurrentClients(t *testing.T) {
	s, _ := startTCPServer(t)

	const clients = 8
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		go func(i int) {
			conn, err := net.Dial("tcp", s.Addr().String())
			if err != nil {
				errs <- err
				return
			}
			c := base.NewChunkConn(conn, 2*time.Second)
			defer c.Close()
			ser := serializer.NewBinarySerializer()

			for j := 0; j < 50; j++ {
				k := kv.DecodeKey(uint64(i*1000 + j))
				data, _ := ser.SerializeRequest(common.NewPutRequest(k, value("v")))
				if err := c.WriteChunk(data); err != nil {
					errs <- err
					return
				}
				chunk, err := c.ReadChunk()
				if err != nil {
					errs <- err
					return
				}
				var rep common.Reply
				if err := ser.DeserializeReply(chunk, &rep); err != nil || rep.ReplyType != common.RepTSuccess {
					errs <- fmt.Errorf("unexpected reply %+v (%v)", rep, err)
					return
				}
			}
			errs <- nil
		}(i)
	}

	for i := 0; i < clients; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Client failed: %v", err)
		}
	}

	c := dialRaw(t, "tcp", s.Addr().String())
	c.send(common.NewScanRequest(kv.DecodeKey(0), kv.DecodeKey(clients*1000)))
	total := 0
	for {
		chunk := c.readChunk()
		if len(chunk) == 0 {
			break
		}
		var rep common.Reply
		if err := serializer.NewBinarySerializer().DeserializeReply(chunk, &rep); err != nil {
			t.Fatalf("DeserializeReply failed: %v", err)
		}
		total += len(rep.Pairs)
	}
	if total != clients*50 {
		t.Errorf("Expected %d pairs, got %d", clients*50, total)
	}
}

func TestUnixSocket(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "kv.sock")
	st, err := lstore.Open(filepath.Join(t.TempDir(), "data.kv"), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	startServer(t, testConfig(socket, common.TransportUnix), unix.NewUnixServerTransport(), st)

	c := dialRaw(t, "unix", socket)
	c.send(common.NewPutRequest(key("unix"), value("socket")))
	if rep := c.reply(); rep.ReplyType != common.RepTSuccess {
		t.Fatalf("Expected success, got %+v", rep)
	}
	c.send(common.NewGetRequest(key("unix")))
	if rep := c.reply(); !rep.Value.Equal(value("socket")) {
		t.Fatalf("Expected value, got %+v", rep)
	}
}

func TestMetrics(t *testing.T) {
	s, file := startTCPServer(t)
	c := dialRaw(t, "tcp", s.Addr().String())

	c.send(common.NewPutRequest(key("a"), value("a")))
	c.reply()
	c.send(common.NewGetRequest(key("a")))
	c.reply()
	c.send(common.NewScanRequest(key("a"), key("b")))
	c.reply()
	c.readChunk()

	file.fail.Store(true)
	c.send(common.NewPutRequest(key("b"), value("b")))
	c.reply()

	// a request is recorded after its reply was written, the next round trip waits for it
	c.send(common.NewGetRequest(key("a")))
	c.reply()

	var out bytes.Buffer
	s.WriteMetrics(&out)
	metrics := out.String()

	for _, want := range []string{
		`kvsys_requests_total{op="put"} 2`,
		`kvsys_requests_total{op="get"} 2`,
		`kvsys_request_errors_total{op="put"} 1`,
		`kvsys_scan_chunks_total 1`,
		`kvsys_connections_active 1`,
		`kvsys_store_keys 1`,
		`kvsys_wal_records 1`,
	} {
		if !strings.Contains(metrics, want) {
			t.Errorf("Expected %q in metrics output", want)
		}
	}
}

func TestInvalidConfig(t *testing.T) {
	config := testConfig("127.0.0.1:0", common.TransportTCP)
	config.Threads = 0

	s := NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer(), lstore.NewLocalStore(&toggleFile{}, nil))
	if err := s.Listen(); err == nil {
		t.Errorf("Expected Listen to fail for zero threads")
	}
}
