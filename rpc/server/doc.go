// Package server implements the RPC server of the key-value store.
//
// The server runs one request loop per connection on a worker of the transport:
// read one chunk, decode the request, execute it against the shared store and write
// the reply (or replies). The loop ends when the client sends a Close request (clean
// exit) or when any layer reports an error (the connection is torn down).
//
// Error handling:
//
//   - A put or delete that fails to reach the log is answered with an Error reply,
//     the connection keeps serving requests.
//   - Malformed requests, broken framing and failing reads of the store terminate the
//     connection. Other connections are unaffected.
//   - Accept errors are handled by the transport, see ServerConfig.AcceptFailFast.
//
// Scan results are split into KVPairs replies of at most common.PairsPerChunk pairs,
// followed by one empty chunk. A scan without results only sends the empty chunk.
//
// Key Components:
//
//   - IRPCServerAdapter: translates a request into store.IStore calls and writes the
//     replies through an IReplyWriter.
//
//   - RPCServer: owns the transport, the store and the metrics set. Close shuts down in
//     the order listener, active connections, workers, store.
//
// Metrics are kept in a per-server VictoriaMetrics set and are served in Prometheus
// text format on ServerConfig.MetricsEndpoint (if set).
//
// Usage Example:
//
//	st, err := lstore.Open(config.DBFile, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer(), st)
//	defer s.Close()
//
//	if err := s.ListenAndServe(); err != nil {
//		log.Fatal(err)
//	}
package server
