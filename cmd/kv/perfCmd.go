package kv

import (
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/kvsys/cmd/util"
	"github.com/ValentinKolb/kvsys/lib/kv"
	"github.com/ValentinKolb/kvsys/lib/store"
	"github.com/ValentinKolb/kvsys/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for kvsys servers",
		Long:    "",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix  = "~"
	perfNumThreads = 10
	perfKeySpread  = 100
	perfSkip       = make([]string, 0)

	// percentiles reported for every benchmark
	perfPercentiles = []float64{0.5, 0.9, 0.99}
)

// perfResult is the outcome of one benchmark
type perfResult struct {
	bench     testing.BenchmarkResult
	latencies gometrics.Timer
}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of connections used in parallel for the benchmark"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests (at most 65536)"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfKeySpread = viper.GetInt("keys")
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	if perfNumThreads < 1 {
		return fmt.Errorf("threads must be greater than zero, got %d", perfNumThreads)
	}
	if perfKeySpread < 1 || perfKeySpread > math.MaxUint16+1 {
		return fmt.Errorf("keys must be between 1 and %d, got %d", math.MaxUint16+1, perfKeySpread)
	}
	return nil
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for kvsys servers")

	// Print configuration
	config := util.GetClientConfig()
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(config.String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	// one connection per thread, a single connection serves one request at a time
	conns, err := newConnPool(config, perfNumThreads)
	if err != nil {
		return err
	}
	defer conns.close()

	fmt.Println("starting tests...")

	registry := gometrics.NewRegistry()
	defer registry.UnregisterAll()

	results := make(map[string]perfResult)
	value, _ := kv.PadValue([]byte("test"))

	benchmarks := []struct {
		name    string
		prepare bool // store all keys before the benchmark
		op      func(s store.IStore, key kv.Key, i int) error
	}{
		{"put", false, func(s store.IStore, key kv.Key, _ int) error {
			return s.Put(key, value)
		}},
		{"get", true, func(s store.IStore, key kv.Key, _ int) error {
			_, _, err := s.Get(key)
			return err
		}},
		{"get-missing", false, func(s store.IStore, key kv.Key, _ int) error {
			_, _, err := s.Get(key)
			return err
		}},
		{"delete", true, func(s store.IStore, key kv.Key, _ int) error {
			_, err := s.Delete(key)
			return err
		}},
		{"scan", true, func(s store.IStore, key kv.Key, _ int) error {
			_, err := s.Scan(key, lastKey("scan"))
			return err
		}},
		{"mixed", true, func(s store.IStore, key kv.Key, i int) error {
			var err error
			switch i % 4 {
			case 0:
				err = s.Put(key, value)
			case 1:
				_, _, err = s.Get(key)
			case 2:
				_, err = s.Delete(key)
			case 3:
				_, err = s.Scan(key, key)
			}
			return err
		}},
	}

	for _, bm := range benchmarks {
		timer := gometrics.GetOrRegisterTimer(bm.name, registry)

		result := testing.Benchmark(func(b *testing.B) {
			if shouldSkip(bm.name) {
				return
			}

			getKey, iter := getKeys(bm.name)

			if bm.prepare {
				iter(func(k kv.Key) {
					conns.with(func(s store.IStore) {
						if err := s.Put(k, value); err != nil {
							log.Printf("(%s) - error putting key: %v\n", bm.name, err)
						}
					})
				})
			}

			// cleanup
			b.Cleanup(func() {
				iter(func(k kv.Key) {
					conns.with(func(s store.IStore) {
						if _, err := s.Delete(k); err != nil {
							log.Printf("(%s) - error deleting key: %v\n", bm.name, err)
						}
					})
				})
			})

			b.SetParallelism(perfNumThreads)

			b.ResetTimer()

			b.RunParallel(func(pb *testing.PB) {
				counter := 0
				for pb.Next() {
					conns.with(func(s store.IStore) {
						start := time.Now()
						err := bm.op(s, getKey(counter), counter)
						timer.UpdateSince(start)
						if err != nil {
							log.Printf("(%s) - error: %v\n", bm.name, err)
						}
					})
					counter++
				}
			})
		})

		results[bm.name] = perfResult{bench: result, latencies: timer}
		printResult(bm.name, results[bm.name])
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, config); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// connPool hands out one connection per concurrent caller
type connPool struct {
	conns chan store.IStore
}

func newConnPool(config *common.ClientConfig, size int) (*connPool, error) {
	p := &connPool{conns: make(chan store.IStore, size)}
	for i := 0; i < size; i++ {
		s, err := connect(config)
		if err != nil {
			p.close()
			return nil, err
		}
		p.conns <- s
	}
	return p, nil
}

func (p *connPool) with(fn func(s store.IStore)) {
	s := <-p.conns
	defer func() { p.conns <- s }()
	fn(s)
}

func (p *connPool) close() {
	for {
		select {
		case s := <-p.conns:
			if err := s.Close(); err != nil {
				log.Printf("error closing connection: %v\n", err)
			}
		default:
			return
		}
	}
}

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// benchKey builds the key i of a benchmark: the first byte of the benchmark name,
// a marker byte and the big-endian index. Keys of different benchmarks never overlap
// as long as their names start with different letters or have a different length.
func benchKey(name string, i int) kv.Key {
	var k kv.Key
	k[0] = perfKeyPrefix[0]
	k[1] = name[0]
	k[2] = byte(len(name))
	k[6] = byte(i >> 8)
	k[7] = byte(i)
	return k
}

// lastKey returns the largest key used by a benchmark
func lastKey(name string) kv.Key {
	return benchKey(name, perfKeySpread-1)
}

// creates the test keys of a benchmark and functions to work with them
func getKeys(name string) (func(int) kv.Key, func(func(kv.Key))) {
	keys := make([]kv.Key, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = benchKey(name, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) kv.Key {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(kv.Key)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	if result.bench.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	ps := result.latencies.Percentiles(perfPercentiles)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p90=%s p99=%s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec,
		time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"LatencyP50Ns", "LatencyP90Ns", "LatencyP99Ns", "LatencyMaxNs",
		"Endpoint", "Transport", "TimeoutSec",
		"Threads", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.bench.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.bench.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		ps := result.latencies.Percentiles(perfPercentiles)

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			strconv.FormatInt(result.latencies.Max(), 10),
			config.Endpoint,
			config.Transport,
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
