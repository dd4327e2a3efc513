// Package cmd implements the command-line interface of kvsys. It provides
// a hierarchical command structure with operations for running the server
// and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures the kvsys server
//   - kv: Client commands for key-value operations (get, put, del, scan) and the perf tool
//   - util: Shared utilities for flag handling and configuration (internal use)
//
// Every flag can also be set through the environment as KVSYS_<FLAG> with dashes
// replaced by underscores (e.g. KVSYS_DB_FILE=/var/lib/kvsys/data.kv). The files
// .env and .env.local in the working directory are loaded first.
//
// See kvsys -help for a list of all commands.
package cmd
