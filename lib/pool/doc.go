// Package pool provides a fixed-size worker pool.
//
// Jobs are plain functions without arguments. They are queued and executed by one of
// N long running workers, each job runs entirely on the worker that picked it up.
// Shutdown stops accepting new jobs, drains the queue and waits for all workers.
//
// The workers are managed by a github.com/sourcegraph/conc pool. Every job runs under
// a conc panics.Catcher: a panicking job is logged with its stack and counted, the worker
// keeps running.
//
// Example:
//
//	p := pool.NewWorkerPool(4, 0)
//	_ = p.Submit(func() { handle(conn) })
//	p.Shutdown()
package pool
