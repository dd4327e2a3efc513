package pool

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/sourcegraph/conc/panics"
	concpool "github.com/sourcegraph/conc/pool"
)

var Logger = logger.GetLogger("pool")

// ErrPoolClosed is returned by Submit after Shutdown was called
var ErrPoolClosed = errors.New("pool: submit on closed pool")

const defaultQueueSize = 1024

// Job is a unit of work executed by the pool
type Job func()

// WorkerPool runs submitted jobs on a fixed number of workers
type WorkerPool struct {
	workers int
	queue   chan Job
	conc    *concpool.Pool

	mu     sync.RWMutex // guards closed and the close of queue
	closed bool

	running  atomic.Int64
	finished atomic.Uint64
	panicked atomic.Uint64
}

// NewWorkerPool starts a pool with the given number of workers.
// queueSize is the number of jobs that can wait for a worker before Submit blocks (0 = default).
// It panics if workers < 1.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers < 1 {
		panic("pool: at least one worker required")
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	p := &WorkerPool{
		workers: workers,
		queue:   make(chan Job, queueSize),
		conc:    concpool.New().WithMaxGoroutines(workers),
	}

	for i := 0; i < workers; i++ {
		id := i
		p.conc.Go(func() {
			p.work(id)
		})
	}

	Logger.Debugf("started worker pool with %d workers (queue size %d)", workers, queueSize)
	return p
}

// Submit queues a job. It blocks while the queue is full and returns ErrPoolClosed
// if the pool was shut down.
func (p *WorkerPool) Submit(job Job) error {
	if job == nil {
		return errors.New("pool: nil job")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	p.queue <- job
	return nil
}

// Shutdown stops accepting jobs, runs all queued jobs and waits for the workers to exit.
// Calling Shutdown more than once is a no-op.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.conc.Wait()
	Logger.Debugf("worker pool stopped (%d jobs finished, %d panicked)", p.finished.Load(), p.panicked.Load())
}

// Workers returns the number of workers
func (p *WorkerPool) Workers() int {
	return p.workers
}

// Running returns the number of jobs currently executing
func (p *WorkerPool) Running() int {
	return int(p.running.Load())
}

// Panicked returns the number of jobs that panicked
func (p *WorkerPool) Panicked() uint64 {
	return p.panicked.Load()
}

// Queued returns the number of jobs waiting for a worker
func (p *WorkerPool) Queued() int {
	return len(p.queue)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (p *WorkerPool) work(id int) {
	for job := range p.queue {
		p.run(id, job)
	}
}

// run executes one job. The panic is caught per job: conc's pool would re-raise it
// from Wait, ending the worker loop and crashing Shutdown.
func (p *WorkerPool) run(id int, job Job) {
	p.running.Add(1)
	var pc panics.Catcher
	pc.Try(job)
	recovered := pc.Recovered()
	p.running.Add(-1)
	p.finished.Add(1)

	if recovered != nil {
		p.panicked.Add(1)
		Logger.Errorf("worker %d: job panicked: %v\n%s", id, recovered.Value, recovered.Stack)
	}
}
