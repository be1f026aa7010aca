package worker

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type keyQueue struct {
	jobs []Job
	elem *list.Element // position in ready
}

// Dispatcher runs jobs on a bounded worker pool, rotating between keys so one
// busy key cannot starve the others.
type Dispatcher struct {
	pool     *workerPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher

	limit   int64
	pending atomic.Int64

	mu     sync.Mutex
	queues map[string]*keyQueue
	ready  *list.List // round-robin order of keys with queued jobs

	closeOnce sync.Once
	quit      chan struct{}
}

// NewDispatcher starts a dispatcher that accepts up to maxWorkers+queueSize
// outstanding jobs.
func NewDispatcher(minWorkers, maxWorkers, queueSize int, idleTimeout time.Duration) *Dispatcher {
	pool := newWorkerPool(minWorkers, maxWorkers, idleTimeout)
	if queueSize < 0 {
		queueSize = 0
	}
	limit := pool.max + queueSize

	d := &Dispatcher{
		pool:     pool,
		JobQueue: make(chan Job, limit),
		limit:    int64(limit),
		queues:   make(map[string]*keyQueue),
		ready:    list.New(),
		quit:     make(chan struct{}),
	}

	for i := 0; i < minWorkers; i++ {
		d.pool.warm()
	}

	go d.run()
	return d
}

// Submit enqueues fn under key and returns a channel that receives its result.
func (d *Dispatcher) Submit(ctx context.Context, key string, fn func(context.Context) error) (<-chan error, error) {
	select {
	case <-d.quit:
		return nil, ErrDispatcherClosed
	default:
	}
	if d.pending.Add(1) > d.limit {
		d.pending.Add(-1)
		return nil, ErrDispatcherBusy
	}

	done := make(chan error, 1)
	result := make(chan error, 1)
	go func() {
		err := <-done
		d.pending.Add(-1)
		result <- err
	}()

	d.JobQueue <- Job{Type: Run, Key: key, ctx: ctx, fn: fn, done: done}
	return result, nil
}

// Do runs fn on the pool and waits for it or for ctx.
func (d *Dispatcher) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	result, err := d.Submit(ctx, key, fn)
	if err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports accepted jobs that have not finished.
func (d *Dispatcher) Pending() int {
	return int(d.pending.Load())
}

// Close stops dispatching. Queued jobs fail with ErrDispatcherClosed.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.quit)
		d.pool.close()
	})
}

func (d *Dispatcher) run() {
	defer d.drainClosed()
	for {
		d.drain()
		if d.dispatchOne() {
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		case <-d.quit:
			return
		}
	}
}

// drain moves every job waiting on JobQueue into the per-key queues.
func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		default:
			return
		}
	}
}

func (d *Dispatcher) drainClosed() {
	d.drain()
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, q := range d.queues {
		for _, job := range q.jobs {
			job.done <- ErrDispatcherClosed
		}
		delete(d.queues, key)
	}
	d.ready.Init()
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.Key]
	if q == nil {
		q = &keyQueue{}
		d.queues[job.Key] = q
	}
	q.jobs = append(q.jobs, job)
	if q.elem == nil {
		q.elem = d.ready.PushBack(job.Key)
	}
}

// dispatchOne hands the next job of the front key to a worker.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	key := elem.Value.(string)
	q := d.queues[key]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		d.ready.Remove(elem)
		delete(d.queues, key)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	if workerChan == nil {
		job.done <- ErrDispatcherClosed
		return false
	}
	debugLog("[dispatcher] assign job for key %s to worker-%d", key, d.pool.workerID(workerChan))
	workerChan <- job
	return true
}
