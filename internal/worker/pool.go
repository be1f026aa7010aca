package worker

import (
	"sync"
	"time"
)

const defaultWorkerIdle = 30 * time.Second

// slot tracks one live worker.
type slot struct {
	id       int
	jobs     chan Job
	idleFrom time.Time
	idle     bool // sitting in the free list
	retiring bool // a Stop job is on its way
}

// workerPool is an elastic set of workers between min and max. Idle workers
// above min are stopped once they have been idle for expiry.
type workerPool struct {
	mu     sync.Mutex
	freed  *sync.Cond
	free   []*slot
	slots  map[chan Job]*slot
	min    int
	max    int
	nextID int
	expiry time.Duration
	closed bool
	quit   chan struct{}
}

func newWorkerPool(minWorkers, maxWorkers int, idle time.Duration) *workerPool {
	if idle <= 0 {
		idle = defaultWorkerIdle
	}
	maxWorkers = max(maxWorkers, minWorkers, 1)
	p := &workerPool{
		slots:  make(map[chan Job]*slot),
		min:    minWorkers,
		max:    maxWorkers,
		expiry: idle,
		quit:   make(chan struct{}),
	}
	p.freed = sync.NewCond(&p.mu)
	go p.reapLoop()
	return p
}

// startLocked registers and starts a new worker.
func (p *workerPool) startLocked() *slot {
	p.nextID++
	w := NewWorker(p.nextID, p)
	s := &slot{id: p.nextID, jobs: w.jobChannel}
	p.slots[s.jobs] = s
	w.Start()
	return s
}

// warm starts one worker and parks it in the free list.
func (p *workerPool) warm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || len(p.slots) >= p.max {
		return
	}
	s := p.startLocked()
	s.idle = true
	s.idleFrom = time.Now()
	p.free = append(p.free, s)
}

// acquire returns a free worker, starting one if under max and waiting
// otherwise. It returns nil once the pool is closed.
func (p *workerPool) acquire() chan Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.closed {
		for len(p.free) > 0 {
			s := p.free[0]
			p.free = p.free[1:]
			if s.retiring {
				continue
			}
			s.idle = false
			return s.jobs
		}
		if len(p.slots) < p.max {
			return p.startLocked().jobs
		}
		p.freed.Wait()
	}
	return nil
}

// Release returns a worker to the free list. It reports false when the pool
// is closed and the worker should exit.
func (p *workerPool) Release(jobs chan Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	s, ok := p.slots[jobs]
	if ok && !s.retiring && !s.idle {
		s.idle = true
		s.idleFrom = time.Now()
		p.free = append(p.free, s)
		p.freed.Signal()
	}
	return true
}

// retire forgets a worker that has exited.
func (p *workerPool) retire(jobs chan Job) {
	p.mu.Lock()
	if s, ok := p.slots[jobs]; ok {
		s.retiring = true
		delete(p.slots, jobs)
	}
	p.mu.Unlock()
	p.freed.Broadcast()
}

func (p *workerPool) workerID(jobs chan Job) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.slots[jobs]; ok {
		return s.id
	}
	return 0
}

func (p *workerPool) size() (running, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots), len(p.free)
}

func (p *workerPool) reapLoop() {
	ticker := time.NewTicker(p.expiry)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			p.reap(now)
		case <-p.quit:
			return
		}
	}
}

// reap stops workers idle since before now-expiry while keeping min alive.
func (p *workerPool) reap(now time.Time) {
	p.mu.Lock()
	alive := len(p.slots)
	var stale []*slot
	kept := p.free[:0]
	for _, s := range p.free {
		if s.retiring {
			continue
		}
		if alive > p.min && now.Sub(s.idleFrom) >= p.expiry {
			s.retiring = true
			s.idle = false
			stale = append(stale, s)
			alive--
			continue
		}
		kept = append(kept, s)
	}
	p.free = kept
	p.mu.Unlock()

	for _, s := range stale {
		debugLog("[pool] retiring idle worker-%d", s.id)
		s.jobs <- Job{Type: Stop}
	}
}

// close stops idle workers; busy ones exit when they next Release.
func (p *workerPool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.free
	p.free = nil
	for _, s := range idle {
		s.retiring = true
	}
	p.mu.Unlock()
	close(p.quit)
	p.freed.Broadcast()

	for _, s := range idle {
		s.jobs <- Job{Type: Stop}
	}
}
