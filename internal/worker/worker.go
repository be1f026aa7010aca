package worker

// Worker runs jobs handed to it on jobChannel until it receives Stop or the
// pool closes.
type Worker struct {
	id         int
	pool       *workerPool
	jobChannel chan Job
}

func NewWorker(id int, pool *workerPool) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		defer w.pool.retire(w.jobChannel)
		for job := range w.jobChannel {
			if job.Type == Stop {
				debugLog("[worker-%d] stopping", w.id)
				return
			}
			job.execute()
			if !w.pool.Release(w.jobChannel) {
				return
			}
		}
	}()
}
