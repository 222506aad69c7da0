package worker

import (
	"container/list"
	"sync"
	"time"
)

type tableQueue struct {
	jobs     []Job
	enqueued bool
}

type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // entry point for outer jobs
	Manager  *Manager

	mu        sync.Mutex
	queues    map[string]*tableQueue // job queue for each table
	ready     *list.List             // LRU queue of table keys
	positions map[string]*list.Element

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, manager *Manager, idleTimeout time.Duration) *Dispatcher {
	d := newDispatcher(newJobChannelPool(minWorkers, maxWorkers, idleTimeout, manager), queueSize, manager)
	for i := 0; i < d.pool.min; i++ {
		d.pool.spawnWorker()
	}
	go d.run()
	return d
}

func newDispatcher(pool *jobChannelPool, queueSize int, manager *Manager) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Dispatcher{
		queues:    make(map[string]*tableQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		pool:      pool,
		JobQueue:  make(chan Job, queueSize),
		Manager:   manager,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		// dispatch one job of the table in front of the LRU queue
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				d.drain()
				return
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		case <-d.quit:
			d.drain()
			return
		default:
		}
	}
}

// Stop ends dispatching and fails every job that has not reached a worker.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
		d.pool.stop()
		<-d.done
	})
}

func (d *Dispatcher) enqueueJob(job Job) {
	key := job.tableKey()

	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[key]
	if q == nil {
		q = &tableQueue{}
		d.queues[key] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[key] = d.ready.PushBack(key)
}

// nextJob pops one job from the table in front of the LRU queue and moves
// that table to the back.
func (d *Dispatcher) nextJob() (Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	elem := d.ready.Front()
	if elem == nil {
		return Job{}, false
	}
	key := elem.Value.(string)
	q := d.queues[key]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, key)
		delete(d.queues, key)
	} else {
		d.ready.MoveToBack(elem)
	}
	return job, true
}

func (d *Dispatcher) dispatchOne() bool {
	job, ok := d.nextJob()
	if !ok {
		return false
	}
	workerChan := d.pool.acquire()
	if workerChan == nil {
		job.fail(ErrStopped)
		return true
	}
	debugLog("dispatcher assigned job", "table", job.tableKey())
	workerChan <- job
	return true
}

func (d *Dispatcher) drain() {
	for {
		job, ok := d.nextJob()
		if !ok {
			break
		}
		job.fail(ErrStopped)
	}
	for {
		select {
		case job := <-d.JobQueue:
			job.fail(ErrStopped)
		default:
			return
		}
	}
}

func (d *Dispatcher) queued() int {
	d.mu.Lock()
	n := 0
	for _, q := range d.queues {
		n += len(q.jobs)
	}
	d.mu.Unlock()
	return n + len(d.JobQueue)
}

func (job Job) tableKey() string {
	if job.task == nil {
		return ""
	}
	return job.task.key
}

func (job Job) fail(err error) {
	if job.task != nil && job.task.resultCh != nil {
		job.task.resultCh <- workerReturn{err: err}
	}
}
