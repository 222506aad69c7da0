package worker

import (
	"context"

	"roundtable/internal/models"
)

type JobType int

const (
	Generate JobType = iota
	Stop
)

// Job is one unit of work handed from the dispatcher to a worker.
type Job struct {
	Type JobType
	task *roundTask
}

type roundTask struct {
	ctx      context.Context
	key      string
	req      models.RoundRequest
	resultCh chan workerReturn
}

type workerReturn struct {
	round models.Round
	err   error
}

type Worker struct {
	manager    *Manager
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(pool *jobChannelPool, manager *Manager) *Worker {
	return &Worker{
		manager:    manager,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

// Start registers the worker as idle, then serves jobs until told to stop.
func (w *Worker) Start() {
	go func() {
		for {
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
			job := <-w.jobChannel
			switch job.Type {
			case Stop:
				w.pool.retire(w.jobChannel)
				return
			case Generate:
				w.manager.handleGenerate(job.task)
			}
		}
	}()
}
