package worker

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"roundtable/internal/models"
	"roundtable/internal/redis"
)

var (
	// ErrDispatcherBusy means the generation queue is full.
	ErrDispatcherBusy = errors.New("generation queue full")

	// ErrTableBusy means the table already has a generation in flight.
	ErrTableBusy = errors.New("table is already generating a round")

	ErrStopped = errors.New("generation pipeline stopped")
)

// Generator produces one round; *round.Service satisfies it.
type Generator interface {
	Generate(ctx context.Context, req models.RoundRequest) (models.Round, error)
}

type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

// Manager runs generations on the worker pool with at most one in flight per
// table.
type Manager struct {
	generator  Generator
	dispatcher *Dispatcher
	state      *tableState
	lock       *tableLock
	logger     *slog.Logger
	closed     atomic.Bool
}

// NewManager starts the dispatcher. cache may be nil, which keeps the
// single-flight guard process-local.
func NewManager(gen Generator, cfg DispatcherConfig, cache *redis.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		generator: gen,
		state:     newTableState(),
		lock:      newTableLock(cache),
		logger:    logger,
	}
	m.dispatcher = NewDispatcher(cfg.MinWorkers, cfg.MaxWorkers, cfg.QueueSize, m, cfg.IdleTimeout)
	return m
}

// Generate queues a generation for req.TableID and waits for its result.
func (m *Manager) Generate(ctx context.Context, req models.RoundRequest) (models.Round, error) {
	if m.closed.Load() {
		return models.Round{}, ErrStopped
	}
	key := strings.ToLower(strings.TrimSpace(req.TableID))
	if key == "" {
		// nothing to guard; the generator rejects the request
		return m.generator.Generate(ctx, req)
	}

	if !m.state.acquire(key) {
		return models.Round{}, ErrTableBusy
	}
	defer m.state.release(key)

	if m.lock != nil {
		token, err := m.lock.acquire(ctx, key)
		switch {
		case err != nil:
			m.logger.Warn("table lock unavailable, continuing with local guard", "table", key, "error", err)
		case token == "":
			m.state.reject()
			return models.Round{}, ErrTableBusy
		default:
			defer func() {
				if err := m.lock.release(key, token); err != nil {
					m.logger.Warn("table lock release failed", "table", key, "error", err)
				}
			}()
		}
	}

	resultCh := make(chan workerReturn, 1)
	job := Job{Type: Generate, task: &roundTask{ctx: ctx, key: key, req: req, resultCh: resultCh}}
	select {
	case m.dispatcher.JobQueue <- job:
	default:
		m.state.reject()
		return models.Round{}, ErrDispatcherBusy
	}

	select {
	case ret := <-resultCh:
		return ret.round, ret.err
	case <-m.dispatcher.done:
		select {
		case ret := <-resultCh:
			return ret.round, ret.err
		default:
			return models.Round{}, ErrStopped
		}
	}
}

// Busy reports whether this process is generating for tableID.
func (m *Manager) Busy(tableID string) bool {
	return m.state.isBusy(strings.ToLower(strings.TrimSpace(tableID)))
}

// Stats reports queue and worker counters.
func (m *Manager) Stats() Stats {
	s := m.state.snapshot()
	s.Workers, s.Idle = m.dispatcher.pool.stats()
	s.Queued = m.dispatcher.queued()
	return s
}

// Close stops the dispatcher. Queued jobs fail with ErrStopped.
func (m *Manager) Close() {
	if m.closed.Swap(true) {
		return
	}
	m.dispatcher.Stop()
}

func (m *Manager) handleGenerate(task *roundTask) {
	if task == nil {
		return
	}
	ctx := task.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		task.resultCh <- workerReturn{err: err}
		return
	}

	start := time.Now()
	round, err := m.generator.Generate(ctx, task.req)
	m.state.record(err)
	debugLog("generation finished", "table", task.key, "elapsed", time.Since(start), "error", err)
	task.resultCh <- workerReturn{round: round, err: err}
}
