package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"roundtable/internal/models"
)

func TestTableStateGuard(t *testing.T) {
	state := newTableState()
	if !state.acquire("science-lab") {
		t.Fatalf("first acquire should succeed")
	}
	if state.acquire("science-lab") {
		t.Fatalf("second acquire should be refused while in flight")
	}
	if !state.acquire("philosophy-corner") {
		t.Fatalf("other tables are independent")
	}
	state.release("science-lab")
	if !state.acquire("science-lab") {
		t.Fatalf("acquire after release should succeed")
	}
	state.record(nil)
	state.record(errors.New("boom"))
	stats := state.snapshot()
	if stats.InFlight != 2 || stats.Completed != 1 || stats.Failed != 1 || stats.Rejected != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestDispatcherRoundRobinsTables(t *testing.T) {
	d := newDispatcher(nil, 10, nil)
	d.enqueueJob(testJob("a", "a1"))
	d.enqueueJob(testJob("a", "a2"))
	d.enqueueJob(testJob("b", "b1"))
	d.enqueueJob(testJob("a", "a3"))

	var order []string
	for {
		job, ok := d.nextJob()
		if !ok {
			break
		}
		order = append(order, job.task.req.TableName)
	}
	want := []string{"a1", "b1", "a2", "a3"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
	if len(d.queues) != 0 || d.ready.Len() != 0 {
		t.Fatalf("queues should be empty after draining")
	}
}

func TestManagerGenerate(t *testing.T) {
	gen := &fakeGenerator{}
	manager := NewManager(gen, DispatcherConfig{MinWorkers: 1, MaxWorkers: 2, QueueSize: 4}, nil, nil)
	defer manager.Close()

	round, err := manager.Generate(context.Background(), roundRequest("science-lab"))
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if round.Topic != "topic for science-lab" {
		t.Fatalf("unexpected round %+v", round)
	}
	if manager.Busy("science-lab") {
		t.Fatalf("table should be released after generation")
	}
	if stats := manager.Stats(); stats.Completed != 1 {
		t.Fatalf("expected one completed generation, got %+v", stats)
	}
}

func TestManagerRefusesConcurrentRoundsForSameTable(t *testing.T) {
	gen := newBlockingGenerator()
	manager := NewManager(gen, DispatcherConfig{MinWorkers: 2, MaxWorkers: 2, QueueSize: 4}, nil, nil)
	defer manager.Close()

	first := make(chan error, 1)
	go func() {
		_, err := manager.Generate(context.Background(), roundRequest("Science-Lab"))
		first <- err
	}()
	gen.waitStarted(t, "science-lab")

	if _, err := manager.Generate(context.Background(), roundRequest("science-lab")); !errors.Is(err, ErrTableBusy) {
		t.Fatalf("expected ErrTableBusy, got %v", err)
	}
	if !manager.Busy("SCIENCE-LAB") {
		t.Fatalf("table should report busy")
	}

	gen.unblock()
	if err := waitErr(t, first); err != nil {
		t.Fatalf("first generation failed: %v", err)
	}
	if _, err := manager.Generate(context.Background(), roundRequest("science-lab")); err != nil {
		t.Fatalf("generation after release failed: %v", err)
	}
}

func TestManagerOtherTablesProceedWhileOneIsSlow(t *testing.T) {
	gen := newBlockingGenerator()
	gen.blockOnly = "doors-of-perception"
	manager := NewManager(gen, DispatcherConfig{MinWorkers: 1, MaxWorkers: 3, QueueSize: 4}, nil, nil)
	defer manager.Close()

	slow := make(chan error, 1)
	go func() {
		_, err := manager.Generate(context.Background(), roundRequest("doors-of-perception"))
		slow <- err
	}()
	gen.waitStarted(t, "doors-of-perception")

	fast := make(chan error, 1)
	go func() {
		_, err := manager.Generate(context.Background(), roundRequest("philosophy-corner"))
		fast <- err
	}()
	if err := waitErr(t, fast); err != nil {
		t.Fatalf("fast table failed: %v", err)
	}

	gen.unblock()
	if err := waitErr(t, slow); err != nil {
		t.Fatalf("slow table failed: %v", err)
	}
}

func TestManagerQueueFull(t *testing.T) {
	gen := newBlockingGenerator()
	manager := NewManager(gen, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1}, nil, nil)
	defer manager.Close()

	results := make(chan error, 8)
	go func() {
		_, err := manager.Generate(context.Background(), roundRequest("table-0"))
		results <- err
	}()
	gen.waitStarted(t, "table-0")

	// one worker busy, at most one job waiting on the pool and one buffered
	for i := 1; i <= 4; i++ {
		go func(i int) {
			_, err := manager.Generate(context.Background(), roundRequest(fmt.Sprintf("table-%d", i)))
			results <- err
		}(i)
	}

	if err := waitErr(t, results); !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", err)
	}

	gen.unblock()
	busy := 1
	for i := 0; i < 4; i++ {
		err := waitErr(t, results)
		switch {
		case err == nil:
		case errors.Is(err, ErrDispatcherBusy):
			busy++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if stats := manager.Stats(); stats.Rejected != uint64(busy) {
		t.Fatalf("expected %d rejected, got %+v", busy, stats)
	}
}

func TestManagerCanceledBeforeStart(t *testing.T) {
	gen := &fakeGenerator{}
	manager := NewManager(gen, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 2}, nil, nil)
	defer manager.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := manager.Generate(ctx, roundRequest("science-lab")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if gen.callCount() != 0 {
		t.Fatalf("generator should not run for a canceled request")
	}
}

func TestManagerEmptyTableBypassesQueue(t *testing.T) {
	gen := &fakeGenerator{}
	manager := NewManager(gen, DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1}, nil, nil)
	defer manager.Close()

	if _, err := manager.Generate(context.Background(), models.RoundRequest{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.callCount() != 1 {
		t.Fatalf("generator should be called once")
	}
}

func TestManagerClose(t *testing.T) {
	manager := NewManager(&fakeGenerator{}, DispatcherConfig{MinWorkers: 2, MaxWorkers: 2, QueueSize: 2}, nil, nil)
	manager.Close()
	manager.Close()

	if _, err := manager.Generate(context.Background(), roundRequest("science-lab")); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestPoolRetiresExpiredIdleWorkers(t *testing.T) {
	pool := newJobChannelPool(1, 3, time.Hour, nil)
	defer pool.stop()
	for i := 0; i < 3; i++ {
		pool.spawnWorker()
	}
	waitFor(t, func() bool {
		_, idle := pool.stats()
		return idle == 3
	})

	pool.mu.Lock()
	for _, meta := range pool.idle {
		meta.lastUsed = time.Now().Add(-2 * time.Hour)
	}
	pool.mu.Unlock()

	pool.shutdownExpired()
	waitFor(t, func() bool {
		running, _ := pool.stats()
		return running == 1
	})
}

func testJob(key, name string) Job {
	return Job{Type: Generate, task: &roundTask{key: key, req: models.RoundRequest{TableID: key, TableName: name}}}
}

func roundRequest(tableID string) models.RoundRequest {
	return models.RoundRequest{
		TableID:      tableID,
		TableName:    tableID,
		Theme:        "theme",
		Participants: []models.Participant{{Handle: "a.one", Label: "One"}},
	}
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for result")
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeGenerator) Generate(_ context.Context, req models.RoundRequest) (models.Round, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return models.Round{Topic: "topic for " + req.TableID}, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type blockingGenerator struct {
	blockOnly string
	started   chan string
	release   chan struct{}
	once      sync.Once
}

func newBlockingGenerator() *blockingGenerator {
	return &blockingGenerator{
		started: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (b *blockingGenerator) Generate(ctx context.Context, req models.RoundRequest) (models.Round, error) {
	b.started <- req.TableID
	if b.blockOnly == "" || b.blockOnly == req.TableID {
		select {
		case <-b.release:
		case <-ctx.Done():
			return models.Round{}, ctx.Err()
		}
	}
	return models.Round{Topic: req.TableID}, nil
}

func (b *blockingGenerator) waitStarted(t *testing.T, tableID string) {
	t.Helper()
	select {
	case got := <-b.started:
		if !strings.EqualFold(got, tableID) {
			t.Fatalf("expected %s to start first, got %s", tableID, got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("generation for %s did not start", tableID)
	}
}

func (b *blockingGenerator) unblock() {
	b.once.Do(func() { close(b.release) })
}
