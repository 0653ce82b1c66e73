package run

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// DefaultQueueConcurrency is how many runs execute at once unless
// configured otherwise.
const DefaultQueueConcurrency = 2

// Queue schedules runs with a cap on how many execute concurrently.
// Enqueue returns as soon as the run is registered; execution happens on
// background goroutines in FIFO order, under the queue's base context so
// runs outlive the request that created them.
type Queue struct {
	baseCtx       context.Context
	maxConcurrent int
	logger        *zap.Logger

	mu      sync.Mutex
	active  int
	pending []*Runner
	live    map[string]*Runner
	closed  bool
	wg      sync.WaitGroup
}

// NewQueue creates a queue running at most maxConcurrent runs at once under
// baseCtx. Zero or negative maxConcurrent selects the default.
func NewQueue(baseCtx context.Context, maxConcurrent int, logger *zap.Logger) *Queue {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultQueueConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		baseCtx:       baseCtx,
		maxConcurrent: maxConcurrent,
		logger:        logger,
		live:          make(map[string]*Runner),
	}
}

// Enqueue registers r and schedules it. The runner's id is usable
// immediately; the run itself starts when a slot frees up.
func (q *Queue) Enqueue(r *Runner) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("queue is closed")
	}
	q.live[r.ID()] = r
	q.pending = append(q.pending, r)
	q.dispatchLocked()
	return nil
}

// Live returns the in-process runner for id. Finished runners stay
// retrievable until process exit; the disk registry carries them across
// restarts.
func (q *Queue) Live(id string) (*Runner, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.live[id]
	return r, ok
}

// Close stops accepting new runs and waits for active ones to finish.
// Pending runs that never started are abandoned.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	for _, r := range q.pending {
		delete(q.live, r.ID())
	}
	q.pending = nil
	q.mu.Unlock()
	q.wg.Wait()
}

// dispatchLocked starts pending runners while slots remain. Caller holds
// q.mu.
func (q *Queue) dispatchLocked() {
	for q.active < q.maxConcurrent && len(q.pending) > 0 {
		r := q.pending[0]
		q.pending = q.pending[1:]
		q.active++
		q.wg.Add(1)
		go q.execute(r)
	}
}

func (q *Queue) execute(r *Runner) {
	defer q.wg.Done()
	if err := r.Start(q.baseCtx); err != nil {
		q.logger.Warn("queued run failed", zap.String("run_id", r.ID()), zap.Error(err))
	}

	q.mu.Lock()
	q.active--
	if !q.closed {
		q.dispatchLocked()
	}
	q.mu.Unlock()
}
