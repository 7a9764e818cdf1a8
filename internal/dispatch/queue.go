// Package dispatch serializes message processing per user while allowing
// cross-user parallelism.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/calbot/internal/types"
)

const laneBuffer = 100

// Processor handles one dequeued message.
type Processor func(ctx context.Context, msg *types.InboundMessage) error

// Queue manages per-user lanes with a global concurrency semaphore. Each
// user gets their own FIFO channel so messages from one user are processed
// strictly in order (a dialog assumes one in-flight step per user), while
// the semaphore caps the total number of concurrent processors across all
// users.
type Queue struct {
	lanes     map[types.UserID]chan *types.InboundMessage
	semaphore *semaphore.Weighted
	processor Processor
	active    atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewQueue creates a Queue that allows up to maxConcurrent messages to be
// processed simultaneously across all user lanes.
func NewQueue(maxConcurrent int64) *Queue {
	return &Queue{
		lanes:     make(map[types.UserID]chan *types.InboundMessage),
		semaphore: semaphore.NewWeighted(maxConcurrent),
	}
}

// Start initialises the queue's context. Must be called before Enqueue.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
}

// Stop cancels the queue context, closes all lanes, and waits for in-flight
// processors to finish.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	q.mu.Lock()
	q.stopped = true
	for _, lane := range q.lanes {
		close(lane)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue adds a message to the user's lane, creating the lane (and its
// goroutine) on first use. Returns an error if the lane's buffer is full
// or the queue has been stopped.
func (q *Queue) Enqueue(msg *types.InboundMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return fmt.Errorf("queue stopped")
	}

	lane, exists := q.lanes[msg.UserID]
	if !exists {
		lane = make(chan *types.InboundMessage, laneBuffer)
		q.lanes[msg.UserID] = lane
		q.wg.Add(1)
		go q.processLane(msg.UserID, lane)
	}

	select {
	case lane <- msg:
		return nil
	default:
		return fmt.Errorf("queue full for user %s", msg.UserID)
	}
}

// processLane drains a single user lane, acquiring a semaphore slot before
// running the processor synchronously. This keeps strict FIFO ordering
// within a user while the semaphore limits cross-user parallelism.
func (q *Queue) processLane(user types.UserID, lane chan *types.InboundMessage) {
	defer q.wg.Done()
	for {
		select {
		case msg, ok := <-lane:
			if !ok {
				return
			}
			if err := q.semaphore.Acquire(q.ctx, 1); err != nil {
				return
			}
			if q.processor != nil {
				q.active.Add(1)
				if err := q.processor(q.ctx, msg); err != nil {
					slog.Error("message processing failed", "user_id", string(user), "error", err)
				}
				q.active.Add(-1)
			}
			q.semaphore.Release(1)
		case <-q.ctx.Done():
			return
		}
	}
}

// WaitIdle blocks until no messages are actively being processed, or the
// timeout expires. Returns true if idle, false if timed out.
func (q *Queue) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if q.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// SetProcessor sets the function invoked for each dequeued message.
func (q *Queue) SetProcessor(fn Processor) {
	q.processor = fn
}
