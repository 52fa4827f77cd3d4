// Package broker implements a Redis-list reliable queue standing in for the
// Celery broker/result-backend this system used for ad hoc job dispatch
// (operator-triggered "run now" actions routed to a worker instead of
// executed inline on the API goroutine). The read/write shape (go-redis/v9
// client, JSON-encoded payloads) is grounded on
// internal/store/redis.go cache wrapper; the reliable-queue pattern itself
// (BRPOPLPUSH into a processing list, explicit Ack removing it, and an
// explicit RequeueStuck that moves every task still in processing back to
// pending; there is no per-task visibility timeout)
// is the standard at-least-once Redis queue idiom this dependency
// already supports.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Task is one ad hoc unit of work routed through the queue: the job name to
// run and an opaque JSON payload a worker-side dispatcher decodes.
type Task struct {
	JobName    string          `json:"job_name"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Queue is a single named reliable queue backed by a Redis list pair:
// queue (pending) and queue:processing (claimed but unacked).
type Queue struct {
	rdb  *redis.Client
	name string
}

// New wraps an existing Redis client as a named queue.
func New(rdb *redis.Client, name string) *Queue {
	return &Queue{rdb: rdb, name: name}
}

func (q *Queue) pendingKey() string    { return fmt.Sprintf("boz:queue:%s", q.name) }
func (q *Queue) processingKey() string { return fmt.Sprintf("boz:queue:%s:processing", q.name) }

// Enqueue pushes a task onto the pending list.
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("broker: marshal task: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.pendingKey(), data).Err(); err != nil {
		return fmt.Errorf("broker: enqueue: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout for a task, atomically moving it from
// pending to processing. The returned raw payload must be passed to Ack
// once the caller has finished processing it; until then it survives a
// worker crash in the processing list for RequeueStuck to recover.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (Task, []byte, error) {
	raw, err := q.rdb.BRPopLPush(ctx, q.pendingKey(), q.processingKey(), timeout).Bytes()
	if err == redis.Nil {
		return Task{}, nil, nil
	}
	if err != nil {
		return Task{}, nil, fmt.Errorf("broker: dequeue: %w", err)
	}
	var task Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return Task{}, raw, fmt.Errorf("broker: unmarshal task: %w", err)
	}
	return task, raw, nil
}

// Ack removes a claimed task's raw payload from the processing list,
// acknowledging successful completion. Passing the exact bytes returned by
// Dequeue lets LREM match the precise element even if other tasks share the
// same job name.
func (q *Queue) Ack(ctx context.Context, raw []byte) error {
	if err := q.rdb.LRem(ctx, q.processingKey(), 1, raw).Err(); err != nil {
		return fmt.Errorf("broker: ack: %w", err)
	}
	return nil
}

// RequeueStuck moves every task currently in the processing list back onto
// the pending list. It does not attempt to distinguish tasks abandoned by a
// crashed worker from tasks genuinely still in flight; callers run it on a
// slow interval (minutes, not seconds) after worker restarts, accepting
// at-least-once redelivery as the tradeoff for simplicity.
func (q *Queue) RequeueStuck(ctx context.Context) (int, error) {
	var moved int
	for {
		raw, err := q.rdb.RPopLPush(ctx, q.processingKey(), q.pendingKey()).Bytes()
		if err == redis.Nil {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("broker: requeue stuck: %w", err)
		}
		_ = raw
		moved++
	}
}

// Len reports the number of tasks currently pending.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.LLen(ctx, q.pendingKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("broker: len: %w", err)
	}
	return n, nil
}
