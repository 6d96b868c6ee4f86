package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueFull is returned by Push when the queue is at capacity.
var ErrQueueFull = errors.New("notification queue full")

// Queue buffers events between producers and the dispatcher worker.
type Queue interface {
	// Push enqueues without blocking. Returns ErrQueueFull at capacity.
	Push(ctx context.Context, ev Event) error

	// Pop waits up to wait for an event. A non-positive wait does not block.
	// ok is false when nothing arrived.
	Pop(ctx context.Context, wait time.Duration) (ev Event, ok bool, err error)

	// Len reports queued events.
	Len(ctx context.Context) (int64, error)
}

// MemoryQueue is a bounded in-process queue.
type MemoryQueue struct {
	ch chan Event
}

// NewMemoryQueue creates a queue holding up to size events.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 256
	}
	return &MemoryQueue{ch: make(chan Event, size)}
}

func (q *MemoryQueue) Push(ctx context.Context, ev Event) error {
	select {
	case q.ch <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Pop(ctx context.Context, wait time.Duration) (Event, bool, error) {
	if wait <= 0 {
		select {
		case ev := <-q.ch:
			return ev, true, nil
		default:
			return Event{}, false, nil
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case ev := <-q.ch:
		return ev, true, nil
	case <-timer.C:
		return Event{}, false, nil
	case <-ctx.Done():
		return Event{}, false, ctx.Err()
	}
}

func (q *MemoryQueue) Len(ctx context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

// RedisQueue is a bounded queue on a Redis list, shared by all instances.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
	maxLen int64
}

// NewRedisQueue creates a queue on the list at key holding up to maxLen events.
func NewRedisQueue(client redis.UniversalClient, key string, maxLen int64) *RedisQueue {
	if key == "" {
		key = "accountmart:notify:queue"
	}
	if maxLen <= 0 {
		maxLen = 1024
	}
	return &RedisQueue{client: client, key: key, maxLen: maxLen}
}

// pushIfRoomScript enqueues only while the list is below its limit.
var pushIfRoomScript = redis.NewScript(`
	if redis.call("LLEN", KEYS[1]) >= tonumber(ARGV[2]) then
		return 0
	end
	redis.call("LPUSH", KEYS[1], ARGV[1])
	return 1
`)

func (q *RedisQueue) Push(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pushed, err := pushIfRoomScript.Run(ctx, q.client, []string{q.key}, data, q.maxLen).Int()
	if err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}
	if pushed == 0 {
		return ErrQueueFull
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context, wait time.Duration) (Event, bool, error) {
	var (
		raw string
		err error
	)
	if wait <= 0 {
		raw, err = q.client.RPop(ctx, q.key).Result()
	} else {
		var res []string
		res, err = q.client.BRPop(ctx, wait, q.key).Result()
		if err == nil {
			raw = res[1]
		}
	}
	if errors.Is(err, redis.Nil) {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, err
	}

	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return Event{}, false, fmt.Errorf("failed to decode notification: %w", err)
	}
	return ev, true, nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

var (
	_ Queue = (*MemoryQueue)(nil)
	_ Queue = (*RedisQueue)(nil)
)
