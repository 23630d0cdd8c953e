package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrQueueFull is returned by MemoryQueue when its buffer is exhausted.
var ErrQueueFull = errors.New("score queue is full")

// Queue carries completed session ids to the ScoringWorker. Enqueue makes
// every Queue a service.ScoreQueue.
type Queue interface {
	Enqueue(ctx context.Context, sessionID uuid.UUID) error
	// Dequeue waits up to timeout for the next id. ok is false on timeout.
	Dequeue(ctx context.Context, timeout time.Duration) (id uuid.UUID, ok bool, err error)
}

// RedisQueue is a Redis list consumed with BLPOP.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue creates a queue stored under key.
func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, sessionID uuid.UUID) error {
	if err := q.rdb.RPush(ctx, q.key, sessionID.String()).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", q.key, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (uuid.UUID, bool, error) {
	item, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("blpop %s: %w", q.key, err)
	}
	if len(item) < 2 {
		return uuid.Nil, false, nil
	}
	id, err := uuid.Parse(item[1])
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("invalid session id %q: %w", item[1], err)
	}
	return id, true, nil
}

// MemoryQueue is a buffered channel for single-process deployments.
type MemoryQueue struct {
	ch chan uuid.UUID
}

// NewMemoryQueue creates a queue holding up to size pending ids.
func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan uuid.UUID, size)}
}

func (q *MemoryQueue) Enqueue(_ context.Context, sessionID uuid.UUID) error {
	select {
	case q.ch <- sessionID:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (uuid.UUID, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case id := <-q.ch:
		return id, true, nil
	case <-timer.C:
		return uuid.Nil, false, nil
	case <-ctx.Done():
		return uuid.Nil, false, nil
	}
}

// Len reports the number of pending ids.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}
