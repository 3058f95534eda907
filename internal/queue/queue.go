// Package queue carries analysis job ids from the API server to the worker.
// Delivery is best effort: the worker also polls the database for pending jobs.
package queue

import (
	"context"
	"errors"
	"time"

	"triageapp/internal/observability"
	contextutils "triageapp/internal/utils"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// Backend names
const (
	BackendRedis   = "redis"
	BackendChannel = "channel"
)

// Queue is a FIFO of job ids
type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	// Dequeue blocks up to timeout and returns "" when nothing arrived
	Dequeue(ctx context.Context, timeout time.Duration) (string, error)
	Backend() string
}

// RedisQueue is a Redis list used with LPUSH and BRPOP
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue wraps an existing client
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &RedisQueue{client: client, key: key}
}

// Enqueue pushes the job id onto the list
func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) (err error) {
	ctx, span := observability.TraceWorkerFunction(ctx, "queue_enqueue",
		attribute.String("queue.backend", BackendRedis),
		observability.AttributeJobID(jobID),
	)
	defer observability.FinishSpan(span, &err)

	if err := q.client.LPush(ctx, q.key, jobID).Err(); err != nil {
		return contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "redis lpush: %v", err)
	}
	return nil
}

// Dequeue pops the oldest job id, waiting up to timeout
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", contextutils.WrapErrorf(contextutils.ErrServiceUnavailable, "redis brpop: %v", err)
	}
	// BRPOP answers [key, value]
	if len(res) != 2 {
		return "", contextutils.ErrorWithContextf("unexpected brpop reply of length %d", len(res))
	}
	return res[1], nil
}

// Backend returns "redis"
func (q *RedisQueue) Backend() string { return BackendRedis }

// ChannelQueue is an in-process queue for single-binary deployments and tests
type ChannelQueue struct {
	ch chan string
}

// NewChannelQueue creates a queue holding up to size ids
func NewChannelQueue(size int) *ChannelQueue {
	if size <= 0 {
		size = 100
	}
	return &ChannelQueue{ch: make(chan string, size)}
}

// Enqueue adds the id without blocking; a full queue is reported so callers can rely on polling
func (q *ChannelQueue) Enqueue(ctx context.Context, jobID string) error {
	select {
	case q.ch <- jobID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return contextutils.WrapError(contextutils.ErrServiceUnavailable, "job queue is full")
	}
}

// Dequeue waits up to timeout for an id
func (q *ChannelQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case id := <-q.ch:
		return id, nil
	case <-timer.C:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Len returns the number of queued ids
func (q *ChannelQueue) Len() int { return len(q.ch) }

// Backend returns "channel"
func (q *ChannelQueue) Backend() string { return BackendChannel }
