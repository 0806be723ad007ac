package queue

// Package queue carries verification jobs from the sandbox HTTP handlers to
// the worker. Redis is used when configured so jobs survive a restart;
// otherwise an in-process channel is enough.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Kind names the work a job asks for.
type Kind string

const (
	KindValidateDocument Kind = "validate_document"
	KindValidateSelfie   Kind = "validate_selfie"
)

// Job is one unit of verification work. ID is a document id for document
// jobs and a session id for selfie jobs.
type Job struct {
	Kind       Kind      `json:"kind"`
	ID         string    `json:"id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

var ErrClosed = errors.New("queue closed")

// Queue is a FIFO of jobs.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Dequeue waits up to timeout for a job; ok is false on timeout.
	Dequeue(ctx context.Context, timeout time.Duration) (job Job, ok bool, err error)
	Close() error
}

// Memory is an in-process queue.
type Memory struct {
	jobs   chan Job
	closed chan struct{}
}

// NewMemory creates a queue holding up to size pending jobs.
func NewMemory(size int) *Memory {
	return &Memory{jobs: make(chan Job, size), closed: make(chan struct{})}
}

func (m *Memory) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-m.closed:
		return ErrClosed
	default:
	}
	select {
	case m.jobs <- job:
		return nil
	case <-m.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Dequeue(ctx context.Context, timeout time.Duration) (Job, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case job := <-m.jobs:
		return job, true, nil
	case <-timer.C:
		return Job{}, false, nil
	case <-m.closed:
		return Job{}, false, ErrClosed
	case <-ctx.Done():
		return Job{}, false, ctx.Err()
	}
}

func (m *Memory) Close() error {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return nil
}

// DefaultKey is the Redis list holding pending jobs.
const DefaultKey = "swiftkyc:jobs"

// Redis is a queue backed by a Redis list (LPUSH in, BRPOP out).
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis connects to addr and verifies the server answers.
func NewRedis(ctx context.Context, addr string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  -1, // BRPOP sets its own deadline
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &Redis{client: client, key: DefaultKey}, nil
}

func (r *Redis) Enqueue(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := r.client.LPush(ctx, r.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

func (r *Redis) Dequeue(ctx context.Context, timeout time.Duration) (Job, bool, error) {
	res, err := r.client.BRPop(ctx, timeout, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return Job{}, false, ErrClosed
		}
		return Job{}, false, fmt.Errorf("failed to dequeue job: %w", err)
	}

	// res is [key, value].
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return Job{}, false, fmt.Errorf("failed to decode job: %w", err)
	}
	return job, true, nil
}

// Len returns the number of pending jobs.
func (r *Redis) Len(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.key).Result()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
