package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"dingbot/internal/engine/dingtalk"
)

func newTestRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueueFromClient(client, "dingbot:test")
	t.Cleanup(func() { q.Close() })
	return q, mr
}

func TestRedisQueue_RoundTrip(t *testing.T) {
	q, mr := newTestRedisQueue(t)
	ctx := context.Background()

	first := NewJob("ops", dingtalk.Invocation{Message: "first", Target: []string{"138"}})
	second := NewJob("ops", dingtalk.Invocation{Message: "second"})

	if err := q.Enqueue(ctx, first); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if err := q.Enqueue(ctx, second); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if items, _ := mr.List("dingbot:test"); len(items) != 2 {
		t.Errorf("Expected 2 items in list, got %d", len(items))
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if got.ID != first.ID || got.Invocation.Message != "first" || got.Invocation.Target[0] != "138" {
		t.Errorf("Expected first job, got %#v", got)
	}

	if err := q.Ping(ctx); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}

func TestRedisQueue_SkipsGarbage(t *testing.T) {
	q, mr := newTestRedisQueue(t)
	ctx := context.Background()

	mr.Lpush("dingbot:test", "{not json")
	job := NewJob("ops", dingtalk.Invocation{Message: "ok"})
	if err := q.Enqueue(ctx, job); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error: %v", err)
	}
	if got.ID != job.ID {
		t.Errorf("Expected %s, got %s", job.ID, got.ID)
	}
}

func TestRedisQueue_DequeueCancelled(t *testing.T) {
	q, _ := newTestRedisQueue(t)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := q.Dequeue(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
