package queue

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestInMemory_PublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	msgs, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}

	msg, err := NewMessage("attendance.settled", map[string]string{"record_id": "r1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := q.Publish(ctx, msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-msgs:
		if got.Type != "attendance.settled" {
			t.Errorf("Type = %q", got.Type)
		}
		var body map[string]string
		if err := json.Unmarshal(got.Body, &body); err != nil || body["record_id"] != "r1" {
			t.Errorf("Body = %s (%v)", got.Body, err)
		}
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestInMemory_ConsumeClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	msgs, _ := NewInMemory(1).Consume(ctx)
	cancel()

	select {
	case _, ok := <-msgs:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestInMemory_PublishRespectsContext(t *testing.T) {
	q := NewInMemory(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := q.Publish(ctx, Message{Type: "x"}); err == nil {
		t.Error("expected error when nobody consumes an unbuffered queue")
	}
}

func TestRedisQueue_RoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := "smartattend-test:queue"
	client.Del(ctx, key)
	q := NewRedisQueue(client, key)

	msg, _ := NewMessage("attendance.settled", map[string]int{"n": 1})
	if err := q.Publish(ctx, msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	msgs, _ := q.Consume(ctx)
	got := <-msgs
	if got.Type != "attendance.settled" || string(got.Body) != `{"n":1}` {
		t.Errorf("got %+v", got)
	}
}
