package queue

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryPublishConsume(t *testing.T) {
	q := NewInMemory(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, q.Publish(ctx, Message{Type: TypeQueueCalled, Body: json.RawMessage(`{"x":1}`)}))
	assert.Equal(t, 1, q.Len())

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		assert.Equal(t, TypeQueueCalled, msg.Type)
		assert.JSONEq(t, `{"x":1}`, string(msg.Body))
	case <-time.After(time.Second):
		t.Fatal("no message consumed")
	}
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	require.NoError(t, q.Publish(context.Background(), Message{Type: "a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Publish(ctx, Message{Type: "b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInMemoryConsumeStopsOnCancel(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-msgs:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

// TestRedisQueue runs against a live Redis named by EVENTQUEUE_TEST_REDIS_ADDR.
func TestRedisQueue(t *testing.T) {
	addr := os.Getenv("EVENTQUEUE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EVENTQUEUE_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	key := "eventqueue:test:" + t.Name()
	require.NoError(t, client.Del(ctx, key).Err())
	defer client.Del(context.Background(), key)
	q := NewRedisQueue(client, key)

	require.NoError(t, q.Publish(ctx, Message{Type: TypeQueueCalled, Body: json.RawMessage(`{"n":1}`)}))
	require.NoError(t, q.Publish(ctx, Message{Type: TypeQueueCalled, Body: json.RawMessage(`{"n":2}`), Attempt: 1}))
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	msgs, err := q.Consume(ctx)
	require.NoError(t, err)
	first := <-msgs
	assert.JSONEq(t, `{"n":1}`, string(first.Body))
	second := <-msgs
	assert.Equal(t, 1, second.Attempt)

	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
