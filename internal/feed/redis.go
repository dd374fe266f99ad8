package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a broker over Redis pub/sub, shared by every API process.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis builds a broker publishing on "<prefix>:<activityID>".
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "eventqueue:channels"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) topic(activityID string) string {
	return r.prefix + ":" + activityID
}

// Publish sends evt to the activity topic.
func (r *Redis) Publish(ctx context.Context, evt Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.topic(evt.ActivityID), b).Err()
}

// Subscribe listens on the activity topic until ctx ends or Close is called.
func (r *Redis) Subscribe(ctx context.Context, activityID string) (*Subscription, error) {
	ps := r.client.Subscribe(ctx, r.topic(activityID))
	// Receive blocks until the subscription is confirmed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", activityID, err)
	}

	out := make(chan Event, subscriberBuffer)
	done := make(chan struct{})
	sub := &Subscription{C: out}
	sub.release = func() {
		close(done)
		_ = ps.Close()
	}

	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					continue
				}
				select {
				case out <- evt:
				default:
				}
			}
		}
	}()
	return sub, nil
}
