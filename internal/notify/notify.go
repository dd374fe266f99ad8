// Package notify delivers "your queue is called" messages to students over LINE.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"eventqueue/internal/queue"
)

// QueueCalled is the message sent when a channel calls a registrant.
type QueueCalled struct {
	TargetUserID       string `json:"targetUserId"`
	ActivityName       string `json:"activityName"`
	ChannelName        string `json:"channelName"`
	DisplayQueueNumber string `json:"displayQueueNumber"`
	Course             string `json:"course"`
}

// Text renders the message body.
func (m QueueCalled) Text() string {
	return fmt.Sprintf("ถึงคิวของคุณแล้ว\nกิจกรรม: %s\nหมายเลขคิว: %s\nหลักสูตร: %s\nกรุณาไปที่: %s",
		m.ActivityName, m.DisplayQueueNumber, m.Course, m.ChannelName)
}

// Dispatcher sends a QueueCalled message. Errors are reported to the operator
// but never undo the call that triggered them.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg QueueCalled) error
}

// Discard drops every message. It backs NOTIFY_MODE=off.
type Discard struct{}

func (Discard) Dispatch(context.Context, QueueCalled) error { return nil }

// Queued hands messages to cmd/worker through the work queue.
type Queued struct {
	q queue.Queue
}

// NewQueued creates a dispatcher publishing to q.
func NewQueued(q queue.Queue) *Queued {
	return &Queued{q: q}
}

// Dispatch publishes msg as a queue_called job.
func (d *Queued) Dispatch(ctx context.Context, msg QueueCalled) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := d.q.Publish(ctx, queue.Message{Type: queue.TypeQueueCalled, Body: body}); err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Decode extracts a QueueCalled job from a work queue message.
func Decode(msg queue.Message) (QueueCalled, error) {
	if msg.Type != queue.TypeQueueCalled {
		return QueueCalled{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var out QueueCalled
	if err := json.Unmarshal(msg.Body, &out); err != nil {
		return QueueCalled{}, fmt.Errorf("decode notification: %w", err)
	}
	if out.TargetUserID == "" {
		return QueueCalled{}, fmt.Errorf("notification has no target")
	}
	return out, nil
}
