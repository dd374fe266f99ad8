// Package feed carries channel change notifications to live subscribers.
//
// Events only say that something about an activity's channels changed;
// subscribers re-read the ordered channel list from the store, so a dropped
// or coalesced event never leaves a subscriber with stale data as long as a
// later one arrives.
package feed

import (
	"context"
	"sync"
)

// Event kinds.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
	KindCalled  = "called"
)

// Event announces a change to one activity's channels.
type Event struct {
	ActivityID string `json:"activityId"`
	ChannelID  string `json:"channelId,omitempty"`
	Kind       string `json:"kind"`
}

// Broker fans events out to subscribers of an activity.
type Broker interface {
	Publish(ctx context.Context, evt Event) error
	Subscribe(ctx context.Context, activityID string) (*Subscription, error)
}

// Subscription delivers events until Close is called or its context ends.
type Subscription struct {
	C <-chan Event

	once    sync.Once
	release func()
}

// Close stops delivery and releases the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

const subscriberBuffer = 16

// Memory is an in-process broker.
type Memory struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewMemory creates an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[chan Event]struct{})}
}

// Publish delivers evt to every subscriber of its activity. A subscriber
// whose buffer is full already has pending events and is skipped.
func (m *Memory) Publish(_ context.Context, evt Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs[evt.ActivityID] {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribe registers a subscriber for activityID.
func (m *Memory) Subscribe(ctx context.Context, activityID string) (*Subscription, error) {
	ch := make(chan Event, subscriberBuffer)
	m.mu.Lock()
	if m.subs[activityID] == nil {
		m.subs[activityID] = make(map[chan Event]struct{})
	}
	m.subs[activityID][ch] = struct{}{}
	m.mu.Unlock()

	sub := &Subscription{C: ch}
	sub.release = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs[activityID], ch)
		if len(m.subs[activityID]) == 0 {
			delete(m.subs, activityID)
		}
		close(ch)
	}
	go func() {
		<-ctx.Done()
		sub.Close()
	}()
	return sub, nil
}

// Subscribers reports how many subscribers an activity has.
func (m *Memory) Subscribers(activityID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[activityID])
}
