package checkin

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eventqueue/internal/feed"
	"eventqueue/internal/metrics"
)

// Channel fields an operator can patch.
const (
	FieldChannelName   = "channelName"
	FieldServingCourse = "servingCourse"
)

// Registry manages an activity's channels and announces every change on the feed.
type Registry struct {
	store Store
	feed  feed.Broker
	log   *zap.Logger
	now   func() time.Time
}

// NewRegistry creates a registry.
func NewRegistry(store Store, broker feed.Broker, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store: store,
		feed:  broker,
		log:   logger.Named("channels"),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Create adds a channel numbered one past the highest number the activity
// has ever used.
func (r *Registry) Create(ctx context.Context, activityID string) (Channel, error) {
	var ch Channel
	err := r.store.InTx(ctx, func(tx Tx) error {
		n, err := tx.NextChannelNumber(ctx, activityID)
		if err != nil {
			return err
		}
		ch = Channel{
			ID:            uuid.NewString(),
			ActivityID:    activityID,
			ChannelNumber: n,
			ChannelName:   DefaultChannelName(n),
			UpdatedAt:     r.now(),
		}
		return tx.InsertChannel(ctx, ch)
	})
	if err != nil {
		return Channel{}, err
	}
	r.log.Info("channel created", zap.String("activity_id", activityID), zap.String("channel_id", ch.ID), zap.Int("channel_number", ch.ChannelNumber))
	r.announce(ctx, ch, feed.KindCreated)
	return ch, nil
}

// UpdateField patches one field. A nil or blank servingCourse clears it.
func (r *Registry) UpdateField(ctx context.Context, channelID, field string, value *string) (Channel, error) {
	apply, err := fieldPatch(field, value)
	if err != nil {
		return Channel{}, err
	}

	var ch Channel
	err = r.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.Channel(ctx, channelID)
		if err != nil {
			return err
		}
		if cur == nil {
			return newError(ErrChannelNotFound, "channel %s not found", channelID)
		}
		ch = *cur
		apply(&ch)
		ch.UpdatedAt = r.now()
		return tx.UpdateChannel(ctx, ch)
	})
	if err != nil {
		return Channel{}, err
	}
	r.log.Info("channel updated", zap.String("channel_id", ch.ID), zap.String("field", field))
	r.announce(ctx, ch, feed.KindUpdated)
	return ch, nil
}

func fieldPatch(field string, value *string) (func(*Channel), error) {
	switch field {
	case FieldChannelName:
		if value == nil || strings.TrimSpace(*value) == "" {
			return nil, newError(ErrInvalidInput, "channel name cannot be empty")
		}
		name := strings.TrimSpace(*value)
		return func(c *Channel) { c.ChannelName = name }, nil
	case FieldServingCourse:
		if value == nil || strings.TrimSpace(*value) == "" {
			return func(c *Channel) { c.ServingCourse = nil }, nil
		}
		course := strings.TrimSpace(*value)
		return func(c *Channel) { c.ServingCourse = &course }, nil
	}
	return nil, newError(ErrInvalidInput, "field %q cannot be updated", field)
}

// Delete removes a channel. Registrations it called keep their state.
func (r *Registry) Delete(ctx context.Context, channelID string) (Channel, error) {
	var ch Channel
	err := r.store.InTx(ctx, func(tx Tx) error {
		cur, err := tx.Channel(ctx, channelID)
		if err != nil {
			return err
		}
		if cur == nil {
			return newError(ErrChannelNotFound, "channel %s not found", channelID)
		}
		ch = *cur
		return tx.DeleteChannel(ctx, channelID)
	})
	if err != nil {
		return Channel{}, err
	}
	r.log.Info("channel deleted", zap.String("activity_id", ch.ActivityID), zap.String("channel_id", ch.ID))
	r.announce(ctx, ch, feed.KindDeleted)
	return ch, nil
}

// Get returns one channel.
func (r *Registry) Get(ctx context.Context, channelID string) (Channel, error) {
	ch, err := r.store.Channel(ctx, channelID)
	if err != nil {
		return Channel{}, err
	}
	if ch == nil {
		return Channel{}, newError(ErrChannelNotFound, "channel %s not found", channelID)
	}
	return *ch, nil
}

// List returns the activity's channels by channel number.
func (r *Registry) List(ctx context.Context, activityID string) ([]Channel, error) {
	return r.store.Channels(ctx, activityID)
}

// Subscribe returns the current ordered channel list and a stream carrying
// the full ordered list after every change. The stream closes when ctx ends
// or cancel is called.
func (r *Registry) Subscribe(ctx context.Context, activityID string) ([]Channel, <-chan []Channel, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	sub, err := r.feed.Subscribe(ctx, activityID)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	initial, err := r.store.Channels(ctx, activityID)
	if err != nil {
		sub.Close()
		cancel()
		return nil, nil, nil, err
	}

	metrics.DisplaySubscribers.Inc()
	out := make(chan []Channel, 1)
	go func() {
		defer metrics.DisplaySubscribers.Dec()
		defer close(out)
		defer sub.Close()
		for range sub.C {
			list, err := r.store.Channels(ctx, activityID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				r.log.Warn("channel list refresh failed", zap.String("activity_id", activityID), zap.Error(err))
				continue
			}
			select {
			case out <- list:
			case <-ctx.Done():
				return
			}
		}
	}()
	return initial, out, cancel, nil
}

func (r *Registry) announce(ctx context.Context, ch Channel, kind string) {
	announce(ctx, r.feed, r.log, ch, kind)
}

func announce(ctx context.Context, broker feed.Broker, log *zap.Logger, ch Channel, kind string) {
	if broker == nil {
		return
	}
	evt := feed.Event{ActivityID: ch.ActivityID, ChannelID: ch.ID, Kind: kind}
	if err := broker.Publish(context.WithoutCancel(ctx), evt); err != nil {
		log.Warn("channel change not published", zap.String("channel_id", ch.ID), zap.String("kind", kind), zap.Error(err))
	}
}
