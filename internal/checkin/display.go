package checkin

import (
	"context"
	"strconv"
	"time"
)

// Placeholder shown for empty now-serving fields.
const Placeholder = "-"

// DisplayRow is one channel on the public queue screen.
type DisplayRow struct {
	ChannelNumber int    `json:"channelNumber"`
	ChannelName   string `json:"channelName"`
	ServingCourse string `json:"servingCourse"`
	QueueNumber   string `json:"queueNumber"`
	StudentName   string `json:"studentName"`
}

// Display is the public screen for one activity.
type Display struct {
	ActivityID   string       `json:"activityId"`
	ActivityName string       `json:"activityName"`
	Channels     []DisplayRow `json:"channels"`
	RenderedAt   time.Time    `json:"renderedAt"`
}

// Project renders channels, already ordered by channel number, for the
// public screen.
func Project(a Activity, channels []Channel) Display {
	rows := make([]DisplayRow, 0, len(channels))
	for _, ch := range channels {
		rows = append(rows, DisplayRow{
			ChannelNumber: ch.ChannelNumber,
			ChannelName:   ch.ChannelName,
			ServingCourse: orPlaceholder(ch.ServingCourse),
			QueueNumber:   displayNumber(ch),
			StudentName:   orPlaceholder(ch.CurrentStudentName),
		})
	}
	return Display{
		ActivityID:   a.ID,
		ActivityName: a.Name,
		Channels:     rows,
		RenderedAt:   time.Now().UTC(),
	}
}

func displayNumber(ch Channel) string {
	if ch.CurrentDisplayQueueNumber != nil && *ch.CurrentDisplayQueueNumber != "" {
		return *ch.CurrentDisplayQueueNumber
	}
	if ch.CurrentQueueNumber != nil {
		return strconv.Itoa(*ch.CurrentQueueNumber)
	}
	return Placeholder
}

func orPlaceholder(s *string) string {
	if s == nil || *s == "" {
		return Placeholder
	}
	return *s
}

// Projector serves the read-only public queue display.
type Projector struct {
	store    Store
	registry *Registry
}

// NewProjector creates a projector fed by registry.
func NewProjector(store Store, registry *Registry) *Projector {
	return &Projector{store: store, registry: registry}
}

// Snapshot renders the display once.
func (p *Projector) Snapshot(ctx context.Context, activityID string) (Display, error) {
	a, err := p.activity(ctx, activityID)
	if err != nil {
		return Display{}, err
	}
	channels, err := p.registry.List(ctx, activityID)
	if err != nil {
		return Display{}, err
	}
	return Project(a, channels), nil
}

// Watch renders the display now and again after every channel change. The
// stream closes when ctx ends.
func (p *Projector) Watch(ctx context.Context, activityID string) (Display, <-chan Display, error) {
	a, err := p.activity(ctx, activityID)
	if err != nil {
		return Display{}, nil, err
	}
	initial, updates, cancel, err := p.registry.Subscribe(ctx, activityID)
	if err != nil {
		return Display{}, nil, err
	}

	out := make(chan Display, 1)
	go func() {
		defer close(out)
		defer cancel()
		for channels := range updates {
			select {
			case out <- Project(a, channels):
			case <-ctx.Done():
				return
			}
		}
	}()
	return Project(a, initial), out, nil
}

func (p *Projector) activity(ctx context.Context, activityID string) (Activity, error) {
	a, err := p.store.Activity(ctx, activityID)
	if err != nil {
		return Activity{}, err
	}
	if a == nil {
		return Activity{}, newError(ErrActivityNotFound, "activity %s not found", activityID)
	}
	return *a, nil
}
