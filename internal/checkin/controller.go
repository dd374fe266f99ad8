package checkin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"eventqueue/internal/feed"
	"eventqueue/internal/metrics"
	"eventqueue/internal/notify"
)

// Operator warnings attached to a successful call.
const (
	WarnNoMessagingIdentity = "called successfully but could not notify: no messaging identity on file"
	warnDispatchFailed      = "called successfully but the notification failed: %v"
)

// CallResult is what the operator sees after a call.
type CallResult struct {
	Action       Action       `json:"action"`
	Channel      Channel      `json:"channel"`
	Registration Registration `json:"registration"`
	Notified     bool         `json:"notified"`
	Warning      string       `json:"warning,omitempty"`
}

// Controller runs the channel calling state machine.
type Controller struct {
	store         Store
	feed          feed.Broker
	dispatcher    notify.Dispatcher
	settings      SettingsProvider
	log           *zap.Logger
	now           func() time.Time
	notifyTimeout time.Duration
}

// NewController wires a controller. A nil dispatcher disables notifications;
// nil settings mean notifications are on.
func NewController(store Store, broker feed.Broker, dispatcher notify.Dispatcher, settings SettingsProvider, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dispatcher == nil {
		dispatcher = notify.Discard{}
	}
	if settings == nil {
		settings = StaticSettings(DefaultSettings())
	}
	return &Controller{
		store:         store,
		feed:          broker,
		dispatcher:    dispatcher,
		settings:      settings,
		log:           logger.Named("calls"),
		now:           func() time.Time { return time.Now().UTC() },
		notifyTimeout: 10 * time.Second,
	}
}

// CallNext serves the lowest-numbered checked-in registrant of the channel's
// course that no channel has called yet. Selection and marking share one
// transaction under the course lock, so two channels on the same course
// never pick the same registrant.
func (c *Controller) CallNext(ctx context.Context, channelID string) (CallResult, error) {
	return c.call(ctx, ActionCallNext, channelID, func(tx Tx, ch Channel) (*Registration, error) {
		course := *ch.ServingCourse
		if err := tx.Lock(ctx, courseLockKey(ch.ActivityID, course)); err != nil {
			return nil, err
		}
		next, err := tx.NextWaiting(ctx, ch.ActivityID, course)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return nil, newError(ErrNoWaitingRegistrants, "no waiting registrants for course %q", course)
		}
		return next, nil
	})
}

// Recall announces the channel's current registrant again.
func (c *Controller) Recall(ctx context.Context, channelID string) (CallResult, error) {
	return c.call(ctx, ActionRecall, channelID, func(tx Tx, ch Channel) (*Registration, error) {
		n := *ch.CurrentQueueNumber
		reg, err := tx.RegistrationByQueueNumber(ctx, ch.ActivityID, *ch.ServingCourse, n)
		if err != nil {
			return nil, err
		}
		if reg == nil {
			e := newError(ErrRegistrantNotFound, "registrant with queue number %d not found", n)
			e.QueueNumber = n
			return nil, e
		}
		return reg, nil
	})
}

// InsertQueue calls the checked-in registrant with the given display label
// out of order. It does not check whether that registrant was called before.
// Labels can repeat across courses; the channel's serving course wins.
func (c *Controller) InsertQueue(ctx context.Context, channelID, displayQueueNumber string) (CallResult, error) {
	label := strings.ToUpper(strings.TrimSpace(displayQueueNumber))
	if label == "" {
		err := newError(ErrInvalidInput, "enter the queue number to insert")
		c.rejected(ActionInsert, err)
		return CallResult{}, err
	}
	return c.call(ctx, ActionInsert, channelID, func(tx Tx, ch Channel) (*Registration, error) {
		reg, err := tx.CheckedInByDisplayNumber(ctx, ch.ActivityID, *ch.ServingCourse, label)
		if err != nil {
			return nil, err
		}
		if reg == nil {
			return nil, newError(ErrQueueNotFound, "queue %s not found among checked-in registrants", label)
		}
		return reg, nil
	})
}

type selector func(tx Tx, ch Channel) (*Registration, error)

// call validates the channel state, selects a registrant and commits the
// channel and registrant updates together. Notification runs after commit
// and can only add a warning.
func (c *Controller) call(ctx context.Context, action Action, channelID string, pick selector) (CallResult, error) {
	settings, err := c.settings.NotificationSettings(ctx)
	if err != nil {
		c.log.Warn("settings unavailable, using defaults", zap.Error(err))
	}

	res := CallResult{Action: action}
	err = c.store.InTx(ctx, func(tx Tx) error {
		ch, err := tx.Channel(ctx, channelID)
		if err != nil {
			return err
		}
		if ch == nil {
			return newError(ErrChannelNotFound, "channel %s not found", channelID)
		}
		if err := CanPerform(StateOf(*ch), action); err != nil {
			return err
		}
		reg, err := pick(tx, *ch)
		if err != nil {
			return err
		}
		res.Channel, res.Registration, err = c.markCalled(ctx, tx, *ch, *reg)
		return err
	})
	if err != nil {
		c.rejected(action, err)
		return CallResult{}, err
	}

	metrics.QueueCalls.WithLabelValues(string(action)).Inc()
	c.log.Info("registrant called",
		zap.String("action", string(action)),
		zap.String("activity_id", res.Channel.ActivityID),
		zap.String("channel_id", res.Channel.ID),
		zap.String("registration_id", res.Registration.ID),
		zap.Int("queue_number", derefInt(res.Registration.QueueNumber)),
	)
	announce(ctx, c.feed, c.log, res.Channel, feed.KindCalled)

	if settings.OnQueueCall {
		res.Notified, res.Warning = c.notify(ctx, res.Channel, res.Registration)
	} else {
		metrics.Notifications.WithLabelValues("skipped").Inc()
	}
	return res, nil
}

func (c *Controller) markCalled(ctx context.Context, tx Tx, ch Channel, reg Registration) (Channel, Registration, error) {
	now := c.now()

	ch.CurrentQueueNumber = reg.QueueNumber
	ch.CurrentDisplayQueueNumber = strPtr(reg.DisplayQueueNumber)
	ch.CurrentStudentName = strPtr(reg.FullName)
	ch.UpdatedAt = now
	if err := tx.UpdateChannel(ctx, ch); err != nil {
		return Channel{}, Registration{}, err
	}

	reg.CalledAt = timePtr(now)
	if err := tx.UpdateRegistration(ctx, reg); err != nil {
		return Channel{}, Registration{}, err
	}
	return ch, reg, nil
}

// notify resolves the LINE target and dispatches. It never fails the call.
func (c *Controller) notify(ctx context.Context, ch Channel, reg Registration) (bool, string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.notifyTimeout)
	defer cancel()

	log := c.log.With(zap.String("registration_id", reg.ID), zap.String("channel_id", ch.ID))

	target := ""
	if reg.LineUserID != nil {
		target = *reg.LineUserID
	}
	if target == "" && reg.NationalID != "" {
		p, err := c.store.Profile(ctx, reg.NationalID)
		if err != nil {
			log.Warn("profile lookup failed", zap.Error(err))
		} else if p != nil {
			target = p.LineUserID
		}
	}
	if target == "" {
		metrics.Notifications.WithLabelValues("no_target").Inc()
		return false, WarnNoMessagingIdentity
	}

	activityName := ""
	if a, err := c.store.Activity(ctx, ch.ActivityID); err != nil {
		log.Warn("activity lookup failed", zap.Error(err))
	} else if a != nil {
		activityName = a.Name
	}

	msg := notify.QueueCalled{
		TargetUserID:       target,
		ActivityName:       activityName,
		ChannelName:        ch.ChannelName,
		DisplayQueueNumber: reg.DisplayQueueNumber,
		Course:             reg.CourseName(),
	}

	start := time.Now()
	err := c.dispatcher.Dispatch(ctx, msg)
	metrics.NotifyLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		log.Error("notification failed", zap.Error(err))
		return false, fmt.Sprintf(warnDispatchFailed, err)
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
	return true, ""
}

func (c *Controller) rejected(action Action, err error) {
	kind := KindOf(err)
	metrics.Rejections.WithLabelValues(string(action), string(kind)).Inc()
	if kind == KindInternal {
		c.log.Error("call failed", zap.String("action", string(action)), zap.Error(err))
		return
	}
	c.log.Info("call rejected", zap.String("action", string(action)), zap.String("reason", err.Error()))
}
