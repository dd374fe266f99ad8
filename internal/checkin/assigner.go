package checkin

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"eventqueue/internal/metrics"
)

// Assignment confirms a check-in to the operator.
type Assignment struct {
	RegistrationID     string `json:"registrationId"`
	QueueNumber        int    `json:"queueNumber"`
	DisplayQueueNumber string `json:"displayQueueNumber"`
	FullName           string `json:"fullName"`
	Course             string `json:"course"`
}

// Assigner turns a found registration into a numbered, checked-in queue entry.
type Assigner struct {
	store Store
	log   *zap.Logger
}

// NewAssigner creates an assigner backed by store.
func NewAssigner(store Store, logger *zap.Logger) *Assigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assigner{store: store, log: logger.Named("assigner")}
}

// AssignQueue checks the registration in and gives it the next queue number
// of its course. Counting and writing happen in one transaction under a
// per-course lock, so concurrent check-ins never share a number.
func (a *Assigner) AssignQueue(ctx context.Context, registrationID, activityID string) (Assignment, error) {
	registrationID = strings.TrimSpace(registrationID)
	if registrationID == "" || activityID == "" {
		return Assignment{}, newError(ErrInvalidInput, "registration and activity are required")
	}

	var out Assignment
	err := a.store.InTx(ctx, func(tx Tx) error {
		reg, err := tx.Registration(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg == nil || reg.ActivityID != activityID {
			return newError(ErrNotFoundOrMismatch, "registration %s not found in this activity", registrationID)
		}
		if reg.Status == StatusCheckedIn {
			e := newError(ErrAlreadyQueued, "%s is already queued with number %d", reg.FullName, derefInt(reg.QueueNumber))
			e.QueueNumber = derefInt(reg.QueueNumber)
			return e
		}
		course := reg.CourseName()
		if course == "" {
			return newError(ErrNoCourseAssigned, "%s has no course assigned", reg.FullName)
		}

		if err := tx.Lock(ctx, courseLockKey(activityID, course)); err != nil {
			return err
		}
		count, err := tx.CountCheckedIn(ctx, activityID, course)
		if err != nil {
			return err
		}

		reg.Status = StatusCheckedIn
		reg.QueueNumber = intPtr(count + 1)
		if reg.DisplayQueueNumber == "" {
			reg.DisplayQueueNumber = formatQueueNumber(count + 1)
		}
		if err := tx.UpdateRegistration(ctx, *reg); err != nil {
			return err
		}

		out = Assignment{
			RegistrationID:     reg.ID,
			QueueNumber:        count + 1,
			DisplayQueueNumber: reg.DisplayQueueNumber,
			FullName:           reg.FullName,
			Course:             course,
		}
		return nil
	})
	if err != nil {
		return Assignment{}, err
	}

	metrics.QueueAssigned.WithLabelValues(out.Course).Inc()
	a.log.Info("queue assigned",
		zap.String("activity_id", activityID),
		zap.String("registration_id", out.RegistrationID),
		zap.String("course", out.Course),
		zap.Int("queue_number", out.QueueNumber),
	)
	return out, nil
}
