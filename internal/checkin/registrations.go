package checkin

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegisterInput is a student's self-registration.
type RegisterInput struct {
	FullName           string
	StudentID          string
	NationalID         string
	Course             string
	LineUserID         string
	DisplayQueueNumber string
}

// Registrations covers activity setup and the registrant records the queue
// works over.
type Registrations struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// NewRegistrations creates the service.
func NewRegistrations(store Store, logger *zap.Logger) *Registrations {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registrations{store: store, log: logger.Named("registrations"), now: func() time.Time { return time.Now().UTC() }}
}

// CreateActivity creates an activity. Type defaults to queue.
func (s *Registrations) CreateActivity(ctx context.Context, name string, typ ActivityType, courses []string) (Activity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Activity{}, newError(ErrInvalidInput, "activity name is required")
	}
	if typ == "" {
		typ = ActivityQueue
	}
	if typ != ActivityQueue && typ != ActivityEvent {
		return Activity{}, newError(ErrInvalidInput, "unknown activity type %q", typ)
	}
	clean := make([]string, 0, len(courses))
	for _, c := range courses {
		if c = strings.TrimSpace(c); c != "" {
			clean = append(clean, c)
		}
	}
	a, err := s.store.CreateActivity(ctx, Activity{Name: name, Type: typ, Courses: clean})
	if err != nil {
		return Activity{}, err
	}
	s.log.Info("activity created", zap.String("activity_id", a.ID), zap.String("type", string(a.Type)))
	return a, nil
}

// Activity returns an activity or ErrActivityNotFound.
func (s *Registrations) Activity(ctx context.Context, id string) (Activity, error) {
	a, err := s.store.Activity(ctx, id)
	if err != nil {
		return Activity{}, err
	}
	if a == nil {
		return Activity{}, newError(ErrActivityNotFound, "activity %s not found", id)
	}
	return *a, nil
}

// Register signs a student up. A national ID can hold one live registration
// per activity; a cancelled one may be replaced.
func (s *Registrations) Register(ctx context.Context, activityID string, in RegisterInput) (Registration, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.NationalID = strings.TrimSpace(in.NationalID)
	if in.FullName == "" || in.NationalID == "" {
		return Registration{}, newError(ErrInvalidInput, "full name and national ID are required")
	}
	a, err := s.Activity(ctx, activityID)
	if err != nil {
		return Registration{}, err
	}

	reg := Registration{
		ID:                 uuid.NewString(),
		ActivityID:         a.ID,
		FullName:           in.FullName,
		StudentID:          strings.TrimSpace(in.StudentID),
		NationalID:         in.NationalID,
		Status:             StatusRegistered,
		DisplayQueueNumber: strings.ToUpper(strings.TrimSpace(in.DisplayQueueNumber)),
		CreatedAt:          s.now(),
	}
	if c := strings.TrimSpace(in.Course); c != "" {
		reg.Course = &c
	}
	if l := strings.TrimSpace(in.LineUserID); l != "" {
		reg.LineUserID = &l
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.Lock(ctx, nationalIDLockKey(a.ID, reg.NationalID)); err != nil {
			return err
		}
		existing, err := tx.RegistrationByNationalID(ctx, a.ID, reg.NationalID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status != StatusCancelled {
			return newError(ErrDuplicateRegistration, "national ID %s is already registered for %s", reg.NationalID, a.Name)
		}
		return tx.InsertRegistration(ctx, reg)
	})
	if err != nil {
		return Registration{}, err
	}
	s.log.Info("registered", zap.String("activity_id", a.ID), zap.String("registration_id", reg.ID))
	return reg, nil
}

// Get returns one registration.
func (s *Registrations) Get(ctx context.Context, id string) (Registration, error) {
	r, err := s.store.Registration(ctx, id)
	if err != nil {
		return Registration{}, err
	}
	if r == nil {
		return Registration{}, newError(ErrNotFoundOrMismatch, "registration %s not found", id)
	}
	return *r, nil
}

// List returns the activity's registrants, one per national ID (the most
// recently created document wins), oldest first.
func (s *Registrations) List(ctx context.Context, activityID string) ([]Registration, error) {
	all, err := s.store.RegistrationsByActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	return DedupeByNationalID(all), nil
}

// DedupeByNationalID keeps the most recently created registration per
// national ID and orders the result by creation time.
func DedupeByNationalID(regs []Registration) []Registration {
	latest := make(map[string]Registration, len(regs))
	for _, r := range regs {
		cur, ok := latest[r.NationalID]
		if !ok || r.CreatedAt.After(cur.CreatedAt) {
			latest[r.NationalID] = r
		}
	}
	out := make([]Registration, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SetDisplayQueueNumber sets the human-facing label of a registration.
// Labels are stored upper-cased so insert lookups match.
func (s *Registrations) SetDisplayQueueNumber(ctx context.Context, registrationID, label string) (Registration, error) {
	label = strings.ToUpper(strings.TrimSpace(label))
	if label == "" {
		return Registration{}, newError(ErrInvalidInput, "display queue number is required")
	}
	var out Registration
	err := s.store.InTx(ctx, func(tx Tx) error {
		r, err := tx.Registration(ctx, registrationID)
		if err != nil {
			return err
		}
		if r == nil {
			return newError(ErrNotFoundOrMismatch, "registration %s not found", registrationID)
		}
		r.DisplayQueueNumber = label
		out = *r
		return tx.UpdateRegistration(ctx, *r)
	})
	if err != nil {
		return Registration{}, err
	}
	return out, nil
}

// LinkProfile records the LINE user for a national ID.
func (s *Registrations) LinkProfile(ctx context.Context, nationalID, lineUserID string) (Profile, error) {
	p := Profile{NationalID: strings.TrimSpace(nationalID), LineUserID: strings.TrimSpace(lineUserID)}
	if p.NationalID == "" || p.LineUserID == "" {
		return Profile{}, newError(ErrInvalidInput, "national ID and LINE user ID are required")
	}
	if err := s.store.UpsertProfile(ctx, p); err != nil {
		return Profile{}, err
	}
	p.UpdatedAt = s.now()
	return p, nil
}
