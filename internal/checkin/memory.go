package checkin

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for local runs and tests. Transactions
// are serialized behind one mutex and rolled back by restoring a snapshot.
type MemoryStore struct {
	mu            sync.Mutex
	activities    map[string]Activity
	registrations map[string]Registration
	channels      map[string]Channel
	profiles      map[string]Profile
	settings      *Settings
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		activities:    make(map[string]Activity),
		registrations: make(map[string]Registration),
		channels:      make(map[string]Channel),
		profiles:      make(map[string]Profile),
	}
}

type memorySnapshot struct {
	activities    map[string]Activity
	registrations map[string]Registration
	channels      map[string]Channel
}

func (m *MemoryStore) snapshot() memorySnapshot {
	s := memorySnapshot{
		activities:    make(map[string]Activity, len(m.activities)),
		registrations: make(map[string]Registration, len(m.registrations)),
		channels:      make(map[string]Channel, len(m.channels)),
	}
	for k, v := range m.activities {
		s.activities[k] = v
	}
	for k, v := range m.registrations {
		s.registrations[k] = v
	}
	for k, v := range m.channels {
		s.channels[k] = v
	}
	return s
}

// InTx runs fn while holding the store lock.
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.snapshot()
	if err := fn(memoryTx{m: m}); err != nil {
		m.activities = before.activities
		m.registrations = before.registrations
		m.channels = before.channels
		return err
	}
	return nil
}

func (m *MemoryStore) CreateActivity(_ context.Context, a Activity) (Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.activities[a.ID] = a
	return a, nil
}

func (m *MemoryStore) Activity(_ context.Context, id string) (*Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.activities[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *MemoryStore) Registration(_ context.Context, id string) (*Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registration(id), nil
}

func (m *MemoryStore) RegistrationsByActivity(_ context.Context, activityID string) ([]Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Registration
	for _, r := range m.registrations {
		if r.ActivityID == activityID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) RegistrationByNationalID(_ context.Context, activityID, nationalID string) (*Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registrationByNationalID(activityID, nationalID), nil
}

func (m *MemoryStore) Channels(_ context.Context, activityID string) ([]Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Channel{}
	for _, c := range m.channels {
		if c.ActivityID == activityID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelNumber < out[j].ChannelNumber })
	return out, nil
}

func (m *MemoryStore) Channel(_ context.Context, id string) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.channels[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *MemoryStore) Profile(_ context.Context, nationalID string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[nationalID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *MemoryStore) UpsertProfile(_ context.Context, p Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.UpdatedAt = time.Now().UTC()
	m.profiles[p.NationalID] = p
	return nil
}

func (m *MemoryStore) Settings(_ context.Context) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return nil, nil
	}
	s := *m.settings
	return &s, nil
}

func (m *MemoryStore) SaveSettings(_ context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

func (m *MemoryStore) registration(id string) *Registration {
	r, ok := m.registrations[id]
	if !ok {
		return nil
	}
	return &r
}

// registrationByNationalID returns the most recently created match.
func (m *MemoryStore) registrationByNationalID(activityID, nationalID string) *Registration {
	var found *Registration
	for _, r := range m.registrations {
		if r.ActivityID != activityID || r.NationalID != nationalID {
			continue
		}
		if found == nil || r.CreatedAt.After(found.CreatedAt) {
			r := r
			found = &r
		}
	}
	return found
}

// memoryTx operates on the maps directly; the store lock is held by InTx.
type memoryTx struct {
	m *MemoryStore
}

func (tx memoryTx) Lock(ctx context.Context, _ string) error { return ctx.Err() }

func (tx memoryTx) Registration(_ context.Context, id string) (*Registration, error) {
	return tx.m.registration(id), nil
}

func (tx memoryTx) RegistrationByNationalID(_ context.Context, activityID, nationalID string) (*Registration, error) {
	return tx.m.registrationByNationalID(activityID, nationalID), nil
}

func (tx memoryTx) CountCheckedIn(_ context.Context, activityID, course string) (int, error) {
	n := 0
	for _, r := range tx.m.registrations {
		if r.ActivityID == activityID && r.CourseName() == course && r.Status == StatusCheckedIn {
			n++
		}
	}
	return n, nil
}

func (tx memoryTx) NextWaiting(_ context.Context, activityID, course string) (*Registration, error) {
	var next *Registration
	for _, r := range tx.m.registrations {
		if r.ActivityID != activityID || r.CourseName() != course || r.Status != StatusCheckedIn {
			continue
		}
		if r.Called() || r.QueueNumber == nil {
			continue
		}
		if next == nil || *r.QueueNumber < *next.QueueNumber {
			r := r
			next = &r
		}
	}
	return next, nil
}

func (tx memoryTx) RegistrationByQueueNumber(_ context.Context, activityID, course string, queueNumber int) (*Registration, error) {
	var found []Registration
	for _, r := range tx.m.registrations {
		if r.ActivityID == activityID && r.CourseName() == course && r.QueueNumber != nil && *r.QueueNumber == queueNumber {
			found = append(found, r)
		}
	}
	if len(found) == 0 {
		return nil, nil
	}
	// Newest first, matching the postgres ORDER BY created_at DESC, id.
	sort.Slice(found, func(i, j int) bool {
		if !found[i].CreatedAt.Equal(found[j].CreatedAt) {
			return found[i].CreatedAt.After(found[j].CreatedAt)
		}
		return found[i].ID < found[j].ID
	})
	return &found[0], nil
}

func (tx memoryTx) CheckedInByDisplayNumber(_ context.Context, activityID, course, label string) (*Registration, error) {
	var found []Registration
	for _, r := range tx.m.registrations {
		if r.ActivityID == activityID && r.Status == StatusCheckedIn && r.DisplayQueueNumber == label {
			found = append(found, r)
		}
	}
	if len(found) == 0 {
		return nil, nil
	}
	sort.Slice(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if ac, bc := a.CourseName() == course, b.CourseName() == course; ac != bc {
			return ac
		}
		if an, bn := derefInt(a.QueueNumber), derefInt(b.QueueNumber); an != bn {
			return an < bn
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return &found[0], nil
}

func (tx memoryTx) InsertRegistration(_ context.Context, r Registration) error {
	if !r.Status.Valid() {
		return newError(ErrInvalidInput, "unknown registration status %q", r.Status)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	tx.m.registrations[r.ID] = r
	return nil
}

func (tx memoryTx) UpdateRegistration(_ context.Context, r Registration) error {
	if !r.Status.Valid() {
		return newError(ErrInvalidInput, "unknown registration status %q", r.Status)
	}
	if _, ok := tx.m.registrations[r.ID]; !ok {
		return newError(ErrNotFoundOrMismatch, "registration %s not found", r.ID)
	}
	tx.m.registrations[r.ID] = r
	return nil
}

func (tx memoryTx) Channel(_ context.Context, id string) (*Channel, error) {
	c, ok := tx.m.channels[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (tx memoryTx) NextChannelNumber(_ context.Context, activityID string) (int, error) {
	a, ok := tx.m.activities[activityID]
	if !ok {
		return 0, newError(ErrActivityNotFound, "activity %s not found", activityID)
	}
	next := a.lastChannelNumber
	for _, c := range tx.m.channels {
		if c.ActivityID == activityID && c.ChannelNumber > next {
			next = c.ChannelNumber
		}
	}
	next++
	a.lastChannelNumber = next
	tx.m.activities[activityID] = a
	return next, nil
}

func (tx memoryTx) InsertChannel(_ context.Context, c Channel) error {
	tx.m.channels[c.ID] = c
	return nil
}

func (tx memoryTx) UpdateChannel(_ context.Context, c Channel) error {
	if _, ok := tx.m.channels[c.ID]; !ok {
		return newError(ErrChannelNotFound, "channel %s not found", c.ID)
	}
	tx.m.channels[c.ID] = c
	return nil
}

func (tx memoryTx) DeleteChannel(_ context.Context, id string) error {
	delete(tx.m.channels, id)
	return nil
}
