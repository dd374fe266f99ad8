package checkin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"eventqueue/internal/feed"
	"eventqueue/internal/notify"
)

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []notify.QueueCalled
	err  error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, msg notify.QueueCalled) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, msg)
	return nil
}

func (d *fakeDispatcher) messages() []notify.QueueCalled {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.QueueCalled(nil), d.sent...)
}

type fixture struct {
	t          *testing.T
	ctx        context.Context
	store      Store
	broker     *feed.Memory
	dispatcher *fakeDispatcher
	regs       *Registrations
	assigner   *Assigner
	registry   *Registry
	controller *Controller
	activity   Activity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, NewMemoryStore())
}

func newFixtureWith(t *testing.T, store Store) *fixture {
	t.Helper()
	broker := feed.NewMemory()
	d := &fakeDispatcher{}
	f := &fixture{
		t:          t,
		ctx:        context.Background(),
		store:      store,
		broker:     broker,
		dispatcher: d,
		regs:       NewRegistrations(store, nil),
		assigner:   NewAssigner(store, nil),
		registry:   NewRegistry(store, broker, nil),
		controller: NewController(store, broker, d, nil, nil),
	}
	a, err := f.regs.CreateActivity(f.ctx, "Open House", ActivityQueue, []string{"Engineering", "Science"})
	require.NoError(t, err)
	f.activity = a
	return f
}

// register signs a student up for course; nationalID doubles as a readable name.
func (f *fixture) register(nationalID, course string) Registration {
	f.t.Helper()
	r, err := f.regs.Register(f.ctx, f.activity.ID, RegisterInput{
		FullName:   "Student " + nationalID,
		NationalID: nationalID,
		Course:     course,
	})
	require.NoError(f.t, err)
	return r
}

// checkIn registers and assigns a queue number.
func (f *fixture) checkIn(nationalID, course string) Registration {
	f.t.Helper()
	r := f.register(nationalID, course)
	_, err := f.assigner.AssignQueue(f.ctx, r.ID, f.activity.ID)
	require.NoError(f.t, err)
	return f.reload(r.ID)
}

func (f *fixture) reload(id string) Registration {
	f.t.Helper()
	r, err := f.store.Registration(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, r)
	return *r
}

// channel creates a channel serving course ("" leaves it unconfigured).
func (f *fixture) channel(course string) Channel {
	f.t.Helper()
	ch, err := f.registry.Create(f.ctx, f.activity.ID)
	require.NoError(f.t, err)
	if course != "" {
		ch, err = f.registry.UpdateField(f.ctx, ch.ID, FieldServingCourse, &course)
		require.NoError(f.t, err)
	}
	return ch
}

func (f *fixture) reloadChannel(id string) Channel {
	f.t.Helper()
	ch, err := f.store.Channel(f.ctx, id)
	require.NoError(f.t, err)
	require.NotNil(f.t, ch)
	return *ch
}

// manualTimer lets tests fire the intake reset by hand.
type manualTimer struct {
	mu      sync.Mutex
	fn      func()
	delay   time.Duration
	stopped bool
}

func (m *manualTimer) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	was := !m.stopped
	m.stopped = true
	return was
}

func (m *manualTimer) fire() {
	m.mu.Lock()
	fn, stopped := m.fn, m.stopped
	m.mu.Unlock()
	if !stopped && fn != nil {
		fn()
	}
}

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{fn: fn, delay: d}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) last() *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}
