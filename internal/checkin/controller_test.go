package checkin

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventqueue/internal/feed"
)

func TestCallNextServesLowestQueueNumberFirst(t *testing.T) {
	f := newFixture(t)
	r1 := f.checkIn("1001", "Engineering")
	r2 := f.checkIn("1002", "Engineering")
	r3 := f.checkIn("1003", "Engineering")
	ch := f.channel("Engineering")

	for _, want := range []Registration{r1, r2, r3} {
		res, err := f.controller.CallNext(f.ctx, ch.ID)
		require.NoError(t, err)
		assert.Equal(t, want.ID, res.Registration.ID)
		assert.Equal(t, *want.QueueNumber, *res.Channel.CurrentQueueNumber)
	}

	_, err := f.controller.CallNext(f.ctx, ch.ID)
	require.ErrorIs(t, err, ErrNoWaitingRegistrants)
	assert.Contains(t, err.Error(), "Engineering")
}

func TestCallNextOrdersByQueueNumberNotCreation(t *testing.T) {
	f := newFixture(t)
	a := f.register("1001", "Engineering")
	b := f.register("1002", "Engineering")
	c := f.register("1003", "Engineering")
	// Registered a, b, c; checked in b, c, a. Creation order holds queue numbers [3,1,2].
	for _, r := range []Registration{b, c, a} {
		_, err := f.assigner.AssignQueue(f.ctx, r.ID, f.activity.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{3, 1, 2}, []int{*f.reload(a.ID).QueueNumber, *f.reload(b.ID).QueueNumber, *f.reload(c.ID).QueueNumber})
	ch := f.channel("Engineering")

	for _, want := range []string{b.ID, c.ID, a.ID} {
		res, err := f.controller.CallNext(f.ctx, ch.ID)
		require.NoError(t, err)
		assert.Equal(t, want, res.Registration.ID)
	}
}

func TestCallNextComparesNumbersNotLabels(t *testing.T) {
	f := newFixture(t)
	var regs []Registration
	for i := 1; i <= 10; i++ {
		regs = append(regs, f.checkIn(fmt.Sprintf("10%02d", i), "Engineering"))
	}
	ch := f.channel("Engineering")
	for i := 0; i < 8; i++ {
		_, err := f.controller.CallNext(f.ctx, ch.ID)
		require.NoError(t, err)
	}
	require.Equal(t, "9", regs[8].DisplayQueueNumber)
	require.Equal(t, "10", regs[9].DisplayQueueNumber)
	require.Less(t, "10", "9")

	res, err := f.controller.CallNext(f.ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, regs[8].ID, res.Registration.ID)
	assert.Equal(t, "9", *res.Channel.CurrentDisplayQueueNumber)

	res, err = f.controller.CallNext(f.ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, regs[9].ID, res.Registration.ID)
}

func TestCallNextIgnoresOtherCoursesAndStatuses(t *testing.T) {
	f := newFixture(t)
	f.checkIn("2001", "Science")
	f.register("1001", "Engineering") // registered, not checked in
	want := f.checkIn("1002", "Engineering")
	ch := f.channel("Engineering")

	res, err := f.controller.CallNext(f.ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, want.ID, res.Registration.ID)

	_, err = f.controller.CallNext(f.ctx, ch.ID)
	assert.ErrorIs(t, err, ErrNoWaitingRegistrants)
}

func TestScenarioOpenHouse(t *testing.T) {
	f := newFixture(t)
	r1 := f.checkIn("1001", "Engineering")
	r2 := f.checkIn("1002", "Engineering")
	r3 := f.checkIn("1003", "Engineering")
	assert.Equal(t, []int{1, 2, 3}, []int{*r1.QueueNumber, *r2.QueueNumber, *r3.QueueNumber})

	c1 := f.channel("Engineering")

	res, err := f.controller.CallNext(f.ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, res.Registration.ID)

	res, err = f.controller.CallNext(f.ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, r2.ID, res.Registration.ID)
	assert.Equal(t, "Student 1002", *res.Channel.CurrentStudentName)
}

func TestInsertQueueBypassesFIFO(t *testing.T) {
	f := newFixture(t)
	r1 := f.checkIn("1001", "Engineering")
	r2 := f.checkIn("1002", "Engineering")
	r3 := f.checkIn("1003", "Engineering")
	c1 := f.channel("Engineering")

	_, err := f.controller.CallNext(f.ctx, c1.ID)
	require.NoError(t, err)

	res, err := f.controller.InsertQueue(f.ctx, c1.ID, r3.DisplayQueueNumber)
	require.NoError(t, err)
	assert.Equal(t, ActionInsert, res.Action)
	assert.Equal(t, r3.ID, res.Registration.ID)

	shown := f.reloadChannel(c1.ID)
	assert.Equal(t, 3, *shown.CurrentQueueNumber)
	assert.Equal(t, "3", *shown.CurrentDisplayQueueNumber)
	assert.Nil(t, f.reload(r2.ID).CalledAt)
	assert.NotNil(t, f.reload(r1.ID).CalledAt)

	res, err = f.controller.CallNext(f.ctx, c1.ID)
	require.NoError(t, err)
	assert.Equal(t, r2.ID, res.Registration.ID)

	_, err = f.controller.CallNext(f.ctx, c1.ID)
	assert.ErrorIs(t, err, ErrNoWaitingRegistrants)
}

func TestInsertQueueByPrefixedLabel(t *testing.T) {
	f := newFixture(t)
	low := f.checkIn("1001", "Engineering")
	vip, err := f.regs.Register(f.ctx, f.activity.ID, RegisterInput{
		FullName: "Priority", NationalID: "9001", Course: "Engineering", DisplayQueueNumber: "A1",
	})
	require.NoError(t, err)
	_, err = f.assigner.AssignQueue(f.ctx, vip.ID, f.activity.ID)
	require.NoError(t, err)
	ch := f.channel("Engineering")

	res, err := f.controller.InsertQueue(f.ctx, ch.ID, "  a1 ")
	require.NoError(t, err)
	assert.Equal(t, vip.ID, res.Registration.ID)
	assert.Equal(t, "A1", *res.Channel.CurrentDisplayQueueNumber)
	assert.Nil(t, f.reload(low.ID).CalledAt)

	// Insert may call an already-called registrant again.
	_, err = f.controller.InsertQueue(f.ctx, ch.ID, "A1")
	assert.NoError(t, err)
}

func TestInsertQueuePrefersServingCourse(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		eng := f.checkIn("1001", "Engineering")
		sci := f.checkIn("2001", "Science")
		require.Equal(t, eng.DisplayQueueNumber, sci.DisplayQueueNumber)
		science := f.channel("Science")
		engineering := f.channel("Engineering")

		res, err := f.controller.InsertQueue(f.ctx, science.ID, "1")
		require.NoError(t, err)
		require.Equal(t, sci.ID, res.Registration.ID)
		assert.Nil(t, f.reload(eng.ID).CalledAt)

		res, err = f.controller.CallNext(f.ctx, engineering.ID)
		require.NoError(t, err)
		assert.Equal(t, eng.ID, res.Registration.ID)
	}
}

func TestInsertQueueFallsBackToOtherCourse(t *testing.T) {
	f := newFixture(t)
	vip, err := f.regs.Register(f.ctx, f.activity.ID, RegisterInput{
		FullName: "Guest", NationalID: "9001", Course: "Engineering", DisplayQueueNumber: "A1",
	})
	require.NoError(t, err)
	_, err = f.assigner.AssignQueue(f.ctx, vip.ID, f.activity.ID)
	require.NoError(t, err)
	science := f.channel("Science")

	res, err := f.controller.InsertQueue(f.ctx, science.ID, "A1")
	require.NoError(t, err)
	assert.Equal(t, vip.ID, res.Registration.ID)
}

func TestInsertQueueRejections(t *testing.T) {
	f := newFixture(t)
	registered, err := f.regs.Register(f.ctx, f.activity.ID, RegisterInput{
		FullName: "Not here yet", NationalID: "5001", Course: "Engineering", DisplayQueueNumber: "B7",
	})
	require.NoError(t, err)
	ch := f.channel("Engineering")

	_, err = f.controller.InsertQueue(f.ctx, ch.ID, "B7")
	require.ErrorIs(t, err, ErrQueueNotFound)
	assert.Contains(t, err.Error(), "B7")
	assert.Nil(t, f.reload(registered.ID).CalledAt)

	_, err = f.controller.InsertQueue(f.ctx, ch.ID, " ")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRecallReannouncesCurrent(t *testing.T) {
	f := newFixture(t)
	r1 := f.checkIn("1001", "Engineering")
	f.checkIn("1002", "Engineering")
	ch := f.channel("Engineering")

	_, err := f.controller.Recall(f.ctx, ch.ID)
	require.ErrorIs(t, err, ErrNothingToRecall)

	_, err = f.controller.CallNext(f.ctx, ch.ID)
	require.NoError(t, err)

	res, err := f.controller.Recall(f.ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, res.Registration.ID)
	assert.Len(t, f.dispatcher.messages(), 0) // nobody has a LINE identity
	assert.Equal(t, WarnNoMessagingIdentity, res.Warning)
}

func TestRecallMissingRegistrantLeavesChannelUntouched(t *testing.T) {
	f := newFixture(t)
	ch := f.channel("Engineering")

	// A channel showing a number nobody in the course holds.
	require.NoError(t, f.store.InTx(f.ctx, func(tx Tx) error {
		c, err := tx.Channel(f.ctx, ch.ID)
		require.NoError(t, err)
		c.CurrentQueueNumber = intPtr(7)
		c.CurrentDisplayQueueNumber = strPtr("7")
		c.CurrentStudentName = strPtr("Ghost")
		return tx.UpdateChannel(f.ctx, *c)
	}))
	before := f.reloadChannel(ch.ID)

	_, err := f.controller.Recall(f.ctx, ch.ID)
	require.ErrorIs(t, err, ErrRegistrantNotFound)
	assert.Contains(t, err.Error(), "7")
	assert.Equal(t, before, f.reloadChannel(ch.ID))
}

func TestUnconfiguredChannelRejectsCalls(t *testing.T) {
	f := newFixture(t)
	f.checkIn("1001", "Engineering")
	ch := f.channel("")

	_, err := f.controller.CallNext(f.ctx, ch.ID)
	assert.ErrorIs(t, err, ErrNoCourseConfigured)
	_, err = f.controller.InsertQueue(f.ctx, ch.ID, "1")
	assert.ErrorIs(t, err, ErrNoCourseConfigured)

	_, err = f.controller.CallNext(f.ctx, "missing")
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestNotificationTargets(t *testing.T) {
	f := newFixture(t)
	withLine, err := f.regs.Register(f.ctx, f.activity.ID, RegisterInput{
		FullName: "Direct", NationalID: "1001", Course: "Engineering", LineUserID: "U-direct",
	})
	require.NoError(t, err)
	_, err = f.assigner.AssignQueue(f.ctx, withLine.ID, f.activity.ID)
	require.NoError(t, err)
	viaProfile := f.checkIn("1002", "Engineering")
	_, err = f.regs.LinkProfile(f.ctx, viaProfile.NationalID, "U-profile")
	require.NoError(t, err)
	ch := f.channel("Engineering")

	res, err := f.controller.CallNext(f.ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, res.Notified)
	assert.Empty(t, res.Warning)

	res, err = f.controller.CallNext(f.ctx, ch.ID)
	require.NoError(t, err)
	assert.True(t, res.Notified)

	msgs := f.dispatcher.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "U-direct", msgs[0].TargetUserID)
	assert.Equal(t, "U-profile", msgs[1].TargetUserID)
	assert.Equal(t, "Open House", msgs[1].ActivityName)
	assert.Equal(t, "ช่องบริการ 1", msgs[1].ChannelName)
	assert.Equal(t, "2", msgs[1].DisplayQueueNumber)
	assert.Equal(t, "Engineering", msgs[1].Course)
}

func TestNotificationToggleOff(t *testing.T) {
	f := newFixture(t)
	r, err := f.regs.Register(f.ctx, f.activity.ID, RegisterInput{
		FullName: "Quiet", NationalID: "1001", Course: "Engineering", LineUserID: "U1",
	})
	require.NoError(t, err)
	_, err = f.assigner.AssignQueue(f.ctx, r.ID, f.activity.ID)
	require.NoError(t, err)
	ch := f.channel("Engineering")

	settings := NewStoredSettings(f.store, DefaultSettings(), nil)
	require.NoError(t, settings.Save(f.ctx, Settings{OnQueueCall: false}))
	c := NewController(f.store, f.broker, f.dispatcher, settings, nil)

	res, err := c.CallNext(f.ctx, ch.ID)
	require.NoError(t, err)
	assert.False(t, res.Notified)
	assert.Empty(t, res.Warning)
	assert.Empty(t, f.dispatcher.messages())
}

func TestNotificationFailureKeepsCall(t *testing.T) {
	f := newFixture(t)
	r, err := f.regs.Register(f.ctx, f.activity.ID, RegisterInput{
		FullName: "Unlucky", NationalID: "1001", Course: "Engineering", LineUserID: "U1",
	})
	require.NoError(t, err)
	_, err = f.assigner.AssignQueue(f.ctx, r.ID, f.activity.ID)
	require.NoError(t, err)
	ch := f.channel("Engineering")
	f.dispatcher.err = errors.New("line api error 500")

	res, err := f.controller.CallNext(f.ctx, ch.ID)
	require.NoError(t, err)
	assert.False(t, res.Notified)
	assert.Contains(t, res.Warning, "line api error 500")

	shown := f.reloadChannel(ch.ID)
	assert.Equal(t, 1, *shown.CurrentQueueNumber)
	assert.Equal(t, "Unlucky", *shown.CurrentStudentName)
	assert.NotNil(t, f.reload(r.ID).CalledAt)
}

func TestCallPublishesChannelChange(t *testing.T) {
	f := newFixture(t)
	f.checkIn("1001", "Engineering")
	ch := f.channel("Engineering")

	sub, err := f.broker.Subscribe(f.ctx, f.activity.ID)
	require.NoError(t, err)
	defer sub.Close()

	_, err = f.controller.CallNext(f.ctx, ch.ID)
	require.NoError(t, err)

	select {
	case evt := <-sub.C:
		assert.Equal(t, feed.KindCalled, evt.Kind)
		assert.Equal(t, ch.ID, evt.ChannelID)
	case <-time.After(time.Second):
		t.Fatal("no change event")
	}
}

func TestConcurrentChannelsNeverServeTheSameRegistrant(t *testing.T) {
	assertConcurrentCallsServeOnce(t, newFixture(t))
}

func assertConcurrentCallsServeOnce(t *testing.T, f *fixture) {
	t.Helper()
	const n = 30
	for i := 0; i < n; i++ {
		f.checkIn(string(rune('A'+i%26))+string(rune('a'+i/26)), "Engineering")
	}
	channels := []Channel{f.channel("Engineering"), f.channel("Engineering"), f.channel("Engineering")}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		served = map[string]int{}
	)
	for _, ch := range channels {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for {
				res, err := f.controller.CallNext(f.ctx, id)
				if errors.Is(err, ErrNoWaitingRegistrants) {
					return
				}
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				served[res.Registration.ID]++
				mu.Unlock()
			}
		}(ch.ID)
	}
	wg.Wait()

	assert.Len(t, served, n)
	for id, count := range served {
		assert.Equal(t, 1, count, "registration %s served %d times", id, count)
	}
}
