package checkin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateActivity(t *testing.T) {
	f := newFixture(t)

	a, err := f.regs.CreateActivity(f.ctx, "  Fair ", "", []string{" Law ", "", "Arts"})
	require.NoError(t, err)
	assert.Equal(t, "Fair", a.Name)
	assert.Equal(t, ActivityQueue, a.Type)
	assert.Equal(t, []string{"Law", "Arts"}, a.Courses)

	_, err = f.regs.CreateActivity(f.ctx, " ", ActivityQueue, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.regs.CreateActivity(f.ctx, "Concert", ActivityType("seated"), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err := f.regs.Activity(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	_, err = f.regs.Activity(f.ctx, "missing")
	assert.ErrorIs(t, err, ErrActivityNotFound)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	r := f.register("1001", "Engineering")
	assert.Equal(t, StatusRegistered, r.Status)
	assert.Nil(t, r.QueueNumber)

	_, err := f.regs.Register(f.ctx, f.activity.ID, RegisterInput{FullName: "Again", NationalID: "1001"})
	assert.ErrorIs(t, err, ErrDuplicateRegistration)

	_, err = f.regs.Register(f.ctx, f.activity.ID, RegisterInput{FullName: "", NationalID: "1002"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.regs.Register(f.ctx, "missing", RegisterInput{FullName: "X", NationalID: "1003"})
	assert.ErrorIs(t, err, ErrActivityNotFound)
}

func TestRegisterReplacesCancelled(t *testing.T) {
	f := newFixture(t)
	r := f.register("1001", "Engineering")
	require.NoError(t, f.store.InTx(f.ctx, func(tx Tx) error {
		r.Status = StatusCancelled
		return tx.UpdateRegistration(f.ctx, r)
	}))

	again, err := f.regs.Register(f.ctx, f.activity.ID, RegisterInput{FullName: "Back", NationalID: "1001", Course: "Science"})
	require.NoError(t, err)
	assert.NotEqual(t, r.ID, again.ID)
}

func TestDedupeByNationalID(t *testing.T) {
	t0 := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	regs := []Registration{
		{ID: "b", NationalID: "2", CreatedAt: t0.Add(time.Minute)},
		{ID: "a-old", NationalID: "1", CreatedAt: t0},
		{ID: "a-new", NationalID: "1", CreatedAt: t0.Add(2 * time.Minute)},
	}
	out := DedupeByNationalID(regs)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, "a-new", out[1].ID)
}

func TestSetDisplayQueueNumber(t *testing.T) {
	f := newFixture(t)
	r := f.register("1001", "Engineering")

	got, err := f.regs.SetDisplayQueueNumber(f.ctx, r.ID, " vip3 ")
	require.NoError(t, err)
	assert.Equal(t, "VIP3", got.DisplayQueueNumber)
	assert.Equal(t, "VIP3", f.reload(r.ID).DisplayQueueNumber)

	_, err = f.regs.SetDisplayQueueNumber(f.ctx, r.ID, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.regs.SetDisplayQueueNumber(f.ctx, "missing", "A1")
	assert.ErrorIs(t, err, ErrNotFoundOrMismatch)
}

func TestLinkProfileAndSettings(t *testing.T) {
	f := newFixture(t)
	p, err := f.regs.LinkProfile(f.ctx, " 1001 ", "U123")
	require.NoError(t, err)
	assert.Equal(t, "1001", p.NationalID)

	stored, err := f.store.Profile(f.ctx, "1001")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "U123", stored.LineUserID)

	_, err = f.regs.LinkProfile(f.ctx, "1001", "")
	assert.ErrorIs(t, err, ErrInvalidInput)

	settings := NewStoredSettings(f.store, DefaultSettings(), nil)
	got, err := settings.NotificationSettings(f.ctx)
	require.NoError(t, err)
	assert.True(t, got.OnQueueCall)

	require.NoError(t, settings.Save(f.ctx, Settings{OnQueueCall: false}))
	got, err = settings.NotificationSettings(f.ctx)
	require.NoError(t, err)
	assert.False(t, got.OnQueueCall)
}
