package checkin

import (
	"context"
)

// Store is the shared document store every operator session goes through.
// Mutations that depend on a prior read run inside InTx.
type Store interface {
	// InTx runs fn in a single transaction. fn must only use tx; calling
	// other Store methods from inside fn is not allowed.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	CreateActivity(ctx context.Context, a Activity) (Activity, error)
	Activity(ctx context.Context, id string) (*Activity, error)

	Registration(ctx context.Context, id string) (*Registration, error)
	RegistrationsByActivity(ctx context.Context, activityID string) ([]Registration, error)
	RegistrationByNationalID(ctx context.Context, activityID, nationalID string) (*Registration, error)

	Channels(ctx context.Context, activityID string) ([]Channel, error)
	Channel(ctx context.Context, id string) (*Channel, error)

	Profile(ctx context.Context, nationalID string) (*Profile, error)
	UpsertProfile(ctx context.Context, p Profile) error

	Settings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// Tx is the transactional view of the store. Point reads lock the row they
// return until the transaction ends; lookups return nil when nothing matches.
type Tx interface {
	// Lock serializes transactions that use the same key.
	Lock(ctx context.Context, key string) error

	Registration(ctx context.Context, id string) (*Registration, error)
	RegistrationByNationalID(ctx context.Context, activityID, nationalID string) (*Registration, error)
	CountCheckedIn(ctx context.Context, activityID, course string) (int, error)
	// NextWaiting returns the checked-in, uncalled registrant of the course
	// with the smallest queue number.
	NextWaiting(ctx context.Context, activityID, course string) (*Registration, error)
	RegistrationByQueueNumber(ctx context.Context, activityID, course string, queueNumber int) (*Registration, error)
	CheckedInByDisplayNumber(ctx context.Context, activityID, course, label string) (*Registration, error)
	InsertRegistration(ctx context.Context, r Registration) error
	UpdateRegistration(ctx context.Context, r Registration) error

	Channel(ctx context.Context, id string) (*Channel, error)
	// NextChannelNumber reserves max(existing, ever issued)+1 for the activity.
	NextChannelNumber(ctx context.Context, activityID string) (int, error)
	InsertChannel(ctx context.Context, c Channel) error
	UpdateChannel(ctx context.Context, c Channel) error
	DeleteChannel(ctx context.Context, id string) error
}

func courseLockKey(activityID, course string) string {
	return "course:" + activityID + ":" + course
}

func nationalIDLockKey(activityID, nationalID string) string {
	return "national-id:" + activityID + ":" + nationalID
}
