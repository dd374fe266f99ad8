package checkin

import (
	"errors"
	"fmt"
)

// Sentinels for every rejected operation. Callers match with errors.Is; the
// operator-facing text comes from *Error.
var (
	ErrNotFoundOrMismatch    = errors.New("registration not found in this activity")
	ErrAlreadyQueued         = errors.New("registration already queued")
	ErrNoCourseAssigned      = errors.New("registration has no course")
	ErrNoCourseConfigured    = errors.New("channel has no serving course")
	ErrNoWaitingRegistrants  = errors.New("no waiting registrants")
	ErrNothingToRecall       = errors.New("nothing to recall")
	ErrRegistrantNotFound    = errors.New("registrant not found")
	ErrQueueNotFound         = errors.New("queue not found")
	ErrChannelNotFound       = errors.New("channel not found")
	ErrActivityNotFound      = errors.New("activity not found")
	ErrDuplicateRegistration = errors.New("already registered for this activity")
	ErrInvalidInput          = errors.New("invalid input")
)

// Error is a rejected operation with a message that identifies what was
// being looked at (queue number, label, course).
type Error struct {
	Err         error
	Msg         string
	QueueNumber int
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Err }

func newError(sentinel error, format string, args ...any) *Error {
	return &Error{Err: sentinel, Msg: fmt.Sprintf(format, args...)}
}

// Kind groups errors for transport mapping.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNoCourseAssigned),
		errors.Is(err, ErrNoCourseConfigured),
		errors.Is(err, ErrCameraUnavailable):
		return KindValidation
	case errors.Is(err, ErrNotFoundOrMismatch),
		errors.Is(err, ErrRegistrantNotFound),
		errors.Is(err, ErrQueueNotFound),
		errors.Is(err, ErrChannelNotFound),
		errors.Is(err, ErrActivityNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyQueued),
		errors.Is(err, ErrNoWaitingRegistrants),
		errors.Is(err, ErrNothingToRecall),
		errors.Is(err, ErrDuplicateRegistration):
		return KindConflict
	}
	return KindInternal
}
