package checkin

import (
	"context"
	"net/url"
	"path"
	"strings"
	"time"
)

// DefaultResetDelay is how long an intake outcome stays on screen.
const DefaultResetDelay = 5 * time.Second

// Intake resolves a scanned code or a national ID to a registration of the
// current activity and checks it in.
type Intake struct {
	assigner   *Assigner
	store      Store
	resetDelay time.Duration
}

// NewIntake creates the intake flow.
func NewIntake(assigner *Assigner, store Store, resetDelay time.Duration) *Intake {
	if resetDelay <= 0 {
		resetDelay = DefaultResetDelay
	}
	return &Intake{assigner: assigner, store: store, resetDelay: resetDelay}
}

// ResetDelay is how long clients keep showing a result before accepting the next one.
func (i *Intake) ResetDelay() time.Duration { return i.resetDelay }

// Scan checks in the registration a QR payload points to.
func (i *Intake) Scan(ctx context.Context, activityID, payload string) (Assignment, error) {
	id, err := DecodePayload(payload)
	if err != nil {
		return Assignment{}, err
	}
	return i.assigner.AssignQueue(ctx, id, activityID)
}

// Search checks in the registration of this activity with exactly this national ID.
func (i *Intake) Search(ctx context.Context, activityID, nationalID string) (Assignment, error) {
	nationalID = strings.TrimSpace(nationalID)
	if nationalID == "" {
		return Assignment{}, newError(ErrInvalidInput, "enter a national ID to search")
	}
	reg, err := i.store.RegistrationByNationalID(ctx, activityID, nationalID)
	if err != nil {
		return Assignment{}, err
	}
	if reg == nil {
		return Assignment{}, newError(ErrNotFoundOrMismatch, "no registration for national ID %s in this activity", nationalID)
	}
	return i.assigner.AssignQueue(ctx, reg.ID, activityID)
}

// DecodePayload extracts a registration ID from a QR payload. The payload is
// either the bare ID or a link carrying it as the id/registrationId query
// parameter or as the last path segment.
func DecodePayload(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return "", newError(ErrInvalidInput, "empty QR code")
	}
	if !strings.Contains(payload, "/") && !strings.Contains(payload, "=") {
		return payload, nil
	}

	u, err := url.Parse(payload)
	if err != nil {
		return "", newError(ErrInvalidInput, "unreadable QR code")
	}
	q := u.Query()
	if u.RawQuery == "" && u.Scheme == "" && strings.Contains(payload, "=") {
		q, _ = url.ParseQuery(payload)
	}
	for _, key := range []string{"registrationId", "id"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			return v, nil
		}
	}
	if last := path.Base(strings.TrimRight(u.Path, "/")); last != "" && last != "." && last != "/" {
		return last, nil
	}
	return "", newError(ErrInvalidInput, "QR code does not contain a registration")
}
