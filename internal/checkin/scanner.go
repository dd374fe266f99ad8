package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCameraUnavailable means the capture device could not be opened. Manual
// search keeps working.
var ErrCameraUnavailable = errors.New("camera unavailable")

// Camera is a capture device that produces QR decodes.
type Camera interface {
	Start(ctx context.Context) error
	Stop() error
}

// SessionState is where an intake station is in its scan cycle.
type SessionState int

const (
	SessionReady SessionState = iota
	SessionProcessing
	SessionShowing
)

func (s SessionState) String() string {
	switch s {
	case SessionReady:
		return "ready"
	case SessionProcessing:
		return "processing"
	case SessionShowing:
		return "showing"
	}
	return "unknown"
}

// Outcome is the result shown at the station after a scan or search.
type Outcome struct {
	Assignment *Assignment `json:"assignment,omitempty"`
	Err        error       `json:"-"`
	Message    string      `json:"message"`
	At         time.Time   `json:"at"`
}

// OK reports whether the outcome is a successful check-in.
func (o Outcome) OK() bool { return o.Err == nil && o.Assignment != nil }

// Timer is the reset timer handle; *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// SessionOption configures a ScannerSession.
type SessionOption func(*ScannerSession)

// WithAfterFunc replaces time.AfterFunc for the reset timer.
func WithAfterFunc(f func(time.Duration, func()) Timer) SessionOption {
	return func(s *ScannerSession) { s.afterFunc = f }
}

// WithClock replaces the clock used to stamp outcomes.
func WithClock(now func() time.Time) SessionOption {
	return func(s *ScannerSession) { s.now = now }
}

// ScannerSession is one operator's intake station. It accepts one code at a
// time, stops the camera as soon as a code decodes, and goes back to ready
// on its own after the intake reset delay.
type ScannerSession struct {
	intake     *Intake
	activityID string
	camera     Camera
	afterFunc  func(time.Duration, func()) Timer
	now        func() time.Time

	mu         sync.Mutex
	state      SessionState
	cameraOn   bool
	wantCamera bool
	closed     bool
	timer      Timer
	last       Outcome
	readyAt    time.Time
}

// NewScannerSession creates a station for activityID. camera may be nil
// when codes are decoded elsewhere.
func NewScannerSession(intake *Intake, activityID string, camera Camera, opts ...SessionOption) *ScannerSession {
	s := &ScannerSession{
		intake:     intake,
		activityID: activityID,
		camera:     camera,
		afterFunc:  func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) },
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartCamera switches the station to camera mode.
func (s *ScannerSession) StartCamera(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return newError(ErrInvalidInput, "scanner session closed")
	}
	if s.camera == nil {
		return &Error{Err: ErrCameraUnavailable, Msg: "no camera on this station, use national ID search"}
	}
	if s.cameraOn {
		return nil
	}
	if err := s.camera.Start(ctx); err != nil {
		return &Error{Err: ErrCameraUnavailable, Msg: fmt.Sprintf("cannot open camera (%v), use national ID search", err)}
	}
	s.cameraOn = true
	s.wantCamera = true
	return nil
}

// StopCamera leaves camera mode and releases the device.
func (s *ScannerSession) StopCamera() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wantCamera = false
	return s.stopCameraLocked()
}

// HandleDecode processes a decoded QR payload. It returns false and does
// nothing when the station is not ready, which swallows repeated decodes of
// a code still in frame.
func (s *ScannerSession) HandleDecode(ctx context.Context, payload string) (Outcome, bool) {
	if !s.begin(true) {
		return s.Last(), false
	}
	a, err := s.intake.Scan(ctx, s.activityID, payload)
	return s.finish(a, err), true
}

// Search processes a manual national ID lookup.
func (s *ScannerSession) Search(ctx context.Context, nationalID string) (Outcome, bool) {
	if !s.begin(false) {
		return s.Last(), false
	}
	a, err := s.intake.Search(ctx, s.activityID, nationalID)
	return s.finish(a, err), true
}

func (s *ScannerSession) begin(fromCamera bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != SessionReady {
		return false
	}
	s.state = SessionProcessing
	if fromCamera {
		_ = s.stopCameraLocked()
	}
	return true
}

func (s *ScannerSession) finish(a Assignment, err error) Outcome {
	out := Outcome{Err: err, At: s.now()}
	if err != nil {
		out.Message = err.Error()
	} else {
		out.Assignment = &a
		out.Message = fmt.Sprintf("%s: queue %s (%s)", a.FullName, a.DisplayQueueNumber, a.Course)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = out
	if s.closed {
		return out
	}
	s.state = SessionShowing
	delay := s.intake.ResetDelay()
	s.readyAt = out.At.Add(delay)
	s.timer = s.afterFunc(delay, s.reset)
	return out
}

func (s *ScannerSession) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state != SessionShowing {
		return
	}
	s.state = SessionReady
	s.timer = nil
	s.readyAt = time.Time{}
	if s.wantCamera && s.camera != nil && !s.cameraOn {
		if err := s.camera.Start(context.Background()); err != nil {
			s.wantCamera = false
			s.last.Message = fmt.Sprintf("cannot reopen camera (%v), use national ID search", err)
			return
		}
		s.cameraOn = true
	}
}

// State returns the current state.
func (s *ScannerSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Last returns the most recent outcome.
func (s *ScannerSession) Last() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// ReadyIn reports how long until the station accepts the next code.
func (s *ScannerSession) ReadyIn() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionReady || s.readyAt.IsZero() {
		return 0
	}
	if d := s.readyAt.Sub(s.now()); d > 0 {
		return d
	}
	return 0
}

// CameraOn reports whether the capture device is held.
func (s *ScannerSession) CameraOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameraOn
}

// Close stops the reset timer and releases the camera.
func (s *ScannerSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	return s.stopCameraLocked()
}

func (s *ScannerSession) stopCameraLocked() error {
	if !s.cameraOn || s.camera == nil {
		return nil
	}
	s.cameraOn = false
	return s.camera.Stop()
}
