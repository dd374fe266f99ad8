package checkin

import (
	"fmt"
	"strconv"
	"time"
)

// Status is the lifecycle state of a registration.
type Status string

const (
	StatusRegistered Status = "registered"
	StatusCheckedIn  Status = "checked-in"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusWaitlisted Status = "waitlisted"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusRegistered, StatusCheckedIn, StatusCompleted, StatusCancelled, StatusWaitlisted:
		return true
	}
	return false
}

// ActivityType distinguishes seat-based events from course queues.
type ActivityType string

const (
	ActivityEvent ActivityType = "event"
	ActivityQueue ActivityType = "queue"
)

// Activity is the event students register for.
type Activity struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Type      ActivityType `json:"type"`
	Courses   []string     `json:"courses"`
	CreatedAt time.Time    `json:"createdAt"`

	// lastChannelNumber is the high-water mark of channel numbers ever handed out.
	lastChannelNumber int
}

// Registration is one student's sign-up for one activity.
type Registration struct {
	ID                 string     `json:"id"`
	ActivityID         string     `json:"activityId"`
	FullName           string     `json:"fullName"`
	StudentID          string     `json:"studentId"`
	NationalID         string     `json:"nationalId"`
	Course             *string    `json:"course"`
	Status             Status     `json:"status"`
	QueueNumber        *int       `json:"queueNumber"`
	DisplayQueueNumber string     `json:"displayQueueNumber"`
	CalledAt           *time.Time `json:"calledAt"`
	LineUserID         *string    `json:"lineUserId"`
	CreatedAt          time.Time  `json:"createdAt"`
}

// CourseName returns the course label or "" when none is assigned.
func (r Registration) CourseName() string {
	if r.Course == nil {
		return ""
	}
	return *r.Course
}

// Called reports whether any channel has announced this registrant.
func (r Registration) Called() bool { return r.CalledAt != nil }

// Channel is a service point that calls registrants of one course.
type Channel struct {
	ID                        string    `json:"id"`
	ActivityID                string    `json:"activityId"`
	ChannelNumber             int       `json:"channelNumber"`
	ChannelName               string    `json:"channelName"`
	ServingCourse             *string   `json:"servingCourse"`
	CurrentQueueNumber        *int      `json:"currentQueueNumber"`
	CurrentDisplayQueueNumber *string   `json:"currentDisplayQueueNumber"`
	CurrentStudentName        *string   `json:"currentStudentName"`
	UpdatedAt                 time.Time `json:"updatedAt"`
}

// DefaultChannelName is the label a new channel starts with.
func DefaultChannelName(number int) string {
	return fmt.Sprintf("ช่องบริการ %d", number)
}

// Profile links a national ID to a LINE user.
type Profile struct {
	NationalID string    `json:"nationalId"`
	LineUserID string    `json:"lineUserId"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Settings are the process-wide notification switches.
type Settings struct {
	OnQueueCall bool `json:"onQueueCall"`
}

// DefaultSettings applies when nothing has been stored yet.
func DefaultSettings() Settings {
	return Settings{OnQueueCall: true}
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func formatQueueNumber(n int) string { return strconv.Itoa(n) }
