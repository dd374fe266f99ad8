package checkin

// ChannelState is derived from a channel's stored fields; it is never stored.
type ChannelState int

const (
	// StateUnconfigured: no serving course, calling is disabled.
	StateUnconfigured ChannelState = iota
	// StateIdle: a course is set but nobody has been called yet.
	StateIdle
	// StateServing: the channel shows a registrant.
	StateServing
)

func (s ChannelState) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateIdle:
		return "idle"
	case StateServing:
		return "serving"
	}
	return "unknown"
}

// Action is an operator command on a channel.
type Action string

const (
	ActionCallNext Action = "call-next"
	ActionRecall   Action = "recall"
	ActionInsert   Action = "insert"
)

// StateOf derives the channel state.
func StateOf(c Channel) ChannelState {
	switch {
	case c.ServingCourse == nil || *c.ServingCourse == "":
		return StateUnconfigured
	case c.CurrentQueueNumber == nil:
		return StateIdle
	default:
		return StateServing
	}
}

// CanPerform is the transition table: it returns nil when action is allowed
// in state s, or the rejection the operator sees.
func CanPerform(s ChannelState, action Action) error {
	switch action {
	case ActionCallNext, ActionRecall, ActionInsert:
	default:
		return newError(ErrInvalidInput, "unknown action %q", action)
	}
	if s == StateUnconfigured {
		return newError(ErrNoCourseConfigured, "select a serving course for this channel before calling")
	}
	if action == ActionRecall && s != StateServing {
		return newError(ErrNothingToRecall, "no queue has been called on this channel yet")
	}
	return nil
}
