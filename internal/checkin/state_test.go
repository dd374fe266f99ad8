package checkin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateOf(t *testing.T) {
	empty := ""
	course := "Engineering"

	assert.Equal(t, StateUnconfigured, StateOf(Channel{}))
	assert.Equal(t, StateUnconfigured, StateOf(Channel{ServingCourse: &empty, CurrentQueueNumber: intPtr(3)}))
	assert.Equal(t, StateIdle, StateOf(Channel{ServingCourse: &course}))
	assert.Equal(t, StateServing, StateOf(Channel{ServingCourse: &course, CurrentQueueNumber: intPtr(1)}))
}

func TestCanPerform(t *testing.T) {
	tests := []struct {
		state  ChannelState
		action Action
		want   error
	}{
		{StateUnconfigured, ActionCallNext, ErrNoCourseConfigured},
		{StateUnconfigured, ActionRecall, ErrNoCourseConfigured},
		{StateUnconfigured, ActionInsert, ErrNoCourseConfigured},
		{StateIdle, ActionCallNext, nil},
		{StateIdle, ActionRecall, ErrNothingToRecall},
		{StateIdle, ActionInsert, nil},
		{StateServing, ActionCallNext, nil},
		{StateServing, ActionRecall, nil},
		{StateServing, ActionInsert, nil},
		{StateServing, Action("skip"), ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.state.String()+"/"+string(tt.action), func(t *testing.T) {
			err := CanPerform(tt.state, tt.action)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(newError(ErrNoCourseConfigured, "x")))
	assert.Equal(t, KindNotFound, KindOf(newError(ErrQueueNotFound, "x")))
	assert.Equal(t, KindConflict, KindOf(newError(ErrAlreadyQueued, "x")))
	assert.Equal(t, KindInternal, KindOf(assert.AnError))
}
