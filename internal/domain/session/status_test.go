package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusExited.Terminal())
	assert.True(t, StatusKilled.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.False(t, StatusUnspecified.Terminal())
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input string
		want  Status
	}{
		{"STARTING", StatusStarting},
		{"WAITING_FOR_WINDOW", StatusWaitingForWindow},
		{"WAITING_FOR_MODAL", StatusWaitingForModal},
		{"RUNNING", StatusRunning},
		{"EXITED", StatusExited},
		{"KILLED", StatusKilled},
		{"bogus", StatusUnspecified},
		{"", StatusUnspecified},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseStatus(tt.input))
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"unspecified to starting", StatusUnspecified, StatusStarting, true},
		{"unspecified skips ahead", StatusUnspecified, StatusRunning, false},
		{"starting to waiting for window", StatusStarting, StatusWaitingForWindow, true},
		{"starting dies immediately", StatusStarting, StatusExited, true},
		{"window wait to modal watch", StatusWaitingForWindow, StatusWaitingForModal, true},
		{"window wait straight to running", StatusWaitingForWindow, StatusRunning, true},
		{"window wait killed", StatusWaitingForWindow, StatusKilled, true},
		{"modal watch to running", StatusWaitingForModal, StatusRunning, true},
		{"modal watch back to window wait", StatusWaitingForModal, StatusWaitingForWindow, false},
		{"running to exited", StatusRunning, StatusExited, true},
		{"running to killed", StatusRunning, StatusKilled, true},
		{"exited is terminal", StatusExited, StatusRunning, false},
		{"killed is terminal", StatusKilled, StatusExited, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.from.validateTransition(tt.to)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
