package operations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Transitions(t *testing.T) {
	all := []Status{StatusPending, StatusRunning, StatusSuccess, StatusError}
	allowed := map[Status]map[Status]bool{
		StatusPending: {StatusRunning: true},
		StatusRunning: {StatusSuccess: true, StatusError: true},
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[from][to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestStatus_TerminalAndBadge(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
		badge    string
	}{
		{StatusPending, false, "○"},
		{StatusRunning, false, "◐"},
		{StatusSuccess, true, "✓"},
		{StatusError, true, "✗"},
		{Status("bogus"), false, "○"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
			assert.Equal(t, tt.badge, tt.status.Badge())
		})
	}
}

func TestAnalysisStatus_RejectsInvalidTransitions(t *testing.T) {
	st := newAnalysisStatus("dns")

	require.ErrorIs(t, st.succeed(now(), "data"), ErrInvalidTransition, "pending cannot settle")
	require.NoError(t, st.begin(now()))
	require.ErrorIs(t, st.begin(now()), ErrInvalidTransition)
	require.NoError(t, st.fail(now(), ""))
	assert.Equal(t, "analysis failed", st.Error)
	assert.ErrorIs(t, st.succeed(now(), "data"), ErrInvalidTransition, "terminal needs a reset")
	assert.Equal(t, StatusError, st.State)
}
