package operations

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/analysis"
)

func now() time.Time { return time.Now() }

func TestNewOrchestratorState(t *testing.T) {
	s := NewOrchestratorState()

	assert.False(t, s.IsRunning)
	assert.Equal(t, -1, s.CurrentIndex)
	assert.Nil(t, s.CurrentAnalysis)
	require.Len(t, s.Analyses, len(analysis.Sequence))
	for i, st := range s.Ordered() {
		assert.Equal(t, analysis.Sequence[i], st.Kind)
		assert.Equal(t, StatusPending, st.State)
		assert.Nil(t, st.StartTime)
	}
}

func TestOrchestratorState_CloneIsIndependent(t *testing.T) {
	s := NewOrchestratorState()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	kind := analysis.KindSSL
	s.StartTime = &start
	s.CurrentAnalysis = &kind
	require.NoError(t, s.Analyses[kind].begin(start))

	c := s.Clone()
	*c.StartTime = start.Add(time.Hour)
	*c.CurrentAnalysis = analysis.KindDNS
	require.NoError(t, c.Analyses[kind].succeed(start.Add(time.Second), "ok"))

	assert.Equal(t, start, *s.StartTime)
	assert.Equal(t, analysis.KindSSL, *s.CurrentAnalysis)
	assert.Equal(t, StatusRunning, s.Analyses[kind].State)
	assert.Nil(t, s.Analyses[kind].EndTime)
}

func TestOrchestratorState_Stats(t *testing.T) {
	s := NewOrchestratorState()
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.StartTime = &t0

	for i, kind := range analysis.Sequence[:4] {
		require.NoError(t, s.Analyses[kind].begin(t0))
		at := t0.Add(time.Duration(i+1) * time.Second)
		if i%2 == 0 {
			require.NoError(t, s.Analyses[kind].succeed(at, i))
		} else {
			require.NoError(t, s.Analyses[kind].fail(at, "down"))
		}
	}
	require.NoError(t, s.Analyses[analysis.Sequence[4]].begin(t0))

	stats := s.Stats()
	assert.Equal(t, 8, stats.Total)
	assert.Equal(t, 4, stats.Completed)
	assert.Equal(t, 2, stats.Success)
	assert.Equal(t, 2, stats.Failed)
	assert.Nil(t, stats.TotalDuration)

	end := t0.Add(90 * time.Second)
	s.EndTime = &end
	stats = s.Stats()
	require.NotNil(t, stats.TotalDuration)
	assert.Equal(t, 90*time.Second, *stats.TotalDuration)
}

func TestStats_JSONInMilliseconds(t *testing.T) {
	d := 1500 * time.Millisecond
	data, err := json.Marshal(Stats{Total: 8, Completed: 8, Success: 7, Failed: 1, TotalDuration: &d})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":8,"completed":8,"success":7,"failed":1,"total_duration":1500}`, string(data))

	data, err = json.Marshal(Stats{Total: 8})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":8,"completed":0,"success":0,"failed":0,"total_duration":null}`, string(data))
}

func TestAnalysisStatus_JSON(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	st := newAnalysisStatus(analysis.KindDNS)
	require.NoError(t, st.begin(t0))
	require.NoError(t, st.succeed(t0.Add(250*time.Millisecond), map[string]int{"records": 3}))

	data, err := json.Marshal(st)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "dns", decoded["kind"])
	assert.Equal(t, "success", decoded["state"])
	assert.EqualValues(t, 250, decoded["duration"])
	assert.EqualValues(t, 100, decoded["progress"])
	assert.NotContains(t, decoded, "error")
}
