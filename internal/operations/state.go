package operations

import (
	"encoding/json"
	"time"

	"sitepulse/internal/analysis"
)

// AnalysisStatus is the record of one kind within a run
type AnalysisStatus struct {
	Kind      analysis.Kind  `json:"kind"`
	State     Status         `json:"state"`
	StartTime *time.Time     `json:"start_time"`
	EndTime   *time.Time     `json:"end_time"`
	Duration  *time.Duration `json:"-"`
	Data      any            `json:"data"`
	Error     string         `json:"error,omitempty"`
	Progress  int            `json:"progress"`
}

// MarshalJSON reports Duration in milliseconds
func (a AnalysisStatus) MarshalJSON() ([]byte, error) {
	type alias AnalysisStatus
	var ms *int64
	if a.Duration != nil {
		v := a.Duration.Milliseconds()
		ms = &v
	}
	return json.Marshal(struct {
		alias
		Duration *int64 `json:"duration"`
	}{alias(a), ms})
}

func newAnalysisStatus(kind analysis.Kind) *AnalysisStatus {
	return &AnalysisStatus{Kind: kind, State: StatusPending}
}

// begin moves the record to running
func (a *AnalysisStatus) begin(at time.Time) error {
	if err := checkTransition(a.State, StatusRunning); err != nil {
		return err
	}
	a.State = StatusRunning
	a.StartTime = &at
	a.Progress = 0
	return nil
}

// succeed settles the record with data
func (a *AnalysisStatus) succeed(at time.Time, data any) error {
	if err := checkTransition(a.State, StatusSuccess); err != nil {
		return err
	}
	a.State = StatusSuccess
	a.Data = data
	a.Error = ""
	a.Progress = 100
	a.settle(at)
	return nil
}

// fail settles the record with an error message
func (a *AnalysisStatus) fail(at time.Time, message string) error {
	if err := checkTransition(a.State, StatusError); err != nil {
		return err
	}
	if message == "" {
		message = "analysis failed"
	}
	a.State = StatusError
	a.Data = nil
	a.Error = message
	a.Progress = 0
	a.settle(at)
	return nil
}

func (a *AnalysisStatus) settle(at time.Time) {
	a.EndTime = &at
	d := at.Sub(*a.StartTime)
	a.Duration = &d
}

func (a *AnalysisStatus) clone() *AnalysisStatus {
	c := *a
	if a.StartTime != nil {
		t := *a.StartTime
		c.StartTime = &t
	}
	if a.EndTime != nil {
		t := *a.EndTime
		c.EndTime = &t
	}
	if a.Duration != nil {
		d := *a.Duration
		c.Duration = &d
	}
	return &c
}

// OrchestratorState is the aggregate state of the current or last run
type OrchestratorState struct {
	RunID           string                            `json:"run_id,omitempty"`
	URL             string                            `json:"url"`
	IsRunning       bool                              `json:"is_running"`
	CurrentAnalysis *analysis.Kind                    `json:"current_analysis"`
	CurrentIndex    int                               `json:"current_index"`
	StartTime       *time.Time                        `json:"start_time"`
	EndTime         *time.Time                        `json:"end_time"`
	Analyses        map[analysis.Kind]*AnalysisStatus `json:"analyses"`
}

// NewOrchestratorState returns the idle state with every kind pending
func NewOrchestratorState() *OrchestratorState {
	s := &OrchestratorState{
		CurrentIndex: -1,
		Analyses:     make(map[analysis.Kind]*AnalysisStatus, len(analysis.Sequence)),
	}
	for _, kind := range analysis.Sequence {
		s.Analyses[kind] = newAnalysisStatus(kind)
	}
	return s
}

// Clone creates a deep copy of the state. Result payloads are shared; they
// are plain values that are never mutated after a kind settles.
func (s *OrchestratorState) Clone() *OrchestratorState {
	c := *s
	if s.CurrentAnalysis != nil {
		k := *s.CurrentAnalysis
		c.CurrentAnalysis = &k
	}
	if s.StartTime != nil {
		t := *s.StartTime
		c.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	c.Analyses = make(map[analysis.Kind]*AnalysisStatus, len(s.Analyses))
	for k, v := range s.Analyses {
		c.Analyses[k] = v.clone()
	}
	return &c
}

// Ordered returns the per-kind records in sequence order
func (s *OrchestratorState) Ordered() []*AnalysisStatus {
	out := make([]*AnalysisStatus, 0, len(analysis.Sequence))
	for _, kind := range analysis.Sequence {
		if st, ok := s.Analyses[kind]; ok {
			out = append(out, st)
		}
	}
	return out
}

// Stats summarizes a run
type Stats struct {
	Total         int            `json:"total"`
	Completed     int            `json:"completed"`
	Success       int            `json:"success"`
	Failed        int            `json:"failed"`
	TotalDuration *time.Duration `json:"-"`
}

// MarshalJSON reports TotalDuration in milliseconds
func (s Stats) MarshalJSON() ([]byte, error) {
	type alias Stats
	var ms *int64
	if s.TotalDuration != nil {
		v := s.TotalDuration.Milliseconds()
		ms = &v
	}
	return json.Marshal(struct {
		alias
		TotalDuration *int64 `json:"total_duration"`
	}{alias(s), ms})
}

// Stats derives the summary from s
func (s *OrchestratorState) Stats() Stats {
	stats := Stats{Total: len(analysis.Sequence)}
	for _, st := range s.Analyses {
		switch st.State {
		case StatusSuccess:
			stats.Success++
			stats.Completed++
		case StatusError:
			stats.Failed++
			stats.Completed++
		}
	}
	if s.StartTime != nil && s.EndTime != nil {
		d := s.EndTime.Sub(*s.StartTime)
		stats.TotalDuration = &d
	}
	return stats
}
