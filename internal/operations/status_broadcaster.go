package operations

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sitepulse/internal/analysis"
	"sitepulse/internal/infrastructure"
)

// Event types pushed to WebSocket clients
const (
	EventAnalysisSnapshot = "analysis:snapshot"
	EventAnalysisToast    = "analysis:toast"
	EventTaskUpdate       = "analysis:task"
)

// Snapshot is the complete orchestrator state at a point in time.
// It is the only state structure sent to the frontend.
type Snapshot struct {
	State     *OrchestratorState `json:"state"`
	Stats     Stats              `json:"stats"`
	Progress  int                `json:"progress"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// StatusBroadcaster serializes snapshot and toast delivery to the hub.
// Updates are applied by a single goroutine in the order they were sent.
type StatusBroadcaster struct {
	mu     sync.RWMutex
	last   *Snapshot
	hub    WebSocketHub
	logger *slog.Logger

	updates  chan func()
	stop     chan struct{}
	stopOnce sync.Once
}

// NewStatusBroadcaster creates a new status broadcaster
func NewStatusBroadcaster(hub WebSocketHub, logger *slog.Logger) *StatusBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}

	sb := &StatusBroadcaster{
		hub:     hub,
		logger:  infrastructure.WithComponent(logger, "status_broadcaster"),
		updates: make(chan func(), 100),
		stop:    make(chan struct{}),
	}

	go sb.processUpdates()

	return sb
}

// processUpdates handles all updates sequentially
func (sb *StatusBroadcaster) processUpdates() {
	for {
		select {
		case <-sb.stop:
			return
		case fn := <-sb.updates:
			select {
			case <-sb.stop:
				return
			default:
				fn()
			}
		}
	}
}

// enqueue runs fn on the update goroutine and waits for it
func (sb *StatusBroadcaster) enqueue(fn func()) {
	select {
	case <-sb.stop:
		return
	default:
	}

	done := make(chan struct{})
	select {
	case sb.updates <- func() { defer close(done); fn() }:
	case <-sb.stop:
		return
	}
	select {
	case <-done:
	case <-sb.stop:
	}
}

// PublishState records state as the latest snapshot and pushes it
func (sb *StatusBroadcaster) PublishState(state *OrchestratorState) {
	snapshot := &Snapshot{
		State:     state,
		Stats:     state.Stats(),
		Progress:  progressOf(state),
		UpdatedAt: time.Now(),
	}

	sb.enqueue(func() {
		sb.mu.Lock()
		sb.last = snapshot
		sb.mu.Unlock()

		if sb.hub == nil {
			return
		}
		sb.logger.Debug("broadcasting analysis snapshot",
			slog.String("run_id", state.RunID),
			slog.Bool("is_running", state.IsRunning),
			slog.Int("progress", snapshot.Progress))
		sb.hub.BroadcastUpdate(EventAnalysisSnapshot, state.RunID, runStatus(state), snapshot)
	})
}

// PublishTask pushes a single task view, used after manual reruns
func (sb *StatusBroadcaster) PublishTask(view analysis.View) {
	sb.enqueue(func() {
		if sb.hub == nil {
			return
		}
		status := "idle"
		if view.Busy {
			status = "busy"
		}
		sb.hub.BroadcastUpdate(EventTaskUpdate, string(view.Kind), status, view)
	})
}

// Notify implements analysis.Notifier by pushing the toast to clients
func (sb *StatusBroadcaster) Notify(_ context.Context, toast analysis.Toast) {
	sb.enqueue(func() {
		if sb.hub == nil {
			return
		}
		sb.hub.BroadcastUpdate(EventAnalysisToast, string(toast.Kind), string(toast.Level), toast)
	})
}

// LastSnapshot returns the most recent snapshot, if any
func (sb *StatusBroadcaster) LastSnapshot() (*Snapshot, bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	if sb.last == nil {
		return nil, false
	}
	snapshot := *sb.last
	snapshot.State = sb.last.State.Clone()
	return &snapshot, true
}

// Stop gracefully shuts down the broadcaster
func (sb *StatusBroadcaster) Stop() {
	sb.stopOnce.Do(func() { close(sb.stop) })
}

func runStatus(state *OrchestratorState) string {
	switch {
	case state.IsRunning:
		return "running"
	case state.EndTime != nil:
		return "completed"
	default:
		return "idle"
	}
}

func progressOf(state *OrchestratorState) int {
	if len(state.Analyses) == 0 {
		return 0
	}
	return state.Stats().Completed * 100 / len(analysis.Sequence)
}
