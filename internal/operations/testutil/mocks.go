package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Broadcast is one message handed to a RecordingHub. Subject is the run ID
// for snapshots and the analysis kind for task and toast events.
type Broadcast struct {
	Event   string
	Subject string
	Status  string
	Payload interface{}
	At      time.Time
}

// RecordingHub stands in for the WebSocket hub and keeps every broadcast
type RecordingHub struct {
	mu         sync.Mutex
	broadcasts []Broadcast
}

// BroadcastUpdate records the message
func (h *RecordingHub) BroadcastUpdate(eventType, subject, status string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcasts = append(h.broadcasts, Broadcast{
		Event:   eventType,
		Subject: subject,
		Status:  status,
		Payload: payload,
		At:      time.Now(),
	})
}

// Broadcasts returns a copy of everything recorded so far
func (h *RecordingHub) Broadcasts() []Broadcast {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Broadcast(nil), h.broadcasts...)
}

// Of returns the recorded broadcasts of one event type, in order
func (h *RecordingHub) Of(eventType string) []Broadcast {
	var out []Broadcast
	for _, b := range h.Broadcasts() {
		if b.Event == eventType {
			out = append(out, b)
		}
	}
	return out
}

// Statuses lists the status field of every broadcast of eventType
func (h *RecordingHub) Statuses(eventType string) []string {
	matches := h.Of(eventType)
	out := make([]string, 0, len(matches))
	for _, b := range matches {
		out = append(out, b.Status)
	}
	return out
}

// Reset forgets all recorded broadcasts
func (h *RecordingHub) Reset() {
	h.mu.Lock()
	h.broadcasts = nil
	h.mu.Unlock()
}

// AssertBroadcastCount checks how many broadcasts of eventType were recorded
func AssertBroadcastCount(t *testing.T, hub *RecordingHub, eventType string, expected int) bool {
	t.Helper()
	return assert.Len(t, hub.Of(eventType), expected, "broadcasts of %s", eventType)
}
