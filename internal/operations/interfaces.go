package operations

// WebSocketHub interface for sending WebSocket messages
type WebSocketHub interface {
	BroadcastUpdate(eventType, step, status string, metadata interface{})
}

// RunStore keeps finished runs
type RunStore interface {
	Save(record RunRecord) error
	Get(id string) (RunRecord, error)
	List(limit int) []RunRecord
}
