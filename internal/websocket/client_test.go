package websocket

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"sitepulse/internal/config"
)

func TestNewClient_Timings(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.WebSocketConfig
		wantPing   time.Duration
		wantPongWt time.Duration
	}{
		{
			name:       "defaults",
			cfg:        config.WebSocketConfig{},
			wantPing:   54 * time.Second,
			wantPongWt: 60 * time.Second,
		},
		{
			name:       "configured",
			cfg:        config.WebSocketConfig{PingPeriod: 20 * time.Second, PongWait: 30 * time.Second},
			wantPing:   20 * time.Second,
			wantPongWt: 30 * time.Second,
		},
		{
			name:       "ping not shorter than pong wait",
			cfg:        config.WebSocketConfig{PingPeriod: 30 * time.Second, PongWait: 10 * time.Second},
			wantPing:   9 * time.Second,
			wantPongWt: 10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := asyncLogger()
			client := NewClient(NewHub(logger), NewMockConnection(), tt.cfg, logger)
			assert.Equal(t, tt.wantPing, client.pingPeriod)
			assert.Equal(t, tt.wantPongWt, client.pongWait)
			assert.NotEmpty(t, client.ID())
			assert.Equal(t, "127.0.0.1:8080", client.remoteAddr)
		})
	}
}

func TestIsHeartbeat(t *testing.T) {
	tests := []struct {
		message string
		want    bool
	}{
		{`{"type":"heartbeat"}`, true},
		{`{"type": "heartbeat", "ts": 1}`, true},
		{`{"type":"subscribe"}`, false},
		{`heartbeat`, false},
		{``, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isHeartbeat([]byte(tt.message)), tt.message)
	}
}

func TestClient_WritePump(t *testing.T) {
	logger, _ := asyncLogger()
	hub := NewHub(logger)
	hub.Start()

	client, conn := newTestClient(hub)
	hub.Register(client)
	go client.WritePump()

	hub.BroadcastUpdate("analysis:toast", "dns", "error", map[string]string{"message": "lookup failed"})

	assert.Eventually(t, func() bool { return len(conn.GetWrittenMessages()) >= 2 }, time.Second, 5*time.Millisecond)
	written := conn.GetWrittenMessages()
	assert.Equal(t, websocket.TextMessage, written[0].Type)
	assert.Contains(t, string(written[0].Data), `"type":"connection"`)
	assert.Contains(t, string(written[1].Data), `"type":"analysis:toast"`)

	// Stopping the hub closes the queue, which ends the pump with a close frame
	hub.Stop()
	assert.Eventually(t, conn.IsClosed, time.Second, 5*time.Millisecond)
	written = conn.GetWrittenMessages()
	assert.Equal(t, websocket.CloseMessage, written[len(written)-1].Type)
}

func TestClient_ReadPump(t *testing.T) {
	hub := startHub(t)
	client, conn := newTestClient(hub)
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		client.ReadPump()
		close(done)
	}()

	conn.AddReadMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`))
	conn.AddReadMessage(websocket.TextMessage, []byte("{\"type\":\n\"other\"}"))

	assert.Eventually(t, func() bool {
		return hub.GetHubMetrics()["messages_received"] == int64(2)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(maxMessageSize), conn.ReadLimit)

	// Peer goes away: the pump unregisters the client and returns
	conn.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read pump did not exit")
	}
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}
