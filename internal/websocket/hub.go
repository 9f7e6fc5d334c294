package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sitepulse/internal/infrastructure"
)

// Message types the hub originates itself
const (
	TypeConnection = "connection"
	TypeHeartbeat  = "heartbeat"
)

const (
	defaultBroadcastBuffer = 256
	clientSendBuffer       = 256
	metricsReportInterval  = 30 * time.Second
)

// Message is the envelope of every frame pushed to dashboard clients
type Message struct {
	Type      string      `json:"type"`
	Step      string      `json:"step,omitempty"`
	Status    string      `json:"status,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// SnapshotFunc returns the latest state to replay to a newly connected client
type SnapshotFunc func() (interface{}, bool)

type outbound struct {
	msgType string
	payload []byte
}

// Hub maintains the set of active clients and broadcasts messages to the clients
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages queued for every client
	broadcast chan outbound

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	snapshotType string
	snapshot     SnapshotFunc
	metrics      *OTelMetrics

	totalConnections atomic.Int64
	messagesSent     atomic.Int64
	messagesReceived atomic.Int64
	messagesDropped  atomic.Int64

	quit     chan struct{}
	done     chan struct{}
	running  bool
	stopOnce sync.Once
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithBroadcastBuffer sets the capacity of the broadcast queue
func WithBroadcastBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan outbound, size)
		}
	}
}

// WithMetrics records hub activity on m
func WithMetrics(m *OTelMetrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

// NewHub creates a new Hub instance with dependency injection
func NewHub(logger *slog.Logger, opts ...HubOption) *Hub {
	h := &Hub{
		broadcast:  make(chan outbound, defaultBroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     infrastructure.WithComponent(logger, "websocket.hub"),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetSnapshotProvider makes the hub replay fn's value as a msgType message
// to every client right after it connects.
func (h *Hub) SetSnapshotProvider(msgType string, fn SnapshotFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshotType = msgType
	h.snapshot = fn
}

// Start starts the hub's goroutines
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
	go h.reportMetrics()
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.quit:
			h.closeAll()
			h.logger.Info("hub_stopped")
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client, "normal")

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	snapshotType, snapshot := h.snapshotType, h.snapshot
	h.mu.Unlock()
	h.totalConnections.Add(1)

	ctx := client.context()
	h.logger.InfoContext(ctx, "client_registered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("remote_addr", client.remoteAddr))
	h.metrics.RecordConnection(ctx, count)

	h.sendTo(client, Message{
		Type:   TypeConnection,
		Status: "connected",
		Data: map[string]interface{}{
			"client_id": client.id,
			"message":   "Connected to SitePulse",
		},
		TraceID: client.traceID,
	})

	if snapshot == nil {
		return
	}
	if state, ok := snapshot(); ok {
		h.sendTo(client, Message{Type: snapshotType, Data: state})
	}
}

func (h *Hub) removeClient(client *Client, reason string) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	close(client.send)
	count := len(h.clients)
	h.mu.Unlock()

	ctx := client.context()
	duration := time.Since(client.connectedAt)
	h.logger.InfoContext(ctx, "client_unregistered",
		slog.Int("total_clients", count),
		slog.String("client_id", client.id),
		slog.String("reason", reason),
		slog.Duration("connection_duration", duration))
	h.metrics.RecordDisconnection(ctx, count, duration, reason)
}

// sendTo queues a message for a single client from the Run goroutine
func (h *Hub) sendTo(client *Client, msg Message) {
	payload, err := h.encode(msg)
	if err != nil {
		return
	}
	select {
	case client.send <- payload:
		h.messagesSent.Add(1)
	default:
		h.messagesDropped.Add(1)
		h.logger.WarnContext(client.context(), "client_buffer_full",
			slog.String("client_id", client.id),
			slog.String("message_type", msg.Type))
	}
}

func (h *Hub) deliver(msg outbound) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, client := range clients {
		select {
		case client.send <- msg.payload:
			delivered++
		default:
			// A client that cannot keep up is disconnected; its ReadPump
			// sees the closed socket and exits.
			dropped++
			h.removeClient(client, "buffer_full")
		}
	}
	h.messagesSent.Add(int64(delivered))
	h.messagesDropped.Add(int64(dropped))

	h.logger.Debug("broadcast_delivered",
		slog.String("message_type", msg.msgType),
		slog.Int("delivered", delivered),
		slog.Int("dropped", dropped),
		slog.Int("payload_size", len(msg.payload)))
	h.metrics.RecordBroadcast(context.Background(), msg.msgType, delivered, dropped)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *Hub) encode(msg Message) ([]byte, error) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("message_marshal_failed",
			slog.String("message_type", msg.Type),
			slog.String("error", err.Error()))
	}
	return payload, err
}

// BroadcastUpdate queues a message for every connected client. It never
// blocks: when the queue is full or the hub is stopped the message is
// dropped.
func (h *Hub) BroadcastUpdate(eventType, step, status string, data interface{}) {
	h.BroadcastUpdateWithTrace(eventType, step, status, data, "")
}

// BroadcastUpdateWithTrace is BroadcastUpdate carrying a trace ID
func (h *Hub) BroadcastUpdateWithTrace(eventType, step, status string, data interface{}, traceID string) {
	payload, err := h.encode(Message{
		Type:    eventType,
		Step:    step,
		Status:  status,
		Data:    data,
		TraceID: traceID,
	})
	if err != nil {
		return
	}

	select {
	case <-h.quit:
		return
	default:
	}

	select {
	case h.broadcast <- outbound{msgType: eventType, payload: payload}:
	case <-h.quit:
	default:
		h.messagesDropped.Add(1)
		h.logger.Warn("broadcast_queue_full",
			slog.String("message_type", eventType),
			slog.Int("queue_capacity", cap(h.broadcast)))
		h.metrics.RecordDroppedMessage(context.Background(), eventType, "queue_full")
	}
}

// Register adds a client to the hub. It is a no-op after Stop.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
	}
}

// Unregister removes a client from the hub. It is a no-op after Stop.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop gracefully stops the hub and closes every client's send queue
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)

		h.mu.RLock()
		running := h.running
		h.mu.RUnlock()
		if running {
			<-h.done
		} else {
			h.closeAll()
		}
	})
}

// reportMetrics periodically reports hub metrics
func (h *Hub) reportMetrics() {
	ticker := time.NewTicker(metricsReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.quit:
			return
		case <-ticker.C:
			h.logger.Info("hub_metrics",
				slog.Int("active_clients", h.ClientCount()),
				slog.Int64("total_connections", h.totalConnections.Load()),
				slog.Int64("messages_sent", h.messagesSent.Load()),
				slog.Int64("messages_received", h.messagesReceived.Load()),
				slog.Int64("messages_dropped", h.messagesDropped.Load()),
				slog.Int("broadcast_queue", len(h.broadcast)),
			)
		}
	}
}

// GetHubMetrics returns current hub metrics
func (h *Hub) GetHubMetrics() map[string]interface{} {
	return map[string]interface{}{
		"active_clients":    h.ClientCount(),
		"total_connections": h.totalConnections.Load(),
		"messages_sent":     h.messagesSent.Load(),
		"messages_received": h.messagesReceived.Load(),
		"messages_dropped":  h.messagesDropped.Load(),
		"broadcast_queue":   len(h.broadcast),
	}
}
