package websocket

import "time"

// Connection is the part of *websocket.Conn a Client drives. Tests swap in
// a scripted fake.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error

	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)

	// RemoteAddr is the peer address as a string, used in log attributes
	RemoteAddr() string
}
