package interfaces

// Conn is a delivery target for protocol events. The concrete implementation
// lives in internal/websocket; tests substitute in-memory fakes.
type Conn interface {
	// ID returns the connection's unique identifier, stable for its lifetime.
	ID() string

	// WriteEvent delivers one event envelope. It must be safe for concurrent
	// use and must not block indefinitely on a slow peer.
	WriteEvent(event string, data any) error

	// Close tears the connection down. Idempotent.
	Close() error
}
