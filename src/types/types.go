package types

import (
	"time"
)

// Event is a domain notification produced by the order-management layer.
type Event struct {
	Type       string         `json:"type"`
	OrderID    int64          `json:"order_id,omitempty"`
	CustomerID int64          `json:"customer_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Event types recognized by the notification router.
const (
	EventOrderCreated       = "order_created"
	EventOrderUpdated       = "order_updated"
	EventOrderStatusChanged = "order_status_changed"
)

// Envelope is the one-JSON-object-per-frame wire format sent to clients.
type Envelope struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Inbound is a client-to-server frame. Only "ping" is acted upon;
// everything else is ignored since the stream is server-push.
type Inbound struct {
	Type string `json:"type"`
}

// ClientInfo holds metadata about a connected WebSocket client.
type ClientInfo struct {
	ID          string    `json:"id"`
	Subject     string    `json:"subject"`
	ConnectedAt time.Time `json:"connected_at"`
	Groups      []string  `json:"groups"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	WriteJSON(v any) error
	ReadJSON(v any) error
	Close() error
}
