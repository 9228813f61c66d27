package protocol

import "encoding/json"

// Типы событий потока relay → клиент.
type EventType string

const (
	EventMessage EventType = "message"
	EventError   EventType = "error"
)

// StreamEvent — конверт события в WebSocket-потоке.
// Payload декодируется по Type; незнакомые типы событий клиент пропускает.
type StreamEvent struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
