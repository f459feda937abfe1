package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Header keys attached to every message a route puts on the bus.
const (
	HeaderID       = "id"
	HeaderQueue    = "queue"
	HeaderPriority = "priority"
)

// RelayedMessage is one message that crossed a route, as archived.
type RelayedMessage struct {
	ID        string    `json:"id"`
	Route     string    `json:"route"`
	Direction Direction `json:"direction"`
	Queue     string    `json:"queue"`
	Priority  uint      `json:"priority"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRelayedMessage creates a message with a fresh ID.
func NewRelayedMessage(route string, direction Direction, queueName string, payload []byte, priority uint) *RelayedMessage {
	return &RelayedMessage{
		ID:        uuid.New().String(),
		Route:     route,
		Direction: direction,
		Queue:     queueName,
		Priority:  priority,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// Headers returns the bus headers describing the message.
func (m *RelayedMessage) Headers() map[string]string {
	return map[string]string{
		HeaderID:       m.ID,
		HeaderQueue:    m.Queue,
		HeaderPriority: strconv.FormatUint(uint64(m.Priority), 10),
	}
}

// Size returns the payload length in bytes.
func (m *RelayedMessage) Size() int {
	return len(m.Payload)
}

// PriorityFromHeaders reads the priority header, falling back to def when absent.
func PriorityFromHeaders(headers map[string]string, def uint) (uint, error) {
	raw, ok := headers[HeaderPriority]
	if !ok || raw == "" {
		return def, nil
	}
	p, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, ErrInvalidPriority
	}
	return uint(p), nil
}

// IDFromHeaders returns the id header, or a fresh ID when the producer did not set one.
func IDFromHeaders(headers map[string]string) string {
	if id := headers[HeaderID]; id != "" {
		return id
	}
	return uuid.New().String()
}
