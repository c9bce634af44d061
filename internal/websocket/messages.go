package websocket

import (
	"encoding/json"
	"time"

	"github.com/rental-lock-access/backend/internal/storage/models"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeCodeProvisioned   MessageType = "code.provisioned"
	TypeCodeStatusChanged MessageType = "code.status_changed"
	TypeLockStatusChanged MessageType = "lock.status_changed"
	TypeLockLowBattery    MessageType = "lock.low_battery"
	TypeNotification      MessageType = "notification"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// CodeProvisionedPayload is the payload for code.provisioned events. The
// code value itself is included for delivery to the beneficiary; it is not
// broadcast in any other event type.
type CodeProvisionedPayload struct {
	CodeID     string     `json:"code_id"`
	LockID     string     `json:"lock_id"`
	BookingID  *string    `json:"booking_id,omitempty"`
	UserID     string     `json:"user_id"`
	Code       string     `json:"code"`
	ValidFrom  time.Time  `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

// CodeStatusPayload is the payload for code.status_changed events.
type CodeStatusPayload struct {
	CodeID         string `json:"code_id"`
	LockID         string `json:"lock_id"`
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
}

// LockStatusPayload is the payload for lock.status_changed events.
type LockStatusPayload struct {
	LockID       string    `json:"lock_id"`
	Status       string    `json:"status"`
	BatteryLevel *int      `json:"battery_level,omitempty"`
	SyncedAt     time.Time `json:"synced_at"`
}

// LowBatteryPayload is the payload for lock.low_battery events, addressed to
// the lock's owning property contact.
type LowBatteryPayload struct {
	LockID       string `json:"lock_id"`
	PropertyID   string `json:"property_id"`
	LockName     string `json:"lock_name"`
	BatteryLevel int    `json:"battery_level"`
}

// NotificationPayload is the payload for generic notification events.
type NotificationPayload struct {
	Level   string `json:"level"` // info, warning, error
	Title   string `json:"title"`
	Message string `json:"message"`
}

// lockStatusPayload builds a status payload from a lock record.
func lockStatusPayload(lock *models.Lock) LockStatusPayload {
	return LockStatusPayload{
		LockID:       lock.ID,
		Status:       lock.Status,
		BatteryLevel: lock.BatteryLevel,
		SyncedAt:     time.Now().UTC(),
	}
}
