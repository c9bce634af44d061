package websocket

import (
	"github.com/rs/zerolog/log"

	"github.com/rental-lock-access/backend/internal/access"
	"github.com/rental-lock-access/backend/internal/storage/models"
)

// EventBroadcaster fans the engine's notification events out to connected
// WebSocket clients. It implements access.Notifier.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// CodeProvisioned sends a code.provisioned event for the beneficiary.
func (b *EventBroadcaster) CodeProvisioned(code *models.AccessCode, booking access.Booking) {
	payload := CodeProvisionedPayload{
		CodeID:     code.ID,
		LockID:     code.LockID,
		BookingID:  code.BookingID,
		UserID:     code.UserID,
		Code:       code.Code,
		ValidFrom:  code.ValidFrom,
		ValidUntil: code.ValidUntil,
	}

	b.broadcast(NewMessage(TypeCodeProvisioned, payload))
}

// LowBattery sends a lock.low_battery event for the property contact.
func (b *EventBroadcaster) LowBattery(lock *models.Lock, level int) {
	payload := LowBatteryPayload{
		LockID:       lock.ID,
		PropertyID:   lock.PropertyID,
		LockName:     lock.Name,
		BatteryLevel: level,
	}

	b.broadcast(NewMessage(TypeLockLowBattery, payload))
}

// BroadcastCodeStatusChanged sends a code.status_changed event.
func (b *EventBroadcaster) BroadcastCodeStatusChanged(code *models.AccessCode, previousStatus string) {
	payload := CodeStatusPayload{
		CodeID:         code.ID,
		LockID:         code.LockID,
		PreviousStatus: previousStatus,
		NewStatus:      code.Status,
	}

	b.broadcast(NewMessage(TypeCodeStatusChanged, payload))
}

// BroadcastLockStatusChanged sends a lock.status_changed event.
func (b *EventBroadcaster) BroadcastLockStatusChanged(lock *models.Lock) {
	b.broadcast(NewMessage(TypeLockStatusChanged, lockStatusPayload(lock)))
}

// BroadcastNotification sends a generic notification to all clients.
func (b *EventBroadcaster) BroadcastNotification(level, title, message string) {
	payload := NotificationPayload{
		Level:   level,
		Title:   title,
		Message: message,
	}

	b.broadcast(NewMessage(TypeNotification, payload))
}

func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		log.Error().Err(err).Msg("encoding websocket message failed")
		return
	}

	b.hub.Broadcast(data)
}
