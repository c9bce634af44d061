package access

import (
	"github.com/rental-lock-access/backend/internal/storage/models"
)

// Notifier receives the structured events this engine emits for external
// delivery. Implementations must not block; delivery is out of scope here.
type Notifier interface {
	// CodeProvisioned fires once per successfully provisioned code, carrying
	// the code and the booking it was issued for.
	CodeProvisioned(code *models.AccessCode, booking Booking)

	// LowBattery fires when a status sync reads a battery level below the
	// configured threshold, addressed to the lock's property contact.
	LowBattery(lock *models.Lock, level int)
}

// NopNotifier discards all events.
type NopNotifier struct{}

// CodeProvisioned implements Notifier.
func (NopNotifier) CodeProvisioned(code *models.AccessCode, booking Booking) {}

// LowBattery implements Notifier.
func (NopNotifier) LowBattery(lock *models.Lock, level int) {}
