// Package models contains the domain models for the application.
package models

import (
	"time"
)

// Lock represents a physical smart lock installed at a rental property.
type Lock struct {
	ID                string     `json:"id"`
	PropertyID        string     `json:"property_id"`
	Name              string     `json:"name"`
	ProviderName      string     `json:"provider_name"`
	Credentials       string     `json:"-"` // opaque vendor bundle, never serialized or logged
	Status            string     `json:"status"`
	BatteryLevel      *int       `json:"battery_level,omitempty"`
	LastSyncedAt      *time.Time `json:"last_synced_at,omitempty"`
	ErrorMessage      *string    `json:"error_message,omitempty"`
	AutoGenerateCodes bool       `json:"auto_generate_codes"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Lock status constants
const (
	LockStatusActive   = "active"
	LockStatusError    = "error"
	LockStatusDisabled = "disabled"
)

// LowBattery returns true if the last synced battery level is below the threshold.
func (l *Lock) LowBattery(threshold int) bool {
	return l.BatteryLevel != nil && *l.BatteryLevel < threshold
}
