// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rental-lock-access/backend/internal/provider"
	"github.com/rental-lock-access/backend/internal/storage"
	"github.com/rental-lock-access/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.Ping() == nil

		status := "healthy"
		if !dbConnected {
			status = "degraded"
		}

		response := HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
		}

		w.Header().Set("Content-Type", "application/json")
		if status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(response)
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	Providers        []string `json:"providers"`
	LocksCount       int      `json:"locks_count"`
	ActiveCodes      int      `json:"active_codes"`
	PendingCodes     int      `json:"pending_codes"`
	ConnectedClients int      `json:"connected_clients"`
}

// Status returns a handler that provides system status information.
func Status(db *storage.DB, hub *websocket.Hub, providers *provider.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var locksCount int
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM locks").Scan(&locksCount)

		var activeCodes int
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM access_codes WHERE status = 'active'").Scan(&activeCodes)

		var pendingCodes int
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM access_codes WHERE status = 'pending'").Scan(&pendingCodes)

		response := StatusResponse{
			Providers:        providers.Names(),
			LocksCount:       locksCount,
			ActiveCodes:      activeCodes,
			PendingCodes:     pendingCodes,
			ConnectedClients: hub.ClientCount(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	}
}
