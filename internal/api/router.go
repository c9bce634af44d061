// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"github.com/gorilla/mux"

	"github.com/rental-lock-access/backend/internal/access"
	"github.com/rental-lock-access/backend/internal/api/handlers"
	"github.com/rental-lock-access/backend/internal/api/middleware"
	"github.com/rental-lock-access/backend/internal/provider"
	"github.com/rental-lock-access/backend/internal/storage"
	"github.com/rental-lock-access/backend/internal/websocket"
)

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(
	db *storage.DB,
	hub *websocket.Hub,
	providers *provider.Registry,
	svc *access.Service,
	locks *storage.LockRepository,
	codes *storage.AccessCodeRepository,
	activity *storage.ActivityRepository,
) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	// API subrouter
	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(db)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(db, hub, providers)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(hub)).Methods("GET")

	// Booking-driven provisioning
	api.HandleFunc("/bookings/provision", handlers.ProvisionForBooking(svc)).Methods("POST")

	// Access code endpoints
	api.HandleFunc("/access-codes", handlers.ListAccessCodes(codes)).Methods("GET")
	api.HandleFunc("/access-codes", handlers.CreatePermanentCode(svc)).Methods("POST")
	api.HandleFunc("/access-codes/{id}", handlers.GetAccessCode(codes)).Methods("GET")
	api.HandleFunc("/access-codes/{id}/revoke", handlers.RevokeAccessCode(codes, svc)).Methods("POST")

	// Lock endpoints
	api.HandleFunc("/locks", handlers.ListLocks(locks)).Methods("GET")
	api.HandleFunc("/locks/{id}", handlers.GetLock(locks)).Methods("GET")
	api.HandleFunc("/locks/{id}/activity", handlers.LockActivity(locks, activity)).Methods("GET")
	api.HandleFunc("/locks/{id}/provider-activity", handlers.ProviderActivity(locks, svc)).Methods("GET")
	api.HandleFunc("/locks/{id}/sync", handlers.SyncLock(locks, svc)).Methods("POST")
	api.HandleFunc("/locks/{id}/lock", handlers.RemoteLock(locks, svc)).Methods("POST")
	api.HandleFunc("/locks/{id}/unlock", handlers.RemoteUnlock(locks, svc)).Methods("POST")
	api.HandleFunc("/locks/{id}/test-connection", handlers.TestLockConnection(locks, svc)).Methods("POST")

	return r
}
