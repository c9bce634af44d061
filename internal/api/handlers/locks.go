package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/rental-lock-access/backend/internal/access"
	"github.com/rental-lock-access/backend/internal/api/middleware"
	"github.com/rental-lock-access/backend/internal/storage"
	"github.com/rental-lock-access/backend/internal/storage/models"
)

// ListLocks returns all registered locks.
func ListLocks(locks *storage.LockRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			list []models.Lock
			err  error
		)
		if status := r.URL.Query().Get("status"); status != "" {
			list, err = locks.ListByStatus(r.Context(), status)
		} else {
			list, err = locks.List(r.Context())
		}
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query locks")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(list)
	}
}

// GetLock returns a single lock by ID.
func GetLock(locks *storage.LockRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lock, err := locks.GetByID(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query lock")
			return
		}
		if lock == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Lock not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(lock)
	}
}

// loadLock fetches a lock by route ID, writing the error response itself on
// failure. Returns nil when the handler should stop.
func loadLock(w http.ResponseWriter, r *http.Request, locks *storage.LockRepository) *models.Lock {
	lock, err := locks.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query lock")
		return nil
	}
	if lock == nil {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Lock not found")
		return nil
	}
	return lock
}

// LockActivity returns the local audit trail for a lock, newest first.
func LockActivity(locks *storage.LockRepository, activity *storage.ActivityRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lock := loadLock(w, r, locks)
		if lock == nil {
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, _ = strconv.Atoi(raw)
		}

		entries, err := activity.ListByLock(r.Context(), lock.ID, limit)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query activity")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}
}

// ProviderActivity returns the vendor-reported event log for a lock.
func ProviderActivity(locks *storage.LockRepository, svc *access.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lock := loadLock(w, r, locks)
		if lock == nil {
			return
		}

		var from, to *time.Time
		if raw := r.URL.Query().Get("from"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "from must be RFC3339")
				return
			}
			from = &t
		}
		if raw := r.URL.Query().Get("to"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "to must be RFC3339")
				return
			}
			to = &t
		}

		entries, err := svc.FetchProviderActivity(r.Context(), lock, from, to)
		if err != nil {
			middleware.WriteError(w, http.StatusBadGateway, middleware.ErrUnavailable, "Provider activity fetch failed")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}
}

// SyncLock triggers an on-demand status sync and code reconciliation.
func SyncLock(locks *storage.LockRepository, svc *access.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lock := loadLock(w, r, locks)
		if lock == nil {
			return
		}

		summary, err := svc.SyncNow(r.Context(), lock)
		if err != nil {
			middleware.WriteError(w, http.StatusBadGateway, middleware.ErrUnavailable, err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"result": summary})
	}
}

// RemoteLock engages the bolt remotely.
func RemoteLock(locks *storage.LockRepository, svc *access.Service) http.HandlerFunc {
	return remoteControl(locks, svc, true)
}

// RemoteUnlock disengages the bolt remotely.
func RemoteUnlock(locks *storage.LockRepository, svc *access.Service) http.HandlerFunc {
	return remoteControl(locks, svc, false)
}

func remoteControl(locks *storage.LockRepository, svc *access.Service, engage bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lock := loadLock(w, r, locks)
		if lock == nil {
			return
		}

		var req struct {
			UserID *string `json:"user_id,omitempty"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		var ok bool
		if engage {
			ok = svc.RemoteLock(r.Context(), lock, req.UserID)
		} else {
			ok = svc.RemoteUnlock(r.Context(), lock, req.UserID)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"success": ok})
	}
}

// TestLockConnection probes the lock's provider with its stored credentials.
func TestLockConnection(locks *storage.LockRepository, svc *access.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lock := loadLock(w, r, locks)
		if lock == nil {
			return
		}

		ok := svc.TestConnection(r.Context(), lock)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"connected": ok})
	}
}
