package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/rental-lock-access/backend/internal/access"
	"github.com/rental-lock-access/backend/internal/api/middleware"
	"github.com/rental-lock-access/backend/internal/storage"
)

// ListAccessCodes returns access codes filtered by lock, booking, user or status.
func ListAccessCodes(codes *storage.AccessCodeRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		list, err := codes.List(r.Context(), q.Get("lock_id"), q.Get("booking_id"), q.Get("user_id"), q.Get("status"))
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query access codes")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(list)
	}
}

// GetAccessCode returns a single access code by ID.
func GetAccessCode(codes *storage.AccessCodeRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		code, err := codes.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query access code")
			return
		}
		if code == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Access code not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(code)
	}
}

// CreatePermanentCode issues a permanent code on a lock.
func CreatePermanentCode(svc *access.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			LockID string `json:"lock_id"`
			UserID string `json:"user_id"`
			Code   string `json:"code,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.LockID == "" || req.UserID == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "lock_id and user_id are required")
			return
		}

		code, err := svc.CreatePermanentCode(r.Context(), req.LockID, req.UserID, req.Code)
		if err != nil {
			switch {
			case errors.Is(err, access.ErrLockNotFound):
				middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Lock not found")
			case errors.Is(err, storage.ErrDuplicateCode):
				middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Code already in use on this lock")
			default:
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(code)
	}
}

// RevokeAccessCode revokes an access code. The local transition always
// succeeds for non-terminal codes; vendor-side deletion is best-effort.
func RevokeAccessCode(codes *storage.AccessCodeRepository, svc *access.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var req struct {
			UserID *string `json:"user_id,omitempty"`
		}
		// Body is optional for system-triggered revokes
		json.NewDecoder(r.Body).Decode(&req)

		code, err := codes.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query access code")
			return
		}
		if code == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Access code not found")
			return
		}

		revoked, err := svc.Revoke(r.Context(), code, req.UserID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to revoke access code")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(revoked)
	}
}

// ProvisionForBooking triggers provisioning from a booking confirmation event.
// A property without a provisioning target returns 204, distinguishing the
// deliberate no-op from failure.
func ProvisionForBooking(svc *access.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var booking access.Booking
		if err := json.NewDecoder(r.Body).Decode(&booking); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if booking.ID == "" || booking.PropertyID == "" || booking.UserID == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "id, property_id and user_id are required")
			return
		}

		code, err := svc.ProvisionForBooking(r.Context(), booking)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}
		if code == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(code)
	}
}
