package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rental-lock-access/backend/internal/provider"
	"github.com/rental-lock-access/backend/internal/storage"
	"github.com/rental-lock-access/backend/internal/storage/models"
)

// Booking carries the fields of a confirmed booking that provisioning needs.
// The booking lifecycle itself lives outside this engine.
type Booking struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	UserID     string    `json:"user_id"`
	CheckIn    time.Time `json:"check_in"`
	CheckOut   time.Time `json:"check_out"`
}

// Codes become valid 2 hours before check-in and stay valid 2 hours after
// check-out.
const graceWindow = 2 * time.Hour

// maxGenerateAttempts bounds retries when a generated code collides with a
// live code on the same lock.
const maxGenerateAttempts = 5

// ErrInvalidValidityWindow is returned when a code's validity window would
// end before it starts.
var ErrInvalidValidityWindow = errors.New("validity window ends before it starts")

// ErrLockNotFound is returned by explicit operations that reference a lock
// that does not exist.
var ErrLockNotFound = errors.New("lock not found")

// CodeStore is the ledger access the service needs.
type CodeStore interface {
	Create(ctx context.Context, code *models.AccessCode) error
	GetByID(ctx context.Context, id string) (*models.AccessCode, error)
	FindLiveByBookingAndLock(ctx context.Context, bookingID, lockID string) (*models.AccessCode, error)
	CodeInUse(ctx context.Context, lockID, code string) (bool, error)
	Update(ctx context.Context, code *models.AccessCode) error
	ListExpirable(ctx context.Context, now time.Time) ([]models.AccessCode, error)
	ListCleanable(ctx context.Context, maxAttempts int) ([]models.AccessCode, error)
}

// LockStore is the lock registry access the service needs.
type LockStore interface {
	GetByID(ctx context.Context, id string) (*models.Lock, error)
	FindProvisionTarget(ctx context.Context, propertyID string) (*models.Lock, error)
	List(ctx context.Context) ([]models.Lock, error)
	UpdateHealth(ctx context.Context, id, status string, batteryLevel *int, errorMessage *string) error
}

// ActivityStore is the append-only audit trail the service writes to.
type ActivityStore interface {
	Append(ctx context.Context, activity *models.LockActivity) error
}

// Config carries the service's tunables.
type Config struct {
	// ProviderTimeout bounds every adapter call.
	ProviderTimeout time.Duration

	// LowBatteryThreshold triggers a low-battery notification when a status
	// sync reads a level strictly below it.
	LowBatteryThreshold int

	// CleanupMaxAttempts is the retry ceiling for remote deletion of expired
	// codes; codes that reach it are skipped by later cleanup sweeps.
	CleanupMaxAttempts int

	// CodeLength is the digit length of generated codes.
	CodeLength int
}

func (c Config) withDefaults() Config {
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 10 * time.Second
	}
	if c.LowBatteryThreshold <= 0 {
		c.LowBatteryThreshold = 20
	}
	if c.CleanupMaxAttempts <= 0 {
		c.CleanupMaxAttempts = 10
	}
	if c.CodeLength <= 0 {
		c.CodeLength = 6
	}
	return c
}

// Service orchestrates the ledger, the lock registry and the provider
// adapters. It is the only component that mutates local state; provider
// failures never propagate into the booking flow that triggered provisioning.
type Service struct {
	codes     CodeStore
	locks     LockStore
	activity  ActivityStore
	providers *provider.Registry
	notifier  Notifier
	gen       *CodeGenerator
	cfg       Config

	now func() time.Time
}

// NewService creates the orchestration service.
func NewService(codes CodeStore, locks LockStore, activity ActivityStore, providers *provider.Registry, notifier Notifier, cfg Config) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	cfg = cfg.withDefaults()

	return &Service{
		codes:     codes,
		locks:     locks,
		activity:  activity,
		providers: providers,
		notifier:  notifier,
		gen:       NewCodeGenerator(cfg.CodeLength),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// providerCtx bounds an adapter call so a stalled vendor cannot hang a sweep
// or a request.
func (s *Service) providerCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.ProviderTimeout)
}

// ProvisionForBooking issues an access code for a confirmed booking. When the
// booking's property has no active lock with auto-generation enabled it is a
// deliberate no-op and returns (nil, nil). Provider failure leaves the code
// pending for later reconciliation; it is never surfaced to the caller.
func (s *Service) ProvisionForBooking(ctx context.Context, booking Booking) (*models.AccessCode, error) {
	lock, err := s.locks.FindProvisionTarget(ctx, booking.PropertyID)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		log.Debug().Str("booking_id", booking.ID).Str("property_id", booking.PropertyID).
			Msg("no provisioning target for property, skipping")
		return nil, nil
	}

	// A booking that already holds a live code on this lock keeps it.
	existing, err := s.codes.FindLiveByBookingAndLock(ctx, booking.ID, lock.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	validFrom := booking.CheckIn.Add(-graceWindow)
	validUntil := booking.CheckOut.Add(graceWindow)
	if !validFrom.Before(validUntil) {
		return nil, fmt.Errorf("%w: booking %s", ErrInvalidValidityWindow, booking.ID)
	}

	code, err := s.createLedgerEntry(ctx, lock, &models.AccessCode{
		LockID:     lock.ID,
		BookingID:  &booking.ID,
		UserID:     booking.UserID,
		Type:       models.CodeTypeTemporary,
		ValidFrom:  validFrom,
		ValidUntil: &validUntil,
		Status:     models.CodeStatusPending,
	})
	if err != nil {
		return nil, err
	}

	if s.confirmWithProvider(ctx, lock, code) {
		s.notifier.CodeProvisioned(code, booking)
	}

	return code, nil
}

// CreatePermanentCode issues a permanent (non-expiring) code on a lock, for
// example for owners or maintenance staff. customCode may be empty to have
// one generated. Provider failure leaves the code pending, as with booking
// provisioning.
func (s *Service) CreatePermanentCode(ctx context.Context, lockID, userID, customCode string) (*models.AccessCode, error) {
	lock, err := s.locks.GetByID(ctx, lockID)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return nil, fmt.Errorf("%w: %s", ErrLockNotFound, lockID)
	}
	if lock.Status == models.LockStatusDisabled {
		return nil, fmt.Errorf("lock %s is disabled", lockID)
	}

	entry := &models.AccessCode{
		LockID:    lock.ID,
		UserID:    userID,
		Type:      models.CodeTypePermanent,
		ValidFrom: s.now(),
		Status:    models.CodeStatusPending,
	}

	if customCode != "" {
		if err := s.gen.Validate(customCode); err != nil {
			return nil, err
		}
		inUse, err := s.codes.CodeInUse(ctx, lock.ID, customCode)
		if err != nil {
			return nil, err
		}
		if inUse {
			return nil, storage.ErrDuplicateCode
		}
		entry.Code = customCode
	}

	code, err := s.createLedgerEntry(ctx, lock, entry)
	if err != nil {
		return nil, err
	}

	s.confirmWithProvider(ctx, lock, code)
	return code, nil
}

// createLedgerEntry fills in a unique code value where one is not already set
// and inserts the pending row, retrying generation on value collisions.
func (s *Service) createLedgerEntry(ctx context.Context, lock *models.Lock, entry *models.AccessCode) (*models.AccessCode, error) {
	if entry.Code != "" {
		if err := s.codes.Create(ctx, entry); err != nil {
			return nil, err
		}
		return entry, nil
	}

	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		value, err := s.gen.Generate()
		if err != nil {
			return nil, err
		}

		inUse, err := s.codes.CodeInUse(ctx, lock.ID, value)
		if err != nil {
			return nil, err
		}
		if inUse {
			continue
		}

		entry.Code = value
		err = s.codes.Create(ctx, entry)
		if err == nil {
			return entry, nil
		}
		// A concurrent insert can still win the race on the unique index;
		// regenerate and try again.
		if errors.Is(err, storage.ErrDuplicateCode) {
			entry.Code = ""
			continue
		}
		return nil, err
	}

	return nil, fmt.Errorf("generating unique code for lock %s: %w", lock.ID, storage.ErrDuplicateCode)
}

// confirmWithProvider attempts the vendor-side creation of a pending code and
// applies the pending -> active transition on success. Failures are logged
// and leave the row pending. Returns true when the code became active.
func (s *Service) confirmWithProvider(ctx context.Context, lock *models.Lock, code *models.AccessCode) bool {
	adapter, err := s.providers.Resolve(lock.ProviderName)
	if err != nil {
		log.Error().Err(err).Str("lock_id", lock.ID).Str("code_id", code.ID).
			Msg("provider not available, code stays pending")
		return false
	}

	callCtx, cancel := s.providerCtx(ctx)
	defer cancel()

	result, err := adapter.CreateAccessCode(callCtx, lock, code)
	if err != nil {
		log.Error().Err(err).Str("lock_id", lock.ID).Str("code_id", code.ID).
			Str("provider", lock.ProviderName).Msg("provider create failed, code stays pending")
		return false
	}

	now := s.now()
	code.Status = models.CodeStatusActive
	code.ExternalCodeID = &result.ExternalID
	code.Notified = true
	code.NotifiedAt = &now

	if err := s.codes.Update(ctx, code); err != nil {
		log.Error().Err(err).Str("code_id", code.ID).Msg("recording provider confirmation failed")
		return false
	}

	s.logActivity(ctx, &models.LockActivity{
		LockID:       lock.ID,
		AccessCodeID: &code.ID,
		UserID:       &code.UserID,
		EventType:    models.EventCodeCreated,
		Description:  fmt.Sprintf("access code created (valid from %s)", code.ValidFrom.Format(time.RFC3339)),
	})

	return true
}

// Revoke transitions a code to revoked. It is idempotent: revoking a code
// already in a terminal state is a no-op. The vendor-side deletion is
// best-effort; the local transition happens regardless of the provider
// outcome.
func (s *Service) Revoke(ctx context.Context, code *models.AccessCode, actingUserID *string) (*models.AccessCode, error) {
	if code.Terminal() {
		return code, nil
	}

	if code.ExternalCodeID != nil {
		s.deleteOnProvider(ctx, code)
	}

	code.Status = models.CodeStatusRevoked
	if err := s.codes.Update(ctx, code); err != nil {
		return nil, err
	}

	s.logActivity(ctx, &models.LockActivity{
		LockID:       code.LockID,
		AccessCodeID: &code.ID,
		UserID:       actingUserID,
		EventType:    models.EventCodeDeleted,
		Description:  "access code revoked",
	})

	return code, nil
}

// deleteOnProvider attempts the vendor-side removal of a code and reports
// whether it succeeded. Failures are logged only.
func (s *Service) deleteOnProvider(ctx context.Context, code *models.AccessCode) bool {
	lock, err := s.locks.GetByID(ctx, code.LockID)
	if err != nil || lock == nil {
		log.Error().Err(err).Str("lock_id", code.LockID).Str("code_id", code.ID).
			Msg("lock unavailable for provider delete")
		return false
	}

	adapter, err := s.providers.Resolve(lock.ProviderName)
	if err != nil {
		log.Error().Err(err).Str("lock_id", lock.ID).Str("code_id", code.ID).
			Msg("provider not available for delete")
		return false
	}

	callCtx, cancel := s.providerCtx(ctx)
	defer cancel()

	ok, err := adapter.DeleteAccessCode(callCtx, lock, code)
	if err != nil {
		log.Error().Err(err).Str("lock_id", lock.ID).Str("code_id", code.ID).
			Str("provider", lock.ProviderName).Msg("provider delete failed")
		return false
	}

	return ok
}

// SyncLockStatus pulls health from the provider and records it. A provider
// failure marks the lock as errored instead of returning an error; a battery
// level below the threshold emits a low-battery notification.
func (s *Service) SyncLockStatus(ctx context.Context, lock *models.Lock) error {
	adapter, err := s.providers.Resolve(lock.ProviderName)
	if err != nil {
		msg := err.Error()
		return s.locks.UpdateHealth(ctx, lock.ID, models.LockStatusError, lock.BatteryLevel, &msg)
	}

	callCtx, cancel := s.providerCtx(ctx)
	defer cancel()

	status, err := adapter.GetLockStatus(callCtx, lock)
	if err != nil {
		log.Warn().Err(err).Str("lock_id", lock.ID).Str("provider", lock.ProviderName).
			Msg("lock status sync failed")
		msg := err.Error()
		return s.locks.UpdateHealth(ctx, lock.ID, models.LockStatusError, lock.BatteryLevel, &msg)
	}

	lockStatus := models.LockStatusActive
	var errMsg *string
	if status.Status == "error" {
		lockStatus = models.LockStatusError
		if status.ErrorMessage != "" {
			errMsg = &status.ErrorMessage
		}
	}

	if err := s.locks.UpdateHealth(ctx, lock.ID, lockStatus, status.BatteryLevel, errMsg); err != nil {
		return err
	}

	if status.BatteryLevel != nil && *status.BatteryLevel < s.cfg.LowBatteryThreshold {
		s.notifier.LowBattery(lock, *status.BatteryLevel)
	}

	return nil
}

// RemoteLock engages the bolt remotely. It never returns an error to the
// caller; internal failures are logged and reported as false.
func (s *Service) RemoteLock(ctx context.Context, lock *models.Lock, actingUserID *string) bool {
	return s.remoteBolt(ctx, lock, actingUserID, models.EventLock)
}

// RemoteUnlock disengages the bolt remotely, with the same failure contract
// as RemoteLock.
func (s *Service) RemoteUnlock(ctx context.Context, lock *models.Lock, actingUserID *string) bool {
	return s.remoteBolt(ctx, lock, actingUserID, models.EventUnlock)
}

func (s *Service) remoteBolt(ctx context.Context, lock *models.Lock, actingUserID *string, event string) bool {
	adapter, err := s.providers.Resolve(lock.ProviderName)
	if err != nil {
		log.Error().Err(err).Str("lock_id", lock.ID).Msg("provider not available for remote control")
		return false
	}

	callCtx, cancel := s.providerCtx(ctx)
	defer cancel()

	var ok bool
	if event == models.EventLock {
		ok, err = adapter.Lock(callCtx, lock)
	} else {
		ok, err = adapter.Unlock(callCtx, lock)
	}
	if err != nil || !ok {
		log.Error().Err(err).Str("lock_id", lock.ID).Str("provider", lock.ProviderName).
			Str("action", event).Msg("remote control failed")
		return false
	}

	method := models.AccessMethodRemote
	s.logActivity(ctx, &models.LockActivity{
		LockID:       lock.ID,
		UserID:       actingUserID,
		EventType:    event,
		AccessMethod: &method,
		Description:  fmt.Sprintf("remote %s", event),
	})

	return true
}

// ExpireOldAccessCodes transitions active codes whose validity window has
// passed to expired. Pure time comparison, no provider interaction. Returns
// the number of codes expired; re-running immediately expires nothing new.
func (s *Service) ExpireOldAccessCodes(ctx context.Context) (int, error) {
	codes, err := s.codes.ListExpirable(ctx, s.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range codes {
		code := &codes[i]
		code.Status = models.CodeStatusExpired
		if err := s.codes.Update(ctx, code); err != nil {
			log.Error().Err(err).Str("code_id", code.ID).Msg("expiring code failed")
			continue
		}
		expired++
	}

	if expired > 0 {
		log.Info().Int("count", expired).Msg("expired access codes")
	}

	return expired, nil
}

// CleanupExpiredCodes removes the vendor-side entries of expired codes and
// transitions them to revoked once the remote delete is confirmed. Per-item
// failures increment the code's retry counter and do not abort the batch.
// Returns the number of codes confirmed cleaned.
func (s *Service) CleanupExpiredCodes(ctx context.Context) (int, error) {
	codes, err := s.codes.ListCleanable(ctx, s.cfg.CleanupMaxAttempts)
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for i := range codes {
		code := &codes[i]

		if !s.deleteOnProvider(ctx, code) {
			code.CleanupAttempts++
			if err := s.codes.Update(ctx, code); err != nil {
				log.Error().Err(err).Str("code_id", code.ID).Msg("recording cleanup attempt failed")
			}
			continue
		}

		code.Status = models.CodeStatusRevoked
		if err := s.codes.Update(ctx, code); err != nil {
			log.Error().Err(err).Str("code_id", code.ID).Msg("recording cleanup failed")
			continue
		}

		s.logActivity(ctx, &models.LockActivity{
			LockID:       code.LockID,
			AccessCodeID: &code.ID,
			EventType:    models.EventCodeDeleted,
			Description:  "expired access code cleaned up",
		})
		cleaned++
	}

	if cleaned > 0 {
		log.Info().Int("count", cleaned).Msg("cleaned up expired access codes")
	}

	return cleaned, nil
}

// TestConnection probes the lock's provider with its credentials.
func (s *Service) TestConnection(ctx context.Context, lock *models.Lock) bool {
	adapter, err := s.providers.Resolve(lock.ProviderName)
	if err != nil {
		return false
	}

	callCtx, cancel := s.providerCtx(ctx)
	defer cancel()

	return adapter.TestConnection(callCtx, lock.Credentials)
}

// SyncNow performs an on-demand status sync plus a vendor-side code
// reconciliation and returns a human-readable summary. Unlike the scheduled
// sweeps this is caller-facing, so provider failures are returned.
func (s *Service) SyncNow(ctx context.Context, lock *models.Lock) (string, error) {
	if err := s.SyncLockStatus(ctx, lock); err != nil {
		return "", err
	}

	adapter, err := s.providers.Resolve(lock.ProviderName)
	if err != nil {
		return "", err
	}

	callCtx, cancel := s.providerCtx(ctx)
	defer cancel()

	result, err := adapter.SyncAccessCodes(callCtx, lock)
	if err != nil {
		return "", fmt.Errorf("reconciling codes: %w", err)
	}

	return fmt.Sprintf("status synced; %d codes reconciled with provider %s", result.CodesReported, lock.ProviderName), nil
}

// FetchProviderActivity returns the vendor-reported event log for a lock.
// Entries are not merged into the local activity trail.
func (s *Service) FetchProviderActivity(ctx context.Context, lock *models.Lock, from, to *time.Time) ([]provider.ActivityEntry, error) {
	adapter, err := s.providers.Resolve(lock.ProviderName)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.providerCtx(ctx)
	defer cancel()

	return adapter.GetActivityLogs(callCtx, lock, from, to)
}

// logActivity appends an audit record; failures are logged, never propagated,
// so a broken audit write cannot fail the operation it describes.
func (s *Service) logActivity(ctx context.Context, activity *models.LockActivity) {
	if err := s.activity.Append(ctx, activity); err != nil {
		log.Error().Err(err).Str("lock_id", activity.LockID).Str("event", activity.EventType).
			Msg("appending activity failed")
	}
}
