package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rental-lock-access/backend/internal/storage/models"
)

// RESTAdapter talks to a vendor cloud API over JSON/HTTP. Lock credentials
// carry the vendor base URL, API token and the vendor's device identifier.
type RESTAdapter struct {
	name       string
	httpClient *http.Client
}

// restCredentials is the parsed shape of a lock's opaque credential bundle.
type restCredentials struct {
	BaseURL  string `json:"base_url"`
	APIToken string `json:"api_token"`
	DeviceID string `json:"device_id"`
}

// NewRESTAdapter creates a REST adapter registered under the given name.
func NewRESTAdapter(name string, timeout time.Duration) *RESTAdapter {
	return &RESTAdapter{
		name: name,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the registry key for this adapter.
func (a *RESTAdapter) Name() string {
	return a.name
}

func parseCredentials(raw string) (*restCredentials, error) {
	var creds restCredentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}
	if creds.BaseURL == "" || creds.DeviceID == "" {
		return nil, fmt.Errorf("credentials missing base_url or device_id")
	}
	return &creds, nil
}

// TestConnection probes the vendor health endpoint.
func (a *RESTAdapter) TestConnection(ctx context.Context, credentials string) bool {
	creds, err := parseCredentials(credentials)
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, creds.BaseURL+"/api/ping", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+creds.APIToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type restCodePayload struct {
	Code       string     `json:"code"`
	ValidFrom  time.Time  `json:"valid_from"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
}

type restCodeResponse struct {
	ID         string    `json:"id"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until"`
}

// CreateAccessCode creates the code on the vendor side.
func (a *RESTAdapter) CreateAccessCode(ctx context.Context, lock *models.Lock, code *models.AccessCode) (*CodeResult, error) {
	creds, err := parseCredentials(lock.Credentials)
	if err != nil {
		return nil, err
	}

	payload := restCodePayload{
		Code:       code.Code,
		ValidFrom:  code.ValidFrom,
		ValidUntil: code.ValidUntil,
	}

	var resp restCodeResponse
	path := fmt.Sprintf("/api/devices/%s/codes", url.PathEscape(creds.DeviceID))
	if err := a.call(ctx, creds, http.MethodPost, path, payload, &resp); err != nil {
		return nil, err
	}

	return &CodeResult{
		ExternalID: resp.ID,
		ValidFrom:  resp.ValidFrom,
		ValidUntil: resp.ValidUntil,
	}, nil
}

// UpdateAccessCode pushes changed attributes of an already-created code.
func (a *RESTAdapter) UpdateAccessCode(ctx context.Context, lock *models.Lock, code *models.AccessCode) (*CodeResult, error) {
	creds, err := parseCredentials(lock.Credentials)
	if err != nil {
		return nil, err
	}
	if code.ExternalCodeID == nil {
		return nil, fmt.Errorf("code %s has no vendor-side identifier", code.ID)
	}

	payload := restCodePayload{
		Code:       code.Code,
		ValidFrom:  code.ValidFrom,
		ValidUntil: code.ValidUntil,
	}

	var resp restCodeResponse
	path := fmt.Sprintf("/api/devices/%s/codes/%s", url.PathEscape(creds.DeviceID), url.PathEscape(*code.ExternalCodeID))
	if err := a.call(ctx, creds, http.MethodPut, path, payload, &resp); err != nil {
		return nil, err
	}

	return &CodeResult{
		ExternalID: resp.ID,
		ValidFrom:  resp.ValidFrom,
		ValidUntil: resp.ValidUntil,
	}, nil
}

// DeleteAccessCode removes the vendor-side entry. A 404 from the vendor means
// the entry is already gone and counts as success.
func (a *RESTAdapter) DeleteAccessCode(ctx context.Context, lock *models.Lock, code *models.AccessCode) (bool, error) {
	creds, err := parseCredentials(lock.Credentials)
	if err != nil {
		return false, err
	}
	if code.ExternalCodeID == nil {
		return true, nil
	}

	path := fmt.Sprintf("/api/devices/%s/codes/%s", url.PathEscape(creds.DeviceID), url.PathEscape(*code.ExternalCodeID))
	req, err := a.newRequest(ctx, creds, http.MethodDelete, path, nil)
	if err != nil {
		return false, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return true, nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("API error (status %d): %s", resp.StatusCode, body)
	}

	return true, nil
}

type restStatusResponse struct {
	BatteryLevel *int   `json:"battery_level"`
	State        string `json:"state"`
	Error        string `json:"error,omitempty"`
}

// GetLockStatus reads the device status from the vendor.
func (a *RESTAdapter) GetLockStatus(ctx context.Context, lock *models.Lock) (*LockStatus, error) {
	creds, err := parseCredentials(lock.Credentials)
	if err != nil {
		return nil, err
	}

	var resp restStatusResponse
	path := fmt.Sprintf("/api/devices/%s/status", url.PathEscape(creds.DeviceID))
	if err := a.call(ctx, creds, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	status := "ok"
	if resp.Error != "" || resp.State == "unavailable" {
		status = "error"
	}

	return &LockStatus{
		BatteryLevel: resp.BatteryLevel,
		Status:       status,
		ErrorMessage: resp.Error,
	}, nil
}

// Lock engages the bolt remotely.
func (a *RESTAdapter) Lock(ctx context.Context, lock *models.Lock) (bool, error) {
	return a.bolt(ctx, lock, "lock")
}

// Unlock disengages the bolt remotely.
func (a *RESTAdapter) Unlock(ctx context.Context, lock *models.Lock) (bool, error) {
	return a.bolt(ctx, lock, "unlock")
}

func (a *RESTAdapter) bolt(ctx context.Context, lock *models.Lock, action string) (bool, error) {
	creds, err := parseCredentials(lock.Credentials)
	if err != nil {
		return false, err
	}

	path := fmt.Sprintf("/api/devices/%s/%s", url.PathEscape(creds.DeviceID), action)
	if err := a.call(ctx, creds, http.MethodPost, path, nil, nil); err != nil {
		return false, err
	}

	return true, nil
}

// GetActivityLogs returns vendor-reported events, optionally bounded by time.
func (a *RESTAdapter) GetActivityLogs(ctx context.Context, lock *models.Lock, from, to *time.Time) ([]ActivityEntry, error) {
	creds, err := parseCredentials(lock.Credentials)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	if from != nil {
		query.Set("from", from.UTC().Format(time.RFC3339))
	}
	if to != nil {
		query.Set("to", to.UTC().Format(time.RFC3339))
	}

	path := fmt.Sprintf("/api/devices/%s/activity", url.PathEscape(creds.DeviceID))
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var entries []ActivityEntry
	if err := a.call(ctx, creds, http.MethodGet, path, nil, &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

type restSyncResponse struct {
	Count  int    `json:"count"`
	Detail string `json:"detail,omitempty"`
}

// SyncAccessCodes asks the vendor to reconcile its code table.
func (a *RESTAdapter) SyncAccessCodes(ctx context.Context, lock *models.Lock) (*SyncResult, error) {
	creds, err := parseCredentials(lock.Credentials)
	if err != nil {
		return nil, err
	}

	var resp restSyncResponse
	path := fmt.Sprintf("/api/devices/%s/codes/sync", url.PathEscape(creds.DeviceID))
	if err := a.call(ctx, creds, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}

	return &SyncResult{CodesReported: resp.Count, Detail: resp.Detail}, nil
}

// call executes a JSON request against the vendor API and decodes the
// response into out when out is non-nil.
func (a *RESTAdapter) call(ctx context.Context, creds *restCredentials, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := a.newRequest(ctx, creds, method, path, body)
	if err != nil {
		return err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, data)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}

// newRequest creates an HTTP request with vendor authentication.
func (a *RESTAdapter) newRequest(ctx context.Context, creds *restCredentials, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, creds.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+creds.APIToken)
	req.Header.Set("Content-Type", "application/json")

	return req, nil
}
