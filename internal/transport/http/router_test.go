package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"chrona/internal/domain"
	"chrona/internal/dto"
	"chrona/internal/observability/metrics"
)

func TestMain(m *testing.M) {
	metrics.MustRegister("chrona-http-test")
	os.Exit(m.Run())
}

type stubTokens struct {
	resp *dto.IssueTokenResponse
	err  error
}

func (s *stubTokens) Issue(context.Context, domain.UserID, domain.DeviceID, string, string) (*dto.IssueTokenResponse, error) {
	return s.resp, s.err
}

type stubPunches struct {
	resp *dto.ValidatePunchResponse
	err  error

	gotKiosk domain.KioskID
}

func (s *stubPunches) Validate(_ context.Context, kioskID domain.KioskID, _ dto.ValidatePunchRequest, _, _ string) (*dto.ValidatePunchResponse, error) {
	s.gotKiosk = kioskID
	return s.resp, s.err
}

type stubTOTP struct {
	validateErr error
	deleted     int64
	gotBatch    int
}

func (s *stubTOTP) Provision(context.Context, domain.UserID, dto.ProvisionTOTPRequest) (*dto.ProvisionTOTPResponse, error) {
	return &dto.ProvisionTOTPResponse{Secret: "SECRET"}, nil
}

func (s *stubTOTP) Activate(context.Context, domain.UserID, dto.ActivateTOTPRequest, string, string) (*dto.ActivateTOTPResponse, error) {
	return &dto.ActivateTOTPResponse{Success: true}, nil
}

func (s *stubTOTP) Validate(context.Context, domain.UserID, dto.ValidateTOTPRequest, string, string) (*dto.ValidateTOTPResponse, error) {
	if s.validateErr != nil {
		return nil, s.validateErr
	}
	return &dto.ValidateTOTPResponse{Success: true}, nil
}

func (s *stubTOTP) Deactivate(context.Context, domain.UserID) error { return nil }

func (s *stubTOTP) CleanupNonces(_ context.Context, batchSize int) (int64, error) {
	s.gotBatch = batchSize
	return s.deleted, nil
}

type stubRecovery struct{}

func (stubRecovery) Use(context.Context, domain.UserID, dto.UseRecoveryCodeRequest, string, string) (*dto.UseRecoveryCodeResponse, error) {
	return &dto.UseRecoveryCodeResponse{Success: true}, nil
}

func (stubRecovery) Status(context.Context, domain.UserID) (*dto.RecoveryStatusResponse, error) {
	return &dto.RecoveryStatusResponse{Total: 5, Unused: 5}, nil
}

func (stubRecovery) Regenerate(context.Context, domain.UserID, string, string) (*dto.RegenerateRecoveryResponse, error) {
	return &dto.RegenerateRecoveryResponse{RecoveryCodes: []string{"AAAA-AAAA"}}, nil
}

func newTestRouter(tokens *stubTokens, punches *stubPunches, totps *stubTOTP) http.Handler {
	if tokens == nil {
		tokens = &stubTokens{}
	}
	if punches == nil {
		punches = &stubPunches{}
	}
	if totps == nil {
		totps = &stubTOTP{}
	}
	return NewRouter(RouterConfig{}, tokens, punches, totps, stubRecovery{})
}

func doJSON(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIssueTokenRequiresUserHeader(t *testing.T) {
	h := newTestRouter(nil, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/v1/tokens/issue", `{"deviceId":"`+uuid.NewString()+`"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Reason != "unauthenticated" {
		t.Fatalf("reason = %q", body.Reason)
	}
}

func TestIssueToken(t *testing.T) {
	expires := time.Date(2026, 3, 14, 9, 27, 23, 0, time.UTC)
	tokens := &stubTokens{resp: &dto.IssueTokenResponse{Token: "signed", ExpiresIn: 30, ExpiresAt: expires}}
	h := newTestRouter(tokens, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/v1/tokens/issue",
		`{"deviceId":"`+uuid.NewString()+`"}`,
		map[string]string{"X-User-ID": uuid.NewString()})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp dto.IssueTokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token != "signed" || resp.ExpiresIn != 30 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestIssueTokenRejectsBadDeviceID(t *testing.T) {
	h := newTestRouter(nil, nil, nil)

	rec := doJSON(t, h, http.MethodPost, "/v1/tokens/issue",
		`{"deviceId":"not-a-uuid"}`,
		map[string]string{"X-User-ID": uuid.NewString()})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestValidatePunchReplayConflict(t *testing.T) {
	winner := domain.KioskID(uuid.New())
	at := time.Date(2026, 3, 14, 9, 26, 55, 0, time.UTC)
	punches := &stubPunches{err: &domain.ReplayError{ConsumedByKioskID: &winner, ConsumedAt: &at}}
	h := newTestRouter(nil, punches, nil)

	rec := doJSON(t, h, http.MethodPost, "/v1/punch/validate",
		`{"token":"x","punchType":"clock_in"}`,
		map[string]string{"X-Kiosk-ID": uuid.NewString()})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Reason != "replay_detected" {
		t.Fatalf("reason = %q", body.Reason)
	}
	if body.ConsumedByKioskID != winner.String() {
		t.Fatalf("consumedByKioskId = %q, want %q", body.ConsumedByKioskID, winner)
	}
	if body.ConsumedAt == nil || !body.ConsumedAt.Equal(at) {
		t.Fatalf("consumedAt = %v, want %v", body.ConsumedAt, at)
	}
}

func TestValidatePunchPassesKioskFromHeader(t *testing.T) {
	punches := &stubPunches{resp: &dto.ValidatePunchResponse{Valid: true}}
	h := newTestRouter(nil, punches, nil)
	kid := uuid.New()

	rec := doJSON(t, h, http.MethodPost, "/v1/punch/validate",
		`{"token":"x","punchType":"clock_in"}`,
		map[string]string{"X-Kiosk-ID": kid.String()})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if punches.gotKiosk != kid {
		t.Fatalf("kiosk = %s, want %s", punches.gotKiosk, kid)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		reason string
	}{
		{domain.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
		{domain.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
		{domain.ErrLocked, http.StatusForbidden, "locked"},
		{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{domain.ErrNoActiveTOTP, http.StatusNotFound, "not_found"},
		{domain.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
	}
	for _, tc := range cases {
		t.Run(tc.reason, func(t *testing.T) {
			h := newTestRouter(nil, nil, &stubTOTP{validateErr: tc.err})
			rec := doJSON(t, h, http.MethodPost, "/v1/totp/validate",
				`{"totpCode":"123456","nonce":"n"}`,
				map[string]string{"X-User-ID": uuid.NewString()})
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Reason != tc.reason {
				t.Fatalf("reason = %q, want %q", body.Reason, tc.reason)
			}
		})
	}
}

func TestValidateTOTPLockoutBody(t *testing.T) {
	until := time.Date(2026, 3, 14, 9, 41, 53, 0, time.UTC)
	h := newTestRouter(nil, nil, &stubTOTP{validateErr: &domain.LockoutError{
		LockedUntil:   until,
		TriggerReason: "failed_attempts",
		Remaining:     9 * time.Minute,
	}})

	rec := doJSON(t, h, http.MethodPost, "/v1/totp/validate",
		`{"totpCode":"123456"}`,
		map[string]string{"X-User-ID": uuid.NewString()})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Reason != "locked" {
		t.Fatalf("reason = %q", body.Reason)
	}
	if body.TriggerReason != "failed_attempts" {
		t.Fatalf("triggerReason = %q", body.TriggerReason)
	}
	if body.RetryAfterSeconds != 540 {
		t.Fatalf("retryAfterSeconds = %d, want 540", body.RetryAfterSeconds)
	}
	if body.LockedUntil == nil || !body.LockedUntil.Equal(until) {
		t.Fatalf("lockedUntil = %v, want %v", body.LockedUntil, until)
	}
}

func TestCleanupNoncesWithoutBody(t *testing.T) {
	totps := &stubTOTP{deleted: 7}
	h := newTestRouter(nil, nil, totps)

	rec := doJSON(t, h, http.MethodPost, "/v1/maintenance/nonces/cleanup", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if totps.gotBatch != 0 {
		t.Fatalf("batch = %d, want 0 (service default)", totps.gotBatch)
	}

	var resp dto.CleanupNoncesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Deleted != 7 {
		t.Fatalf("deleted = %d, want 7", resp.Deleted)
	}
}

func TestDeactivateTOTP(t *testing.T) {
	h := newTestRouter(nil, nil, nil)

	rec := doJSON(t, h, http.MethodDelete, "/v1/totp/", "", map[string]string{"X-User-ID": uuid.NewString()})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(nil, nil, nil)

	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
