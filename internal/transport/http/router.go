package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"chrona/internal/domain"
	"chrona/internal/dto"
	"chrona/internal/netutil"
	"chrona/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	// Requests per IP per minute on the public endpoints.
	RateLimit int
}

func NewRouter(cfg RouterConfig, tokens service.TokenService, punches service.PunchService, totps service.TOTPService, recoveries service.RecoveryService) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	if cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	}
	r.Use(withMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/tokens/issue", handleIssueToken(tokens))
		r.Post("/punch/validate", handleValidatePunch(punches))

		r.Route("/totp", func(r chi.Router) {
			r.Post("/provision", handleProvisionTOTP(totps))
			r.Post("/activate", handleActivateTOTP(totps))
			r.Post("/validate", handleValidateTOTP(totps))
			r.Delete("/", handleDeactivateTOTP(totps))

			r.Route("/recovery", func(r chi.Router) {
				r.Post("/use", handleUseRecoveryCode(recoveries))
				r.Get("/status", handleRecoveryStatus(recoveries))
				r.Post("/regenerate", handleRegenerateRecovery(recoveries))
			})
		})

		r.Post("/maintenance/nonces/cleanup", handleCleanupNonces(totps))
	})

	return r
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if normalized, ok := netutil.NormalizeIP(ip); ok {
			return normalized
		}
	}
	if normalized, ok := netutil.NormalizeIP(r.RemoteAddr); ok {
		return normalized
	}
	return r.RemoteAddr
}

// userID reads the authenticated user from the X-User-ID header. Upstream
// authentication is expected to have set it; this service does not verify
// user credentials itself.
func userID(r *http.Request) (domain.UserID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(r.Header.Get("X-User-ID")))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// kioskID reads the authenticated kiosk from the X-Kiosk-ID header.
func kioskID(r *http.Request) (domain.KioskID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(r.Header.Get("X-Kiosk-ID")))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Reason: "bad_request"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`

	ConsumedByKioskID string     `json:"consumedByKioskId,omitempty"`
	ConsumedAt        *time.Time `json:"consumedAt,omitempty"`

	LockedUntil       *time.Time `json:"lockedUntil,omitempty"`
	TriggerReason     string     `json:"triggerReason,omitempty"`
	RetryAfterSeconds int64      `json:"retryAfterSeconds,omitempty"`
}

func writeServiceError(w http.ResponseWriter, err error) {
	var replay *domain.ReplayError
	if errors.As(err, &replay) {
		body := errorBody{Error: replay.Error(), Reason: "replay_detected"}
		if replay.ConsumedByKioskID != nil {
			body.ConsumedByKioskID = replay.ConsumedByKioskID.String()
		}
		body.ConsumedAt = replay.ConsumedAt
		writeJSON(w, http.StatusConflict, body)
		return
	}

	var lockout *domain.LockoutError
	if errors.As(err, &lockout) {
		writeJSON(w, http.StatusForbidden, errorBody{
			Error:             lockout.Error(),
			Reason:            "locked",
			LockedUntil:       &lockout.LockedUntil,
			TriggerReason:     lockout.TriggerReason,
			RetryAfterSeconds: int64(lockout.Remaining.Seconds()),
		})
		return
	}

	status, reason := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		status, reason = http.StatusUnauthorized, "invalid_signature"
	case errors.Is(err, domain.ErrWrongTokenType):
		status, reason = http.StatusUnauthorized, "wrong_token_type"
	case errors.Is(err, domain.ErrTokenExpired):
		status, reason = http.StatusUnauthorized, "token_expired"
	case errors.Is(err, domain.ErrUnknownToken):
		status, reason = http.StatusUnauthorized, "unknown_token"
	case errors.Is(err, domain.ErrReplayDetected):
		status, reason = http.StatusConflict, "replay_detected"
	case errors.Is(err, domain.ErrInvalidPunchType):
		status, reason = http.StatusBadRequest, "invalid_punch_type"
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrDeviceNotFound),
		errors.Is(err, domain.ErrKioskNotFound),
		errors.Is(err, domain.ErrSecretNotFound),
		errors.Is(err, domain.ErrNoActiveTOTP):
		status, reason = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrDeviceRevoked):
		status, reason = http.StatusConflict, "device_revoked"
	case errors.Is(err, domain.ErrKioskInactive):
		status, reason = http.StatusConflict, "kiosk_inactive"
	case errors.Is(err, domain.ErrUserDisabled):
		status, reason = http.StatusConflict, "user_disabled"
	case errors.Is(err, domain.ErrKioskMismatch):
		status, reason = http.StatusForbidden, "kiosk_mismatch"
	case errors.Is(err, domain.ErrTOTPActive):
		status, reason = http.StatusConflict, "totp_already_active"
	case errors.Is(err, domain.ErrAlreadyActive):
		status, reason = http.StatusConflict, "already_activated"
	case errors.Is(err, domain.ErrProvisionLapsed):
		status, reason = http.StatusGone, "provisioning_window_expired"
	case errors.Is(err, domain.ErrInvalidCode):
		status, reason = http.StatusBadRequest, "invalid_code"
	case errors.Is(err, domain.ErrInvalidRecovery):
		status, reason = http.StatusBadRequest, "invalid_recovery_code"
	case errors.Is(err, domain.ErrRateLimited):
		status, reason = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, domain.ErrLocked):
		status, reason = http.StatusForbidden, "locked"
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Reason: reason})
}

func unauthorized(w http.ResponseWriter, header string) {
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing or invalid " + header, Reason: "unauthenticated"})
}

func handleIssueToken(tokens service.TokenService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(r)
		if !ok {
			unauthorized(w, "X-User-ID")
			return
		}
		var req dto.IssueTokenRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		deviceID, err := uuid.Parse(strings.TrimSpace(req.DeviceID))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid deviceId", Reason: "bad_request"})
			return
		}
		resp, err := tokens.Issue(r.Context(), uid, deviceID, clientIP(r), r.UserAgent())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleValidatePunch(punches service.PunchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kid, ok := kioskID(r)
		if !ok {
			unauthorized(w, "X-Kiosk-ID")
			return
		}
		var req dto.ValidatePunchRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := punches.Validate(r.Context(), kid, req, clientIP(r), r.UserAgent())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleProvisionTOTP(totps service.TOTPService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(r)
		if !ok {
			unauthorized(w, "X-User-ID")
			return
		}
		var req dto.ProvisionTOTPRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := totps.Provision(r.Context(), uid, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleActivateTOTP(totps service.TOTPService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(r)
		if !ok {
			unauthorized(w, "X-User-ID")
			return
		}
		var req dto.ActivateTOTPRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := totps.Activate(r.Context(), uid, req, clientIP(r), r.UserAgent())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleValidateTOTP(totps service.TOTPService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(r)
		if !ok {
			unauthorized(w, "X-User-ID")
			return
		}
		var req dto.ValidateTOTPRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := totps.Validate(r.Context(), uid, req, clientIP(r), r.UserAgent())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleDeactivateTOTP(totps service.TOTPService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(r)
		if !ok {
			unauthorized(w, "X-User-ID")
			return
		}
		if err := totps.Deactivate(r.Context(), uid); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleUseRecoveryCode(recoveries service.RecoveryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(r)
		if !ok {
			unauthorized(w, "X-User-ID")
			return
		}
		var req dto.UseRecoveryCodeRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := recoveries.Use(r.Context(), uid, req, clientIP(r), r.UserAgent())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleRecoveryStatus(recoveries service.RecoveryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(r)
		if !ok {
			unauthorized(w, "X-User-ID")
			return
		}
		resp, err := recoveries.Status(r.Context(), uid)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleRegenerateRecovery(recoveries service.RecoveryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(r)
		if !ok {
			unauthorized(w, "X-User-ID")
			return
		}
		resp, err := recoveries.Regenerate(r.Context(), uid, clientIP(r), r.UserAgent())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleCleanupNonces(totps service.TOTPService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Body is optional; an absent one means the default batch size.
		var req dto.CleanupNoncesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Reason: "bad_request"})
			return
		}
		deleted, err := totps.CleanupNonces(r.Context(), req.BatchSize)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, dto.CleanupNoncesResponse{Deleted: deleted})
	}
}
