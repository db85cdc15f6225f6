package impl

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chrona/internal/audit"
	"chrona/internal/domain"
	"chrona/internal/dto"
	"chrona/internal/netutil"
	"chrona/internal/observability/metrics"
	"chrona/internal/recovery"
	"chrona/internal/store"
	"chrona/internal/totp"
	"chrona/internal/vault"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"
)

type TOTPConfig struct {
	Issuer          string        // otpauth issuer label, e.g. "Chrona"
	ProvisioningTTL time.Duration // e.g. 300 * time.Second
	RotationPeriod  time.Duration // e.g. 90 * 24 * time.Hour
	VerifyWindow    int           // accepted periods of clock skew each way
	QRSize          int           // PNG edge length in pixels
	Guard           GuardConfig
}

func DefaultTOTPConfig() TOTPConfig {
	return TOTPConfig{
		Issuer:          "Chrona",
		ProvisioningTTL: 300 * time.Second,
		RotationPeriod:  90 * 24 * time.Hour,
		VerifyWindow:    1,
		QRSize:          256,
		Guard:           DefaultGuardConfig(),
	}
}

type TOTPServiceImpl struct {
	cfg   TOTPConfig
	store dataStore
	vault *vault.Vault
	guard guard
	audit audit.Sink

	now func() time.Time
}

func NewTOTPServiceImpl(cfg TOTPConfig, st *store.Store, v *vault.Vault, sink audit.Sink) *TOTPServiceImpl {
	return &TOTPServiceImpl{
		cfg:   cfg,
		store: gormStoreAdapter{store: st},
		vault: v,
		guard: guard{cfg: cfg.Guard},
		audit: sink,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Provision creates a pending secret for the user. The plaintext secret and
// its QR leave the service exactly once, in this response; after the
// provisioning window lapses the row can never be activated.
func (s *TOTPServiceImpl) Provision(ctx context.Context, userID domain.UserID, r dto.ProvisionTOTPRequest) (*dto.ProvisionTOTPResponse, error) {
	now := s.now()

	var deviceID *domain.DeviceID
	if r.DeviceID != "" {
		id, err := uuid.Parse(r.DeviceID)
		if err != nil {
			return nil, domain.ErrDeviceNotFound
		}
		did := domain.DeviceID(id)
		deviceID = &did
	}

	var out dto.ProvisionTOTPResponse
	err := s.store.WithTx(ctx, func(tx storeTx) error {
		user, err := tx.Users().Get(ctx, uuid.UUID(userID))
		if err != nil {
			return domain.ErrUserNotFound
		}

		if _, err := tx.TOTPSecrets().GetActive(ctx, uuid.UUID(userID)); err == nil {
			return domain.ErrTOTPActive
		} else if !errors.Is(err, store.ErrRecordNotFound) {
			return err
		}

		secret, err := totp.GenerateSecret(totp.MinSecretBits)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrCryptoFailure, err)
		}
		encrypted, err := s.vault.Encrypt(secret)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrCryptoFailure, err)
		}

		params := totp.DefaultParams()
		row := &domain.TOTPSecret{
			ID:                    uuid.New(),
			UserID:                userID,
			DeviceID:              deviceID,
			EncryptedSecret:       encrypted,
			EncryptionKeyID:       s.vault.KeyID(),
			Algorithm:             string(params.Algorithm),
			Digits:                params.Digits,
			Period:                params.Period,
			ProvisioningExpiresAt: now.Add(s.cfg.ProvisioningTTL),
			IsActive:              true,
			KeyRotationDueAt:      now.Add(s.cfg.RotationPeriod),
			CreatedAt:             now,
		}
		if err := tx.TOTPSecrets().Create(ctx, row); err != nil {
			return err
		}

		uri := totp.ProvisioningURI(secret, user.Email, s.cfg.Issuer, params)
		png, err := qrcode.Encode(uri, qrcode.Medium, s.cfg.QRSize)
		if err != nil {
			return fmt.Errorf("render qr: %w", err)
		}

		out = dto.ProvisionTOTPResponse{
			TOTPSecretID:    uuid.UUID(row.ID).String(),
			Secret:          secret,
			ProvisioningURI: uri,
			QRPNGBase64:     base64.StdEncoding.EncodeToString(png),
			ExpiresAt:       row.ProvisioningExpiresAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Activate proves the authenticator holds the secret, flips the row to
// activated, and hands out the one-time batch of recovery codes.
func (s *TOTPServiceImpl) Activate(ctx context.Context, userID domain.UserID, r dto.ActivateTOTPRequest, ip, ua string) (*dto.ActivateTOTPResponse, error) {
	now := s.now()
	ip = normalizeIP(ip)
	ua = netutil.TruncateUserAgent(ua)

	secretID, err := uuid.Parse(r.TOTPSecretID)
	if err != nil {
		return nil, domain.ErrSecretNotFound
	}

	var codes []string
	err = s.store.WithTx(ctx, func(tx storeTx) error {
		row, err := tx.TOTPSecrets().Get(ctx, secretID)
		if err != nil {
			return domain.ErrSecretNotFound
		}
		if row.UserID != userID || !row.IsActive {
			return domain.ErrSecretNotFound
		}
		if row.IsActivated {
			return domain.ErrAlreadyActive
		}
		if now.After(row.ProvisioningExpiresAt) {
			return domain.ErrProvisionLapsed
		}

		// Concurrent provisioning runs can leave several pending rows for
		// one user. Re-checking here keeps at most one row per user both
		// is_active and is_activated.
		if _, err := tx.TOTPSecrets().GetActive(ctx, uuid.UUID(userID)); err == nil {
			return domain.ErrTOTPActive
		} else if !errors.Is(err, store.ErrRecordNotFound) {
			return err
		}

		secret, err := s.vault.Decrypt(row.EncryptedSecret)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrCryptoFailure, err)
		}
		params := totp.Params{
			Period:    row.Period,
			Digits:    row.Digits,
			Algorithm: totp.Algorithm(row.Algorithm),
		}
		ok, _, err := totp.Verify(secret, r.VerificationCode, now, params, s.cfg.VerifyWindow)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrCryptoFailure, err)
		}
		if !ok {
			return domain.ErrInvalidCode
		}

		if err := tx.TOTPSecrets().Activate(ctx, secretID, now); err != nil {
			return err
		}

		codes, err = issueRecoveryCodes(ctx, tx, userID, domain.TOTPSecretID(secretID), now)
		return err
	})
	if err != nil {
		return nil, err
	}

	uid := uuid.UUID(userID)
	s.audit.Log(ctx, audit.Event{
		Type:      audit.EventTOTPActivated,
		Severity:  audit.SeverityInfo,
		UserID:    &uid,
		Metadata:  map[string]any{"totp_secret_id": secretID.String()},
		IP:        ip,
		UserAgent: ua,
		At:        now,
	})
	slog.Info("totp activated", "user_id", userID, "totp_secret_id", secretID)

	return &dto.ActivateTOTPResponse{Success: true, RecoveryCodes: codes}, nil
}

// Validate checks a TOTP code under the guard: lockout first, then the rate
// limit, then the nonce blacklist, then the code itself. Every attempt is
// recorded whatever the outcome.
func (s *TOTPServiceImpl) Validate(ctx context.Context, userID domain.UserID, r dto.ValidateTOTPRequest, ip, ua string) (*dto.ValidateTOTPResponse, error) {
	result, reason := "success", "none"
	defer func() {
		metrics.TOTPValidationsTotal.WithLabelValues(result, reason).Inc()
	}()
	fail := func(why string, err error) (*dto.ValidateTOTPResponse, error) {
		result, reason = "failure", why
		return nil, err
	}
	now := s.now()
	ip = normalizeIP(ip)
	ua = netutil.TruncateUserAgent(ua)
	uid := uuid.UUID(userID)

	var kioskID *domain.KioskID
	if r.KioskID != "" {
		id, err := uuid.Parse(r.KioskID)
		if err != nil {
			return fail("kiosk_not_found", domain.ErrKioskNotFound)
		}
		kid := domain.KioskID(id)
		kioskID = &kid
	}

	record := func(tx storeTx, success bool, failureReason string) error {
		return tx.Attempts().Record(ctx, &domain.ValidationAttempt{
			ID:            uuid.New(),
			UserID:        userID,
			KioskID:       kioskID,
			IsSuccess:     success,
			FailureReason: failureReason,
			AttemptedAt:   now,
			IPAddress:     ip,
			UserAgent:     ua,
			JWTJTI:        r.JWTJTI,
			Nonce:         r.Nonce,
		})
	}

	// Rejections are carried out of the transaction in rejected, not returned
	// from the closure: attempt records and lockout rows written on a failed
	// validation must still commit.
	var (
		offset   int
		rejected error
	)
	err := s.store.WithTx(ctx, func(tx storeTx) error {
		if err := s.guard.checkLockout(ctx, tx, uid, now); err != nil {
			if errors.Is(err, domain.ErrLocked) {
				rejected = err
				return nil
			}
			return err
		}
		if err := s.guard.checkRateLimit(ctx, tx, uid, ip, now); err != nil {
			if !errors.Is(err, domain.ErrRateLimited) {
				return err
			}
			s.audit.Log(ctx, audit.Event{
				Type:      audit.EventTOTPLockout,
				Severity:  audit.SeverityWarning,
				UserID:    &uid,
				Metadata:  map[string]any{"trigger": "rate_limit_exceeded"},
				IP:        ip,
				UserAgent: ua,
				At:        now,
			})
			rejected = err
			return nil
		}

		if r.Nonce != "" {
			spent, err := tx.Nonces().Exists(ctx, r.Nonce)
			if err != nil {
				return err
			}
			if spent {
				if err := record(tx, false, "nonce_replayed"); err != nil {
					return err
				}
				metrics.ReplaysDetectedTotal.WithLabelValues("totp_nonce").Inc()
				s.audit.Log(ctx, audit.Event{
					Type:      audit.EventReplayDetected,
					Severity:  audit.SeverityHigh,
					UserID:    &uid,
					Metadata:  map[string]any{"nonce": r.Nonce, "jwt_jti": r.JWTJTI},
					IP:        ip,
					UserAgent: ua,
					At:        now,
				})
				rejected = domain.ErrReplayDetected
				return nil
			}
		}

		row, err := tx.TOTPSecrets().GetActive(ctx, uid)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				rejected = domain.ErrNoActiveTOTP
				return nil
			}
			return err
		}
		secret, err := s.vault.Decrypt(row.EncryptedSecret)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrCryptoFailure, err)
		}
		params := totp.Params{
			Period:    row.Period,
			Digits:    row.Digits,
			Algorithm: totp.Algorithm(row.Algorithm),
		}
		ok, off, err := totp.Verify(secret, r.TOTPCode, now, params, s.cfg.VerifyWindow)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrCryptoFailure, err)
		}

		if !ok {
			if err := record(tx, false, "invalid_code"); err != nil {
				return err
			}
			failed, err := tx.Attempts().CountFailedSince(ctx, uid, now.Add(-s.cfg.Guard.Window))
			if err != nil {
				return err
			}
			if int(failed) >= s.cfg.Guard.MaxAttempts {
				lockout, err := s.guard.triggerLockout(ctx, tx, uid, int(failed), "failed_attempts", ip, now)
				if err != nil {
					return err
				}
				s.audit.Log(ctx, audit.Event{
					Type:      audit.EventTOTPLockout,
					Severity:  audit.SeverityWarning,
					UserID:    &uid,
					Metadata:  map[string]any{"trigger": "failed_attempts", "failed_count": failed},
					IP:        ip,
					UserAgent: ua,
					At:        now,
				})
				rejected = &domain.LockoutError{
					LockedUntil:   lockout.LockedUntil,
					TriggerReason: lockout.TriggerReason,
					Remaining:     lockout.LockedUntil.Sub(now),
				}
				return nil
			}
			if int(failed) >= s.cfg.Guard.AlertThreshold {
				s.audit.Log(ctx, audit.Event{
					Type:      audit.EventTOTPAlert,
					Severity:  audit.SeverityWarning,
					UserID:    &uid,
					Metadata:  map[string]any{"failed_count": failed},
					IP:        ip,
					UserAgent: ua,
					At:        now,
				})
			}
			rejected = domain.ErrInvalidCode
			return nil
		}

		if r.Nonce != "" {
			entry := &domain.NonceBlacklistEntry{
				Nonce:          r.Nonce,
				UserID:         userID,
				KioskID:        kioskID,
				JWTJTI:         r.JWTJTI,
				JWTExpiresAt:   now.Add(time.Duration(row.Period) * time.Second),
				ConsumedAt:     now,
				ConsumedFromIP: ip,
			}
			if err := s.guard.blacklistNonce(ctx, tx, entry); err != nil {
				if !errors.Is(err, domain.ErrReplayDetected) {
					return err
				}
				if err := record(tx, false, "nonce_replayed"); err != nil {
					return err
				}
				metrics.ReplaysDetectedTotal.WithLabelValues("totp_nonce").Inc()
				rejected = domain.ErrReplayDetected
				return nil
			}
		}
		if err := record(tx, true, ""); err != nil {
			return err
		}
		if err := tx.TOTPSecrets().TouchLastUsed(ctx, uuid.UUID(row.ID), now); err != nil {
			return err
		}
		offset = off
		return nil
	})
	if err != nil {
		return fail(totpReasonFor(err), err)
	}
	if rejected != nil {
		return fail(totpReasonFor(rejected), rejected)
	}

	return &dto.ValidateTOTPResponse{Success: true, TimeOffsetPeriods: &offset}, nil
}

// Deactivate retires the active secret and shreds its unused recovery codes.
// Reactivation is not supported; re-enrollment starts a new provisioning run.
func (s *TOTPServiceImpl) Deactivate(ctx context.Context, userID domain.UserID) error {
	now := s.now()
	uid := uuid.UUID(userID)

	err := s.store.WithTx(ctx, func(tx storeTx) error {
		row, err := tx.TOTPSecrets().GetActive(ctx, uid)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrNoActiveTOTP
			}
			return err
		}
		if err := tx.TOTPSecrets().Deactivate(ctx, uuid.UUID(row.ID)); err != nil {
			return err
		}
		_, err = tx.RecoveryCodes().DeleteUnused(ctx, uid, uuid.UUID(row.ID))
		return err
	})
	if err != nil {
		return err
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.EventTOTPDeactivated,
		Severity: audit.SeverityInfo,
		UserID:   &uid,
		At:       now,
	})
	return nil
}

// CleanupNonces prunes blacklist entries whose token expiry plus the grace
// period has passed. Entries inside the grace period stay: rejecting late
// replays matters more than the disk space.
func (s *TOTPServiceImpl) CleanupNonces(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}
	now := s.now()

	var deleted int64
	err := s.store.WithTx(ctx, func(tx storeTx) error {
		var err error
		deleted, err = s.guard.cleanupNonces(ctx, tx, now, batchSize)
		return err
	})
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		slog.Info("nonce blacklist cleaned", "deleted", deleted)
	}
	return deleted, nil
}

// issueRecoveryCodes writes a fresh batch inside the caller's transaction and
// returns the plaintext codes, which are never persisted.
func issueRecoveryCodes(ctx context.Context, tx storeTx, userID domain.UserID, secretID domain.TOTPSecretID, now time.Time) ([]string, error) {
	plain := make([]string, 0, recovery.DefaultCount)
	rows := make([]*domain.RecoveryCode, 0, recovery.DefaultCount)
	for i := 0; i < recovery.DefaultCount; i++ {
		code, err := recovery.GenerateCode()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCryptoFailure, err)
		}
		hash, salt, iterations, err := recovery.HashCode(code)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrCryptoFailure, err)
		}
		plain = append(plain, code)
		rows = append(rows, &domain.RecoveryCode{
			ID:             uuid.New(),
			UserID:         userID,
			TOTPSecretID:   secretID,
			CodeHash:       hash,
			CodeSalt:       salt,
			HashIterations: iterations,
			Hint:           recovery.Hint(code),
			CreatedAt:      now,
		})
	}
	if err := tx.RecoveryCodes().CreateBatch(ctx, rows); err != nil {
		return nil, err
	}
	return plain, nil
}

func totpReasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrLocked):
		return "locked"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrReplayDetected):
		return "nonce_replayed"
	case errors.Is(err, domain.ErrNoActiveTOTP):
		return "no_active_totp"
	case errors.Is(err, domain.ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, domain.ErrCryptoFailure):
		return "crypto_failure"
	case errors.Is(err, domain.ErrKioskNotFound):
		return "kiosk_not_found"
	default:
		return "internal"
	}
}
