package impl

import (
	"context"
	"errors"
	"time"

	"chrona/internal/domain"
	"chrona/internal/observability/metrics"
	"chrona/internal/store"

	"github.com/google/uuid"
)

// GuardConfig tunes the abuse controls around TOTP validation.
type GuardConfig struct {
	Window          time.Duration // sliding window for attempt counting
	MaxAttempts     int           // attempts per window before lockout
	AlertThreshold  int           // failed attempts per window before an alert event
	LockoutDuration time.Duration
	NonceGrace      time.Duration // retention past jwt_expires_at before cleanup
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Window:          10 * time.Minute,
		MaxAttempts:     5,
		AlertThreshold:  3,
		LockoutDuration: 15 * time.Minute,
		NonceGrace:      24 * time.Hour,
	}
}

// guard enforces the rate limit, the lockout state machine, and the nonce
// blacklist. It operates inside the caller's transaction.
type guard struct {
	cfg GuardConfig
}

// checkLockout rejects while an unexpired lockout is active. The rejection
// carries the release time and trigger reason from the lockout row.
func (g guard) checkLockout(ctx context.Context, tx storeTx, userID uuid.UUID, now time.Time) error {
	lo, err := tx.Lockouts().GetActive(ctx, userID, now)
	if err == nil {
		return &domain.LockoutError{
			LockedUntil:   lo.LockedUntil,
			TriggerReason: lo.TriggerReason,
			Remaining:     lo.LockedUntil.Sub(now),
		}
	}
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil
	}
	return err
}

// checkRateLimit counts all attempts (success or not) in the window and
// converts an excess into a fresh lockout.
func (g guard) checkRateLimit(ctx context.Context, tx storeTx, userID uuid.UUID, ip string, now time.Time) error {
	n, err := tx.Attempts().CountSince(ctx, userID, now.Add(-g.cfg.Window))
	if err != nil {
		return err
	}
	if int(n) < g.cfg.MaxAttempts {
		return nil
	}
	if _, err := g.triggerLockout(ctx, tx, userID, int(n), "rate_limit_exceeded", ip, now); err != nil {
		return err
	}
	return domain.ErrRateLimited
}

// triggerLockout deactivates any previous lockouts first so at most one row
// per user stays active. The created row is returned so the caller can report
// the release time.
func (g guard) triggerLockout(ctx context.Context, tx storeTx, userID uuid.UUID, failedCount int, reason, ip string, now time.Time) (*domain.Lockout, error) {
	if err := tx.Lockouts().DeactivateAll(ctx, userID, now); err != nil {
		return nil, err
	}
	metrics.LockoutsTotal.WithLabelValues(reason).Inc()
	lockout := &domain.Lockout{
		ID:                  uuid.New(),
		UserID:              domain.UserID(userID),
		LockedAt:            now,
		LockedUntil:         now.Add(g.cfg.LockoutDuration),
		FailedAttemptsCount: failedCount,
		TriggerReason:       reason,
		IsActive:            true,
		IPAddress:           ip,
	}
	if err := tx.Lockouts().Create(ctx, lockout); err != nil {
		return nil, err
	}
	return lockout, nil
}

// blacklistNonce records the nonce as consumed. A duplicate insert means the
// nonce was already spent and is reported as a replay.
func (g guard) blacklistNonce(ctx context.Context, tx storeTx, entry *domain.NonceBlacklistEntry) error {
	err := tx.Nonces().Insert(ctx, entry)
	if errors.Is(err, store.ErrDuplicateKey) {
		return domain.ErrReplayDetected
	}
	return err
}

func (g guard) cleanupNonces(ctx context.Context, tx storeTx, now time.Time, batchSize int) (int64, error) {
	return tx.Nonces().Cleanup(ctx, now.Add(-g.cfg.NonceGrace), batchSize)
}
