package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Punch validation failures.
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrWrongTokenType   = errors.New("wrong token type")
	ErrTokenExpired     = errors.New("token expired")
	ErrUnknownToken     = errors.New("unknown token")
	ErrReplayDetected   = errors.New("replay detected")
	ErrInvalidPunchType = errors.New("invalid punch type")

	// Domain object failures.
	ErrUserNotFound    = errors.New("user not found")
	ErrUserDisabled    = errors.New("user disabled")
	ErrDeviceNotFound  = errors.New("device not found")
	ErrDeviceRevoked   = errors.New("device revoked")
	ErrKioskNotFound   = errors.New("kiosk not found")
	ErrKioskInactive   = errors.New("kiosk inactive")
	ErrKioskMismatch   = errors.New("kiosk mismatch")
	ErrSecretNotFound  = errors.New("totp secret not found")
	ErrNoActiveTOTP    = errors.New("no active totp")
	ErrTOTPActive      = errors.New("user already has active totp")
	ErrAlreadyActive   = errors.New("totp already activated")
	ErrProvisionLapsed = errors.New("provisioning window expired")
	ErrInvalidCode     = errors.New("invalid totp code")
	ErrInvalidRecovery = errors.New("invalid or expired recovery code")

	// Security guard failures.
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrLocked      = errors.New("account locked")

	// Crypto failures always fail closed.
	ErrCryptoFailure = errors.New("crypto failure")
)

// ReplayError carries the identity of the consumer that won the race so the
// rejection can cite who used the token first.
type ReplayError struct {
	ConsumedByKioskID *KioskID
	ConsumedAt        *time.Time
}

func (e *ReplayError) Error() string {
	if e.ConsumedByKioskID == nil || e.ConsumedAt == nil {
		return ErrReplayDetected.Error()
	}
	return fmt.Sprintf("replay detected: consumed by kiosk %s at %s",
		e.ConsumedByKioskID, e.ConsumedAt.UTC().Format(time.RFC3339))
}

func (e *ReplayError) Unwrap() error { return ErrReplayDetected }

// LockoutError carries when the lockout ends and what tripped it so the
// rejection can tell the caller how long to wait.
type LockoutError struct {
	LockedUntil   time.Time
	TriggerReason string
	Remaining     time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account locked (%s): retry in %ds",
		e.TriggerReason, int(e.Remaining.Seconds()))
}

func (e *LockoutError) Unwrap() error { return ErrLocked }
