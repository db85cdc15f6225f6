package impl

import (
	"context"
	"errors"
	"time"

	"chrona/internal/domain"
	"chrona/internal/store"

	"github.com/google/uuid"
)

// The services talk to the store through these narrow interfaces so tests can
// substitute in-memory implementations.

type dataStore interface {
	WithTx(ctx context.Context, fn func(tx storeTx) error) error
}

type storeTx interface {
	Users() userStore
	Devices() deviceStore
	Kiosks() kioskStore
	Tokens() tokenStore
	Punches() punchStore
	TOTPSecrets() totpSecretStore
	RecoveryCodes() recoveryCodeStore
	Attempts() attemptStore
	Lockouts() lockoutStore
	Nonces() nonceStore
}

type userStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

type deviceStore interface {
	Get(ctx context.Context, deviceID uuid.UUID) (*domain.Device, error)
	GetForUser(ctx context.Context, deviceID, userID uuid.UUID) (*domain.Device, error)
	TouchLastSeen(ctx context.Context, deviceID uuid.UUID, at time.Time) error
}

type kioskStore interface {
	Get(ctx context.Context, kioskID uuid.UUID) (*domain.Kiosk, error)
}

type tokenStore interface {
	Create(ctx context.Context, tok *domain.EphemeralToken) error
	GetByJTI(ctx context.Context, jti uuid.UUID) (*domain.EphemeralToken, error)
	Consume(ctx context.Context, jti uuid.UUID, kioskID domain.KioskID, at time.Time) (bool, error)
}

type punchStore interface {
	Create(ctx context.Context, punch *domain.Punch) error
}

type totpSecretStore interface {
	Create(ctx context.Context, secret *domain.TOTPSecret) error
	Get(ctx context.Context, id uuid.UUID) (*domain.TOTPSecret, error)
	GetActive(ctx context.Context, userID uuid.UUID) (*domain.TOTPSecret, error)
	Activate(ctx context.Context, id uuid.UUID, at time.Time) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

type recoveryCodeStore interface {
	CreateBatch(ctx context.Context, codes []*domain.RecoveryCode) error
	ListUnused(ctx context.Context, userID uuid.UUID) ([]*domain.RecoveryCode, error)
	ListAll(ctx context.Context, userID uuid.UUID) ([]*domain.RecoveryCode, error)
	MarkUsed(ctx context.Context, id uuid.UUID, at time.Time, ip string) (bool, error)
	DeleteUnused(ctx context.Context, userID, totpSecretID uuid.UUID) (int64, error)
}

type attemptStore interface {
	Record(ctx context.Context, attempt *domain.ValidationAttempt) error
	CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)
	CountFailedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)
}

type lockoutStore interface {
	GetActive(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.Lockout, error)
	DeactivateAll(ctx context.Context, userID uuid.UUID, at time.Time) error
	Create(ctx context.Context, lockout *domain.Lockout) error
}

type nonceStore interface {
	Insert(ctx context.Context, entry *domain.NonceBlacklistEntry) error
	Exists(ctx context.Context, nonce string) (bool, error)
	Cleanup(ctx context.Context, cutoff time.Time, batchSize int) (int64, error)
}

type gormStoreAdapter struct {
	store *store.Store
}

func (g gormStoreAdapter) WithTx(ctx context.Context, fn func(tx storeTx) error) error {
	if g.store == nil {
		return errors.New("nil store")
	}
	return g.store.WithTx(ctx, func(tx *store.Store) error {
		return fn(gormTxAdapter{tx: tx})
	})
}

type gormTxAdapter struct {
	tx *store.Store
}

func (g gormTxAdapter) Users() userStore                 { return g.tx.Users() }
func (g gormTxAdapter) Devices() deviceStore             { return g.tx.Devices() }
func (g gormTxAdapter) Kiosks() kioskStore               { return g.tx.Kiosks() }
func (g gormTxAdapter) Tokens() tokenStore               { return g.tx.Tokens() }
func (g gormTxAdapter) Punches() punchStore              { return g.tx.Punches() }
func (g gormTxAdapter) TOTPSecrets() totpSecretStore     { return g.tx.TOTPSecrets() }
func (g gormTxAdapter) RecoveryCodes() recoveryCodeStore { return g.tx.RecoveryCodes() }
func (g gormTxAdapter) Attempts() attemptStore           { return g.tx.Attempts() }
func (g gormTxAdapter) Lockouts() lockoutStore           { return g.tx.Lockouts() }
func (g gormTxAdapter) Nonces() nonceStore               { return g.tx.Nonces() }
