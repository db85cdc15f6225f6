package domain

import (
	"time"

	"github.com/google/uuid"
)

// TOTPSecret stores an envelope-encrypted authenticator secret. At most one
// row per user may be both is_active and is_activated; provisioning checks
// this inside the same transaction that inserts the row.
type TOTPSecret struct {
	ID                    TOTPSecretID `gorm:"type:uuid;primaryKey" db:"id"`
	UserID                UserID       `gorm:"type:uuid;index;not null" db:"user_id"`
	DeviceID              *DeviceID    `gorm:"type:uuid" db:"device_id"`
	EncryptedSecret       []byte       `gorm:"type:bytea;not null" db:"encrypted_secret"`
	EncryptionKeyID       string       `gorm:"type:text;not null" db:"encryption_key_id"`
	Algorithm             string       `gorm:"type:text;not null;default:SHA256" db:"algorithm"`
	Digits                int          `gorm:"not null;default:6" db:"digits"`
	Period                int          `gorm:"not null;default:30" db:"period"`
	ProvisioningExpiresAt time.Time    `gorm:"not null" db:"provisioning_expires_at"`
	IsActivated           bool         `gorm:"not null;default:false" db:"is_activated"`
	IsActive              bool         `gorm:"not null;default:true;index" db:"is_active"`
	ActivatedAt           *time.Time   `db:"activated_at"`
	LastUsedAt            *time.Time   `db:"last_used_at"`
	KeyRotationDueAt      time.Time    `gorm:"not null" db:"key_rotation_due_at"`
	CreatedAt             time.Time    `gorm:"not null" db:"created_at"`
}

func (TOTPSecret) TableName() string { return "totp_secrets" }

// RecoveryCode is a single-use backup code. Only a slow-KDF hash and a short
// hint are persisted; the plaintext is shown once at generation time.
type RecoveryCode struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" db:"id"`
	UserID         UserID       `gorm:"type:uuid;index;not null" db:"user_id"`
	TOTPSecretID   TOTPSecretID `gorm:"type:uuid;index;not null" db:"totp_secret_id"`
	CodeHash       []byte       `gorm:"type:bytea;not null" db:"code_hash"`
	CodeSalt       []byte       `gorm:"type:bytea;not null" db:"code_salt"`
	HashIterations int          `gorm:"not null" db:"hash_iterations"`
	Hint           string       `gorm:"type:text;not null" db:"hint"`
	IsUsed         bool         `gorm:"not null;default:false" db:"is_used"`
	UsedAt         *time.Time   `db:"used_at"`
	UsedFromIP     string       `gorm:"type:text" db:"used_from_ip"`
	ExpiresAt      *time.Time   `db:"expires_at"`
	CreatedAt      time.Time    `gorm:"not null" db:"created_at"`
}

func (RecoveryCode) TableName() string { return "totp_recovery_codes" }

// NonceBlacklistEntry marks a nonce as consumed. The unique key on nonce is
// the replay detector: a second insert fails.
type NonceBlacklistEntry struct {
	Nonce          string    `gorm:"type:text;primaryKey" db:"nonce"`
	UserID         UserID    `gorm:"type:uuid;index;not null" db:"user_id"`
	KioskID        *KioskID  `gorm:"type:uuid" db:"kiosk_id"`
	JWTJTI         string    `gorm:"type:text" db:"jwt_jti"`
	JWTExpiresAt   time.Time `gorm:"not null;index" db:"jwt_expires_at"`
	ConsumedAt     time.Time `gorm:"not null" db:"consumed_at"`
	ConsumedFromIP string    `gorm:"type:text" db:"consumed_from_ip"`
}

func (NonceBlacklistEntry) TableName() string { return "totp_nonce_blacklist" }

// ValidationAttempt is append-only; the guard only ever counts rows in a
// sliding window.
type ValidationAttempt struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" db:"id"`
	UserID        UserID    `gorm:"type:uuid;index;not null" db:"user_id"`
	KioskID       *KioskID  `gorm:"type:uuid" db:"kiosk_id"`
	IsSuccess     bool      `gorm:"not null" db:"is_success"`
	FailureReason string    `gorm:"type:text" db:"failure_reason"`
	AttemptedAt   time.Time `gorm:"not null;index" db:"attempted_at"`
	IPAddress     string    `gorm:"type:text" db:"ip_address"`
	UserAgent     string    `gorm:"type:text" db:"user_agent"`
	JWTJTI        string    `gorm:"type:text" db:"jwt_jti"`
	Nonce         string    `gorm:"type:text" db:"nonce"`
}

func (ValidationAttempt) TableName() string { return "totp_validation_attempts" }

// Lockout suspends a user's TOTP validation. At most one row per user is
// active; creating a new lockout deactivates prior active rows first.
type Lockout struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey" db:"id"`
	UserID              UserID     `gorm:"type:uuid;index;not null" db:"user_id"`
	LockedAt            time.Time  `gorm:"not null" db:"locked_at"`
	LockedUntil         time.Time  `gorm:"not null;index" db:"locked_until"`
	FailedAttemptsCount int        `gorm:"not null" db:"failed_attempts_count"`
	TriggerReason       string     `gorm:"type:text;not null" db:"trigger_reason"`
	IsActive            bool       `gorm:"not null;default:true;index" db:"is_active"`
	ReleasedAt          *time.Time `db:"released_at"`
	ReleasedBy          string     `gorm:"type:text" db:"released_by"`
	IPAddress           string     `gorm:"type:text" db:"ip_address"`
}

func (Lockout) TableName() string { return "totp_lockouts" }
