package domain

import (
	"time"

	"github.com/google/uuid"
)

// EphemeralToken is the ledger row backing a single-use QR credential.
// The signature on the credential proves authenticity; this row is what
// enforces single use. consumed_at flips null -> set exactly once, together
// with consumed_by_kiosk_id, via a conditional update. Rows are retained
// after consumption for forensics.
type EphemeralToken struct {
	JTI               uuid.UUID  `gorm:"type:uuid;primaryKey" db:"jti"`
	Nonce             uuid.UUID  `gorm:"type:uuid;uniqueIndex:ux_ephemeral_tokens_nonce;not null" db:"nonce"`
	UserID            UserID     `gorm:"type:uuid;index;not null" db:"user_id"`
	DeviceID          DeviceID   `gorm:"type:uuid;not null" db:"device_id"`
	IssuedAt          time.Time  `gorm:"not null" db:"issued_at"`
	ExpiresAt         time.Time  `gorm:"not null;index" db:"expires_at"`
	ConsumedAt        *time.Time `db:"consumed_at"`
	ConsumedByKioskID *KioskID   `gorm:"type:uuid" db:"consumed_by_kiosk_id"`
}

func (EphemeralToken) TableName() string { return "ephemeral_tokens" }

type PunchType string

const (
	PunchClockIn  PunchType = "clock_in"
	PunchClockOut PunchType = "clock_out"
)

func (p PunchType) Valid() bool {
	return p == PunchClockIn || p == PunchClockOut
}

// Punch is an attendance event created from a consumed token.
type Punch struct {
	ID        PunchID   `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	UserID    UserID    `gorm:"type:uuid;index;not null" db:"user_id" json:"userId"`
	DeviceID  DeviceID  `gorm:"type:uuid;index;not null" db:"device_id" json:"deviceId"`
	KioskID   KioskID   `gorm:"type:uuid;index;not null" db:"kiosk_id" json:"kioskId"`
	PunchType PunchType `gorm:"type:text;not null" db:"punch_type" json:"punchType"`
	PunchedAt time.Time `gorm:"not null;index" db:"punched_at" json:"punchedAt"`
	JWTJTI    uuid.UUID `gorm:"type:uuid;uniqueIndex:ux_punches_jti;not null" db:"jwt_jti" json:"-"`
	CreatedAt time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
}

func (Punch) TableName() string { return "punches" }
