package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" db:"id"`
	EventType string    `gorm:"type:text;not null;index" db:"event_type"`
	Severity  string    `gorm:"type:text;not null;default:info" db:"severity"`
	UserID    *UserID   `gorm:"type:uuid;index" db:"user_id"`
	DeviceID  *DeviceID `gorm:"type:uuid" db:"device_id"`
	KioskID   *KioskID  `gorm:"type:uuid" db:"kiosk_id"`
	EventData []byte    `gorm:"type:jsonb" db:"event_data"`
	IPAddress string    `gorm:"type:text" db:"ip_address"`
	UserAgent string    `gorm:"type:text" db:"user_agent"`
	CreatedAt time.Time `gorm:"not null;index" db:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
