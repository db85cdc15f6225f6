package domain

import "time"

// Kiosk is an authorized tablet scanning station.
type Kiosk struct {
	ID                KioskID   `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Name              string    `gorm:"type:text;uniqueIndex:ux_kiosks_name;not null" db:"name" json:"name"`
	Location          string    `gorm:"type:text;not null" db:"location" json:"location"`
	DeviceFingerprint string    `gorm:"type:text;uniqueIndex:ux_kiosks_fingerprint;not null" db:"device_fingerprint" json:"-"`
	APIKeyHash        *string   `gorm:"type:text" db:"api_key_hash" json:"-"`
	IsActive          bool      `gorm:"not null;default:true;index" db:"is_active" json:"isActive"`
	CreatedAt         time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
}

func (Kiosk) TableName() string { return "kiosks" }
