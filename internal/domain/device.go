package domain

import "time"

type Device struct {
	ID         DeviceID   `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	UserID     UserID     `gorm:"type:uuid;index" db:"user_id" json:"userId"`
	Name       string     `gorm:"type:text;not null" db:"name" json:"name"`
	Platform   string     `gorm:"type:text;not null" db:"platform" json:"platform"`
	LastSeenAt *time.Time `db:"last_seen_at" json:"lastSeenAt"`
	CreatedAt  time.Time  `gorm:"not null" db:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null" db:"updated_at"`
	RevokedAt  *time.Time `db:"revoked_at"`
}

func (Device) TableName() string { return "devices" }
