package domain

import "time"

type User struct {
	ID         UserID    `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Email      string    `gorm:"type:citext;uniqueIndex:ux_users_email" db:"email" json:"email"`
	IsDisabled bool      `gorm:"not null;default:false" db:"is_disabled" json:"isDisabled"`
	CreatedAt  time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (User) TableName() string { return "users" }
