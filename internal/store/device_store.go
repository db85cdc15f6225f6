package store

import (
	"context"
	"time"

	"chrona/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeviceStore struct{ db *gorm.DB }

func (s *Store) Devices() *DeviceStore { return &DeviceStore{db: s.DB} }

func (d *DeviceStore) Create(ctx context.Context, device *domain.Device) error {
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	return d.db.WithContext(ctx).Create(device).Error
}

func (d *DeviceStore) Get(ctx context.Context, deviceID uuid.UUID) (*domain.Device, error) {
	var device domain.Device
	if err := d.db.WithContext(ctx).First(&device, "id = ?", deviceID).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

// GetForUser fetches a device only if it belongs to userID.
func (d *DeviceStore) GetForUser(ctx context.Context, deviceID, userID uuid.UUID) (*domain.Device, error) {
	var device domain.Device
	if err := d.db.WithContext(ctx).First(&device, "id = ? AND user_id = ?", deviceID, userID).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

func (d *DeviceStore) TouchLastSeen(ctx context.Context, deviceID uuid.UUID, at time.Time) error {
	return d.db.WithContext(ctx).
		Model(&domain.Device{}).
		Where("id = ?", deviceID).
		Update("last_seen_at", at).Error
}

func (d *DeviceStore) Revoke(ctx context.Context, deviceID uuid.UUID) error {
	return d.db.WithContext(ctx).
		Model(&domain.Device{}).
		Where("id = ? AND revoked_at IS NULL", deviceID).
		Update("revoked_at", time.Now().UTC()).Error
}
