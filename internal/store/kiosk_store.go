package store

import (
	"context"

	"chrona/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type KioskStore struct{ db *gorm.DB }

func (s *Store) Kiosks() *KioskStore { return &KioskStore{db: s.DB} }

func (k *KioskStore) Create(ctx context.Context, kiosk *domain.Kiosk) error {
	if kiosk.ID == uuid.Nil {
		kiosk.ID = uuid.New()
	}
	return k.db.WithContext(ctx).Create(kiosk).Error
}

func (k *KioskStore) Get(ctx context.Context, kioskID uuid.UUID) (*domain.Kiosk, error) {
	var kiosk domain.Kiosk
	if err := k.db.WithContext(ctx).First(&kiosk, "id = ?", kioskID).Error; err != nil {
		return nil, err
	}
	return &kiosk, nil
}
