package store

import (
	"context"
	"time"

	"chrona/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TOTPSecretStore struct{ db *gorm.DB }

func (s *Store) TOTPSecrets() *TOTPSecretStore { return &TOTPSecretStore{db: s.DB} }

func (t *TOTPSecretStore) Create(ctx context.Context, secret *domain.TOTPSecret) error {
	if secret.ID == uuid.Nil {
		secret.ID = uuid.New()
	}
	return t.db.WithContext(ctx).Create(secret).Error
}

func (t *TOTPSecretStore) Get(ctx context.Context, id uuid.UUID) (*domain.TOTPSecret, error) {
	var secret domain.TOTPSecret
	if err := t.db.WithContext(ctx).First(&secret, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &secret, nil
}

// GetActive returns the user's activated, active secret if any.
func (t *TOTPSecretStore) GetActive(ctx context.Context, userID uuid.UUID) (*domain.TOTPSecret, error) {
	var secret domain.TOTPSecret
	err := t.db.WithContext(ctx).
		First(&secret, "user_id = ? AND is_active AND is_activated", userID).Error
	if err != nil {
		return nil, err
	}
	return &secret, nil
}

func (t *TOTPSecretStore) Activate(ctx context.Context, id uuid.UUID, at time.Time) error {
	return t.db.WithContext(ctx).
		Model(&domain.TOTPSecret{}).
		Where("id = ? AND NOT is_activated", id).
		Updates(map[string]any{
			"is_activated": true,
			"activated_at": at,
			"last_used_at": at,
		}).Error
}

// Deactivate marks the row inactive. Reactivation is not supported; a new
// provisioning run creates a new row.
func (t *TOTPSecretStore) Deactivate(ctx context.Context, id uuid.UUID) error {
	return t.db.WithContext(ctx).
		Model(&domain.TOTPSecret{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

func (t *TOTPSecretStore) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return t.db.WithContext(ctx).
		Model(&domain.TOTPSecret{}).
		Where("id = ?", id).
		Update("last_used_at", at).Error
}
