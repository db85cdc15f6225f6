package store

import (
	"context"
	"time"

	"chrona/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TokenStore struct{ db *gorm.DB }

func (s *Store) Tokens() *TokenStore { return &TokenStore{db: s.DB} }

func (t *TokenStore) Create(ctx context.Context, tok *domain.EphemeralToken) error {
	return t.db.WithContext(ctx).Create(tok).Error
}

func (t *TokenStore) GetByJTI(ctx context.Context, jti uuid.UUID) (*domain.EphemeralToken, error) {
	var tok domain.EphemeralToken
	if err := t.db.WithContext(ctx).First(&tok, "jti = ?", jti).Error; err != nil {
		return nil, err
	}
	return &tok, nil
}

// Consume flips consumed_at and consumed_by_kiosk_id in one conditional
// update. The WHERE clause on consumed_at IS NULL makes the database
// arbitrate concurrent consumers: exactly one caller sees consumed == true.
func (t *TokenStore) Consume(ctx context.Context, jti uuid.UUID, kioskID domain.KioskID, at time.Time) (bool, error) {
	tx := t.db.WithContext(ctx).
		Model(&domain.EphemeralToken{}).
		Where("jti = ? AND consumed_at IS NULL", jti).
		Updates(map[string]any{
			"consumed_at":          at,
			"consumed_by_kiosk_id": kioskID,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}
