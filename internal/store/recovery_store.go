package store

import (
	"context"
	"time"

	"chrona/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RecoveryCodeStore struct{ db *gorm.DB }

func (s *Store) RecoveryCodes() *RecoveryCodeStore { return &RecoveryCodeStore{db: s.DB} }

func (r *RecoveryCodeStore) CreateBatch(ctx context.Context, codes []*domain.RecoveryCode) error {
	for _, c := range codes {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(codes).Error
}

func (r *RecoveryCodeStore) ListUnused(ctx context.Context, userID uuid.UUID) ([]*domain.RecoveryCode, error) {
	var codes []*domain.RecoveryCode
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND NOT is_used", userID).
		Order("created_at").
		Find(&codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *RecoveryCodeStore) ListAll(ctx context.Context, userID uuid.UUID) ([]*domain.RecoveryCode, error) {
	var codes []*domain.RecoveryCode
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at").
		Find(&codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// MarkUsed consumes a code. The conditional on is_used keeps a code
// single-use even under concurrent redemption attempts.
func (r *RecoveryCodeStore) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time, ip string) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&domain.RecoveryCode{}).
		Where("id = ? AND NOT is_used", id).
		Updates(map[string]any{
			"is_used":      true,
			"used_at":      at,
			"used_from_ip": ip,
		})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected == 1, nil
}

func (r *RecoveryCodeStore) DeleteUnused(ctx context.Context, userID, totpSecretID uuid.UUID) (int64, error) {
	tx := r.db.WithContext(ctx).
		Where("user_id = ? AND totp_secret_id = ? AND NOT is_used", userID, totpSecretID).
		Delete(&domain.RecoveryCode{})
	return tx.RowsAffected, tx.Error
}
