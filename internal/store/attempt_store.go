package store

import (
	"context"
	"time"

	"chrona/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AttemptStore struct{ db *gorm.DB }

func (s *Store) Attempts() *AttemptStore { return &AttemptStore{db: s.DB} }

func (a *AttemptStore) Record(ctx context.Context, attempt *domain.ValidationAttempt) error {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	return a.db.WithContext(ctx).Create(attempt).Error
}

// CountSince counts all attempts for the user in the sliding window.
func (a *AttemptStore) CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	err := a.db.WithContext(ctx).
		Model(&domain.ValidationAttempt{}).
		Where("user_id = ? AND attempted_at >= ?", userID, since).
		Count(&n).Error
	return n, err
}

func (a *AttemptStore) CountFailedSince(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	err := a.db.WithContext(ctx).
		Model(&domain.ValidationAttempt{}).
		Where("user_id = ? AND NOT is_success AND attempted_at >= ?", userID, since).
		Count(&n).Error
	return n, err
}
