package store

import (
	"context"
	"time"

	"chrona/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LockoutStore struct{ db *gorm.DB }

func (s *Store) Lockouts() *LockoutStore { return &LockoutStore{db: s.DB} }

// GetActive returns the user's active lockout that has not yet elapsed.
func (l *LockoutStore) GetActive(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.Lockout, error) {
	var lockout domain.Lockout
	err := l.db.WithContext(ctx).
		First(&lockout, "user_id = ? AND is_active AND locked_until > ?", userID, now).Error
	if err != nil {
		return nil, err
	}
	return &lockout, nil
}

// DeactivateAll releases every active lockout for the user. Called before a
// new lockout is created so at most one row stays active.
func (l *LockoutStore) DeactivateAll(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return l.db.WithContext(ctx).
		Model(&domain.Lockout{}).
		Where("user_id = ? AND is_active", userID).
		Updates(map[string]any{
			"is_active":   false,
			"released_at": at,
			"released_by": "system",
		}).Error
}

func (l *LockoutStore) Create(ctx context.Context, lockout *domain.Lockout) error {
	if lockout.ID == uuid.Nil {
		lockout.ID = uuid.New()
	}
	return l.db.WithContext(ctx).Create(lockout).Error
}
