package store

import (
	"context"

	"chrona/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserStore struct{ db *gorm.DB }

func (s *Store) Users() *UserStore { return &UserStore{db: s.DB} }

func (u *UserStore) Create(ctx context.Context, usr *domain.User) error {
	if usr.ID == uuid.Nil {
		usr.ID = uuid.New()
	}
	return u.db.WithContext(ctx).Create(usr).Error
}

func (u *UserStore) Get(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var usr domain.User
	if err := u.db.WithContext(ctx).First(&usr, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &usr, nil
}
