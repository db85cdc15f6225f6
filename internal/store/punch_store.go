package store

import (
	"context"

	"chrona/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PunchStore struct{ db *gorm.DB }

func (s *Store) Punches() *PunchStore { return &PunchStore{db: s.DB} }

func (p *PunchStore) Create(ctx context.Context, punch *domain.Punch) error {
	if punch.ID == uuid.Nil {
		punch.ID = uuid.New()
	}
	return p.db.WithContext(ctx).Create(punch).Error
}

func (p *PunchStore) GetByJTI(ctx context.Context, jti uuid.UUID) (*domain.Punch, error) {
	var punch domain.Punch
	if err := p.db.WithContext(ctx).First(&punch, "jwt_jti = ?", jti).Error; err != nil {
		return nil, err
	}
	return &punch, nil
}
