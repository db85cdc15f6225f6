package store

import (
	"context"
	"errors"
	"time"

	"chrona/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type NonceStore struct{ db *gorm.DB }

func (s *Store) Nonces() *NonceStore { return &NonceStore{db: s.DB} }

// Insert adds a nonce to the blacklist. The primary key on nonce makes the
// database reject the second insert; that rejection is the replay detector,
// surfaced as ErrDuplicateKey. Never check-then-insert here.
func (n *NonceStore) Insert(ctx context.Context, entry *domain.NonceBlacklistEntry) error {
	err := n.db.WithContext(ctx).Create(entry).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateKey
	}
	return err
}

func (n *NonceStore) Exists(ctx context.Context, nonce string) (bool, error) {
	var count int64
	err := n.db.WithContext(ctx).
		Model(&domain.NonceBlacklistEntry{}).
		Where("nonce = ?", nonce).
		Count(&count).Error
	return count > 0, err
}

// Cleanup prunes entries whose token expiry plus the grace period has
// passed. Postgres DELETE has no LIMIT, so the batch is selected first.
func (n *NonceStore) Cleanup(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	sub := n.db.WithContext(ctx).
		Model(&domain.NonceBlacklistEntry{}).
		Select("nonce").
		Where("jwt_expires_at < ?", cutoff).
		Limit(batchSize)
	tx := n.db.WithContext(ctx).
		Where("nonce IN (?)", sub).
		Delete(&domain.NonceBlacklistEntry{})
	return tx.RowsAffected, tx.Error
}
