package impl

import (
	"context"
	"errors"
	"strings"
	"time"

	"chrona/internal/audit"
	"chrona/internal/domain"
	"chrona/internal/dto"
	"chrona/internal/netutil"
	"chrona/internal/recovery"
	"chrona/internal/store"

	"github.com/google/uuid"
)

type RecoveryServiceImpl struct {
	store dataStore
	audit audit.Sink

	now func() time.Time
}

func NewRecoveryServiceImpl(st *store.Store, sink audit.Sink) *RecoveryServiceImpl {
	return &RecoveryServiceImpl{
		store: gormStoreAdapter{store: st},
		audit: sink,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Use redeems a recovery code. Every unused code is checked against the slow
// hash; the conditional MarkUsed keeps a code single-use even when two
// requests race on it.
func (s *RecoveryServiceImpl) Use(ctx context.Context, userID domain.UserID, r dto.UseRecoveryCodeRequest, ip, ua string) (*dto.UseRecoveryCodeResponse, error) {
	now := s.now()
	ip = normalizeIP(ip)
	ua = netutil.TruncateUserAgent(ua)
	code := strings.ToUpper(strings.TrimSpace(r.RecoveryCode))
	uid := uuid.UUID(userID)

	var remaining int
	err := s.store.WithTx(ctx, func(tx storeTx) error {
		codes, err := tx.RecoveryCodes().ListUnused(ctx, uid)
		if err != nil {
			return err
		}
		for _, c := range codes {
			if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
				continue
			}
			if !recovery.VerifyCode(code, c.CodeHash, c.CodeSalt, c.HashIterations) {
				continue
			}
			ok, err := tx.RecoveryCodes().MarkUsed(ctx, c.ID, now, ip)
			if err != nil {
				return err
			}
			if !ok {
				// Raced with another redemption of the same code.
				return domain.ErrInvalidRecovery
			}
			remaining = len(codes) - 1
			return nil
		}
		return domain.ErrInvalidRecovery
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:      audit.EventRecoveryCodeUsed,
		Severity:  audit.SeverityWarning,
		UserID:    &uid,
		Metadata:  map[string]any{"remaining": remaining},
		IP:        ip,
		UserAgent: ua,
		At:        now,
	})

	return &dto.UseRecoveryCodeResponse{Success: true, Message: "recovery code accepted"}, nil
}

func (s *RecoveryServiceImpl) Status(ctx context.Context, userID domain.UserID) (*dto.RecoveryStatusResponse, error) {
	now := s.now()
	uid := uuid.UUID(userID)

	var out dto.RecoveryStatusResponse
	err := s.store.WithTx(ctx, func(tx storeTx) error {
		codes, err := tx.RecoveryCodes().ListAll(ctx, uid)
		if err != nil {
			return err
		}
		out = dto.RecoveryStatusResponse{Hints: []string{}}
		for _, c := range codes {
			out.Total++
			switch {
			case c.IsUsed:
				out.Used++
			case c.ExpiresAt != nil && now.After(*c.ExpiresAt):
				out.Expired++
			default:
				out.Unused++
				out.Hints = append(out.Hints, c.Hint)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Regenerate discards the unused codes for the active secret and issues a
// fresh batch. Used codes are kept for audit history.
func (s *RecoveryServiceImpl) Regenerate(ctx context.Context, userID domain.UserID, ip, ua string) (*dto.RegenerateRecoveryResponse, error) {
	now := s.now()
	ip = normalizeIP(ip)
	ua = netutil.TruncateUserAgent(ua)
	uid := uuid.UUID(userID)

	var codes []string
	err := s.store.WithTx(ctx, func(tx storeTx) error {
		row, err := tx.TOTPSecrets().GetActive(ctx, uid)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrNoActiveTOTP
			}
			return err
		}
		if _, err := tx.RecoveryCodes().DeleteUnused(ctx, uid, uuid.UUID(row.ID)); err != nil {
			return err
		}
		codes, err = issueRecoveryCodes(ctx, tx, userID, row.ID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:      audit.EventRecoveryRotated,
		Severity:  audit.SeverityInfo,
		UserID:    &uid,
		IP:        ip,
		UserAgent: ua,
		At:        now,
	})

	return &dto.RegenerateRecoveryResponse{RecoveryCodes: codes}, nil
}
