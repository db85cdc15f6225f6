package impl

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"chrona/internal/audit"
	"chrona/internal/domain"
	"chrona/internal/dto"
	"chrona/internal/netutil"
	"chrona/internal/observability/metrics"
	"chrona/internal/observability/middleware"
	"chrona/internal/store"

	"github.com/google/uuid"
)

type PunchServiceImpl struct {
	store  dataStore
	signer Signer
	audit  audit.Sink

	now func() time.Time
}

func NewPunchServiceImpl(st *store.Store, signer Signer, sink audit.Sink) *PunchServiceImpl {
	return &PunchServiceImpl{
		store:  gormStoreAdapter{store: st},
		signer: signer,
		audit:  sink,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Validate runs the punch state machine in a fixed order: signature, token
// type, expiry, ledger lookup, atomic consumption, then device/kiosk/user
// checks and the punch record. Consumption is a single conditional update;
// under concurrent scans the database picks exactly one winner and every
// loser is rejected as a replay citing the winner.
func (p *PunchServiceImpl) Validate(ctx context.Context, kioskID domain.KioskID, r dto.ValidatePunchRequest, ip, ua string) (*dto.ValidatePunchResponse, error) {
	result, reason := "success", "none"
	defer func() {
		metrics.PunchValidationsTotal.WithLabelValues(result, reason).Inc()
	}()
	fail := func(why string, err error) (*dto.ValidatePunchResponse, error) {
		result, reason = "failure", why
		return nil, err
	}
	ip = normalizeIP(ip)
	ua = netutil.TruncateUserAgent(ua)
	now := p.now()

	claims, err := parseEphemeral(p.signer, r.Token)
	if err != nil {
		return fail("invalid_signature", err)
	}
	if claims.TokenType != TokenTypeEphemeralQR {
		return fail("wrong_type", domain.ErrWrongTokenType)
	}
	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
		return fail("expired", domain.ErrTokenExpired)
	}

	jti, err := uuid.Parse(claims.ID)
	if err != nil {
		return fail("invalid_signature", domain.ErrInvalidSignature)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return fail("invalid_signature", domain.ErrInvalidSignature)
	}
	deviceID, err := uuid.Parse(claims.DeviceID)
	if err != nil {
		return fail("invalid_signature", domain.ErrInvalidSignature)
	}
	punchType := domain.PunchType(r.PunchType)
	if !punchType.Valid() {
		return fail("invalid_punch_type", domain.ErrInvalidPunchType)
	}

	punchID := uuid.New()
	err = p.store.WithTx(ctx, func(tx storeTx) error {
		if _, err := tx.Tokens().GetByJTI(ctx, jti); err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return domain.ErrUnknownToken
			}
			return err
		}

		consumed, err := tx.Tokens().Consume(ctx, jti, kioskID, now)
		if err != nil {
			return err
		}
		if !consumed {
			// Lost the race; re-read to cite the winner.
			tok, err := tx.Tokens().GetByJTI(ctx, jti)
			if err != nil {
				return err
			}
			return &domain.ReplayError{
				ConsumedByKioskID: tok.ConsumedByKioskID,
				ConsumedAt:        tok.ConsumedAt,
			}
		}

		device, err := tx.Devices().Get(ctx, deviceID)
		if err != nil {
			return domain.ErrDeviceNotFound
		}
		if uuid.UUID(device.UserID) != userID {
			return domain.ErrDeviceNotFound
		}
		if device.RevokedAt != nil {
			return domain.ErrDeviceRevoked
		}

		kiosk, err := tx.Kiosks().Get(ctx, uuid.UUID(kioskID))
		if err != nil {
			return domain.ErrKioskNotFound
		}
		if !kiosk.IsActive {
			return domain.ErrKioskInactive
		}
		if r.KioskID != "" && r.KioskID != uuid.UUID(kioskID).String() {
			return domain.ErrKioskMismatch
		}

		user, err := tx.Users().Get(ctx, userID)
		if err != nil {
			return domain.ErrUserNotFound
		}
		if user.IsDisabled {
			return domain.ErrUserDisabled
		}

		return tx.Punches().Create(ctx, &domain.Punch{
			ID:        punchID,
			UserID:    domain.UserID(userID),
			DeviceID:  domain.DeviceID(deviceID),
			KioskID:   kioskID,
			PunchType: punchType,
			PunchedAt: now,
			JWTJTI:    jti,
			CreatedAt: now,
		})
	})
	if err != nil {
		var replay *domain.ReplayError
		if errors.As(err, &replay) {
			result, reason = "failure", "replay"
			metrics.ReplaysDetectedTotal.WithLabelValues("punch_token").Inc()
			uid := userID
			kid := uuid.UUID(kioskID)
			p.audit.Log(ctx, audit.Event{
				Type:     audit.EventReplayDetected,
				Severity: audit.SeverityHigh,
				UserID:   &uid,
				KioskID:  &kid,
				Metadata: map[string]any{
					"jti":                  jti.String(),
					"consumed_by_kiosk_id": replay.ConsumedByKioskID,
					"consumed_at":          replay.ConsumedAt,
				},
				IP:        ip,
				UserAgent: ua,
				At:        now,
			})
			return nil, replay
		}
		return fail(reasonFor(err), err)
	}

	uid := userID
	kid := uuid.UUID(kioskID)
	p.audit.Log(ctx, audit.Event{
		Type:     audit.EventPunchValidated,
		Severity: audit.SeverityInfo,
		UserID:   &uid,
		KioskID:  &kid,
		Metadata: map[string]any{
			"punch_id":   punchID.String(),
			"punch_type": string(punchType),
			"jti":        jti.String(),
		},
		IP:        ip,
		UserAgent: ua,
		At:        now,
	})
	slog.Info("punch validated",
		"punch_id", punchID, "user_id", userID, "kiosk_id", kioskID,
		"punch_type", punchType,
		"request_id", middleware.RequestIDFromContext(ctx),
		"trace_id", middleware.TraceIDFromContext(ctx))

	return &dto.ValidatePunchResponse{
		Valid:      true,
		PunchID:    punchID.String(),
		UserID:     userID.String(),
		DeviceID:   deviceID.String(),
		KioskID:    uuid.UUID(kioskID).String(),
		PunchType:  string(punchType),
		RecordedAt: now,
	}, nil
}

// reasonFor maps sentinel errors to the metric reason label.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnknownToken):
		return "unknown_token"
	case errors.Is(err, domain.ErrDeviceNotFound):
		return "device_not_found"
	case errors.Is(err, domain.ErrDeviceRevoked):
		return "device_revoked"
	case errors.Is(err, domain.ErrKioskNotFound):
		return "kiosk_not_found"
	case errors.Is(err, domain.ErrKioskInactive):
		return "kiosk_inactive"
	case errors.Is(err, domain.ErrKioskMismatch):
		return "kiosk_mismatch"
	case errors.Is(err, domain.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, domain.ErrUserDisabled):
		return "user_disabled"
	default:
		return "internal"
	}
}
